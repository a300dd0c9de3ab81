package publisherdrivers

import (
	"time"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
)

const BAD_REQUEST_PROFILE_CODE = "BadRequestProfileCode"

func publishedResult(platform records.PlatformName, postId string, postUrl string) records.SocialPublication {
	return records.SocialPublication{
		Platform:    platform,
		Status:      records.PUB_PUBLISHED,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
		PostId:      postId,
		PostUrl:     postUrl,
	}
}

func failedResult(platform records.PlatformName, err error) records.SocialPublication {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return records.SocialPublication{
		Platform: platform,
		Status:   records.PUB_FAILED,
		Error:    msg,
	}
}
