package publisherdrivers

import (
	"fmt"
	"strings"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
)

type PublishCommand struct {
	CorrelationID string
	Content       records.CampaignContent
	Settings      records.PlatformSettings
}

// Publish never returns an error for a failed publish attempt. Failures
// come back as a SocialPublication with Status failed and the Error field
// set, so one platform's outcome can never abort a sibling's.
type PublisherDriver interface {
	Publish(PublishCommand) records.SocialPublication
}

func GetDriver(platformName string) (PublisherDriver, error) {
	switch strings.ToLower(platformName) {
	case string(records.Platform_Facebook):
		return FacebookDriver{}, nil
	case string(records.Platform_Instagram):
		return InstagramDriver{}, nil
	case string(records.Platform_Telegram):
		return TelegramDriver{}, nil
	case string(records.Platform_Vk):
		return VkDriver{}, nil
	}
	return nil, fmt.Errorf("no matching platform-to-driver found: %s", platformName)
}
