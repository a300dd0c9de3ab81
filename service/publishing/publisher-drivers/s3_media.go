package publisherdrivers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	config "github.com/nplanner/smm-publisher/configuration"
	log "github.com/sirupsen/logrus"
)

// Drivers that hand platforms a URL instead of bytes (Instagram container
// flow, Facebook photo posts) need the media on a publicly fetchable
// host. Local or CMS-internal files are mirrored to S3-compatible storage
// first.

var s3Uploader *s3manager.Uploader

func getUploader() *s3manager.Uploader {
	if s3Uploader == nil {
		s3Uploader = s3manager.NewUploader(config.GetAwsSession())
	}
	return s3Uploader
}

// MirrorToPublicStorage uploads a local file under the given key and
// returns its public URL. The local file is left in place; the caller
// still owns its cleanup.
func MirrorToPublicStorage(correlationId string, localPath string, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		log.Printf("correlationID: %s error opening %s for mirror upload: %s", correlationId, localPath, err)
		return "", err
	}
	defer file.Close()

	conf := config.GetEnvConfigs()
	_, err = getUploader().Upload(&s3manager.UploadInput{
		Bucket: aws.String(conf.S3MediaBucket),
		Key:    aws.String(key),
		Body:   file,
		ACL:    aws.String("public-read"),
	})
	if err != nil {
		log.Printf("correlationID: %s error mirroring %s to media storage: %s", correlationId, localPath, err)
		return "", err
	}
	return fmt.Sprintf("%s/%s", conf.S3MediaPublicBaseUrl, key), nil
}

// EnsurePublicUrl returns a URL the platforms can fetch. Already-public
// URLs pass through; CMS-internal ones are downloaded and mirrored.
func EnsurePublicUrl(correlationId string, url string) (string, error) {
	conf := config.GetEnvConfigs()
	if conf.DirectusBaseUrl == "" || !strings.HasPrefix(url, conf.DirectusBaseUrl) {
		return url, nil
	}

	tempPath, err := FetchToTempFile(correlationId, url)
	if err != nil {
		return "", err
	}
	defer RemoveTempFile(correlationId, tempPath)
	return MirrorToPublicStorage(correlationId, tempPath, "mirror/"+correlationId+"-"+filepath.Base(tempPath))
}
