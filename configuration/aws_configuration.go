package configuration

import (
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

var sessInst *session.Session
var once sync.Once

// Media storage speaks the S3 protocol but lives on a custom endpoint,
// so path-style addressing is required.
func GetAwsSession() *session.Session {
	if sessInst != nil {
		return sessInst
	}
	once.Do(func() {
		creds := credentials.NewStaticCredentials(os.Getenv("S3_ACCESS_KEY_ID"), os.Getenv("S3_SECRET_ACCESS_KEY"), "")
		sess, err := session.NewSession(&aws.Config{
			Region:           aws.String(os.Getenv("S3_REGION")),
			Endpoint:         aws.String(GetEnvConfigs().S3MediaEndpoint),
			S3ForcePathStyle: aws.Bool(true),
			Credentials:      creds,
		})
		if err != nil {
			panic(err)
		}
		sessInst = sess
	})

	return sessInst
}
