package configuration

import (
	"os"
	"sync"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type EnvConfigVals struct {
	AppBaseUrl               string `yaml:"AppBaseUrl"`
	DirectusBaseUrl          string `yaml:"DirectusBaseUrl"`
	ContentCollection        string `yaml:"ContentCollection"`
	CampaignCollection       string `yaml:"CampaignCollection"`
	FacebookGraphVersion     string `yaml:"FacebookGraphVersion"`
	InstagramGraphVersion    string `yaml:"InstagramGraphVersion"`
	VkApiVersion             string `yaml:"VkApiVersion"`
	TelegramMessageLimit     int    `yaml:"TelegramMessageLimit"`
	TelegramCaptionLimit     int    `yaml:"TelegramCaptionLimit"`
	TelegramMediaGroupLimit  int    `yaml:"TelegramMediaGroupLimit"`
	VkMessageLimit           int    `yaml:"VkMessageLimit"`
	InstagramCaptionLimit    int    `yaml:"InstagramCaptionLimit"`
	PageTokenCacheTTLMinutes int64  `yaml:"PageTokenCacheTTLMinutes"`
	ReelsPollBaseWaitSec     int    `yaml:"ReelsPollBaseWaitSec"`
	ReelsPollStepWaitSec     int    `yaml:"ReelsPollStepWaitSec"`
	ReelsPollMaxAttempts     int    `yaml:"ReelsPollMaxAttempts"`
	HttpTimeoutSec           int64  `yaml:"HttpTimeoutSec"`
	MediaDownloadTimeoutSec  int64  `yaml:"MediaDownloadTimeoutSec"`
	S3MediaBucket            string `yaml:"S3MediaBucket"`
	S3MediaEndpoint          string `yaml:"S3MediaEndpoint"`
	S3MediaPublicBaseUrl     string `yaml:"S3MediaPublicBaseUrl"`
	VideoProcessorBaseUrl    string `yaml:"VideoProcessorBaseUrl"`
}

var configSync sync.Once
var EnvConfigs *EnvConfigVals

func GetEnvConfigs() *EnvConfigVals {
	if EnvConfigs != nil {
		return EnvConfigs
	}
	configSync.Do(func() {
		godotenv.Load()
		var configFile []byte
		var err error
		if os.Getenv("env") == "" || os.Getenv("env") != "prod" {
			configFile, err = os.ReadFile("./configuration/env-dev.yml")
		} else {
			configFile, err = os.ReadFile("./configuration/env-prod.yml")
		}

		if err != nil {
			log.Fatalf("failed to load config file: %s", err)
		}

		var vals EnvConfigVals
		err = yaml.Unmarshal(configFile, &vals)
		if err != nil {
			log.Fatalf("failed to unmarshall config file values: %s", err)
		}
		EnvConfigs = &vals
	})
	return EnvConfigs
}

// Secrets stay in process env, never in the yml files.
func DirectusServiceToken() string {
	return os.Getenv("DIRECTUS_SERVICE_TOKEN")
}

func InstagramUsername() string {
	name := os.Getenv("INSTAGRAM_USERNAME")
	if name == "" {
		return "nplanner.ru"
	}
	return name
}
