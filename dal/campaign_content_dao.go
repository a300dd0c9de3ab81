package dal

import (
	config "github.com/nplanner/smm-publisher/configuration"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	log "github.com/sirupsen/logrus"
)

func GetCampaignContent(client *DirectusClient, contentId string) (records.CampaignContent, error) {
	var content records.CampaignContent
	err := client.GetItem(config.GetEnvConfigs().ContentCollection, contentId, &content)
	if err != nil {
		log.Printf("correlationID: %s error loading campaign content: %s", contentId, err)
		return content, err
	}
	return content, nil
}

func GetCampaignSettings(client *DirectusClient, campaignId string) (records.CampaignSettings, error) {
	var settings records.CampaignSettings
	err := client.GetItem(config.GetEnvConfigs().CampaignCollection, campaignId, &settings)
	if err != nil {
		log.Printf("correlationID: %s error loading campaign settings: %s", campaignId, err)
		return settings, err
	}
	return settings, nil
}

func PatchCampaignContent(client *DirectusClient, contentId string, payload map[string]interface{}) error {
	err := client.PatchItem(config.GetEnvConfigs().ContentCollection, contentId, payload)
	if err != nil {
		log.Printf("correlationID: %s error patching campaign content: %s", contentId, err)
	}
	return err
}
