package publishing

import (
	"fmt"

	"github.com/google/uuid"
	dal "github.com/nplanner/smm-publisher/dal"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	drivers "github.com/nplanner/smm-publisher/service/publishing/publisher-drivers"
	log "github.com/sirupsen/logrus"
)

// PublishContentToPlatform runs one platform's driver against a content
// record and merges the outcome back into the CMS. The returned
// publication reflects the platform call; a status-write failure is
// logged separately and never rewrites a successful publish as failed.
func PublishContentToPlatform(client *dal.DirectusClient, contentId string, platform string, settings records.PlatformSettings) (records.SocialPublication, error) {
	correlationId := fmt.Sprintf("%s-%s", contentId, uuid.New().String()[:8])

	content, err := dal.GetCampaignContent(client, contentId)
	if err != nil {
		return records.SocialPublication{}, err
	}

	driver, err := drivers.GetDriver(platform)
	if err != nil {
		return records.SocialPublication{}, err
	}

	publication := driver.Publish(drivers.PublishCommand{
		CorrelationID: correlationId,
		Content:       content,
		Settings:      settings,
	})

	if mergeErr := dal.RecordPublication(client, contentId, publication); mergeErr != nil {
		log.Printf("correlationID: %s publication recorded locally only, merge failed: %s", correlationId, mergeErr)
	}
	return publication, nil
}

// PublishContent fans a record out over the requested platforms, or over
// every platform selected on the record when none are requested
// explicitly. One platform failing never stops the rest.
func PublishContent(client *dal.DirectusClient, contentId string, platforms []string) (map[string]records.SocialPublication, error) {
	content, err := dal.GetCampaignContent(client, contentId)
	if err != nil {
		return nil, err
	}

	if len(platforms) == 0 {
		platforms = selectedPlatforms(content)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("content %s has no selected platforms", contentId)
	}

	settings, err := loadSettings(client, content)
	if err != nil {
		return nil, err
	}

	results := map[string]records.SocialPublication{}
	for _, platform := range platforms {
		publication, err := PublishContentToPlatform(client, contentId, platform, settings)
		if err != nil {
			publication = records.SocialPublication{
				Platform: records.PlatformName(platform),
				Status:   records.PUB_FAILED,
				Error:    err.Error(),
			}
		}
		results[platform] = publication
	}
	return results, nil
}

func loadSettings(client *dal.DirectusClient, content records.CampaignContent) (records.PlatformSettings, error) {
	if content.CampaignId == "" {
		return records.PlatformSettings{}, fmt.Errorf("content %s has no campaign", content.Id)
	}
	campaign, err := dal.GetCampaignSettings(client, content.CampaignId)
	if err != nil {
		return records.PlatformSettings{}, err
	}
	return campaign.SocialMediaSettings, nil
}

func selectedPlatforms(content records.CampaignContent) []string {
	stateMap := dal.NormalizePlatformMap(content.SocialPlatforms)
	var platforms []string
	for name, entry := range stateMap {
		if selected, ok := entry["selected"].(bool); ok && !selected {
			continue
		}
		platforms = append(platforms, name)
	}
	return platforms
}
