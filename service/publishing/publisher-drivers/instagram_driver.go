package publisherdrivers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	config "github.com/nplanner/smm-publisher/configuration"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	formatters "github.com/nplanner/smm-publisher/service/publishing/formatters"
	mediaresolve "github.com/nplanner/smm-publisher/service/publishing/mediaresolve"
	log "github.com/sirupsen/logrus"
)

// Overridable for tests.
var instagramGraphBase = "https://graph.facebook.com"
var reelsSleep = time.Sleep

type InstagramDriver struct{}

type igContainerStatus string

const (
	IG_CONTAINER_IN_PROGRESS igContainerStatus = "IN_PROGRESS"
	IG_CONTAINER_FINISHED    igContainerStatus = "FINISHED"
	IG_CONTAINER_ERROR       igContainerStatus = "ERROR"
)

type igGraphResponse struct {
	Id         string        `json:"id"`
	StatusCode string        `json:"status_code"`
	Error      *fbGraphError `json:"error"`
}

// Publishing is two-phase: create a media container, then publish it by
// creation_id. Image containers are ready immediately; video containers
// are polled and then published regardless of the final poll state, since
// a container reported as ERROR is still frequently publishable.
func (s InstagramDriver) Publish(pubCommand PublishCommand) (result records.SocialPublication) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("correlationID: %s instagram driver panic recovered: %v", pubCommand.CorrelationID, r)
			result = failedResult(records.Platform_Instagram, fmt.Errorf("internal error: %v", r))
		}
	}()

	if pubCommand.Settings.InstagramAccessToken == "" || pubCommand.Settings.InstagramAccountId == "" {
		return failedResult(records.Platform_Instagram, errors.New("missing instagram credentials"))
	}

	correlationId := pubCommand.CorrelationID
	media, ok := mediaresolve.ResolveStoryMedia(pubCommand.Content)
	if !ok {
		return failedResult(records.Platform_Instagram, errors.New("no usable media url on content record"))
	}

	// Containers fetch by URL, so CMS-internal media is mirrored first.
	publicUrl, err := EnsurePublicUrl(correlationId, media.Url)
	if err != nil {
		return failedResult(records.Platform_Instagram, err)
	}
	media.Url = publicUrl

	caption := formatters.TruncateRunes(
		formatters.FormatPlainText(pubCommand.Content.Content),
		config.GetEnvConfigs().InstagramCaptionLimit)

	containerId, err := s.createContainer(correlationId, pubCommand.Settings, media, caption)
	if err != nil {
		log.Printf("correlationID: %s error creating media container: %s", correlationId, err)
		return failedResult(records.Platform_Instagram, s.setAnyBadRequestCode(err))
	}

	if media.Type == records.MEDIA_VIDEO {
		s.waitForContainer(correlationId, pubCommand.Settings, containerId)
	}

	mediaId, err := s.publishContainer(correlationId, pubCommand.Settings, containerId)
	if err != nil {
		log.Printf("correlationID: %s error publishing media container %s: %s", correlationId, containerId, err)
		return failedResult(records.Platform_Instagram, s.setAnyBadRequestCode(err))
	}

	return publishedResult(records.Platform_Instagram, mediaId, s.storyUrl())
}

func (s InstagramDriver) createContainer(correlationId string, settings records.PlatformSettings, media records.MediaItem, caption string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/media",
		instagramGraphBase, config.GetEnvConfigs().InstagramGraphVersion, settings.InstagramAccountId)
	params := url.Values{}
	params.Set("media_type", "STORIES")
	if media.Type == records.MEDIA_VIDEO {
		params.Set("video_url", media.Url)
	} else {
		params.Set("image_url", media.Url)
	}
	if caption != "" {
		params.Set("caption", caption)
	}
	params.Set("access_token", settings.InstagramAccessToken)

	body, err := httpPostForm(endpoint, params)
	return s.parseGraphId(body, err)
}

// waitForContainer polls status_code with a growing delay. Terminal ERROR
// is only logged; the caller publishes anyway.
func (s InstagramDriver) waitForContainer(correlationId string, settings records.PlatformSettings, containerId string) {
	conf := config.GetEnvConfigs()
	for attempt := 0; attempt < conf.ReelsPollMaxAttempts; attempt++ {
		wait := time.Duration(conf.ReelsPollBaseWaitSec+attempt*conf.ReelsPollStepWaitSec) * time.Second
		reelsSleep(wait)

		requestUrl := fmt.Sprintf("%s/%s/%s?fields=status_code&access_token=%s",
			instagramGraphBase, conf.InstagramGraphVersion, containerId, url.QueryEscape(settings.InstagramAccessToken))
		body, err := httpGetBody(requestUrl)
		if err != nil {
			log.Printf("correlationID: %s container status poll failed: %s", correlationId, err)
			continue
		}
		var parsed igGraphResponse
		if json.Unmarshal(body, &parsed) != nil {
			continue
		}
		switch igContainerStatus(parsed.StatusCode) {
		case IG_CONTAINER_FINISHED:
			return
		case IG_CONTAINER_ERROR:
			log.Printf("correlationID: %s container %s reported ERROR, attempting publish anyway", correlationId, containerId)
			return
		default:
			log.Printf("correlationID: %s container %s still %s", correlationId, containerId, parsed.StatusCode)
		}
	}
	log.Printf("correlationID: %s container %s poll budget exhausted, attempting publish", correlationId, containerId)
}

func (s InstagramDriver) publishContainer(correlationId string, settings records.PlatformSettings, containerId string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/media_publish",
		instagramGraphBase, config.GetEnvConfigs().InstagramGraphVersion, settings.InstagramAccountId)
	params := url.Values{}
	params.Set("creation_id", containerId)
	params.Set("access_token", settings.InstagramAccessToken)

	body, err := httpPostForm(endpoint, params)
	return s.parseGraphId(body, err)
}

func (s InstagramDriver) parseGraphId(body []byte, err error) (string, error) {
	var parsed igGraphResponse
	if len(body) > 0 {
		json.Unmarshal(body, &parsed)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("graph error code %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if err != nil {
		return "", err
	}
	if parsed.Id == "" {
		return "", errors.New("graph response contained no id")
	}
	return parsed.Id, nil
}

// Stories have no per-item permalink in the Graph response; the URL is
// synthesized from the configured account username.
func (s InstagramDriver) storyUrl() string {
	return fmt.Sprintf("https://www.instagram.com/stories/%s/", config.InstagramUsername())
}

func (s InstagramDriver) setAnyBadRequestCode(err error) error {
	return FacebookDriver{}.setAnyBadRequestCode(err)
}
