package publisherdrivers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	config "github.com/nplanner/smm-publisher/configuration"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	formatters "github.com/nplanner/smm-publisher/service/publishing/formatters"
	mediaresolve "github.com/nplanner/smm-publisher/service/publishing/mediaresolve"
	log "github.com/sirupsen/logrus"
)

// Overridable for tests.
var vkApiBase = "https://api.vk.com"

type VkDriver struct{}

type vkError struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type vkWallPostResponse struct {
	Response struct {
		PostId int64 `json:"post_id"`
	} `json:"response"`
	Error *vkError `json:"error"`
}

type vkUploadServerResponse struct {
	Response struct {
		UploadUrl string `json:"upload_url"`
	} `json:"response"`
	Error *vkError `json:"error"`
}

type vkUploadResult struct {
	Server int64  `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

type vkSavePhotoResponse struct {
	Response []struct {
		Id      int64 `json:"id"`
		OwnerId int64 `json:"owner_id"`
	} `json:"response"`
	Error *vkError `json:"error"`
}

func (s VkDriver) Publish(pubCommand PublishCommand) (result records.SocialPublication) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("correlationID: %s vk driver panic recovered: %v", pubCommand.CorrelationID, r)
			result = failedResult(records.Platform_Vk, fmt.Errorf("internal error: %v", r))
		}
	}()

	if pubCommand.Settings.VkAccessToken == "" || pubCommand.Settings.VkGroupId == "" {
		return failedResult(records.Platform_Vk, errors.New("missing vk credentials"))
	}

	correlationId := pubCommand.CorrelationID
	ownerId, err := s.resolveOwnerId(pubCommand.Settings.VkGroupId)
	if err != nil {
		return failedResult(records.Platform_Vk, err)
	}

	text := formatters.TruncateRunes(
		formatters.FormatVkText(pubCommand.Content.Content),
		config.GetEnvConfigs().VkMessageLimit)

	// Video links go into the message body; VK builds its own preview.
	if pubCommand.Content.ContentType == records.CONTENT_VIDEO && strings.HasPrefix(pubCommand.Content.VideoUrl, "http") {
		text = strings.TrimSpace(text + "\n\n" + pubCommand.Content.VideoUrl)
	}

	attachments := s.uploadImages(correlationId, pubCommand, ownerId)

	postId, err := s.wallPost(correlationId, pubCommand.Settings.VkAccessToken, ownerId, text, attachments)
	if err != nil {
		log.Printf("correlationID: %s error publishing to vk: %s", correlationId, err)
		return failedResult(records.Platform_Vk, s.setAnyBadRequestCode(err))
	}

	postUrl := fmt.Sprintf("https://vk.com/wall%d_%d", ownerId, postId)
	return publishedResult(records.Platform_Vk, strconv.FormatInt(postId, 10), postUrl)
}

// Group ids arrive either numeric or with the legacy "club" prefix.
// Wall owner ids for groups are negative.
func (s VkDriver) resolveOwnerId(groupId string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(groupId), "club")
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unusable vk group id %q: %w", groupId, err)
	}
	if id > 0 {
		id = -id
	}
	return id, nil
}

// uploadImages pushes each image through the wall upload flow. A failed
// upload skips that image; zero successes falls back to a text-only post.
func (s VkDriver) uploadImages(correlationId string, pubCommand PublishCommand, ownerId int64) []string {
	items := mediaresolve.ResolveAllMedia(pubCommand.Content)
	var attachments []string
	for _, item := range items {
		if item.Type != records.MEDIA_IMAGE {
			continue
		}
		attachment, err := s.uploadWallPhoto(correlationId, pubCommand.Settings.VkAccessToken, ownerId, item.Url)
		if err != nil {
			log.Printf("correlationID: %s skipping vk image %s: %s", correlationId, item.Url, err)
			continue
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

func (s VkDriver) uploadWallPhoto(correlationId string, token string, ownerId int64, imageUrl string) (string, error) {
	groupId := -ownerId

	params := s.baseParams(token)
	params.Set("group_id", strconv.FormatInt(groupId, 10))
	body, err := httpPostForm(vkApiBase+"/method/photos.getWallUploadServer", params)
	if err != nil {
		return "", err
	}
	var server vkUploadServerResponse
	if err = json.Unmarshal(body, &server); err != nil {
		return "", err
	}
	if server.Error != nil {
		return "", fmt.Errorf("vk error %d: %s", server.Error.ErrorCode, server.Error.ErrorMsg)
	}

	tempPath, err := FetchToTempFile(correlationId, imageUrl)
	if err != nil {
		return "", err
	}
	defer RemoveTempFile(correlationId, tempPath)

	uploadBody, err := postMultipart(server.Response.UploadUrl, nil, []multipartFile{{fieldName: "photo", filePath: tempPath}})
	if err != nil {
		return "", err
	}
	var uploaded vkUploadResult
	if err = json.Unmarshal(uploadBody, &uploaded); err != nil {
		return "", err
	}
	if uploaded.Photo == "" || uploaded.Photo == "[]" {
		return "", errors.New("vk upload server returned no photo payload")
	}

	params = s.baseParams(token)
	params.Set("group_id", strconv.FormatInt(groupId, 10))
	params.Set("server", strconv.FormatInt(uploaded.Server, 10))
	params.Set("photo", uploaded.Photo)
	params.Set("hash", uploaded.Hash)
	body, err = httpPostForm(vkApiBase+"/method/photos.saveWallPhoto", params)
	if err != nil {
		return "", err
	}
	var saved vkSavePhotoResponse
	if err = json.Unmarshal(body, &saved); err != nil {
		return "", err
	}
	if saved.Error != nil {
		return "", fmt.Errorf("vk error %d: %s", saved.Error.ErrorCode, saved.Error.ErrorMsg)
	}
	if len(saved.Response) == 0 {
		return "", errors.New("vk saveWallPhoto returned no photos")
	}
	return fmt.Sprintf("photo%d_%d", saved.Response[0].OwnerId, saved.Response[0].Id), nil
}

func (s VkDriver) wallPost(correlationId string, token string, ownerId int64, text string, attachments []string) (int64, error) {
	params := s.baseParams(token)
	params.Set("owner_id", strconv.FormatInt(ownerId, 10))
	params.Set("from_group", "1")
	params.Set("message", text)
	if len(attachments) > 0 {
		params.Set("attachments", strings.Join(attachments, ","))
	}

	body, err := httpPostForm(vkApiBase+"/method/wall.post", params)
	if err != nil {
		return 0, err
	}
	var parsed vkWallPostResponse
	if err = json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if parsed.Error != nil {
		return 0, fmt.Errorf("vk error %d: %s", parsed.Error.ErrorCode, parsed.Error.ErrorMsg)
	}
	if parsed.Response.PostId == 0 {
		return 0, errors.New("vk wall.post returned no post id")
	}
	return parsed.Response.PostId, nil
}

func (s VkDriver) baseParams(token string) url.Values {
	params := url.Values{}
	params.Set("access_token", token)
	params.Set("v", config.GetEnvConfigs().VkApiVersion)
	return params
}

func (s VkDriver) setAnyBadRequestCode(err error) error {
	msg := fmt.Sprintf("%s", err)
	// 5: auth failed, 15: access denied, 214: wall posting restricted.
	isCredentialError := strings.Contains(msg, "vk error 5:") ||
		strings.Contains(msg, "vk error 15:") ||
		strings.Contains(msg, "vk error 214:")
	if isCredentialError {
		return fmt.Errorf("%s: VK profile resulted in bad request: %s", BAD_REQUEST_PROFILE_CODE, err)
	}
	return err
}
