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
var telegramApiBase = "https://api.telegram.org"

type TelegramDriver struct{}

type tgResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageId int64 `json:"message_id"`
	} `json:"result"`
}

func (s TelegramDriver) Publish(pubCommand PublishCommand) (result records.SocialPublication) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("correlationID: %s telegram driver panic recovered: %v", pubCommand.CorrelationID, r)
			result = failedResult(records.Platform_Telegram, fmt.Errorf("internal error: %v", r))
		}
	}()

	if pubCommand.Settings.TelegramBotToken == "" || pubCommand.Settings.TelegramChatId == "" {
		return failedResult(records.Platform_Telegram, errors.New("missing telegram credentials"))
	}

	correlationId := pubCommand.CorrelationID
	text := formatters.FormatTelegramHtml(pubCommand.Content.Content)

	var messageId int64
	var err error
	switch {
	case pubCommand.Content.ContentType == records.CONTENT_CAROUSEL:
		messageId, err = s.sendMediaGroup(correlationId, pubCommand, text)
	default:
		media, hasMedia := mediaresolve.ResolvePrimaryMedia(pubCommand.Content)
		if pubCommand.Content.ContentType == records.CONTENT_VIDEO && strings.HasPrefix(pubCommand.Content.VideoUrl, "http") {
			media = records.MediaItem{Url: pubCommand.Content.VideoUrl, Type: records.MEDIA_VIDEO}
			hasMedia = true
		}
		if hasMedia {
			messageId, err = s.sendSingleMedia(correlationId, pubCommand.Settings, media, text)
		} else {
			messageId, err = s.sendText(correlationId, pubCommand.Settings, text)
		}
	}
	if err != nil {
		log.Printf("correlationID: %s error publishing to telegram: %s", correlationId, err)
		return failedResult(records.Platform_Telegram, s.setAnyBadRequestCode(err))
	}

	return publishedResult(records.Platform_Telegram,
		strconv.FormatInt(messageId, 10),
		FormatTelegramMessageUrl(pubCommand.Settings.TelegramChatId, messageId))
}

// sendText splits over-limit messages and sends the parts sequentially.
// The returned id is the first message's, which is what the post URL
// should point at.
func (s TelegramDriver) sendText(correlationId string, settings records.PlatformSettings, text string) (int64, error) {
	parts := formatters.SplitLongMessage(text, config.GetEnvConfigs().TelegramMessageLimit)
	var firstId int64
	for i, part := range parts {
		id, err := s.sendMessagePart(correlationId, settings, part)
		if err != nil {
			if i == 0 {
				return 0, err
			}
			log.Printf("correlationID: %s message part %d failed, keeping earlier parts: %s", correlationId, i+1, err)
			break
		}
		if i == 0 {
			firstId = id
		}
	}
	return firstId, nil
}

// sendMessagePart tries HTML first. A parse rejection gets exactly one
// retry with every tag stripped.
func (s TelegramDriver) sendMessagePart(correlationId string, settings records.PlatformSettings, text string) (int64, error) {
	params := url.Values{}
	params.Set("chat_id", settings.TelegramChatId)
	params.Set("text", text)
	params.Set("parse_mode", "HTML")
	id, err := s.callMethod(settings.TelegramBotToken, "sendMessage", params)
	if err == nil {
		return id, nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "can't parse entities") {
		return 0, err
	}

	log.Printf("correlationID: %s telegram rejected HTML, retrying as plain text", correlationId)
	params.Set("text", formatters.StripAllTags(text))
	params.Del("parse_mode")
	return s.callMethod(settings.TelegramBotToken, "sendMessage", params)
}

// sendSingleMedia proxies the media bytes: download to a temp file, then
// multipart upload. The temp file is removed on every exit path.
func (s TelegramDriver) sendSingleMedia(correlationId string, settings records.PlatformSettings, media records.MediaItem, caption string) (int64, error) {
	tempPath, err := FetchToTempFile(correlationId, media.Url)
	if err != nil {
		return 0, err
	}
	defer RemoveTempFile(correlationId, tempPath)

	method := "sendPhoto"
	fileField := "photo"
	if media.Type == records.MEDIA_VIDEO {
		method = "sendVideo"
		fileField = "video"
	}

	captionLimit := config.GetEnvConfigs().TelegramCaptionLimit
	fields := map[string]string{
		"chat_id":    settings.TelegramChatId,
		"parse_mode": "HTML",
	}
	overflow := ""
	if len(caption) <= captionLimit {
		fields["caption"] = caption
	} else {
		overflow = caption
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", telegramApiBase, settings.TelegramBotToken, method)
	body, err := postMultipart(endpoint, fields, []multipartFile{{fieldName: fileField, filePath: tempPath}})
	messageId, err := s.parseResponse(body, err)
	if err != nil {
		return 0, err
	}

	// Over-limit captions follow the media as their own messages.
	if overflow != "" {
		if _, textErr := s.sendText(correlationId, settings, overflow); textErr != nil {
			log.Printf("correlationID: %s media sent but long caption failed: %s", correlationId, textErr)
		}
	}
	return messageId, nil
}

func (s TelegramDriver) sendMediaGroup(correlationId string, pubCommand PublishCommand, caption string) (int64, error) {
	items := mediaresolve.ResolveAllMedia(pubCommand.Content)
	if len(items) == 0 {
		return s.sendText(correlationId, pubCommand.Settings, caption)
	}
	limit := config.GetEnvConfigs().TelegramMediaGroupLimit
	if len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 1 {
		return s.sendSingleMedia(correlationId, pubCommand.Settings, items[0], caption)
	}

	var tempPaths []string
	defer func() {
		for _, p := range tempPaths {
			RemoveTempFile(correlationId, p)
		}
	}()

	var files []multipartFile
	var group []map[string]interface{}
	for i, item := range items {
		tempPath, err := FetchToTempFile(correlationId, item.Url)
		if err != nil {
			log.Printf("correlationID: %s skipping group item %s: %s", correlationId, item.Url, err)
			continue
		}
		tempPaths = append(tempPaths, tempPath)

		attachName := fmt.Sprintf("file%d", i)
		entry := map[string]interface{}{
			"type":  "photo",
			"media": "attach://" + attachName,
		}
		if item.Type == records.MEDIA_VIDEO {
			entry["type"] = "video"
		}
		// Caption rides on the first item only.
		if len(group) == 0 && caption != "" {
			entry["caption"] = formatters.TruncateRunes(caption, config.GetEnvConfigs().TelegramCaptionLimit)
			entry["parse_mode"] = "HTML"
		}
		group = append(group, entry)
		files = append(files, multipartFile{fieldName: attachName, filePath: tempPath})
	}
	if len(group) == 0 {
		return 0, errors.New("no media group items could be downloaded")
	}

	mediaJson, err := json.Marshal(group)
	if err != nil {
		return 0, err
	}
	fields := map[string]string{
		"chat_id": pubCommand.Settings.TelegramChatId,
		"media":   string(mediaJson),
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMediaGroup", telegramApiBase, pubCommand.Settings.TelegramBotToken)
	body, err := postMultipart(endpoint, fields, files)
	return s.parseGroupResponse(body, err)
}

func (s TelegramDriver) callMethod(botToken string, method string, params url.Values) (int64, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", telegramApiBase, botToken, method)
	body, err := httpPostForm(endpoint, params)
	return s.parseResponse(body, err)
}

func (s TelegramDriver) parseResponse(body []byte, err error) (int64, error) {
	var parsed tgResponse
	if len(body) > 0 {
		json.Unmarshal(body, &parsed)
	}
	if len(body) > 0 && !parsed.Ok {
		return 0, fmt.Errorf("telegram api: %s", parsed.Description)
	}
	if err != nil {
		return 0, err
	}
	return parsed.Result.MessageId, nil
}

// sendMediaGroup returns an array of messages rather than a single one.
func (s TelegramDriver) parseGroupResponse(body []byte, err error) (int64, error) {
	var parsed struct {
		Ok          bool   `json:"ok"`
		Description string `json:"description"`
		Result      []struct {
			MessageId int64 `json:"message_id"`
		} `json:"result"`
	}
	if len(body) > 0 {
		json.Unmarshal(body, &parsed)
	}
	if len(body) > 0 && !parsed.Ok {
		return 0, fmt.Errorf("telegram api: %s", parsed.Description)
	}
	if err != nil {
		return 0, err
	}
	if len(parsed.Result) == 0 {
		return 0, errors.New("telegram api: empty media group result")
	}
	return parsed.Result[0].MessageId, nil
}

// FormatTelegramMessageUrl maps the chat id shapes Telegram uses onto
// t.me links. Public channels addressed by @username link to the channel
// itself; message-level links only exist for numeric chat ids.
func FormatTelegramMessageUrl(chatId string, messageId int64) string {
	if strings.HasPrefix(chatId, "@") {
		return "https://t.me/" + strings.TrimPrefix(chatId, "@")
	}
	if strings.HasPrefix(chatId, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(chatId, "-100"), messageId)
	}
	if strings.HasPrefix(chatId, "-") {
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(chatId, "-"), messageId)
	}
	return fmt.Sprintf("https://t.me/%s/%d", chatId, messageId)
}

func (s TelegramDriver) setAnyBadRequestCode(err error) error {
	msg := strings.ToLower(fmt.Sprintf("%s", err))
	isCredentialError := strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "bot was kicked") ||
		strings.Contains(msg, "chat not found")
	if isCredentialError {
		return fmt.Errorf("%s: Telegram profile resulted in bad request: %s", BAD_REQUEST_PROFILE_CODE, err)
	}
	return err
}
