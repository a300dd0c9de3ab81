package publisherdrivers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	config "github.com/nplanner/smm-publisher/configuration"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	formatters "github.com/nplanner/smm-publisher/service/publishing/formatters"
	mediaresolve "github.com/nplanner/smm-publisher/service/publishing/mediaresolve"
	log "github.com/sirupsen/logrus"
)

// Overridable for tests.
var facebookGraphBase = "https://graph.facebook.com"

const (
	FB_ERROR_INVALID_TOKEN  = 190
	FB_ERROR_BAD_PARAMETERS = 100
)

type FacebookDriver struct{}

type fbGraphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type fbGraphResponse struct {
	Id           string        `json:"id"`
	PostId       string        `json:"post_id"`
	PermalinkUrl string        `json:"permalink_url"`
	Error        *fbGraphError `json:"error"`
}

type fbAccountsResponse struct {
	Data []struct {
		Id          string `json:"id"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
	Error *fbGraphError `json:"error"`
}

type pageTokenEntry struct {
	token     string
	expiresAt time.Time
}

// Keyed by truncated user token plus page id. sync.Map keeps concurrent
// requests safe; a redundant upstream lookup on a cold race is fine.
var pageTokenCache sync.Map

func (s FacebookDriver) Publish(pubCommand PublishCommand) (result records.SocialPublication) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("correlationID: %s facebook driver panic recovered: %v", pubCommand.CorrelationID, r)
			result = failedResult(records.Platform_Facebook, fmt.Errorf("internal error: %v", r))
		}
	}()

	if pubCommand.Settings.FacebookAccessToken == "" || pubCommand.Settings.FacebookPageId == "" {
		return failedResult(records.Platform_Facebook, errors.New("missing facebook credentials"))
	}

	correlationId := pubCommand.CorrelationID
	pageId := pubCommand.Settings.FacebookPageId
	pageToken := s.getPageAccessToken(correlationId, pubCommand.Settings.FacebookAccessToken, pageId)
	message := formatters.FormatPlainText(pubCommand.Content.Content)

	var postId string
	var err error
	switch {
	case pubCommand.Content.ContentType == records.CONTENT_CAROUSEL:
		return s.publishAlbum(pubCommand, pageToken, message)
	case s.hasVideo(pubCommand.Content):
		postId, err = s.publishVideo(correlationId, pageId, pageToken, pubCommand.Content.VideoUrl, message)
	default:
		media, hasImage := mediaresolve.ResolvePrimaryMedia(pubCommand.Content)
		if hasImage && media.Type == records.MEDIA_IMAGE {
			imageUrl, mirrorErr := EnsurePublicUrl(correlationId, media.Url)
			if mirrorErr != nil {
				return failedResult(records.Platform_Facebook, mirrorErr)
			}
			postId, err = s.publishImageWithText(correlationId, pageId, pageToken, imageUrl, message)
		} else {
			postId, err = s.publishTextOnly(correlationId, pageId, pageToken, message)
		}
	}
	if err != nil {
		log.Printf("correlationID: %s error publishing to facebook: %s", correlationId, err)
		return failedResult(records.Platform_Facebook, s.setAnyBadRequestCode(err))
	}

	permalink := s.fetchPermalink(correlationId, pageId, pageToken, postId)
	if permalink == "" {
		// A post id without a reachable permalink is treated as failed so
		// the record never claims a publication nobody can open.
		return failedResult(records.Platform_Facebook,
			fmt.Errorf("post %s created but permalink unavailable", postId))
	}
	return publishedResult(records.Platform_Facebook, postId, permalink)
}

// getPageAccessToken exchanges a user token for the page's own token via
// /me/accounts. Results are cached for the configured TTL. Every failure
// mode returns the user token so publishing can still be attempted.
func (s FacebookDriver) getPageAccessToken(correlationId string, userToken string, pageId string) string {
	cacheKey := truncateToken(userToken) + ":" + pageId
	if cached, ok := pageTokenCache.Load(cacheKey); ok {
		entry := cached.(pageTokenEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.token
		}
		pageTokenCache.Delete(cacheKey)
	}

	requestUrl := fmt.Sprintf("%s/%s/me/accounts?access_token=%s",
		facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, url.QueryEscape(userToken))
	body, err := httpGetBody(requestUrl)
	if err != nil {
		log.Printf("correlationID: %s page token lookup failed, using user token: %s", correlationId, err)
		return userToken
	}

	var accounts fbAccountsResponse
	if err = json.Unmarshal(body, &accounts); err != nil || accounts.Error != nil {
		log.Printf("correlationID: %s page token response unusable, using user token", correlationId)
		return userToken
	}
	for _, page := range accounts.Data {
		if page.Id == pageId && page.AccessToken != "" {
			ttl := time.Duration(config.GetEnvConfigs().PageTokenCacheTTLMinutes) * time.Minute
			pageTokenCache.Store(cacheKey, pageTokenEntry{
				token:     page.AccessToken,
				expiresAt: time.Now().Add(ttl),
			})
			return page.AccessToken
		}
	}
	log.Printf("correlationID: %s page %s not among managed pages, using user token", correlationId, pageId)
	return userToken
}

// Both publish helpers try a form-urlencoded body first and fall back to
// query-string parameters. Some page configurations reject one encoding
// but accept the other.
func (s FacebookDriver) publishTextOnly(correlationId string, pageId string, token string, message string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/feed", facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, pageId)
	params := url.Values{}
	params.Set("message", message)
	params.Set("access_token", token)
	return s.postWithEncodingFallback(correlationId, endpoint, params)
}

func (s FacebookDriver) publishImageWithText(correlationId string, pageId string, token string, imageUrl string, message string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/photos", facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, pageId)
	params := url.Values{}
	params.Set("url", imageUrl)
	params.Set("message", message)
	params.Set("access_token", token)
	return s.postWithEncodingFallback(correlationId, endpoint, params)
}

func (s FacebookDriver) publishVideo(correlationId string, pageId string, token string, videoUrl string, message string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/videos", facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, pageId)
	params := url.Values{}
	params.Set("file_url", videoUrl)
	params.Set("description", message)
	params.Set("access_token", token)
	return s.postWithEncodingFallback(correlationId, endpoint, params)
}

func (s FacebookDriver) publishAlbum(pubCommand PublishCommand, token string, message string) records.SocialPublication {
	correlationId := pubCommand.CorrelationID
	pageId := pubCommand.Settings.FacebookPageId
	items := mediaresolve.ResolveAllMedia(pubCommand.Content)
	if len(items) == 0 {
		postId, err := s.publishTextOnly(correlationId, pageId, token, message)
		if err != nil {
			return failedResult(records.Platform_Facebook, s.setAnyBadRequestCode(err))
		}
		permalink := s.fetchPermalink(correlationId, pageId, token, postId)
		if permalink == "" {
			return failedResult(records.Platform_Facebook, fmt.Errorf("post %s created but permalink unavailable", postId))
		}
		return publishedResult(records.Platform_Facebook, postId, permalink)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/albums", facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, pageId)
	params := url.Values{}
	params.Set("name", formatters.TruncateRunes(message, 100))
	params.Set("message", message)
	params.Set("access_token", token)
	albumId, err := s.postWithEncodingFallback(correlationId, endpoint, params)
	if err != nil {
		log.Printf("correlationID: %s album creation failed, falling back to text with links: %s", correlationId, err)
		return s.publishTextWithLinks(pubCommand, token, message, items)
	}

	uploaded := 0
	for _, item := range items {
		if item.Type != records.MEDIA_IMAGE {
			continue
		}
		photoUrl, mirrorErr := EnsurePublicUrl(correlationId, item.Url)
		if mirrorErr != nil {
			log.Printf("correlationID: %s skipping album photo %s: %s", correlationId, item.Url, mirrorErr)
			continue
		}
		photoEndpoint := fmt.Sprintf("%s/%s/%s/photos", facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, albumId)
		photoParams := url.Values{}
		photoParams.Set("url", photoUrl)
		photoParams.Set("access_token", token)
		if _, err = s.postWithEncodingFallback(correlationId, photoEndpoint, photoParams); err != nil {
			log.Printf("correlationID: %s skipping album photo %s: %s", correlationId, item.Url, err)
			continue
		}
		uploaded++
	}
	if uploaded == 0 {
		return s.publishTextWithLinks(pubCommand, token, message, items)
	}
	albumUrl := fmt.Sprintf("https://facebook.com/media/set/?set=a.%s", albumId)
	return publishedResult(records.Platform_Facebook, albumId, albumUrl)
}

func (s FacebookDriver) publishTextWithLinks(pubCommand PublishCommand, token string, message string, items []records.MediaItem) records.SocialPublication {
	correlationId := pubCommand.CorrelationID
	pageId := pubCommand.Settings.FacebookPageId
	var links []string
	for _, item := range items {
		links = append(links, item.Url)
	}
	text := strings.TrimSpace(message + "\n\n" + strings.Join(links, "\n"))
	postId, err := s.publishTextOnly(correlationId, pageId, token, text)
	if err != nil {
		return failedResult(records.Platform_Facebook, s.setAnyBadRequestCode(err))
	}
	permalink := s.fetchPermalink(correlationId, pageId, token, postId)
	if permalink == "" {
		return failedResult(records.Platform_Facebook, fmt.Errorf("post %s created but permalink unavailable", postId))
	}
	return publishedResult(records.Platform_Facebook, postId, permalink)
}

func (s FacebookDriver) postWithEncodingFallback(correlationId string, endpoint string, params url.Values) (string, error) {
	postId, formErr := s.parseGraphPost(httpPostForm(endpoint, params))
	if formErr == nil {
		return postId, nil
	}
	log.Printf("correlationID: %s form-encoded attempt failed, retrying with query params: %s", correlationId, formErr)

	postId, queryErr := s.parseGraphPost(httpPostBody(endpoint+"?"+params.Encode(), "", nil))
	if queryErr == nil {
		return postId, nil
	}
	return "", formErr
}

func (s FacebookDriver) parseGraphPost(body []byte, err error) (string, error) {
	var parsed fbGraphResponse
	if len(body) > 0 {
		json.Unmarshal(body, &parsed)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("graph error code %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if err != nil {
		return "", err
	}
	if parsed.PostId != "" {
		return parsed.PostId, nil
	}
	if parsed.Id != "" {
		return parsed.Id, nil
	}
	return "", errors.New("graph response contained no post id")
}

// fetchPermalink normalizes bare photo/post ids to {pageID}_{postID}
// before asking for permalink_url. Returns "" when none is available.
func (s FacebookDriver) fetchPermalink(correlationId string, pageId string, token string, postId string) string {
	fullId := postId
	if !strings.Contains(postId, "_") {
		fullId = pageId + "_" + postId
	}
	requestUrl := fmt.Sprintf("%s/%s/%s?fields=permalink_url&access_token=%s",
		facebookGraphBase, config.GetEnvConfigs().FacebookGraphVersion, fullId, url.QueryEscape(token))
	body, err := httpGetBody(requestUrl)
	if err != nil {
		log.Printf("correlationID: %s permalink lookup failed for %s: %s", correlationId, fullId, err)
		return ""
	}
	var parsed fbGraphResponse
	if json.Unmarshal(body, &parsed) != nil || parsed.Error != nil {
		return ""
	}
	if parsed.PermalinkUrl == "" {
		return ""
	}
	if strings.HasPrefix(parsed.PermalinkUrl, "/") {
		return "https://www.facebook.com" + parsed.PermalinkUrl
	}
	return parsed.PermalinkUrl
}

func (s FacebookDriver) hasVideo(content records.CampaignContent) bool {
	return content.ContentType == records.CONTENT_VIDEO && strings.HasPrefix(content.VideoUrl, "http")
}

func (s FacebookDriver) setAnyBadRequestCode(err error) error {
	msg := fmt.Sprintf("%s", err)
	isCredentialError := strings.Contains(msg, fmt.Sprintf("code %d", FB_ERROR_INVALID_TOKEN)) ||
		strings.Contains(msg, fmt.Sprintf("code %d", FB_ERROR_BAD_PARAMETERS)) ||
		strings.Contains(strings.ToLower(msg), "session has expired") ||
		strings.Contains(strings.ToLower(msg), "access token")
	if isCredentialError {
		return fmt.Errorf("%s: Facebook profile resulted in bad request: %s", BAD_REQUEST_PROFILE_CODE, err)
	}
	return err
}

func truncateToken(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10]
}

func httpGetBody(requestUrl string) ([]byte, error) {
	client := &http.Client{Timeout: time.Duration(config.GetEnvConfigs().HttpTimeoutSec) * time.Second}
	resp, err := client.Get(requestUrl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("GET status %d", resp.StatusCode)
	}
	return body, nil
}

func httpPostForm(endpoint string, params url.Values) ([]byte, error) {
	return httpPostBody(endpoint, "application/x-www-form-urlencoded", strings.NewReader(params.Encode()))
}

func httpPostBody(endpoint string, contentType string, body io.Reader) ([]byte, error) {
	client := &http.Client{Timeout: time.Duration(config.GetEnvConfigs().HttpTimeoutSec) * time.Second}
	resp, err := client.Post(endpoint, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, fmt.Errorf("POST status %d", resp.StatusCode)
	}
	return respBody, nil
}
