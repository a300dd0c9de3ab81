package v1

import "encoding/json"

type PlatformName string

const (
	Platform_Facebook  PlatformName = "facebook"
	Platform_Instagram PlatformName = "instagram"
	Platform_Telegram  PlatformName = "telegram"
	Platform_Vk        PlatformName = "vk"
)

type PublicationStatus string

const (
	PUB_PUBLISHED PublicationStatus = "published"
	PUB_FAILED    PublicationStatus = "failed"
	PUB_SCHEDULED PublicationStatus = "scheduled"
	PUB_CANCELLED PublicationStatus = "cancelled"
	PUB_PENDING   PublicationStatus = "pending"
)

type ContentType string

const (
	CONTENT_TEXT     ContentType = "text"
	CONTENT_IMAGE    ContentType = "image"
	CONTENT_VIDEO    ContentType = "video"
	CONTENT_CAROUSEL ContentType = "carousel"
	CONTENT_STORY    ContentType = "story"
)

// CampaignContent mirrors the campaign_content collection in the CMS.
// Legacy fields (AdditionalImages/AdditionalMedia, string-encoded
// SocialPlatforms) arrive in whatever shape older writers left them in,
// so they are kept raw and decoded on demand.
type CampaignContent struct {
	Id          string      `json:"id"`
	CampaignId  string      `json:"campaign"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`

	ImageUrl string `json:"image_url,omitempty"`
	VideoUrl string `json:"video_url,omitempty"`

	AdditionalImages json.RawMessage `json:"additional_images,omitempty"`
	AdditionalMedia  json.RawMessage `json:"additional_media,omitempty"`
	StoryMedia       json.RawMessage `json:"story_media,omitempty"`
	Media            json.RawMessage `json:"media,omitempty"`

	// Platform name -> publication state. May arrive as a JSON string or
	// as a bare array of platform names from legacy writers.
	SocialPlatforms json.RawMessage `json:"social_platforms,omitempty"`

	Status      string `json:"status,omitempty"`
	DateCreated string `json:"date_created,omitempty"`
	DateUpdated string `json:"date_updated,omitempty"`
}

type MediaType string

const (
	MEDIA_IMAGE MediaType = "image"
	MEDIA_VIDEO MediaType = "video"
)

type MediaItem struct {
	Url         string    `json:"url"`
	Type        MediaType `json:"type"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
}

// SocialPublication is the per-platform result recorded back onto the
// content record. Extra keys written by other services (e.g. "selected")
// survive the status merge in the dal layer rather than being modeled
// here.
type SocialPublication struct {
	Platform    PlatformName      `json:"platform"`
	Status      PublicationStatus `json:"status"`
	PublishedAt string            `json:"publishedAt,omitempty"`
	PostUrl     string            `json:"postUrl,omitempty"`
	PostId      string            `json:"postId,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// PlatformSettings carries campaign-scoped credentials. Callers inject
// these explicitly; nothing in the publishing path reads global session
// state.
type PlatformSettings struct {
	// Facebook / Instagram
	FacebookAccessToken  string `json:"facebook_access_token,omitempty"`
	FacebookPageId       string `json:"facebook_page_id,omitempty"`
	InstagramAccessToken string `json:"instagram_access_token,omitempty"`
	InstagramAccountId   string `json:"instagram_account_id,omitempty"`

	// Telegram
	TelegramBotToken string `json:"telegram_bot_token,omitempty"`
	TelegramChatId   string `json:"telegram_chat_id,omitempty"`

	// VK
	VkAccessToken string `json:"vk_access_token,omitempty"`
	VkGroupId     string `json:"vk_group_id,omitempty"`
}

type CampaignSettings struct {
	Id                  string           `json:"id"`
	Name                string           `json:"name,omitempty"`
	SocialMediaSettings PlatformSettings `json:"social_media_settings"`
}
