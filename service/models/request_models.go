package models

// Inbound request DTOs. Validation tags are enforced in the handlers
// before any CMS or platform call is made.

type PublishRequest struct {
	ContentId string   `json:"contentId" validate:"required"`
	Platforms []string `json:"platforms,omitempty" validate:"omitempty,dive,oneof=facebook instagram telegram vk"`
}

type PlatformPublishRequest struct {
	ContentId string `json:"contentId" validate:"required"`
}

type VideoProcessRequest struct {
	ContentId string `json:"contentId" validate:"required"`
	VideoUrl  string `json:"videoUrl" validate:"required,url"`
}
