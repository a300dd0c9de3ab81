package mediaresolve

import (
	"encoding/json"
	"strings"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
)

// Legacy content records carry media in several shapes at once: a plain
// image_url column, JSON arrays, JSON-encoded strings holding JSON arrays,
// and bare URL strings. Resolution walks the fields in fixed priority
// order and returns the first usable URL. It never errors; an unusable
// record resolves to nothing.

func ResolvePrimaryMedia(content records.CampaignContent) (records.MediaItem, bool) {
	if isHttpUrl(content.ImageUrl) {
		return mediaFromUrl(content.ImageUrl), true
	}
	for _, raw := range [][]byte{content.AdditionalImages, content.AdditionalMedia} {
		if item, ok := firstFromRaw(raw); ok {
			return item, ok
		}
	}
	return records.MediaItem{}, false
}

// ResolveStoryMedia adds the story-specific fallbacks after the shared
// priority chain.
func ResolveStoryMedia(content records.CampaignContent) (records.MediaItem, bool) {
	if isHttpUrl(content.VideoUrl) {
		return mediaFromUrl(content.VideoUrl), true
	}
	if item, ok := ResolvePrimaryMedia(content); ok {
		return item, ok
	}
	for _, raw := range [][]byte{content.StoryMedia, content.Media} {
		if item, ok := firstFromRaw(raw); ok {
			return item, ok
		}
	}
	return records.MediaItem{}, false
}

// ResolveAllMedia collects every resolvable URL in priority order,
// deduplicated. Used for carousels and albums.
func ResolveAllMedia(content records.CampaignContent) []records.MediaItem {
	var items []records.MediaItem
	seen := map[string]bool{}
	add := func(item records.MediaItem, ok bool) {
		if ok && !seen[item.Url] {
			seen[item.Url] = true
			items = append(items, item)
		}
	}

	add(mediaFromUrl(content.ImageUrl), isHttpUrl(content.ImageUrl))
	for _, raw := range [][]byte{content.AdditionalImages, content.AdditionalMedia} {
		for _, item := range allFromRaw(raw) {
			add(item, true)
		}
	}
	return items
}

func firstFromRaw(raw json.RawMessage) (records.MediaItem, bool) {
	items := allFromRaw(raw)
	if len(items) == 0 {
		return records.MediaItem{}, false
	}
	return items[0], true
}

func allFromRaw(raw json.RawMessage) []records.MediaItem {
	if len(raw) == 0 {
		return nil
	}

	// String payloads are either JSON (possibly double-encoded) or a
	// literal URL.
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		trimmed := strings.TrimSpace(asString)
		if isHttpUrl(trimmed) {
			return []records.MediaItem{mediaFromUrl(trimmed)}
		}
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "\"") {
			return allFromRaw(json.RawMessage(trimmed))
		}
		return nil
	}

	var asList []json.RawMessage
	if json.Unmarshal(raw, &asList) == nil {
		var items []records.MediaItem
		for _, entry := range asList {
			if item, ok := itemFromCandidate(entry); ok {
				items = append(items, item)
			}
		}
		return items
	}

	if item, ok := itemFromCandidate(raw); ok {
		return []records.MediaItem{item}
	}
	return nil
}

func itemFromCandidate(raw json.RawMessage) (records.MediaItem, bool) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		trimmed := strings.TrimSpace(asString)
		if isHttpUrl(trimmed) {
			return mediaFromUrl(trimmed), true
		}
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			items := allFromRaw(json.RawMessage(trimmed))
			if len(items) > 0 {
				return items[0], true
			}
		}
		return records.MediaItem{}, false
	}

	var asObject map[string]interface{}
	if json.Unmarshal(raw, &asObject) != nil {
		return records.MediaItem{}, false
	}
	for _, key := range []string{"url", "uri", "src"} {
		if value, ok := asObject[key].(string); ok && isHttpUrl(value) {
			item := mediaFromUrl(value)
			applyObjectMeta(&item, asObject)
			return item, true
		}
	}
	// Last resort: any string field that looks like a URL.
	for _, value := range asObject {
		if s, ok := value.(string); ok && isHttpUrl(s) {
			item := mediaFromUrl(s)
			applyObjectMeta(&item, asObject)
			return item, true
		}
	}
	return records.MediaItem{}, false
}

func applyObjectMeta(item *records.MediaItem, obj map[string]interface{}) {
	if t, ok := obj["type"].(string); ok {
		if t == string(records.MEDIA_VIDEO) {
			item.Type = records.MEDIA_VIDEO
		} else if t == string(records.MEDIA_IMAGE) {
			item.Type = records.MEDIA_IMAGE
		}
	}
	if title, ok := obj["title"].(string); ok {
		item.Title = title
	}
	if desc, ok := obj["description"].(string); ok {
		item.Description = desc
	}
}

func mediaFromUrl(url string) records.MediaItem {
	item := records.MediaItem{Url: url, Type: records.MEDIA_IMAGE}
	lower := strings.ToLower(url)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	if strings.HasSuffix(lower, ".mp4") {
		item.Type = records.MEDIA_VIDEO
	}
	return item
}

func isHttpUrl(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
