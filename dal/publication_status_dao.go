package dal

import (
	"encoding/json"
	"errors"
	"strings"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
	log "github.com/sirupsen/logrus"
)

// ErrStatusWriteFailed signals that the platform publish itself succeeded
// but recording the result back to the CMS did not. Callers must not
// convert it into a publish failure.
var ErrStatusWriteFailed = errors.New("publication status write failed")

type PlatformStateMap map[string]map[string]interface{}

// NormalizePlatformMap accepts every historical encoding of the
// social_platforms field: a JSON object, a JSON-encoded string holding an
// object, or a bare array of platform names. Unknown shapes normalize to
// an empty map rather than an error.
func NormalizePlatformMap(raw json.RawMessage) PlatformStateMap {
	result := PlatformStateMap{}
	if len(raw) == 0 {
		return result
	}

	payload := raw
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		trimmed := strings.TrimSpace(asString)
		if trimmed == "" {
			return result
		}
		payload = json.RawMessage(trimmed)
	}

	var asMap PlatformStateMap
	if json.Unmarshal(payload, &asMap) == nil && asMap != nil {
		for name, entry := range asMap {
			if entry == nil {
				entry = map[string]interface{}{}
			}
			result[name] = entry
		}
		return result
	}

	var asNames []string
	if json.Unmarshal(payload, &asNames) == nil {
		for _, name := range asNames {
			result[name] = map[string]interface{}{"status": string(records.PUB_PENDING)}
		}
		return result
	}

	log.Printf("unrecognized social_platforms payload, treating as empty: %s", string(raw))
	return result
}

func deepCopyPlatformMap(in PlatformStateMap) PlatformStateMap {
	out := PlatformStateMap{}
	b, err := json.Marshal(in)
	if err != nil {
		return out
	}
	if json.Unmarshal(b, &out) != nil {
		return PlatformStateMap{}
	}
	return out
}

func publicationToEntry(pub records.SocialPublication) map[string]interface{} {
	entry := map[string]interface{}{}
	b, _ := json.Marshal(pub)
	json.Unmarshal(b, &entry)
	delete(entry, "platform")
	return entry
}

// MergePublication overwrites one platform's entry while keeping every
// sibling entry byte-identical. Fields the new publication does not carry
// (e.g. "selected" written by the scheduler UI) survive from the previous
// entry of the same platform.
func MergePublication(existing PlatformStateMap, pub records.SocialPublication) PlatformStateMap {
	merged := deepCopyPlatformMap(existing)
	platform := string(pub.Platform)

	entry := map[string]interface{}{}
	for k, v := range merged[platform] {
		entry[k] = v
	}
	for k, v := range publicationToEntry(pub) {
		entry[k] = v
	}
	merged[platform] = entry

	// Safety net against sibling loss.
	for name, prior := range existing {
		if name == platform {
			continue
		}
		if _, ok := merged[name]; !ok {
			merged[name] = prior
		}
	}
	return merged
}

func allSelectedPublished(platforms PlatformStateMap) bool {
	sawSelected := false
	for _, entry := range platforms {
		selected, hasSelected := entry["selected"].(bool)
		if hasSelected && !selected {
			continue
		}
		sawSelected = true
		if entry["status"] != string(records.PUB_PUBLISHED) {
			return false
		}
	}
	return sawSelected
}

// RecordPublication merges one platform's result into the content record
// via read-modify-write. A write failure is logged and returned as
// ErrStatusWriteFailed; it never masks the publish outcome.
func RecordPublication(client *DirectusClient, contentId string, pub records.SocialPublication) error {
	content, err := GetCampaignContent(client, contentId)
	if err != nil {
		log.Printf("correlationID: %s unable to read content for status merge: %s", contentId, err)
		return ErrStatusWriteFailed
	}

	existing := NormalizePlatformMap(content.SocialPlatforms)
	merged := MergePublication(existing, pub)

	payload := map[string]interface{}{
		"social_platforms": merged,
	}
	if allSelectedPublished(merged) {
		payload["status"] = string(records.PUB_PUBLISHED)
	}

	err = PatchCampaignContent(client, contentId, payload)
	if err != nil {
		log.Printf("correlationID: %s status merge write failed for platform %s: %s", contentId, pub.Platform, err)
		return ErrStatusWriteFailed
	}
	return nil
}
