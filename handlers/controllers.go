package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	dal "github.com/nplanner/smm-publisher/dal"
	records "github.com/nplanner/smm-publisher/dal/records/v1"
	requestModels "github.com/nplanner/smm-publisher/service/models"
	publishing "github.com/nplanner/smm-publisher/service/publishing"
	videoprocessor "github.com/nplanner/smm-publisher/service/videoprocessor"
	log "github.com/sirupsen/logrus"
)

// Every response carries a success flag so the SPA can branch without
// inspecting status codes, matching its existing callers.

var validate = validator.New()

type Controllers struct {
	Cms *dal.DirectusClient
}

func NewControllers(cms *dal.DirectusClient) *Controllers {
	return &Controllers{Cms: cms}
}

func writeJson(w http.ResponseWriter, status int, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, map[string]interface{}{"success": false, "error": message})
}

func (c *Controllers) HandlerHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
}

func (c *Controllers) decodeAndValidate(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if !isAuthorized(c.Cms, r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	if err := validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (c *Controllers) platformHandler(platform records.PlatformName) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload requestModels.PlatformPublishRequest
		if !c.decodeAndValidate(w, r, &payload) {
			return
		}
		results, err := publishing.PublishContent(c.Cms, payload.ContentId, []string{string(platform)})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		publication := results[string(platform)]
		writeJson(w, http.StatusOK, map[string]interface{}{
			"success":     publication.Status == records.PUB_PUBLISHED,
			"publication": publication,
		})
	}
}

func (c *Controllers) HandlerPublish(w http.ResponseWriter, r *http.Request) {
	var payload requestModels.PublishRequest
	if !c.decodeAndValidate(w, r, &payload) {
		return
	}
	results, err := publishing.PublishContent(c.Cms, payload.ContentId, payload.Platforms)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	allPublished := len(results) > 0
	for _, publication := range results {
		if publication.Status != records.PUB_PUBLISHED {
			allPublished = false
		}
	}
	writeJson(w, http.StatusOK, map[string]interface{}{
		"success": allPublished,
		"results": results,
	})
}

func (c *Controllers) HandlerVideoProcess(w http.ResponseWriter, r *http.Request) {
	var payload requestModels.VideoProcessRequest
	if !c.decodeAndValidate(w, r, &payload) {
		return
	}
	job, err := videoprocessor.SubmitJob(payload.ContentId, payload.VideoUrl)
	if err != nil {
		log.Printf("video processor submit failed for content %s: %s", payload.ContentId, err)
		writeJson(w, http.StatusBadGateway, map[string]interface{}{"success": false, "job": job, "error": err.Error()})
		return
	}
	writeJson(w, http.StatusOK, map[string]interface{}{"success": true, "job": job})
}

func (c *Controllers) HandlerVideoStatus(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(c.Cms, r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	jobId := r.URL.Query().Get("jobId")
	if jobId == "" {
		writeError(w, http.StatusBadRequest, "jobId query parameter is required")
		return
	}
	job, found := videoprocessor.GetJob(jobId)
	if !found {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJson(w, http.StatusOK, map[string]interface{}{"success": true, "job": job})
}

func (c *Controllers) HandlerGetContent(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(c.Cms, r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contentId := chi.URLParam(r, "id")
	content, err := dal.GetCampaignContent(c.Cms, contentId)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJson(w, http.StatusOK, map[string]interface{}{"success": true, "content": content})
}

func (c *Controllers) HandlerPatchContent(w http.ResponseWriter, r *http.Request) {
	if !isAuthorized(c.Cms, r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contentId := chi.URLParam(r, "id")
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := dal.PatchCampaignContent(c.Cms, contentId, payload); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJson(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Routes wires the full inbound surface onto a chi router.
func (c *Controllers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", c.HandlerHealthCheck)
	r.Post("/api/facebook-webhook", c.platformHandler(records.Platform_Facebook))
	r.Post("/api/publish/telegram", c.platformHandler(records.Platform_Telegram))
	r.Post("/api/publish/vk", c.platformHandler(records.Platform_Vk))
	r.Post("/api/publish/instagram-story", c.platformHandler(records.Platform_Instagram))
	r.Post("/api/publish/instagram-stories", c.platformHandler(records.Platform_Instagram))
	r.Post("/api/publish", c.HandlerPublish)
	r.Post("/api/video-processor/process", c.HandlerVideoProcess)
	r.Get("/api/video-processor/status", c.HandlerVideoStatus)
	r.Get("/api/content/{id}", c.HandlerGetContent)
	r.Patch("/api/content/{id}", c.HandlerPatchContent)
	return r
}
