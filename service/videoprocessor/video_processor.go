package videoprocessor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	config "github.com/nplanner/smm-publisher/configuration"
	log "github.com/sirupsen/logrus"
)

// Transcoding runs in a separate FFmpeg service. This package only
// forwards jobs and tracks their last known state in memory; the external
// service owns the work.

// Overridable for tests.
var ProcessorBaseUrl = ""

type JobStatus string

const (
	JOB_SUBMITTED JobStatus = "submitted"
	JOB_FAILED    JobStatus = "failed"
)

type Job struct {
	JobId       string    `json:"jobId"`
	RemoteJobId string    `json:"remoteJobId,omitempty"`
	ContentId   string    `json:"contentId"`
	VideoUrl    string    `json:"videoUrl"`
	Status      string    `json:"status"`
	SubmittedAt string    `json:"submittedAt"`
	ResultUrl   string    `json:"resultUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	statusKind  JobStatus `json:"-"`
}

var jobRegistry sync.Map

func baseUrl() string {
	if ProcessorBaseUrl != "" {
		return ProcessorBaseUrl
	}
	return config.GetEnvConfigs().VideoProcessorBaseUrl
}

func processorClient() *http.Client {
	return &http.Client{Timeout: time.Duration(config.GetEnvConfigs().HttpTimeoutSec) * time.Second}
}

// SubmitJob forwards the request to the transcoder and registers the job
// even when the forward fails, so status lookups can report the failure.
func SubmitJob(contentId string, videoUrl string) (Job, error) {
	job := Job{
		JobId:       uuid.New().String(),
		ContentId:   contentId,
		VideoUrl:    videoUrl,
		Status:      string(JOB_SUBMITTED),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		statusKind:  JOB_SUBMITTED,
	}

	payload, _ := json.Marshal(map[string]string{
		"contentId": contentId,
		"videoUrl":  videoUrl,
	})
	resp, err := processorClient().Post(baseUrl()+"/process", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("correlationID: %s video processor unreachable: %s", job.JobId, err)
		job.Status = string(JOB_FAILED)
		job.statusKind = JOB_FAILED
		job.Error = err.Error()
		jobRegistry.Store(job.JobId, job)
		return job, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		job.Status = string(JOB_FAILED)
		job.statusKind = JOB_FAILED
		job.Error = fmt.Sprintf("video processor status %d: %s", resp.StatusCode, string(body))
		jobRegistry.Store(job.JobId, job)
		return job, fmt.Errorf("%s", job.Error)
	}

	var remote struct {
		JobId  string `json:"jobId"`
		Status string `json:"status"`
	}
	if json.Unmarshal(body, &remote) == nil {
		job.RemoteJobId = remote.JobId
		if remote.Status != "" {
			job.Status = remote.Status
		}
	}
	jobRegistry.Store(job.JobId, job)
	return job, nil
}

// GetJob returns the registry entry, refreshed from the transcoder when a
// remote job id exists. A refresh failure keeps the last known state.
func GetJob(jobId string) (Job, bool) {
	stored, ok := jobRegistry.Load(jobId)
	if !ok {
		return Job{}, false
	}
	job := stored.(Job)
	if job.RemoteJobId == "" || job.statusKind == JOB_FAILED {
		return job, true
	}

	resp, err := processorClient().Get(fmt.Sprintf("%s/status/%s", baseUrl(), job.RemoteJobId))
	if err != nil {
		log.Printf("correlationID: %s status refresh failed, returning cached state: %s", job.JobId, err)
		return job, true
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var remote struct {
		Status    string `json:"status"`
		ResultUrl string `json:"resultUrl"`
		Error     string `json:"error"`
	}
	if resp.StatusCode == http.StatusOK && json.Unmarshal(body, &remote) == nil {
		if remote.Status != "" {
			job.Status = remote.Status
		}
		job.ResultUrl = remote.ResultUrl
		job.Error = remote.Error
		jobRegistry.Store(job.JobId, job)
	}
	return job, true
}
