package dal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	config "github.com/nplanner/smm-publisher/configuration"
	log "github.com/sirupsen/logrus"
)

// DirectusClient is a thin REST client for the CMS. The token is injected
// at construction; there is no ambient session lookup.
type DirectusClient struct {
	BaseUrl    string
	Token      string
	httpClient *http.Client
}

type directusEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func NewDirectusClient(baseUrl string, token string) *DirectusClient {
	return &DirectusClient{
		BaseUrl: baseUrl,
		Token:   token,
		httpClient: &http.Client{
			Timeout: time.Duration(config.GetEnvConfigs().HttpTimeoutSec) * time.Second,
		},
	}
}

func DefaultDirectusClient() *DirectusClient {
	return NewDirectusClient(config.GetEnvConfigs().DirectusBaseUrl, config.DirectusServiceToken())
}

func (c *DirectusClient) GetItem(collection string, id string, out interface{}) error {
	url := fmt.Sprintf("%s/items/%s/%s", c.BaseUrl, collection, id)
	return c.do(http.MethodGet, url, nil, out)
}

func (c *DirectusClient) PatchItem(collection string, id string, payload interface{}) error {
	url := fmt.Sprintf("%s/items/%s/%s", c.BaseUrl, collection, id)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(http.MethodPatch, url, body, nil)
}

// ValidateUserToken checks a caller-supplied bearer token against /users/me.
func (c *DirectusClient) ValidateUserToken(token string) (bool, error) {
	url := fmt.Sprintf("%s/users/me", c.BaseUrl)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

func (c *DirectusClient) do(method string, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("directus %s %s failed: %s", method, url, err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope directusEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && len(envelope.Errors) > 0 {
			return fmt.Errorf("directus %s %s: %d %s", method, url, resp.StatusCode, envelope.Errors[0].Message)
		}
		return fmt.Errorf("directus %s %s: status %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	var envelope directusEnvelope
	err = json.Unmarshal(respBody, &envelope)
	if err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}
