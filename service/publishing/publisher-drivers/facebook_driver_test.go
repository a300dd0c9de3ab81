package publisherdrivers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
	"github.com/stretchr/testify/assert"
)

func fbSettings() records.PlatformSettings {
	return records.PlatformSettings{
		FacebookAccessToken: "user-token-1234567890",
		FacebookPageId:      "555",
	}
}

func newGraphServer(t *testing.T, handler http.HandlerFunc) func() {
	t.Helper()
	server := httptest.NewServer(handler)
	prevBase := facebookGraphBase
	facebookGraphBase = server.URL
	pageTokenCache = sync.Map{}
	return func() {
		facebookGraphBase = prevBase
		server.Close()
	}
}

func TestFacebookPublishTextHappyPath(t *testing.T) {
	setupTest()
	var accountsCalls int32
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			atomic.AddInt32(&accountsCalls, 1)
			fmt.Fprint(w, `{"data":[{"id":"555","access_token":"page-token-abcdefghij"}]}`)
		case strings.HasSuffix(r.URL.Path, "/555/feed"):
			r.ParseForm()
			assert.Equal(t, "page-token-abcdefghij", r.Form.Get("access_token"))
			fmt.Fprint(w, `{"id":"555_999"}`)
		case strings.Contains(r.URL.Path, "555_999"):
			assert.Equal(t, "permalink_url", r.URL.Query().Get("fields"))
			fmt.Fprint(w, `{"permalink_url":"https://www.facebook.com/555/posts/999"}`)
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
		}
	})
	defer teardown()

	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test",
		Content:       testContent("<p>Hello <b>there</b></p>"),
		Settings:      fbSettings(),
	})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, "555_999", result.PostId)
	assert.Equal(t, "https://www.facebook.com/555/posts/999", result.PostUrl)
	assert.NotEmpty(t, result.PublishedAt)
}

func TestFacebookPageTokenIsCached(t *testing.T) {
	setupTest()
	var accountsCalls int32
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			atomic.AddInt32(&accountsCalls, 1)
			fmt.Fprint(w, `{"data":[{"id":"555","access_token":"page-token-abcdefghij"}]}`)
		case strings.HasSuffix(r.URL.Path, "/555/feed"):
			fmt.Fprint(w, `{"id":"555_1"}`)
		default:
			fmt.Fprint(w, `{"permalink_url":"https://www.facebook.com/p"}`)
		}
	})
	defer teardown()

	driver := FacebookDriver{}
	cmd := PublishCommand{CorrelationID: "test", Content: testContent("hi"), Settings: fbSettings()}
	driver.Publish(cmd)
	driver.Publish(cmd)
	assert.Equal(t, int32(1), atomic.LoadInt32(&accountsCalls))
}

func TestFacebookPageTokenLookupFailureUsesUserToken(t *testing.T) {
	setupTest()
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.HasSuffix(r.URL.Path, "/555/feed"):
			r.ParseForm()
			assert.Equal(t, "user-token-1234567890", r.Form.Get("access_token"))
			fmt.Fprint(w, `{"id":"555_2"}`)
		default:
			fmt.Fprint(w, `{"permalink_url":"https://www.facebook.com/p2"}`)
		}
	})
	defer teardown()

	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: testContent("hi"), Settings: fbSettings()})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
}

func TestFacebookEncodingFallback(t *testing.T) {
	setupTest()
	var feedCalls int32
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			fmt.Fprint(w, `{"data":[]}`)
		case strings.HasSuffix(r.URL.Path, "/555/feed"):
			calls := atomic.AddInt32(&feedCalls, 1)
			if calls == 1 {
				// Reject the form-encoded attempt.
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"message":"boom","code":1}}`)
				return
			}
			assert.NotEmpty(t, r.URL.Query().Get("message"))
			fmt.Fprint(w, `{"id":"555_3"}`)
		default:
			fmt.Fprint(w, `{"permalink_url":"https://www.facebook.com/p3"}`)
		}
	})
	defer teardown()

	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: testContent("hi"), Settings: fbSettings()})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&feedCalls))
}

func TestFacebookMissingPermalinkMeansFailed(t *testing.T) {
	setupTest()
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			fmt.Fprint(w, `{"data":[]}`)
		case strings.HasSuffix(r.URL.Path, "/555/feed"):
			fmt.Fprint(w, `{"id":"555_4"}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	})
	defer teardown()

	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: testContent("hi"), Settings: fbSettings()})
	assert.Equal(t, records.PUB_FAILED, result.Status)
	assert.Contains(t, result.Error, "permalink")
}

func TestFacebookInvalidTokenClassified(t *testing.T) {
	setupTest()
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/me/accounts") {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`)
	})
	defer teardown()

	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: testContent("hi"), Settings: fbSettings()})
	assert.Equal(t, records.PUB_FAILED, result.Status)
	assert.Contains(t, result.Error, BAD_REQUEST_PROFILE_CODE)
}

func TestFacebookCarouselCreatesAlbum(t *testing.T) {
	setupTest()
	var albumPhotos []string
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			fmt.Fprint(w, `{"data":[]}`)
		case strings.HasSuffix(r.URL.Path, "/555/albums"):
			fmt.Fprint(w, `{"id":"album-1"}`)
		case strings.HasSuffix(r.URL.Path, "/album-1/photos"):
			r.ParseForm()
			albumPhotos = append(albumPhotos, r.Form.Get("url"))
			fmt.Fprint(w, `{"id":"88"}`)
		default:
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
		}
	})
	defer teardown()

	content := testContent("album caption")
	content.ContentType = records.CONTENT_CAROUSEL
	content.AdditionalImages = []byte(`["https://cdn.example.com/1.jpg","https://cdn.example.com/2.jpg"]`)
	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: content, Settings: fbSettings()})

	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, "album-1", result.PostId)
	assert.Equal(t, "https://facebook.com/media/set/?set=a.album-1", result.PostUrl)
	// Each photo rides its own resolved public URL.
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"}, albumPhotos)
}

func TestFacebookImagePostUsesPhotosEdge(t *testing.T) {
	setupTest()
	var photosCalled bool
	teardown := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/me/accounts"):
			fmt.Fprint(w, `{"data":[]}`)
		case strings.HasSuffix(r.URL.Path, "/555/photos"):
			photosCalled = true
			r.ParseForm()
			assert.Equal(t, "https://cdn.example.com/pic.jpg", r.Form.Get("url"))
			fmt.Fprint(w, `{"id":"77","post_id":"555_77"}`)
		default:
			fmt.Fprint(w, `{"permalink_url":"https://www.facebook.com/photo77"}`)
		}
	})
	defer teardown()

	content := testContent("caption text")
	content.ContentType = records.CONTENT_IMAGE
	content.ImageUrl = "https://cdn.example.com/pic.jpg"
	result := FacebookDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: content, Settings: fbSettings()})
	assert.True(t, photosCalled)
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, "555_77", result.PostId)
}
