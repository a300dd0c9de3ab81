package publisherdrivers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	records "github.com/nplanner/smm-publisher/dal/records/v1"
	"github.com/stretchr/testify/assert"
)

func vkSettings(groupId string) records.PlatformSettings {
	return records.PlatformSettings{
		VkAccessToken: "vk-token",
		VkGroupId:     groupId,
	}
}

func newVkServer(t *testing.T, handler http.HandlerFunc) func() {
	t.Helper()
	server := httptest.NewServer(handler)
	prevBase := vkApiBase
	vkApiBase = server.URL
	return func() {
		vkApiBase = prevBase
		server.Close()
	}
}

func TestVkResolveOwnerId(t *testing.T) {
	driver := VkDriver{}
	cases := []struct {
		groupId  string
		expected int64
	}{
		{"123", -123},
		{"club123", -123},
		{"-123", -123},
	}
	for _, tc := range cases {
		ownerId, err := driver.resolveOwnerId(tc.groupId)
		assert.Nil(t, err, "groupId: %s", tc.groupId)
		assert.Equal(t, tc.expected, ownerId)
	}
	_, err := driver.resolveOwnerId("not-a-group")
	assert.NotNil(t, err)
}

func TestVkTextOnlyWallPost(t *testing.T) {
	setupTest()
	teardown := newVkServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/wall.post", r.URL.Path)
		r.ParseForm()
		assert.Equal(t, "-123", r.Form.Get("owner_id"))
		assert.Equal(t, "5.131", r.Form.Get("v"))
		assert.Equal(t, "*bold* text", r.Form.Get("message"))
		fmt.Fprint(w, `{"response":{"post_id":42}}`)
	})
	defer teardown()

	result := VkDriver{}.Publish(PublishCommand{
		CorrelationID: "test",
		Content:       testContent("<b>bold</b> text"),
		Settings:      vkSettings("club123"),
	})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, "42", result.PostId)
	assert.Equal(t, "https://vk.com/wall-123_42", result.PostUrl)
}

func TestVkImageUploadFlow(t *testing.T) {
	setupTest()
	mediaServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer mediaServer.Close()

	var uploadServer *httptest.Server
	uploadServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseMultipartForm(1 << 20)
		assert.Nil(t, err)
		_, _, err = r.FormFile("photo")
		assert.Nil(t, err)
		fmt.Fprint(w, `{"server":101,"photo":"payload","hash":"h1"}`)
	}))
	defer uploadServer.Close()

	teardown := newVkServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.URL.Path {
		case "/method/photos.getWallUploadServer":
			assert.Equal(t, "123", r.Form.Get("group_id"))
			fmt.Fprintf(w, `{"response":{"upload_url":"%s/upload"}}`, uploadServer.URL)
		case "/method/photos.saveWallPhoto":
			assert.Equal(t, "payload", r.Form.Get("photo"))
			assert.Equal(t, "h1", r.Form.Get("hash"))
			fmt.Fprint(w, `{"response":[{"id":777,"owner_id":-123}]}`)
		case "/method/wall.post":
			assert.Equal(t, "photo-123_777", r.Form.Get("attachments"))
			fmt.Fprint(w, `{"response":{"post_id":43}}`)
		default:
			t.Errorf("unexpected call: %s", r.URL.Path)
		}
	})
	defer teardown()

	content := testContent("with image")
	content.ContentType = records.CONTENT_IMAGE
	content.ImageUrl = mediaServer.URL + "/img.jpg"
	result := VkDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: content, Settings: vkSettings("123")})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
	assert.Equal(t, "https://vk.com/wall-123_43", result.PostUrl)
}

func TestVkUploadFailureFallsBackToText(t *testing.T) {
	setupTest()
	var wallPosted bool
	teardown := newVkServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.URL.Path {
		case "/method/photos.getWallUploadServer":
			fmt.Fprint(w, `{"error":{"error_code":100,"error_msg":"one of the parameters is missing"}}`)
		case "/method/wall.post":
			wallPosted = true
			assert.Empty(t, r.Form.Get("attachments"))
			fmt.Fprint(w, `{"response":{"post_id":44}}`)
		}
	})
	defer teardown()

	content := testContent("text survives")
	content.ContentType = records.CONTENT_IMAGE
	content.ImageUrl = "https://cdn.example.com/gone.jpg"
	result := VkDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: content, Settings: vkSettings("123")})
	assert.True(t, wallPosted)
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
}

func TestVkAuthErrorClassified(t *testing.T) {
	setupTest()
	teardown := newVkServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`)
	})
	defer teardown()

	result := VkDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: testContent("hi"), Settings: vkSettings("123")})
	assert.Equal(t, records.PUB_FAILED, result.Status)
	assert.Contains(t, result.Error, BAD_REQUEST_PROFILE_CODE)
}

func TestVkVideoLinkAppendedToMessage(t *testing.T) {
	setupTest()
	teardown := newVkServer(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.URL.Path != "/method/wall.post" {
			t.Errorf("unexpected call: %s", r.URL.Path)
			return
		}
		assert.True(t, strings.HasSuffix(r.Form.Get("message"), "https://cdn.example.com/v.mp4"))
		fmt.Fprint(w, `{"response":{"post_id":45}}`)
	})
	defer teardown()

	content := testContent("watch this")
	content.ContentType = records.CONTENT_VIDEO
	content.VideoUrl = "https://cdn.example.com/v.mp4"
	result := VkDriver{}.Publish(PublishCommand{
		CorrelationID: "test", Content: content, Settings: vkSettings("123")})
	assert.Equal(t, records.PUB_PUBLISHED, result.Status)
}
