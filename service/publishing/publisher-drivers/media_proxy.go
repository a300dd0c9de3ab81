package publisherdrivers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	config "github.com/nplanner/smm-publisher/configuration"
	log "github.com/sirupsen/logrus"
)

// CMS media URLs are often unreachable from the platforms' fetchers, so
// drivers download the bytes themselves and re-upload via multipart.
// Every temp file is caller-owned: callers defer RemoveTempFile on all
// exit paths.

func mediaHttpClient() *http.Client {
	return &http.Client{
		Timeout: time.Duration(config.GetEnvConfigs().MediaDownloadTimeoutSec) * time.Second,
	}
}

// FetchToTempFile downloads url into a uuid-named file under the OS temp
// dir and returns its path.
func FetchToTempFile(correlationId string, url string) (string, error) {
	resp, err := mediaHttpClient().Get(url)
	if err != nil {
		log.Printf("correlationID: %s error fetching media %s: %s", correlationId, url, err)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch %s: status %d", url, resp.StatusCode)
	}

	ext := path.Ext(strings.SplitN(path.Base(url), "?", 2)[0])
	tempPath := filepath.Join(os.TempDir(), uuid.New().String()+ext)
	file, err := os.Create(tempPath)
	if err != nil {
		log.Printf("correlationID: %s error creating temp file: %s", correlationId, err)
		return "", err
	}
	defer file.Close()

	_, err = io.Copy(file, resp.Body)
	if err != nil {
		log.Printf("correlationID: %s error writing temp file %s: %s", correlationId, tempPath, err)
		os.Remove(tempPath)
		return "", err
	}
	return tempPath, nil
}

func RemoveTempFile(correlationId string, tempPath string) {
	if tempPath == "" {
		return
	}
	err := os.Remove(tempPath)
	if err != nil && !os.IsNotExist(err) {
		log.Printf("correlationID: %s error cleaning-up file %s: %s", correlationId, tempPath, err)
	}
}

type multipartFile struct {
	fieldName string
	filePath  string
}

// postMultipart uploads local files plus form fields in one request and
// returns the raw response body.
func postMultipart(url string, fields map[string]string, files []multipartFile) ([]byte, error) {
	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)

	go func() {
		var err error
		defer func() { pipeWriter.CloseWithError(err) }()
		for key, value := range fields {
			if err = writer.WriteField(key, value); err != nil {
				return
			}
		}
		for _, f := range files {
			var part io.Writer
			part, err = writer.CreateFormFile(f.fieldName, filepath.Base(f.filePath))
			if err != nil {
				return
			}
			var src *os.File
			src, err = os.Open(f.filePath)
			if err != nil {
				return
			}
			_, err = io.Copy(part, src)
			src.Close()
			if err != nil {
				return
			}
		}
		err = writer.Close()
	}()

	resp, err := mediaHttpClient().Post(url, writer.FormDataContentType(), pipeReader)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("multipart upload to %s: status %d: %s", url, resp.StatusCode, string(body))
	}
	return body, nil
}
