// Package storeclient moves image bytes into the object store through the
// presigned-location exchange.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"proteus/internal/api"
	"proteus/internal/domain"
)

// Client uploads and resolves objects via presigned URLs. The presign
// exchange goes through the authenticated session; the byte transfer itself
// hits the presigned host directly, without session credentials.
type Client struct {
	session  *api.Session
	transfer *http.Client
}

// New constructs a store client sharing the session's HTTP client for
// transfers.
func New(session *api.Session) *Client {
	return &Client{session: session, transfer: session.HTTPClient()}
}

type presignUploadRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

type presignUploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// PresignUpload requests a time-limited write location for the given file.
func (c *Client) PresignUpload(ctx context.Context, fileName, fileType string) (url, key string, err error) {
	var resp presignUploadResponse
	err = c.session.PostJSON(ctx, "/images/presignedUploadUrl", presignUploadRequest{
		FileName: fileName,
		FileType: fileType,
	}, &resp)
	if err != nil {
		return "", "", fmt.Errorf("storeclient: %v: %w", err, domain.ErrPresignRequestFailed)
	}
	if resp.URL == "" || resp.Key == "" {
		return "", "", fmt.Errorf("storeclient: presign response missing url or key: %w", domain.ErrPresignRequestFailed)
	}
	return resp.URL, resp.Key, nil
}

// PresignDownload resolves a content key to a time-limited read URL. The
// server answers either {"url": "..."} or a bare JSON string.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	raw, err := c.session.Do(ctx, http.MethodPost, "/images/presignedDownloadUrl", nil, map[string]string{"key": key})
	if err != nil {
		return "", fmt.Errorf("storeclient: %v: %w", err, domain.ErrPresignRequestFailed)
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return obj.URL, nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
		return plain, nil
	}
	return "", fmt.Errorf("storeclient: unexpected download url payload %q", strings.TrimSpace(string(raw)))
}

// Upload presigns a write location and transfers the bytes to it, returning
// the content key the server designated. A fresh presign is requested every
// call, so retries are safe; a retried upload stores a second object, which
// is an accepted cost.
func (c *Client) Upload(ctx context.Context, data []byte, fileName, mediaType string) (string, error) {
	url, key, err := c.PresignUpload(ctx, fileName, mediaType)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storeclient: build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", mediaType)
	req.ContentLength = int64(len(data))

	resp, err := c.transfer.Do(req)
	if err != nil {
		return "", fmt.Errorf("storeclient: put %s: %v: %w", fileName, err, domain.ErrTransferFailed)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storeclient: put %s: status %d: %w", fileName, resp.StatusCode, domain.ErrTransferFailed)
	}
	return key, nil
}
