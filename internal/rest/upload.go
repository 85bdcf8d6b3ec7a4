package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// UploadKind selects which MIME families an upload may carry.
type UploadKind string

const (
	UploadImage UploadKind = "image"
	UploadFile  UploadKind = "file"
)

// UploadLimits bounds what may be uploaded.
type UploadLimits struct {
	MaxImageBytes int64
	MaxFileBytes  int64
	// Presigned enables the direct-to-storage path. The proxied multipart
	// upload is always available as the fallback.
	Presigned bool
}

func (l UploadLimits) withDefaults() UploadLimits {
	if l.MaxImageBytes <= 0 {
		l.MaxImageBytes = 10 << 20
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = 50 << 20
	}
	return l
}

// blockedFileTypes are never accepted as generic file uploads.
var blockedFileTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-executable",
	"application/x-elf",
	"application/x-mach-binary",
}

// Uploaded describes a stored file, ready to be referenced by a message.
type Uploaded struct {
	FileURL      string `json:"file_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type"`
}

type presignResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// ValidateUpload checks size and sniffed MIME type for kind and returns
// the detected type. No network call is made.
func (c *Client) ValidateUpload(kind UploadKind, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrValidation, name)
	}
	limit := c.upload.MaxFileBytes
	if kind == UploadImage {
		limit = c.upload.MaxImageBytes
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrValidation, name, len(data), limit)
	}

	mt := mimetype.Detect(data)
	switch kind {
	case UploadImage:
		if !strings.HasPrefix(mt.String(), "image/") {
			return "", fmt.Errorf("%w: %s is %s, not an image", ErrValidation, name, mt.String())
		}
	default:
		for _, blocked := range blockedFileTypes {
			if mt.Is(blocked) {
				return "", fmt.Errorf("%w: %s has unsupported type %s", ErrValidation, name, mt.String())
			}
		}
	}
	return mt.String(), nil
}

// Upload stores a file. When presigned uploads are enabled it first asks
// for a presigned URL and PUTs the bytes directly; any failure on that
// path falls back to the backend-proxied multipart upload.
func (c *Client) Upload(ctx context.Context, kind UploadKind, conversationID, name string, data []byte) (Uploaded, error) {
	mimeType, err := c.ValidateUpload(kind, name, data)
	if err != nil {
		return Uploaded{}, err
	}

	if c.upload.Presigned {
		up, err := c.uploadPresigned(ctx, conversationID, name, mimeType, data)
		if err == nil {
			return up, nil
		}
		if ctx.Err() != nil {
			return Uploaded{}, ctx.Err()
		}
		c.logger.Warn("presigned upload failed, using proxied upload",
			zap.String("file", name),
			zap.Error(err),
		)
	}
	return c.uploadProxied(ctx, kind, conversationID, name, mimeType, data)
}

func (c *Client) uploadPresigned(ctx context.Context, conversationID, name, mimeType string, data []byte) (Uploaded, error) {
	var ps presignResponse
	body := map[string]any{
		"conversation_id": conversationID,
		"file_name":       name,
		"content_type":    mimeType,
		"file_size":       len(data),
	}
	if err := c.do(ctx, http.MethodPost, "/uploads/presign", nil, body, &ps); err != nil {
		return Uploaded{}, fmt.Errorf("presign: %w", err)
	}
	if ps.UploadURL == "" || ps.FileURL == "" {
		return Uploaded{}, errors.New("presign: empty upload url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ps.UploadURL, bytes.NewReader(data))
	if err != nil {
		return Uploaded{}, fmt.Errorf("prepare object put: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = int64(len(data))
	resp, err := c.http.Do(req)
	if err != nil {
		return Uploaded{}, fmt.Errorf("object put: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Uploaded{}, fmt.Errorf("object put: status %d", resp.StatusCode)
	}
	return Uploaded{FileURL: ps.FileURL, FileName: name, FileSize: int64(len(data)), MimeType: mimeType}, nil
}

func (c *Client) uploadProxied(ctx context.Context, kind UploadKind, conversationID, name, mimeType string, data []byte) (Uploaded, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("conversation_id", conversationID)
	_ = w.WriteField("kind", string(kind))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return Uploaded{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Uploaded{}, fmt.Errorf("build multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return Uploaded{}, fmt.Errorf("build multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/uploads", nil), &buf)
	if err != nil {
		return Uploaded{}, fmt.Errorf("prepare upload: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out Uploaded
	if err := c.send(req, &out); err != nil {
		return Uploaded{}, err
	}
	if out.FileName == "" {
		out.FileName = name
	}
	if out.MimeType == "" {
		out.MimeType = mimeType
	}
	if out.FileSize == 0 {
		out.FileSize = int64(len(data))
	}
	return out, nil
}
