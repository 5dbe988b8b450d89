package attachment

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lk2023060901/copilot-chat/internal/chat/transport"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"go.uber.org/zap"
)

const fallbackMimeType = "application/octet-stream"

// File is the material of one upload: a name, its byte size, and a reader
// over the content. The reader is consumed exactly once.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Reader   io.Reader
}

// ProgressFunc receives upload progress in percent (0..100).
type ProgressFunc func(progress float64)

// Client implements the two-phase attachment protocol: metadata creation
// through the chat endpoint, then a raw multipart POST of the bytes to the
// server-issued upload URL. It is independent of the streaming transport.
type Client struct {
	tr     transport.Transport
	upload *http.Client
	log    *logger.Logger
}

// NewClient creates an attachment client that reuses the protocol
// transport for create/delete calls.
func NewClient(tr transport.Transport, log *logger.Logger) *Client {
	if log == nil {
		log = logger.L()
	}
	return &Client{
		tr:     tr,
		upload: &http.Client{Timeout: 5 * time.Minute},
		log:    log,
	}
}

// Create registers attachment metadata server-side and returns the
// server-assigned id plus the upload URL for phase two.
func (c *Client) Create(ctx context.Context, name string, size int64, mimeType string) (*types.AttachmentsCreateResponse, error) {
	if mimeType == "" {
		mimeType = fallbackMimeType
	}

	var resp types.AttachmentsCreateResponse
	err := c.tr.Call(ctx, &types.Request{
		Type:   types.RequestAttachmentsCreate,
		Params: types.AttachmentsCreateParams{Name: name, Size: size, MimeType: mimeType},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	return &resp, nil
}

// UploadBytes streams the file content to the upload URL as a
// multipart/form-data "file" field, reporting byte-count progress.
func (c *Client) UploadBytes(ctx context.Context, uploadURL string, file File, onProgress ProgressFunc) error {
	reader := file.Reader
	if onProgress != nil && file.Size > 0 {
		reader = &progressReader{r: file.Reader, total: file.Size, onProgress: onProgress}
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("file", file.Name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, reader); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.upload.Do(req)
	if err != nil {
		return fmt.Errorf("upload bytes: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

// Delete removes a previously created attachment. Callers tolerate
// failure by logging; the protocol does not require the delete to stick.
func (c *Client) Delete(ctx context.Context, attachmentID string) error {
	err := c.tr.Call(ctx, &types.Request{
		Type:   types.RequestAttachmentsDelete,
		Params: types.AttachmentsDeleteParams{AttachmentID: attachmentID},
	}, nil)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// Upload runs both phases and returns the phase-one response.
func (c *Client) Upload(ctx context.Context, file File, onProgress ProgressFunc) (*types.AttachmentsCreateResponse, error) {
	created, err := c.Create(ctx, file.Name, file.Size, file.MimeType)
	if err != nil {
		return nil, err
	}

	c.log.Debug("attachment created",
		zap.String("id", created.ID),
		zap.String("name", file.Name),
		zap.Int64("size", file.Size),
	)

	if err := c.UploadBytes(ctx, created.UploadURL, file, onProgress); err != nil {
		return nil, err
	}
	return created, nil
}

// progressReader reports cumulative read progress as a percentage.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onProgress(float64(p.read) / float64(p.total) * 100)
	}
	return n, err
}
