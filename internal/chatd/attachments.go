package chatd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"go.uber.org/zap"
)

type attachmentRecord struct {
	meta     types.AttachmentsCreateResponse
	size     int64
	received bool
}

// Attachments implements the server half of the two-phase upload:
// metadata registration first, then the byte upload against the issued
// URL. Content goes to the object store; metadata stays here.
type Attachments struct {
	mu      sync.Mutex
	store   ObjectStore
	log     *logger.Logger
	baseURL string
	maxSize int64
	records map[string]*attachmentRecord
}

func NewAttachments(store ObjectStore, baseURL string, maxSize int64, log *logger.Logger) *Attachments {
	if log == nil {
		log = logger.L()
	}
	return &Attachments{
		store:   store,
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSize: maxSize,
		records: make(map[string]*attachmentRecord),
	}
}

// Create registers metadata and issues the upload URL for phase two.
func (a *Attachments) Create(params types.AttachmentsCreateParams) (*types.AttachmentsCreateResponse, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("attachment name is required")
	}
	if a.maxSize > 0 && params.Size > a.maxSize {
		return nil, fmt.Errorf("attachment exceeds maximum size of %d bytes", a.maxSize)
	}

	id := "atc_" + newShortID()
	kind := "file"
	if strings.HasPrefix(params.MimeType, "image/") {
		kind = "image"
	}

	meta := types.AttachmentsCreateResponse{
		ID:        id,
		Name:      params.Name,
		MimeType:  params.MimeType,
		UploadURL: a.baseURL + "/chatkit/upload/" + id,
		Type:      kind,
	}
	if kind == "image" {
		meta.PreviewURL = a.baseURL + "/chatkit/attachments/" + id
	}

	a.mu.Lock()
	a.records[id] = &attachmentRecord{meta: meta, size: params.Size}
	a.mu.Unlock()

	a.log.Debug("attachment registered",
		zap.String("id", id),
		zap.String("name", params.Name),
		zap.Int64("size", params.Size),
	)
	return &meta, nil
}

// Receive stores the uploaded bytes for a registered attachment.
func (a *Attachments) Receive(ctx context.Context, id, contentType string, r io.Reader, size int64) error {
	a.mu.Lock()
	record, ok := a.records[id]
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("attachment %s not registered", id)
	}

	if contentType == "" {
		contentType = record.meta.MimeType
	}
	if err := a.store.Put(ctx, id, contentType, r, size); err != nil {
		return err
	}

	a.mu.Lock()
	record.received = true
	a.mu.Unlock()
	return nil
}

// Get returns the metadata for a registered attachment.
func (a *Attachments) Get(id string) (*types.AttachmentsCreateResponse, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	record, ok := a.records[id]
	if !ok {
		return nil, false
	}
	meta := record.meta
	return &meta, record.received
}

// Delete forgets the attachment and removes any stored content.
func (a *Attachments) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	record, ok := a.records[id]
	if ok {
		delete(a.records, id)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("attachment %s not found", id)
	}

	if record.received {
		if err := a.store.Delete(ctx, id); err != nil {
			a.log.Warn("failed to delete attachment content", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}
