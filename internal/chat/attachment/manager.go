package attachment

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"github.com/lk2023060901/copilot-chat/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// ManagerCallbacks observe the attachment lifecycle.
type ManagerCallbacks struct {
	OnAdded   func(types.AttachmentMeta)
	OnRemoved func(attachmentID string)
	OnChanged func()
}

type upload struct {
	meta   types.AttachmentMeta
	cancel context.CancelFunc
}

// Manager owns the composer's attachments. Each added file is uploaded on
// the worker pool through the two-phase protocol, moving its entry from
// pending through uploading to uploaded (with the server id substituted
// for the temporary local one) or error. Uploads run independently of the
// message stream and of one another; each carries its own cancel scope.
type Manager struct {
	mu      sync.Mutex
	client  *Client
	pool    *workerpool.Pool
	log     *logger.Logger
	cb      ManagerCallbacks
	order   []string
	entries map[string]*upload
}

// NewManager creates a manager running uploads on the given pool.
func NewManager(client *Client, pool *workerpool.Pool, log *logger.Logger, cb ManagerCallbacks) *Manager {
	if log == nil {
		log = logger.L()
	}
	return &Manager{
		client:  client,
		pool:    pool,
		log:     log,
		cb:      cb,
		entries: make(map[string]*upload),
	}
}

// Add registers a file, immediately visible as pending, and schedules its
// upload. Returns the temporary local id.
func (m *Manager) Add(file File, localPreviewURL string) (string, error) {
	tempID := "temp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	ctx, cancel := context.WithCancel(context.Background())
	entry := &upload{
		meta: types.AttachmentMeta{
			ID:              tempID,
			Name:            file.Name,
			Size:            file.Size,
			MimeType:        file.MimeType,
			LocalPreviewURL: localPreviewURL,
			UploadStatus:    types.UploadStatusPending,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.order = append(m.order, tempID)
	m.entries[tempID] = entry
	m.mu.Unlock()
	m.changed()

	err := m.pool.Submit(func() { m.run(ctx, tempID, file) })
	if err != nil {
		cancel()
		m.setStatus(tempID, types.UploadStatusError)
		return tempID, err
	}
	return tempID, nil
}

func (m *Manager) run(ctx context.Context, tempID string, file File) {
	m.setStatus(tempID, types.UploadStatusUploading)

	resp, err := m.client.Upload(ctx, file, func(progress float64) {
		m.setProgress(tempID, progress)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		m.log.Error("attachment upload failed",
			zap.String("id", tempID),
			zap.String("name", file.Name),
			zap.Error(err),
		)
		m.setStatus(tempID, types.UploadStatusError)
		return
	}

	m.mu.Lock()
	entry, ok := m.entries[tempID]
	if !ok {
		// Removed while uploading; best effort cleanup of the server copy.
		m.mu.Unlock()
		if err := m.client.Delete(context.Background(), resp.ID); err != nil {
			m.log.Warn("failed to delete orphaned attachment", zap.String("id", resp.ID), zap.Error(err))
		}
		return
	}

	delete(m.entries, tempID)
	entry.meta.ID = resp.ID
	entry.meta.ServerPreviewURL = resp.PreviewURL
	entry.meta.UploadStatus = types.UploadStatusUploaded
	entry.meta.UploadProgress = 100
	m.entries[resp.ID] = entry
	for i, id := range m.order {
		if id == tempID {
			m.order[i] = resp.ID
		}
	}
	meta := entry.meta
	m.mu.Unlock()

	if m.cb.OnAdded != nil {
		m.cb.OnAdded(meta)
	}
	m.changed()
}

// Remove drops an attachment. A running upload is cancelled; an uploaded
// one is deleted server-side, tolerating failure by logging. There is no
// automatic retry: a failed attachment is removed and re-attached by hand.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	entry, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
		for i, known := range m.order {
			if known == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	entry.cancel()
	if entry.meta.UploadStatus == types.UploadStatusUploaded {
		if err := m.client.Delete(ctx, id); err != nil {
			m.log.Warn("failed to delete attachment", zap.String("id", id), zap.Error(err))
		}
	}

	if m.cb.OnRemoved != nil {
		m.cb.OnRemoved(id)
	}
	m.changed()
}

// List returns all attachments in insertion order.
func (m *Manager) List() []types.AttachmentMeta {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.AttachmentMeta, 0, len(m.order))
	for _, id := range m.order {
		if entry, ok := m.entries[id]; ok {
			out = append(out, entry.meta)
		}
	}
	return out
}

// Ready returns only the attachments eligible to be sent.
func (m *Manager) Ready() []types.AttachmentMeta {
	var out []types.AttachmentMeta
	for _, meta := range m.List() {
		if meta.Uploaded() {
			out = append(out, meta)
		}
	}
	return out
}

// Clear cancels and forgets every attachment, typically after a send.
func (m *Manager) Clear() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*upload)
	m.order = nil
	m.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
	m.changed()
}

func (m *Manager) setStatus(id string, status string) {
	m.mu.Lock()
	if entry, ok := m.entries[id]; ok {
		entry.meta.UploadStatus = status
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Manager) setProgress(id string, progress float64) {
	m.mu.Lock()
	if entry, ok := m.entries[id]; ok {
		entry.meta.UploadProgress = progress
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Manager) changed() {
	if m.cb.OnChanged != nil {
		m.cb.OnChanged()
	}
}
