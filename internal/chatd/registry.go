package chatd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
)

// Registry holds the server-side conversation state: threads and their
// items, newest thread first on listing.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*types.Thread
	items   map[string][]types.ThreadItem
	created map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		threads: make(map[string]*types.Thread),
		items:   make(map[string][]types.ThreadItem),
		created: make(map[string]time.Time),
	}
}

func newShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewID mints an id with the given prefix, e.g. "th" or "msg".
func (r *Registry) NewID(prefix string) string {
	return prefix + "_" + newShortID()
}

// CreateThread registers a new thread and returns it.
func (r *Registry) CreateThread() *types.Thread {
	now := time.Now().UTC()
	thread := &types.Thread{
		ID:        r.NewID("th"),
		CreatedAt: now,
		Status:    types.ThreadStatus{Type: types.ThreadStatusActive},
	}

	r.mu.Lock()
	r.threads[thread.ID] = thread
	r.items[thread.ID] = nil
	r.created[thread.ID] = now
	r.mu.Unlock()

	return thread
}

// Thread returns a copy of the thread, or an error when unknown.
func (r *Registry) Thread(id string) (types.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread, ok := r.threads[id]
	if !ok {
		return types.Thread{}, fmt.Errorf("thread %s not found", id)
	}
	return *thread, nil
}

// SetTitle updates the thread title.
func (r *Registry) SetTitle(id, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if thread, ok := r.threads[id]; ok {
		thread.Title = &title
	}
}

// AppendItem records a finished item on a thread.
func (r *Registry) AppendItem(threadID string, item types.ThreadItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[threadID] = append(r.items[threadID], item)
}

// Items returns a copy of the thread's items in arrival order.
func (r *Registry) Items(threadID string) []types.ThreadItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ThreadItem(nil), r.items[threadID]...)
}

// List returns up to limit threads, ordered by creation time. Order is
// "asc" or "desc"; desc puts the newest thread first.
func (r *Registry) List(limit int, order string) []types.ThreadListItem {
	r.mu.RLock()
	all := make([]*types.Thread, 0, len(r.threads))
	for _, thread := range r.threads {
		all = append(all, thread)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if order == "asc" {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]types.ThreadListItem, 0, len(all))
	for _, thread := range all {
		out = append(out, types.ThreadListItem{
			ID:        thread.ID,
			Title:     thread.Title,
			CreatedAt: thread.CreatedAt,
			Status:    thread.Status,
		})
	}
	return out
}
