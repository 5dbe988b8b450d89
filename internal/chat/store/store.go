package store

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lk2023060901/copilot-chat/internal/chat/transport"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
)

// ErrorThreadID is the reserved pseudo-thread that collects errors arriving
// before any thread exists (e.g. a failed threads.create).
const ErrorThreadID = "error"

// ErrorInfo is the payload of the OnError callback.
type ErrorInfo struct {
	Message  string
	Code     string
	ThreadID string
}

// Callbacks are optional hooks into the conversation lifecycle. They are
// invoked outside the store lock; calling back into the store is safe.
type Callbacks struct {
	OnThreadCreated   func(*types.Thread)
	OnThreadStarted   func(threadID string)
	OnThreadItemAdded func(*types.ThreadItem)
	OnResponseEnd     func(threadID string)
	OnMessageSent     func(text string, attachments []types.AttachmentMeta)
	OnError           func(ErrorInfo)
}

type assistantRef struct {
	threadID string
	itemID   string
}

type lastSend struct {
	text        string
	attachments []types.AttachmentMeta
}

// Store owns all conversation state: threads, their ordered items, and the
// ephemeral streaming state of the single in-flight request. All mutation
// goes through Apply or the exported operations. Items and threads are
// never mutated once stored; folds replace the slice entry with an updated
// copy, so pointers returned by the accessors are stable snapshots safe to
// read concurrently with the stream goroutine.
type Store struct {
	mu sync.Mutex

	tr  transport.Transport
	log *logger.Logger
	cb  Callbacks

	threads []*types.Thread
	items   map[string][]*types.ThreadItem

	// activeThreadID is what the user is looking at; streamingThreadID is
	// where stream events land. They diverge when the user navigates away
	// mid-stream, so they are tracked separately.
	activeThreadID    string
	streamingThreadID string

	streaming        bool
	hasReceivedEvent bool
	progress         *types.ProgressUpdate
	currentRequest   *types.Request
	cancelStream     transport.CancelFunc

	streamingAssistant *assistantRef
	lastMessage        *lastSend

	// activeTask tracks, per thread, the most recently appended in-progress
	// task. Eligibility is revoked when that task id is replaced.
	activeTask map[string]string

	subs []chan struct{}
}

// New creates a store bound to a transport.
func New(tr transport.Transport, log *logger.Logger, cb Callbacks) *Store {
	if log == nil {
		log = logger.L()
	}
	return &Store{
		tr:         tr,
		log:        log,
		cb:         cb,
		items:      make(map[string][]*types.ThreadItem),
		activeTask: make(map[string]string),
	}
}

// Subscribe returns a channel that receives a signal after every state
// change. The channel is never closed; slow receivers drop signals rather
// than block the fold.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Threads returns the thread list, most recent first.
func (s *Store) Threads() []*types.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

// ActiveThreadID returns the selected thread id, empty when none.
func (s *Store) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeThreadID
}

// ActiveThread returns the selected thread, nil when none.
func (s *Store) ActiveThread() *types.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findThreadLocked(s.activeThreadID)
}

// Items returns the ordered items of a thread.
func (s *Store) Items(threadID string) []*types.ThreadItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.ThreadItem, len(s.items[threadID]))
	copy(out, s.items[threadID])
	return out
}

// ActiveItems returns the items of the selected thread.
func (s *Store) ActiveItems() []*types.ThreadItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.ThreadItem, len(s.items[s.activeThreadID]))
	copy(out, s.items[s.activeThreadID])
	return out
}

// IsStreaming reports whether a request is in flight.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// HasReceivedEvent reports whether the current (or last) stream produced
// at least one content event.
func (s *Store) HasReceivedEvent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasReceivedEvent
}

// Progress returns the ephemeral progress line, nil when cleared.
func (s *Store) Progress() *types.ProgressUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress == nil {
		return nil
	}
	p := *s.progress
	return &p
}

// ActiveTaskID returns the id of the task currently eligible for the
// in-progress marker in the given thread, empty when none.
func (s *Store) ActiveTaskID(threadID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTask[threadID]
}

// patchThreadTitleLocked swaps in a retitled copy of the thread so thread
// pointers already handed to readers stay frozen snapshots.
func (s *Store) patchThreadTitleLocked(id string, title *string) {
	for i, th := range s.threads {
		if th.ID == id {
			updated := *th
			updated.Title = title
			s.threads[i] = &updated
			return
		}
	}
}

func (s *Store) findThreadLocked(id string) *types.Thread {
	for _, th := range s.threads {
		if th.ID == id {
			return th
		}
	}
	return nil
}

func generateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
