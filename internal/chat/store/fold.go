package store

import (
	"time"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"go.uber.org/zap"
)

// Apply folds one stream event into the store. Events referencing unknown
// threads or items degrade to no-ops; the fold never panics on a
// well-formed event. Callbacks fire after the lock is released.
func (s *Store) Apply(event *types.StreamEvent) {
	var after []func()

	s.mu.Lock()
	switch event.Type {
	case types.EventThreadCreated:
		after = s.applyThreadCreatedLocked(event)
	case types.EventThreadUpdated:
		s.applyThreadUpdatedLocked(event)
	case types.EventThreadItemAdded:
		after = s.applyItemAddedLocked(event)
	case types.EventThreadItemUpdated:
		s.applyItemUpdatedLocked(event)
	case types.EventThreadItemDone:
		s.applyItemDoneLocked(event)
	case types.EventProgressUpdate:
		s.hasReceivedEvent = true
		s.progress = &types.ProgressUpdate{Icon: event.Icon, Text: event.Text}
	case types.EventStreamOptions:
		s.log.Debug("stream options", zap.ByteString("options", event.StreamOptions))
	case types.EventError:
		after = s.applyErrorLocked(event)
	default:
		s.log.Debug("ignoring unknown stream event", zap.String("type", event.Type))
	}
	s.notifyLocked()
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

func (s *Store) applyThreadCreatedLocked(event *types.StreamEvent) []func() {
	thread := event.Thread
	if thread == nil {
		return nil
	}

	// Insert at head, dropping any stale copy of the same thread.
	deduped := make([]*types.Thread, 0, len(s.threads)+1)
	deduped = append(deduped, thread)
	for _, th := range s.threads {
		if th.ID != thread.ID {
			deduped = append(deduped, th)
		}
	}
	s.threads = deduped

	s.activeThreadID = thread.ID
	s.streamingThreadID = thread.ID
	if s.items[thread.ID] == nil {
		s.items[thread.ID] = []*types.ThreadItem{}
	}

	var after []func()
	if s.cb.OnThreadCreated != nil {
		after = append(after, func() { s.cb.OnThreadCreated(thread) })
	}
	if s.cb.OnThreadStarted != nil {
		after = append(after, func() { s.cb.OnThreadStarted(thread.ID) })
	}
	return after
}

func (s *Store) applyThreadUpdatedLocked(event *types.StreamEvent) {
	if event.Thread == nil {
		return
	}
	// Only the title is patched; the rest of the thread is server state we
	// already hold.
	s.patchThreadTitleLocked(event.Thread.ID, event.Thread.Title)
}

func (s *Store) applyItemAddedLocked(event *types.StreamEvent) []func() {
	item := event.Item
	if item == nil {
		return nil
	}

	s.hasReceivedEvent = true

	switch item.Type {
	case types.ItemTypeAssistantMessage:
		item.Streaming = true
		s.streamingAssistant = &assistantRef{threadID: item.ThreadID, itemID: item.ID}
		s.items[item.ThreadID] = append(s.items[item.ThreadID], item)

	case types.ItemTypeTask:
		// A task arriving with an id we already hold replaces the earlier
		// entry in place, so loading tasks can transition to their final
		// form. Replacement revokes in-progress marker eligibility.
		if idx := indexOf(s.items[item.ThreadID], item.ID); idx >= 0 {
			s.items[item.ThreadID][idx] = item
			if s.activeTask[item.ThreadID] == item.ID {
				delete(s.activeTask, item.ThreadID)
			}
		} else {
			s.items[item.ThreadID] = append(s.items[item.ThreadID], item)
			if item.Task.InProgress() {
				s.activeTask[item.ThreadID] = item.ID
			}
		}

	default:
		s.items[item.ThreadID] = append(s.items[item.ThreadID], item)
	}

	s.progress = nil

	if s.cb.OnThreadItemAdded != nil {
		return []func(){func() { s.cb.OnThreadItemAdded(item) }}
	}
	return nil
}

func (s *Store) applyItemUpdatedLocked(event *types.StreamEvent) {
	if event.Update == nil || event.Update.Type != types.UpdateTextDelta {
		return
	}

	// Deltas are routed through the streaming-assistant pointer; without
	// one there is nothing to append to.
	ref := s.streamingAssistant
	if ref == nil {
		return
	}

	idx := indexOf(s.items[ref.threadID], ref.itemID)
	if idx < 0 {
		return
	}

	item := s.items[ref.threadID][idx]
	if item.Type != types.ItemTypeAssistantMessage || len(item.Content) == 0 {
		return
	}

	// Replace instead of mutating: pointers already handed to readers stay
	// frozen snapshots.
	updated := *item
	updated.Content = append([]types.AssistantContent(nil), item.Content...)
	updated.Content[0].Text += event.Update.Delta
	s.items[ref.threadID][idx] = &updated
}

func (s *Store) applyItemDoneLocked(event *types.StreamEvent) {
	item := event.Item
	if item == nil {
		return
	}

	if item.Type == types.ItemTypeAssistantMessage {
		item.Streaming = false
		if idx := indexOf(s.items[item.ThreadID], item.ID); idx >= 0 {
			s.items[item.ThreadID][idx] = item
		} else {
			// Done without a preceding added; keep the content anyway.
			s.items[item.ThreadID] = append(s.items[item.ThreadID], item)
		}
		s.streamingAssistant = nil
		return
	}

	// Other item types were already appended by thread.item.added; a
	// repeated done for the same id must not duplicate the slot.
	if indexOf(s.items[item.ThreadID], item.ID) < 0 {
		s.items[item.ThreadID] = append(s.items[item.ThreadID], item)
	}
}

func (s *Store) applyErrorLocked(event *types.StreamEvent) []func() {
	s.hasReceivedEvent = true

	// The error belongs to the thread that was streaming, not the one the
	// user is looking at. Fall back to the in-flight request, then to the
	// reserved error pseudo-thread.
	threadID := s.streamingThreadID
	if threadID == "" {
		threadID = s.activeThreadID
	}
	if threadID == "" && s.currentRequest != nil {
		if params, ok := s.currentRequest.Params.(types.ThreadsAddUserMessageParams); ok {
			threadID = params.ThreadID
		}
	}

	message := event.Message
	if message == "" {
		message = "An error occurred"
	}
	code := event.Code
	if code == "" {
		code = "custom"
	}

	errItem := &types.ThreadItem{
		ID:         generateID("err"),
		ThreadID:   threadID,
		CreatedAt:  time.Now().UTC(),
		Type:       types.ItemTypeError,
		Code:       code,
		Message:    &message,
		AllowRetry: event.AllowRetry,
		HTTPStatus: event.HTTPStatus,
	}

	if threadID == "" {
		// Error before any thread existed: file it under the reserved
		// pseudo-thread and force-select it so it is visible.
		errItem.ThreadID = ErrorThreadID
		s.items[ErrorThreadID] = []*types.ThreadItem{errItem}
		s.activeThreadID = ErrorThreadID
	} else {
		s.items[threadID] = append(s.items[threadID], errItem)
	}

	s.streaming = false
	s.streamingAssistant = nil
	s.progress = nil

	if s.cb.OnError != nil {
		info := ErrorInfo{Message: message, Code: event.Code, ThreadID: threadID}
		return []func(){func() { s.cb.OnError(info) }}
	}
	return nil
}

func indexOf(items []*types.ThreadItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
