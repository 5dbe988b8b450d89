package store

import (
	"context"
	"strings"

	"github.com/lk2023060901/copilot-chat/internal/chat/transport"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"go.uber.org/zap"
)

// SendMessage sends user text plus any uploaded attachments to the active
// thread. A blank message with no attachments is a no-op. The first message
// of a thread issues threads.create; later ones threads.add_user_message.
func (s *Store) SendMessage(text string, attachments []types.AttachmentMeta) {
	s.submitMessage(s.ActiveThreadID(), text, attachments)

	if s.cb.OnMessageSent != nil {
		s.cb.OnMessageSent(text, attachments)
	}
}

func (s *Store) submitMessage(threadID, text string, attachments []types.AttachmentMeta) {
	trimmed := strings.TrimSpace(text)

	var ids []string
	for i := range attachments {
		if attachments[i].Uploaded() {
			ids = append(ids, attachments[i].ID)
		}
	}

	if trimmed == "" && len(ids) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentRequest != nil {
		s.log.Warn("send ignored: a stream is already in flight",
			zap.String("type", s.currentRequest.Type))
		return
	}

	s.lastMessage = &lastSend{text: trimmed, attachments: attachments}

	input := types.NewUserMessageInput(trimmed, ids)

	// Continue the thread only when it already holds at least one item;
	// otherwise the server creates the thread from this message.
	var req *types.Request
	if threadID != "" && len(s.items[threadID]) > 0 {
		req = &types.Request{
			Type:   types.RequestThreadsAddUserMessage,
			Params: types.ThreadsAddUserMessageParams{Input: input, ThreadID: threadID},
		}
	} else {
		req = &types.Request{
			Type:   types.RequestThreadsCreate,
			Params: types.ThreadsCreateParams{Input: input},
		}
	}

	if threadID != "" {
		s.streamingThreadID = threadID
	}

	s.startStreamLocked(req)
}

// SendWidgetAction issues a threads.custom_action against the given thread,
// which need not be the selected one: widget actions can fire from history.
func (s *Store) SendWidgetAction(threadID, itemID string, action types.ActionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentRequest != nil {
		s.log.Warn("widget action ignored: a stream is already in flight",
			zap.String("thread_id", threadID))
		return
	}

	s.streamingThreadID = threadID

	s.startStreamLocked(&types.Request{
		Type: types.RequestThreadsCustomAction,
		Params: types.ThreadsCustomActionParams{
			ItemID:   itemID,
			Action:   action,
			ThreadID: threadID,
		},
	})
}

// startStreamLocked marks the request in flight and opens the stream.
func (s *Store) startStreamLocked(req *types.Request) {
	s.streaming = true
	s.hasReceivedEvent = false
	s.currentRequest = req

	cancel, err := s.tr.Stream(context.Background(), req, transport.StreamHandler{
		OnEvent:    s.Apply,
		OnError:    s.handleStreamError,
		OnComplete: s.handleStreamComplete,
	})
	if err != nil {
		s.log.Error("failed to open stream", zap.String("type", req.Type), zap.Error(err))
		s.streaming = false
		s.currentRequest = nil
		return
	}
	s.cancelStream = cancel
	s.notifyLocked()
}

// CancelStreaming aborts the in-flight stream, if any. Content already
// folded stays; a partially streamed assistant message remains visible,
// frozen. Safe to call repeatedly and when idle.
func (s *Store) CancelStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}

	s.streaming = false
	s.hasReceivedEvent = false
	s.currentRequest = nil
	s.streamingAssistant = nil
	s.streamingThreadID = ""
	s.progress = nil
	s.notifyLocked()
}

// RetryLastMessage re-issues the last user-initiated send against the
// currently active thread. No-op when nothing was ever sent.
func (s *Store) RetryLastMessage() {
	s.mu.Lock()
	last := s.lastMessage
	active := s.activeThreadID
	s.mu.Unlock()

	if last == nil {
		return
	}
	s.submitMessage(active, last.text, last.attachments)
}

// CreateThread clears the active selection so the next send creates a new
// thread server-side. With an initial message it sends immediately.
func (s *Store) CreateThread(initialMessage string) {
	s.mu.Lock()
	s.activeThreadID = ""
	s.hasReceivedEvent = false
	s.notifyLocked()
	s.mu.Unlock()

	if initialMessage != "" {
		s.submitMessage("", initialMessage, nil)
	}
}

// SelectThread makes a thread active, fetching its detail when the item
// cache is cold. A failed fetch is logged and leaves prior state intact.
func (s *Store) SelectThread(ctx context.Context, threadID string) {
	s.mu.Lock()
	s.activeThreadID = threadID
	cached := len(s.items[threadID]) > 0
	s.notifyLocked()
	s.mu.Unlock()

	if cached {
		return
	}

	var detail types.ThreadDetailResponse
	err := s.tr.Call(ctx, &types.Request{
		Type:   types.RequestThreadsGetByID,
		Params: types.ThreadsGetByIDParams{ThreadID: threadID},
	}, &detail)
	if err != nil {
		s.log.Error("failed to load thread detail",
			zap.String("thread_id", threadID), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.patchThreadTitleLocked(threadID, detail.Title)
	if len(detail.Items.Data) > 0 {
		s.items[threadID] = detail.Items.Data
	}
	s.notifyLocked()
	s.mu.Unlock()
}

// LoadThreads fetches the thread index and seeds the thread list. When no
// thread is active the most recent one is selected. Failure is logged and
// leaves state untouched.
func (s *Store) LoadThreads(ctx context.Context, limit int, order string) error {
	if limit <= 0 {
		limit = 9999
	}
	if order == "" {
		order = "desc"
	}

	var list types.ThreadListResponse
	err := s.tr.Call(ctx, &types.Request{
		Type:   types.RequestThreadsList,
		Params: types.ThreadsListParams{Limit: limit, Order: order},
	}, &list)
	if err != nil {
		s.log.Error("failed to load threads", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads = make([]*types.Thread, 0, len(list.Data))
	for _, li := range list.Data {
		s.threads = append(s.threads, li.Thread())
	}
	if s.activeThreadID == "" && len(s.threads) > 0 {
		s.activeThreadID = s.threads[0].ID
	}
	s.notifyLocked()
	return nil
}

func (s *Store) handleStreamError(err error) {
	s.log.Error("stream failed", zap.Error(err))

	s.mu.Lock()
	s.streaming = false
	s.streamingAssistant = nil
	s.progress = nil
	s.currentRequest = nil
	s.cancelStream = nil
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Store) handleStreamComplete() {
	s.mu.Lock()
	s.streaming = false
	s.streamingAssistant = nil
	completed := s.streamingThreadID
	s.streamingThreadID = ""
	s.progress = nil
	s.currentRequest = nil
	s.cancelStream = nil
	s.notifyLocked()
	s.mu.Unlock()

	if s.cb.OnResponseEnd != nil && completed != "" {
		s.cb.OnResponseEnd(completed)
	}
}
