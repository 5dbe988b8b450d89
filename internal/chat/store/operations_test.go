package store

import (
	"context"
	"sync"
	"testing"

	"github.com/lk2023060901/copilot-chat/internal/chat/transport"
	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records protocol traffic instead of hitting the network.
// Streams stay open until the test drives them through the handler.
type fakeTransport struct {
	mu        sync.Mutex
	streamed  []*types.Request
	called    []*types.Request
	handler   transport.StreamHandler
	canceled  int
	callReply func(req *types.Request, result any) error
}

func (f *fakeTransport) Stream(ctx context.Context, req *types.Request, h transport.StreamHandler) (transport.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed = append(f.streamed, req)
	f.handler = h
	return func() {
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
	}, nil
}

func (f *fakeTransport) Call(ctx context.Context, req *types.Request, result any) error {
	f.mu.Lock()
	reply := f.callReply
	f.called = append(f.called, req)
	f.mu.Unlock()

	if reply != nil {
		return reply(req, result)
	}
	return nil
}

func (f *fakeTransport) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamed)
}

func (f *fakeTransport) lastStreamed() *types.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamed) == 0 {
		return nil
	}
	return f.streamed[len(f.streamed)-1]
}

func (f *fakeTransport) finishStream() {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

func TestSendMessageCreatesThreadFirst(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendMessage("what is my balance", nil)

	req := tr.lastStreamed()
	require.NotNil(t, req)
	assert.Equal(t, types.RequestThreadsCreate, req.Type)

	params, ok := req.Params.(types.ThreadsCreateParams)
	require.True(t, ok)
	require.Len(t, params.Input.Content, 1)
	assert.Equal(t, "what is my balance", params.Input.Content[0].Text)
	assert.NotNil(t, params.Input.Attachments, "attachments key is always present")
	assert.True(t, s.IsStreaming())
}

func TestSendMessageContinuesPopulatedThread(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendMessage("first", nil)
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))
	tr.finishStream()

	s.SendMessage("second", nil)

	req := tr.lastStreamed()
	require.NotNil(t, req)
	assert.Equal(t, types.RequestThreadsAddUserMessage, req.Type)

	params, ok := req.Params.(types.ThreadsAddUserMessageParams)
	require.True(t, ok)
	assert.Equal(t, "th_1", params.ThreadID)
}

func TestSendMessageBlankIsNoop(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendMessage("   ", nil)
	s.SendMessage("", []types.AttachmentMeta{
		{ID: "temp_1", UploadStatus: types.UploadStatusPending},
		{ID: "temp_2", UploadStatus: types.UploadStatusError},
	})

	assert.Zero(t, tr.streamCount(), "blank sends must not hit the wire")
	assert.False(t, s.IsStreaming())
}

func TestSendMessageFiltersUnuploadedAttachments(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendMessage("with files", []types.AttachmentMeta{
		{ID: "atc_ok", UploadStatus: types.UploadStatusUploaded},
		{ID: "temp_pending", UploadStatus: types.UploadStatusUploading},
	})

	params, ok := tr.lastStreamed().Params.(types.ThreadsCreateParams)
	require.True(t, ok)
	assert.Equal(t, []string{"atc_ok"}, params.Input.Attachments)
}

func TestSendMessageRejectedWhileInFlight(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendMessage("first", nil)
	s.SendMessage("second while streaming", nil)

	assert.Equal(t, 1, tr.streamCount(), "only one request may be in flight")
}

func TestCancelStreaming(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	// Cancel with nothing in flight is safe.
	s.CancelStreaming()
	assert.Zero(t, tr.canceled)

	s.SendMessage("hello", nil)
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))
	s.Apply(textDelta("msg_1", "partial answer"))

	s.CancelStreaming()

	assert.Equal(t, 1, tr.canceled)
	assert.False(t, s.IsStreaming())

	// Folded content survives the cancel.
	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, "partial answer", items[0].Text())

	// The slot is free again.
	s.SendMessage("follow up", nil)
	assert.Equal(t, 2, tr.streamCount())
}

func TestRetryLastMessage(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	// Nothing sent yet: retry is a no-op.
	s.RetryLastMessage()
	assert.Zero(t, tr.streamCount())

	s.SendMessage("try me", nil)
	tr.finishStream()

	s.RetryLastMessage()
	assert.Equal(t, 2, tr.streamCount())
}

func TestCreateThreadResetsSelection(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	require.Equal(t, "th_1", s.ActiveThreadID())

	s.CreateThread("")
	assert.Empty(t, s.ActiveThreadID())
	assert.Zero(t, tr.streamCount())

	s.CreateThread("start fresh")
	req := tr.lastStreamed()
	require.NotNil(t, req)
	assert.Equal(t, types.RequestThreadsCreate, req.Type)
}

func TestSelectThreadFetchesColdDetail(t *testing.T) {
	title := "Loaded thread"
	tr := &fakeTransport{
		callReply: func(req *types.Request, result any) error {
			detail, ok := result.(*types.ThreadDetailResponse)
			if !ok {
				return nil
			}
			detail.ID = "th_cold"
			detail.Title = &title
			detail.Items = types.ItemPage{Data: []*types.ThreadItem{
				{ID: "msg_1", ThreadID: "th_cold", Type: types.ItemTypeUserMessage},
			}}
			return nil
		},
	}
	s := New(tr, nil, Callbacks{})

	s.SelectThread(context.Background(), "th_cold")

	assert.Equal(t, "th_cold", s.ActiveThreadID())
	require.Len(t, s.Items("th_cold"), 1)

	// A warm cache skips the fetch.
	before := len(tr.called)
	s.SelectThread(context.Background(), "th_cold")
	assert.Equal(t, before, len(tr.called))
}

func TestLoadThreadsSeedsAndSelects(t *testing.T) {
	titleA := "A"
	tr := &fakeTransport{
		callReply: func(req *types.Request, result any) error {
			list, ok := result.(*types.ThreadListResponse)
			if !ok {
				return nil
			}
			list.Data = []*types.ThreadListItem{
				{ID: "th_new", Title: &titleA},
				{ID: "th_old"},
			}
			return nil
		},
	}
	s := New(tr, nil, Callbacks{})

	require.NoError(t, s.LoadThreads(context.Background(), 0, ""))

	params, ok := tr.called[0].Params.(types.ThreadsListParams)
	require.True(t, ok)
	assert.Equal(t, 9999, params.Limit)
	assert.Equal(t, "desc", params.Order)

	require.Len(t, s.Threads(), 2)
	assert.Equal(t, "th_new", s.ActiveThreadID(), "most recent thread is auto-selected")
}

func TestStreamCompleteFiresResponseEnd(t *testing.T) {
	var ended []string
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{
		OnResponseEnd: func(threadID string) { ended = append(ended, threadID) },
	})

	s.SendMessage("hello", nil)
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	tr.finishStream()

	assert.Equal(t, []string{"th_1"}, ended)
	assert.False(t, s.IsStreaming())
}

func TestSendWidgetAction(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, nil, Callbacks{})

	s.SendWidgetAction("th_1", "wid_1", types.ActionConfig{Type: "confirm_transfer"})

	req := tr.lastStreamed()
	require.NotNil(t, req)
	assert.Equal(t, types.RequestThreadsCustomAction, req.Type)

	params, ok := req.Params.(types.ThreadsCustomActionParams)
	require.True(t, ok)
	assert.Equal(t, "th_1", params.ThreadID)
	assert.Equal(t, "wid_1", params.ItemID)
	assert.Equal(t, "confirm_transfer", params.Action.Type)
}
