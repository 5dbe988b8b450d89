package store

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(cb Callbacks) *Store {
	return New(&fakeTransport{}, nil, cb)
}

func threadEvent(eventType, threadID string) *types.StreamEvent {
	return &types.StreamEvent{
		Type: eventType,
		Thread: &types.Thread{
			ID:        threadID,
			CreatedAt: time.Now().UTC(),
			Status:    types.ThreadStatus{Type: types.ThreadStatusActive},
		},
	}
}

func assistantAdded(threadID, itemID string) *types.StreamEvent {
	return &types.StreamEvent{
		Type: types.EventThreadItemAdded,
		Item: &types.ThreadItem{
			ID:       itemID,
			ThreadID: threadID,
			Type:     types.ItemTypeAssistantMessage,
			Content:  []types.AssistantContent{{Type: "output_text", Text: ""}},
		},
	}
}

func textDelta(itemID, delta string) *types.StreamEvent {
	return &types.StreamEvent{
		Type:   types.EventThreadItemUpdated,
		ItemID: itemID,
		Update: &types.ItemUpdate{Type: types.UpdateTextDelta, Delta: delta},
	}
}

func taskAdded(threadID, itemID, indicator string) *types.StreamEvent {
	title := "Checking"
	return &types.StreamEvent{
		Type: types.EventThreadItemAdded,
		Item: &types.ThreadItem{
			ID:       itemID,
			ThreadID: threadID,
			Type:     types.ItemTypeTask,
			Task:     &types.Task{Type: "custom", StatusIndicator: indicator, Title: &title},
		},
	}
}

func TestFoldThreadCreated(t *testing.T) {
	var created []string
	s := newTestStore(Callbacks{
		OnThreadCreated: func(th *types.Thread) { created = append(created, th.ID) },
	})

	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(threadEvent(types.EventThreadCreated, "th_2"))

	threads := s.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "th_2", threads[0].ID, "newest thread goes to the head")
	assert.Equal(t, "th_2", s.ActiveThreadID())
	assert.Equal(t, []string{"th_1", "th_2"}, created)

	// Re-creating an existing thread must not duplicate it.
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	assert.Len(t, s.Threads(), 2)
	assert.Equal(t, "th_1", s.Threads()[0].ID)
}

func TestFoldThreadUpdatedPatchesTitle(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	title := "Account balances"
	ev := threadEvent(types.EventThreadUpdated, "th_1")
	ev.Thread.Title = &title
	s.Apply(ev)

	require.NotNil(t, s.ActiveThread().Title)
	assert.Equal(t, title, *s.ActiveThread().Title)

	// Updates for unknown threads are dropped.
	s.Apply(threadEvent(types.EventThreadUpdated, "th_missing"))
	assert.Len(t, s.Threads(), 1)
}

func TestFoldDeltaAccumulation(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))

	for _, delta := range []string{"Hello", " ", "world"} {
		s.Apply(textDelta("msg_1", delta))
	}

	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, "Hello world", items[0].Text())
	assert.True(t, items[0].Streaming)
}

func TestFoldDeltaWithoutStreamingAssistantIsNoop(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	// No assistant has been added yet; the delta has nowhere to land.
	s.Apply(textDelta("msg_ghost", "lost"))
	assert.Empty(t, s.Items("th_1"))
}

func TestFoldAssistantDoneReplacesStreamingItem(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))
	s.Apply(textDelta("msg_1", "partial"))

	s.Apply(&types.StreamEvent{
		Type: types.EventThreadItemDone,
		Item: &types.ThreadItem{
			ID:       "msg_1",
			ThreadID: "th_1",
			Type:     types.ItemTypeAssistantMessage,
			Content:  []types.AssistantContent{{Type: "output_text", Text: "full reply"}},
		},
	})

	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, "full reply", items[0].Text())
	assert.False(t, items[0].Streaming)

	// A later delta must not mutate the finished message.
	s.Apply(textDelta("msg_1", " extra"))
	assert.Equal(t, "full reply", s.Items("th_1")[0].Text())
}

func TestFoldAssistantDoneWithoutAddedAppends(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	s.Apply(&types.StreamEvent{
		Type: types.EventThreadItemDone,
		Item: &types.ThreadItem{
			ID:       "msg_solo",
			ThreadID: "th_1",
			Type:     types.ItemTypeAssistantMessage,
			Content:  []types.AssistantContent{{Type: "output_text", Text: "direct"}},
		},
	})

	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, "direct", items[0].Text())
}

func TestFoldNonAssistantDoneIsIdempotent(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	widget := &types.ThreadItem{ID: "wid_1", ThreadID: "th_1", Type: types.ItemTypeWidget}
	s.Apply(&types.StreamEvent{Type: types.EventThreadItemDone, Item: widget})
	s.Apply(&types.StreamEvent{Type: types.EventThreadItemDone, Item: widget})

	assert.Len(t, s.Items("th_1"), 1)
}

func TestFoldTaskReplacementRevokesActiveTask(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	s.Apply(taskAdded("th_1", "task_1", types.TaskStatusLoading))
	assert.Equal(t, "task_1", s.ActiveTaskID("th_1"))
	require.Len(t, s.Items("th_1"), 1)

	// Same id arrives complete: replaced in place, shimmer eligibility gone.
	s.Apply(taskAdded("th_1", "task_1", types.TaskStatusComplete))
	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, types.TaskStatusComplete, items[0].Task.StatusIndicator)
	assert.Empty(t, s.ActiveTaskID("th_1"))
}

func TestFoldProgressClearedByItem(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	s.Apply(&types.StreamEvent{Type: types.EventProgressUpdate, Text: "Working"})
	require.NotNil(t, s.Progress())
	assert.Equal(t, "Working", s.Progress().Text)
	assert.True(t, s.HasReceivedEvent())

	s.Apply(assistantAdded("th_1", "msg_1"))
	assert.Nil(t, s.Progress(), "a durable item supersedes the progress line")
}

func TestFoldErrorLandsOnStreamingThread(t *testing.T) {
	var reported []ErrorInfo
	s := newTestStore(Callbacks{
		OnError: func(info ErrorInfo) { reported = append(reported, info) },
	})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	s.Apply(&types.StreamEvent{
		Type:    types.EventError,
		Code:    "custom",
		Message: "something broke",
	})

	items := s.Items("th_1")
	require.Len(t, items, 1)
	assert.Equal(t, types.ItemTypeError, items[0].Type)
	require.NotNil(t, items[0].Message)
	assert.Equal(t, "something broke", *items[0].Message)

	require.Len(t, reported, 1)
	assert.Equal(t, "th_1", reported[0].ThreadID)
}

func TestFoldErrorBeforeAnyThread(t *testing.T) {
	s := newTestStore(Callbacks{})

	s.Apply(&types.StreamEvent{
		Type:       types.EventError,
		Code:       types.ErrCodeHTTP,
		Message:    "Server error occurred. Please try again.",
		AllowRetry: true,
		HTTPStatus: 500,
	})

	// Filed under the reserved pseudo-thread and force-selected.
	assert.Equal(t, ErrorThreadID, s.ActiveThreadID())
	items := s.Items(ErrorThreadID)
	require.Len(t, items, 1)
	assert.Equal(t, types.ItemTypeError, items[0].Type)
	assert.True(t, items[0].AllowRetry)
	assert.Equal(t, 500, items[0].HTTPStatus)
	assert.False(t, s.IsStreaming())
}

func TestFoldUnknownEventIgnored(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(&types.StreamEvent{Type: "future.event"})
	assert.Empty(t, s.Threads())
}

func TestItemSnapshotsFrozenAcrossDeltas(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))
	s.Apply(textDelta("msg_1", "Hello"))

	snapshot := s.Items("th_1")
	require.Len(t, snapshot, 1)
	require.Equal(t, "Hello", snapshot[0].Text())

	// Later folds must not reach back into pointers already handed out.
	s.Apply(textDelta("msg_1", " world"))

	assert.Equal(t, "Hello", snapshot[0].Text())
	assert.Equal(t, "Hello world", s.Items("th_1")[0].Text())
}

func TestThreadSnapshotsFrozenAcrossTitleUpdate(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	snapshot := s.Threads()
	require.Len(t, snapshot, 1)
	require.Nil(t, snapshot[0].Title)

	title := "Account balances"
	ev := threadEvent(types.EventThreadUpdated, "th_1")
	ev.Thread.Title = &title
	s.Apply(ev)

	assert.Nil(t, snapshot[0].Title)
	require.NotNil(t, s.Threads()[0].Title)
	assert.Equal(t, title, *s.Threads()[0].Title)
}

func TestConcurrentReadersDuringFold(t *testing.T) {
	s := newTestStore(Callbacks{})
	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))
	s.Apply(assistantAdded("th_1", "msg_1"))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, item := range s.Items("th_1") {
				if item.Type == types.ItemTypeAssistantMessage && len(item.Content) > 0 {
					_ = item.Content[0].Text
				}
			}
		}
	}()

	for i := 0; i < 200; i++ {
		s.Apply(textDelta("msg_1", "x"))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, strings.Repeat("x", 200), s.Items("th_1")[0].Text())
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	s := newTestStore(Callbacks{})
	ch := s.Subscribe()

	s.Apply(threadEvent(types.EventThreadCreated, "th_1"))

	select {
	case <-ch:
	default:
		t.Fatal("expected a notification after a fold")
	}
}
