package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadItemContentRouting(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		verify func(t *testing.T, item *ThreadItem)
	}{
		{
			name: "user message content decodes as input parts",
			raw:  `{"id":"msg_1","thread_id":"th_1","type":"user_message","content":[{"type":"input_text","text":"hello"}]}`,
			verify: func(t *testing.T, item *ThreadItem) {
				require.Len(t, item.UserContent, 1)
				assert.Equal(t, "input_text", item.UserContent[0].Type)
				assert.Equal(t, "hello", item.UserContent[0].Text)
				assert.Empty(t, item.Content)
			},
		},
		{
			name: "assistant message content decodes as output parts",
			raw:  `{"id":"msg_2","thread_id":"th_1","type":"assistant_message","content":[{"type":"output_text","text":"hi there"}]}`,
			verify: func(t *testing.T, item *ThreadItem) {
				require.Len(t, item.Content, 1)
				assert.Equal(t, "output_text", item.Content[0].Type)
				assert.Equal(t, "hi there", item.Text())
				assert.Empty(t, item.UserContent)
			},
		},
		{
			name: "widget payload stays opaque",
			raw:  `{"id":"wid_1","thread_id":"th_1","type":"widget","widget":{"type":"Card","children":[]}}`,
			verify: func(t *testing.T, item *ThreadItem) {
				assert.JSONEq(t, `{"type":"Card","children":[]}`, string(item.Widget))
			},
		},
		{
			name: "task item carries status indicator",
			raw:  `{"id":"task_1","thread_id":"th_1","type":"task","task":{"type":"custom","status_indicator":"loading","title":"Searching"}}`,
			verify: func(t *testing.T, item *ThreadItem) {
				require.NotNil(t, item.Task)
				assert.True(t, item.Task.InProgress())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item ThreadItem
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &item))
			tt.verify(t, &item)
		})
	}
}

func TestThreadItemMarshalRoundTrip(t *testing.T) {
	original := ThreadItem{
		ID:       "msg_3",
		ThreadID: "th_9",
		Type:     ItemTypeAssistantMessage,
		Content:  []AssistantContent{{Type: "output_text", Text: "final answer"}},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ThreadItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Text(), decoded.Text())
	assert.Equal(t, ItemTypeAssistantMessage, decoded.Type)
}

func TestThreadItemMarshalAssistantAlwaysHasContent(t *testing.T) {
	item := ThreadItem{ID: "msg_4", ThreadID: "th_1", Type: ItemTypeAssistantMessage}

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":[]`)
}

func TestTaskInProgress(t *testing.T) {
	title := "x"
	assert.True(t, (&Task{StatusIndicator: TaskStatusLoading, Title: &title}).InProgress())
	assert.True(t, (&Task{StatusIndicator: TaskStatusNone, Title: &title}).InProgress())
	assert.False(t, (&Task{StatusIndicator: TaskStatusComplete, Title: &title}).InProgress())
	assert.False(t, (*Task)(nil).InProgress())
}
