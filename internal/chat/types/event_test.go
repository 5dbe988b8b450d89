package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		verify  func(t *testing.T, ev *StreamEvent)
	}{
		{
			name: "thread created",
			data: `{"type":"thread.created","thread":{"id":"th_1","title":null,"created_at":"2025-05-01T10:00:00Z","status":{"type":"active"}}}`,
			verify: func(t *testing.T, ev *StreamEvent) {
				assert.Equal(t, EventThreadCreated, ev.Type)
				require.NotNil(t, ev.Thread)
				assert.Equal(t, "th_1", ev.Thread.ID)
			},
		},
		{
			name: "text delta update",
			data: `{"type":"thread.item.updated","item_id":"msg_1","update":{"type":"assistant_message.content_part.text_delta","delta":"hel"}}`,
			verify: func(t *testing.T, ev *StreamEvent) {
				require.NotNil(t, ev.Update)
				assert.Equal(t, UpdateTextDelta, ev.Update.Type)
				assert.Equal(t, "hel", ev.Update.Delta)
			},
		},
		{
			name: "progress update",
			data: `{"type":"progress_update","text":"Thinking"}`,
			verify: func(t *testing.T, ev *StreamEvent) {
				assert.Equal(t, "Thinking", ev.Text)
			},
		},
		{
			name: "error event",
			data: `{"type":"error","code":"http_error","message":"Server error occurred. Please try again.","allow_retry":true,"http_status":500}`,
			verify: func(t *testing.T, ev *StreamEvent) {
				assert.Equal(t, ErrCodeHTTP, ev.Code)
				assert.True(t, ev.AllowRetry)
				assert.Equal(t, 500, ev.HTTPStatus)
			},
		},
		{
			name:    "invalid json",
			data:    `{"type":`,
			wantErr: true,
		},
		{
			name:    "missing type",
			data:    `{"thread":{"id":"th_1"}}`,
			wantErr: true,
		},
		{
			name:    "empty type",
			data:    `{"type":""}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.verify(t, ev)
		})
	}
}
