package types

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Stream event type discriminants.
const (
	EventThreadCreated     = "thread.created"
	EventThreadUpdated     = "thread.updated"
	EventThreadItemAdded   = "thread.item.added"
	EventThreadItemUpdated = "thread.item.updated"
	EventThreadItemDone    = "thread.item.done"
	EventProgressUpdate    = "progress_update"
	EventStreamOptions     = "stream_options"
	EventError             = "error"
)

// UpdateTextDelta is the only item update kind the client folds today.
const UpdateTextDelta = "assistant_message.content_part.text_delta"

// ErrCodeHTTP marks error events synthesized from non-2xx responses.
const ErrCodeHTTP = "http_error"

// ItemUpdate is the payload of a thread.item.updated event. ContentIndex is
// a server-side counter, not an index into the content array.
type ItemUpdate struct {
	Type         string `json:"type"`
	Delta        string `json:"delta,omitempty"`
	ContentIndex int    `json:"content_index,omitempty"`
}

// ProgressUpdate is the ephemeral "working on it" line shown while no
// durable item has arrived yet.
type ProgressUpdate struct {
	Icon string `json:"icon,omitempty"`
	Text string `json:"text"`
}

// StreamEvent is one decoded SSE frame. Type selects which fields carry
// the payload.
type StreamEvent struct {
	Type string `json:"type"`

	// thread.created, thread.updated
	Thread *Thread `json:"thread,omitempty"`

	// thread.item.added, thread.item.done
	Item *ThreadItem `json:"item,omitempty"`

	// thread.item.updated
	ItemID string      `json:"item_id,omitempty"`
	Update *ItemUpdate `json:"update,omitempty"`

	// progress_update
	Icon string `json:"icon,omitempty"`
	Text string `json:"text,omitempty"`

	// stream_options, passed through undecoded
	StreamOptions json.RawMessage `json:"stream_options,omitempty"`

	// error
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	AllowRetry bool   `json:"allow_retry,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// ParseEvent decodes one SSE data payload. The type discriminant is peeked
// first so an unknown or missing type fails before a full unmarshal.
func ParseEvent(data []byte) (*StreamEvent, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid event json: %s", truncate(data, 120))
	}

	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() || typ.String() == "" {
		return nil, fmt.Errorf("event missing type discriminant: %s", truncate(data, 120))
	}

	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s event: %w", typ.String(), err)
	}
	return &ev, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
