package types

import (
	"encoding/json"
	"time"
)

// Thread item type discriminants.
const (
	ItemTypeUserMessage      = "user_message"
	ItemTypeAssistantMessage = "assistant_message"
	ItemTypeTask             = "task"
	ItemTypeWorkflow         = "workflow"
	ItemTypeWidget           = "widget"
	ItemTypeClientWidget     = "client_widget"
	ItemTypeClientToolCall   = "client_tool_call"
	ItemTypeEndOfTurn        = "end_of_turn"
	ItemTypeError            = "error"
)

// Task status indicators.
const (
	TaskStatusNone     = "none"
	TaskStatusLoading  = "loading"
	TaskStatusComplete = "complete"
)

// AssistantContent is one output content part of an assistant message.
type AssistantContent struct {
	Type        string       `json:"type"` // output_text
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// UserContent is one input content part of a user message.
type UserContent struct {
	Type string `json:"type"` // input_text, input_tag
	Text string `json:"text"`

	// input_tag fields
	ID          string         `json:"id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Group       *string        `json:"group,omitempty"`
	Interactive bool           `json:"interactive,omitempty"`
}

// Annotation ties a span of assistant output to a source.
type Annotation struct {
	Type   string `json:"type"` // annotation
	Source Source `json:"source"`
	Index  *int   `json:"index"`
}

// Source describes where annotated or task-discovered content came from.
type Source struct {
	Type        string         `json:"type"` // url, file, entity
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	ID          string         `json:"id,omitempty"`
	Icon        *string        `json:"icon,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Description *string        `json:"description,omitempty"`
	Timestamp   *string        `json:"timestamp,omitempty"`
	Attribution *string        `json:"attribution,omitempty"`
	Group       *string        `json:"group,omitempty"`
}

// Task is a unit of assistant-side work surfaced to the user
// (custom, web_search, thought, file, image).
type Task struct {
	Type            string   `json:"type"`
	StatusIndicator string   `json:"status_indicator"` // none, loading, complete
	Title           *string  `json:"title"`
	Icon            *string  `json:"icon,omitempty"`
	Content         *string  `json:"content,omitempty"`
	TitleQuery      *string  `json:"title_query,omitempty"`
	Queries         []string `json:"queries,omitempty"`
	Sources         []Source `json:"sources,omitempty"`
}

// InProgress reports whether the task has not yet completed. Tasks with a
// none or loading indicator still count as running.
func (t *Task) InProgress() bool {
	return t != nil && t.StatusIndicator != TaskStatusComplete
}

// WorkflowSummary is either a titled summary or a duration in seconds.
type WorkflowSummary struct {
	Title    string  `json:"title,omitempty"`
	Icon     *string `json:"icon,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Workflow groups a sequence of tasks under one collapsible unit.
type Workflow struct {
	Type     string           `json:"type"` // custom, reasoning
	Tasks    []Task           `json:"tasks"`
	Summary  *WorkflowSummary `json:"summary"`
	Expanded bool             `json:"expanded"`
}

// Attachment is the server-side representation of an uploaded file.
type Attachment struct {
	Type       string  `json:"type"` // file, image
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	MimeType   string  `json:"mime_type"`
	UploadURL  *string `json:"upload_url,omitempty"`
	PreviewURL string  `json:"preview_url,omitempty"`
}

// ThreadItem is one discrete unit of conversation content. It is a tagged
// union keyed by Type; only the fields for the given type are populated.
type ThreadItem struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"type"`

	// user_message
	UserContent      []UserContent  `json:"content,omitempty"`
	Attachments      []Attachment   `json:"attachments,omitempty"`
	QuotedText       *string        `json:"quoted_text,omitempty"`
	InferenceOptions map[string]any `json:"inference_options,omitempty"`

	// assistant_message
	Content   []AssistantContent `json:"-"`
	Streaming bool               `json:"streaming,omitempty"`

	// task
	Task *Task `json:"task,omitempty"`

	// workflow
	Workflow *Workflow `json:"workflow,omitempty"`

	// widget: the server-defined widget tree is kept opaque; the rendering
	// layer walks it, the store never interprets it.
	Widget   json.RawMessage `json:"widget,omitempty"`
	CopyText *string         `json:"copy_text,omitempty"`

	// client_widget
	Name string         `json:"name,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// client_tool_call
	Status    string         `json:"status,omitempty"` // pending, completed
	CallID    string         `json:"call_id,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    any            `json:"output,omitempty"`

	// error
	Code       string  `json:"code,omitempty"`
	Message    *string `json:"message,omitempty"`
	AllowRetry bool    `json:"allow_retry,omitempty"`
	HTTPStatus int     `json:"http_status,omitempty"`
}

// threadItemJSON mirrors ThreadItem for (un)marshalling. The wire "content"
// key holds user content parts on user messages and assistant content parts
// on assistant messages, which a single Go field cannot express.
type threadItemJSON struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"type"`

	Content          json.RawMessage `json:"content,omitempty"`
	Attachments      []Attachment    `json:"attachments,omitempty"`
	QuotedText       *string         `json:"quoted_text,omitempty"`
	InferenceOptions map[string]any  `json:"inference_options,omitempty"`
	Streaming        bool            `json:"streaming,omitempty"`
	Task             *Task           `json:"task,omitempty"`
	Workflow         *Workflow       `json:"workflow,omitempty"`
	Widget           json.RawMessage `json:"widget,omitempty"`
	CopyText         *string         `json:"copy_text,omitempty"`
	Name             string          `json:"name,omitempty"`
	Args             map[string]any  `json:"args,omitempty"`
	Status           string          `json:"status,omitempty"`
	CallID           string          `json:"call_id,omitempty"`
	Arguments        map[string]any  `json:"arguments,omitempty"`
	Output           any             `json:"output,omitempty"`
	Code             string          `json:"code,omitempty"`
	Message          *string         `json:"message,omitempty"`
	AllowRetry       bool            `json:"allow_retry,omitempty"`
	HTTPStatus       int             `json:"http_status,omitempty"`
}

// MarshalJSON encodes the item with the type-appropriate "content" payload.
func (it ThreadItem) MarshalJSON() ([]byte, error) {
	raw := threadItemJSON{
		ID:               it.ID,
		ThreadID:         it.ThreadID,
		CreatedAt:        it.CreatedAt,
		Type:             it.Type,
		Attachments:      it.Attachments,
		QuotedText:       it.QuotedText,
		InferenceOptions: it.InferenceOptions,
		Streaming:        it.Streaming,
		Task:             it.Task,
		Workflow:         it.Workflow,
		Widget:           it.Widget,
		CopyText:         it.CopyText,
		Name:             it.Name,
		Args:             it.Args,
		Status:           it.Status,
		CallID:           it.CallID,
		Arguments:        it.Arguments,
		Output:           it.Output,
		Code:             it.Code,
		Message:          it.Message,
		AllowRetry:       it.AllowRetry,
		HTTPStatus:       it.HTTPStatus,
	}

	switch it.Type {
	case ItemTypeUserMessage:
		if it.UserContent != nil {
			data, err := json.Marshal(it.UserContent)
			if err != nil {
				return nil, err
			}
			raw.Content = data
		}
	case ItemTypeAssistantMessage:
		content := it.Content
		if content == nil {
			content = []AssistantContent{}
		}
		data, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		raw.Content = data
	}

	return json.Marshal(raw)
}

// UnmarshalJSON decodes the item, routing "content" by the type tag.
func (it *ThreadItem) UnmarshalJSON(data []byte) error {
	var raw threadItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*it = ThreadItem{
		ID:               raw.ID,
		ThreadID:         raw.ThreadID,
		CreatedAt:        raw.CreatedAt,
		Type:             raw.Type,
		Attachments:      raw.Attachments,
		QuotedText:       raw.QuotedText,
		InferenceOptions: raw.InferenceOptions,
		Streaming:        raw.Streaming,
		Task:             raw.Task,
		Workflow:         raw.Workflow,
		Widget:           raw.Widget,
		CopyText:         raw.CopyText,
		Name:             raw.Name,
		Args:             raw.Args,
		Status:           raw.Status,
		CallID:           raw.CallID,
		Arguments:        raw.Arguments,
		Output:           raw.Output,
		Code:             raw.Code,
		Message:          raw.Message,
		AllowRetry:       raw.AllowRetry,
		HTTPStatus:       raw.HTTPStatus,
	}

	if len(raw.Content) > 0 {
		switch raw.Type {
		case ItemTypeUserMessage:
			if err := json.Unmarshal(raw.Content, &it.UserContent); err != nil {
				return err
			}
		case ItemTypeAssistantMessage:
			if err := json.Unmarshal(raw.Content, &it.Content); err != nil {
				return err
			}
		}
	}

	return nil
}

// Text returns the concatenated assistant output text, empty for other
// item types.
func (it *ThreadItem) Text() string {
	var out string
	for _, part := range it.Content {
		out += part.Text
	}
	return out
}
