package types

// Request type discriminants for the single chat endpoint.
const (
	RequestThreadsCreate         = "threads.create"
	RequestThreadsAddUserMessage = "threads.add_user_message"
	RequestThreadsCustomAction   = "threads.custom_action"
	RequestThreadsList           = "threads.list"
	RequestThreadsGetByID        = "threads.get_by_id"
	RequestAttachmentsCreate     = "attachments.create"
	RequestAttachmentsDelete     = "attachments.delete"
)

// Request is the outbound envelope for every protocol call.
type Request struct {
	Type     string         `json:"type"`
	Params   any            `json:"params"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UserMessageInput is the user-authored payload of a send.
type UserMessageInput struct {
	Content          []UserContent  `json:"content"`
	Attachments      []string       `json:"attachments"`
	QuotedText       string         `json:"quoted_text"`
	InferenceOptions map[string]any `json:"inference_options"`
}

// ThreadsCreateParams starts a new thread from its first message.
type ThreadsCreateParams struct {
	Input UserMessageInput `json:"input"`
}

// ThreadsAddUserMessageParams appends a message to an existing thread.
type ThreadsAddUserMessageParams struct {
	Input    UserMessageInput `json:"input"`
	ThreadID string           `json:"thread_id"`
}

// ThreadsCustomActionParams routes a widget action back to the server.
type ThreadsCustomActionParams struct {
	ItemID   string       `json:"item_id"`
	Action   ActionConfig `json:"action"`
	ThreadID string       `json:"thread_id"`
}

// ThreadsListParams pages the thread index.
type ThreadsListParams struct {
	Limit int    `json:"limit"`
	Order string `json:"order"` // asc, desc
}

// ThreadsGetByIDParams fetches one thread with its items.
type ThreadsGetByIDParams struct {
	ThreadID string `json:"thread_id"`
}

// AttachmentsCreateParams is phase one of the two-phase upload.
type AttachmentsCreateParams struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// AttachmentsCreateResponse carries the server id and the byte-upload URL.
type AttachmentsCreateResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	UploadURL  string `json:"upload_url"`
	Type       string `json:"type"` // file, image
	PreviewURL string `json:"preview_url,omitempty"`
}

// AttachmentsDeleteParams removes a previously created attachment.
type AttachmentsDeleteParams struct {
	AttachmentID string `json:"attachment_id"`
}

// NewUserMessageInput builds the input payload for a send. Attachment ids
// may be empty but the slice is always present on the wire.
func NewUserMessageInput(text string, attachmentIDs []string) UserMessageInput {
	if attachmentIDs == nil {
		attachmentIDs = []string{}
	}
	return UserMessageInput{
		Content:          []UserContent{{Type: "input_text", Text: text}},
		Attachments:      attachmentIDs,
		QuotedText:       "",
		InferenceOptions: map[string]any{},
	}
}
