package types

// Composer-side upload lifecycle states.
const (
	UploadStatusPending   = "pending"
	UploadStatusUploading = "uploading"
	UploadStatusUploaded  = "uploaded"
	UploadStatusError     = "error"
)

// AttachmentMeta is the composer-side view of one attachment. It starts
// with a temporary local id which is replaced by the server-assigned id
// once the upload finishes. Only uploaded attachments may be sent.
type AttachmentMeta struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Size             int64   `json:"size"`
	MimeType         string  `json:"mimeType"`
	LocalPreviewURL  string  `json:"previewUrl,omitempty"`
	ServerPreviewURL string  `json:"serverPreviewUrl,omitempty"`
	UploadStatus     string  `json:"uploadStatus"`
	UploadProgress   float64 `json:"uploadProgress"`
}

// Uploaded reports whether the attachment finished its two-phase upload
// and is eligible to be included in a message.
func (a *AttachmentMeta) Uploaded() bool {
	return a != nil && a.UploadStatus == UploadStatusUploaded
}
