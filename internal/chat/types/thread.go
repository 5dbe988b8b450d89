package types

import "time"

// Thread status discriminants.
const (
	ThreadStatusActive = "active"
	ThreadStatusLocked = "locked"
	ThreadStatusClosed = "closed"
)

// ThreadStatus is the lifecycle state of a thread. Locked and closed
// threads carry an optional human-readable reason.
type ThreadStatus struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Thread is one conversation session with the assistant.
type Thread struct {
	ID        string         `json:"id"`
	Title     *string        `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ThreadStatus   `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ItemPage is a single page of thread items as returned by the server.
type ItemPage struct {
	Data    []*ThreadItem `json:"data"`
	HasMore bool          `json:"has_more"`
	After   string        `json:"after,omitempty"`
}

// ThreadListItem is a thread summary in a threads.list response.
type ThreadListItem struct {
	ID        string         `json:"id"`
	Title     *string        `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ThreadStatus   `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Items     ItemPage       `json:"items"`
}

// Thread converts the list entry to its Thread form.
func (li *ThreadListItem) Thread() *Thread {
	return &Thread{
		ID:        li.ID,
		Title:     li.Title,
		CreatedAt: li.CreatedAt,
		Status:    li.Status,
		Metadata:  li.Metadata,
	}
}

// ThreadListResponse is the response to threads.list.
type ThreadListResponse struct {
	Data    []*ThreadListItem `json:"data"`
	HasMore bool              `json:"has_more"`
	After   string            `json:"after,omitempty"`
}

// ThreadDetailResponse is the response to threads.get_by_id.
type ThreadDetailResponse struct {
	ID        string         `json:"id"`
	Title     *string        `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	Status    ThreadStatus   `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Items     ItemPage       `json:"items"`
}
