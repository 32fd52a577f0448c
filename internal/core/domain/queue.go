package domain

import "time"

type ItemState string

const (
	ItemPending    ItemState = "pending"
	ItemProcessing ItemState = "processing"
	ItemCompleted  ItemState = "completed"
	ItemFailed     ItemState = "failed"
	ItemCancelled  ItemState = "cancelled"
)

func (s ItemState) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemCancelled
}

type UploadQueueItem struct {
	ID          string        `json:"id"`
	File        UploadFile    `json:"file"`
	Options     UploadOptions `json:"options"`
	State       ItemState     `json:"state"`
	Progress    int           `json:"progress"`
	Stage       Stage         `json:"stage,omitempty"`
	Message     string        `json:"message,omitempty"`
	RetryCount  int           `json:"retry_count"`
	AddedAt     time.Time     `json:"added_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      *UploadResult `json:"result,omitempty"`
	Error       *ErrorInfo    `json:"error,omitempty"`
}

type QueueSnapshot struct {
	Items           []UploadQueueItem `json:"items"`
	OverallProgress float64           `json:"overall_progress"`
	Running         int               `json:"running"`
	Pending         int               `json:"pending"`
	// Version increases with every change to the queue.
	Version uint64 `json:"version"`
}
