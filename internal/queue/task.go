// Package queue implements the durable priority queue of QC review tasks with
// lease-based exclusive locking. All state mutation happens under one mutex;
// every mutation is appended to a JSONL event log and the full queue state can
// be reconstructed by replaying that log.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/docflow/internal/artifact"
)

// Priority orders tasks; higher values are served first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusEscalated  Status = "escalated"
)

// Terminal reports whether the status is final. Terminal tasks are never
// re-enqueued and never physically deleted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusEscalated
}

// allowedTransitions is the task state machine. Lease expiry does not appear
// here: an expired lease makes an assigned/in_progress task claimable again
// without a status change.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned},
	StatusAssigned:   {StatusAssigned, StatusInProgress, StatusCompleted, StatusRejected, StatusEscalated},
	StatusInProgress: {StatusAssigned, StatusCompleted, StatusRejected, StatusEscalated},
}

func transitionAllowed(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lease is a time-bounded exclusive claim on a task.
type Lease struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Task is one review work item.
type Task struct {
	ID           string    `json:"id"`
	PageID       string    `json:"page_id"`
	BatchID      string    `json:"batch_id,omitempty"`
	DocumentType string    `json:"document_type"`
	Severity     string    `json:"severity"`
	Priority     Priority  `json:"priority"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`
	Lease        *Lease     `json:"lease,omitempty"`

	ImagePath   string `json:"image_path,omitempty"`
	OCRTextPath string `json:"ocr_text_path,omitempty"`

	// Snapshot from the originating artifact.
	Fields           map[string]string  `json:"fields,omitempty"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
	Reasons          []string           `json:"reasons,omitempty"`
	Metadata         map[string]any     `json:"metadata,omitempty"`

	// Artifact keeps a process-local handle on the originating page so
	// verification can write QC status back onto it. Never persisted.
	Artifact *artifact.Page `json:"-"`
}

// NewTask creates a pending task for a page. An empty id is replaced with a
// generated UUID.
func NewTask(id, pageID string) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	return &Task{
		ID:        id,
		PageID:    pageID,
		Status:    StatusPending,
		Priority:  PriorityMedium,
		CreatedAt: time.Now(),
	}
}

// clone returns a deep-enough copy for handing outside the queue lock.
func (t *Task) clone() Task {
	out := *t
	if t.Lease != nil {
		lease := *t.Lease
		out.Lease = &lease
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	out.Fields = copyMap(t.Fields)
	out.FieldConfidences = copyMap(t.FieldConfidences)
	out.Reasons = append([]string(nil), t.Reasons...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func copyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
