// Package verify is the operator-facing contract for claiming QC tasks,
// submitting verdicts with corrections, or releasing work, and it closes the
// loop by recording every outcome as a feedback entry.
package verify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/docflow/internal/feedback"
	"github.com/MeKo-Tech/docflow/internal/metrics"
	"github.com/MeKo-Tech/docflow/internal/queue"
)

// ErrSubmissionRejected is returned when the caller no longer holds the lease
// for a task it tries to submit; the operator must re-fetch the task.
var ErrSubmissionRejected = errors.New("verify: submission rejected, lease not held")

// FieldCorrection is one operator-corrected field.
type FieldCorrection struct {
	Field      string  `json:"field"`
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// Result is an operator's verdict on a task. Created once per submission,
// immutable.
type Result struct {
	Approved              bool              `json:"approved"`
	CorrectedDocumentType string            `json:"corrected_document_type,omitempty"`
	Corrections           []FieldCorrection `json:"corrections,omitempty"`
	Issues                []string          `json:"issues,omitempty"`
	Confidence            float64           `json:"confidence"`
	TimeSpent             time.Duration     `json:"time_spent"`
	Notes                 string            `json:"notes,omitempty"`
	Escalate              bool              `json:"escalate"`
}

// Verifier mediates between operators, the queue, and the feedback collector.
type Verifier struct {
	queue     *queue.Queue
	collector *feedback.Collector
}

// New creates a verifier. The collector may be nil to disable feedback
// recording (tests).
func New(q *queue.Queue, c *feedback.Collector) *Verifier {
	return &Verifier{queue: q, collector: c}
}

// NextTask hands the operator their next piece of work: first a continuation
// of their own assigned tasks, then the highest-priority unassigned task that
// can be atomically assigned and leased. An empty queue is a normal outcome,
// not an error.
func (v *Verifier) NextTask(operator string) (queue.Task, bool) {
	for _, t := range v.queue.GetPending(queue.Filter{Assignee: operator}, 0) {
		if err := v.queue.AcquireLease(t.ID, operator); err != nil {
			continue
		}
		claimed, ok := v.queue.Get(t.ID)
		if ok {
			return claimed, true
		}
	}
	for _, t := range v.queue.GetPending(queue.Filter{Unassigned: true}, 0) {
		if err := v.queue.Assign(t.ID, operator); err != nil {
			continue
		}
		if err := v.queue.AcquireLease(t.ID, operator); err != nil {
			continue
		}
		claimed, ok := v.queue.Get(t.ID)
		if ok {
			return claimed, true
		}
	}
	return queue.Task{}, false
}

// TaskDetails returns the task when the operator may see it: unleased,
// expired, or leased by the caller. Tasks leased to someone else are hidden.
func (v *Verifier) TaskDetails(id, operator string) (queue.Task, bool) {
	t, ok := v.queue.Get(id)
	if !ok {
		return queue.Task{}, false
	}
	if t.Lease != nil && t.Lease.Holder != operator && v.queue.HoldsLease(id, t.Lease.Holder) {
		return queue.Task{}, false
	}
	return t, true
}

// Submit applies an operator's verdict. The caller must hold the lease; the
// release attempt doubles as the authorization check and a failed release
// leaves the task untouched. The QC status block is written onto the task
// metadata (and the originating artifact when available) before the feedback
// entry is appended, so an archiver observing a completed task always sees it.
func (v *Verifier) Submit(id, operator string, res Result) error {
	before, ok := v.queue.Get(id)
	if !ok {
		return fmt.Errorf("verify: %w", queue.ErrUnknownTask)
	}
	if !v.queue.HoldsLease(id, operator) {
		return ErrSubmissionRejected
	}

	corrected := make(map[string]string, len(res.Corrections))
	for _, c := range res.Corrections {
		corrected[c.Field] = c.Corrected
	}

	var status queue.Status
	outcome := ""
	switch {
	case res.Escalate:
		status = queue.StatusEscalated
		outcome = "escalated"
		if err := v.queue.SetPriority(id, queue.PriorityCritical); err != nil {
			return fmt.Errorf("verify escalate: %w", err)
		}
	case res.Approved:
		status = queue.StatusCompleted
		outcome = "approved"
		if err := v.queue.ApplyCorrections(id, operator, corrected, res.CorrectedDocumentType); err != nil {
			return fmt.Errorf("verify corrections: %w", err)
		}
	default:
		status = queue.StatusRejected
		outcome = "rejected"
	}

	if err := v.queue.ReleaseLease(id, operator); err != nil {
		return ErrSubmissionRejected
	}
	if err := v.queue.SetStatus(id, status); err != nil {
		return fmt.Errorf("verify status: %w", err)
	}

	now := time.Now()
	qcBlock := map[string]any{
		"passed":      res.Approved && !res.Escalate,
		"outcome":     outcome,
		"verified_by": operator,
		"verified_at": now,
		"corrections": len(res.Corrections),
	}
	if err := v.queue.AnnotateQC(id, qcBlock); err != nil {
		slog.Error("qc status annotation failed", "task_id", id, "error", err)
	}
	if before.Artifact != nil {
		before.Artifact.Annotations.Record("qc", outcome, qcBlock)
	}

	v.recordFeedback(before, operator, res, corrected, now)
	metrics.Verifications.WithLabelValues(outcome).Inc()
	return nil
}

// Release reverts an in_progress task to assigned without completing it.
func (v *Verifier) Release(id, operator string) error {
	return v.queue.ReleaseLease(id, operator)
}

// recordFeedback appends the feedback entry; failures are logged and
// swallowed because losing an audit line must not void operator work.
func (v *Verifier) recordFeedback(before queue.Task, operator string, res Result, corrected map[string]string, at time.Time) {
	if v.collector == nil {
		return
	}
	corrections := make([]feedback.Correction, 0, len(res.Corrections))
	for _, c := range res.Corrections {
		corrections = append(corrections, feedback.Correction{
			Field:      c.Field,
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
			Note:       c.Note,
		})
	}
	entry := feedback.Entry{
		Timestamp:             at,
		TaskID:                before.ID,
		PageID:                before.PageID,
		BatchID:               before.BatchID,
		Operator:              operator,
		OriginalDocumentType:  before.DocumentType,
		CorrectedDocumentType: res.CorrectedDocumentType,
		OriginalFields:        before.Fields,
		CorrectedFields:       corrected,
		Corrections:           corrections,
		Issues:                res.Issues,
		OperatorConfidence:    res.Confidence,
		TimeSpentSeconds:      res.TimeSpent.Seconds(),
		Notes:                 res.Notes,
		Approved:              res.Approved,
		Escalated:             res.Escalate,
	}
	if err := v.collector.Record(entry); err != nil {
		slog.Error("feedback record failed", "task_id", before.ID, "error", err)
	}
}
