package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/docflow/internal/jsonl"
)

// Event ops. The current state of a task is the fold of its events in log
// order; replay at load time reconstructs the full in-memory queue.
const (
	opAdd          = "add"
	opAssign       = "assign"
	opStatus       = "status"
	opLeaseAcquire = "lease_acquire"
	opLeaseRelease = "lease_release"
	opCorrect      = "correct"
	opPriority     = "priority"
	opQCStatus     = "qc_status"
)

// event is one persisted queue mutation.
type event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Op           string            `json:"op"`
	TaskID       string            `json:"task_id"`
	Task         *Task             `json:"task,omitempty"`
	Operator     string            `json:"operator,omitempty"`
	Status       Status            `json:"status,omitempty"`
	Priority     *Priority         `json:"priority,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	DocumentType string            `json:"document_type,omitempty"`
	QC           map[string]any    `json:"qc,omitempty"`
	At           *time.Time        `json:"at,omitempty"`
}

type eventLog interface {
	Append(e event) error
	ForEach(fn func(e event)) error
}

type fileEventLog struct {
	dir    string
	writer *jsonl.Writer
}

const eventLogBase = "qc_tasks"

func newFileEventLog(dir string) *fileEventLog {
	return &fileEventLog{dir: dir, writer: jsonl.NewSingleFileWriter(dir, eventLogBase)}
}

func (l *fileEventLog) Append(e event) error {
	return l.writer.Append(e)
}

func (l *fileEventLog) ForEach(fn func(e event)) error {
	return jsonl.ForEach(l.dir, eventLogBase, func(line []byte) error {
		var e event
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("skipping undecodable queue event", "error", err)
			return nil
		}
		fn(e)
		return nil
	})
}

// appendEvent must be called under q.mu. Persistence failures are logged and
// swallowed: losing a replayable record is recoverable, aborting an otherwise
// valid mutation is not.
func (q *Queue) appendEvent(e event) {
	if q.log == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = q.now()
	}
	if err := q.log.Append(e); err != nil {
		slog.Error("queue event append failed", "op", e.Op, "task_id", e.TaskID, "error", err)
	}
}

// replay folds the persisted event log into in-memory state. Called once at
// construction, before the queue is shared, so no locking is needed.
func (q *Queue) replay() error {
	if q.log == nil {
		return nil
	}
	err := q.log.ForEach(func(e event) {
		q.apply(e)
	})
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.updateDepthMetrics()
	q.mu.Unlock()
	return nil
}

// apply folds one event into state. It mirrors the live mutation paths but
// never writes back to the log.
func (q *Queue) apply(e event) {
	if e.Op == opAdd {
		if e.Task == nil || e.Task.ID == "" {
			return
		}
		if _, exists := q.tasks[e.Task.ID]; exists {
			return
		}
		stored := e.Task.clone()
		q.tasks[stored.ID] = &stored
		return
	}

	t, ok := q.tasks[e.TaskID]
	if !ok {
		slog.Warn("queue event for unknown task", "op", e.Op, "task_id", e.TaskID)
		return
	}
	switch e.Op {
	case opAssign:
		t.Assignee = e.Operator
		t.Status = StatusAssigned
	case opStatus:
		t.Status = e.Status
		if e.Status.Terminal() {
			t.Lease = nil
			if e.At != nil {
				at := *e.At
				t.CompletedAt = &at
			}
		}
	case opLeaseAcquire:
		at := e.Timestamp
		if e.At != nil {
			at = *e.At
		}
		t.Lease = &Lease{Holder: e.Operator, AcquiredAt: at}
		if t.Status == StatusAssigned {
			t.Status = StatusInProgress
		}
	case opLeaseRelease:
		t.Lease = nil
		if t.Status == StatusInProgress {
			t.Status = StatusAssigned
		}
	case opCorrect:
		if t.Fields == nil && len(e.Fields) > 0 {
			t.Fields = make(map[string]string, len(e.Fields))
		}
		for k, v := range e.Fields {
			t.Fields[k] = v
		}
		if e.DocumentType != "" {
			t.DocumentType = e.DocumentType
		}
	case opPriority:
		if e.Priority != nil {
			t.Priority = *e.Priority
		}
	case opQCStatus:
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, 1)
		}
		t.Metadata["qc_status"] = e.QC
	default:
		slog.Warn("unknown queue event op", "op", e.Op, "task_id", e.TaskID)
	}
}
