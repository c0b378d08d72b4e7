package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MeKo-Tech/docflow/internal/metrics"
)

// Contract violations surfaced to callers. Concurrent operators routinely
// race, so these are expected outcomes, not faults.
var (
	ErrDuplicateTask  = errors.New("queue: duplicate task id")
	ErrUnknownTask    = errors.New("queue: unknown task id")
	ErrInvalidStatus  = errors.New("queue: task not in an eligible status")
	ErrLeaseHeld      = errors.New("queue: lease held by another operator")
	ErrNotLeaseHolder = errors.New("queue: caller does not hold the lease")
)

// Config holds queue settings.
type Config struct {
	// LeaseTTL is the advisory lease lifetime. An expired lease makes a task
	// claimable by any operator without a reaper process.
	LeaseTTL time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl" json:"lease_ttl"`
	// LogDir holds the task event log; empty disables persistence.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" json:"log_dir"`
}

// DefaultConfig returns default queue settings.
func DefaultConfig() Config {
	return Config{LeaseTTL: 30 * time.Minute}
}

// Queue is the in-memory task index plus its append-only event log. A single
// mutex guards every read-modify-write sequence so concurrent claims never
// double-assign a task.
type Queue struct {
	mu    sync.Mutex
	cfg   Config
	tasks map[string]*Task
	log   eventLog
	now   func() time.Time
}

// New creates an empty queue. When cfg.LogDir is set, previously persisted
// state is replayed from the event log.
func New(cfg Config) (*Queue, error) {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultConfig().LeaseTTL
	}
	q := &Queue{
		cfg:   cfg,
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
	if cfg.LogDir != "" {
		q.log = newFileEventLog(cfg.LogDir)
		if err := q.replay(); err != nil {
			return nil, fmt.Errorf("queue load: %w", err)
		}
	}
	return q, nil
}

// SetClock overrides the queue clock, for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Add registers a new task. Duplicate ids are rejected.
func (q *Queue) Add(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownTask)
	}
	if _, exists := q.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = q.now()
	}
	stored := t.clone()
	stored.Artifact = t.Artifact
	q.tasks[t.ID] = &stored
	q.appendEvent(event{Op: opAdd, TaskID: t.ID, Task: &stored})
	q.updateDepthMetrics()
	return nil
}

// Get returns a copy of the task.
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	out := t.clone()
	out.Artifact = t.Artifact
	return out, true
}

// Filter narrows GetPending results. Zero values match everything.
type Filter struct {
	// Assignee matches tasks assigned to this operator.
	Assignee string
	// Unassigned matches only tasks with no assignee.
	Unassigned   bool
	Severity     string
	DocumentType string
}

// GetPending returns open (pending or assigned) tasks matching the filter,
// ordered by priority descending then creation time ascending. The ordering
// is deterministic and stable across repeated reads of the same state: FIFO
// fairness within a priority band while manual-review work jumps the line.
func (q *Queue) GetPending(f Filter, limit int) []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var open []*Task
	for _, t := range q.tasks {
		if t.Status != StatusPending && t.Status != StatusAssigned {
			continue
		}
		if f.Assignee != "" && t.Assignee != f.Assignee {
			continue
		}
		if f.Unassigned && t.Assignee != "" {
			continue
		}
		if f.Severity != "" && t.Severity != f.Severity {
			continue
		}
		if f.DocumentType != "" && t.DocumentType != f.DocumentType {
			continue
		}
		open = append(open, t)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Priority != open[j].Priority {
			return open[i].Priority > open[j].Priority
		}
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	out := make([]Task, len(open))
	for i, t := range open {
		out[i] = t.clone()
		out[i].Artifact = t.Artifact
	}
	return out
}

// Assign sets the assignee on a pending or assigned task.
func (q *Queue) Assign(id, operator string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Status != StatusPending && t.Status != StatusAssigned {
		return fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, t.Status)
	}
	t.Assignee = operator
	t.Status = StatusAssigned
	q.appendEvent(event{Op: opAssign, TaskID: id, Operator: operator})
	q.updateDepthMetrics()
	return nil
}

// SetStatus moves a task through its lifecycle. Invalid transitions are
// rejected without partial effect. Terminal transitions clear the lease.
func (q *Queue) SetStatus(id string, status Status) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if !transitionAllowed(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, t.Status, status)
	}
	t.Status = status
	var at *time.Time
	if status.Terminal() {
		t.Lease = nil
		now := q.now()
		t.CompletedAt = &now
		at = &now
	}
	q.appendEvent(event{Op: opStatus, TaskID: id, Status: status, At: at})
	q.updateDepthMetrics()
	return nil
}

// AcquireLease claims the task for an operator. It succeeds when the task is
// unheld, the current lease has expired, or the caller already holds it.
// Acquiring also advances an assigned task to in_progress.
func (q *Queue) AcquireLease(id, operator string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidStatus, id, t.Status)
	}
	if t.Lease != nil && t.Lease.Holder != operator && !q.leaseExpired(t) {
		return fmt.Errorf("%w: %s held by %s", ErrLeaseHeld, id, t.Lease.Holder)
	}
	now := q.now()
	t.Lease = &Lease{Holder: operator, AcquiredAt: now}
	if t.Status == StatusAssigned {
		t.Status = StatusInProgress
	}
	q.appendEvent(event{Op: opLeaseAcquire, TaskID: id, Operator: operator, At: &now})
	q.updateDepthMetrics()
	return nil
}

// ReleaseLease gives up a lease. Only the current holder may release; the
// task reverts from in_progress to assigned so work can resume later.
func (q *Queue) ReleaseLease(id, operator string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Lease == nil || t.Lease.Holder != operator {
		return fmt.Errorf("%w: %s", ErrNotLeaseHolder, id)
	}
	t.Lease = nil
	if t.Status == StatusInProgress {
		t.Status = StatusAssigned
	}
	q.appendEvent(event{Op: opLeaseRelease, TaskID: id, Operator: operator})
	q.updateDepthMetrics()
	return nil
}

// HoldsLease reports whether the operator holds a live lease on the task.
func (q *Queue) HoldsLease(id, operator string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok || t.Lease == nil {
		return false
	}
	return t.Lease.Holder == operator && !q.leaseExpired(t)
}

// leaseExpired must be called under q.mu.
func (q *Queue) leaseExpired(t *Task) bool {
	return t.Lease != nil && q.now().Sub(t.Lease.AcquiredAt) > q.cfg.LeaseTTL
}

// ApplyCorrections overwrites task fields with corrected values and
// optionally the document type. The caller must hold the lease.
func (q *Queue) ApplyCorrections(id, operator string, fields map[string]string, docType string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Lease == nil || t.Lease.Holder != operator {
		return fmt.Errorf("%w: %s", ErrNotLeaseHolder, id)
	}
	if t.Fields == nil && len(fields) > 0 {
		t.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		t.Fields[k] = v
	}
	if docType != "" {
		t.DocumentType = docType
	}
	q.appendEvent(event{Op: opCorrect, TaskID: id, Operator: operator, Fields: fields, DocumentType: docType})
	return nil
}

// SetPriority changes a task's priority (used for escalation).
func (q *Queue) SetPriority(id string, p Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	t.Priority = p
	q.appendEvent(event{Op: opPriority, TaskID: id, Priority: &p})
	return nil
}

// AnnotateQC stores the verification status snapshot in the task metadata.
func (q *Queue) AnnotateQC(id string, qc map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, 1)
	}
	t.Metadata["qc_status"] = qc
	q.appendEvent(event{Op: opQCStatus, TaskID: id, QC: qc})
	return nil
}

// Workload summarizes one operator's open and recently completed work.
type Workload struct {
	Operator       string `json:"operator"`
	Assigned       int    `json:"assigned"`
	InProgress     int    `json:"in_progress"`
	CompletedToday int    `json:"completed_today"`
}

// Workload reports assignment counts for an operator, used for load balancing
// across an operator pool.
func (q *Queue) Workload(operator string) Workload {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := Workload{Operator: operator}
	dayStart := q.now().Truncate(24 * time.Hour)
	for _, t := range q.tasks {
		if t.Assignee != operator {
			continue
		}
		switch t.Status {
		case StatusAssigned:
			w.Assigned++
		case StatusInProgress:
			w.InProgress++
		case StatusCompleted:
			if t.CompletedAt != nil && !t.CompletedAt.Before(dayStart) {
				w.CompletedToday++
			}
		}
	}
	return w
}

// Stats is the global queue breakdown.
type Stats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	BySeverity     map[string]int `json:"by_severity"`
	ByDocumentType map[string]int `json:"by_document_type"`
	ByPriority     map[string]int `json:"by_priority"`
}

// Stats returns global counts by status, severity, document type, priority.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{
		ByStatus:       make(map[string]int),
		BySeverity:     make(map[string]int),
		ByDocumentType: make(map[string]int),
		ByPriority:     make(map[string]int),
	}
	for _, t := range q.tasks {
		s.Total++
		s.ByStatus[string(t.Status)]++
		if t.Severity != "" {
			s.BySeverity[t.Severity]++
		}
		if t.DocumentType != "" {
			s.ByDocumentType[t.DocumentType]++
		}
		s.ByPriority[t.Priority.String()]++
	}
	return s
}

// updateDepthMetrics must be called under q.mu.
func (q *Queue) updateDepthMetrics() {
	counts := map[Status]int{}
	for _, t := range q.tasks {
		counts[t.Status]++
	}
	for _, s := range []Status{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusRejected, StatusEscalated} {
		metrics.QueueTasks.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
