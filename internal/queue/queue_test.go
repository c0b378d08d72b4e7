package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(Config{})
	require.NoError(t, err)
	return q
}

func addTask(t *testing.T, q *Queue, id string, p Priority, createdAt time.Time) {
	t.Helper()
	task := NewTask(id, "page-"+id)
	task.Priority = p
	task.CreatedAt = createdAt
	require.NoError(t, q.Add(task))
}

func TestAddAndGet(t *testing.T) {
	q := newTestQueue(t)
	task := NewTask("t1", "page-1")
	task.DocumentType = "invoice"
	require.NoError(t, q.Add(task))

	got, ok := q.Get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "invoice", got.DocumentType)

	_, ok = q.Get("missing")
	assert.False(t, ok)
}

func TestAddRejectsDuplicates(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "page-1")))
	err := q.Add(NewTask("t1", "page-2"))
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestAddStoresCopy(t *testing.T) {
	q := newTestQueue(t)
	task := NewTask("t1", "page-1")
	task.Fields = map[string]string{"total_amount": "10.00"}
	require.NoError(t, q.Add(task))

	task.Fields["total_amount"] = "mutated"
	got, _ := q.Get("t1")
	assert.Equal(t, "10.00", got.Fields["total_amount"])
}

func TestGetPendingOrdering(t *testing.T) {
	q := newTestQueue(t)
	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	addTask(t, q, "m1", PriorityMedium, base)
	addTask(t, q, "h1", PriorityHigh, base.Add(time.Minute))
	addTask(t, q, "m2", PriorityMedium, base.Add(2*time.Minute))

	var ids []string
	for _, task := range q.GetPending(Filter{}, 0) {
		ids = append(ids, task.ID)
	}
	// High priority jumps the line; FIFO within a band.
	assert.Equal(t, []string{"h1", "m1", "m2"}, ids)

	limited := q.GetPending(Filter{}, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "h1", limited[0].ID)
}

func TestGetPendingTiesBreakOnID(t *testing.T) {
	q := newTestQueue(t)
	at := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	addTask(t, q, "b", PriorityMedium, at)
	addTask(t, q, "a", PriorityMedium, at)

	got := q.GetPending(Filter{}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
}

func TestGetPendingFilters(t *testing.T) {
	q := newTestQueue(t)
	inv := NewTask("t1", "p1")
	inv.DocumentType = "invoice"
	inv.Severity = "qc"
	require.NoError(t, q.Add(inv))
	letter := NewTask("t2", "p2")
	letter.DocumentType = "letter"
	letter.Severity = "manual"
	require.NoError(t, q.Add(letter))
	require.NoError(t, q.Assign("t2", "op-1"))

	assert.Len(t, q.GetPending(Filter{DocumentType: "invoice"}, 0), 1)
	assert.Len(t, q.GetPending(Filter{Severity: "manual"}, 0), 1)
	assert.Len(t, q.GetPending(Filter{Assignee: "op-1"}, 0), 1)
	assert.Len(t, q.GetPending(Filter{Unassigned: true}, 0), 1)
}

func TestGetPendingExcludesTerminal(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-1"))
	require.NoError(t, q.SetStatus("t1", StatusCompleted))
	assert.Empty(t, q.GetPending(Filter{}, 0))
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to assigned", StatusPending, StatusAssigned, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"pending to in_progress", StatusPending, StatusInProgress, false},
		{"assigned to in_progress", StatusAssigned, StatusInProgress, true},
		{"assigned to completed", StatusAssigned, StatusCompleted, true},
		{"in_progress to completed", StatusInProgress, StatusCompleted, true},
		{"in_progress to rejected", StatusInProgress, StatusRejected, true},
		{"in_progress to escalated", StatusInProgress, StatusEscalated, true},
		{"in_progress to assigned", StatusInProgress, StatusAssigned, true},
		{"completed is terminal", StatusCompleted, StatusAssigned, false},
		{"escalated is terminal", StatusEscalated, StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, transitionAllowed(tt.from, tt.to))
		})
	}
}

func TestSetStatusInvalidTransition(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	err := q.SetStatus("t1", StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	got, _ := q.Get("t1")
	assert.Equal(t, StatusPending, got.Status)
}

func TestTerminalStatusClearsLeaseAndStampsCompletion(t *testing.T) {
	q := newTestQueue(t)
	fixed := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return fixed })

	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-1"))
	require.NoError(t, q.AcquireLease("t1", "op-1"))
	require.NoError(t, q.SetStatus("t1", StatusCompleted))

	got, _ := q.Get("t1")
	assert.Nil(t, got.Lease)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, fixed, *got.CompletedAt)
}

func TestLeaseMutualExclusion(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-a"))

	require.NoError(t, q.AcquireLease("t1", "op-a"))
	err := q.AcquireLease("t1", "op-b")
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// Re-acquiring one's own lease is allowed.
	assert.NoError(t, q.AcquireLease("t1", "op-a"))
	assert.True(t, q.HoldsLease("t1", "op-a"))
	assert.False(t, q.HoldsLease("t1", "op-b"))
}

func TestLeaseConcurrentClaims(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-x"))

	operators := []string{"op-1", "op-2", "op-3", "op-4"}
	var wg sync.WaitGroup
	wins := make(chan string, len(operators))
	for _, op := range operators {
		op := op
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.AcquireLease("t1", op) == nil {
				wins <- op
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for op := range wins {
		winners = append(winners, op)
	}
	require.Len(t, winners, 1)
	assert.True(t, q.HoldsLease("t1", winners[0]))
}

func TestLeaseExpiry(t *testing.T) {
	q, err := New(Config{LeaseTTL: 30 * time.Minute})
	require.NoError(t, err)
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })

	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-a"))
	require.NoError(t, q.AcquireLease("t1", "op-a"))

	// Within the TTL the lease holds.
	now = now.Add(29 * time.Minute)
	assert.ErrorIs(t, q.AcquireLease("t1", "op-b"), ErrLeaseHeld)
	assert.True(t, q.HoldsLease("t1", "op-a"))

	// Past the TTL anyone can take over.
	now = now.Add(2 * time.Minute)
	assert.False(t, q.HoldsLease("t1", "op-a"))
	require.NoError(t, q.AcquireLease("t1", "op-b"))
	assert.True(t, q.HoldsLease("t1", "op-b"))
}

func TestReleaseLeaseAuthorization(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.Assign("t1", "op-a"))
	require.NoError(t, q.AcquireLease("t1", "op-a"))

	assert.ErrorIs(t, q.ReleaseLease("t1", "op-b"), ErrNotLeaseHolder)

	require.NoError(t, q.ReleaseLease("t1", "op-a"))
	got, _ := q.Get("t1")
	assert.Nil(t, got.Lease)
	// Releasing reverts in_progress to assigned so work can resume.
	assert.Equal(t, StatusAssigned, got.Status)
}

func TestApplyCorrectionsRequiresLease(t *testing.T) {
	q := newTestQueue(t)
	task := NewTask("t1", "p1")
	task.DocumentType = "invoice"
	task.Fields = map[string]string{"total_amount": "10.00"}
	require.NoError(t, q.Add(task))
	require.NoError(t, q.Assign("t1", "op-a"))

	err := q.ApplyCorrections("t1", "op-a", map[string]string{"total_amount": "12.00"}, "")
	assert.ErrorIs(t, err, ErrNotLeaseHolder)

	require.NoError(t, q.AcquireLease("t1", "op-a"))
	require.NoError(t, q.ApplyCorrections("t1", "op-a",
		map[string]string{"total_amount": "12.00", "invoice_number": "INV-9"}, "form"))

	got, _ := q.Get("t1")
	assert.Equal(t, "12.00", got.Fields["total_amount"])
	assert.Equal(t, "INV-9", got.Fields["invoice_number"])
	assert.Equal(t, "form", got.DocumentType)
}

func TestSetPriority(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add(NewTask("t1", "p1")))
	require.NoError(t, q.SetPriority("t1", PriorityCritical))
	got, _ := q.Get("t1")
	assert.Equal(t, PriorityCritical, got.Priority)
}

func TestWorkload(t *testing.T) {
	q := newTestQueue(t)
	now := time.Date(2026, 8, 27, 15, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, q.Add(NewTask(id, "p-"+id)))
		require.NoError(t, q.Assign(id, "op-a"))
	}
	require.NoError(t, q.AcquireLease("t2", "op-a"))
	require.NoError(t, q.AcquireLease("t3", "op-a"))
	require.NoError(t, q.SetStatus("t3", StatusCompleted))
	// A task completed yesterday does not count toward today.
	q.SetClock(func() time.Time { return now.Add(-30 * time.Hour) })
	require.NoError(t, q.AcquireLease("t4", "op-a"))
	require.NoError(t, q.SetStatus("t4", StatusCompleted))
	q.SetClock(func() time.Time { return now })

	w := q.Workload("op-a")
	assert.Equal(t, 1, w.Assigned)
	assert.Equal(t, 1, w.InProgress)
	assert.Equal(t, 1, w.CompletedToday)

	assert.Zero(t, q.Workload("op-b").Assigned)
}

func TestStats(t *testing.T) {
	q := newTestQueue(t)
	inv := NewTask("t1", "p1")
	inv.DocumentType = "invoice"
	inv.Severity = "qc"
	require.NoError(t, q.Add(inv))
	man := NewTask("t2", "p2")
	man.DocumentType = "invoice"
	man.Severity = "manual"
	man.Priority = PriorityHigh
	require.NoError(t, q.Add(man))
	require.NoError(t, q.Assign("t2", "op-a"))

	s := q.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByStatus["pending"])
	assert.Equal(t, 1, s.ByStatus["assigned"])
	assert.Equal(t, 2, s.ByDocumentType["invoice"])
	assert.Equal(t, 1, s.BySeverity["qc"])
	assert.Equal(t, 1, s.ByPriority["high"])
}

func TestReplayReconstructsState(t *testing.T) {
	dir := t.TempDir()
	q, err := New(Config{LogDir: dir})
	require.NoError(t, err)

	task := NewTask("t1", "p1")
	task.DocumentType = "invoice"
	task.Fields = map[string]string{"total_amount": "10.00"}
	require.NoError(t, q.Add(task))
	require.NoError(t, q.Add(NewTask("t2", "p2")))
	require.NoError(t, q.Assign("t1", "op-a"))
	require.NoError(t, q.AcquireLease("t1", "op-a"))
	require.NoError(t, q.ApplyCorrections("t1", "op-a", map[string]string{"total_amount": "12.00"}, ""))
	require.NoError(t, q.ReleaseLease("t1", "op-a"))
	require.NoError(t, q.AcquireLease("t1", "op-a"))
	require.NoError(t, q.SetStatus("t1", StatusCompleted))
	require.NoError(t, q.AnnotateQC("t1", map[string]any{"outcome": "approved"}))
	require.NoError(t, q.SetPriority("t2", PriorityCritical))

	reopened, err := New(Config{LogDir: dir})
	require.NoError(t, err)

	t1, ok := reopened.Get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, t1.Status)
	assert.Equal(t, "op-a", t1.Assignee)
	assert.Nil(t, t1.Lease)
	assert.NotNil(t, t1.CompletedAt)
	assert.Equal(t, "12.00", t1.Fields["total_amount"])
	require.NotNil(t, t1.Metadata)
	assert.Contains(t, t1.Metadata, "qc_status")

	t2, ok := reopened.Get("t2")
	require.True(t, ok)
	assert.Equal(t, StatusPending, t2.Status)
	assert.Equal(t, PriorityCritical, t2.Priority)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "medium", PriorityMedium.String())
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "unknown", Priority(99).String())
}
