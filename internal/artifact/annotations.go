package artifact

import "time"

// Annotation records the outcome of one pipeline stage on one page.
type Annotation struct {
	Stage      string         `json:"stage"`
	Status     string         `json:"status"`
	RecordedAt time.Time      `json:"recorded_at"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// Annotations is the append-only set of per-stage records on a page. Entries
// are never removed or rewritten; a stage that runs twice appends twice and
// lookups return the most recent entry.
type Annotations struct {
	entries []Annotation
}

// Append adds a stage record.
func (a *Annotations) Append(ann Annotation) {
	if ann.RecordedAt.IsZero() {
		ann.RecordedAt = time.Now()
	}
	a.entries = append(a.entries, ann)
}

// Record is a convenience for Append with just a status and detail map.
func (a *Annotations) Record(stage, status string, detail map[string]any) {
	a.Append(Annotation{Stage: stage, Status: status, Detail: detail})
}

// Stage returns the most recent annotation for the named stage.
func (a *Annotations) Stage(name string) (Annotation, bool) {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Stage == name {
			return a.entries[i], true
		}
	}
	return Annotation{}, false
}

// Len returns the number of recorded annotations.
func (a *Annotations) Len() int { return len(a.entries) }

// Entries returns a copy of all annotations in append order.
func (a *Annotations) Entries() []Annotation {
	out := make([]Annotation, len(a.entries))
	copy(out, a.entries)
	return out
}

// Snapshot flattens the annotations into a nested map keyed by
// "processing.<stage>", the shape persisted with structured artifacts and
// task metadata. Later entries for the same stage win.
func (a *Annotations) Snapshot() map[string]any {
	processing := make(map[string]any, len(a.entries))
	for _, e := range a.entries {
		m := map[string]any{
			"status":      e.Status,
			"recorded_at": e.RecordedAt,
			"elapsed_ns":  int64(e.Elapsed),
		}
		for k, v := range e.Detail {
			m[k] = v
		}
		processing[e.Stage] = m
	}
	return map[string]any{"processing": processing}
}
