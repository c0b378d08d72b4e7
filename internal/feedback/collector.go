// Package feedback keeps the append-only log of verification outcomes, serves
// per-operator and global statistics over a rolling window, and exports
// approved high-confidence entries as training records.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/docflow/internal/jsonl"
)

// Correction is one corrected field inside an entry.
type Correction struct {
	Field      string  `json:"field"`
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// Entry is the durable record of one verification. Append-only; never mutated
// after write.
type Entry struct {
	Timestamp             time.Time         `json:"timestamp"`
	TaskID                string            `json:"task_id"`
	PageID                string            `json:"page_id"`
	BatchID               string            `json:"batch_id,omitempty"`
	Operator              string            `json:"operator"`
	OriginalDocumentType  string            `json:"original_document_type"`
	CorrectedDocumentType string            `json:"corrected_document_type,omitempty"`
	OriginalFields        map[string]string `json:"original_fields,omitempty"`
	CorrectedFields       map[string]string `json:"corrected_fields,omitempty"`
	Corrections           []Correction      `json:"corrections,omitempty"`
	Issues                []string          `json:"issues,omitempty"`
	OperatorConfidence    float64           `json:"operator_confidence"`
	TimeSpentSeconds      float64           `json:"time_spent_seconds"`
	Notes                 string            `json:"notes,omitempty"`
	Approved              bool              `json:"approved"`
	Escalated             bool              `json:"escalated"`
}

// Config holds feedback collector settings.
type Config struct {
	// LogDir holds the date-partitioned feedback log.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" json:"log_dir"`
	// StatsWindow bounds the rolling statistics window.
	StatsWindow time.Duration `mapstructure:"stats_window" yaml:"stats_window" json:"stats_window"`
	// ExportMinConfidence filters training export to confident verdicts.
	ExportMinConfidence float64 `mapstructure:"export_min_confidence" yaml:"export_min_confidence" json:"export_min_confidence"`
}

// DefaultConfig returns default feedback settings.
func DefaultConfig() Config {
	return Config{StatsWindow: 24 * time.Hour, ExportMinConfidence: 0.8}
}

const logBase = "feedback"

// Collector appends entries and answers statistics queries by scanning the
// log, so restarts lose nothing.
type Collector struct {
	cfg    Config
	writer *jsonl.Writer
	now    func() time.Time
}

// New creates a collector writing under cfg.LogDir.
func New(cfg Config) *Collector {
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = DefaultConfig().StatsWindow
	}
	if cfg.ExportMinConfidence <= 0 {
		cfg.ExportMinConfidence = DefaultConfig().ExportMinConfidence
	}
	return &Collector{
		cfg:    cfg,
		writer: jsonl.NewWriter(cfg.LogDir, logBase),
		now:    time.Now,
	}
}

// SetClock overrides the collector clock, for tests.
func (c *Collector) SetClock(now func() time.Time) { c.now = now }

// Record appends one entry to the log.
func (c *Collector) Record(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}
	return c.writer.Append(e)
}

// Stats aggregates verification outcomes.
type Stats struct {
	Total                 int            `json:"total"`
	Approved              int            `json:"approved"`
	Rejected              int            `json:"rejected"`
	Escalated             int            `json:"escalated"`
	ApprovalRate          float64        `json:"approval_rate"`
	CorrectionsByField    map[string]int `json:"corrections_by_field"`
	IssueCounts           map[string]int `json:"issue_counts"`
	AvgOperatorConfidence float64        `json:"avg_operator_confidence"`
	AvgTimeSpentSeconds   float64        `json:"avg_time_spent_seconds"`
}

// OperatorStats aggregates one operator's entries over the rolling window.
func (c *Collector) OperatorStats(operator string) (Stats, error) {
	return c.stats(func(e Entry) bool { return e.Operator == operator })
}

// GlobalStats aggregates all entries over the rolling window.
func (c *Collector) GlobalStats() (Stats, error) {
	return c.stats(func(Entry) bool { return true })
}

func (c *Collector) stats(match func(Entry) bool) (Stats, error) {
	s := Stats{
		CorrectionsByField: make(map[string]int),
		IssueCounts:        make(map[string]int),
	}
	cutoff := c.now().Add(-c.cfg.StatsWindow)
	confSum, timeSum := 0.0, 0.0
	err := c.forEach(func(e Entry) {
		if e.Timestamp.Before(cutoff) || !match(e) {
			return
		}
		s.Total++
		switch {
		case e.Escalated:
			s.Escalated++
		case e.Approved:
			s.Approved++
		default:
			s.Rejected++
		}
		for _, corr := range e.Corrections {
			s.CorrectionsByField[corr.Field]++
		}
		for _, issue := range e.Issues {
			s.IssueCounts[issue]++
		}
		confSum += e.OperatorConfidence
		timeSum += e.TimeSpentSeconds
	})
	if err != nil {
		return Stats{}, err
	}
	if s.Total > 0 {
		s.ApprovalRate = float64(s.Approved) / float64(s.Total)
		s.AvgOperatorConfidence = confSum / float64(s.Total)
		s.AvgTimeSpentSeconds = timeSum / float64(s.Total)
	}
	return s, nil
}

// TrainingRecord is one flattened, training-ready export row.
type TrainingRecord struct {
	PageID             string            `json:"page_id"`
	DocumentType       string            `json:"document_type"`
	Fields             map[string]string `json:"fields"`
	OperatorConfidence float64           `json:"operator_confidence"`
	VerifiedAt         time.Time         `json:"verified_at"`
	Source             string            `json:"source"`
}

// ExportForTraining writes one flattened record per approved, high-operator-
// confidence entry to path and returns the record count.
func (c *Collector) ExportForTraining(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("feedback export create: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	count := 0
	err = c.forEach(func(e Entry) {
		if !e.Approved || e.Escalated || e.OperatorConfidence < c.cfg.ExportMinConfidence {
			return
		}
		docType := e.OriginalDocumentType
		if e.CorrectedDocumentType != "" {
			docType = e.CorrectedDocumentType
		}
		fields := make(map[string]string, len(e.OriginalFields)+len(e.CorrectedFields))
		for k, v := range e.OriginalFields {
			fields[k] = v
		}
		for k, v := range e.CorrectedFields {
			fields[k] = v
		}
		rec := TrainingRecord{
			PageID:             e.PageID,
			DocumentType:       docType,
			Fields:             fields,
			OperatorConfidence: e.OperatorConfidence,
			VerifiedAt:         e.Timestamp,
			Source:             "human_verified",
		}
		if encErr := enc.Encode(rec); encErr != nil {
			slog.Error("feedback export encode failed", "page_id", e.PageID, "error", encErr)
			return
		}
		count++
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

func (c *Collector) forEach(fn func(Entry)) error {
	return jsonl.ForEach(c.cfg.LogDir, logBase, func(line []byte) error {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("skipping undecodable feedback entry", "error", err)
			return nil
		}
		fn(e)
		return nil
	})
}
