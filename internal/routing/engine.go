package routing

import (
	"log/slog"
	"time"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/extract"
	"github.com/MeKo-Tech/docflow/internal/jsonl"
	"github.com/MeKo-Tech/docflow/internal/metrics"
	"github.com/MeKo-Tech/docflow/internal/queue"
)

// Routes and severities.
const (
	RouteAuto   = "auto"
	RouteQC     = "qc_queue"
	RouteManual = "manual_review"

	SeverityAuto   = "auto"
	SeverityQC     = "qc"
	SeverityManual = "manual"
)

// Config holds routing engine settings.
type Config struct {
	Thresholds Thresholds          `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
	Overrides  map[string]Override `mapstructure:"overrides" yaml:"overrides" json:"overrides,omitempty"`
	// AuditDir holds the date-partitioned audit log; empty disables auditing.
	AuditDir string `mapstructure:"audit_dir" yaml:"audit_dir" json:"audit_dir"`
}

// DefaultConfig returns routing defaults.
func DefaultConfig() Config {
	return Config{Thresholds: DefaultThresholds()}
}

// Decision is the routing outcome for one artifact. Computed once, immutable.
type Decision struct {
	Route                    string     `json:"route"`
	Severity                 string     `json:"severity"`
	Reasons                  []string   `json:"reasons"`
	ClassificationConfidence float64    `json:"classification_confidence"`
	AvgFieldConfidence       float64    `json:"avg_field_confidence"`
	HasFieldConfidence       bool       `json:"has_field_confidence"`
	ThresholdsUsed           Thresholds `json:"thresholds_used"`
	TaskID                   string     `json:"task_id,omitempty"`
}

// auditRecord is one line of the append-only audit log. External dashboards
// tolerate unknown fields, so additions here are non-breaking.
type auditRecord struct {
	Timestamp                time.Time  `json:"timestamp"`
	PageID                   string     `json:"page_id"`
	BatchID                  string     `json:"batch_id,omitempty"`
	OperatorID               string     `json:"operator_id,omitempty"`
	Route                    string     `json:"route"`
	Severity                 string     `json:"severity"`
	DocumentType             string     `json:"document_type"`
	ClassificationConfidence float64    `json:"classification_confidence"`
	AvgFieldConfidence       float64    `json:"avg_field_confidence"`
	Reasons                  []string   `json:"reasons"`
	ThresholdsUsed           Thresholds `json:"thresholds_used"`
}

// Engine decides routes and enqueues review tasks for non-auto pages.
type Engine struct {
	cfg   Config
	queue *queue.Queue
	audit *jsonl.Writer
}

// New creates a routing engine. The queue may be nil for decide-only use
// (tests, dry runs); audit logging is active when cfg.AuditDir is set.
func New(cfg Config, q *queue.Queue) *Engine {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	e := &Engine{cfg: cfg, queue: q}
	if cfg.AuditDir != "" {
		e.audit = jsonl.NewWriter(cfg.AuditDir, "routing_audit")
	}
	return e
}

// ThresholdsFor merges the per-type override onto the defaults.
func (e *Engine) ThresholdsFor(docType string) Thresholds {
	th := e.cfg.Thresholds
	if o, ok := e.cfg.Overrides[docType]; ok {
		th = o.apply(th)
	}
	return th
}

// Decide evaluates the rule table for one structured artifact without side
// effects.
func (e *Engine) Decide(doc *artifact.Structured) Decision {
	th := e.ThresholdsFor(doc.DocumentType)
	avg, hasAvg := doc.AvgFieldConfidence()

	required := extract.RequiredFields(doc.DocumentType)
	missing := 0
	for _, f := range required {
		if v, ok := doc.Fields[f]; !ok || v == "" {
			missing++
		}
	}

	worst, reasons := evaluate(ruleInput{
		docType:         doc.DocumentType,
		confidence:      doc.Confidence,
		avgFieldConf:    avg,
		hasFieldConf:    hasAvg,
		requiredFields:  required,
		missingRequired: missing,
		thresholds:      th,
	})

	d := Decision{
		Route:                    RouteAuto,
		Severity:                 SeverityAuto,
		Reasons:                  reasons,
		ClassificationConfidence: doc.Confidence,
		AvgFieldConfidence:       avg,
		HasFieldConfidence:       hasAvg,
		ThresholdsUsed:           th,
	}
	switch worst {
	case tierManual:
		d.Route = RouteManual
		d.Severity = SeverityManual
	case tierQC:
		d.Route = RouteQC
		d.Severity = SeverityQC
	}
	return d
}

// Route decides and applies side effects: for non-auto severities it appends
// an audit record (best-effort) and enqueues a QC task carrying a snapshot of
// the artifact. The decision is stored in the artifact metadata.
func (e *Engine) Route(doc *artifact.Structured, pctx *artifact.Context) Decision {
	d := e.Decide(doc)

	if d.Severity != SeverityAuto {
		e.writeAudit(doc, pctx, d)
		if e.queue != nil {
			d.TaskID = e.enqueue(doc, d)
		}
	}
	metrics.RoutingDecisions.WithLabelValues(d.Route, doc.DocumentType).Inc()

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, 1)
	}
	doc.Metadata["routing"] = d
	if doc.Source != nil {
		doc.Source.Annotations.Record("routing", d.Route, map[string]any{
			"severity": d.Severity,
			"reasons":  d.Reasons,
			"task_id":  d.TaskID,
		})
	}
	return d
}

// writeAudit appends one audit line; failures are logged and swallowed so a
// durability problem never aborts the pipeline.
func (e *Engine) writeAudit(doc *artifact.Structured, pctx *artifact.Context, d Decision) {
	if e.audit == nil {
		return
	}
	rec := auditRecord{
		Timestamp:                time.Now(),
		PageID:                   doc.PageID,
		Route:                    d.Route,
		Severity:                 d.Severity,
		DocumentType:             doc.DocumentType,
		ClassificationConfidence: d.ClassificationConfidence,
		AvgFieldConfidence:       d.AvgFieldConfidence,
		Reasons:                  d.Reasons,
		ThresholdsUsed:           d.ThresholdsUsed,
	}
	if pctx != nil {
		rec.BatchID = pctx.BatchID
		rec.OperatorID = pctx.OperatorID
	}
	if err := e.audit.Append(rec); err != nil {
		slog.Error("audit append failed", "page_id", doc.PageID, "error", err)
	}
}

func (e *Engine) enqueue(doc *artifact.Structured, d Decision) string {
	t := queue.NewTask("", doc.PageID)
	t.BatchID = doc.BatchID
	t.DocumentType = doc.DocumentType
	t.Severity = d.Severity
	t.Priority = queue.PriorityMedium
	if d.Severity == SeverityManual {
		t.Priority = queue.PriorityHigh
	}
	t.ImagePath = doc.ImagePath
	t.OCRTextPath = doc.OCRTextPath
	t.Fields = doc.Fields
	t.FieldConfidences = doc.FieldConfidences
	t.Reasons = d.Reasons
	t.Metadata = map[string]any{
		"classification_confidence": d.ClassificationConfidence,
		"avg_field_confidence":      d.AvgFieldConfidence,
		"thresholds_used":           d.ThresholdsUsed,
	}
	t.Artifact = doc.Source
	if err := e.queue.Add(t); err != nil {
		slog.Error("qc task enqueue failed", "page_id", doc.PageID, "error", err)
		return ""
	}
	return t.ID
}
