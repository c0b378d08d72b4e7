package artifact

import "time"

// Structured is the pipeline's terminal output for one page. It is created
// once by the structurer stage and immutable afterward.
type Structured struct {
	PageID           string             `json:"page_id"`
	BatchID          string             `json:"batch_id"`
	ImagePath        string             `json:"image_path"`
	OCRTextPath      string             `json:"ocr_text_path,omitempty"`
	DocumentType     string             `json:"document_type"`
	Confidence       float64            `json:"confidence"`
	Fields           map[string]string  `json:"fields"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
	ProcessedAt      time.Time          `json:"processed_at"`
	Metadata         map[string]any     `json:"metadata,omitempty"`

	// Source keeps a handle on the originating page so that post-routing
	// collaborators (QC verification) can write status back onto it. It is
	// process-local and never serialized.
	Source *Page `json:"-"`
}

// Structure converts a fully processed page into its structured artifact.
func Structure(p *Page, pctx *Context) *Structured {
	docType := p.DocumentType
	if docType == "" {
		docType = "unknown"
	}
	fields := make(map[string]string, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	confs := make(map[string]float64, len(p.FieldConfidences))
	for k, v := range p.FieldConfidences {
		confs[k] = v
	}
	s := &Structured{
		PageID:           p.ID,
		ImagePath:        p.ImagePath,
		OCRTextPath:      p.OCRTextPath,
		DocumentType:     docType,
		Confidence:       p.Classification,
		Fields:           fields,
		FieldConfidences: confs,
		ProcessedAt:      time.Now(),
		Source:           p,
	}
	if pctx != nil {
		s.BatchID = pctx.BatchID
	}
	if p.Annotations != nil {
		s.Metadata = p.Annotations.Snapshot()
	}
	return s
}

// AvgFieldConfidence returns the arithmetic mean of the per-field confidences
// and whether any were recorded.
func (s *Structured) AvgFieldConfidence() (float64, bool) {
	if len(s.FieldConfidences) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, c := range s.FieldConfidences {
		sum += c
	}
	return sum / float64(len(s.FieldConfidences)), true
}
