// Package extract pulls structured fields out of OCR text with per-document-
// type pattern rules, and re-OCRs detected table regions into row-delimited
// side files.
package extract

import (
	"regexp"
	"strings"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
)

// FieldsStageName identifies the field extraction stage in page annotations.
const FieldsStageName = "fields"

// FieldRule matches one field in OCR text and scores the structural
// plausibility of the matched value.
type FieldRule struct {
	Name    string
	Pattern *regexp.Regexp
	// Score estimates confidence in [0,1] for a matched value.
	Score func(value string) float64
}

var (
	isoDate = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	anyDate = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})\b`)
)

// fieldRules holds the per-document-type extraction rules.
var fieldRules = map[string][]FieldRule{
	"invoice": {
		{
			Name:    "invoice_number",
			Pattern: regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`),
			Score:   scoreIdentifier,
		},
		{
			Name:    "total_amount",
			Pattern: regexp.MustCompile(`(?i)total(?:\s+(?:amount|due))?\s*[:]?\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
			Score:   scoreAmount,
		},
		{
			Name:    "invoice_date",
			Pattern: anyDate,
			Score:   scoreDate,
		},
	},
	"id_document": {
		{
			Name:    "id_number",
			Pattern: regexp.MustCompile(`(?i)(?:id|passport|document)\s*(?:number|no\.?)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{3,})`),
			Score:   scoreIdentifier,
		},
		{
			Name:    "date_of_birth",
			Pattern: regexp.MustCompile(`(?i)(?:date\s+of\s+birth|dob|born)\s*[:]?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4})`),
			Score:   scoreDate,
		},
		{
			Name:    "full_name",
			Pattern: regexp.MustCompile(`(?i)(?:full\s+)?name\s*[:]\s*([A-Za-z][A-Za-z ,.'-]{1,60})`),
			Score:   scoreName,
		},
	},
	"letter": {
		{
			Name:    "letter_date",
			Pattern: anyDate,
			Score:   scoreDate,
		},
		{
			Name:    "signature_name",
			Pattern: regexp.MustCompile(`(?i)(?:sincerely|regards|faithfully)[,\s]*\n+\s*([A-Za-z][A-Za-z .'-]{1,60})`),
			Score:   scoreName,
		},
	},
	"form": {
		{
			Name:    "form_id",
			Pattern: regexp.MustCompile(`(?i)form\s*(?:id|number|no\.?)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{1,})`),
			Score:   scoreIdentifier,
		},
	},
}

// requiredFields is the minimal field set a document type must have extracted
// to be considered complete.
var requiredFields = map[string][]string{
	"invoice":     {"invoice_number", "total_amount"},
	"id_document": {"id_number"},
	"form":        {"form_id"},
}

// RequiredFields returns the required field names for a document type.
func RequiredFields(docType string) []string {
	req := requiredFields[docType]
	out := make([]string, len(req))
	copy(out, req)
	return out
}

// KnownTypes lists the document types with extraction rules.
func KnownTypes() []string {
	out := make([]string, 0, len(fieldRules))
	for t := range fieldRules {
		out = append(out, t)
	}
	return out
}

// Fields applies the rules for docType to text, returning values and per-field
// confidences.
func Fields(docType, text string) (map[string]string, map[string]float64) {
	rules := fieldRules[docType]
	if len(rules) == 0 || text == "" {
		return nil, nil
	}
	values := make(map[string]string)
	confs := make(map[string]float64)
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[len(m)-1])
		if value == "" {
			continue
		}
		values[rule.Name] = value
		confs[rule.Name] = clamp01(rule.Score(value))
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, confs
}

// FieldExtractor is the pipeline stage.
type FieldExtractor struct{}

// NewFieldExtractor creates the field extraction stage.
func NewFieldExtractor() *FieldExtractor { return &FieldExtractor{} }

func (e *FieldExtractor) Name() string { return FieldsStageName }

// Process extracts fields for the classified type. Unknown types and missing
// text yield no fields with an explicit status.
func (e *FieldExtractor) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(FieldsStageName)
	annotate := func(status string, detail map[string]any) {
		page.Annotations.Append(artifact.Annotation{
			Stage: FieldsStageName, Status: status, Elapsed: timer.Stop(), Detail: detail,
		})
	}

	if page.OCRText == "" {
		annotate("no_text", nil)
		return nil
	}
	if page.DocumentType == "" || page.DocumentType == "unknown" {
		annotate("skipped_unknown_type", nil)
		return nil
	}

	values, confs := Fields(page.DocumentType, page.OCRText)
	page.Fields = values
	page.FieldConfidences = confs

	detail := map[string]any{"field_count": len(values)}
	if avg, ok := page.AvgFieldConfidence(); ok {
		detail["avg_field_confidence"] = avg
	}
	annotate("ok", detail)
	return nil
}
