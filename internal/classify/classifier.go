// Package classify assigns a document type from keyword and layout-feature
// heuristics over the extracted OCR text.
package classify

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
)

// StageName identifies the classification stage in page annotations.
const StageName = "classify"

// Unknown is the document type for pages no rule set matched.
const Unknown = "unknown"

// baseScore is added once a document type matches any feature at all; the
// remaining confidence comes from the matched feature weights.
const baseScore = 0.2

// feature is one weighted signal for a document type.
type feature struct {
	name   string
	weight float64
	match  func(doc input) bool
}

type input struct {
	text       string
	tables     int
	signatures int
	textBlocks int
}

func keyword(kw string, weight float64) feature {
	return feature{
		name:   "keyword:" + kw,
		weight: weight,
		match:  func(doc input) bool { return strings.Contains(doc.text, kw) },
	}
}

// typeRules maps each known document type to its weighted features. Keywords
// are matched against case-folded NFKC text.
var typeRules = map[string][]feature{
	"invoice": {
		keyword("invoice", 0.15),
		keyword("invoice number", 0.20),
		keyword("total", 0.15),
		keyword("amount due", 0.20),
		keyword("bill to", 0.15),
		keyword("payment", 0.10),
		{name: "layout:table", weight: 0.10, match: func(doc input) bool { return doc.tables > 0 }},
	},
	"id_document": {
		keyword("passport", 0.25),
		keyword("identity card", 0.25),
		keyword("id number", 0.20),
		keyword("date of birth", 0.20),
		keyword("nationality", 0.15),
		keyword("place of birth", 0.10),
	},
	"letter": {
		keyword("dear", 0.20),
		keyword("sincerely", 0.20),
		keyword("regards", 0.15),
		keyword("yours faithfully", 0.20),
		keyword("to whom it may concern", 0.15),
		{name: "layout:signature", weight: 0.15, match: func(doc input) bool { return doc.signatures > 0 }},
	},
	"form": {
		keyword("form", 0.15),
		keyword("application", 0.15),
		keyword("please complete", 0.15),
		keyword("signature of applicant", 0.15),
		keyword("section", 0.10),
		{name: "layout:many_blocks", weight: 0.10, match: func(doc input) bool { return doc.textBlocks >= 5 }},
	},
}

// Result is a scored classification.
type Result struct {
	DocumentType string
	Confidence   float64
	Matched      []string
}

// Classify scores every known document type and returns the best. Empty text
// with no layout signal yields Unknown at confidence 0. Confidence is the
// base score plus matched feature weights, capped at 1.0.
func Classify(text string, tables, signatures, textBlocks int) Result {
	doc := input{
		text:       normalize(text),
		tables:     tables,
		signatures: signatures,
		textBlocks: textBlocks,
	}

	best := Result{DocumentType: Unknown}
	types := make([]string, 0, len(typeRules))
	for t := range typeRules {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		score := 0.0
		var matched []string
		for _, f := range typeRules[t] {
			if f.match(doc) {
				score += f.weight
				matched = append(matched, f.name)
			}
		}
		if score > 0 && score > best.Confidence {
			best = Result{DocumentType: t, Confidence: score, Matched: matched}
		}
	}

	if best.DocumentType == Unknown {
		return best
	}
	best.Confidence += baseScore
	if best.Confidence > 1.0 {
		best.Confidence = 1.0
	}
	return best
}

var folder = cases.Fold()

func normalize(text string) string {
	return folder.String(norm.NFKC.String(text))
}

// Classifier is the pipeline stage.
type Classifier struct{}

// New creates the classification stage.
func New() *Classifier { return &Classifier{} }

func (c *Classifier) Name() string { return StageName }

// Process classifies the page from OCR text and layout counts. Pages with no
// OCR text degrade to Unknown rather than erroring.
func (c *Classifier) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(StageName)
	res := Classify(
		page.OCRText,
		page.RegionCount(artifact.RegionTable),
		page.RegionCount(artifact.RegionSignature),
		page.RegionCount(artifact.RegionTextBlock),
	)
	page.DocumentType = res.DocumentType
	page.Classification = res.Confidence

	status := "ok"
	if page.OCRText == "" {
		status = "no_text"
	}
	page.Annotations.Append(artifact.Annotation{
		Stage: StageName, Status: status, Elapsed: timer.Stop(),
		Detail: map[string]any{
			"document_type": res.DocumentType,
			"confidence":    res.Confidence,
			"matched":       res.Matched,
		},
	})
	return nil
}
