package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docflow/internal/artifact"
)

func TestFieldsInvoice(t *testing.T) {
	text := "Invoice Number: INV-1234\nTotal: $123.45\n2025-11-08"
	values, confs := Fields("invoice", text)

	require.Equal(t, map[string]string{
		"invoice_number": "INV-1234",
		"total_amount":   "123.45",
		"invoice_date":   "2025-11-08",
	}, values)

	assert.InDelta(t, 0.8, confs["invoice_number"], 1e-9)
	assert.InDelta(t, 0.9, confs["total_amount"], 1e-9)
	assert.InDelta(t, 0.9, confs["invoice_date"], 1e-9)
}

func TestFieldsInvoiceWithoutQualifier(t *testing.T) {
	// A bare identifier after the word "Invoice" is not an invoice number;
	// extraction must come up empty so routing can flag the page.
	values, confs := Fields("invoice", "Invoice\nINV-ABCD")
	assert.Nil(t, values)
	assert.Nil(t, confs)
}

func TestFieldsVariants(t *testing.T) {
	tests := []struct {
		name    string
		docType string
		text    string
		field   string
		want    string
	}{
		{"invoice no dot", "invoice", "Invoice No. 2026-001\nTotal due: 99.00", "invoice_number", "2026-001"},
		{"invoice hash", "invoice", "Invoice #A-100\nTotal: 5.00", "invoice_number", "A-100"},
		{"total with amount", "invoice", "Invoice number X-1\nTotal amount: $1,250.00", "total_amount", "1,250.00"},
		{"id number", "id_document", "ID Number: AB123456", "id_number", "AB123456"},
		{"dob", "id_document", "Date of Birth: 1985-03-12", "date_of_birth", "1985-03-12"},
		{"name", "id_document", "Name: Maria Santos", "full_name", "Maria Santos"},
		{"form id", "form", "Form ID: F-42", "form_id", "F-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := Fields(tt.docType, tt.text)
			require.NotNil(t, values)
			assert.Equal(t, tt.want, values[tt.field])
		})
	}
}

func TestFieldsUnknownType(t *testing.T) {
	values, confs := Fields("unknown", "Invoice Number: INV-1")
	assert.Nil(t, values)
	assert.Nil(t, confs)
}

func TestFieldsEmptyText(t *testing.T) {
	values, _ := Fields("invoice", "")
	assert.Nil(t, values)
}

func TestRequiredFields(t *testing.T) {
	assert.ElementsMatch(t, []string{"invoice_number", "total_amount"}, RequiredFields("invoice"))
	assert.ElementsMatch(t, []string{"id_number"}, RequiredFields("id_document"))
	assert.Empty(t, RequiredFields("letter"))
	assert.Empty(t, RequiredFields("unknown"))
}

func TestKnownTypes(t *testing.T) {
	assert.ElementsMatch(t, []string{"invoice", "id_document", "letter", "form"}, KnownTypes())
}

func TestScoreAmount(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"123.45", 0.9},
		{"1,250.00", 0.9},
		{"500", 0.6},
		{"12345678901.00", 0.6},
		{"-", 0.1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, scoreAmount(tt.value), 1e-9, "value %q", tt.value)
	}
}

func TestScoreDate(t *testing.T) {
	assert.InDelta(t, 0.9, scoreDate("2025-11-08"), 1e-9)
	assert.InDelta(t, 0.7, scoreDate("11/08/2025"), 1e-9)
}

func TestScoreIdentifier(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"INV-1234", 0.8},
		{"123456", 0.7},
		{"ABCDEF", 0.5},
		{"AB1", 0.4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, scoreIdentifier(tt.value), 1e-9, "value %q", tt.value)
	}
}

func TestFieldExtractorStage(t *testing.T) {
	page := artifact.NewPage("", "page.png")
	page.DocumentType = "invoice"
	page.OCRText = "Invoice Number: INV-1234\nTotal: $123.45\n2025-11-08"

	require.NoError(t, NewFieldExtractor().Process(page, nil))

	assert.Len(t, page.Fields, 3)
	avg, ok := page.AvgFieldConfidence()
	require.True(t, ok)
	assert.InDelta(t, 0.8667, avg, 0.001)

	ann, _ := page.Annotations.Stage(FieldsStageName)
	assert.Equal(t, "ok", ann.Status)
	assert.Equal(t, 3, ann.Detail["field_count"])
}

func TestFieldExtractorStageSkips(t *testing.T) {
	page := artifact.NewPage("", "page.png")
	require.NoError(t, NewFieldExtractor().Process(page, nil))
	ann, _ := page.Annotations.Stage(FieldsStageName)
	assert.Equal(t, "no_text", ann.Status)

	page = artifact.NewPage("", "page.png")
	page.OCRText = "some text"
	page.DocumentType = "unknown"
	require.NoError(t, NewFieldExtractor().Process(page, nil))
	ann, _ = page.Annotations.Stage(FieldsStageName)
	assert.Equal(t, "skipped_unknown_type", ann.Status)
}

func TestRowsFromText(t *testing.T) {
	text := "Item    Qty   Price\nWidget  2     10.00\n\n  \nBolt  5   0.50"
	want := "Item\tQty\tPrice\nWidget\t2\t10.00\nBolt\t5\t0.50\n"
	assert.Equal(t, want, RowsFromText(text))

	assert.Empty(t, RowsFromText(""))
	assert.Empty(t, RowsFromText("\n  \n"))
}
