// Package routing is the admission-control decision point: it combines
// classification confidence, field confidence, and required-field
// completeness against per-document-type thresholds to route each page to
// automatic processing, the QC queue, or mandatory manual review.
package routing

// Thresholds are the routing cut-offs for one document type.
type Thresholds struct {
	Classification       float64 `mapstructure:"classification_threshold" yaml:"classification_threshold" json:"classification_threshold"`
	ClassificationManual float64 `mapstructure:"classification_manual_threshold" yaml:"classification_manual_threshold" json:"classification_manual_threshold"`
	Field                float64 `mapstructure:"field_threshold" yaml:"field_threshold" json:"field_threshold"`
	FieldManual          float64 `mapstructure:"field_manual_threshold" yaml:"field_manual_threshold" json:"field_manual_threshold"`
}

// DefaultThresholds returns the built-in defaults used when configuration is
// missing or malformed.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Classification:       0.55,
		ClassificationManual: 0.35,
		Field:                0.65,
		FieldManual:          0.45,
	}
}

// Override is a partial per-document-type threshold override; nil fields fall
// back to the defaults.
type Override struct {
	Classification       *float64 `mapstructure:"classification_threshold" yaml:"classification_threshold,omitempty" json:"classification_threshold,omitempty"`
	ClassificationManual *float64 `mapstructure:"classification_manual_threshold" yaml:"classification_manual_threshold,omitempty" json:"classification_manual_threshold,omitempty"`
	Field                *float64 `mapstructure:"field_threshold" yaml:"field_threshold,omitempty" json:"field_threshold,omitempty"`
	FieldManual          *float64 `mapstructure:"field_manual_threshold" yaml:"field_manual_threshold,omitempty" json:"field_manual_threshold,omitempty"`
}

func (o Override) apply(base Thresholds) Thresholds {
	if o.Classification != nil {
		base.Classification = *o.Classification
	}
	if o.ClassificationManual != nil {
		base.ClassificationManual = *o.ClassificationManual
	}
	if o.Field != nil {
		base.Field = *o.Field
	}
	if o.FieldManual != nil {
		base.FieldManual = *o.FieldManual
	}
	return base
}
