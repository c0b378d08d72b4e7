package routing

// tier is the severity a single rule can demand.
type tier int

const (
	tierNone tier = iota
	tierQC
	tierManual
)

// ruleInput is everything a routing rule may inspect.
type ruleInput struct {
	docType         string
	confidence      float64
	avgFieldConf    float64
	hasFieldConf    bool
	requiredFields  []string
	missingRequired int
	thresholds      Thresholds
}

// rule is one (predicate, reason, tier) entry of the decision table.
type rule struct {
	reason string
	eval   func(in ruleInput) tier
}

// decisionRules is evaluated in order; every firing rule contributes its
// reason and the final route is the worst tier seen. Appending a rule here is
// the only change needed to extend the routing policy.
var decisionRules = []rule{
	{
		reason: "classification_below_manual_threshold",
		eval: func(in ruleInput) tier {
			if in.confidence < in.thresholds.ClassificationManual {
				return tierManual
			}
			return tierNone
		},
	},
	{
		reason: "classification_below_threshold",
		eval: func(in ruleInput) tier {
			if in.docType != "unknown" &&
				in.confidence >= in.thresholds.ClassificationManual &&
				in.confidence < in.thresholds.Classification {
				return tierQC
			}
			return tierNone
		},
	},
	{
		reason: "missing_all_required_fields",
		eval: func(in ruleInput) tier {
			if len(in.requiredFields) > 0 && in.missingRequired == len(in.requiredFields) {
				return tierManual
			}
			return tierNone
		},
	},
	{
		reason: "missing_required_fields",
		eval: func(in ruleInput) tier {
			if len(in.requiredFields) > 0 && in.missingRequired > 0 && in.missingRequired < len(in.requiredFields) {
				return tierQC
			}
			return tierNone
		},
	},
	{
		reason: "field_confidence_below_manual_threshold",
		eval: func(in ruleInput) tier {
			if in.hasFieldConf && in.avgFieldConf < in.thresholds.FieldManual {
				return tierManual
			}
			return tierNone
		},
	},
	{
		reason: "field_confidence_below_threshold",
		eval: func(in ruleInput) tier {
			if in.hasFieldConf &&
				in.avgFieldConf >= in.thresholds.FieldManual &&
				in.avgFieldConf < in.thresholds.Field {
				return tierQC
			}
			return tierNone
		},
	},
	{
		// Unknown pages compare against the general threshold, not the
		// manual one. The source system behaves this way; kept as-is.
		reason: "unknown_document_type",
		eval: func(in ruleInput) tier {
			if in.docType == "unknown" && in.confidence < in.thresholds.Classification {
				return tierManual
			}
			return tierNone
		},
	},
}

// evaluate runs the decision table and returns the winning tier plus the
// ordered reasons of every rule that fired.
func evaluate(in ruleInput) (tier, []string) {
	worst := tierNone
	var reasons []string
	for _, r := range decisionRules {
		t := r.eval(in)
		if t == tierNone {
			continue
		}
		reasons = append(reasons, r.reason)
		if t > worst {
			worst = t
		}
	}
	return worst, reasons
}
