package xbrl

// ConceptDict maps each tracked metric to an ordered list of taxonomy
// concept identifiers ("prefix:LocalName") to try, most preferred first.
// All candidates are scanned, not just the first match: filers tag the same
// line item under non-interchangeable taxonomies (JP GAAP vs IFRS), and the
// per-year merge keeps the earlier-listed concept when both report a year.
type ConceptDict struct {
	// Metrics preserves declaration order so extraction output is
	// deterministic regardless of map iteration.
	Metrics  []string
	Concepts map[string][]string
}

// MetricConceptsJP is the default concept dictionary for EDINET annual
// securities reports (有価証券報告書), covering JP GAAP and IFRS filers.
func MetricConceptsJP() ConceptDict {
	return ConceptDict{
		Metrics: []string{
			"revenue",
			"operating_income",
			"net_income",
			"operating_cash_flow",
		},
		Concepts: map[string][]string{
			"revenue": {
				"jpcrp030000-asr:NetSales",
				"ifrs-full:Revenue",
			},
			"operating_income": {
				"jpcrp030000-asr:OperatingIncome",
			},
			"net_income": {
				"jpcrp030000-asr:ProfitLossAttributableToOwnersOfParent",
				"ifrs-full:ProfitLoss",
			},
			"operating_cash_flow": {
				"jpcrp030000-asr:NetCashProvidedByUsedInOperatingActivities",
				"ifrs-full:NetCashFlowsFromUsedInOperatingActivities",
			},
		},
	}
}
