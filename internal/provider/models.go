package provider

// ModelType represents a standard data model type. Each ModelType maps to a
// specific data structure in pkg/models/.
type ModelType string

// --- Equity / Price ---
const (
	ModelEquityHistorical ModelType = "EquityHistorical"
	ModelEquityQuote      ModelType = "EquityQuote"
	ModelEquityLabel      ModelType = "EquityLabel"
)

// --- Fundamentals / Filings ---
const (
	ModelAnnualFinancials ModelType = "AnnualFinancials"
	ModelFilingDocuments  ModelType = "FilingDocuments"
)

// --- Events / News ---
const (
	ModelDisclosureEvents ModelType = "DisclosureEvents"
	ModelCompanyNews      ModelType = "CompanyNews"
)
