// Package utils provides ticker normalization and JST time helpers shared
// across TradeChart.
package utils

import (
	"regexp"
	"strings"
)

// Tokyo Stock Exchange security codes are four characters: all digits
// (e.g. 7203) or digits with one trailing letter (e.g. 285A).
var jpCodeRe = regexp.MustCompile(`^[0-9]{3}[0-9A-Z]$`)

// NormalizeTicker converts a user-input ticker to the canonical display form:
// uppercased, trimmed, without any exchange suffix (7203, 285A, AAPL).
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")
	ticker = strings.TrimSuffix(ticker, ".T")
	return ticker
}

// IsJPTicker reports whether the code looks like a TSE security code.
func IsJPTicker(ticker string) bool {
	return jpCodeRe.MatchString(NormalizeTicker(ticker))
}

// ToYFinanceTicker converts a canonical ticker to the Yahoo Finance symbol.
// TSE codes get the .T suffix; everything else passes through unchanged.
func ToYFinanceTicker(ticker string) string {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return ""
	}
	if IsJPTicker(ticker) {
		return ticker + ".T"
	}
	return ticker
}

// FromYFinanceTicker strips the .T suffix to get the canonical ticker.
func FromYFinanceTicker(yfTicker string) string {
	return NormalizeTicker(yfTicker)
}
