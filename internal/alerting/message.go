package alerting

import (
	"fmt"
	"strings"

	"github.com/tradechartjp/tradechart/pkg/models"
)

// FormatAlertMessage builds the LINE notification body. When all matches
// share a trading date the header carries it once; otherwise each line is
// suffixed with its own date.
func FormatAlertMessage(matches []models.AlertMatch) string {
	dates := map[string]struct{}{}
	for _, m := range matches {
		if m.Date != "" {
			dates[m.Date] = struct{}{}
		}
	}

	header := "RSIアラート"
	singleDate := len(dates) == 1
	if singleDate {
		for d := range dates {
			header = fmt.Sprintf("RSIアラート (%s)", d)
		}
	}

	lines := []string{header}
	for _, m := range matches {
		line := fmt.Sprintf("%s RSI %.1f (<= %.1f)", m.Ticker, m.RSI, m.Threshold)
		if !singleDate && m.Date != "" {
			line = fmt.Sprintf("%s on %s", line, m.Date)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
