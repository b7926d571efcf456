// Package metrics combines per-filing annual series into one clean series
// per financial metric and derives growth indicators from it.
package metrics

import (
	"math"
	"sort"

	"github.com/tradechartjp/tradechart/pkg/models"
)

// MergeAnnual folds the series of a newly parsed filing into the
// accumulated cross-filing result. Per metric and per fiscal year the most
// recently merged point wins, so iterating filings oldest-to-newest leaves
// the latest filing's restatement in place. Points without a year are
// ignored; output is ascending by year.
func MergeAnnual(base, next models.AnnualMetrics) models.AnnualMetrics {
	if base == nil {
		base = make(models.AnnualMetrics, len(next))
	}
	for metric, series := range next {
		byYear := make(map[int]models.FactPoint)
		var years []int
		record := func(p models.FactPoint) {
			if p.Year == nil {
				return
			}
			if _, ok := byYear[*p.Year]; !ok {
				years = append(years, *p.Year)
			}
			byYear[*p.Year] = p
		}
		for _, p := range base[metric] {
			record(p)
		}
		for _, p := range series {
			record(p)
		}
		sort.Ints(years)
		merged := make([]models.FactPoint, 0, len(years))
		for _, y := range years {
			merged = append(merged, byYear[y])
		}
		base[metric] = merged
	}
	return base
}

// WithYoY returns a copy of the series where each point carries its
// year-over-year ratio (value - prev) / |prev|. The ratio is nil for the
// first point, after a zero previous value, and for points without a value;
// the previous value carries across valueless points.
func WithYoY(series []models.FactPoint) []models.FactPoint {
	ordered := make([]models.FactPoint, len(series))
	copy(ordered, series)
	sort.SliceStable(ordered, func(i, j int) bool {
		return yearOf(ordered[i]) < yearOf(ordered[j])
	})

	var prev *float64
	for i := range ordered {
		ordered[i].YoY = nil
		v := ordered[i].Value
		if v != nil && prev != nil && *prev != 0 {
			yoy := (*v - *prev) / math.Abs(*prev)
			ordered[i].YoY = &yoy
		}
		if v != nil {
			prev = v
		}
	}
	return ordered
}

// EnrichYoY applies WithYoY to every metric of the map in place.
func EnrichYoY(m models.AnnualMetrics) models.AnnualMetrics {
	for metric, series := range m {
		m[metric] = WithYoY(series)
	}
	return m
}

// CAGR computes compound annual growth between the first and last dated,
// valued points of a series. It returns nil when fewer than two such points
// exist, when either endpoint value is zero, when the year span is not
// positive, or when the end/start ratio is not positive.
func CAGR(series []models.FactPoint) *float64 {
	type pair struct {
		year  int
		value float64
	}
	var cleaned []pair
	for _, p := range series {
		if p.Year != nil && p.Value != nil {
			cleaned = append(cleaned, pair{*p.Year, *p.Value})
		}
	}
	if len(cleaned) < 2 {
		return nil
	}
	sort.Slice(cleaned, func(i, j int) bool { return cleaned[i].year < cleaned[j].year })

	start, end := cleaned[0], cleaned[len(cleaned)-1]
	if start.value == 0 || end.value == 0 {
		return nil
	}
	periods := end.year - start.year
	if periods <= 0 {
		return nil
	}
	ratio := end.value / start.value
	if ratio <= 0 {
		return nil
	}
	cagr := math.Pow(ratio, 1/float64(periods)) - 1
	return &cagr
}

// CAGRAll computes CAGR for every metric of the map.
func CAGRAll(m models.AnnualMetrics) map[string]*float64 {
	out := make(map[string]*float64, len(m))
	for metric, series := range m {
		out[metric] = CAGR(series)
	}
	return out
}

func yearOf(p models.FactPoint) int {
	if p.Year == nil {
		return 0
	}
	return *p.Year
}
