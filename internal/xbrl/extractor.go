// Package xbrl extracts annual financial metrics from XBRL instance
// documents (EDINET annual securities reports).
//
// One Parse call is a pure, single-document computation: build the context
// and unit dictionaries declared in the document, scan every candidate
// concept for each tracked metric, and merge the observed facts into one
// point per fiscal year. The extractor holds no state between calls and is
// safe to use from multiple goroutines.
package xbrl

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradechartjp/tradechart/pkg/models"
)

// structural namespace prefix used by context, unit and period elements.
const xbrliPrefix = "xbrli"

// Extractor parses XBRL instance documents into per-metric annual series.
type Extractor struct {
	dict ConceptDict
}

// New creates an extractor with a caller-supplied concept dictionary.
func New(dict ConceptDict) *Extractor {
	return &Extractor{dict: dict}
}

// NewJP creates an extractor with the default EDINET concept dictionary.
func NewJP() *Extractor {
	return New(MetricConceptsJP())
}

// Parse reads one XBRL instance document and returns the merged per-metric
// annual series. Every configured metric is present in the result, mapped to
// an empty slice when nothing matched. A document that is not well-formed
// XML fails the whole call; every other irregularity (unknown namespace
// prefix, unresolvable context or unit reference, non-numeric fact text,
// undatable period) degrades to "no data for that fact" without error.
//
// The caller owns the reader and must close it on every exit path.
func (e *Extractor) Parse(r io.Reader) (models.AnnualMetrics, error) {
	root, nsmap, err := parseDocument(r)
	if err != nil {
		return nil, fmt.Errorf("parse xbrl document: %w", err)
	}

	contexts := buildContextMap(root, nsmap)
	units := buildUnitMap(root, nsmap)

	out := make(models.AnnualMetrics, len(e.dict.Metrics))
	for _, metric := range e.dict.Metrics {
		var points []models.FactPoint
		for _, concept := range e.dict.Concepts[metric] {
			prefix, local, ok := strings.Cut(concept, ":")
			if !ok {
				continue
			}
			ns := nsmap[prefix]
			if ns == "" {
				// Taxonomies vary by filer; an undeclared prefix just
				// means this candidate is absent from the document.
				continue
			}
			for _, node := range root.findAll(ns, local) {
				ctx, found := contexts[node.attr("contextRef")]
				if !found {
					continue // cannot be dated
				}
				p := models.FactPoint{
					Year:       ctx.year,
					Unit:       units[node.attr("unitRef")],
					PeriodType: ctx.periodType,
				}
				if v, err := strconv.ParseFloat(strings.TrimSpace(node.text()), 64); err == nil {
					p.Value = models.FloatPtr(v)
				}
				points = append(points, p)
			}
		}
		out[metric] = mergeSeries(points)
	}
	return out, nil
}

// reportingContext is the resolved time window of a context declaration.
type reportingContext struct {
	year       *int
	periodType string
}

// buildContextMap collects every context declaration into an id-keyed table.
// A context with a duration period is dated by its end date; an instant
// context by its instant date. A period with neither parseable date keeps a
// nil year and defaults to duration. Without an "xbrli" namespace
// declaration the table is empty and the document yields no facts.
func buildContextMap(root *node, nsmap map[string]string) map[string]reportingContext {
	contexts := make(map[string]reportingContext)
	xbrli := nsmap[xbrliPrefix]
	if xbrli == "" {
		return contexts
	}
	for _, ctx := range root.findAll(xbrli, "context") {
		info := reportingContext{periodType: models.PeriodDuration}
		if period := ctx.find(xbrli, "period"); period != nil {
			if end := period.find(xbrli, "endDate"); end != nil && end.text() != "" {
				info.year = safeYear(end.text())
			} else if instant := period.find(xbrli, "instant"); instant != nil && instant.text() != "" {
				info.year = safeYear(instant.text())
				info.periodType = models.PeriodInstant
			}
		}
		contexts[ctx.attr("id")] = info
	}
	return contexts
}

// buildUnitMap collects unit declarations into an id → measure-label table.
// The label is the measure text after the last colon ("iso4217:JPY" → "JPY").
// Units without measure text are not stored.
func buildUnitMap(root *node, nsmap map[string]string) map[string]string {
	units := make(map[string]string)
	xbrli := nsmap[xbrliPrefix]
	if xbrli == "" {
		return units
	}
	for _, unit := range root.findAll(xbrli, "unit") {
		measure := unit.find(xbrli, "measure")
		if measure == nil {
			continue
		}
		text := strings.TrimSpace(measure.text())
		if text == "" {
			continue
		}
		if i := strings.LastIndex(text, ":"); i >= 0 {
			text = text[i+1:]
		}
		units[unit.attr("id")] = text
	}
	return units
}

// mergeSeries reduces candidate points for one metric to one point per year,
// ascending. Points with no year or no value are dropped; among duplicates
// for a year the first in scan order wins (concept declaration order, then
// document order), so amended re-reports of the same fiscal year cannot
// reorder output.
func mergeSeries(points []models.FactPoint) []models.FactPoint {
	filtered := points[:0:0]
	for _, p := range points {
		if p.Year != nil && p.Value != nil {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return *filtered[i].Year < *filtered[j].Year
	})

	merged := make([]models.FactPoint, 0, len(filtered))
	seen := make(map[int]int, len(filtered))
	for _, p := range filtered {
		year := *p.Year
		idx, dup := seen[year]
		if !dup {
			seen[year] = len(merged)
			merged = append(merged, p)
			continue
		}
		// Unreachable after the value filter above, but kept so a recorded
		// point can never shadow a real value with an empty one.
		if merged[idx].Value == nil {
			merged[idx] = p
		}
	}
	return merged
}

// safeYear derives a calendar year from a date string: the first 10
// characters as an ISO date, else the first 4 characters as a plain integer,
// else nil. Malformed input never errors.
func safeYear(value string) *int {
	value = strings.TrimSpace(value)
	if len(value) >= 10 {
		if t, err := time.Parse("2006-01-02", value[:10]); err == nil {
			return models.IntPtr(t.Year())
		}
	}
	if len(value) >= 4 {
		if y, err := strconv.Atoi(value[:4]); err == nil {
			return models.IntPtr(y)
		}
	}
	return nil
}

// --- minimal namespace-aware document tree ---

// node is one element of the parsed document. Element names carry the full
// namespace URI (never the document-local prefix), so matching is always by
// (namespace, local name) pair.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	chardata strings.Builder
	children []*node
}

// parseDocument builds the element tree and the prefix → namespace URI map
// from the xmlns declarations encountered while decoding.
func parseDocument(r io.Reader) (*node, map[string]string, error) {
	dec := xml.NewDecoder(r)
	nsmap := make(map[string]string)
	root := &node{}
	stack := []*node{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name, attrs: t.Attr}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					nsmap[a.Name.Local] = a.Value
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					nsmap[""] = a.Value
				}
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].chardata.Write(t)
		}
	}
	if len(root.children) == 0 {
		return nil, nil, fmt.Errorf("document has no root element")
	}
	return root, nsmap, nil
}

func (n *node) text() string { return n.chardata.String() }

// attr returns the value of an unqualified attribute, or "" when missing.
func (n *node) attr(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// find returns the first descendant matching (namespace, local) in document
// order, or nil.
func (n *node) find(space, local string) *node {
	for _, c := range n.children {
		if c.name.Space == space && c.name.Local == local {
			return c
		}
		if found := c.find(space, local); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant matching (namespace, local) in document
// order.
func (n *node) findAll(space, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name.Space == space && c.name.Local == local {
			out = append(out, c)
		}
		out = append(out, c.findAll(space, local)...)
	}
	return out
}
