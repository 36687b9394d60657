// Package chart implements the chunked, retrying, budget-aware retrieval
// engine that turns one "get chart data" request into a bounded sequence of
// paginated hypercube calls, degrading to the raw layout when bulk retrieval
// fails.
package chart

import (
	"encoding/json"
	"fmt"
)

// Dimension describes one hypercube dimension of a visualization.
type Dimension struct {
	Title     string   `json:"title"`
	Label     string   `json:"label,omitempty"`
	FieldDefs []string `json:"fieldDefinitions"`
}

// Measure describes one hypercube measure of a visualization.
type Measure struct {
	Title  string `json:"title"`
	Label  string `json:"label,omitempty"`
	Format Format `json:"format"`
}

// Format is a measure's number formatting descriptor.
type Format struct {
	Type   string `json:"type"`
	Format string `json:"format"`
}

// Metadata is the normalized descriptor of one visualization, derived once
// per chart per invocation and immutable after creation. TotalRows and
// TotalColumns are the authoritative bounds for pagination.
type Metadata struct {
	Type         string      `json:"type"`
	Title        string      `json:"title,omitempty"`
	Subtitle     string      `json:"subtitle,omitempty"`
	Footnote     string      `json:"footnote,omitempty"`
	Dimensions   []Dimension `json:"dimensions"`
	Measures     []Measure   `json:"measures"`
	TotalRows    int         `json:"totalRows"`
	TotalColumns int         `json:"totalColumns"`
}

// CellValue is one data point in the assembled table. Value is null in the
// JSON encoding when the engine reported no numeric value.
type CellValue struct {
	Text  string   `json:"text"`
	Value *float64 `json:"value"`
	State string   `json:"state"`
}

// TableData is the tabular payload of a successful retrieval.
type TableData struct {
	Headers       []string      `json:"headers"`
	Rows          [][]CellValue `json:"rows"`
	RowCount      int           `json:"rowCount"`
	TotalRowCount int           `json:"totalRowCount"`
	Truncated     bool          `json:"truncated"`
}

// FallbackData is the degraded payload returned when bulk retrieval fails:
// a static error message plus the chart's raw layout.
type FallbackData struct {
	Error  string          `json:"error"`
	Layout json.RawMessage `json:"layout"`
}

// Result is the outcome of one chart retrieval. Exactly one of Table and
// Fallback is non-nil; callers branch on [Result.IsFallback] rather than
// probing the JSON shape.
type Result struct {
	Type     string
	Metadata *Metadata
	Table    *TableData
	Fallback *FallbackData
}

// IsFallback reports whether bulk retrieval failed and the result carries
// the raw-layout payload.
func (r *Result) IsFallback() bool {
	return r.Fallback != nil
}

// MarshalJSON encodes the result in its wire shape: the data field holds the
// table on success and the error/layout pair on fallback.
func (r *Result) MarshalJSON() ([]byte, error) {
	var data any
	switch {
	case r.Table != nil:
		data = r.Table
	case r.Fallback != nil:
		data = r.Fallback
	default:
		return nil, fmt.Errorf("chart: result has neither table nor fallback data")
	}
	return json.Marshal(struct {
		Type     string    `json:"type"`
		Metadata *Metadata `json:"metadata,omitempty"`
		Data     any       `json:"data"`
	}{
		Type:     r.Type,
		Metadata: r.Metadata,
		Data:     data,
	})
}
