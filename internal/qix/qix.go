// Package qix defines the boundary to the remote analytics engine and ships
// the real transport implementations behind it.
//
// The engine speaks JSON-RPC 2.0 over a websocket: every open document and
// every visualization object is addressed by an integer handle returned from
// a previous call. [Dial] establishes a [Session]; [Session.OpenDoc] yields a
// [Doc]; [Doc.Object] yields an [Object] whose layout and hypercube pages are
// fetched on demand. The platform's app catalogue is a plain REST API exposed
// through [AppCatalog].
//
// Everything above this package depends only on the interfaces, so tests can
// substitute scripted fakes without a network.
package qix

import (
	"context"
	"encoding/json"
)

// Session is one live connection to the engine. A Session owns exactly one
// websocket; closing it invalidates every handle obtained through it.
type Session interface {
	// OpenDoc opens the application document identified by appID and
	// returns its handle.
	OpenDoc(ctx context.Context, appID string) (Doc, error)

	// Close tears down the websocket. Safe to call once; subsequent calls
	// on any handle from this session fail.
	Close() error
}

// Doc is an open application document.
type Doc interface {
	// Object looks up a visualization object by its ID.
	Object(ctx context.Context, objectID string) (Object, error)

	// SheetList returns the document's sheets in engine order.
	SheetList(ctx context.Context) ([]SheetEntry, error)
}

// Object is a visualization object within a document.
type Object interface {
	// Layout fetches the object's current layout.
	Layout(ctx context.Context) (*Layout, error)

	// HyperCubeData fetches one rectangular page of the object's
	// hypercube as a cell matrix in row-major order.
	HyperCubeData(ctx context.Context, page Page) ([][]Cell, error)
}

// Page is a rectangular window into a hypercube.
type Page struct {
	Top    int `json:"qTop"`
	Left   int `json:"qLeft"`
	Width  int `json:"qWidth"`
	Height int `json:"qHeight"`
}

// Cell is a single hypercube data point. Num is nil when the engine reports
// no numeric value for the cell.
type Cell struct {
	Text  string   `json:"qText"`
	Num   *float64 `json:"qNum,omitempty"`
	State string   `json:"qState,omitempty"`
}

// SheetEntry describes one sheet in a document, in the platform's wire shape.
type SheetEntry struct {
	Info struct {
		ID string `json:"qId"`
	} `json:"qInfo"`
	Meta struct {
		Title string `json:"title"`
	} `json:"qMeta"`
}

// Layout mirrors the engine's layout JSON for a visualization or sheet
// object. Optional sections are nil when absent. Raw preserves the full
// untyped document for callers that need to surface it verbatim.
type Layout struct {
	Info struct {
		ID   string `json:"qId"`
		Type string `json:"qType"`
	} `json:"qInfo"`

	// Visualization is the chart type as authored (e.g. "barchart").
	Visualization string `json:"visualization"`

	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Footnote string `json:"footnote"`

	// HyperCube is present only for tabular visualizations.
	HyperCube *HyperCube `json:"qHyperCube"`

	// Cells is present only for sheet objects and lists the charts placed
	// on the sheet.
	Cells []SheetCell `json:"cells"`

	// Raw is the layout exactly as the engine returned it.
	Raw json.RawMessage `json:"-"`
}

// HyperCube is the size and field descriptor of a tabular visualization.
type HyperCube struct {
	Size struct {
		Columns int `json:"qcx"`
		Rows    int `json:"qcy"`
	} `json:"qSize"`
	Dimensions []DimensionInfo `json:"qDimensionInfo"`
	Measures   []MeasureInfo   `json:"qMeasureInfo"`
}

// DimensionInfo describes one hypercube dimension.
type DimensionInfo struct {
	Title     string   `json:"qFallbackTitle"`
	Label     string   `json:"qLabelExpression,omitempty"`
	FieldDefs []string `json:"qGroupFieldDefs"`
}

// MeasureInfo describes one hypercube measure.
type MeasureInfo struct {
	Title     string    `json:"qFallbackTitle"`
	Label     string    `json:"qLabelExpression,omitempty"`
	NumFormat NumFormat `json:"qNumFormat"`
}

// NumFormat is the number formatting descriptor attached to a measure.
type NumFormat struct {
	Type   string `json:"qType"`
	Format string `json:"qFmt"`
}

// SheetCell is one chart placement on a sheet.
type SheetCell struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// Bounds is a chart's position and size on its sheet, in sheet grid units.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
