package chart_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/sensebridge/sensebridge/internal/qix"
)

// fakeObject is a scripted in-memory visualization object. It synthesizes
// hypercube pages of totalRows x cols cells and records every page request.
type fakeObject struct {
	layout    *qix.Layout
	totalRows int
	cols      int

	// layoutFailures fails that many Layout calls before succeeding.
	layoutFailures int
	// dataFailures fails that many HyperCubeData calls before succeeding.
	dataFailures int

	mu          sync.Mutex
	layoutCalls int
	dataCalls   int
	pages       []qix.Page
}

var errScripted = fmt.Errorf("scripted failure")

func (f *fakeObject) Layout(ctx context.Context) (*qix.Layout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layoutCalls++
	if f.layoutCalls <= f.layoutFailures {
		return nil, errScripted
	}
	return f.layout, nil
}

func (f *fakeObject) HyperCubeData(ctx context.Context, page qix.Page) ([][]qix.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataCalls++
	f.pages = append(f.pages, page)
	if f.dataCalls <= f.dataFailures {
		return nil, errScripted
	}

	rows := make([][]qix.Cell, 0, page.Height)
	for r := page.Top; r < page.Top+page.Height && r < f.totalRows; r++ {
		row := make([]qix.Cell, page.Width)
		for c := range row {
			v := float64(r)
			row[c] = qix.Cell{Text: fmt.Sprintf("r%dc%d", r, c), Num: &v}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// tabularLayout builds a layout with one dimension, one measure, and the
// given hypercube size.
func tabularLayout(rows, cols int) *qix.Layout {
	l := &qix.Layout{
		Visualization: "table",
		Title:         "Orders",
		Raw:           []byte(`{"visualization":"table"}`),
	}
	l.HyperCube = &qix.HyperCube{
		Dimensions: []qix.DimensionInfo{{Title: "Region", FieldDefs: []string{"Region"}}},
		Measures:   []qix.MeasureInfo{{Title: "Sales", NumFormat: qix.NumFormat{Type: "F", Format: "#,##0"}}},
	}
	l.HyperCube.Size.Rows = rows
	l.HyperCube.Size.Columns = cols
	return l
}
