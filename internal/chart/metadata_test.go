package chart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sensebridge/sensebridge/internal/chart"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

func TestMetadataFromLayoutTypeResolution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		visualization string
		infoType      string
		want          string
	}{
		{"visualization wins", "barchart", "sheet-object", "barchart"},
		{"falls back to info type", "", "piechart", "piechart"},
		{"unknown when both empty", "", "", "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := &qix.Layout{Visualization: tc.visualization}
			l.Info.Type = tc.infoType
			if got := chart.MetadataFromLayout(l).Type; got != tc.want {
				t.Errorf("Type = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMetadataFromLayoutWithoutHyperCube(t *testing.T) {
	t.Parallel()
	m := chart.MetadataFromLayout(&qix.Layout{Visualization: "kpi", Title: "Score"})

	if m.Type != "kpi" || m.Title != "Score" {
		t.Errorf("meta = %+v", m)
	}
	if m.Dimensions == nil || len(m.Dimensions) != 0 {
		t.Errorf("Dimensions = %#v, want empty non-nil slice", m.Dimensions)
	}
	if m.Measures == nil || len(m.Measures) != 0 {
		t.Errorf("Measures = %#v, want empty non-nil slice", m.Measures)
	}
	if m.TotalRows != 0 || m.TotalColumns != 0 {
		t.Errorf("totals = %d x %d, want zero", m.TotalRows, m.TotalColumns)
	}
}

func TestMetadataFromLayoutMapsFields(t *testing.T) {
	t.Parallel()
	m := chart.MetadataFromLayout(tabularLayout(120, 2))

	if m.TotalRows != 120 || m.TotalColumns != 2 {
		t.Errorf("totals = %d x %d", m.TotalRows, m.TotalColumns)
	}
	if len(m.Dimensions) != 1 || m.Dimensions[0].Title != "Region" || len(m.Dimensions[0].FieldDefs) != 1 {
		t.Errorf("Dimensions = %+v", m.Dimensions)
	}
	if len(m.Measures) != 1 || m.Measures[0].Title != "Sales" || m.Measures[0].Format.Format != "#,##0" {
		t.Errorf("Measures = %+v", m.Measures)
	}
}

func TestExtractMetadataRetriesLayout(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(10, 2), layoutFailures: 2}

	m, err := chart.ExtractMetadata(context.Background(), obj, retry.Policy{MaxRetries: 3})
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if m.TotalRows != 10 {
		t.Errorf("TotalRows = %d", m.TotalRows)
	}
	if obj.layoutCalls != 3 {
		t.Errorf("layout calls = %d, want 3", obj.layoutCalls)
	}
}

func TestExtractMetadataFailsWhenRetriesExhausted(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(10, 2), layoutFailures: 10}

	_, err := chart.ExtractMetadata(context.Background(), obj, retry.Policy{MaxRetries: 2})
	if !errors.Is(err, errScripted) {
		t.Fatalf("err = %v, want scripted failure", err)
	}
	if obj.layoutCalls != 3 {
		t.Errorf("layout calls = %d, want MaxRetries+1 = 3", obj.layoutCalls)
	}
}
