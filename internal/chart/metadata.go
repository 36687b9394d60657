package chart

import (
	"context"

	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

// unknownType is the visualization type reported when the layout carries
// neither a visualization name nor a qInfo type.
const unknownType = "unknown"

// FetchLayout fetches obj's layout under the retry policy.
func FetchLayout(ctx context.Context, obj qix.Object, policy retry.Policy) (*qix.Layout, error) {
	return retry.Do(ctx, policy, "GetLayout", func(ctx context.Context) (*qix.Layout, error) {
		return obj.Layout(ctx)
	})
}

// ExtractMetadata fetches the object's layout (retried per policy) and
// derives its normalized [Metadata].
func ExtractMetadata(ctx context.Context, obj qix.Object, policy retry.Policy) (*Metadata, error) {
	layout, err := FetchLayout(ctx, obj, policy)
	if err != nil {
		return nil, err
	}
	return MetadataFromLayout(layout), nil
}

// MetadataFromLayout derives [Metadata] from an already-fetched layout. It is
// pure and never fails: missing optional fields stay zero-valued, and a
// layout without a hypercube yields empty dimension/measure lists with zero
// totals, which is a valid state for non-tabular visualizations.
func MetadataFromLayout(l *qix.Layout) *Metadata {
	m := &Metadata{
		Type:       visualizationType(l),
		Title:      l.Title,
		Subtitle:   l.Subtitle,
		Footnote:   l.Footnote,
		Dimensions: []Dimension{},
		Measures:   []Measure{},
	}

	hc := l.HyperCube
	if hc == nil {
		return m
	}

	for _, d := range hc.Dimensions {
		m.Dimensions = append(m.Dimensions, Dimension{
			Title:     d.Title,
			Label:     d.Label,
			FieldDefs: d.FieldDefs,
		})
	}
	for _, ms := range hc.Measures {
		m.Measures = append(m.Measures, Measure{
			Title: ms.Title,
			Label: ms.Label,
			Format: Format{
				Type:   ms.NumFormat.Type,
				Format: ms.NumFormat.Format,
			},
		})
	}
	m.TotalRows = hc.Size.Rows
	m.TotalColumns = hc.Size.Columns
	return m
}

// visualizationType resolves the chart type: layout.visualization, then
// qInfo.qType, then "unknown" — first non-empty wins.
func visualizationType(l *qix.Layout) string {
	if l.Visualization != "" {
		return l.Visualization
	}
	if l.Info.Type != "" {
		return l.Info.Type
	}
	return unknownType
}
