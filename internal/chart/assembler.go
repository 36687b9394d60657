package chart

import (
	"context"
	"log/slog"

	"github.com/sensebridge/sensebridge/internal/observe"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

// fallbackMessage is the static error surfaced inside a fallback payload.
const fallbackMessage = "failed to retrieve chart data; returning raw layout instead"

// Assembler merges fetched hypercube pages into a single tabular result,
// computing truncation status, and degrades to the chart's raw layout when
// bulk retrieval fails. The degradation is deliberate best-effort policy:
// the invocation as a whole still succeeds, with the failure surfaced inside
// the payload.
type Assembler struct {
	Fetcher *Fetcher

	// Retry is the policy for the layout fetches the assembler performs
	// itself (metadata extraction and the fallback layout).
	Retry retry.Policy

	// Metrics is optional; when nil no instruments are recorded.
	Metrics *observe.Metrics
}

// Options modifies one Assemble call.
type Options struct {
	// IncludeMetadata attaches the derived [Metadata] to the result, on
	// both the success and fallback paths.
	IncludeMetadata bool
}

// Assemble produces the final [Result] for one chart. It fails outright only
// when metadata extraction itself is impossible; bulk-retrieval failures are
// downgraded to the fallback variant and never escalate to the caller.
func (a *Assembler) Assemble(ctx context.Context, obj qix.Object, opts Options) (*Result, error) {
	meta, err := ExtractMetadata(ctx, obj, a.Retry)
	if err != nil {
		return nil, err
	}

	res := &Result{Type: meta.Type}
	if opts.IncludeMetadata {
		res.Metadata = meta
	}

	rows, err := a.Fetcher.FetchRows(ctx, obj, meta)
	if err != nil {
		slog.Error("bulk retrieval failed, falling back to raw layout",
			"type", meta.Type,
			"total_rows", meta.TotalRows,
			"error", err,
		)
		if a.Metrics != nil {
			a.Metrics.Fallbacks.Add(ctx, 1)
		}
		res.Fallback = a.fallback(ctx, obj)
		return res, nil
	}

	res.Table = buildTable(meta, rows, a.Fetcher.MaxRows)
	return res, nil
}

// fallback builds the degraded payload, refetching the raw layout under the
// retry policy. If even that fails the layout is null; something descriptive
// is still returned.
func (a *Assembler) fallback(ctx context.Context, obj qix.Object) *FallbackData {
	fb := &FallbackData{Error: fallbackMessage}
	layout, err := FetchLayout(ctx, obj, a.Retry)
	if err != nil {
		slog.Warn("fallback layout fetch failed", "error", err)
		return fb
	}
	fb.Layout = layout.Raw
	return fb
}

// buildTable maps fetched cell rows into the wire table: headers are
// dimension titles followed by measure titles, in that fixed order.
func buildTable(meta *Metadata, rows [][]qix.Cell, maxRows int) *TableData {
	headers := make([]string, 0, len(meta.Dimensions)+len(meta.Measures))
	for _, d := range meta.Dimensions {
		headers = append(headers, d.Title)
	}
	for _, m := range meta.Measures {
		headers = append(headers, m.Title)
	}

	out := make([][]CellValue, 0, len(rows))
	for _, row := range rows {
		rec := make([]CellValue, 0, len(row))
		for _, c := range row {
			rec = append(rec, CellValue{Text: c.Text, Value: c.Num, State: c.State})
		}
		out = append(out, rec)
	}

	return &TableData{
		Headers:       headers,
		Rows:          out,
		RowCount:      len(out),
		TotalRowCount: meta.TotalRows,
		Truncated:     meta.TotalRows > maxRows,
	}
}
