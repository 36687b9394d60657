package chart

import (
	"context"
	"log/slog"
	"time"

	"github.com/sensebridge/sensebridge/internal/observe"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

// Fetcher drives a bounded loop of page-sized hypercube requests, respecting
// a total-row budget and a fixed pacing delay between consecutive requests.
type Fetcher struct {
	// PageSize is the maximum height of one page request. Must be > 0.
	PageSize int

	// MaxRows caps the total rows fetched across all pages.
	MaxRows int

	// RequestDelay is the unconditional pacing wait between consecutive
	// page requests. It is independent of retry backoff and never applied
	// after the last request.
	RequestDelay time.Duration

	// Retry is the per-page retry policy.
	Retry retry.Policy

	// Metrics is optional; when nil no instruments are recorded.
	Metrics *observe.Metrics
}

// FetchRows retrieves up to min(meta.TotalRows, MaxRows) rows from obj's
// hypercube in sequential pages, preserving row order. If any page request
// fails after retries are exhausted, the whole fetch fails and no partial
// result is returned.
func (f *Fetcher) FetchRows(ctx context.Context, obj qix.Object, meta *Metadata) ([][]qix.Cell, error) {
	rowsToFetch := meta.TotalRows
	if rowsToFetch > f.MaxRows {
		slog.Warn("row budget smaller than chart size, truncating",
			"total_rows", meta.TotalRows,
			"max_rows", f.MaxRows,
		)
		rowsToFetch = f.MaxRows
	}

	var rows [][]qix.Cell
	for start := 0; start < rowsToFetch; start += f.PageSize {
		if start > 0 {
			if err := pace(ctx, f.RequestDelay); err != nil {
				return nil, err
			}
		}

		height := f.PageSize
		if remaining := rowsToFetch - start; remaining < height {
			height = remaining
		}
		page := qix.Page{
			Top:    start,
			Left:   0,
			Width:  meta.TotalColumns,
			Height: height,
		}

		matrix, err := retry.Do(ctx, f.Retry, "GetHyperCubeData", func(ctx context.Context) ([][]qix.Cell, error) {
			return obj.HyperCubeData(ctx, page)
		})
		if err != nil {
			return nil, err
		}

		rows = append(rows, matrix...)
		if f.Metrics != nil {
			f.Metrics.PagesFetched.Add(ctx, 1)
			f.Metrics.RowsFetched.Add(ctx, int64(len(matrix)))
		}
		slog.Debug("fetched hypercube page",
			"top", page.Top,
			"height", page.Height,
			"rows_so_far", len(rows),
		)
	}
	return rows, nil
}

// pace waits out the inter-page delay, honouring cancellation.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
