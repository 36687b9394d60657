package chart_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sensebridge/sensebridge/internal/chart"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
)

func TestFetchRowsPagination(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		totalRows   int
		pageSize    int
		maxRows     int
		wantPages   int
		wantHeights []int
		wantRows    int
	}{
		{
			name: "partial last page", totalRows: 250, pageSize: 100, maxRows: 10000,
			wantPages: 3, wantHeights: []int{100, 100, 50}, wantRows: 250,
		},
		{
			name: "budget caps large chart", totalRows: 50000, pageSize: 1000, maxRows: 10000,
			wantPages: 10, wantRows: 10000,
		},
		{
			name: "single exact page", totalRows: 100, pageSize: 100, maxRows: 10000,
			wantPages: 1, wantHeights: []int{100}, wantRows: 100,
		},
		{
			name: "empty hypercube", totalRows: 0, pageSize: 100, maxRows: 10000,
			wantPages: 0, wantRows: 0,
		},
		{
			name: "budget below one page", totalRows: 500, pageSize: 100, maxRows: 30,
			wantPages: 1, wantHeights: []int{30}, wantRows: 30,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			obj := &fakeObject{layout: tabularLayout(tc.totalRows, 2), totalRows: tc.totalRows, cols: 2}
			f := &chart.Fetcher{PageSize: tc.pageSize, MaxRows: tc.maxRows}
			meta := chart.MetadataFromLayout(obj.layout)

			rows, err := f.FetchRows(context.Background(), obj, meta)
			if err != nil {
				t.Fatalf("FetchRows: %v", err)
			}
			if len(rows) != tc.wantRows {
				t.Errorf("rows = %d, want %d", len(rows), tc.wantRows)
			}
			if len(obj.pages) != tc.wantPages {
				t.Fatalf("page requests = %d, want %d", len(obj.pages), tc.wantPages)
			}
			for i, p := range obj.pages {
				if p.Left != 0 || p.Width != 2 {
					t.Errorf("page %d window = %+v, want full width from column 0", i, p)
				}
				if p.Top != i*tc.pageSize {
					t.Errorf("page %d top = %d, want %d", i, p.Top, i*tc.pageSize)
				}
				if tc.wantHeights != nil && p.Height != tc.wantHeights[i] {
					t.Errorf("page %d height = %d, want %d", i, p.Height, tc.wantHeights[i])
				}
			}
		})
	}
}

func TestFetchRowsPreservesOrder(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(250, 2), totalRows: 250, cols: 2}
	f := &chart.Fetcher{PageSize: 100, MaxRows: 10000}

	rows, err := f.FetchRows(context.Background(), obj, chart.MetadataFromLayout(obj.layout))
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	for i, row := range rows {
		if want := fmt.Sprintf("r%dc0", i); row[0].Text != want {
			t.Fatalf("rows[%d][0] = %q, want %q", i, row[0].Text, want)
		}
	}
}

func TestFetchRowsRetriesPage(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(150, 2), totalRows: 150, cols: 2, dataFailures: 2}
	f := &chart.Fetcher{PageSize: 100, MaxRows: 10000, Retry: retry.Policy{MaxRetries: 3}}

	rows, err := f.FetchRows(context.Background(), obj, chart.MetadataFromLayout(obj.layout))
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if len(rows) != 150 {
		t.Errorf("rows = %d, want 150", len(rows))
	}
	// Two failed attempts on the first page plus the two successful pages.
	if obj.dataCalls != 4 {
		t.Errorf("data calls = %d, want 4", obj.dataCalls)
	}
}

func TestFetchRowsAbortsAfterExhaustedRetries(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(300, 2), totalRows: 300, cols: 2, dataFailures: 100}
	f := &chart.Fetcher{PageSize: 100, MaxRows: 10000, Retry: retry.Policy{MaxRetries: 2}}

	rows, err := f.FetchRows(context.Background(), obj, chart.MetadataFromLayout(obj.layout))
	if !errors.Is(err, errScripted) {
		t.Fatalf("err = %v, want scripted failure", err)
	}
	if rows != nil {
		t.Errorf("rows = %d, want no partial result", len(rows))
	}
	if obj.dataCalls != 3 {
		t.Errorf("data calls = %d, want MaxRetries+1 = 3", obj.dataCalls)
	}
}

func TestFetchRowsPacesBetweenPages(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(300, 2), totalRows: 300, cols: 2}
	f := &chart.Fetcher{PageSize: 100, MaxRows: 10000, RequestDelay: 30 * time.Millisecond}

	start := time.Now()
	if _, err := f.FetchRows(context.Background(), obj, chart.MetadataFromLayout(obj.layout)); err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	// Delays before pages 2 and 3, none before the first or after the last.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 60ms of pacing", elapsed)
	}
}

func TestFetchRowsCancelledDuringPacing(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{layout: tabularLayout(300, 2), totalRows: 300, cols: 2}
	f := &chart.Fetcher{PageSize: 100, MaxRows: 10000, RequestDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.FetchRows(ctx, obj, chart.MetadataFromLayout(obj.layout))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FetchRows did not return after cancellation")
	}
	if len(obj.pages) != 1 {
		t.Errorf("page requests = %d, want the single pre-delay page", len(obj.pages))
	}
}

var _ qix.Object = (*fakeObject)(nil)
