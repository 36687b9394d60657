package server

import (
	"context"
	"errors"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sensebridge/sensebridge/internal/chart"
	"github.com/sensebridge/sensebridge/internal/qix"
)

// defaultListLimit is the app-catalogue page size when the caller gives none.
const defaultListLimit = 100

// chartTypeKeywords filters sheet cells down to data-bearing visualizations.
var chartTypeKeywords = []string{"chart", "table", "kpi", "pivot"}

type listAppsArgs struct {
	Limit  int    `json:"limit,omitempty"`
	Offset string `json:"offset,omitempty"`
}

type appSheetsArgs struct {
	AppID string `json:"app_id,omitempty"`
}

type sheetChartsArgs struct {
	SheetID string `json:"sheet_id"`
	AppID   string `json:"app_id,omitempty"`
}

type chartDataArgs struct {
	SheetID         string `json:"sheet_id"`
	ChartID         string `json:"chart_id"`
	AppID           string `json:"app_id,omitempty"`
	MaxRows         int    `json:"max_rows,omitempty"`
	PageSize        int    `json:"page_size,omitempty"`
	IncludeMetadata *bool  `json:"include_metadata,omitempty"`
}

// registerTools attaches the four sensebridge tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list-apps",
		Description: "List the analytics apps available on the platform, with cursor pagination.",
	}, handle(s, "list-apps", s.listApps))

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get-app-sheets",
		Description: "List the sheets of an app (the configured default app when app_id is omitted).",
	}, handle(s, "get-app-sheets", s.appSheets))

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get-sheet-charts",
		Description: "List the charts placed on a sheet, filtered to data-bearing visualization types.",
	}, handle(s, "get-sheet-charts", s.sheetCharts))

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get-chart-data",
		Description: "Retrieve a chart's tabular data in bounded pages, with metadata and truncation status. Falls back to the raw layout when bulk retrieval fails.",
	}, handle(s, "get-chart-data", s.chartData))
}

func (s *Server) listApps(ctx context.Context, args listAppsArgs) (any, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	page, err := s.catalog.ListApps(ctx, limit, args.Offset)
	if err != nil {
		return nil, err
	}

	apps := page.Apps
	if apps == nil {
		apps = []qix.AppInfo{}
	}
	return struct {
		Data       []qix.AppInfo `json:"data"`
		Pagination struct {
			Next string `json:"next,omitempty"`
		} `json:"pagination"`
	}{
		Data: apps,
		Pagination: struct {
			Next string `json:"next,omitempty"`
		}{Next: page.Next},
	}, nil
}

func (s *Server) appSheets(ctx context.Context, args appSheetsArgs) (any, error) {
	var sheets []qix.SheetEntry
	err := s.sessions.WithSession(ctx, args.AppID, func(ctx context.Context, doc qix.Doc) error {
		var err error
		sheets, err = doc.SheetList(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sheets == nil {
		sheets = []qix.SheetEntry{}
	}
	return struct {
		Sheets []qix.SheetEntry `json:"sheets"`
	}{Sheets: sheets}, nil
}

func (s *Server) sheetCharts(ctx context.Context, args sheetChartsArgs) (any, error) {
	if args.SheetID == "" {
		return nil, errors.New("sheet_id is required")
	}

	charts := []qix.SheetCell{}
	err := s.sessions.WithSession(ctx, args.AppID, func(ctx context.Context, doc qix.Doc) error {
		obj, err := doc.Object(ctx, args.SheetID)
		if err != nil {
			return err
		}
		layout, err := chart.FetchLayout(ctx, obj, s.retryPolicy(ctx))
		if err != nil {
			return err
		}
		for _, cell := range layout.Cells {
			if isChartType(cell.Type) {
				charts = append(charts, cell)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]chartEntry, 0, len(charts))
	for _, c := range charts {
		out = append(out, chartEntry{ID: c.Name, Type: c.Type, Bounds: c.Bounds})
	}
	return struct {
		Charts []chartEntry `json:"charts"`
	}{Charts: out}, nil
}

// chartEntry is the wire shape of one chart in the get-sheet-charts result.
type chartEntry struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Bounds *qix.Bounds `json:"bounds,omitempty"`
}

func (s *Server) chartData(ctx context.Context, args chartDataArgs) (any, error) {
	if args.SheetID == "" {
		return nil, errors.New("sheet_id is required")
	}
	if args.ChartID == "" {
		return nil, errors.New("chart_id is required")
	}

	maxRows := s.retrieval.MaxRows
	if args.MaxRows > 0 {
		maxRows = args.MaxRows
	}
	pageSize := s.retrieval.PageSize
	if args.PageSize > 0 {
		pageSize = args.PageSize
	}
	includeMetadata := true
	if args.IncludeMetadata != nil {
		includeMetadata = *args.IncludeMetadata
	}

	if s.retrieval.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.retrieval.Timeout.Std())
		defer cancel()
	}

	policy := s.retryPolicy(ctx)
	asm := &chart.Assembler{
		Fetcher: &chart.Fetcher{
			PageSize:     pageSize,
			MaxRows:      maxRows,
			RequestDelay: s.retrieval.RequestDelay.Std(),
			Retry:        policy,
			Metrics:      s.metrics,
		},
		Retry:   policy,
		Metrics: s.metrics,
	}

	var result *chart.Result
	err := s.sessions.WithSession(ctx, args.AppID, func(ctx context.Context, doc qix.Doc) error {
		obj, err := doc.Object(ctx, args.ChartID)
		if err != nil {
			return err
		}
		result, err = asm.Assemble(ctx, obj, chart.Options{IncludeMetadata: includeMetadata})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// isChartType reports whether a sheet cell's type names a data-bearing
// visualization.
func isChartType(t string) bool {
	lower := strings.ToLower(t)
	for _, kw := range chartTypeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
