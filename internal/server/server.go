// Package server exposes the sensebridge tool surface over the Model Context
// Protocol.
//
// Every tool returns exactly one text content item holding a JSON-encoded
// result. Operational failures — bad arguments past schema validation,
// remote errors that survived retries, handler panics — are encoded as
// {"error": msg} inside that payload so the host protocol layer always
// receives a well-formed response.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/observe"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
	"github.com/sensebridge/sensebridge/internal/session"
)

// Version is reported in the MCP implementation descriptor.
const Version = "1.0.0"

// Config holds the dependencies for a [Server].
type Config struct {
	// Sessions manages the engine session for each invocation. Required.
	Sessions *session.Manager

	// Catalog lists the platform's applications. Required.
	Catalog qix.AppCatalog

	// Retrieval supplies the process-wide retrieval limits; individual
	// calls may override the row bounds.
	Retrieval config.RetrievalConfig

	// Metrics is optional; when nil no instruments are recorded.
	Metrics *observe.Metrics
}

// Server is the MCP server for the sensebridge tools.
type Server struct {
	sessions  *session.Manager
	catalog   qix.AppCatalog
	retrieval config.RetrievalConfig
	metrics   *observe.Metrics
	mcp       *mcpsdk.Server
}

// New creates a [Server] with all four tools registered.
func New(cfg Config) *Server {
	s := &Server{
		sessions:  cfg.Sessions,
		catalog:   cfg.Catalog,
		retrieval: cfg.Retrieval,
		metrics:   cfg.Metrics,
	}

	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "sensebridge", Version: Version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}

// RunStdio serves MCP over stdin/stdout until ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcpsdk.StdioTransport{})
}

// retryPolicy builds the retry policy for one invocation, feeding the retry
// counter when metrics are enabled.
func (s *Server) retryPolicy(ctx context.Context) retry.Policy {
	p := retry.Policy{
		MaxRetries: s.retrieval.MaxRetries,
		Delay:      s.retrieval.RetryDelay.Std(),
	}
	if s.metrics != nil {
		m := s.metrics
		p.OnRetry = func(op string) {
			m.RetryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		}
	}
	return p
}

// handle wraps a tool body with tracing, metrics, panic recovery, and the
// inline-error envelope. The returned function satisfies the SDK's typed
// tool handler shape.
func handle[In any](s *Server, name string, fn func(ctx context.Context, args In) (any, error)) func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, args In) (res *mcpsdk.CallToolResult, _ any, _ error) {
		ctx, span := observe.StartSpan(ctx, "tool/"+name)
		defer span.End()
		start := time.Now()
		status := "ok"

		defer func() {
			if r := recover(); r != nil {
				observe.Logger(ctx).Error("tool panicked", "tool", name, "panic", r)
				status = "panic"
				res = errorResult(fmt.Errorf("internal error: %v", r))
			}
			if s.metrics != nil {
				s.metrics.ToolDuration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributes(attribute.String("tool", name)))
				s.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
					attribute.String("tool", name),
					attribute.String("status", status),
				))
			}
		}()

		v, err := fn(ctx, args)
		if err != nil {
			observe.Logger(ctx).Error("tool failed", "tool", name, "error", err)
			status = "error"
			return errorResult(err), nil, nil
		}
		return textResult(v)
	}
}

// textResult encodes v as the single JSON text payload of a tool result.
func textResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %v", err)), nil, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult encodes err as the inline {"error": msg} payload.
func errorResult(err error) *mcpsdk.CallToolResult {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		IsError: true,
	}
}
