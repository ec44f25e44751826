package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-mock-server/internal/jsonrpc"
	"github.com/ggoodman/mcp-mock-server/internal/logctx"
	"github.com/ggoodman/mcp-mock-server/tools"
)

// Method names understood by the engine.
const (
	ListToolsMethod = "list_tools"
	CallToolMethod  = "call_tool"
)

// CallToolParams is the params object of a call_tool request. ToolName is
// kept as received so a non-string name can still be reported as unknown.
type CallToolParams struct {
	ToolName tools.StringArg `json:"tool_name"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON matches member names exactly.
func (p *CallToolParams) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*p = CallToolParams{Params: fields["params"]}
	if raw, ok := fields["tool_name"]; ok {
		return p.ToolName.UnmarshalJSON(raw)
	}
	return nil
}

// Engine routes decoded requests to the built-in methods and the tool
// registry. It holds no per-request state.
type Engine struct {
	reg *tools.Registry
	log *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for request lifecycle events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an Engine serving reg. A nil registry serves no tools.
func NewEngine(reg *tools.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		reg: reg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = tools.NewRegistry()
	}
	return e
}

// HandleRequest produces the response for req. It always returns a non-nil
// response carrying either a result or an error, never both.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (res *jsonrpc.Response) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", r), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeServerError, fmt.Sprint(r), nil)
		}
	}()

	var (
		result any
		err    error
	)
	switch req.Method {
	case ListToolsMethod:
		result = e.reg.List()
	case CallToolMethod:
		result, err = e.callTool(ctx, req)
	default:
		log.InfoContext(ctx, "engine.handle_request.method_not_found", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil)
	}

	if err == nil {
		res, err = jsonrpc.NewResultResponse(req.ID, result)
	}
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeServerError, err.Error(), nil)
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res
}

func (e *Engine) callTool(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params CallToolParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	if string(params.Params) == "null" {
		params.Params = nil
	}

	var (
		result any
		err    error
	)
	if name, ok := params.ToolName.Str(); ok {
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})
		result, err = e.reg.Execute(ctx, name, params.Params)
	} else {
		// Absent, null or non-string names never match a registered tool.
		name := "None"
		if params.ToolName.Present() {
			name = params.ToolName.Text()
		}
		err = &tools.UnknownToolError{Name: name}
	}
	if err != nil {
		var ute *tools.UnknownToolError
		if errors.As(err, &ute) {
			e.log.WarnContext(ctx, "engine.call_tool.unknown", slog.String("tool", ute.Name))
		}
		return nil, err
	}
	return result, nil
}
