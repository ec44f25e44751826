package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/ggoodman/mcp-mock-server/internal/engine"
	"github.com/ggoodman/mcp-mock-server/internal/jsonrpc"
	"github.com/ggoodman/mcp-mock-server/internal/logctx"
	"github.com/ggoodman/mcp-mock-server/tools"
)

// ErrAlreadyServing is returned by Serve when called a second time.
var ErrAlreadyServing = errors.New("stdio: Serve already called")

// Handler is a single-connection stdio transport that reads JSON-RPC requests
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only; request semantics live in the engine, which
// resolves tool calls against the registry given to NewHandler.
type Handler struct {
	r   io.Reader
	w   io.Writer
	l   *slog.Logger
	reg *tools.Registry

	serving atomic.Bool
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(reg *tools.Registry, opts ...Option) *Handler {
	h := &Handler{
		r:   os.Stdin,
		w:   os.Stdout,
		l:   slog.Default(),
		reg: reg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type readResult struct {
	line []byte
	err  error
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler. For every non-blank
// line Serve writes exactly one response line and flushes it before reading
// the next line. Blank lines are skipped without a response.
//
// Serve returns nil on EOF and on cancellation. A request already being
// handled when the context is canceled is still answered. Read errors other
// than EOF and any write error are returned.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	log := slog.New(logctx.Handler{Handler: h.l.Handler()})
	eng := engine.NewEngine(h.reg, engine.WithLogger(log))
	out := newWriteMux(h.w)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan readResult)
	next := make(chan struct{})
	go readLines(readCtx, bufio.NewReader(h.r), lines, next)

	log.InfoContext(ctx, "stdio.serve.start")

	var seq int64
	for {
		if ctx.Err() != nil {
			log.InfoContext(ctx, "stdio.serve.cancelled", slog.Int64("requests", seq))
			return nil
		}

		var rr readResult
		var ok bool
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "stdio.serve.cancelled", slog.Int64("requests", seq))
			return nil
		case rr, ok = <-lines:
		}
		if !ok {
			log.InfoContext(ctx, "stdio.serve.eof", slog.Int64("requests", seq))
			return nil
		}
		if rr.err != nil {
			log.ErrorContext(ctx, "stdio.read.fail", slog.String("err", rr.err.Error()))
			return fmt.Errorf("read request: %w", rr.err)
		}

		line := bytes.TrimSpace(rr.line)
		if len(line) > 0 {
			seq++
			// The in-flight request is completed even if ctx is canceled meanwhile.
			res := h.handleLine(context.WithoutCancel(ctx), log, eng, seq, line)
			if err := out.writeJSONRPC(res); err != nil {
				log.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
				return fmt.Errorf("write response: %w", err)
			}
			log.DebugContext(ctx, "stdio.send", slog.Int64("seq", seq), slog.String("id", res.ID.String()), slog.Bool("error", res.Error != nil))
		}

		select {
		case next <- struct{}{}:
		case <-ctx.Done():
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, log *slog.Logger, eng *engine.Engine, seq int64, line []byte) *jsonrpc.Response {
	req, id, code, err := jsonrpc.DecodeRequest(line)
	if err != nil {
		if code == jsonrpc.ErrorCodeParseError {
			log.ErrorContext(ctx, "stdio.parse_error", slog.Int64("seq", seq), slog.String("line", string(line)))
			return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, jsonrpc.MessageParseError, nil)
		}
		log.WarnContext(ctx, "stdio.invalid_request", slog.Int64("seq", seq), slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidRequest, jsonrpc.MessageInvalidRequest, nil)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Seq: seq})
	log.DebugContext(ctx, "stdio.recv", slog.String("line", string(line)))
	return eng.HandleRequest(ctx, req)
}

// readLines feeds lines to the serve loop one at a time: after each line it
// waits on next before reading again, so no more than one line is ever
// buffered ahead of the response being written. The final line is delivered
// even without a trailing newline.
func readLines(ctx context.Context, br *bufio.Reader, lines chan<- readResult, next <-chan struct{}) {
	defer close(lines)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case lines <- readResult{line: line}:
			case <-ctx.Done():
				return
			}
			select {
			case <-next:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case lines <- readResult{err: err}:
				case <-ctx.Done():
				}
			}
			return
		}
	}
}
