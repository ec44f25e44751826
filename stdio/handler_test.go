package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-mock-server/internal/jsonrpc"
	"github.com/ggoodman/mcp-mock-server/tools"
	"github.com/ggoodman/mcp-mock-server/tools/builtin"
	"github.com/google/go-cmp/cmp"
)

func testRegistry() *tools.Registry {
	return builtin.NewRegistry(builtin.Options{
		Now:  func() time.Time { return time.Unix(1700000000, 250_000_000) },
		Rand: rand.New(rand.NewPCG(3, 3)),
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serveString runs a handler over a fixed input until EOF and returns the
// output split into lines.
func serveString(t *testing.T, input string) []string {
	t.Helper()
	var out bytes.Buffer
	h := NewHandler(testRegistry(), WithIO(strings.NewReader(input), &out), WithLogger(discardLogger()))
	if err := h.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Len() == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
}

// parseResponse decodes a response line and checks the envelope: version 2.0,
// an id member, and exactly one of result or error.
func parseResponse(t *testing.T, line string) *jsonrpc.Response {
	t.Helper()
	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &members); err != nil {
		t.Fatalf("invalid response line %q: %v", line, err)
	}
	_, hasResult := members["result"]
	_, hasError := members["error"]
	if hasResult == hasError {
		t.Fatalf("response must carry exactly one of result or error: %s", line)
	}
	if _, ok := members["id"]; !ok {
		t.Fatalf("response without id: %s", line)
	}

	var res jsonrpc.Response
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		t.Fatalf("invalid response line %q: %v", line, err)
	}
	if res.JSONRPCVersion != jsonrpc.ProtocolVersion {
		t.Fatalf("jsonrpc = %q in %s", res.JSONRPCVersion, line)
	}
	return &res
}

func TestServe_ConformanceScenarios(t *testing.T) {
	input := strings.Join([]string{
		`{"method":"list_tools","id":1}`,
		`{"method":"call_tool","params":{"tool_name":"example","params":{"message":"hi"}},"id":2}`,
		`{"method":"call_tool","params":{"tool_name":"calculator","params":{"expression":"2+2"}},"id":3}`,
		`{"method":"call_tool","params":{"tool_name":"calculator","params":{"expression":"1/0"}},"id":4}`,
		`{"method":"nope","id":5}`,
		`not valid json`,
		`{"method":"call_tool","params":{"tool_name":"example"},"id":7}`,
	}, "\n") + "\n"

	lines := serveString(t, input)
	if len(lines) != 7 {
		t.Fatalf("got %d response lines, want 7:\n%s", len(lines), strings.Join(lines, "\n"))
	}

	// 1. list_tools
	res := parseResponse(t, lines[0])
	var listed map[string]tools.Descriptor
	if err := json.Unmarshal(res.Result, &listed); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(testRegistry().Names(), slices.Sorted(maps.Keys(listed))); diff != "" {
		t.Fatalf("list_tools keys mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(lines[0], `{"jsonrpc":"2.0","result":{`) || !strings.HasSuffix(lines[0], `,"id":1}`) {
		t.Fatalf("unexpected envelope %s", lines[0])
	}

	want := []string{
		`{"jsonrpc":"2.0","result":{"status":"success","message":"Echo: hi","timestamp":1700000000.25},"id":2}`,
		`{"jsonrpc":"2.0","result":{"expression":"2+2","result":4},"id":3}`,
		`{"jsonrpc":"2.0","result":{"error":"division by zero"},"id":4}`,
		`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found: nope"},"id":5}`,
		`{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`,
		`{"jsonrpc":"2.0","result":{"status":"success","message":"Echo: No message provided","timestamp":1700000000.25},"id":7}`,
	}
	if diff := cmp.Diff(want, lines[1:]); diff != "" {
		t.Fatalf("responses mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_BlankLinesProduceNothing(t *testing.T) {
	lines := serveString(t, "\n   \n\t\r\n")
	if len(lines) != 0 {
		t.Fatalf("expected no output, got %q", lines)
	}
}

func TestServe_OrderPreserved(t *testing.T) {
	var in strings.Builder
	for i := 0; i < 50; i++ {
		if i%7 == 0 {
			in.WriteString("\n")
		}
		if i%5 == 0 {
			in.WriteString("{broken\n")
		}
		fmt.Fprintf(&in, `{"method":"call_tool","params":{"tool_name":"calculator","params":{"expression":"%d*2"}},"id":%d}`+"\n", i, i)
	}

	var ids []string
	for _, line := range serveString(t, in.String()) {
		res := parseResponse(t, line)
		if res.Error != nil {
			if res.Error.Code != jsonrpc.ErrorCodeParseError || !res.ID.IsNil() {
				t.Fatalf("unexpected error response %s", line)
			}
			continue
		}
		ids = append(ids, res.ID.String())
	}
	if len(ids) != 50 {
		t.Fatalf("got %d successful responses, want 50", len(ids))
	}
	for i, id := range ids {
		if id != fmt.Sprint(i) {
			t.Fatalf("response %d has id %s", i, id)
		}
	}
}

func TestServe_InvalidRequests(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`[1,2,3]`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":null}`},
		{`"just a string"`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":null}`},
		{`null`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":null}`},
		{`{"method":42,"id":9}`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":9}`},
		{`{"method":"list_tools","id":{"nested":true}}`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request"},"id":null}`},
		{`{"method":"nope","id":1} trailing`, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`},
	}
	for _, tt := range tests {
		lines := serveString(t, tt.in+"\n")
		if len(lines) != 1 || lines[0] != tt.want {
			t.Fatalf("%s:\n got %q\nwant %q", tt.in, lines, tt.want)
		}
	}
}

func TestServe_FinalLineWithoutNewline(t *testing.T) {
	lines := serveString(t, `{"method":"nope","id":"last"}`)
	want := []string{`{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found: nope"},"id":"last"}`}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_LongLine(t *testing.T) {
	msg := strings.Repeat("x", 256*1024)
	lines := serveString(t, `{"method":"call_tool","params":{"tool_name":"example","params":{"message":"`+msg+`"}},"id":1}`+"\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	res := parseResponse(t, lines[0])
	var out builtin.ExampleResult
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatal(err)
	}
	if out.Message != "Echo: "+msg {
		t.Fatalf("message truncated: %d bytes", len(out.Message))
	}
}

func TestServe_OnlyOnce(t *testing.T) {
	h := NewHandler(testRegistry(), WithIO(strings.NewReader(""), io.Discard), WithLogger(discardLogger()))
	if err := h.Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.Serve(context.Background()); !errors.Is(err, ErrAlreadyServing) {
		t.Fatalf("second Serve err = %v, want ErrAlreadyServing", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestServe_IOErrors(t *testing.T) {
	readErr := errors.New("stdin closed badly")
	h := NewHandler(testRegistry(), WithIO(errReader{readErr}, io.Discard), WithLogger(discardLogger()))
	if err := h.Serve(context.Background()); !errors.Is(err, readErr) {
		t.Fatalf("Serve err = %v, want %v", err, readErr)
	}

	writeErr := errors.New("broken pipe")
	h = NewHandler(testRegistry(), WithIO(strings.NewReader(`{"method":"list_tools","id":1}`+"\n"), errWriter{writeErr}), WithLogger(discardLogger()))
	if err := h.Serve(context.Background()); !errors.Is(err, writeErr) {
		t.Fatalf("Serve err = %v, want %v", err, writeErr)
	}
}

// testHarness drives a handler over io.Pipe so tests can interleave writes
// and reads like a real peer process.
type testHarness struct {
	t       *testing.T
	ctx     context.Context
	cancel  context.CancelFunc
	stdinW  io.WriteCloser
	stdoutR *bufio.Scanner
	done    chan error
	outMu   sync.Mutex
	lines   []string
}

func newHarness(t *testing.T, reg *tools.Registry) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := NewHandler(reg, WithIO(inR, outW), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, ctx: ctx, cancel: cancel, stdinW: inW, stdoutR: bufio.NewScanner(outR), done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
	}()

	go func() {
		for th.stdoutR.Scan() {
			line := strings.TrimSpace(th.stdoutR.Text())
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
	})
	return th
}

func (th *testHarness) send(line string) {
	th.t.Helper()
	if _, err := io.WriteString(th.stdinW, line+"\n"); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func TestServe_FlushesEachResponse(t *testing.T) {
	th := newHarness(t, testRegistry())

	// The peer writes one request at a time and must see each answer before
	// sending the next; this only works if every response is flushed.
	for i := 1; i <= 3; i++ {
		th.send(fmt.Sprintf(`{"method":"call_tool","params":{"tool_name":"weather","params":{"location":"Lisbon"}},"id":%d}`, i))
		line, err := th.nextLine(time.Second)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		res := parseResponse(t, line)
		if res.Error != nil || res.ID.String() != fmt.Sprint(i) {
			t.Fatalf("request %d: unexpected response %s", i, line)
		}
		var w builtin.WeatherResult
		if err := json.Unmarshal(res.Result, &w); err != nil {
			t.Fatal(err)
		}
		if string(w.Location) != `"Lisbon"` {
			t.Fatalf("location = %s", w.Location)
		}
	}
}

func TestServe_RecoversAfterParseError(t *testing.T) {
	th := newHarness(t, testRegistry())

	th.send(`not valid json`)
	line, err := th.nextLine(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res := parseResponse(t, line); res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeParseError || !res.ID.IsNil() {
		t.Fatalf("unexpected response %s", line)
	}

	th.send(`{"method":"list_tools","id":"after"}`)
	line, err = th.nextLine(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res := parseResponse(t, line); res.Error != nil || res.ID.String() != "after" {
		t.Fatalf("unexpected response %s", line)
	}
}

func TestServe_CancelStopsGracefully(t *testing.T) {
	th := newHarness(t, testRegistry())

	th.send(`{"method":"list_tools","id":1}`)
	if _, err := th.nextLine(time.Second); err != nil {
		t.Fatal(err)
	}

	th.cancel()
	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	th.outMu.Lock()
	defer th.outMu.Unlock()
	if len(th.lines) != 0 {
		t.Fatalf("unexpected output after cancel: %q", th.lines)
	}
}

func TestServe_CancelAnswersInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := tools.Tool{
		Descriptor: tools.Descriptor{Name: "slow"},
		Handler: func(ctx context.Context, params json.RawMessage) (any, error) {
			close(started)
			<-release
			return map[string]bool{"ctx_live": ctx.Err() == nil}, nil
		},
	}
	th := newHarness(t, tools.NewRegistry(slow))

	th.send(`{"method":"call_tool","params":{"tool_name":"slow"},"id":1}`)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tool was not invoked")
	}

	th.cancel()
	select {
	case err := <-th.done:
		t.Fatalf("Serve returned %v while a request was in flight", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	line, err := th.nextLine(time.Second)
	if err != nil {
		t.Fatalf("in-flight request was not answered: %v", err)
	}
	if line != `{"jsonrpc":"2.0","result":{"ctx_live":true},"id":1}` {
		t.Fatalf("unexpected response %s", line)
	}

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_EOFEndsServe(t *testing.T) {
	th := newHarness(t, testRegistry())
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("Serve returned %v at EOF, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return at EOF")
	}
}
