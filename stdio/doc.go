// Package stdio implements the line transport of the mock server: newline
// delimited JSON-RPC over a pair of byte streams, stdin/stdout by default. It
// is intended to be spawned as a subprocess by the client under test.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Ordering         : strictly one request in, one response out
//	Framing          : one JSON object per line, UTF-8
//	Lifetime         : until EOF on the reader or context cancellation
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	reg := builtin.NewRegistry(builtin.Options{})
//	h := stdio.NewHandler(reg, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// Diagnostics are written to the logger only; the writer carries nothing but
// responses.
package stdio
