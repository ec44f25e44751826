package stdio

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// writeMux serializes whole JSON-RPC messages onto the output stream, one per
// line, flushing after each so a line-buffered peer sees it immediately.
type writeMux struct {
	mu sync.Mutex
	bw *bufio.Writer
}

func newWriteMux(w io.Writer) *writeMux {
	return &writeMux{bw: bufio.NewWriter(w)}
}

func (m *writeMux) writeJSONRPC(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.bw.Write(b); err != nil {
		return err
	}
	return m.bw.Flush()
}
