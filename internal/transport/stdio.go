// ABOUTME: Line-delimited stdio transport: one JSON request per line in,
// ABOUTME: one JSON response per line out. Diagnostics go to stderr only.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/radius-gateway/internal/dispatch"
)

// maxLineSize bounds a single stdio request line (1MB).
const maxLineSize = 1 << 20

// Stdio reads newline-delimited JSON requests and writes newline-delimited
// JSON responses, strictly sequentially: each response is written before the
// next request is read.
type Stdio struct {
	dispatcher *dispatch.Dispatcher
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger
}

// NewStdio creates a stdio transport around the given reader and writer.
func NewStdio(d *dispatch.Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stdio{
		dispatcher: d,
		in:         in,
		out:        out,
		logger:     logger,
	}
}

// Run processes requests until EOF or a write failure. A malformed line
// answers a framing error and the loop continues; closing stdin is the
// only cancellation signal once a read is in flight.
func (s *Stdio) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := dispatch.Decode(line)
		if err != nil {
			s.logger.Error("invalid request line", "error", err)
			if err := encoder.Encode(parseErrorResponse(line, err)); err != nil {
				return fmt.Errorf("writing parse error response: %w", err)
			}
			continue
		}

		resp, ok := s.dispatcher.Handle(ctx, req)
		if !ok {
			continue
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	s.logger.Info("stdin closed, stdio transport exiting")
	return nil
}

// parseErrorResponse shapes a framing error for an unparsable line. The
// variant cannot be classified once parsing fails, so the line is sniffed
// for a jsonrpc token: JSON-RPC-looking input gets -32700 with a null id,
// everything else gets the bare legacy error shape.
func parseErrorResponse(line []byte, err error) any {
	if bytes.Contains(line, []byte(`"jsonrpc"`)) {
		return dispatch.NewError(nil, dispatch.CodeParseError, err.Error())
	}
	return dispatch.LegacyError{Error: err.Error()}
}
