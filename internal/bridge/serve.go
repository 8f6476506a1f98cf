// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

const maxRequestSize = 64 * 1024

// Serve reads one JSON request per line from r and writes one JSON response per line to w.
// It returns when r is exhausted or the context is canceled. Requests are executed in order.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read bridge request: %w", err)
					}
				default:
				}
				return nil
			}
			if err := encoder.Encode(d.handleLine(ctx, line)); err != nil {
				return fmt.Errorf("failed to write bridge response: %w", err)
			}
		}
	}
}

func (d *Dispatcher) handleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Status: StatusError, Message: fmt.Sprintf("malformed request: %s", err)}
	}
	return d.Execute(ctx, req)
}
