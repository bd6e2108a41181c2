package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

const (
	eventBuffer = 256

	// maxEventSize caps one data line. Larger frames are skipped and the
	// stream carries on.
	maxEventSize = 64 << 20
)

// Events subscribes to the daemon's event stream. It returns once the
// subscription is live, so a scan started afterwards is seen from its
// first event. The channel closes when ctx is done or the stream ends.
func (c *Client) Events(ctx context.Context) (<-chan types.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribing to events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp, nil)
	}

	events := make(chan types.Event, eventBuffer)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEvents(ctx, bufio.NewReader(resp.Body), maxEventSize, events)
	}()
	return events, nil
}

// readEvents parses Server-Sent Events frames. Only data lines are used;
// the event name repeats the Type field of the payload. A frame with a line
// longer than limit is dropped with a warning.
func readEvents(ctx context.Context, r *bufio.Reader, limit int, out chan<- types.Event) {
	log := logging.Get("client")

	var data strings.Builder
	oversized := false
	for {
		line, tooLong, err := readLine(r, limit)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug("event stream closed", "error", err)
			}
			return
		}
		if tooLong {
			oversized = true
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if !oversized {
				data.WriteString(strings.TrimPrefix(rest, " "))
			}
			continue
		}
		if line != "" {
			continue
		}
		if oversized {
			log.Warn("event larger than limit skipped", "limit", limit)
			oversized = false
			data.Reset()
			continue
		}
		if data.Len() == 0 {
			continue
		}

		var ev types.Event
		err = json.Unmarshal([]byte(data.String()), &ev)
		data.Reset()
		if err != nil {
			log.Warn("malformed event", "error", err)
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// readLine reads one line without its terminator. A line longer than limit
// is consumed and reported as too long instead of returned.
func readLine(r *bufio.Reader, limit int) (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}
