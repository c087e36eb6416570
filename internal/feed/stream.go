package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/arkiv/jobwatch/internal/metrics"
)

const (
	dataPrefix   = "data:"
	maxEventLine = 1 << 20
)

// readStream runs one server-sent event session. Lines without the data
// prefix are skipped and a line that is not valid JSON is logged and dropped
// without ending the session.
func (c *Connector) readStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.src.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	c.connected()
	defer c.disconnected()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &payload); err != nil {
			metrics.FeedDecodeErrors.WithLabelValues(c.src.Name).Inc()
			c.log.Warn("dropping unparseable event", "err", err)
			continue
		}
		if err := c.deliver(ctx, payload); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return ErrStreamClosed
}
