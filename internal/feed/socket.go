package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arkiv/jobwatch/internal/metrics"
)

// readSocket runs one WebSocket session. A frame that is not valid JSON ends
// the session, so the whole connection is re-established after the delay.
func (c *Connector) readSocket(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.src.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.connected()
	defer c.disconnected()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			metrics.FeedDecodeErrors.WithLabelValues(c.src.Name).Inc()
			return fmt.Errorf("decode: %w", err)
		}
		if err := c.deliver(ctx, payload); err != nil {
			return err
		}
	}
}
