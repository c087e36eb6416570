// Package feed keeps one long-lived subscription per upstream job feed and
// forwards every decoded message to a single channel.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/arkiv/jobwatch/internal/metrics"
)

// ReconnectDelay is the fixed wait between a connection failure and the next attempt.
const ReconnectDelay = 5 * time.Second

var (
	// ErrStreamClosed is returned when the peer ends a session cleanly.
	ErrStreamClosed = errors.New("stream closed by peer")
	// ErrUnexpectedStatus is returned when a push stream does not answer 200.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Mode selects the transport of a feed.
type Mode string

const (
	// ModeSocket is a persistent full-duplex WebSocket.
	ModeSocket Mode = "ws"
	// ModeStream is a server-sent event stream.
	ModeStream Mode = "sse"
)

// ParseMode accepts ws, persistent-socket, sse and push-stream. Empty means ws.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "ws", "persistent-socket":
		return ModeSocket, nil
	case "sse", "push-stream":
		return ModeStream, nil
	}
	return "", fmt.Errorf("unknown feed mode %q", s)
}

// Source describes one upstream feed.
type Source struct {
	Name string
	URL  string
	Type string
	Mode Mode
}

// Message is one decoded payload tagged with its feed's source type.
type Message struct {
	Feed       string
	SourceType string
	Payload    any
	Received   time.Time
}

// Connector maintains the subscription to a single feed.
type Connector struct {
	src    Source
	out    chan<- Message
	log    *slog.Logger
	delay  time.Duration
	dialer *websocket.Dialer
	client *http.Client
}

// Option configures a Connector.
type Option func(*Connector)

// WithRetryDelay overrides ReconnectDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Connector) { c.delay = d }
}

// WithHTTPClient sets the client used for push streams.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Connector) { c.dialer = d }
}

// New returns a Connector that delivers src's messages to out.
func New(src Source, out chan<- Message, log *slog.Logger, opts ...Option) *Connector {
	c := &Connector{
		src:    src,
		out:    out,
		log:    log.With("source", src.Name, "mode", string(src.Mode)),
		delay:  ReconnectDelay,
		dialer: websocket.DefaultDialer,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and reconnects until ctx is done. Every failure, including a
// clean close by the peer, is logged and retried after the fixed delay with
// no attempt limit. The returned error is always ctx.Err().
func (c *Connector) Run(ctx context.Context) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(c.delay), ctx)
	err := backoff.RetryNotify(func() error {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = ErrStreamClosed
		}
		return err
	}, b, func(err error, d time.Duration) {
		metrics.FeedReconnects.WithLabelValues(c.src.Name).Inc()
		c.log.Warn("connection error, reconnecting", "err", err, "delay", d)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (c *Connector) session(ctx context.Context) error {
	switch c.src.Mode {
	case ModeStream:
		return c.readStream(ctx)
	default:
		return c.readSocket(ctx)
	}
}

func (c *Connector) connected() {
	metrics.FeedConnected.WithLabelValues(c.src.Name).Set(1)
	c.log.Info("connected", "url", c.src.URL)
}

func (c *Connector) disconnected() {
	metrics.FeedConnected.WithLabelValues(c.src.Name).Set(0)
}

func (c *Connector) deliver(ctx context.Context, payload any) error {
	metrics.FeedMessages.WithLabelValues(c.src.Name).Inc()
	msg := Message{
		Feed:       c.src.Name,
		SourceType: c.src.Type,
		Payload:    payload,
		Received:   time.Now(),
	}
	select {
	case c.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
