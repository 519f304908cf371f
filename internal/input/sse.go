package input

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/chase3718/lou-piano/internal/note"
)

const defaultSSERetry = 2 * time.Second

// SSEClient follows the board's /sse stream and forwards note_on events.
type SSEClient struct {
	URL    string
	Retry  time.Duration
	Client *http.Client
	Submit func(Event) bool
	Logger *slog.Logger
}

// Run keeps the stream connected until ctx is done, reconnecting after
// Retry on any failure. It only returns ctx.Err().
func (c *SSEClient) Run(ctx context.Context) error {
	logger := c.logger()
	retry := c.Retry
	if retry <= 0 {
		retry = defaultSSERetry
	}

	client := sse.NewClient(c.URL)
	if c.Client != nil {
		client.Connection = c.Client
	}
	client.ReconnectStrategy = backoff.WithContext(backoff.NewConstantBackOff(retry), ctx)
	client.ReconnectNotify = func(err error, next time.Duration) {
		logger.Warn("sse: stream unavailable", "url", c.URL, "err", err, "retry_in", next)
	}
	client.OnConnect(func(*sse.Client) {
		logger.Info("sse: connected", "url", c.URL)
	})
	// keys held when the link dropped will never see their release
	client.OnDisconnect(func(*sse.Client) {
		logger.Warn("sse: stream lost", "url", c.URL)
		c.releaseAll()
	})

	for {
		err := client.SubscribeWithContext(ctx, "", c.handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a clean close by the board is reported as success and skips
		// OnDisconnect
		logger.Warn("sse: stream ended", "url", c.URL, "err", err, "retry_in", retry)
		client.Connected = false
		c.releaseAll()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func (c *SSEClient) handle(msg *sse.Event) {
	payload := string(msg.Data)
	ev, ok := ParseEvent(payload)
	if !ok {
		c.logger().Debug("sse: event ignored", "data", payload)
		return
	}
	c.Submit(ev)
}

func (c *SSEClient) releaseAll() {
	c.Submit(Event{Source: SourceSSE, Kind: Release, Index: note.None})
}

func (c *SSEClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
