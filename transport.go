package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/codewandler/realtime-go/internal/websocket"
)

// Transport is an established duplex channel carrying whole messages in
// order. Call setup is done by whoever creates it.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

func (c *clientConfig) dialURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	if c.callID != "" {
		q.Set("call_id", c.callID)
	} else {
		q.Set("model", c.model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the service over a websocket and starts the engine.
func Dial(ctx context.Context, opts ...Option) (*Client, error) {
	config := newConfig(opts)
	if err := config.validateDial(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	u, err := config.dialURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", config.apiKey))

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         u,
		DialTimeout: config.dialTimeout,
		Headers:     headers,
		InboxSize:   config.eventQueue,
		Logger:      config.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return start(ws, config)
}
