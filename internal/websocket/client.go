package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	// InboxSize bounds the number of received messages not yet read.
	InboxSize int
	Logger    *slog.Logger
}

// Client is a websocket client connection carrying text messages. Reads are
// served from a bounded inbox filled by a background reader; writes go to
// the socket directly.
type Client struct {
	conn   net.Conn
	in     chan []byte
	done   chan struct{}
	logger *slog.Logger

	writeMu sync.Mutex

	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
}

func (c *Client) setDone(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

// Err returns the reason the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Done is closed once the connection ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadMessage returns the next text or binary message.
func (c *Client) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		// drain messages received before the close
		select {
		case msg := <-c.in:
			return msg, nil
		default:
		}
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteMessage writes a text message.
func (c *Client) WriteMessage(ctx context.Context, data []byte) error {
	return c.write(ctx, ws.OpText, data)
}

func (c *Client) Ping(ctx context.Context, data []byte) error {
	return c.write(ctx, ws.OpPing, data)
}

func (c *Client) write(ctx context.Context, op ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := wsutil.WriteClientMessage(c.conn, op, data); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the socket.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing"))
	c.writeMu.Unlock()
	c.setDone(ErrClosed)
	return c.conn.Close()
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	inboxSize := config.InboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, br, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	logger.Debug("handshake complete", slog.Any("protocol", hs.Protocol))

	// frames sent right after the handshake may already sit in br
	var r io.Reader = conn
	if br != nil {
		r = br
	}

	client := &Client{
		conn:   conn,
		in:     make(chan []byte, inboxSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	go client.readLoop(r)

	logger.Info("connected to websocket")

	return client, nil
}

func (c *Client) readLoop(r io.Reader) {
	for {
		messages, err := wsutil.ReadServerMessage(r, nil)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.setDone(ErrClosed)
				return
			}
			c.logger.Error("ws read failed", slog.Any("err", err))
			c.setDone(fmt.Errorf("ws read: %w", err))
			return
		}

		for _, msg := range messages {
			if msg.OpCode.IsControl() {
				c.logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))
				c.writeMu.Lock()
				err := wsutil.HandleServerControlMessage(c.conn, msg)
				c.writeMu.Unlock()
				if msg.OpCode == ws.OpClose {
					c.logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					c.setDone(ErrClosed)
					return
				}
				if err != nil {
					c.logger.Error("handling of control message failed", slog.Any("err", err))
				}
				continue
			}

			select {
			case c.in <- msg.Payload:
			case <-c.done:
				return
			}
		}
	}
}
