// Package realtime is a client-side protocol engine for a full-duplex
// realtime inference session. It mirrors session, conversation, input audio
// and response state from server events and validates intents locally
// before they reach the wire.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/response"
	"github.com/codewandler/realtime-go/session"
)

const traceLimit = 1024

type outbound struct {
	data []byte
	typ  events.ClientEventType
}

// Client is one realtime session. Intents may be issued from any goroutine;
// events are consumed through Recv or Events.
type Client struct {
	*Sender
	*Receiver

	config    *clientConfig
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	limiter   *rate.Limiter

	// slots reserves room in out so that an enqueue after validation never
	// blocks.
	slots  chan struct{}
	out    chan outbound
	events chan events.ServerEvent

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	// sendMu keeps validation order and queue order identical.
	sendMu sync.Mutex

	// mu guards the state owners below.
	mu           sync.Mutex
	session      *session.Manager
	conversation *conversation.Store
	audio        *audio.Pipeline
	responses    *response.Tracker
	player       *audio.Player

	// muted is the response whose remaining audio is discarded after a
	// barge-in.
	muted string
}

// New starts the engine over an established transport.
func New(t Transport, opts ...Option) (*Client, error) {
	config := newConfig(opts)
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return start(t, config)
}

func start(t Transport, config *clientConfig) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c := &Client{
		config:       config,
		transport:    t,
		logger:       config.logger,
		metrics:      config.metrics,
		slots:        make(chan struct{}, config.outboundQueue),
		out:          make(chan outbound, config.outboundQueue),
		events:       make(chan events.ServerEvent, config.eventQueue),
		ctx:          gctx,
		cancel:       cancel,
		group:        group,
		session:      session.NewManager(),
		conversation: conversation.NewStore(conversation.WithAudioCacheSize(config.audioCacheSize)),
		audio:        audio.NewPipeline(),
		responses:    response.NewTracker(config.historySize),
	}
	if config.sendLimit > 0 {
		c.limiter = rate.NewLimiter(config.sendLimit, max(config.sendBurst, 1))
	}
	if config.playback > 0 {
		c.player = audio.NewPlayer(nil, config.playback)
	}
	c.Sender = &Sender{c: c}
	c.Receiver = &Receiver{c: c}

	group.Go(func() error { return c.readLoop(gctx) })
	group.Go(func() error { return c.writeLoop(gctx) })
	if p, ok := t.(pinger); ok && config.keepAlive > 0 {
		group.Go(func() error { return c.keepAlive(gctx, p) })
	}
	go func() {
		err := group.Wait()
		c.shutdown(err)
	}()

	if u, ok := config.initialSession(); ok {
		if err := c.UpdateSession(ctx, u); err != nil {
			c.Close()
			return nil, fmt.Errorf("initial session update: %w", err)
		}
	}

	c.logger.Debug("realtime client started", slog.String("model", config.model))
	return c, nil
}

// Done is closed once the connection ended.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Err returns nil while the connection is open. Afterwards it returns
// ErrConnectionClosed, or an error wrapping ErrTransport if the transport
// failed.
func (c *Client) Err() error {
	select {
	case <-c.ctx.Done():
	default:
		return nil
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrConnectionClosed
}

// fail records the first terminal error before the context is cancelled.
func (c *Client) fail(err error) error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
	return err
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("realtime connection failed", slog.Any("err", err))
		}
		c.cancel()
		if cerr := c.transport.Close(); cerr != nil {
			c.logger.Debug("closing transport", slog.Any("err", cerr))
		}
		if c.player != nil {
			_ = c.player.Close()
		}
	})
}

// Close ends the session. Intents issued afterwards fail with
// ErrConnectionClosed.
func (c *Client) Close() error {
	c.shutdown(nil)
	_ = c.group.Wait()
	return nil
}

// Split returns independently usable sending and receiving handles sharing
// this connection.
func (c *Client) Split() (*Sender, *Receiver) {
	return c.Sender, c.Receiver
}

func (c *Client) trace(direction string, data []byte) {
	if !c.config.trace {
		return
	}
	if len(data) > traceLimit {
		data = data[:traceLimit]
	}
	c.logger.Debug(direction, slog.String("payload", string(data)))
}

func (c *Client) readLoop(ctx context.Context) error {
	defer close(c.events)
	for {
		data, err := c.transport.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return c.fail(fmt.Errorf("%w: read: %w", ErrTransport, err))
		}
		c.trace("recv", data)

		evt, err := events.DecodeServer(data)
		if err != nil {
			if !errors.Is(err, events.ErrMalformedEvent) {
				c.logger.Debug("skipping unknown event", slog.String("type", events.EventType(data)))
				continue
			}
			// delivered to the consumer as a typed event
			c.logger.Warn("failed to decode event", slog.Any("err", err))
			evt = events.NewDecodeErrorEvent(data, err)
		}
		c.metrics.eventReceived(string(evt.ServerEventType()))

		c.mu.Lock()
		fx := c.apply(evt)
		c.mu.Unlock()
		c.runEffects(ctx, fx)

		select {
		case c.events <- evt:
		case <-ctx.Done():
			return nil
		}
	}
}

type pinger interface {
	Ping(ctx context.Context, data []byte) error
}

func (c *Client) keepAlive(ctx context.Context, p pinger) error {
	ticker := time.NewTicker(c.config.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Ping(ctx, nil); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return c.fail(fmt.Errorf("%w: ping: %w", ErrTransport, err))
			}
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.out:
			<-c.slots
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			if err := c.transport.WriteMessage(ctx, msg.data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return c.fail(fmt.Errorf("%w: write %s: %w", ErrTransport, msg.typ, err))
			}
			c.trace("send", msg.data)
			c.metrics.intentSent(string(msg.typ))
		}
	}
}
