package realtime

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"

	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-realtime"
)

type clientConfig struct {
	url              string
	model            string
	callID           string
	apiKey           string
	dialTimeout      time.Duration
	keepAlive        time.Duration
	logger           *slog.Logger
	trace            bool
	metrics          *Metrics
	outboundQueue    int
	eventQueue       int
	historySize      int
	audioCacheSize   int
	sendLimit        rate.Limit
	sendBurst        int
	latencyMS        int
	playback         time.Duration
	autoBargeIn      bool
	autoToolResponse bool
	tools            *tool.Registry
	session          events.SessionUpdate
	sessionSet       bool
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

// validate checks the settings the engine needs on any transport.
func (c *clientConfig) validate() error {
	if c.outboundQueue <= 0 || c.eventQueue <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	return nil
}

// validateDial additionally requires what Dial needs to connect.
func (c *clientConfig) validateDial() error {
	if c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	return c.validate()
}

type Option func(*clientConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

// WithTrace logs every sent and received payload at debug level, truncated
// to 1024 bytes.
func WithTrace(trace bool) Option {
	return func(o *clientConfig) {
		o.trace = trace
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *clientConfig) {
		o.metrics = m
	}
}

func WithModel(model string) Option {
	return func(o *clientConfig) {
		o.model = model
	}
}

func WithURL(url string) Option {
	return func(o *clientConfig) {
		o.url = url
	}
}

// WithCallID attaches to an established SIP call instead of creating a new
// session for a model.
func WithCallID(callID string) Option {
	return func(o *clientConfig) {
		o.callID = callID
	}
}

func WithKey(apiKey string) Option {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

// WithKeepAlive pings the server at the given interval on transports that
// support it. Zero disables pings.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *clientConfig) {
		o.keepAlive = interval
	}
}

// WithQueueSizes bounds the outbound intent queue and the consumer event
// queue.
func WithQueueSizes(outbound, events int) Option {
	return func(o *clientConfig) {
		o.outboundQueue = outbound
		o.eventQueue = events
	}
}

// WithHistorySize bounds the number of finished responses kept queryable.
func WithHistorySize(n int) Option {
	return func(o *clientConfig) {
		o.historySize = n
	}
}

// WithAudioCacheSize bounds the number of retrieved audio payloads kept.
func WithAudioCacheSize(n int) Option {
	return func(o *clientConfig) {
		o.audioCacheSize = n
	}
}

// WithSendLimit rate limits writes to the transport.
func WithSendLimit(limit rate.Limit, burst int) Option {
	return func(o *clientConfig) {
		o.sendLimit = limit
		o.sendBurst = burst
	}
}

// WithLatency sets the chunk duration in milliseconds used when streaming
// input audio.
func WithLatency(latencyMS int) Option {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

// WithPlayback enables the output audio player holding up to capacity of
// audio. Barge-in truncates assistant audio at the played position.
func WithPlayback(capacity time.Duration) Option {
	return func(o *clientConfig) {
		o.playback = capacity
	}
}

// WithAutoBargeIn interrupts the in-flight response when turn detection
// reports speech and interrupt_response is enabled.
func WithAutoBargeIn(enabled bool) Option {
	return func(o *clientConfig) {
		o.autoBargeIn = enabled
	}
}

// WithAutoToolResponse requests a follow-up response once the outputs of all
// function calls of a response were sent.
func WithAutoToolResponse(enabled bool) Option {
	return func(o *clientConfig) {
		o.autoToolResponse = enabled
	}
}

// WithToolRegistry sets the registry function calls are dispatched to. Its
// tools are sent with the initial session update.
func WithToolRegistry(r *tool.Registry) Option {
	return func(o *clientConfig) {
		o.tools = r
	}
}

// WithSession sets the session update sent right after connecting.
func WithSession(u events.SessionUpdate) Option {
	return func(o *clientConfig) {
		o.session = u
		o.sessionSet = true
	}
}

func WithInstruction(instruction string) Option {
	return func(o *clientConfig) {
		o.session.Instructions = &instruction
		o.sessionSet = true
	}
}

func WithVoice(voice string) Option {
	return func(o *clientConfig) {
		o.session.Voice = voice
		o.sessionSet = true
	}
}

func WithTemperature(temperature float64) Option {
	return func(o *clientConfig) {
		o.session.Temperature = &temperature
		o.sessionSet = true
	}
}

func WithSpeed(speed float64) Option {
	return func(o *clientConfig) {
		o.session.Speed = &speed
		o.sessionSet = true
	}
}

func WithTools(tools ...tool.Tool) Option {
	return func(o *clientConfig) {
		o.session.Tools = &tools
		o.sessionSet = true
	}
}

func WithOptions(opts ...Option) Option {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithURL(DefaultURL),
		WithModel(DefaultModel),
		WithDialTimeout(10*time.Second),
		WithKeepAlive(30*time.Second),
		WithQueueSizes(256, 256),
		WithHistorySize(32),
		WithAudioCacheSize(64),
		WithLatency(200),
		WithAutoBargeIn(true),
		WithAutoToolResponse(true),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}

func newConfig(opts []Option) *clientConfig {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)
	if config.logger == nil {
		config.logger = slog.New(slog.DiscardHandler)
	}
	return config
}

// initialSession returns the session update to send on connect, if any.
func (c *clientConfig) initialSession() (events.SessionUpdate, bool) {
	u := c.session
	set := c.sessionSet
	if c.tools != nil && u.Tools == nil {
		if tools := c.tools.Tools(); len(tools) > 0 {
			u.Tools = &tools
			set = true
		}
	}
	if set && u.Type == "" {
		u.Type = events.SessionTypeRealtime
	}
	return u, set
}
