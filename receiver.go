package realtime

import (
	"context"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/response"
)

// Receiver consumes server events and reads the mirrored state. Events are
// delivered after they were applied, so state read while handling an event
// already reflects it.
type Receiver struct {
	c *Client
}

// Events returns the event stream. It is closed when the connection ends.
func (r *Receiver) Events() <-chan events.ServerEvent {
	return r.c.events
}

// Recv returns the next event. Once the connection ended and all events were
// consumed it returns ErrConnectionClosed.
func (r *Receiver) Recv(ctx context.Context) (events.ServerEvent, error) {
	select {
	case evt, ok := <-r.c.events:
		if !ok {
			return nil, r.c.closedErr()
		}
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Receiver) Done() <-chan struct{} { return r.c.Done() }

func (r *Receiver) Err() error { return r.c.Err() }

// Session returns the last confirmed session and whether one was received.
func (r *Receiver) Session() (events.Session, bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.session.Snapshot()
}

// Items returns the conversation in order.
func (r *Receiver) Items() []conversation.Item {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.conversation.Items()
}

func (r *Receiver) Item(id string) (conversation.Item, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.conversation.Retrieve(id)
}

// ItemAudio returns audio fetched with RetrieveItem.
func (r *Receiver) ItemAudio(id string, contentIndex int) ([]byte, bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.conversation.Audio(id, contentIndex)
}

// Response returns an in-flight or recently finished response.
func (r *Receiver) Response(id string) (response.Response, bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.responses.Get(id)
}

// ActiveResponses returns the ids of all in-flight responses.
func (r *Receiver) ActiveResponses() []string {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.responses.Active()
}

// DefaultResponse returns the in-flight response targeting the default
// conversation, or "".
func (r *Receiver) DefaultResponse() string {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.responses.DefaultInFlight()
}

func (r *Receiver) RateLimits() response.RateLimits {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.responses.RateLimits()
}

func (r *Receiver) AudioState() audio.BufferState {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.audio.State()
}

func (r *Receiver) OutputState(responseID string) (audio.OutputState, bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.audio.Output(responseID)
}

// Player returns the output audio player, or nil if playback is disabled.
func (r *Receiver) Player() *audio.Player {
	return r.c.player
}

// Close ends the shared connection.
func (r *Receiver) Close() error {
	return r.c.Close()
}
