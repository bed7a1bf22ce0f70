package realtime

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/session"
)

// Sender issues intents. Every intent is validated against the mirrored
// state first; a rejected intent never reaches the wire. Intents are queued
// in call order and return once queued.
type Sender struct {
	c *Client
}

// Send validates and queues any client event. It returns the event id the
// server echoes on errors about the event.
func (s *Sender) Send(ctx context.Context, evt events.ClientEvent) (string, error) {
	return s.c.send(ctx, evt)
}

func (c *Client) closedErr() error {
	err := c.Err()
	if err == nil || errors.Is(err, ErrConnectionClosed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}

func (c *Client) send(ctx context.Context, evt events.ClientEvent) (string, error) {
	if err := c.closedErr(); err != nil {
		return "", err
	}
	typ := evt.ClientEventType()
	data, err := events.Encode(evt)
	if err != nil {
		return "", err
	}
	eventID := evt.GetEventID()
	if eventID == "" {
		eventID = events.EventID(data)
	}
	if err := c.enqueue(ctx, evt, outbound{data: data, typ: typ}, eventID); err != nil {
		return "", err
	}
	return eventID, nil
}

// enqueue reserves a queue slot, validates the intent and queues it. The
// state owners are not touched once the connection ended.
func (c *Client) enqueue(ctx context.Context, evt events.ClientEvent, msg outbound, eventID string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.closedErr()
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		<-c.slots
		return c.closedErr()
	}
	err := c.prepare(evt, eventID)
	c.mu.Unlock()
	if err != nil {
		<-c.slots
		c.metrics.validationFailed(string(msg.typ))
		c.logger.Debug("intent rejected", slog.String("type", string(msg.typ)), slog.Any("err", err))
		return fmt.Errorf("%s: %w", msg.typ, err)
	}

	c.out <- msg
	return nil
}

// prepare validates an intent and applies its local accounting. The caller
// holds c.mu.
func (c *Client) prepare(evt events.ClientEvent, eventID string) error {
	switch e := evt.(type) {
	case *events.SessionUpdateEvent:
		return c.prepare(*e, eventID)
	case *events.InputAudioBufferAppendEvent:
		return c.prepare(*e, eventID)
	case *events.InputAudioBufferCommitEvent:
		return c.prepare(*e, eventID)
	case *events.InputAudioBufferClearEvent:
		return c.prepare(*e, eventID)
	case *events.ConversationItemCreateEvent:
		return c.prepare(*e, eventID)
	case *events.ConversationItemRetrieveEvent:
		return c.prepare(*e, eventID)
	case *events.ConversationItemTruncateEvent:
		return c.prepare(*e, eventID)
	case *events.ConversationItemDeleteEvent:
		return c.prepare(*e, eventID)
	case *events.ResponseCreateEvent:
		return c.prepare(*e, eventID)

	case events.SessionUpdateEvent:
		return c.session.ValidateUpdate(e.Session)
	case events.InputAudioBufferAppendEvent:
		n, err := c.audio.Append(e.Audio)
		if err != nil {
			return err
		}
		c.metrics.inputAudio(n)
	case events.InputAudioBufferCommitEvent:
		return c.audio.Commit()
	case events.InputAudioBufferClearEvent:
		c.audio.Clear()
	case events.ConversationItemCreateEvent:
		return c.validateItem(e.Item, e.PreviousItemID)
	case events.ConversationItemRetrieveEvent:
		return c.requireItem(e.ItemID)
	case events.ConversationItemDeleteEvent:
		return c.requireItem(e.ItemID)
	case events.ConversationItemTruncateEvent:
		return c.validateTruncate(e.ItemID, e.ContentIndex, e.AudioEndMS)
	case events.ResponseCreateEvent:
		return c.validateResponse(e.Response, eventID)
	}
	return nil
}

func (c *Client) requireItem(id string) error {
	if !c.conversation.Contains(id) {
		return fmt.Errorf("%w: %s", conversation.ErrItemNotFound, id)
	}
	return nil
}

func (c *Client) validateItem(item events.Item, previousID string) error {
	if err := c.conversation.ValidatePrevious(previousID); err != nil {
		return err
	}
	if item.ID != "" && c.conversation.Contains(item.ID) {
		return fmt.Errorf("%w: duplicate id %s", conversation.ErrInvalidItem, item.ID)
	}
	switch item.Type {
	case events.ItemTypeMessage:
		if item.Role == "" {
			return fmt.Errorf("%w: message without role", conversation.ErrInvalidItem)
		}
	case events.ItemTypeFunctionCallOutput:
		if item.CallID == "" {
			return fmt.Errorf("%w: function call output without call id", conversation.ErrInvalidItem)
		}
	case events.ItemTypeMCPApprovalResponse:
		if item.ApprovalRequestID == "" {
			return fmt.Errorf("%w: approval response without request id", conversation.ErrInvalidItem)
		}
	case "":
		return fmt.Errorf("%w: missing type", conversation.ErrInvalidItem)
	}
	return nil
}

func (c *Client) validateTruncate(itemID string, contentIndex, audioEndMS int) error {
	if audioEndMS < 0 {
		return fmt.Errorf("%w: negative audio end %d", conversation.ErrNotTruncatable, audioEndMS)
	}
	if err := c.conversation.CheckTruncatable(itemID, contentIndex); err != nil {
		return err
	}
	it, err := c.conversation.Retrieve(itemID)
	if err != nil {
		return err
	}
	if contentIndex < len(it.Parts) && it.Parts[contentIndex].AudioBytes > 0 {
		if total := it.AudioMS(contentIndex, c.session.OutputFormat()); audioEndMS > total {
			return fmt.Errorf("%w: audio end %dms exceeds %dms of audio", conversation.ErrNotTruncatable, audioEndMS, total)
		}
	}
	return nil
}

func (c *Client) validateResponse(p *events.ResponseCreatePayload, eventID string) error {
	var mode events.ConversationMode
	if p != nil {
		mode = p.Conversation
		if p.OutputModalities != nil {
			if err := session.ValidateModalities(p.OutputModalities); err != nil {
				return err
			}
		}
		if p.OutputAudioFormat != nil {
			if err := p.OutputAudioFormat.Validate(); err != nil {
				return err
			}
		}
		for _, it := range p.Input {
			if it.Type == "item_reference" {
				if err := c.requireItem(it.ID); err != nil {
					return err
				}
			}
		}
	}
	if err := c.responses.ValidateCreate(mode); err != nil {
		return err
	}
	c.responses.Pending(eventID, mode)
	return nil
}

// UpdateSession requests a partial session update. The mirror only changes
// once the server confirms with session.updated.
func (s *Sender) UpdateSession(ctx context.Context, u events.SessionUpdate) error {
	_, err := s.c.send(ctx, events.SessionUpdateEvent{BaseEvent: events.NewBaseEvent(), Session: u})
	return err
}

// AppendAudio appends base64 encoded audio to the input buffer.
func (s *Sender) AppendAudio(ctx context.Context, b64 string) error {
	_, err := s.c.send(ctx, events.InputAudioBufferAppendEvent{BaseEvent: events.NewBaseEvent(), Audio: b64})
	return err
}

// AppendPCM appends raw audio in the session input format.
func (s *Sender) AppendPCM(ctx context.Context, pcm []byte) error {
	if len(pcm) > audio.MaxChunkBytes {
		return fmt.Errorf("%w: %d bytes", audio.ErrChunkTooLarge, len(pcm))
	}
	return s.AppendAudio(ctx, base64.StdEncoding.EncodeToString(pcm))
}

// AppendPCM16 appends little-endian 16-bit samples.
func (s *Sender) AppendPCM16(ctx context.Context, samples []int16) error {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return s.AppendPCM(ctx, pcm)
}

// StreamAudio appends audio read from r in chunks of the configured latency
// until r is exhausted or ctx is done.
func (s *Sender) StreamAudio(ctx context.Context, r io.Reader) error {
	s.c.mu.Lock()
	format := s.c.session.InputFormat()
	s.c.mu.Unlock()

	size := max(int(s.c.config.latency().Milliseconds())*format.BytesPerMS(), format.BytesPerMS())
	chunks := audio.NewChunkReader(r, size)
	buf := make([]byte, chunks.ChunkLen())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := chunks.Read(buf)
		if n > 0 {
			if aerr := s.AppendPCM(ctx, buf[:n]); aerr != nil {
				return aerr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// CommitAudio commits the input buffer as a user item. It fails with
// ErrEmptyBuffer if nothing was appended since the last commit or clear.
func (s *Sender) CommitAudio(ctx context.Context) error {
	_, err := s.c.send(ctx, events.InputAudioBufferCommitEvent{BaseEvent: events.NewBaseEvent()})
	return err
}

func (s *Sender) ClearAudio(ctx context.Context) error {
	_, err := s.c.send(ctx, events.InputAudioBufferClearEvent{BaseEvent: events.NewBaseEvent()})
	return err
}

// CreateItem inserts an item after previousID, or at the end if previousID
// is empty. An item without id is assigned one, which is returned.
func (s *Sender) CreateItem(ctx context.Context, item events.Item, previousID string) (string, error) {
	if item.ID == "" {
		item.ID = events.NewID("item_")
	}
	_, err := s.c.send(ctx, events.ConversationItemCreateEvent{
		BaseEvent:      events.NewBaseEvent(),
		PreviousItemID: previousID,
		Item:           item,
	})
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// Say appends a user text message.
func (s *Sender) Say(ctx context.Context, text string) (string, error) {
	return s.CreateItem(ctx, events.NewUserText(text), "")
}

// SendFunctionOutput appends the output of a function call.
func (s *Sender) SendFunctionOutput(ctx context.Context, callID, output string) error {
	_, err := s.CreateItem(ctx, events.NewFunctionCallOutput(callID, output), "")
	return err
}

// ApproveMCP allows the MCP tool call awaiting approvalRequestID.
func (s *Sender) ApproveMCP(ctx context.Context, approvalRequestID string) error {
	_, err := s.CreateItem(ctx, events.NewMCPApprovalResponse(approvalRequestID, true, ""), "")
	return err
}

// DenyMCP rejects the MCP tool call awaiting approvalRequestID.
func (s *Sender) DenyMCP(ctx context.Context, approvalRequestID, reason string) error {
	_, err := s.CreateItem(ctx, events.NewMCPApprovalResponse(approvalRequestID, false, reason), "")
	return err
}

// RetrieveItem requests the full representation of an item, including its
// audio.
func (s *Sender) RetrieveItem(ctx context.Context, itemID string) error {
	_, err := s.c.send(ctx, events.ConversationItemRetrieveEvent{BaseEvent: events.NewBaseEvent(), ItemID: itemID})
	return err
}

// TruncateItem cuts assistant audio at audioEndMS and drops its transcript.
func (s *Sender) TruncateItem(ctx context.Context, itemID string, contentIndex, audioEndMS int) error {
	_, err := s.c.send(ctx, events.ConversationItemTruncateEvent{
		BaseEvent:    events.NewBaseEvent(),
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMS:   audioEndMS,
	})
	return err
}

func (s *Sender) DeleteItem(ctx context.Context, itemID string) error {
	_, err := s.c.send(ctx, events.ConversationItemDeleteEvent{BaseEvent: events.NewBaseEvent(), ItemID: itemID})
	return err
}

// CreateResponse requests a response. A nil payload uses the session
// configuration. Only one response may target the default conversation at a
// time; out-of-band responses are unrestricted. The returned event id
// correlates a server rejection.
func (s *Sender) CreateResponse(ctx context.Context, p *events.ResponseCreatePayload) (string, error) {
	return s.c.send(ctx, events.ResponseCreateEvent{BaseEvent: events.NewBaseEvent(), Response: p})
}

// Respond requests a default response.
func (s *Sender) Respond(ctx context.Context) error {
	_, err := s.CreateResponse(ctx, nil)
	return err
}

// CancelResponse cancels a response, or the in-flight default response if
// responseID is empty. Cancelling with nothing in flight is harmless.
func (s *Sender) CancelResponse(ctx context.Context, responseID string) error {
	_, err := s.c.send(ctx, events.ResponseCancelEvent{BaseEvent: events.NewBaseEvent(), ResponseID: responseID})
	return err
}

// ClearOutputAudio drops output audio the server has not played yet.
func (s *Sender) ClearOutputAudio(ctx context.Context) error {
	_, err := s.c.send(ctx, events.OutputAudioBufferClearEvent{BaseEvent: events.NewBaseEvent()})
	return err
}

// BargeIn interrupts the assistant: it cancels the in-flight response,
// clears output audio and, with playback enabled, truncates the assistant
// item at the position the listener actually heard.
func (s *Sender) BargeIn(ctx context.Context) error {
	c := s.c
	if err := c.closedErr(); err != nil {
		return err
	}

	c.mu.Lock()
	responseID := c.responses.DefaultInFlight()
	if responseID == "" {
		responseID = c.audio.Playing()
	}
	var pos audio.Position
	var played bool
	if c.player != nil {
		pos, played = c.player.Reset()
		c.muted = responseID
	}
	truncate := played && c.conversation.CheckTruncatable(pos.ItemID, pos.ContentIndex) == nil
	c.mu.Unlock()

	if err := s.CancelResponse(ctx, responseID); err != nil {
		return err
	}
	if err := s.ClearOutputAudio(ctx); err != nil {
		return err
	}
	if truncate {
		if err := s.TruncateItem(ctx, pos.ItemID, pos.ContentIndex, pos.PlayedMS); err != nil {
			return err
		}
	}
	c.logger.Debug("barge-in",
		slog.String("response_id", responseID),
		slog.String("item_id", pos.ItemID),
		slog.Int("played_ms", pos.PlayedMS),
	)
	return nil
}

// Close ends the shared connection.
func (s *Sender) Close() error {
	return s.c.Close()
}
