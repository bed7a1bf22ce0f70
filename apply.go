package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/response"
)

// effects are follow-up actions of an applied event. They run outside the
// state lock.
type effects struct {
	bargeIn bool
	calls   []response.Call
}

// apply mutates the mirrored state for one server event. The caller holds
// c.mu.
func (c *Client) apply(evt events.ServerEvent) (fx effects) {
	switch e := evt.(type) {
	case *events.ErrorEvent:
		c.metrics.serverError(e.ErrorDetail.Type)
		if e.ErrorDetail.EventID != "" && c.responses.Rejected(e.ErrorDetail.EventID) {
			c.logger.Debug("response create rejected", slog.String("event_id", e.ErrorDetail.EventID))
		}
		c.logger.Warn("server error",
			slog.String("type", e.ErrorDetail.Type),
			slog.String("code", e.ErrorDetail.Code),
			slog.String("message", e.ErrorDetail.Message),
		)

	case *events.SessionCreatedEvent:
		c.applySession(e.Session)
	case *events.SessionUpdatedEvent:
		c.applySession(e.Session)

	case *events.ConversationItemAddedEvent:
		c.insertItem(e.Item, e.PreviousItemID)
	case *events.ConversationItemDoneEvent:
		c.insertItem(e.Item, e.PreviousItemID)
		c.ignoreMissing(c.conversation.MarkDone(e.Item.ID, e.Item))
	case *events.ConversationItemDeletedEvent:
		c.ignoreMissing(c.conversation.Delete(e.ItemID))
	case *events.ConversationItemRetrievedEvent:
		if err := c.conversation.StoreRetrieved(e.Item); err != nil {
			c.logger.Warn("failed to store retrieved item", slog.Any("err", err))
		}
	case *events.ConversationItemTruncatedEvent:
		c.ignoreMissing(c.conversation.Truncate(e.ItemID, e.ContentIndex, e.AudioEndMS))

	case *events.InputAudioTranscriptionDeltaEvent:
		c.ignoreMissing(c.conversation.ApplyTranscriptionDelta(e.ItemID, e.ContentIndex, e.Delta))
	case *events.InputAudioTranscriptionSegmentEvent:
		c.ignoreMissing(c.conversation.ApplyTranscriptionDelta(e.ItemID, e.ContentIndex, e.Text))
	case *events.InputAudioTranscriptionCompletedEvent:
		c.ignoreMissing(c.conversation.ApplyTranscriptionCompleted(e.ItemID, e.ContentIndex, e.Transcript))
	case *events.InputAudioTranscriptionFailedEvent:
		c.ignoreMissing(c.conversation.MarkTranscriptionFailed(e.ItemID, e.ContentIndex))

	case *events.InputAudioBufferCommittedEvent:
		c.audio.Committed(e.ItemID)
		c.placeholder(e.ItemID, e.PreviousItemID)
	case *events.InputAudioBufferClearedEvent:
		c.audio.Cleared()
	case *events.SpeechStartedEvent:
		interrupt := c.audio.SpeechStarted(e.AudioStartMS, c.session.TurnDetection())
		fx.bargeIn = interrupt && c.config.autoBargeIn && c.outputInFlight()
	case *events.SpeechStoppedEvent:
		c.audio.SpeechStopped(e.AudioEndMS)
	case *events.TimeoutTriggeredEvent:
		creates := c.audio.TimeoutTriggered(e.ItemID, e.AudioStartMS, e.AudioEndMS, c.session.TurnDetection())
		c.placeholder(e.ItemID, nil)
		c.logger.Debug("idle timeout committed input",
			slog.String("item_id", e.ItemID),
			slog.Bool("creates_response", creates),
		)
	case *events.DTMFEventReceivedEvent:
		c.audio.DTMF(e.Event)

	case *events.OutputAudioBufferStartedEvent:
		c.audio.OutputStarted(e.ResponseID)
	case *events.OutputAudioBufferStoppedEvent:
		c.audio.OutputStopped(e.ResponseID)
	case *events.OutputAudioBufferClearedEvent:
		c.audio.OutputCleared(e.ResponseID)
		if c.player != nil {
			c.player.Reset()
		}

	case *events.ResponseCreatedEvent:
		c.responses.Created(e.Response)
		c.metrics.setActiveResponses(len(c.responses.Active()))
	case *events.ResponseDoneEvent:
		snap, calls := c.responses.Done(e.Response)
		c.audio.ForgetOutput(snap.ID)
		if c.muted == snap.ID {
			c.muted = ""
		}
		c.metrics.responseDone(string(snap.Status))
		c.metrics.setActiveResponses(len(c.responses.Active()))
		if c.config.tools != nil {
			fx.calls = calls
		}
	case *events.ResponseOutputItemAddedEvent:
		c.responses.OutputItemAdded(e.ResponseID, e.OutputIndex, e.Item)
	case *events.ResponseOutputItemDoneEvent:
		c.responses.OutputItemDone(e.ResponseID, e.OutputIndex, e.Item)
	case *events.ResponseContentPartAddedEvent:
		c.responses.ContentPartAdded(e.ContentRef, e.Part)
		c.conversationPart(e.ContentRef, e.Part)
	case *events.ResponseContentPartDoneEvent:
		c.responses.ContentPartDone(e.ContentRef, e.Part)
		c.conversationPart(e.ContentRef, e.Part)
	case *events.ResponseTextDeltaEvent:
		c.responses.TextDelta(e.ContentRef, e.Delta)
		c.conversationDelta(e.ContentRef, conversation.Delta{Text: e.Delta})
	case *events.ResponseTextDoneEvent:
		c.responses.TextDone(e.ContentRef, e.Text)
	case *events.ResponseAudioDeltaEvent:
		c.applyAudioDelta(e)
	case *events.ResponseAudioDoneEvent:
		c.responses.AudioDone(e.ContentRef)
	case *events.ResponseAudioTranscriptDeltaEvent:
		c.responses.TranscriptDelta(e.ContentRef, e.Delta)
		c.conversationDelta(e.ContentRef, conversation.Delta{Transcript: e.Delta})
	case *events.ResponseAudioTranscriptDoneEvent:
		c.responses.TranscriptDone(e.ContentRef, e.Transcript)
	case *events.ResponseFunctionCallArgumentsDeltaEvent:
		c.responses.FunctionCallArgumentsDelta(e.OutputRef, e.CallID, e.Delta)
	case *events.ResponseFunctionCallArgumentsDoneEvent:
		c.responses.FunctionCallArgumentsDone(e.OutputRef, e.CallID, e.Name, e.Arguments)
	case *events.ResponseMCPCallArgumentsDeltaEvent:
		c.responses.MCPArgumentsDelta(e.OutputRef, e.Delta)
	case *events.ResponseMCPCallArgumentsDoneEvent:
		c.responses.MCPArgumentsDone(e.OutputRef, e.Arguments)

	case *events.ResponseMCPCallInProgressEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusInProgress))
	case *events.ResponseMCPCallCompletedEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusCompleted))
	case *events.ResponseMCPCallFailedEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusIncomplete))
	case *events.MCPListToolsInProgressEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusInProgress))
	case *events.MCPListToolsCompletedEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusCompleted))
	case *events.MCPListToolsFailedEvent:
		c.ignoreMissing(c.conversation.SetStatus(e.ItemID, events.ItemStatusIncomplete))

	case *events.RateLimitsUpdatedEvent:
		c.responses.SetRateLimits(e.RateLimits)
	}
	return fx
}

func (c *Client) applySession(s events.Session) {
	c.session.ApplySnapshot(s)
	c.conversation.SetAudioFormat(c.session.OutputFormat())
	c.audio.SetInputFormat(c.session.InputFormat())
}

// insertItem places a server item. A previous item the mirror never saw
// falls back to appending.
func (c *Client) insertItem(item events.Item, previousID *string) {
	err := c.conversation.Insert(item, previousID)
	if errors.Is(err, conversation.ErrItemNotFound) {
		c.logger.Debug("unknown previous item, appending", slog.String("item_id", item.ID))
		err = c.conversation.Insert(item, nil)
	}
	if err != nil {
		c.logger.Warn("failed to insert item", slog.String("item_id", item.ID), slog.Any("err", err))
	}
}

// placeholder records the user audio item created by a commit until the
// server sends the item itself.
func (c *Client) placeholder(itemID string, previousID *string) {
	if itemID == "" || c.conversation.Contains(itemID) {
		return
	}
	c.insertItem(events.Item{
		ID:      itemID,
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Status:  events.ItemStatusCompleted,
		Content: []events.ContentPart{{Type: events.ContentTypeInputAudio}},
	}, previousID)
}

// conversationPart mirrors a response content part into the conversation.
// Out-of-band responses have no conversation item and are skipped.
func (c *Client) conversationPart(ref events.ContentRef, part events.ContentPart) {
	if !c.conversation.Contains(ref.ItemID) {
		return
	}
	if err := c.conversation.AddPart(ref.ItemID, ref.ContentIndex, part); err != nil {
		c.logger.Warn("failed to add content part", slog.String("item_id", ref.ItemID), slog.Any("err", err))
	}
}

func (c *Client) conversationDelta(ref events.ContentRef, d conversation.Delta) {
	if !c.conversation.Contains(ref.ItemID) {
		return
	}
	if err := c.conversation.ApplyContentDelta(ref.ItemID, ref.ContentIndex, d); err != nil {
		c.logger.Warn("failed to apply content delta", slog.String("item_id", ref.ItemID), slog.Any("err", err))
	}
}

func (c *Client) applyAudioDelta(e *events.ResponseAudioDeltaEvent) {
	c.session.MarkAudioEmitted()
	data, err := c.responses.AudioDelta(e.ContentRef, e.Delta)
	if err != nil {
		c.logger.Warn("invalid audio delta", slog.String("response_id", e.ResponseID), slog.Any("err", err))
		return
	}
	c.metrics.outputAudio(len(data))
	c.conversationDelta(e.ContentRef, conversation.Delta{Audio: e.Delta})

	if c.player == nil || e.ResponseID == c.muted {
		return
	}
	if _, err := c.player.Write(e.ItemID, e.ContentIndex, data); err != nil {
		c.logger.Warn("dropping output audio", slog.String("item_id", e.ItemID), slog.Any("err", err))
	}
}

// outputInFlight reports whether there is model output a barge-in could
// interrupt.
func (c *Client) outputInFlight() bool {
	if c.responses.DefaultInFlight() != "" || c.audio.Playing() != "" {
		return true
	}
	return c.player != nil && c.player.Buffered() > 0
}

// ignoreMissing logs state errors caused by events for items the mirror does
// not hold.
func (c *Client) ignoreMissing(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, conversation.ErrItemNotFound) {
		c.logger.Debug("event for unknown item", slog.Any("err", err))
		return
	}
	c.logger.Warn("failed to apply event", slog.Any("err", err))
}

func (c *Client) runEffects(ctx context.Context, fx effects) {
	if fx.bargeIn {
		c.group.Go(func() error {
			if err := c.BargeIn(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("barge-in failed", slog.Any("err", err))
			}
			return nil
		})
	}
	if len(fx.calls) > 0 {
		calls := fx.calls
		c.group.Go(func() error {
			c.dispatchTools(ctx, calls)
			return nil
		})
	}
}
