package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const transcriptionPrefix = "conversation.item.input_audio_transcription."

// Encode serializes a client intent, writing its type tag and assigning an
// event id if the intent does not carry one.
func Encode(evt ClientEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.ClientEventType(), err)
	}
	if data, err = sjson.SetBytes(data, "type", string(evt.ClientEventType())); err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.ClientEventType(), err)
	}
	if evt.GetEventID() == "" {
		if data, err = sjson.SetBytes(data, "event_id", NewID("evt_")); err != nil {
			return nil, fmt.Errorf("encode %s: %w", evt.ClientEventType(), err)
		}
	}
	return data, nil
}

// EncodeServer serializes a server event. It is used by fake servers in tests.
func EncodeServer(evt ServerEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.ServerEventType(), err)
	}
	return sjson.SetBytes(data, "type", string(evt.ServerEventType()))
}

// EventType returns the type tag of a raw message.
func EventType(data []byte) string {
	return gjson.GetBytes(data, "type").String()
}

// EventID returns the event id of a raw message.
func EventID(data []byte) string {
	return gjson.GetBytes(data, "event_id").String()
}

func normalizeServerType(tag string) ServerEventType {
	if strings.HasPrefix(tag, "input_audio_transcription.") {
		return ServerEventType("conversation.item." + tag)
	}
	return ServerEventType(tag)
}

func decodeAs[T any, PT interface {
	*T
	ServerEvent
}](data []byte) (ServerEvent, error) {
	v, err := Parse[T](data)
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

// DecodeServer parses a server message into its concrete event type. Unknown
// tags fail with ErrUnknownEventType, which callers may treat as skippable.
// A known tag with an undecodable payload fails with ErrMalformedEvent.
func DecodeServer(data []byte) (ServerEvent, error) {
	tag := gjson.GetBytes(data, "type")
	if !tag.Exists() || tag.String() == "" {
		return nil, ErrMissingEventType
	}

	var (
		evt ServerEvent
		err error
	)
	switch t := normalizeServerType(tag.String()); t {
	case ServerEventTypeError:
		evt, err = decodeAs[ErrorEvent](data)
	case ServerEventTypeSessionCreated:
		evt, err = decodeAs[SessionCreatedEvent](data)
	case ServerEventTypeSessionUpdated:
		evt, err = decodeAs[SessionUpdatedEvent](data)
	case ServerEventTypeConversationItemAdded:
		evt, err = decodeAs[ConversationItemAddedEvent](data)
	case ServerEventTypeConversationItemDone:
		evt, err = decodeAs[ConversationItemDoneEvent](data)
	case ServerEventTypeConversationItemDeleted:
		evt, err = decodeAs[ConversationItemDeletedEvent](data)
	case ServerEventTypeConversationItemRetrieved:
		evt, err = decodeAs[ConversationItemRetrievedEvent](data)
	case ServerEventTypeConversationItemTruncated:
		evt, err = decodeAs[ConversationItemTruncatedEvent](data)
	case ServerEventTypeInputAudioTranscriptionDelta:
		evt, err = decodeAs[InputAudioTranscriptionDeltaEvent](data)
	case ServerEventTypeInputAudioTranscriptionSegment:
		evt, err = decodeAs[InputAudioTranscriptionSegmentEvent](data)
	case ServerEventTypeInputAudioTranscriptionCompleted:
		evt, err = decodeAs[InputAudioTranscriptionCompletedEvent](data)
	case ServerEventTypeInputAudioTranscriptionFailed:
		evt, err = decodeAs[InputAudioTranscriptionFailedEvent](data)
	case ServerEventTypeInputAudioBufferCommitted:
		evt, err = decodeAs[InputAudioBufferCommittedEvent](data)
	case ServerEventTypeInputAudioBufferCleared:
		evt, err = decodeAs[InputAudioBufferClearedEvent](data)
	case ServerEventTypeInputAudioBufferSpeechStarted:
		evt, err = decodeAs[SpeechStartedEvent](data)
	case ServerEventTypeInputAudioBufferSpeechStopped:
		evt, err = decodeAs[SpeechStoppedEvent](data)
	case ServerEventTypeInputAudioBufferTimeoutTriggered:
		evt, err = decodeAs[TimeoutTriggeredEvent](data)
	case ServerEventTypeInputAudioBufferDTMFEventReceived:
		evt, err = decodeAs[DTMFEventReceivedEvent](data)
	case ServerEventTypeOutputAudioBufferStarted:
		evt, err = decodeAs[OutputAudioBufferStartedEvent](data)
	case ServerEventTypeOutputAudioBufferStopped:
		evt, err = decodeAs[OutputAudioBufferStoppedEvent](data)
	case ServerEventTypeOutputAudioBufferCleared:
		evt, err = decodeAs[OutputAudioBufferClearedEvent](data)
	case ServerEventTypeResponseCreated:
		evt, err = decodeAs[ResponseCreatedEvent](data)
	case ServerEventTypeResponseDone:
		evt, err = decodeAs[ResponseDoneEvent](data)
	case ServerEventTypeResponseOutputItemAdded:
		evt, err = decodeAs[ResponseOutputItemAddedEvent](data)
	case ServerEventTypeResponseOutputItemDone:
		evt, err = decodeAs[ResponseOutputItemDoneEvent](data)
	case ServerEventTypeResponseContentPartAdded:
		evt, err = decodeAs[ResponseContentPartAddedEvent](data)
	case ServerEventTypeResponseContentPartDone:
		evt, err = decodeAs[ResponseContentPartDoneEvent](data)
	case ServerEventTypeResponseOutputTextDelta:
		evt, err = decodeAs[ResponseTextDeltaEvent](data)
	case ServerEventTypeResponseOutputTextDone:
		evt, err = decodeAs[ResponseTextDoneEvent](data)
	case ServerEventTypeResponseOutputAudioDelta:
		evt, err = decodeAs[ResponseAudioDeltaEvent](data)
	case ServerEventTypeResponseOutputAudioDone:
		evt, err = decodeAs[ResponseAudioDoneEvent](data)
	case ServerEventTypeResponseOutputAudioTranscriptDelta:
		evt, err = decodeAs[ResponseAudioTranscriptDeltaEvent](data)
	case ServerEventTypeResponseOutputAudioTranscriptDone:
		evt, err = decodeAs[ResponseAudioTranscriptDoneEvent](data)
	case ServerEventTypeResponseFunctionCallArgumentsDelta:
		evt, err = decodeAs[ResponseFunctionCallArgumentsDeltaEvent](data)
	case ServerEventTypeResponseFunctionCallArgumentsDone:
		evt, err = decodeAs[ResponseFunctionCallArgumentsDoneEvent](data)
	case ServerEventTypeResponseMCPCallArgumentsDelta:
		evt, err = decodeAs[ResponseMCPCallArgumentsDeltaEvent](data)
	case ServerEventTypeResponseMCPCallArgumentsDone:
		evt, err = decodeAs[ResponseMCPCallArgumentsDoneEvent](data)
	case ServerEventTypeResponseMCPCallInProgress:
		evt, err = decodeAs[ResponseMCPCallInProgressEvent](data)
	case ServerEventTypeResponseMCPCallCompleted:
		evt, err = decodeAs[ResponseMCPCallCompletedEvent](data)
	case ServerEventTypeResponseMCPCallFailed:
		evt, err = decodeAs[ResponseMCPCallFailedEvent](data)
	case ServerEventTypeMCPListToolsInProgress:
		evt, err = decodeAs[MCPListToolsInProgressEvent](data)
	case ServerEventTypeMCPListToolsCompleted:
		evt, err = decodeAs[MCPListToolsCompletedEvent](data)
	case ServerEventTypeMCPListToolsFailed:
		evt, err = decodeAs[MCPListToolsFailedEvent](data)
	case ServerEventTypeRateLimitsUpdated:
		evt, err = decodeAs[RateLimitsUpdatedEvent](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, tag.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrMalformedEvent, tag.String(), err)
	}
	return evt, nil
}

func decodeClientAs[T any, PT interface {
	*T
	ClientEvent
}](data []byte) (ClientEvent, error) {
	v, err := Parse[T](data)
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

// DecodeClient parses a client intent. It is the inverse of Encode and is
// used by fake servers in tests.
func DecodeClient(data []byte) (ClientEvent, error) {
	tag := gjson.GetBytes(data, "type")
	if !tag.Exists() || tag.String() == "" {
		return nil, ErrMissingEventType
	}

	var (
		evt ClientEvent
		err error
	)
	switch ClientEventType(tag.String()) {
	case ClientEventTypeSessionUpdate:
		evt, err = decodeClientAs[SessionUpdateEvent](data)
	case ClientEventTypeInputAudioBufferAppend:
		evt, err = decodeClientAs[InputAudioBufferAppendEvent](data)
	case ClientEventTypeInputAudioBufferCommit:
		evt, err = decodeClientAs[InputAudioBufferCommitEvent](data)
	case ClientEventTypeInputAudioBufferClear:
		evt, err = decodeClientAs[InputAudioBufferClearEvent](data)
	case ClientEventTypeConversationItemCreate:
		evt, err = decodeClientAs[ConversationItemCreateEvent](data)
	case ClientEventTypeConversationItemRetrieve:
		evt, err = decodeClientAs[ConversationItemRetrieveEvent](data)
	case ClientEventTypeConversationItemTruncate:
		evt, err = decodeClientAs[ConversationItemTruncateEvent](data)
	case ClientEventTypeConversationItemDelete:
		evt, err = decodeClientAs[ConversationItemDeleteEvent](data)
	case ClientEventTypeResponseCreate:
		evt, err = decodeClientAs[ResponseCreateEvent](data)
	case ClientEventTypeResponseCancel:
		evt, err = decodeClientAs[ResponseCancelEvent](data)
	case ClientEventTypeOutputAudioBufferClear:
		evt, err = decodeClientAs[OutputAudioBufferClearEvent](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, tag.String())
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag.String(), err)
	}
	return evt, nil
}
