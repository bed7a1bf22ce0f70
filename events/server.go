package events

type ServerEventType string

const (
	ServerEventTypeError                              ServerEventType = "error"
	ServerEventTypeSessionCreated                     ServerEventType = "session.created"
	ServerEventTypeSessionUpdated                     ServerEventType = "session.updated"
	ServerEventTypeConversationItemAdded              ServerEventType = "conversation.item.added"
	ServerEventTypeConversationItemDone               ServerEventType = "conversation.item.done"
	ServerEventTypeConversationItemDeleted            ServerEventType = "conversation.item.deleted"
	ServerEventTypeConversationItemRetrieved          ServerEventType = "conversation.item.retrieved"
	ServerEventTypeConversationItemTruncated          ServerEventType = "conversation.item.truncated"
	ServerEventTypeInputAudioTranscriptionDelta       ServerEventType = "conversation.item.input_audio_transcription.delta"
	ServerEventTypeInputAudioTranscriptionSegment     ServerEventType = "conversation.item.input_audio_transcription.segment"
	ServerEventTypeInputAudioTranscriptionCompleted   ServerEventType = "conversation.item.input_audio_transcription.completed"
	ServerEventTypeInputAudioTranscriptionFailed      ServerEventType = "conversation.item.input_audio_transcription.failed"
	ServerEventTypeInputAudioBufferCommitted          ServerEventType = "input_audio_buffer.committed"
	ServerEventTypeInputAudioBufferCleared            ServerEventType = "input_audio_buffer.cleared"
	ServerEventTypeInputAudioBufferSpeechStarted      ServerEventType = "input_audio_buffer.speech_started"
	ServerEventTypeInputAudioBufferSpeechStopped      ServerEventType = "input_audio_buffer.speech_stopped"
	ServerEventTypeInputAudioBufferTimeoutTriggered   ServerEventType = "input_audio_buffer.timeout_triggered"
	ServerEventTypeInputAudioBufferDTMFEventReceived  ServerEventType = "input_audio_buffer.dtmf_event_received"
	ServerEventTypeOutputAudioBufferStarted           ServerEventType = "output_audio_buffer.started"
	ServerEventTypeOutputAudioBufferStopped           ServerEventType = "output_audio_buffer.stopped"
	ServerEventTypeOutputAudioBufferCleared           ServerEventType = "output_audio_buffer.cleared"
	ServerEventTypeResponseCreated                    ServerEventType = "response.created"
	ServerEventTypeResponseDone                       ServerEventType = "response.done"
	ServerEventTypeResponseOutputItemAdded            ServerEventType = "response.output_item.added"
	ServerEventTypeResponseOutputItemDone             ServerEventType = "response.output_item.done"
	ServerEventTypeResponseContentPartAdded           ServerEventType = "response.content_part.added"
	ServerEventTypeResponseContentPartDone            ServerEventType = "response.content_part.done"
	ServerEventTypeResponseOutputTextDelta            ServerEventType = "response.output_text.delta"
	ServerEventTypeResponseOutputTextDone             ServerEventType = "response.output_text.done"
	ServerEventTypeResponseOutputAudioDelta           ServerEventType = "response.output_audio.delta"
	ServerEventTypeResponseOutputAudioDone            ServerEventType = "response.output_audio.done"
	ServerEventTypeResponseOutputAudioTranscriptDelta ServerEventType = "response.output_audio_transcript.delta"
	ServerEventTypeResponseOutputAudioTranscriptDone  ServerEventType = "response.output_audio_transcript.done"
	ServerEventTypeResponseFunctionCallArgumentsDelta ServerEventType = "response.function_call_arguments.delta"
	ServerEventTypeResponseFunctionCallArgumentsDone  ServerEventType = "response.function_call_arguments.done"
	ServerEventTypeResponseMCPCallArgumentsDelta      ServerEventType = "response.mcp_call_arguments.delta"
	ServerEventTypeResponseMCPCallArgumentsDone       ServerEventType = "response.mcp_call_arguments.done"
	ServerEventTypeResponseMCPCallInProgress          ServerEventType = "response.mcp_call.in_progress"
	ServerEventTypeResponseMCPCallCompleted           ServerEventType = "response.mcp_call.completed"
	ServerEventTypeResponseMCPCallFailed              ServerEventType = "response.mcp_call.failed"
	ServerEventTypeMCPListToolsInProgress             ServerEventType = "mcp_list_tools.in_progress"
	ServerEventTypeMCPListToolsCompleted              ServerEventType = "mcp_list_tools.completed"
	ServerEventTypeMCPListToolsFailed                 ServerEventType = "mcp_list_tools.failed"
	ServerEventTypeRateLimitsUpdated                  ServerEventType = "rate_limits.updated"
)

// ServerEvent is an event received from the server. Decoded events are
// always pointers, e.g. *ResponseDoneEvent.
type ServerEvent interface {
	ServerEventType() ServerEventType
	GetEventID() string
}

// ServerEventTypeDecodeError is never sent by the server. It tags
// DecodeErrorEvent.
const ServerEventTypeDecodeError ServerEventType = "client.decode_error"

// DecodeErrorEvent stands in for a message with a known type whose payload
// could not be decoded.
type DecodeErrorEvent struct {
	Type    ServerEventType
	EventID string
	Raw     []byte
	Err     error
}

// NewDecodeErrorEvent wraps a failed decode of data.
func NewDecodeErrorEvent(data []byte, err error) *DecodeErrorEvent {
	return &DecodeErrorEvent{
		Type:    ServerEventType(EventType(data)),
		EventID: EventID(data),
		Raw:     data,
		Err:     err,
	}
}

func (e *DecodeErrorEvent) ServerEventType() ServerEventType { return ServerEventTypeDecodeError }

func (e *DecodeErrorEvent) GetEventID() string { return e.EventID }

func (e *DecodeErrorEvent) Error() string { return e.Err.Error() }

func (e *DecodeErrorEvent) Unwrap() error { return e.Err }

// ContentRef addresses one content part of a response output item.
type ContentRef struct {
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

// OutputRef addresses one output item of a response.
type OutputRef struct {
	ResponseID  string `json:"response_id,omitempty"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
}

// ErrorEvent is returned when the server rejects a client event or fails.
// Most errors are recoverable and the session stays open.
type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ConversationItemAddedEvent struct {
	BaseEvent
	PreviousItemID *string `json:"previous_item_id,omitempty"`
	Item           Item    `json:"item"`
}

type ConversationItemDoneEvent struct {
	BaseEvent
	PreviousItemID *string `json:"previous_item_id,omitempty"`
	Item           Item    `json:"item"`
}

type ConversationItemDeletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type ConversationItemRetrievedEvent struct {
	BaseEvent
	Item Item `json:"item"`
}

type ConversationItemTruncatedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int    `json:"audio_end_ms"`
}

type InputAudioTranscriptionDeltaEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type InputAudioTranscriptionSegmentEvent struct {
	BaseEvent
	ItemID       string  `json:"item_id"`
	ContentIndex int     `json:"content_index"`
	ID           string  `json:"id,omitempty"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
	Start        float64 `json:"start,omitempty"`
	End          float64 `json:"end,omitempty"`
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

// InputAudioTranscriptionFailedEvent is per item and never fatal.
type InputAudioTranscriptionFailedEvent struct {
	BaseEvent
	ItemID       string      `json:"item_id"`
	ContentIndex int         `json:"content_index"`
	ErrorDetail  ErrorDetail `json:"error"`
}

func (e *InputAudioTranscriptionFailedEvent) Error() string {
	return "transcription of " + e.ItemID + " failed: " + e.ErrorDetail.Error()
}

type InputAudioBufferCommittedEvent struct {
	BaseEvent
	PreviousItemID *string `json:"previous_item_id,omitempty"`
	ItemID         string  `json:"item_id"`
}

type InputAudioBufferClearedEvent struct {
	BaseEvent
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMS int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMS int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type TimeoutTriggeredEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	AudioStartMS int    `json:"audio_start_ms"`
	AudioEndMS   int    `json:"audio_end_ms"`
}

type DTMFEventReceivedEvent struct {
	BaseEvent
	Event      string `json:"event"`
	ReceivedAt int64  `json:"received_at"`
}

type OutputAudioBufferStartedEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
}

type OutputAudioBufferStoppedEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
}

type OutputAudioBufferClearedEvent struct {
	BaseEvent
	ResponseID string `json:"response_id"`
}

type ResponseCreatedEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ResponseContentPartAddedEvent struct {
	BaseEvent
	ContentRef
	Part ContentPart `json:"part"`
}

type ResponseContentPartDoneEvent struct {
	BaseEvent
	ContentRef
	Part ContentPart `json:"part"`
}

type ResponseTextDeltaEvent struct {
	BaseEvent
	ContentRef
	Delta string `json:"delta"`
}

type ResponseTextDoneEvent struct {
	BaseEvent
	ContentRef
	Text string `json:"text"`
}

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ContentRef
	// Delta is base64 encoded audio.
	Delta string `json:"delta"`
}

type ResponseAudioDoneEvent struct {
	BaseEvent
	ContentRef
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ContentRef
	Delta string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ContentRef
	Transcript string `json:"transcript"`
}

type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	OutputRef
	CallID string `json:"call_id"`
	Delta  string `json:"delta"`
}

type ResponseFunctionCallArgumentsDoneEvent struct {
	BaseEvent
	OutputRef
	CallID    string `json:"call_id"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type ResponseMCPCallArgumentsDeltaEvent struct {
	BaseEvent
	OutputRef
	Delta string `json:"delta"`
}

type ResponseMCPCallArgumentsDoneEvent struct {
	BaseEvent
	OutputRef
	Arguments string `json:"arguments"`
}

type ResponseMCPCallInProgressEvent struct {
	BaseEvent
	OutputRef
}

type ResponseMCPCallCompletedEvent struct {
	BaseEvent
	OutputRef
}

type ResponseMCPCallFailedEvent struct {
	BaseEvent
	OutputRef
}

type MCPListToolsInProgressEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type MCPListToolsCompletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type MCPListToolsFailedEvent struct {
	BaseEvent
	ItemID      string       `json:"item_id"`
	ErrorDetail *ErrorDetail `json:"error,omitempty"`
}

type RateLimitsUpdatedEvent struct {
	BaseEvent
	RateLimits []RateLimit `json:"rate_limits"`
}

func (ErrorEvent) ServerEventType() ServerEventType { return ServerEventTypeError }

func (SessionCreatedEvent) ServerEventType() ServerEventType { return ServerEventTypeSessionCreated }

func (SessionUpdatedEvent) ServerEventType() ServerEventType { return ServerEventTypeSessionUpdated }

func (ConversationItemAddedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeConversationItemAdded
}

func (ConversationItemDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeConversationItemDone
}

func (ConversationItemDeletedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeConversationItemDeleted
}

func (ConversationItemRetrievedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeConversationItemRetrieved
}

func (ConversationItemTruncatedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeConversationItemTruncated
}

func (InputAudioTranscriptionDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioTranscriptionDelta
}

func (InputAudioTranscriptionSegmentEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioTranscriptionSegment
}

func (InputAudioTranscriptionCompletedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioTranscriptionCompleted
}

func (InputAudioTranscriptionFailedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioTranscriptionFailed
}

func (InputAudioBufferCommittedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferCommitted
}

func (InputAudioBufferClearedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferCleared
}

func (SpeechStartedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferSpeechStarted
}

func (SpeechStoppedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferSpeechStopped
}

func (TimeoutTriggeredEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferTimeoutTriggered
}

func (DTMFEventReceivedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeInputAudioBufferDTMFEventReceived
}

func (OutputAudioBufferStartedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeOutputAudioBufferStarted
}

func (OutputAudioBufferStoppedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeOutputAudioBufferStopped
}

func (OutputAudioBufferClearedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeOutputAudioBufferCleared
}

func (ResponseCreatedEvent) ServerEventType() ServerEventType { return ServerEventTypeResponseCreated }

func (ResponseDoneEvent) ServerEventType() ServerEventType { return ServerEventTypeResponseDone }

func (ResponseOutputItemAddedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputItemAdded
}

func (ResponseOutputItemDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputItemDone
}

func (ResponseContentPartAddedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseContentPartAdded
}

func (ResponseContentPartDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseContentPartDone
}

func (ResponseTextDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputTextDelta
}

func (ResponseTextDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputTextDone
}

func (ResponseAudioDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputAudioDelta
}

func (ResponseAudioDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputAudioDone
}

func (ResponseAudioTranscriptDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputAudioTranscriptDelta
}

func (ResponseAudioTranscriptDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseOutputAudioTranscriptDone
}

func (ResponseFunctionCallArgumentsDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseFunctionCallArgumentsDelta
}

func (ResponseFunctionCallArgumentsDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseFunctionCallArgumentsDone
}

func (ResponseMCPCallArgumentsDeltaEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseMCPCallArgumentsDelta
}

func (ResponseMCPCallArgumentsDoneEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseMCPCallArgumentsDone
}

func (ResponseMCPCallInProgressEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseMCPCallInProgress
}

func (ResponseMCPCallCompletedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseMCPCallCompleted
}

func (ResponseMCPCallFailedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeResponseMCPCallFailed
}

func (MCPListToolsInProgressEvent) ServerEventType() ServerEventType {
	return ServerEventTypeMCPListToolsInProgress
}

func (MCPListToolsCompletedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeMCPListToolsCompleted
}

func (MCPListToolsFailedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeMCPListToolsFailed
}

func (RateLimitsUpdatedEvent) ServerEventType() ServerEventType {
	return ServerEventTypeRateLimitsUpdated
}
