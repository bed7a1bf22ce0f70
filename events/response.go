package events

import "github.com/codewandler/realtime-go/tool"

type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
)

// Terminal reports whether no further events follow for the response.
func (s ResponseStatus) Terminal() bool {
	return s != ResponseStatusInProgress && s != ""
}

// ConversationMode selects where a response writes its output. The empty
// value and ConversationAuto both target the default conversation.
type ConversationMode string

const (
	ConversationAuto ConversationMode = "auto"
	ConversationNone ConversationMode = "none"
)

func (m ConversationMode) OutOfBand() bool {
	return m == ConversationNone
}

type Response struct {
	ID               string         `json:"id"`
	Object           string         `json:"object,omitempty"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	Status           ResponseStatus `json:"status"`
	StatusDetails    *StatusDetails `json:"status_details,omitempty"`
	Output           []Item         `json:"output,omitempty"`
	OutputModalities []Modality     `json:"output_modalities,omitempty"`
	MaxOutputTokens  MaxTokens      `json:"max_output_tokens,omitzero"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Usage            *Usage         `json:"usage,omitempty"`
}

type StatusDetails struct {
	Type   string       `json:"type,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

type Usage struct {
	TotalTokens        int                 `json:"total_tokens"`
	InputTokens        int                 `json:"input_tokens"`
	OutputTokens       int                 `json:"output_tokens"`
	InputTokenDetails  *InputTokenDetails  `json:"input_token_details,omitempty"`
	OutputTokenDetails *OutputTokenDetails `json:"output_token_details,omitempty"`
}

type InputTokenDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
	TextTokens   int `json:"text_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
	ImageTokens  int `json:"image_tokens,omitempty"`
}

type OutputTokenDetails struct {
	TextTokens  int `json:"text_tokens,omitempty"`
	AudioTokens int `json:"audio_tokens,omitempty"`
}

// ResponseCreatePayload configures a single response. All fields are optional
// and default to the session configuration.
type ResponseCreatePayload struct {
	Conversation      ConversationMode `json:"conversation,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	OutputModalities  []Modality       `json:"output_modalities,omitempty"`
	Instructions      string           `json:"instructions,omitempty"`
	Voice             string           `json:"voice,omitempty"`
	OutputAudioFormat *AudioFormat     `json:"output_audio_format,omitempty"`
	Input             []Item           `json:"input,omitempty"`
	Tools             []tool.Tool      `json:"tools,omitempty"`
	ToolChoice        tool.Choice      `json:"tool_choice,omitempty"`
	Temperature       float64          `json:"temperature,omitempty"`
	MaxOutputTokens   MaxTokens        `json:"max_output_tokens,omitzero"`
}

// ItemReference points a response input at an existing conversation item.
func ItemReference(id string) Item {
	return Item{Type: "item_reference", ID: id}
}
