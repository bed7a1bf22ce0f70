package events

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/codewandler/realtime-go/tool"
)

type SessionType string

const (
	SessionTypeRealtime      SessionType = "realtime"
	SessionTypeTranscription SessionType = "transcription"
)

const (
	TurnDetectionServerVAD   = "server_vad"
	TurnDetectionSemanticVAD = "semantic_vad"
)

// Session is the authoritative session resource sent by the server.
type Session struct {
	ID                      string                   `json:"id,omitempty"`
	Object                  string                   `json:"object,omitempty"`
	Type                    SessionType              `json:"type,omitempty"`
	ExpiresAt               int64                    `json:"expires_at,omitempty"`
	Model                   string                   `json:"model,omitempty"`
	OutputModalities        []Modality               `json:"output_modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        *AudioFormat             `json:"input_audio_format,omitempty"`
	OutputAudioFormat       *AudioFormat             `json:"output_audio_format,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	Tools                   []tool.Tool              `json:"tools,omitempty"`
	ToolChoice              tool.Choice              `json:"tool_choice,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
	MaxOutputTokens         MaxTokens                `json:"max_output_tokens,omitzero"`
	Speed                   float64                  `json:"speed,omitempty"`
	Include                 []string                 `json:"include,omitempty"`
	Audio                   *SessionAudio            `json:"audio,omitempty"`
}

// SessionAudio is the nested audio configuration used by GA sessions.
type SessionAudio struct {
	Input  *SessionAudioInput  `json:"input,omitempty"`
	Output *SessionAudioOutput `json:"output,omitempty"`
}

type SessionAudioInput struct {
	Format        *AudioFormat             `json:"format,omitempty"`
	TurnDetection *TurnDetection           `json:"turn_detection,omitempty"`
	Transcription *InputAudioTranscription `json:"transcription,omitempty"`
}

type SessionAudioOutput struct {
	Format *AudioFormat `json:"format,omitempty"`
	Voice  string       `json:"voice,omitempty"`
	Speed  float64      `json:"speed,omitempty"`
}

// EffectiveVoice returns the voice from the flat or the nested representation.
func (s *Session) EffectiveVoice() string {
	if s.Voice != "" {
		return s.Voice
	}
	if s.Audio != nil && s.Audio.Output != nil {
		return s.Audio.Output.Voice
	}
	return ""
}

// EffectiveTurnDetection returns the turn detection config from the flat or
// the nested representation, or nil if turn detection is disabled.
func (s *Session) EffectiveTurnDetection() *TurnDetection {
	if s.TurnDetection != nil {
		return s.TurnDetection
	}
	if s.Audio != nil && s.Audio.Input != nil {
		return s.Audio.Input.TurnDetection
	}
	return nil
}

// EffectiveOutputFormat returns the output audio format, defaulting to 24 kHz PCM.
func (s *Session) EffectiveOutputFormat() *AudioFormat {
	if s.OutputAudioFormat != nil {
		return s.OutputAudioFormat
	}
	if s.Audio != nil && s.Audio.Output != nil && s.Audio.Output.Format != nil {
		return s.Audio.Output.Format
	}
	return PCM24k()
}

// EffectiveInputFormat returns the input audio format, defaulting to 24 kHz PCM.
func (s *Session) EffectiveInputFormat() *AudioFormat {
	if s.InputAudioFormat != nil {
		return s.InputAudioFormat
	}
	if s.Audio != nil && s.Audio.Input != nil && s.Audio.Input.Format != nil {
		return s.Audio.Input.Format
	}
	return PCM24k()
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	c := s
	c.OutputModalities = append([]Modality(nil), s.OutputModalities...)
	c.Tools = append([]tool.Tool(nil), s.Tools...)
	c.Include = append([]string(nil), s.Include...)
	if s.TurnDetection != nil {
		td := *s.TurnDetection
		c.TurnDetection = &td
	}
	if s.InputAudioTranscription != nil {
		tr := *s.InputAudioTranscription
		c.InputAudioTranscription = &tr
	}
	if s.Audio != nil {
		a := *s.Audio
		if a.Input != nil {
			in := *a.Input
			if in.TurnDetection != nil {
				td := *in.TurnDetection
				in.TurnDetection = &td
			}
			a.Input = &in
		}
		if a.Output != nil {
			out := *a.Output
			a.Output = &out
		}
		c.Audio = &a
	}
	return c
}

// SessionUpdate is a partial session. Absent fields are left untouched by the
// server. An empty Instructions string clears the instructions, an empty Tools
// list clears the tools and an explicit null TurnDetection disables turn
// detection.
type SessionUpdate struct {
	Type                    SessionType                       `json:"type,omitempty"`
	Model                   string                            `json:"model,omitempty"`
	OutputModalities        []Modality                        `json:"output_modalities,omitempty"`
	Instructions            *string                           `json:"instructions,omitempty"`
	Voice                   string                            `json:"voice,omitempty"`
	InputAudioFormat        *AudioFormat                      `json:"input_audio_format,omitempty"`
	OutputAudioFormat       *AudioFormat                      `json:"output_audio_format,omitempty"`
	TurnDetection           Nullable[TurnDetection]           `json:"turn_detection,omitzero"`
	InputAudioTranscription Nullable[InputAudioTranscription] `json:"input_audio_transcription,omitzero"`
	Tools                   *[]tool.Tool                      `json:"tools,omitempty"`
	ToolChoice              tool.Choice                       `json:"tool_choice,omitempty"`
	Temperature             *float64                          `json:"temperature,omitempty"`
	MaxOutputTokens         MaxTokens                         `json:"max_output_tokens,omitzero"`
	Speed                   *float64                          `json:"speed,omitempty"`
	Include                 []string                          `json:"include,omitempty"`
}

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	IdleTimeoutMs     int     `json:"idle_timeout_ms,omitempty"`
	Eagerness         string  `json:"eagerness,omitempty"`
	CreateResponse    *bool   `json:"create_response,omitempty"`
	InterruptResponse *bool   `json:"interrupt_response,omitempty"`
}

// CreatesResponse reports whether the server creates a response when a turn
// ends. The service defaults to true.
func (t *TurnDetection) CreatesResponse() bool {
	return t != nil && (t.CreateResponse == nil || *t.CreateResponse)
}

// InterruptsResponse reports whether detected speech interrupts the
// in-flight response. The service defaults to true.
func (t *TurnDetection) InterruptsResponse() bool {
	return t != nil && (t.InterruptResponse == nil || *t.InterruptResponse)
}

type InputAudioTranscription struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// MaxTokens is either a token count or "inf".
type MaxTokens struct {
	Count    int
	Infinite bool
}

func (m MaxTokens) IsZero() bool { return m.Count == 0 && !m.Infinite }

func (m MaxTokens) MarshalJSON() ([]byte, error) {
	if m.Infinite {
		return []byte(`"inf"`), nil
	}
	return []byte(strconv.Itoa(m.Count)), nil
}

func (m *MaxTokens) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = MaxTokens{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "inf" {
			return fmt.Errorf("invalid max tokens %q", s)
		}
		*m = MaxTokens{Infinite: true}
		return nil
	}
	m.Infinite = false
	return json.Unmarshal(data, &m.Count)
}
