package events

import (
	"encoding/json"
	"errors"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrMissingEventType   = errors.New("missing event type")
	ErrMalformedEvent     = errors.New("malformed event")
	ErrInvalidAudioFormat = errors.New("invalid audio format")
)

// BaseEvent carries the optional client-assigned correlation id. The server
// echoes it back only on error responses.
type BaseEvent struct {
	EventID string `json:"event_id,omitempty"`
}

func (b BaseEvent) GetEventID() string {
	return b.EventID
}

func NewBaseEvent() BaseEvent {
	return BaseEvent{EventID: NewID("evt_")}
}

// NewID returns a random identifier with the given prefix.
func NewID(prefix string) string {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return prefix + id
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e *ErrorDetail) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

const (
	AudioFormatPCM  = "audio/pcm"
	AudioFormatPCMU = "audio/pcmu"
	AudioFormatPCMA = "audio/pcma"

	PCMSampleRate = 24_000
)

// AudioFormat describes the encoding of input or output audio. Only 24 kHz
// PCM is accepted by the service.
type AudioFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate,omitempty"`
}

func PCM24k() *AudioFormat {
	return &AudioFormat{Type: AudioFormatPCM, Rate: PCMSampleRate}
}

func (f AudioFormat) Validate() error {
	switch f.Type {
	case AudioFormatPCM:
		if f.Rate != 0 && f.Rate != PCMSampleRate {
			return fmt.Errorf("%w: audio/pcm rate must be %d, got %d", ErrInvalidAudioFormat, PCMSampleRate, f.Rate)
		}
	case AudioFormatPCMU, AudioFormatPCMA:
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidAudioFormat, f.Type)
	}
	return nil
}

// BytesPerMS is the number of encoded bytes per millisecond of mono audio.
func (f *AudioFormat) BytesPerMS() int {
	if f != nil && (f.Type == AudioFormatPCMU || f.Type == AudioFormatPCMA) {
		return 8
	}
	return PCMSampleRate / 1000 * 2
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

func String(s string) *string { return &s }

func Bool(b bool) *bool { return &b }

func Float(f float64) *float64 { return &f }
