// Package audio tracks the input audio buffer, turn detection state and the
// output audio buffer of a realtime session.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/codewandler/realtime-go/events"
)

// MaxChunkBytes is the largest decoded payload of a single append.
const MaxChunkBytes = 15 * 1024 * 1024

var (
	ErrChunkTooLarge = errors.New("audio chunk too large")
	ErrEmptyBuffer   = errors.New("input audio buffer is empty")
	ErrInvalidAudio  = errors.New("invalid base64 audio")
)

type VADState int

const (
	Idle VADState = iota
	Buffering
	SpeechDetected
)

func (s VADState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	case SpeechDetected:
		return "speech_detected"
	default:
		return fmt.Sprintf("VADState(%d)", int(s))
	}
}

// BufferState is a snapshot of the input side.
type BufferState struct {
	// UnsentBytes is the decoded length appended since the last commit or
	// clear.
	UnsentBytes int
	// TotalBytes is the decoded length appended since the connection started.
	TotalBytes int64
	// CumulativeMS is TotalBytes expressed in milliseconds.
	CumulativeMS int64
	VAD          VADState
	// SpeechStartMS and SpeechEndMS are the offsets reported by turn
	// detection for the current or last turn.
	SpeechStartMS int
	SpeechEndMS   int
	// LastCommittedItemID is the item created by the last commit, manual or
	// automatic.
	LastCommittedItemID string
	LastDTMF            string
}

// OutputState tracks the output audio buffer of one response.
type OutputState struct {
	Started bool
	Stopped bool
	Cleared bool
}

// Pipeline mirrors the input and output audio buffers. It is not safe for
// concurrent use; callers serialize access.
type Pipeline struct {
	state   BufferState
	format  *events.AudioFormat
	output  map[string]OutputState
	playing string
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		format: events.PCM24k(),
		output: map[string]OutputState{},
	}
}

// SetInputFormat sets the format used to convert appended bytes to
// milliseconds.
func (p *Pipeline) SetInputFormat(f *events.AudioFormat) {
	if f != nil {
		p.format = f
	}
}

func (p *Pipeline) State() BufferState { return p.state }

// DecodedLen estimates the decoded size of base64 audio without decoding it.
func DecodedLen(b64 string) (int, error) {
	if len(b64)%4 != 0 {
		return 0, fmt.Errorf("%w: length %d is not a multiple of 4", ErrInvalidAudio, len(b64))
	}
	pad := 0
	for i := len(b64) - 1; i >= 0 && i >= len(b64)-2 && b64[i] == '='; i-- {
		pad++
	}
	for i := 0; i < len(b64)-pad; i++ {
		if !isBase64(b64[i]) {
			return 0, fmt.Errorf("%w: unexpected byte %q at %d", ErrInvalidAudio, b64[i], i)
		}
	}
	return base64.StdEncoding.DecodedLen(len(b64)) - pad, nil
}

func isBase64(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/'
}

// CheckAppend validates base64 audio and returns its decoded length.
func CheckAppend(b64 string) (int, error) {
	n, err := DecodedLen(b64)
	if err != nil {
		return 0, err
	}
	if n > MaxChunkBytes {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrChunkTooLarge, n, MaxChunkBytes)
	}
	return n, nil
}

// Append accounts an append intent. On error the buffer is unchanged.
func (p *Pipeline) Append(b64 string) (int, error) {
	n, err := CheckAppend(b64)
	if err != nil {
		return 0, err
	}
	p.state.UnsentBytes += n
	p.state.TotalBytes += int64(n)
	p.state.CumulativeMS = p.state.TotalBytes / int64(p.format.BytesPerMS())
	if p.state.VAD == Idle && n > 0 {
		p.state.VAD = Buffering
	}
	return n, nil
}

// CheckCommit fails with ErrEmptyBuffer if nothing was appended since the
// last commit or clear.
func (p *Pipeline) CheckCommit() error {
	if p.state.UnsentBytes == 0 {
		return ErrEmptyBuffer
	}
	return nil
}

// Commit accounts a manual commit intent.
func (p *Pipeline) Commit() error {
	if err := p.CheckCommit(); err != nil {
		return err
	}
	p.state.UnsentBytes = 0
	p.state.VAD = Idle
	return nil
}

// Clear accounts a clear intent.
func (p *Pipeline) Clear() {
	p.state.UnsentBytes = 0
	p.state.VAD = Idle
}

// Committed applies input_audio_buffer.committed.
func (p *Pipeline) Committed(itemID string) {
	p.state.UnsentBytes = 0
	p.state.LastCommittedItemID = itemID
	p.state.VAD = Idle
}

// Cleared applies input_audio_buffer.cleared.
func (p *Pipeline) Cleared() {
	p.state.UnsentBytes = 0
	p.state.VAD = Idle
}

// SpeechStarted applies input_audio_buffer.speech_started and reports whether
// the in-flight response must be interrupted.
func (p *Pipeline) SpeechStarted(audioStartMS int, td *events.TurnDetection) bool {
	p.state.VAD = SpeechDetected
	p.state.SpeechStartMS = audioStartMS
	return td.InterruptsResponse()
}

// SpeechStopped applies input_audio_buffer.speech_stopped. The server commits
// the turn next.
func (p *Pipeline) SpeechStopped(audioEndMS int) {
	p.state.VAD = Idle
	p.state.SpeechEndMS = audioEndMS
}

// TimeoutTriggered mirrors the server-side auto commit of the trailing,
// possibly empty, segment. It reports whether the server also creates a
// response.
func (p *Pipeline) TimeoutTriggered(itemID string, audioStartMS, audioEndMS int, td *events.TurnDetection) bool {
	p.state.UnsentBytes = 0
	p.state.VAD = Idle
	p.state.SpeechStartMS = audioStartMS
	p.state.SpeechEndMS = audioEndMS
	p.state.LastCommittedItemID = itemID
	return td.CreatesResponse()
}

func (p *Pipeline) DTMF(event string) {
	p.state.LastDTMF = event
}

func (p *Pipeline) OutputStarted(responseID string) {
	st := p.output[responseID]
	st.Started = true
	p.output[responseID] = st
	p.playing = responseID
}

func (p *Pipeline) OutputStopped(responseID string) {
	st := p.output[responseID]
	st.Stopped = true
	p.output[responseID] = st
	if p.playing == responseID {
		p.playing = ""
	}
}

func (p *Pipeline) OutputCleared(responseID string) {
	st := p.output[responseID]
	st.Cleared = true
	p.output[responseID] = st
	if p.playing == responseID || responseID == "" {
		p.playing = ""
	}
}

func (p *Pipeline) Output(responseID string) (OutputState, bool) {
	st, ok := p.output[responseID]
	return st, ok
}

// Playing returns the response whose output audio is currently playing.
func (p *Pipeline) Playing() string { return p.playing }

// ForgetOutput drops the output state of a finished response.
func (p *Pipeline) ForgetOutput(responseID string) {
	if p.playing != responseID {
		delete(p.output, responseID)
	}
}
