// Package session mirrors the server-side session configuration and enforces
// its mutability rules.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
)

var (
	ErrImmutableFieldChange = errors.New("immutable field change")
	ErrVoiceLocked          = errors.New("voice locked after audio output")
	ErrInvalidModalities    = errors.New("output modalities must be exactly one of audio or text")
)

// Manager owns the session mirror. The mirror only changes through
// ApplySnapshot, i.e. on server confirmation. It is not safe for concurrent
// use; callers serialize access.
type Manager struct {
	current      events.Session
	model        string
	known        bool
	audioEmitted bool
}

func NewManager() *Manager {
	return &Manager{}
}

// ApplySnapshot replaces the mirror with the authoritative server session.
// The first snapshot pins the model.
func (m *Manager) ApplySnapshot(s events.Session) {
	if !m.known {
		m.model = s.Model
		m.known = true
	}
	m.current = s.Clone()
}

// Snapshot returns a copy of the mirror and whether a snapshot was received.
func (m *Manager) Snapshot() (events.Session, bool) {
	return m.current.Clone(), m.known
}

func (m *Manager) Model() string { return m.model }

// MarkAudioEmitted records that output audio was observed. It never resets.
func (m *Manager) MarkAudioEmitted() {
	m.audioEmitted = true
}

func (m *Manager) AudioEmitted() bool { return m.audioEmitted }

// TurnDetection returns the active turn detection config or nil.
func (m *Manager) TurnDetection() *events.TurnDetection {
	return m.current.EffectiveTurnDetection()
}

func (m *Manager) OutputFormat() *events.AudioFormat {
	return m.current.EffectiveOutputFormat()
}

func (m *Manager) InputFormat() *events.AudioFormat {
	return m.current.EffectiveInputFormat()
}

// ValidateUpdate checks a partial update against the mirror without
// changing it.
func (m *Manager) ValidateUpdate(u events.SessionUpdate) error {
	if u.Model != "" && m.known && u.Model != m.model {
		return fmt.Errorf("%w: model %q cannot change to %q", ErrImmutableFieldChange, m.model, u.Model)
	}
	if u.Voice != "" && m.audioEmitted && u.Voice != m.current.EffectiveVoice() {
		return fmt.Errorf("%w: cannot change voice to %q", ErrVoiceLocked, u.Voice)
	}
	if u.OutputModalities != nil {
		if err := ValidateModalities(u.OutputModalities); err != nil {
			return err
		}
	}
	for _, f := range []*events.AudioFormat{u.InputAudioFormat, u.OutputAudioFormat} {
		if f == nil {
			continue
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if u.Tools != nil {
		for _, t := range *u.Tools {
			if err := t.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateModalities requires exactly one of audio or text.
func ValidateModalities(mods []events.Modality) error {
	if len(mods) != 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidModalities, mods)
	}
	switch mods[0] {
	case events.ModalityAudio, events.ModalityText:
		return nil
	}
	return fmt.Errorf("%w: got %v", ErrInvalidModalities, mods)
}

// Preview returns what the session would look like once the server applied u.
func (m *Manager) Preview(u events.SessionUpdate) events.Session {
	return Merge(m.current, u)
}

// Merge applies a partial update to base following the server's merge rules:
// absent fields are kept, an empty instructions string and an empty tool
// list clear, and an explicit null turn detection disables it.
func Merge(base events.Session, u events.SessionUpdate) events.Session {
	s := base.Clone()
	if u.Type != "" {
		s.Type = u.Type
	}
	if u.Model != "" {
		s.Model = u.Model
	}
	if u.OutputModalities != nil {
		s.OutputModalities = slices.Clone(u.OutputModalities)
	}
	if u.Instructions != nil {
		s.Instructions = *u.Instructions
	}
	if u.Voice != "" {
		s.Voice = u.Voice
		if s.Audio != nil && s.Audio.Output != nil {
			s.Audio.Output.Voice = u.Voice
		}
	}
	if u.InputAudioFormat != nil {
		f := *u.InputAudioFormat
		s.InputAudioFormat = &f
	}
	if u.OutputAudioFormat != nil {
		f := *u.OutputAudioFormat
		s.OutputAudioFormat = &f
	}
	if !u.TurnDetection.IsZero() {
		if td, ok := u.TurnDetection.Get(); ok {
			s.TurnDetection = &td
		} else {
			s.TurnDetection = nil
		}
		if s.Audio != nil && s.Audio.Input != nil {
			s.Audio.Input.TurnDetection = s.TurnDetection
		}
	}
	if !u.InputAudioTranscription.IsZero() {
		if tr, ok := u.InputAudioTranscription.Get(); ok {
			s.InputAudioTranscription = &tr
		} else {
			s.InputAudioTranscription = nil
		}
	}
	if u.Tools != nil {
		s.Tools = append([]tool.Tool{}, (*u.Tools)...)
	}
	if u.ToolChoice != "" {
		s.ToolChoice = u.ToolChoice
	}
	if u.Temperature != nil {
		s.Temperature = *u.Temperature
	}
	if !u.MaxOutputTokens.IsZero() {
		s.MaxOutputTokens = u.MaxOutputTokens
	}
	if u.Speed != nil {
		s.Speed = *u.Speed
	}
	if u.Include != nil {
		s.Include = slices.Clone(u.Include)
	}
	return s
}
