package session

import (
	"testing"

	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	m := NewManager()
	m.ApplySnapshot(events.Session{
		ID:               "sess_1",
		Model:            "gpt-realtime",
		Voice:            "alloy",
		Instructions:     "be brief",
		OutputModalities: []events.Modality{events.ModalityAudio},
		TurnDetection:    &events.TurnDetection{Type: events.TurnDetectionServerVAD},
		Tools:            []tool.Tool{tool.Function("weather", "", nil)},
	})
	return m
}

func TestManager_ModelImmutable(t *testing.T) {
	m := newTestManager()
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{Model: "gpt-other"}), ErrImmutableFieldChange)
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{Model: "gpt-realtime"}))

	// a later snapshot does not move the pinned model
	m.ApplySnapshot(events.Session{Model: "gpt-other"})
	require.Equal(t, "gpt-realtime", m.Model())
}

func TestManager_VoiceLock(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{Voice: "echo"}))

	m.MarkAudioEmitted()
	require.True(t, m.AudioEmitted())
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{Voice: "echo"}), ErrVoiceLocked)
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{Voice: "alloy"}))
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{Instructions: events.String("x")}))
}

func TestManager_ValidateDoesNotMutate(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{Voice: "echo", Instructions: events.String("")}))
	s, ok := m.Snapshot()
	require.True(t, ok)
	require.Equal(t, "alloy", s.Voice)
	require.Equal(t, "be brief", s.Instructions)
}

func TestManager_ValidateModalitiesAndFormats(t *testing.T) {
	m := newTestManager()
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{
		OutputModalities: []events.Modality{events.ModalityAudio, events.ModalityText},
	}), ErrInvalidModalities)
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{
		OutputModalities: []events.Modality{},
	}), ErrInvalidModalities)
	require.NoError(t, m.ValidateUpdate(events.SessionUpdate{
		OutputModalities: []events.Modality{events.ModalityText},
	}))
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{
		OutputAudioFormat: &events.AudioFormat{Type: events.AudioFormatPCM, Rate: 16000},
	}), events.ErrInvalidAudioFormat)
	require.ErrorIs(t, m.ValidateUpdate(events.SessionUpdate{
		Tools: &[]tool.Tool{{Type: tool.TypeMCP}},
	}), tool.ErrInvalidTool)
}

func TestMerge_ClearingSemantics(t *testing.T) {
	m := newTestManager()

	s := m.Preview(events.SessionUpdate{Instructions: events.String("")})
	require.Empty(t, s.Instructions)
	require.Len(t, s.Tools, 1)
	require.NotNil(t, s.TurnDetection)

	s = m.Preview(events.SessionUpdate{Tools: &[]tool.Tool{}})
	require.Empty(t, s.Tools)
	require.Equal(t, "be brief", s.Instructions)

	s = m.Preview(events.SessionUpdate{TurnDetection: events.Null[events.TurnDetection]()})
	require.Nil(t, s.TurnDetection)
	require.Equal(t, "alloy", s.Voice)

	s = m.Preview(events.SessionUpdate{TurnDetection: events.Value(events.TurnDetection{Type: events.TurnDetectionSemanticVAD})})
	require.Equal(t, events.TurnDetectionSemanticVAD, s.TurnDetection.Type)

	// absent fields are untouched
	s = m.Preview(events.SessionUpdate{Temperature: events.Float(0.6)})
	require.Equal(t, 0.6, s.Temperature)
	require.Equal(t, "be brief", s.Instructions)
	require.Len(t, s.Tools, 1)
	require.NotNil(t, s.TurnDetection)
}
