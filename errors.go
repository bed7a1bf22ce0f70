package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/response"
	"github.com/codewandler/realtime-go/session"
	"github.com/codewandler/realtime-go/tool"
)

var (
	ErrImmutableFieldChange = session.ErrImmutableFieldChange
	ErrVoiceLocked          = session.ErrVoiceLocked
	ErrInvalidModalities    = session.ErrInvalidModalities
	ErrInvalidAudioFormat   = events.ErrInvalidAudioFormat
	ErrMalformedEvent       = events.ErrMalformedEvent
	ErrChunkTooLarge        = audio.ErrChunkTooLarge
	ErrEmptyBuffer          = audio.ErrEmptyBuffer
	ErrInvalidAudio         = audio.ErrInvalidAudio
	ErrItemNotFound         = conversation.ErrItemNotFound
	ErrNotTruncatable       = conversation.ErrNotTruncatable
	ErrInvalidItem          = conversation.ErrInvalidItem
	ErrResponseConflict     = response.ErrResponseConflict
	ErrUnknownTool          = tool.ErrUnknownTool

	ErrConnectionClosed    = errors.New("connection closed")
	ErrTransport           = errors.New("transport error")
	ErrServerReported      = errors.New("server reported error")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// ServerError is an error event reported by the server. It never closes the
// connection.
type ServerError struct {
	Detail events.ErrorDetail
}

func (e *ServerError) Error() string {
	return "server: " + e.Detail.Error()
}

// Is matches ErrServerReported, and ErrItemNotFound for errors about unknown
// item references.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrServerReported:
		return true
	case ErrItemNotFound:
		return strings.Contains(e.Detail.Code, "item_not_found") ||
			(e.Detail.Param != "" && strings.Contains(e.Detail.Param, "item_id") && strings.Contains(strings.ToLower(e.Detail.Message), "not found"))
	}
	return false
}

// TranscriptionError reports a failed input audio transcription of one item.
type TranscriptionError struct {
	ItemID       string
	ContentIndex int
	Detail       events.ErrorDetail
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription of %s/%d failed: %s", e.ItemID, e.ContentIndex, e.Detail.Error())
}

func (e *TranscriptionError) Is(target error) bool {
	return target == ErrTranscriptionFailed
}

// EventError returns the typed error carried by an event, or nil.
func EventError(evt events.ServerEvent) error {
	switch e := evt.(type) {
	case *events.ErrorEvent:
		return &ServerError{Detail: e.ErrorDetail}
	case *events.InputAudioTranscriptionFailedEvent:
		return &TranscriptionError{ItemID: e.ItemID, ContentIndex: e.ContentIndex, Detail: e.ErrorDetail}
	case *events.DecodeErrorEvent:
		return e
	case *events.MCPListToolsFailedEvent:
		if e.ErrorDetail != nil {
			return &ServerError{Detail: *e.ErrorDetail}
		}
		return &ServerError{Detail: events.ErrorDetail{Type: "mcp_list_tools_failed", Message: "listing tools of " + e.ItemID + " failed"}}
	}
	return nil
}
