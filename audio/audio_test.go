package audio

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/realtime-go/events"
)

func TestDecodedLen(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 100, 4801} {
		b64 := base64.StdEncoding.EncodeToString(make([]byte, n))
		got, err := DecodedLen(b64)
		require.NoError(t, err)
		require.Equal(t, n, got)
	}

	_, err := DecodedLen("abc")
	require.ErrorIs(t, err, ErrInvalidAudio)
	_, err = DecodedLen("ab$d")
	require.ErrorIs(t, err, ErrInvalidAudio)
}

func TestPipeline_AppendTooLargeLeavesBufferUnchanged(t *testing.T) {
	p := NewPipeline()
	_, err := p.Append(base64.StdEncoding.EncodeToString(make([]byte, 480)))
	require.NoError(t, err)

	// estimated from the encoded length, never decoded
	huge := strings.Repeat("AAAA", MaxChunkBytes/3+1)
	_, err = p.Append(huge)
	require.ErrorIs(t, err, ErrChunkTooLarge)
	require.Equal(t, 480, p.State().UnsentBytes)
	require.Equal(t, int64(10), p.State().CumulativeMS)
}

func TestPipeline_CommitAndClear(t *testing.T) {
	p := NewPipeline()
	require.ErrorIs(t, p.Commit(), ErrEmptyBuffer)

	_, err := p.Append(base64.StdEncoding.EncodeToString(make([]byte, 960)))
	require.NoError(t, err)
	require.Equal(t, Buffering, p.State().VAD)
	require.NoError(t, p.Commit())
	require.Equal(t, 0, p.State().UnsentBytes)
	require.ErrorIs(t, p.Commit(), ErrEmptyBuffer)

	_, err = p.Append(base64.StdEncoding.EncodeToString(make([]byte, 960)))
	require.NoError(t, err)
	p.Clear()
	require.ErrorIs(t, p.Commit(), ErrEmptyBuffer)
	require.Equal(t, int64(40), p.State().CumulativeMS)
}

func TestPipeline_TurnDetection(t *testing.T) {
	p := NewPipeline()
	td := &events.TurnDetection{Type: events.TurnDetectionServerVAD, InterruptResponse: events.Bool(false)}

	require.False(t, p.SpeechStarted(100, td))
	require.Equal(t, SpeechDetected, p.State().VAD)
	require.True(t, p.SpeechStarted(100, &events.TurnDetection{Type: events.TurnDetectionServerVAD}))
	require.False(t, p.SpeechStarted(100, nil))

	p.SpeechStopped(900)
	require.Equal(t, Idle, p.State().VAD)
	require.Equal(t, 900, p.State().SpeechEndMS)

	p.Committed("item_1")
	require.Equal(t, "item_1", p.State().LastCommittedItemID)
}

func TestPipeline_TimeoutTriggeredEmptySegment(t *testing.T) {
	p := NewPipeline()
	td := &events.TurnDetection{Type: events.TurnDetectionServerVAD, CreateResponse: events.Bool(true), IdleTimeoutMs: 5000}

	// nothing appended: manual commit is rejected, the server auto commit is not
	require.ErrorIs(t, p.CheckCommit(), ErrEmptyBuffer)
	require.True(t, p.TimeoutTriggered("item_2", 5000, 5000, td))
	require.Equal(t, "item_2", p.State().LastCommittedItemID)

	td.CreateResponse = events.Bool(false)
	require.False(t, p.TimeoutTriggered("item_3", 5000, 10000, td))
}

func TestPipeline_OutputBuffer(t *testing.T) {
	p := NewPipeline()
	p.OutputStarted("resp_1")
	require.Equal(t, "resp_1", p.Playing())
	p.OutputCleared("resp_1")
	require.Empty(t, p.Playing())
	st, ok := p.Output("resp_1")
	require.True(t, ok)
	require.True(t, st.Started)
	require.True(t, st.Cleared)

	p.ForgetOutput("resp_1")
	_, ok = p.Output("resp_1")
	require.False(t, ok)
}

func TestPlayer_TracksPlayedPosition(t *testing.T) {
	pl := NewPlayer(nil, time.Second)

	_, err := pl.Write("item_1", 0, make([]byte, 4800))
	require.NoError(t, err)
	_, err = pl.Write("item_1", 0, make([]byte, 4800))
	require.NoError(t, err)
	require.Equal(t, 9600, pl.Buffered())

	buf := make([]byte, 2400)
	n, err := pl.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2400, n)

	pos, ok := pl.Position()
	require.True(t, ok)
	require.Equal(t, "item_1", pos.ItemID)
	require.Equal(t, 50, pos.PlayedMS)

	pos, ok = pl.Reset()
	require.True(t, ok)
	require.Equal(t, 50, pos.PlayedMS)
	require.Equal(t, 0, pl.Buffered())
	_, ok = pl.Position()
	require.False(t, ok)
}

func TestPlayer_Overflow(t *testing.T) {
	pl := NewPlayer(nil, 10*time.Millisecond)
	n, err := pl.Write("item_1", 0, make([]byte, 1000))
	require.ErrorIs(t, err, ErrPlayerOverflow)
	require.Equal(t, 480, n)
}

func TestChunkReader(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 2500)
	r := NewChunkReader(bytes.NewReader(data), 1000)

	buf := make([]byte, 1000)
	var sizes []int
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	require.Equal(t, []int{1000, 1000, 500}, sizes)

	_, err := NewPCMChunkReader(bytes.NewReader(nil), 100*time.Millisecond).Read(make([]byte, 10))
	require.Error(t, err)
	require.Equal(t, 4800, NewPCMChunkReader(nil, 100*time.Millisecond).ChunkLen())
}
