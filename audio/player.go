package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/codewandler/realtime-go/events"
)

var ErrPlayerOverflow = errors.New("playback buffer full")

// Position is how much of one assistant audio part was handed to the speaker.
type Position struct {
	ItemID       string
	ContentIndex int
	PlayedBytes  int
	PlayedMS     int
}

type segment struct {
	itemID       string
	contentIndex int
	remaining    int
}

// Player buffers decoded output audio for playback and tracks how much of
// each item was actually read by the speaker, which is the offset barge-in
// truncates at.
type Player struct {
	buf    *ringbuffer.RingBuffer
	format *events.AudioFormat

	mu       sync.Mutex
	segments []segment
	last     Position
}

// NewPlayer returns a player holding up to capacity of audio in the given
// format. A nil format means 24 kHz PCM16.
func NewPlayer(format *events.AudioFormat, capacity time.Duration) *Player {
	if format == nil {
		format = events.PCM24k()
	}
	size := int(capacity.Milliseconds()) * format.BytesPerMS()
	return &Player{
		buf:    ringbuffer.New(size).SetBlocking(true),
		format: format,
	}
}

// Write queues audio of the given item part. It never blocks; audio that does
// not fit is dropped and ErrPlayerOverflow returned.
func (p *Player) Write(itemID string, contentIndex int, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.buf.TryWrite(data)
	if n > 0 {
		if k := len(p.segments); k > 0 && p.segments[k-1].itemID == itemID && p.segments[k-1].contentIndex == contentIndex {
			p.segments[k-1].remaining += n
		} else {
			p.segments = append(p.segments, segment{itemID: itemID, contentIndex: contentIndex, remaining: n})
		}
	}
	if n < len(data) {
		return n, ErrPlayerOverflow
	}
	return n, err
}

// Read blocks until audio is available and reads it for playback. After
// Close it returns io.EOF once drained.
func (p *Player) Read(b []byte) (int, error) {
	n, err := p.buf.Read(b)
	if n > 0 {
		p.consume(n)
	}
	return n, err
}

func (p *Player) consume(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n > 0 && len(p.segments) > 0 {
		s := &p.segments[0]
		take := min(n, s.remaining)
		if p.last.ItemID != s.itemID || p.last.ContentIndex != s.contentIndex {
			p.last = Position{ItemID: s.itemID, ContentIndex: s.contentIndex}
		}
		p.last.PlayedBytes += take
		p.last.PlayedMS = p.last.PlayedBytes / p.format.BytesPerMS()
		s.remaining -= take
		n -= take
		if s.remaining == 0 {
			p.segments = p.segments[1:]
		}
	}
}

// Position returns the played position of the part currently or last played.
func (p *Player) Position() (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.last.ItemID != ""
}

// Buffered returns the number of bytes queued but not yet played.
func (p *Player) Buffered() int {
	return p.buf.Length()
}

// Reset discards queued audio and returns the position playback stopped at.
func (p *Player) Reset() (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Reset()
	p.segments = nil
	pos := p.last
	p.last = Position{}
	return pos, pos.ItemID != ""
}

// Close stops accepting audio; readers drain what is queued.
func (p *Player) Close() error {
	p.buf.CloseWriter()
	return nil
}

var _ io.Reader = (*Player)(nil)
