package audio

import (
	"fmt"
	"io"
	"time"
)

// ChunkReader re-slices a byte stream into fixed-size chunks. Only the last
// chunk before io.EOF may be shorter.
type ChunkReader struct {
	r         io.Reader
	buf       []byte
	chunkSize int
	eof       bool
}

func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	return &ChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
	}
}

// ChunkSize returns the number of bytes for the given duration of mono audio.
func ChunkSize(sampleRate int, d time.Duration, bytesPerSample int) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample
}

// NewPCMChunkReader chunks 24 kHz PCM16 audio into pieces of the given
// duration.
func NewPCMChunkReader(r io.Reader, d time.Duration) *ChunkReader {
	return NewChunkReader(r, ChunkSize(24_000, d, 2))
}

func (c *ChunkReader) ChunkLen() int { return c.chunkSize }

func (c *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < c.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", c.chunkSize)
	}

	tmp := make([]byte, c.chunkSize)
	for len(c.buf) < c.chunkSize && !c.eof {
		n, err := c.r.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(c.buf) == 0 && c.eof {
		return 0, io.EOF
	}

	n := min(c.chunkSize, len(c.buf))
	copy(p, c.buf[:n])
	c.buf = c.buf[n:]

	return n, nil
}
