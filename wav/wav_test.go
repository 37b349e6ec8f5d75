package wav

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type memWriteSeeker struct {
	data []byte
	pos  int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	n := copy(m.data[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	ws := &memWriteSeeker{}
	w, err := NewWriter(ws, 44100, 2)
	require.NoError(t, err)

	left := []float32{0, 0.5, -0.5, 1}
	right := []float32{0, -0.5, 0.5, -1}
	require.NoError(t, w.WriteFrame([][]float32{left, right}))
	_, err = w.Finish()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(path, ws.data, 0o644))

	frames, err := Decode(path)
	require.NoError(t, err)
	require.Equal(t, 2, frames.Channels)
	require.Equal(t, 44100, frames.SampleRate)
	require.Equal(t, 4, frames.NumFrames())
	require.InDelta(t, 1.0, frames.Data[6], 0.01) // last left sample, clamped to +1
}

func TestParseSmplChunkWithNoLoops(t *testing.T) {
	start, end := parseSmplChunk(make([]byte, 36))
	require.Equal(t, -1, start)
	require.Equal(t, -1, end)
}
