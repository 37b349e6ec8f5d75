// Package wav implements a minimal streaming WAVE writer and a
// whole-file reader, doubling as the module's one built-in
// sample.Decoder (spec.md 1 excludes general audio decoding from
// scope; this package covers just the one format the project ships
// support for).
//
// See http://soundfile.sapp.org/doc/WaveFormat/ for format
// documentation.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sfzvoice/sfzvoice/sample"
)

const (
	formatPCM   = 1
	formatFloat = 3
)

// Writer streams interleaved PCM frames to ws, patching the RIFF/data
// chunk sizes in Finish once the total length is known.
type Writer struct {
	ws       io.WriteSeeker
	channels int
}

type chunkFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// NewWriter writes the RIFF/WAVE/fmt header for a 16-bit PCM stream
// with the given channel count and sample rate, leaving the size
// fields to be patched by Finish.
func NewWriter(ws io.WriteSeeker, sampleRate, channels int) (*Writer, error) {
	w := &Writer{ws: ws, channels: channels}

	if _, err := ws.Write([]byte("RIFF")); err != nil {
		return nil, err
	}
	if err := binary.Write(ws, binary.LittleEndian, int32(0)); err != nil {
		return nil, err
	}
	if _, err := ws.Write([]byte("WAVE")); err != nil {
		return nil, err
	}
	if _, err := ws.Write([]byte("fmt ")); err != nil {
		return nil, err
	}
	if err := binary.Write(ws, binary.LittleEndian, int32(16)); err != nil {
		return nil, err
	}
	format := chunkFormat{AudioFormat: formatPCM, Channels: uint16(channels), SampleRate: uint32(sampleRate), BitsPerSample: 16}
	format.ByteRate = uint32(sampleRate) * uint32(channels) * 2
	format.BlockAlign = uint16(channels) * 2
	if err := binary.Write(ws, binary.LittleEndian, format); err != nil {
		return nil, err
	}
	if _, err := ws.Write([]byte("data")); err != nil {
		return nil, err
	}
	if err := binary.Write(ws, binary.LittleEndian, int32(0)); err != nil {
		return nil, err
	}
	return w, nil
}

func clampToInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// WriteFrame writes interleaved frames from channel-major buffers
// (samples[c][i]), converting the engine's float32 render output to
// 16-bit PCM.
func (w *Writer) WriteFrame(samples [][]float32) error {
	if len(samples) != w.channels {
		return fmt.Errorf("wav: WriteFrame got %d channels, writer has %d", len(samples), w.channels)
	}
	n := len(samples[0])
	frame := make([]int16, w.channels)
	for i := 0; i < n; i++ {
		for c := 0; c < w.channels; c++ {
			frame[c] = clampToInt16(samples[c][i])
		}
		if err := binary.Write(w.ws, binary.LittleEndian, frame); err != nil {
			return err
		}
	}
	return nil
}

// Finish patches the RIFF and data chunk sizes now that the total
// frame count is known.
func (w *Writer) Finish() (int64, error) {
	wlen, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	if _, err := w.ws.Seek(4, io.SeekStart); err != nil {
		return 0, err
	}
	if err := binary.Write(w.ws, binary.LittleEndian, int32(wlen-8)); err != nil {
		return 0, err
	}
	if _, err := w.ws.Seek(40, io.SeekStart); err != nil {
		return 0, err
	}
	if err := binary.Write(w.ws, binary.LittleEndian, int32(wlen-44)); err != nil {
		return 0, err
	}
	return wlen, nil
}

// riffChunk is one top-level RIFF sub-chunk header.
type riffChunk struct {
	ID   [4]byte
	Size uint32
}

// Decode reads a PCM or IEEE-float WAVE file into sample.Frames,
// including loop points from an optional "smpl" chunk. It implements
// sample.Decoder.
func Decode(path string) (*sample.Frames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var riffHdr [12]byte
	if _, err := io.ReadFull(f, riffHdr[:]); err != nil {
		return nil, fmt.Errorf("wav: reading RIFF header: %w", err)
	}
	if string(riffHdr[0:4]) != "RIFF" || string(riffHdr[8:12]) != "WAVE" {
		return nil, fmt.Errorf("wav: %q is not a RIFF/WAVE file", path)
	}

	var format chunkFormat
	var data []byte
	loopStart, loopEnd := -1, -1

	for {
		var ch riffChunk
		if err := binary.Read(f, binary.LittleEndian, &ch); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("wav: reading chunk header: %w", err)
		}
		id := string(ch.ID[:])
		body := make([]byte, ch.Size)
		if _, err := io.ReadFull(f, body); err != nil {
			return nil, fmt.Errorf("wav: reading %q chunk: %w", id, err)
		}
		if ch.Size%2 == 1 {
			var pad [1]byte
			io.ReadFull(f, pad[:])
		}

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short")
			}
			format.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			format.Channels = binary.LittleEndian.Uint16(body[2:4])
			format.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			format.ByteRate = binary.LittleEndian.Uint32(body[8:12])
			format.BlockAlign = binary.LittleEndian.Uint16(body[12:14])
			format.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			data = body
		case "smpl":
			loopStart, loopEnd = parseSmplChunk(body)
		}
	}

	if format.Channels == 0 || len(data) == 0 {
		return nil, fmt.Errorf("wav: %q missing fmt or data chunk", path)
	}

	pcm, err := decodeSamples(data, format)
	if err != nil {
		return nil, err
	}

	return &sample.Frames{
		Channels:   int(format.Channels),
		SampleRate: int(format.SampleRate),
		Data:       pcm,
		LoopStart:  loopStart,
		LoopEnd:    loopEnd,
	}, nil
}

func decodeSamples(data []byte, format chunkFormat) ([]float32, error) {
	switch {
	case format.AudioFormat == formatPCM && format.BitsPerSample == 16:
		n := len(data) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(v) / 32768
		}
		return out, nil
	case format.AudioFormat == formatPCM && format.BitsPerSample == 24:
		n := len(data) / 3
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			b := data[i*3 : i*3+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			out[i] = float32(v) / 8388608
		}
		return out, nil
	case format.AudioFormat == formatPCM && format.BitsPerSample == 32:
		n := len(data) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(v) / 2147483648
		}
		return out, nil
	case format.AudioFormat == formatFloat && format.BitsPerSample == 32:
		n := len(data) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wav: unsupported format %d/%d-bit", format.AudioFormat, format.BitsPerSample)
	}
}

// parseSmplChunk extracts the first loop's start/end frame from a
// standard "smpl" chunk, returning -1, -1 if it declares no loops.
func parseSmplChunk(body []byte) (start, end int) {
	const fixedHeaderLen = 36
	if len(body) < fixedHeaderLen+4 {
		return -1, -1
	}
	numLoops := binary.LittleEndian.Uint32(body[28:32])
	if numLoops == 0 {
		return -1, -1
	}
	const loopRecordLen = 24
	loopOff := fixedHeaderLen
	if len(body) < loopOff+loopRecordLen {
		return -1, -1
	}
	start = int(binary.LittleEndian.Uint32(body[loopOff+8 : loopOff+12]))
	end = int(binary.LittleEndian.Uint32(body[loopOff+12 : loopOff+16]))
	return start, end
}
