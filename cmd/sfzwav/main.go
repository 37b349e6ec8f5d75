// sfzwav renders a short note sequence against a single WAV sample to
// an output WAV file, offline (no audio device involved). It is a
// demonstration binary, not a general-purpose instrument renderer:
// the "instrument" is a single instrument.SingleSample region built
// in-process from the input WAV, since this module does not parse
// instrument text.
package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sfzvoice/sfzvoice/instrument"
	"github.com/sfzvoice/sfzvoice/internal/comb"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/synth"
	"github.com/sfzvoice/sfzvoice/wav"
)

const outputHz = 44100

func main() {
	log.SetFlags(0)
	log.SetPrefix("sfzwav: ")

	var (
		wavIn   = flag.String("wav", "", "input WAV sample to play (required)")
		wavOut  = flag.String("out", "", "output WAV file path (required)")
		notes   = flag.String("notes", "60,64,67,72", "comma-separated MIDI note numbers to play in sequence")
		noteMS  = flag.Int("note-ms", 500, "milliseconds of sound generated per note before its note-off")
		tailMS  = flag.Int("tail-ms", 1000, "milliseconds of release tail rendered after the last note-off")
		reverb  = flag.Bool("reverb", false, "apply the internal/comb reverb as a post-render effect")
		roomSz  = flag.Float64("room-size", 0.5, "reverb room size, 0..1")
		damping = flag.Float64("damping", 0.5, "reverb damping, 0..1")
		mix     = flag.Float64("mix", 0.3, "reverb wet/dry mix, 0..1")
	)
	flag.Parse()

	if *wavIn == "" || *wavOut == "" {
		log.Fatal("both -wav and -out are required")
	}

	keys, err := parseNotes(*notes)
	if err != nil {
		log.Fatal(err)
	}

	store := sample.NewStore(wav.Decode, nil, 0)
	handle, err := store.Load(*wavIn, sample.PreloadSpec{TimeMS: 500})
	if err != nil {
		log.Fatal(err)
	}
	defer handle.Close()

	s := synth.NewSynth(store, outputHz, nil)
	s.Load([]*region.Region{instrument.SingleSample(handle, 60)})

	noteFrames := outputHz * *noteMS / 1000
	tailFrames := outputHz * *tailMS / 1000
	blockSize := 512

	outF, err := os.Create(*wavOut)
	if err != nil {
		log.Fatal(err)
	}
	defer outF.Close()

	writer, err := wav.NewWriter(outF, outputHz, 2)
	if err != nil {
		log.Fatal(err)
	}

	var rv *comb.StereoReverb
	if *reverb {
		rv = comb.NewStereoReverb(float32(*roomSz), float32(*damping), float32(*mix), outputHz)
	}

	left := make([]float32, blockSize)
	right := make([]float32, blockSize)

	renderBlock := func(frames int) {
		for frames > 0 {
			n := blockSize
			if n > frames {
				n = frames
			}
			s.Render(left[:n], right[:n])
			if rv != nil {
				rv.Process(left[:n], right[:n])
			}
			if err := writer.WriteFrame([][]float32{left[:n], right[:n]}); err != nil {
				log.Fatal(err)
			}
			frames -= n
		}
	}

	for _, key := range keys {
		s.AddEventNoteOn(0, key, 100, 0)
		renderBlock(noteFrames)
		s.AddEventNoteOff(0, key, 0, 0)
	}
	renderBlock(tailFrames)

	if _, err := writer.Finish(); err != nil {
		log.Fatal(err)
	}
}

func parseNotes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	keys := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		keys = append(keys, n)
	}
	return keys, nil
}
