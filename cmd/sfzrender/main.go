// sfzrender plays a single WAV sample live through the default audio
// device, driven from the keyboard: each key in the middle QWERTY row
// triggers one note of a chromatic scale. It is a demonstration
// binary for the engine's real-time render path, not a full sampler
// front-end — the "instrument" is a single instrument.SingleSample
// region built in-process from the input WAV, since this module does
// not parse instrument text.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"

	"github.com/sfzvoice/sfzvoice/instrument"
	"github.com/sfzvoice/sfzvoice/internal/comb"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/synth"
	"github.com/sfzvoice/sfzvoice/wav"
)

var (
	flagWav     = flag.String("wav", "", "input WAV sample to play (required)")
	flagHz      = flag.Int("hz", 44100, "output hz")
	flagReverb  = flag.Bool("reverb", false, "apply the internal/comb reverb as a post-render effect")
	flagRoomSz  = flag.Float64("room-size", 0.5, "reverb room size, 0..1")
	flagDamping = flag.Float64("damping", 0.5, "reverb damping, 0..1")
	flagMix     = flag.Float64("mix", 0.3, "reverb wet/dry mix, 0..1")
)

const (
	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"
)

// keyNotes maps the middle QWERTY row to a one-octave chromatic scale
// starting at middle C, mirroring modplay's use of the keyboard for
// live transport control.
var keyNotes = map[rune]int{
	'a': 60, 'w': 61, 's': 62, 'e': 63, 'd': 64, 'f': 65,
	't': 66, 'g': 67, 'y': 68, 'h': 69, 'u': 70, 'j': 71, 'k': 72,
}

// evMu guards every call into s: the keyboard listener goroutine and
// the delayed note-off goroutines spawned by playNote both call
// AddEventNoteOn/AddEventNoteOff, while the portaudio callback calls
// Render on its own thread, and Synth leaves serializing that handoff
// to the caller.
var evMu sync.Mutex

func main() {
	log.SetFlags(0)
	log.SetPrefix("sfzrender: ")
	flag.Parse()

	if *flagWav == "" {
		log.Fatal("-wav is required")
	}

	store := sample.NewStore(wav.Decode, nil, 0)
	handle, err := store.Load(*flagWav, sample.PreloadSpec{TimeMS: 500})
	if err != nil {
		log.Fatal(err)
	}
	defer handle.Close()
	store.StartLoader()
	defer store.Close()

	s := synth.NewSynth(store, *flagHz, nil)
	s.SetLiveMode(true)
	s.Load([]*region.Region{instrument.SingleSample(handle, 60)})

	var rv *comb.StereoReverb
	if *flagReverb {
		rv = comb.NewStereoReverb(float32(*flagRoomSz), float32(*flagDamping), float32(*flagMix), *flagHz)
	}

	var left, right []float32

	streamCB := func(out []int16) {
		n := len(out) / 2
		if cap(left) < n {
			left = make([]float32, n)
			right = make([]float32, n)
		}
		left, right = left[:n], right[:n]
		evMu.Lock()
		s.Render(left, right)
		evMu.Unlock()
		if rv != nil {
			rv.Process(left, right)
		}
		for i := 0; i < n; i++ {
			out[i*2+0] = clampInt16(left[i])
			out[i*2+1] = clampInt16(right[i])
		}
	}

	if err := portaudio.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer portaudio.Terminate()

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(*flagHz), portaudio.FramesPerBufferUnspecified, streamCB)
	if err != nil {
		log.Fatal(err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		log.Fatal(err)
	}
	defer stream.Stop()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT)

	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Print(hideCursor)
	defer fmt.Print(showCursor)
	fmt.Println("sfzrender:", *flagWav)
	fmt.Println("play a scale on", cyan("a w s e d f t g y h u j k"), "- ctrl-c or esc to quit")

	done := make(chan struct{})
	go func() {
		keyboard.Listen(func(key keys.Key) (stop bool, err error) {
			if key.Code == keys.CtrlC || key.Code == keys.Escape {
				return true, nil
			}
			if key.Code == keys.RuneKey && len(key.Runes) > 0 {
				if note, ok := keyNotes[key.Runes[0]]; ok {
					playNote(s, note)
					fmt.Println(yellow(fmt.Sprintf("note %d", note)))
				}
			}
			return false, nil
		})
		close(done)
	}()

	select {
	case <-sigch:
	case <-done:
	}
}

// playNote fires a note-on immediately followed by a timed note-off,
// since the keyboard library reports key presses, not key-up events.
func playNote(s *synth.Synth, note int) {
	evMu.Lock()
	s.AddEventNoteOn(0, note, 100, 0)
	evMu.Unlock()
	go func() {
		time.Sleep(250 * time.Millisecond)
		evMu.Lock()
		s.AddEventNoteOff(0, note, 0, 0)
		evMu.Unlock()
	}()
}

func clampInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
