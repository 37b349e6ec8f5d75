// sfzdump prints the decoded metadata of a WAV sample and, optionally,
// runs a quick note-on/note-off smoke test through the voice engine
// against it. It exists for the same reason moddump exists for mod
// files: a minimal way to see what the loader actually extracted
// without reaching for a render tool.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sfzvoice/sfzvoice/instrument"
	"github.com/sfzvoice/sfzvoice/region"
	"github.com/sfzvoice/sfzvoice/sample"
	"github.com/sfzvoice/sfzvoice/synth"
	"github.com/sfzvoice/sfzvoice/wav"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("sfzdump: ")

	probe := flag.Bool("probe", false, "render a single note through the engine and report voice activity")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: sfzdump [-probe] <file.wav>")
	}
	path := flag.Arg(0)

	store := sample.NewStore(wav.Decode, nil, 0)
	handle, err := store.Load(path, sample.PreloadSpec{TimeMS: 500})
	if err != nil {
		log.Fatal(err)
	}
	defer handle.Close()

	e := handle.Entry()
	fmt.Printf("file:        %s\n", e.Filename)
	fmt.Printf("channels:    %d\n", e.Channels)
	fmt.Printf("sample rate: %d\n", e.SampleRate)
	fmt.Printf("frames:      %d\n", e.NumFrames)
	if e.LoopStart >= 0 {
		fmt.Printf("loop:        %d..%d\n", e.LoopStart, e.LoopEnd)
	} else {
		fmt.Printf("loop:        none\n")
	}

	if !*probe {
		return
	}

	s := synth.NewSynth(store, e.SampleRate, nil)
	s.Load([]*region.Region{instrument.SingleSample(handle, 60)})

	s.AddEventNoteOn(0, 60, 100, 0)
	left := make([]float32, 512)
	right := make([]float32, 512)
	s.Render(left, right)
	fmt.Printf("active voices after note-on + one 512-frame block: %d\n", s.ActiveVoiceCount())

	s.AddEventNoteOff(0, 60, 0, 0)
	s.Render(left, right)
	fmt.Printf("active voices after note-off + one more block:     %d\n", s.ActiveVoiceCount())
}
