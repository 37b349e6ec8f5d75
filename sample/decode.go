package sample

// Frames is the decoded form of an audio file: interleaved
// channel-major float32 PCM plus the metadata needed to drive looping
// and pitch. Decoding an audio file format is explicitly out of this
// module's scope (spec.md 1); callers supply a Decoder that produces
// this already-decoded shape.
type Frames struct {
	Channels   int
	SampleRate int
	// Data holds Channels*NumFrames interleaved float32 samples.
	Data []float32
	// LoopStart/LoopEnd are frame indices from the file's own loop
	// metadata, or -1/-1 if the file declares none.
	LoopStart, LoopEnd int
}

// NumFrames returns the number of frames (not samples) in f.
func (f *Frames) NumFrames() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / f.Channels
}

// Decoder decodes an audio file at path into PCM frames. Store.Load
// calls this synchronously on the control thread; the result is then
// cut into segments for streaming by the background loader.
type Decoder func(path string) (*Frames, error)
