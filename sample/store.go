// Package sample implements the sample store (C1), background loader
// (C2), and play-handle (C3) described in spec.md 3-4.1-4.2, grounded
// on original_source/lib/samplecache.hh.
//
// Segments are fixed-size interleaved-frame slices with a small
// pre-overlap copied from the tail of the previous segment, so an
// interpolator never needs to special-case a segment boundary.
// Segment storage uses atomic.Pointer rather than the original's
// manually reference-counted blocks: Go's garbage collector already
// keeps a slice reachable for as long as any goroutine holds a
// reference to it, which is exactly the property manual refcounting
// exists to provide in a non-GC'd language (recorded in SPEC_FULL.md
// section 3 and DESIGN.md).
package sample

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/charmbracelet/log"
)

// SegmentFrames and OverlapFrames size the fixed-size streaming
// segments (spec.md 3's recommended S=1000, O=64).
const (
	SegmentFrames = 1000
	OverlapFrames = 64
)

// loaderPollInterval is how often the background loader wakes to scan
// for work (spec.md 5).
const loaderPollInterval = 20 * time.Millisecond

// prefetchSegments is how many segments beyond a handle's
// max-touched-index the loader keeps resident ahead of playback.
const prefetchSegments = 20

// Entry is the sample store's per-file bookkeeping record: immutable
// metadata plus the segment array and its atomics.
type Entry struct {
	Filename   string
	Channels   int
	SampleRate int
	NumFrames  int
	LoopStart  int // -1 if the file declares no loop
	LoopEnd    int

	frames *Frames // retained so the loader can re-slice segments

	segments        []atomic.Pointer[[]float32]
	maxTouchedIndex atomic.Int64
	playbackCount   atomic.Int32
	preloadFrame    atomic.Int64
	preloadRefs     atomic.Int32
}

func (e *Entry) numSegments() int {
	n := e.NumFrames / SegmentFrames
	if e.NumFrames%SegmentFrames != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Entry) preloadSegmentCount() int {
	if e.preloadRefs.Load() == 0 {
		return 0
	}
	frame := e.preloadFrame.Load()
	count := int(frame)/SegmentFrames + 1
	if count > e.numSegments() {
		count = e.numSegments()
	}
	return count
}

// populateSegment decodes segment idx from the retained Frames buffer
// into the atomic slot, including its pre-overlap.
func (e *Entry) populateSegment(idx int) {
	start := idx * SegmentFrames
	end := start + SegmentFrames
	if end > e.NumFrames {
		end = e.NumFrames
	}
	overlapStart := start - OverlapFrames
	padFrames := 0
	if overlapStart < 0 {
		padFrames = -overlapStart
		overlapStart = 0
	}

	ch := e.Channels
	buf := make([]float32, padFrames*ch+(end-overlapStart)*ch)
	copy(buf[padFrames*ch:], e.frames.Data[overlapStart*ch:end*ch])

	e.segments[idx].Store(&buf)
}

// Handle is the opaque reference a region holds into the sample
// store (spec.md 3's SampleRef / PreloadRef combined): it keeps the
// Entry reachable and records one preload reservation.
type Handle struct {
	entry    *Entry
	store    *Store
	closed   atomic.Bool
}

// Entry exposes the underlying cache entry for use by a PlayHandle.
func (h *Handle) Entry() *Entry { return h.entry }

// Close releases this handle's preload reservation. It does not evict
// the sample; eviction is driven by playback_count reaching zero.
func (h *Handle) Close() {
	if h.closed.CompareAndSwap(false, true) {
		h.entry.preloadRefs.Add(-1)
	}
}

// Store is the sample cache (C1) plus its background loader (C2). A
// Store is an explicit constructor-injected handle, never a package
// global (spec.md 9's re-architecture note): callers share one Store
// across synth instances to reproduce the original's one-loader-per-
// process behavior, or construct one per synth for isolation.
type Store struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[Entry]

	decode Decoder
	logger *log.Logger

	maxBytes  int64
	usedBytes atomic.Int64

	quit     chan struct{}
	loopDone chan struct{}
	started  atomic.Bool
}

// NewStore constructs a Store using decode to load files on demand.
// If logger is nil, log output is discarded. maxBytes is recorded on
// the Store but no byte-budget reclamation pass reads it: segments are
// reclaimed by the playback-count rule alone, whatever its value.
func NewStore(decode Decoder, logger *log.Logger, maxBytes int64) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Store{
		entries:  make(map[string]weak.Pointer[Entry]),
		decode:   decode,
		logger:   logger,
		maxBytes: maxBytes,
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	return s
}

// StartLoader launches the background loader goroutine. Safe to call
// at most once per Store.
func (s *Store) StartLoader() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.backgroundLoader()
}

// Close stops the background loader goroutine and waits for it to
// exit.
func (s *Store) Close() {
	if s.started.Load() {
		close(s.quit)
		<-s.loopDone
	}
}

// PreloadSpec is one region's preload reservation: how many frames
// from the start of the sample must stay resident.
type PreloadSpec struct {
	TimeMS int
	Offset int
}

// Load opens path (via the Store's Decoder) and returns a Handle plus
// its preload reservation. Repeated Load calls for the same path
// return the same underlying Entry with a new reservation. A decode
// failure returns a non-nil error and no Handle; callers should drop
// the region per spec.md 7.
func (s *Store) Load(path string, preload PreloadSpec) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry *Entry
	if wp, ok := s.entries[path]; ok {
		entry = wp.Value()
	}

	if entry == nil {
		frames, err := s.decode(path)
		if err != nil {
			s.logger.Error("sample load failed", "path", path, "err", err)
			return nil, fmt.Errorf("sample: decode %q: %w", path, err)
		}
		entry = &Entry{
			Filename:   path,
			Channels:   frames.Channels,
			SampleRate: frames.SampleRate,
			NumFrames:  frames.NumFrames(),
			LoopStart:  frames.LoopStart,
			LoopEnd:    frames.LoopEnd,
			frames:     frames,
		}
		entry.segments = make([]atomic.Pointer[[]float32], entry.numSegments())
		s.entries[path] = weak.Make(entry)
		s.usedBytes.Add(int64(len(frames.Data)) * 4)
	}

	reserveFrame := int64(preload.TimeMS)*int64(entry.SampleRate)/1000 + int64(preload.Offset)
	for {
		cur := entry.preloadFrame.Load()
		if reserveFrame <= cur {
			break
		}
		if entry.preloadFrame.CompareAndSwap(cur, reserveFrame) {
			break
		}
	}
	entry.preloadRefs.Add(1)

	// Synchronously load the preload prefix (spec.md 4.1).
	prefix := entry.preloadSegmentCount()
	for i := 0; i < prefix; i++ {
		if entry.segments[i].Load() == nil {
			entry.populateSegment(i)
		}
	}

	return &Handle{entry: entry, store: s}, nil
}

// OpenPlayback returns a new PlayHandle (C3) over h's entry,
// incrementing the entry's playback count.
func (s *Store) OpenPlayback(h *Handle, liveMode bool) *PlayHandle {
	h.entry.playbackCount.Add(1)
	return &PlayHandle{entry: h.entry, store: s, liveMode: liveMode}
}

func (s *Store) backgroundLoader() {
	ticker := time.NewTicker(loaderPollInterval)
	defer ticker.Stop()
	defer close(s.loopDone)

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.loadPass()
		}
	}
}

// loadPass is one iteration of the loader's 20ms poll: fill segments
// touched by live playback, then shrink entries with zero playback
// count back down to their preload prefix.
func (s *Store) loadPass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, wp := range s.entries {
		e := wp.Value()
		if e == nil {
			delete(s.entries, path)
			continue
		}

		if e.playbackCount.Load() > 0 {
			maxTouched := int(e.maxTouchedIndex.Load())
			want := maxTouched + prefetchSegments
			if n := e.numSegments() - 1; want > n {
				want = n
			}
			for i := 0; i <= want; i++ {
				if e.segments[i].Load() == nil {
					e.populateSegment(i)
				}
			}
		} else {
			prefix := e.preloadSegmentCount()
			for i := prefix; i < e.numSegments(); i++ {
				if e.segments[i].Load() != nil {
					e.segments[i].Store(nil)
				}
			}
		}
	}
}
