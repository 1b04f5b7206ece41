// Package render is the real-time side of playback. It drains due events from
// the sequencer queue, hands them to a synthesizer and produces PCM for
// Ebitengine/audio.
package render

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/zurustar/smfseq/pkg/sequencer"
	"github.com/zurustar/smfseq/pkg/synth"
)

// BlockFrames is the largest number of frames rendered per synth call.
const BlockFrames = 256

// BytesPerFrame is the size of one interleaved 16-bit stereo frame.
const BytesPerFrame = 4

// Stream implements io.Reader for Ebitengine/audio.
//
// Read is the deadline path. It never blocks, locks or allocates: it pops
// events whose timestamp has been reached, renders at most BlockFrames
// frames at a time into preallocated buffers and advances the sample clock.
// A block is split at the next pending event so that every event starts on
// its exact sample.
type Stream struct {
	queue *sequencer.EventQueue
	synth synth.Synth

	left  [BlockFrames]float32
	right [BlockFrames]float32

	clock      atomic.Uint64
	dispatched atomic.Uint64
	late       atomic.Uint64

	stopped      atomic.Bool
	panicPending atomic.Bool
}

// NewStream creates a stream that consumes q and plays through s.
// The sample clock starts at zero.
func NewStream(q *sequencer.EventQueue, s synth.Synth) *Stream {
	return &Stream{queue: q, synth: s}
}

// Read renders len(p)/BytesPerFrame frames of little-endian int16 stereo.
func (s *Stream) Read(p []byte) (int, error) {
	frames := len(p) / BytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	p = p[:frames*BytesPerFrame]

	if s.panicPending.Swap(false) {
		s.synth.Panic()
	}

	// Return silence once stopped
	if s.stopped.Load() {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	done := 0
	for done < frames {
		now := s.clock.Load()
		s.dispatchDue(now)

		n := frames - done
		if n > BlockFrames {
			n = BlockFrames
		}
		if ev, ok := s.queue.Peek(); ok && ev.AtSample < now+uint64(n) {
			if ev.AtSample <= now {
				// pushed after dispatchDue looked; dispatch it late
				continue
			}
			n = int(ev.AtSample - now)
		}

		left, right := s.left[:n], s.right[:n]
		s.synth.Render(left, right)
		out := p[done*BytesPerFrame:]
		for i := 0; i < n; i++ {
			l := int16(clamp(left[i], -1, 1) * 32767)
			r := int16(clamp(right[i], -1, 1) * 32767)
			binary.LittleEndian.PutUint16(out[i*BytesPerFrame:], uint16(l))
			binary.LittleEndian.PutUint16(out[i*BytesPerFrame+2:], uint16(r))
		}

		s.clock.Store(now + uint64(n))
		done += n
	}
	return len(p), nil
}

// dispatchDue forwards every queued event whose timestamp is at or before now.
func (s *Stream) dispatchDue(now uint64) {
	for {
		ev, ok := s.queue.Peek()
		if !ok || ev.AtSample > now {
			return
		}
		s.queue.Pop()
		if ev.AtSample < now {
			s.late.Add(1)
		}
		synth.Dispatch(s.synth, ev)
		s.dispatched.Add(1)
	}
}

// SampleClock returns the number of frames rendered so far.
// It is safe to call from any goroutine.
func (s *Stream) SampleClock() uint64 {
	return s.clock.Load()
}

// Dispatched returns the number of events handed to the synthesizer.
func (s *Stream) Dispatched() uint64 {
	return s.dispatched.Load()
}

// Late returns the number of events dispatched after their timestamp.
func (s *Stream) Late() uint64 {
	return s.late.Load()
}

// Panic asks the render goroutine to silence every voice before its next block.
func (s *Stream) Panic() {
	s.panicPending.Store(true)
}

// Stop silences the synthesizer and makes Read return silence from then on.
// The sample clock no longer advances.
func (s *Stream) Stop() {
	s.panicPending.Store(true)
	s.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (s *Stream) IsStopped() bool {
	return s.stopped.Load()
}

// clamp restricts a value to the range [min, max].
func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
