package synth

import (
	"fmt"
	"sync"
)

// Call is one method invocation seen by a Recorder.
type Call struct {
	Method  string
	Channel uint8
	Data1   uint8
	Data2   uint8

	// Frame is the number of frames rendered before the call.
	Frame uint64
}

func (c Call) String() string {
	return fmt.Sprintf("%d:%s(%d,%d,%d)", c.Frame, c.Method, c.Channel, c.Data1, c.Data2)
}

// Recorder is a silent Synth that records what it is asked to do.
// It is used for offline checks of the scheduling path.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	frames uint64
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(method string, ch, d1, d2 uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Channel: ch, Data1: d1, Data2: d2, Frame: r.frames})
}

func (r *Recorder) NoteOn(channel, key, velocity uint8) {
	r.record("NoteOn", channel, key, velocity)
}

func (r *Recorder) NoteOff(channel, key uint8) {
	r.record("NoteOff", channel, key, 0)
}

func (r *Recorder) ProgramChange(channel, program uint8) {
	r.record("ProgramChange", channel, program, 0)
}

func (r *Recorder) AllNotesOff(channel uint8) {
	r.record("AllNotesOff", channel, 0, 0)
}

func (r *Recorder) Panic() {
	r.record("Panic", 0, 0, 0)
}

// Render writes silence and advances the frame counter.
func (r *Recorder) Render(left, right []float32) {
	for i := range left {
		left[i] = 0
	}
	for i := range right {
		right[i] = 0
	}
	r.mu.Lock()
	r.frames += uint64(len(left))
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Frames returns the number of frames rendered so far.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
