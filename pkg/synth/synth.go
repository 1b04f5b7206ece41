// Package synth is the synthesis side of the sequencer: it turns scheduled
// events into audio.
package synth

import "github.com/zurustar/smfseq/pkg/sequencer"

// DefaultVoices is the polyphony used when none is configured.
const DefaultVoices = 16

// PercussionChannel is the zero-based General MIDI drum channel (channel 10).
const PercussionChannel = 9

// Synth receives events from the render stage and produces stereo samples.
// Every method is called from the render goroutine only.
type Synth interface {
	NoteOn(channel, key, velocity uint8)
	NoteOff(channel, key uint8)
	ProgramChange(channel, program uint8)
	AllNotesOff(channel uint8)

	// Render fills left and right, which have equal length.
	Render(left, right []float32)

	// Panic silences every voice on every channel immediately.
	Panic()
}

// Dispatch forwards ev to s.
func Dispatch(s Synth, ev sequencer.Event) {
	switch ev.Kind {
	case sequencer.NoteOn:
		s.NoteOn(ev.Channel, ev.Data1, ev.Data2)
	case sequencer.NoteOff:
		s.NoteOff(ev.Channel, ev.Data1)
	case sequencer.ProgramChange:
		s.ProgramChange(ev.Channel, ev.Data1)
	case sequencer.AllNotesOff:
		s.AllNotesOff(ev.Channel)
	}
}
