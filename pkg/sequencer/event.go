// Package sequencer turns a Standard MIDI File into a single stream of
// sample-stamped events for a real-time render stage.
//
// Decoding and merging run on a non-deadline goroutine (see Player.Pump).
// The only structure shared with the render goroutine is EventQueue.
package sequencer

import "fmt"

// EventKind identifies the musical action carried by an Event.
type EventKind uint8

const (
	// NoteOn starts a note. Data1 is the key, Data2 the velocity (1-127).
	NoteOn EventKind = iota

	// NoteOff releases a note. Data1 is the key.
	NoteOff

	// ProgramChange selects an instrument. Data1 is the program number.
	ProgramChange

	// AllNotesOff releases every sounding note on the channel.
	AllNotesOff
)

// String returns the name of the event kind.
func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "NoteOn"
	case NoteOff:
		return "NoteOff"
	case ProgramChange:
		return "ProgramChange"
	case AllNotesOff:
		return "AllNotesOff"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is a fixed-size, timestamped musical event.
// Values are copied by value through the queue and never mutated afterwards.
type Event struct {
	// AtSample is the absolute sample index at which the event is due.
	AtSample uint64

	Kind    EventKind
	Channel uint8 // 0-15
	Data1   uint8 // note or program number
	Data2   uint8 // velocity; unused for ProgramChange and AllNotesOff
}

// String formats the event for logs and test failures.
func (e Event) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("%d:%s(ch=%d key=%d vel=%d)", e.AtSample, e.Kind, e.Channel, e.Data1, e.Data2)
	case NoteOff:
		return fmt.Sprintf("%d:%s(ch=%d key=%d)", e.AtSample, e.Kind, e.Channel, e.Data1)
	case ProgramChange:
		return fmt.Sprintf("%d:%s(ch=%d program=%d)", e.AtSample, e.Kind, e.Channel, e.Data1)
	default:
		return fmt.Sprintf("%d:%s(ch=%d)", e.AtSample, e.Kind, e.Channel)
	}
}
