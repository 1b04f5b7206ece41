package sequencer

import (
	"errors"
	"fmt"
	"io"
)

// Track decode failures. They finish the affected track only and are never
// returned from Pump; see Player.TrackErrors.
var (
	// ErrTruncatedTrack is recorded when a track ends in the middle of an event.
	ErrTruncatedTrack = errors.New("truncated track data")

	// ErrBadVarLen is recorded when a variable-length quantity exceeds four bytes.
	ErrBadVarLen = errors.New("malformed variable-length quantity")

	// ErrNoRunningStatus is recorded when a data byte appears before any status byte.
	ErrNoRunningStatus = errors.New("data byte without running status")
)

const (
	statusMeta      = 0xFF
	statusSysEx     = 0xF0
	statusSysExCont = 0xF7

	metaEndOfTrack = 0x2F
	metaSetTempo   = 0x51
	metaTrackName  = 0x03

	ccAllNotesOff = 0x7B

	// maxVarLenBytes is the longest variable-length quantity SMF allows.
	maxVarLenBytes = 4

	// trackWindowSize is how many bytes of a track are fetched per storage read.
	trackWindowSize = 256
)

// TrackState is the decode state of one track chunk.
// It is owned by the Player and mutated only by the decoder.
type TrackState struct {
	start  int64  // file offset of the first event byte
	length uint32 // chunk length in bytes

	pos       int64 // file offset of the next unread byte
	remaining uint32
	running   byte

	// sampleFrac carries the sub-sample remainder between tick conversions
	// so rounding error never accumulates past one sample.
	sampleFrac   float64
	sampleOffset uint64

	finished bool
	err      error

	next    Event
	hasNext bool

	// window holds bytes [winStart, winStart+winLen) of the file during a
	// single decode pass. It is empty between passes.
	window   [trackWindowSize]byte
	winStart int64
	winLen   int
}

// reset rewinds the track to the beginning of its chunk.
func (t *TrackState) reset() {
	t.pos = t.start
	t.remaining = t.length
	t.running = 0
	t.sampleFrac = 0
	t.sampleOffset = 0
	t.finished = false
	t.err = nil
	t.next = Event{}
	t.hasNext = false
	t.winLen = 0
}

// Remaining returns the number of unread bytes in the chunk.
func (t *TrackState) Remaining() uint32 { return t.remaining }

// Finished reports whether the track will produce no more events.
func (t *TrackState) Finished() bool { return t.finished }

// Err returns the decode failure that finished the track, if any.
func (t *TrackState) Err() error { return t.err }

func (t *TrackState) fail(err error) {
	t.finished = true
	if t.err == nil {
		t.err = err
	}
}

// fill loads the window starting at pos.
func (t *TrackState) fill(src io.ReadSeeker) error {
	if _, err := src.Seek(t.pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", t.pos, err)
	}
	want := len(t.window)
	if int64(t.remaining) < int64(want) {
		want = int(t.remaining)
	}
	n, err := io.ReadAtLeast(src, t.window[:want], 1)
	if n == 0 {
		t.winLen = 0
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedTrack
		}
		return fmt.Errorf("read at %d: %w", t.pos, err)
	}
	t.winStart = t.pos
	t.winLen = n
	return nil
}

func (t *TrackState) readByte(src io.ReadSeeker) (byte, error) {
	if t.remaining == 0 {
		return 0, ErrTruncatedTrack
	}
	off := t.pos - t.winStart
	if t.winLen == 0 || off < 0 || off >= int64(t.winLen) {
		if err := t.fill(src); err != nil {
			return 0, err
		}
		off = 0
	}
	b := t.window[off]
	t.pos++
	t.remaining--
	return b, nil
}

func (t *TrackState) readVarLen(src io.ReadSeeker) (uint32, error) {
	var value uint32
	for i := 0; i < maxVarLenBytes; i++ {
		b, err := t.readByte(src)
		if err != nil {
			return 0, err
		}
		value = value<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return value, nil
		}
	}
	return 0, ErrBadVarLen
}

// skip advances past n bytes without reading them.
func (t *TrackState) skip(n uint32) error {
	if n > t.remaining {
		t.pos += int64(t.remaining)
		t.remaining = 0
		return ErrTruncatedTrack
	}
	t.pos += int64(n)
	t.remaining -= n
	return nil
}

// decodeNext decodes events from trk until one is produced or the track
// finishes. Set-tempo meta events update tb in place, so the new rate applies
// to every delta decoded afterwards on any track.
// The read window only lives for one pass; the next pass reads storage again.
func decodeNext(src io.ReadSeeker, trk *TrackState, tb *timebase) (Event, bool) {
	ev, ok := decodeEvent(src, trk, tb)
	trk.winLen = 0
	return ev, ok
}

func decodeEvent(src io.ReadSeeker, trk *TrackState, tb *timebase) (Event, bool) {
	if trk.finished {
		return Event{}, false
	}
	for {
		if trk.remaining == 0 {
			trk.finished = true
			return Event{}, false
		}

		delta, err := trk.readVarLen(src)
		if err != nil {
			trk.fail(err)
			return Event{}, false
		}
		at := trk.advance(delta, tb)

		status, err := trk.readByte(src)
		if err != nil {
			trk.fail(err)
			return Event{}, false
		}

		switch status {
		case statusMeta:
			ev, emitted, err := decodeMeta(src, trk, tb, at)
			if err != nil {
				trk.fail(err)
				return Event{}, false
			}
			if emitted {
				return ev, true
			}
			continue

		case statusSysEx, statusSysExCont:
			n, err := trk.readVarLen(src)
			if err == nil {
				err = trk.skip(n)
			}
			if err != nil {
				trk.fail(err)
				return Event{}, false
			}
			continue
		}

		ev, emitted, err := decodeChannel(src, trk, status, at)
		if err != nil {
			trk.fail(err)
			return Event{}, false
		}
		if emitted {
			return ev, true
		}
	}
}

// advance converts delta ticks to samples and returns the absolute timestamp.
func (t *TrackState) advance(delta uint32, tb *timebase) uint64 {
	t.sampleFrac += float64(delta) * tb.samplesPerTick
	whole := uint64(t.sampleFrac)
	t.sampleFrac -= float64(whole)
	t.sampleOffset += whole
	return tb.origin + t.sampleOffset
}

func decodeMeta(src io.ReadSeeker, trk *TrackState, tb *timebase, at uint64) (Event, bool, error) {
	typ, err := trk.readByte(src)
	if err != nil {
		return Event{}, false, err
	}
	length, err := trk.readVarLen(src)
	if err != nil {
		return Event{}, false, err
	}

	if typ == metaSetTempo && length == 3 {
		var tempo uint32
		for i := 0; i < 3; i++ {
			b, err := trk.readByte(src)
			if err != nil {
				return Event{}, false, err
			}
			tempo = tempo<<8 | uint32(b)
		}
		tb.setTempo(tempo)
	} else if err := trk.skip(length); err != nil {
		return Event{}, false, err
	}

	if typ == metaEndOfTrack {
		trk.finished = true
		return Event{AtSample: at, Kind: AllNotesOff}, true, nil
	}
	return Event{}, false, nil
}

// decodeChannel handles channel voice messages, including running status.
// Only 0x8_, 0x9_, 0xB_ and 0xE_ consume a second data byte; other classes
// consume one.
func decodeChannel(src io.ReadSeeker, trk *TrackState, status byte, at uint64) (Event, bool, error) {
	var data1 byte
	if status < 0x80 {
		if trk.running == 0 {
			return Event{}, false, ErrNoRunningStatus
		}
		data1 = status
		status = trk.running
	} else {
		trk.running = status
		b, err := trk.readByte(src)
		if err != nil {
			return Event{}, false, err
		}
		data1 = b
	}

	var data2 byte
	switch status & 0xF0 {
	case 0x80, 0x90, 0xB0, 0xE0:
		b, err := trk.readByte(src)
		if err != nil {
			return Event{}, false, err
		}
		data2 = b
	}

	ev := Event{AtSample: at, Channel: status & 0x0F}
	switch status & 0xF0 {
	case 0x80:
		ev.Kind = NoteOff
		ev.Data1 = data1
	case 0x90:
		if data2 == 0 {
			ev.Kind = NoteOff
			ev.Data1 = data1
		} else {
			ev.Kind = NoteOn
			ev.Data1 = data1
			ev.Data2 = data2
		}
	case 0xB0:
		if data1 != ccAllNotesOff {
			return Event{}, false, nil
		}
		ev.Kind = AllNotesOff
	case 0xC0:
		ev.Kind = ProgramChange
		ev.Data1 = data1
	default:
		return Event{}, false, nil
	}
	return ev, true, nil
}
