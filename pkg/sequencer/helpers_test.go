package sequencer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// encodeVarLen encodes v as an SMF variable-length quantity.
func encodeVarLen(v uint32) []byte {
	out := []byte{byte(v & 0x7F)}
	for v >>= 7; v > 0; v >>= 7 {
		out = append([]byte{byte(v&0x7F) | 0x80}, out...)
	}
	return out
}

// buildSMF assembles a format-1 file from raw track event bytes.
func buildSMF(divisions uint16, tracks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	binary.Write(&buf, binary.BigEndian, uint32(6))
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint16(len(tracks)))
	binary.Write(&buf, binary.BigEndian, divisions)
	for _, trk := range tracks {
		buf.WriteString("MTrk")
		binary.Write(&buf, binary.BigEndian, uint32(len(trk)))
		buf.Write(trk)
	}
	return buf.Bytes()
}

// trackBuilder appends delta-prefixed events to a track body.
type trackBuilder struct {
	buf bytes.Buffer
}

func (b *trackBuilder) event(delta uint32, data ...byte) *trackBuilder {
	b.buf.Write(encodeVarLen(delta))
	b.buf.Write(data)
	return b
}

func (b *trackBuilder) tempo(delta uint32, usPerQuarter uint32) *trackBuilder {
	return b.event(delta, statusMeta, metaSetTempo, 3,
		byte(usPerQuarter>>16), byte(usPerQuarter>>8), byte(usPerQuarter))
}

func (b *trackBuilder) end(delta uint32) []byte {
	b.event(delta, statusMeta, metaEndOfTrack, 0)
	return b.buf.Bytes()
}

func (b *trackBuilder) bytes() []byte {
	return b.buf.Bytes()
}

// newTestTimebase returns 480 PPQN at 120 BPM and 48 kHz: 50 samples per tick.
func newTestTimebase() *timebase {
	tb := &timebase{sampleRate: 48000, divisions: 480, tempo: DefaultTempo}
	tb.update()
	return tb
}

// newTestTrack returns a track covering all of data, read from memory.
func newTestTrack(data []byte) (*TrackState, io.ReadSeeker) {
	trk := &TrackState{start: 0, length: uint32(len(data))}
	trk.reset()
	return trk, bytes.NewReader(data)
}

// decodeAll drains a track through the decoder.
func decodeAll(src io.ReadSeeker, trk *TrackState, tb *timebase) []Event {
	var events []Event
	for {
		ev, ok := decodeNext(src, trk, tb)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

// openBytes opens data in a new player or fails the test.
func openBytes(t *testing.T, data []byte) *Player {
	t.Helper()
	p := NewPlayer(nil)
	if err := p.OpenStream(bytes.NewReader(data)); err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	return p
}

// playAll starts p at origin and collects every event it schedules.
func playAll(p *Player, origin uint64) []Event {
	q := NewEventQueue()
	var events []Event
	p.Start(origin)
	for p.IsPlaying() {
		p.Pump(q, origin)
		for {
			ev, ok := q.Pop()
			if !ok {
				break
			}
			events = append(events, ev)
		}
	}
	return events
}

// failingReader fails every read after the first n bytes.
type failingReader struct {
	r   *bytes.Reader
	n   int64
	err error
}

var errStorage = errors.New("storage failure")

func (f *failingReader) Read(p []byte) (int, error) {
	pos, _ := f.r.Seek(0, io.SeekCurrent)
	if pos >= f.n {
		return 0, f.err
	}
	if rest := f.n - pos; int64(len(p)) > rest {
		p = p[:rest]
	}
	return f.r.Read(p)
}

func (f *failingReader) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

// closeRecorder records whether Close was called.
type closeRecorder struct {
	*bytes.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
