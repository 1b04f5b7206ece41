package sequencer

import (
	"io"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// TrackInfo describes one track chunk.
type TrackInfo struct {
	Index  int
	Length uint32 // chunk length in bytes
	Name   string // first track-name meta event, if any
	Err    error  // decode failure hit during playback, if any
}

// Info summarises an SMF as the Player would play it.
type Info struct {
	Format    uint16
	Divisions uint16
	Tracks    []TrackInfo

	Events int // events the player emits
	Notes  int // NoteOn events among them

	// Samples is the timestamp of the last emitted event, relative to the
	// start of playback, at SampleRate.
	Samples    uint64
	SampleRate float64
	Duration   time.Duration
}

// noCloseReader hides Close so the Player does not close the caller's stream.
type noCloseReader struct {
	io.ReadSeeker
}

// ReadInfo plays rs through a Player at sampleRate without rendering and
// reports what it found. rs is not closed.
func ReadInfo(rs io.ReadSeeker, sampleRate float64) (*Info, error) {
	p := NewPlayer(nil)
	p.SetSampleRate(sampleRate)
	if err := p.OpenStream(noCloseReader{rs}); err != nil {
		return nil, err
	}
	defer p.Close()

	info := &Info{
		Format:     p.Format(),
		Divisions:  p.Divisions(),
		Tracks:     make([]TrackInfo, p.TrackCount()),
		SampleRate: sampleRate,
	}
	for i := range info.Tracks {
		trk := p.tracks[i]
		trk.reset()
		info.Tracks[i] = TrackInfo{
			Index:  i,
			Length: trk.length,
			Name:   trackName(p.src, &trk),
		}
	}

	q := NewEventQueue()
	p.Start(0)
	for p.IsPlaying() {
		p.Pump(q, 0)
		for {
			ev, ok := q.Pop()
			if !ok {
				break
			}
			info.Events++
			if ev.Kind == NoteOn {
				info.Notes++
			}
			if ev.AtSample > info.Samples {
				info.Samples = ev.AtSample
			}
		}
	}
	for i, err := range p.TrackErrors() {
		info.Tracks[i].Err = err
	}
	if sampleRate > 0 {
		info.Duration = time.Duration(float64(info.Samples) / sampleRate * float64(time.Second))
	}
	return info, nil
}

// trackName walks trk with the same byte consumption rules as the decoder
// and returns the first track-name meta event.
func trackName(src io.ReadSeeker, trk *TrackState) string {
	for trk.remaining > 0 {
		if _, err := trk.readVarLen(src); err != nil {
			return ""
		}
		status, err := trk.readByte(src)
		if err != nil {
			return ""
		}

		switch status {
		case statusMeta:
			typ, err := trk.readByte(src)
			if err != nil {
				return ""
			}
			length, err := trk.readVarLen(src)
			if err != nil {
				return ""
			}
			if typ == metaTrackName {
				if length > trk.remaining {
					return ""
				}
				payload := make([]byte, 0, length)
				for i := uint32(0); i < length; i++ {
					b, err := trk.readByte(src)
					if err != nil {
						return ""
					}
					payload = append(payload, b)
				}
				return decodeText(payload)
			}
			if typ == metaEndOfTrack || trk.skip(length) != nil {
				return ""
			}

		case statusSysEx, statusSysExCont:
			length, err := trk.readVarLen(src)
			if err != nil || trk.skip(length) != nil {
				return ""
			}

		default:
			if status < 0x80 {
				if trk.running == 0 {
					return ""
				}
				status = trk.running
			} else {
				trk.running = status
				if trk.skip(1) != nil {
					return ""
				}
			}
			switch status & 0xF0 {
			case 0x80, 0x90, 0xB0, 0xE0:
				if trk.skip(1) != nil {
					return ""
				}
			}
		}
	}
	return ""
}

// decodeText returns b as UTF-8. Text that is not valid UTF-8 is assumed to
// be Shift_JIS, which is common in Japanese SMF files.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
