package sequencer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zurustar/smfseq/pkg/fileutil"
	"github.com/zurustar/smfseq/pkg/logger"
)

const (
	// MaxTracks is the largest track count a file may declare.
	MaxTracks = 16

	// DefaultTempo is 120 BPM in microseconds per quarter note.
	DefaultTempo = 500000

	// DefaultSampleRate is used until SetSampleRate is called.
	DefaultSampleRate = 48000
)

// Structural errors returned by Open. They all wrap ErrInvalidFormat.
var (
	ErrInvalidFormat     = errors.New("invalid MIDI file format")
	ErrInvalidHeader     = fmt.Errorf("%w: bad MThd header", ErrInvalidFormat)
	ErrZeroDivisions     = fmt.Errorf("%w: division is zero", ErrInvalidFormat)
	ErrTrackCount        = fmt.Errorf("%w: track count out of range", ErrInvalidFormat)
	ErrInvalidTrackChunk = fmt.Errorf("%w: bad MTrk chunk", ErrInvalidFormat)
)

var (
	headerMagic = [4]byte{'M', 'T', 'h', 'd'}
	trackMagic  = [4]byte{'M', 'T', 'r', 'k'}
)

// timebase converts ticks to samples. It is shared by every track so that a
// tempo change on one track affects the deltas decoded after it on all tracks.
type timebase struct {
	sampleRate     float64
	divisions      uint16
	tempo          uint32 // microseconds per quarter note
	samplesPerTick float64
	origin         uint64 // sample at which playback started
}

func (tb *timebase) update() {
	if tb.divisions == 0 {
		tb.samplesPerTick = 0
		return
	}
	tb.samplesPerTick = float64(tb.tempo) * tb.sampleRate / (float64(tb.divisions) * 1e6)
}

func (tb *timebase) setTempo(usPerQuarter uint32) {
	tb.tempo = usPerQuarter
	tb.update()
}

// Player reads an SMF from storage and merges its tracks into one
// timestamp-ordered stream of events.
//
// All methods must be called from the same non-real-time goroutine.
// Pump is the only method that touches the EventQueue.
type Player struct {
	fsys fileutil.FileSystem

	src    io.ReadSeeker
	closer io.Closer

	open    bool
	playing bool

	format     uint16
	tb         timebase
	lookahead  uint64
	trackCount int
	tracks     [MaxTracks]TrackState

	log *slog.Logger
}

// NewPlayer creates a closed player that opens files through fsys.
// A nil fsys opens paths on the local file system.
func NewPlayer(fsys fileutil.FileSystem) *Player {
	return &Player{
		fsys: fsys,
		tb: timebase{
			sampleRate: DefaultSampleRate,
			tempo:      DefaultTempo,
		},
		log: logger.GetLogger(),
	}
}

// Open opens path and locates every track chunk.
// On failure the player is left closed.
func (p *Player) Open(path string) error {
	p.Close()

	stream, err := fileutil.OpenStream(p.fsys, path)
	if err != nil {
		return fmt.Errorf("failed to open MIDI file: %w", err)
	}
	if err := p.load(stream); err != nil {
		stream.Close()
		p.reset()
		return fmt.Errorf("%s: %w", path, err)
	}
	p.closer = stream

	p.log.Info("MIDI file opened", "path", path, "format", p.format,
		"tracks", p.trackCount, "divisions", p.tb.divisions, "bytes", p.RemainingBytes())
	return nil
}

// OpenStream is like Open but reads from an already open stream.
// If rs implements io.Closer it is closed by Close.
func (p *Player) OpenStream(rs io.ReadSeeker) error {
	p.Close()

	if err := p.load(rs); err != nil {
		p.reset()
		return err
	}
	if c, ok := rs.(io.Closer); ok {
		p.closer = c
	}
	return nil
}

func (p *Player) load(rs io.ReadSeeker) error {
	var hdr [14]byte
	if _, err := io.ReadFull(rs, hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if [4]byte(hdr[0:4]) != headerMagic {
		return ErrInvalidHeader
	}
	headerLen := binary.BigEndian.Uint32(hdr[4:8])
	format := binary.BigEndian.Uint16(hdr[8:10])
	tracks := binary.BigEndian.Uint16(hdr[10:12])
	divisions := binary.BigEndian.Uint16(hdr[12:14])

	if divisions == 0 {
		return ErrZeroDivisions
	}
	if headerLen > 6 {
		if _, err := rs.Seek(int64(headerLen-6), io.SeekCurrent); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
	}
	if tracks == 0 || tracks > MaxTracks {
		return fmt.Errorf("%w: %d", ErrTrackCount, tracks)
	}

	for i := 0; i < int(tracks); i++ {
		var chunk [8]byte
		if _, err := io.ReadFull(rs, chunk[:]); err != nil {
			return fmt.Errorf("%w: track %d: %v", ErrInvalidTrackChunk, i, err)
		}
		length := binary.BigEndian.Uint32(chunk[4:8])
		if [4]byte(chunk[0:4]) != trackMagic || length == 0 {
			return fmt.Errorf("%w: track %d", ErrInvalidTrackChunk, i)
		}
		start, err := fileutil.Tell(rs)
		if err != nil {
			return fmt.Errorf("%w: track %d: %v", ErrInvalidTrackChunk, i, err)
		}

		trk := &p.tracks[i]
		trk.start = start
		trk.length = length
		trk.reset()

		if _, err := rs.Seek(start+int64(length), io.SeekStart); err != nil {
			return fmt.Errorf("%w: track %d: %v", ErrInvalidTrackChunk, i, err)
		}
	}

	p.src = rs
	p.format = format
	p.trackCount = int(tracks)
	p.tb.divisions = divisions
	p.tb.tempo = DefaultTempo
	p.tb.update()
	p.playing = false
	p.open = true
	return nil
}

// Close releases the stream and returns the player to the closed state.
// Pump must not be called again until the next Open and Start.
func (p *Player) Close() error {
	var err error
	if p.closer != nil {
		err = p.closer.Close()
	}
	p.reset()
	return err
}

func (p *Player) reset() {
	p.src = nil
	p.closer = nil
	p.open = false
	p.playing = false
	p.format = 0
	p.trackCount = 0
	p.tb.divisions = 0
	p.tb.tempo = DefaultTempo
	p.tb.origin = 0
	p.tb.update()
}

// SetSampleRate sets the output sample rate in Hz.
func (p *Player) SetSampleRate(sampleRate float64) {
	p.tb.sampleRate = sampleRate
	p.tb.update()
}

// SampleRate returns the output sample rate in Hz.
func (p *Player) SampleRate() float64 { return p.tb.sampleRate }

// SetLookaheadSamples limits how far ahead of sampleNow Pump schedules.
// Zero schedules as far as the queue allows.
func (p *Player) SetLookaheadSamples(samples uint64) {
	p.lookahead = samples
}

// Start rewinds every track, records sampleNow as the timeline origin and
// buffers the first event of each track.
func (p *Player) Start(sampleNow uint64) {
	if !p.open {
		return
	}
	p.playing = true
	p.tb.origin = sampleNow
	p.tb.tempo = DefaultTempo
	p.tb.update()

	for i := 0; i < p.trackCount; i++ {
		p.tracks[i].reset()
	}
	for i := 0; i < p.trackCount; i++ {
		p.prepare(i)
	}
}

// Pump moves events into q in global timestamp order until q is full, the
// lookahead horizon is reached, or every track is exhausted. It returns the
// number of events pushed. When no track has a buffered event the player
// stops playing.
func (p *Player) Pump(q *EventQueue, sampleNow uint64) int {
	if !p.open || !p.playing {
		return 0
	}

	pushed := 0
	for !q.IsFull() {
		idx := -1
		var earliest uint64
		for i := 0; i < p.trackCount; i++ {
			trk := &p.tracks[i]
			if !trk.hasNext {
				continue
			}
			if idx < 0 || trk.next.AtSample < earliest {
				idx = i
				earliest = trk.next.AtSample
			}
		}

		if idx < 0 {
			p.playing = false
			return pushed
		}
		if p.lookahead > 0 && earliest > sampleNow+p.lookahead {
			return pushed
		}

		trk := &p.tracks[idx]
		if !q.Push(trk.next) {
			return pushed
		}
		pushed++
		trk.hasNext = false
		p.prepare(idx)
	}
	return pushed
}

// prepare refills the lookahead slot of track i.
func (p *Player) prepare(i int) {
	trk := &p.tracks[i]
	if trk.finished {
		return
	}
	ev, ok := decodeNext(p.src, trk, &p.tb)
	if !ok {
		trk.hasNext = false
		if trk.err != nil {
			p.log.Debug("Track stopped on decode error", "track", i, "offset", trk.pos, "error", trk.err)
		}
		return
	}
	trk.next = ev
	trk.hasNext = true
}

// IsOpen reports whether a file is open.
func (p *Player) IsOpen() bool { return p.open }

// IsPlaying reports whether any track still has events to schedule.
func (p *Player) IsPlaying() bool { return p.playing }

// RemainingBytes returns the number of unread track bytes across all tracks.
func (p *Player) RemainingBytes() uint64 {
	var total uint64
	for i := 0; i < p.trackCount; i++ {
		total += uint64(p.tracks[i].remaining)
	}
	return total
}

// Format returns the SMF format field of the open file.
func (p *Player) Format() uint16 { return p.format }

// Divisions returns the ticks per quarter note of the open file.
func (p *Player) Divisions() uint16 { return p.tb.divisions }

// TrackCount returns the number of tracks in the open file.
func (p *Player) TrackCount() int { return p.trackCount }

// Tempo returns the current tempo in microseconds per quarter note.
func (p *Player) Tempo() uint32 { return p.tb.tempo }

// SamplesPerTick returns the current tick length in samples.
func (p *Player) SamplesPerTick() float64 { return p.tb.samplesPerTick }

// Track returns the state of track i, or nil if i is out of range.
func (p *Player) Track(i int) *TrackState {
	if i < 0 || i >= p.trackCount {
		return nil
	}
	return &p.tracks[i]
}

// TrackErrors returns the decode failures recorded since Start, indexed by
// track. Tracks that ended cleanly have a nil entry.
func (p *Player) TrackErrors() []error {
	errs := make([]error, p.trackCount)
	for i := range errs {
		errs[i] = p.tracks[i].err
	}
	return errs
}
