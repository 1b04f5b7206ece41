package sequencer

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"
)

func TestReadInfo(t *testing.T) {
	// "ピアノ" in Shift_JIS
	sjisName := []byte{0x83, 0x73, 0x83, 0x41, 0x83, 0x6D}

	conductor := (&trackBuilder{}).
		event(0, 0xFF, metaTrackName, 5, 'T', 'e', 'm', 'p', 'o').
		tempo(0, 250000).
		end(0)
	piano := (&trackBuilder{}).
		event(0, append([]byte{0xFF, metaTrackName, byte(len(sjisName))}, sjisName...)...).
		event(0, 0xC0, 0).
		event(0, 0x90, 60, 100).
		event(960, 0x80, 60, 0).
		end(0)
	broken := []byte{0x00, 0x99, 36, 100, 0x00, 0x99, 38}

	rs := bytes.NewReader(buildSMF(480, conductor, piano, broken))
	info, err := ReadInfo(rs, 48000)
	if err != nil {
		t.Fatalf("ReadInfo failed: %v", err)
	}

	if info.Format != 1 || info.Divisions != 480 || len(info.Tracks) != 3 {
		t.Fatalf("unexpected header: %+v", info)
	}
	if info.Tracks[0].Name != "Tempo" {
		t.Errorf("expected track 0 name Tempo, got %q", info.Tracks[0].Name)
	}
	if info.Tracks[1].Name != "ピアノ" {
		t.Errorf("expected Shift_JIS name to decode, got %q", info.Tracks[1].Name)
	}
	if info.Tracks[2].Name != "" {
		t.Errorf("expected unnamed track, got %q", info.Tracks[2].Name)
	}
	if info.Tracks[1].Length != uint32(len(piano)) {
		t.Errorf("expected length %d, got %d", len(piano), info.Tracks[1].Length)
	}

	if info.Tracks[0].Err != nil || info.Tracks[1].Err != nil {
		t.Errorf("unexpected track errors: %v, %v", info.Tracks[0].Err, info.Tracks[1].Err)
	}
	if !errors.Is(info.Tracks[2].Err, ErrTruncatedTrack) {
		t.Errorf("expected truncated track 2, got %v", info.Tracks[2].Err)
	}

	// conductor: end of track. piano: program, note on, note off, end of track.
	// broken: one note on.
	if info.Events != 6 {
		t.Errorf("expected 6 events, got %d", info.Events)
	}
	if info.Notes != 2 {
		t.Errorf("expected 2 notes, got %d", info.Notes)
	}

	// 960 ticks at 25 samples per tick.
	if info.Samples != 24000 {
		t.Errorf("expected 24000 samples, got %d", info.Samples)
	}
	if info.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", info.Duration)
	}

	// The caller's stream stays usable.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		t.Errorf("stream should remain open: %v", err)
	}
}

func TestReadInfoInvalid(t *testing.T) {
	t.Run("not a MIDI file", func(t *testing.T) {
		_, err := ReadInfo(bytes.NewReader([]byte("not a midi file")), 48000)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("track name longer than the track", func(t *testing.T) {
		// 名前の長さ 0x0FFFFFFF に対して実データは2バイトだけ
		trk := (&trackBuilder{}).
			event(0, append([]byte{0xFF, metaTrackName}, append(encodeVarLen(0x0FFFFFFF), 'a', 'b')...)...).
			bytes()
		data := buildSMF(480, trk)

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		info, err := ReadInfo(bytes.NewReader(data), 48000)
		runtime.ReadMemStats(&after)

		if err != nil {
			t.Fatalf("ReadInfo failed: %v", err)
		}
		if info.Tracks[0].Name != "" {
			t.Errorf("expected no name, got %q", info.Tracks[0].Name)
		}
		if !errors.Is(info.Tracks[0].Err, ErrTruncatedTrack) {
			t.Errorf("expected ErrTruncatedTrack, got %v", info.Tracks[0].Err)
		}
		if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
			t.Errorf("reading a %d byte file allocated %d bytes", len(data), grew)
		}
	})
}
