package sequencer

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeChannelMessages(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []Event
	}{
		{
			name: "running status",
			data: []byte{0x00, 0x90, 60, 100, 0x00, 61, 100},
			want: []Event{
				{AtSample: 0, Kind: NoteOn, Data1: 60, Data2: 100},
				{AtSample: 0, Kind: NoteOn, Data1: 61, Data2: 100},
			},
		},
		{
			name: "note on with zero velocity is note off",
			data: []byte{0x00, 0x92, 60, 0},
			want: []Event{{Kind: NoteOff, Channel: 2, Data1: 60}},
		},
		{
			name: "note off",
			data: []byte{0x0A, 0x81, 64, 40},
			want: []Event{{AtSample: 500, Kind: NoteOff, Channel: 1, Data1: 64}},
		},
		{
			name: "all notes off controller",
			data: []byte{0x00, 0xB3, 0x7B, 0},
			want: []Event{{Kind: AllNotesOff, Channel: 3}},
		},
		{
			name: "other controllers are consumed silently",
			data: []byte{0x00, 0xB0, 7, 100, 0x0A, 0x90, 60, 100},
			want: []Event{{AtSample: 500, Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			name: "program change",
			data: []byte{0x00, 0xC5, 10},
			want: []Event{{Kind: ProgramChange, Channel: 5, Data1: 10}},
		},
		{
			name: "pitch bend consumes two data bytes",
			data: []byte{0x00, 0xE0, 0x00, 0x40, 0x00, 0x90, 60, 100},
			want: []Event{{Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			name: "channel pressure consumes one data byte",
			data: []byte{0x00, 0xD0, 0x40, 0x00, 0x90, 60, 100},
			want: []Event{{Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			// The byte after the key is read as the next delta (0x40 = 64 ticks).
			name: "key pressure consumes one data byte",
			data: []byte{0x00, 0xA0, 60, 0x40, 0x90, 61, 100},
			want: []Event{{AtSample: 64 * 50, Kind: NoteOn, Data1: 61, Data2: 100}},
		},
		{
			name: "sysex is skipped",
			data: []byte{0x00, 0xF0, 0x03, 1, 2, 3, 0x10, 0x90, 60, 100},
			want: []Event{{AtSample: 16 * 50, Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			name: "sysex continuation is skipped",
			data: []byte{0x00, 0xF7, 0x01, 0x7F, 0x00, 0x90, 60, 100},
			want: []Event{{Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			name: "unknown meta is skipped",
			data: []byte{0x00, 0xFF, 0x01, 0x02, 'h', 'i', 0x00, 0x90, 60, 100},
			want: []Event{{Kind: NoteOn, Data1: 60, Data2: 100}},
		},
		{
			name: "tempo meta with wrong length is skipped",
			data: []byte{0x00, 0xFF, 0x51, 0x02, 0x07, 0xA1, 0x0A, 0x90, 60, 100},
			want: []Event{{AtSample: 500, Kind: NoteOn, Data1: 60, Data2: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trk, src := newTestTrack(tt.data)
			got := decodeAll(src, trk, newTestTimebase())

			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
			if !trk.Finished() {
				t.Error("track should be finished")
			}
			if trk.Err() != nil {
				t.Errorf("unexpected decode error: %v", trk.Err())
			}
			if trk.Remaining() != 0 {
				t.Errorf("expected 0 remaining bytes, got %d", trk.Remaining())
			}
		})
	}
}

func TestDecodeEndOfTrack(t *testing.T) {
	data := []byte{
		0x00, 0x93, 60, 100,
		0x60, 0xFF, 0x2F, 0x00,
		0x00, 0x90, 61, 100, // after end of track, never decoded
	}
	trk, src := newTestTrack(data)
	tb := newTestTimebase()

	got := decodeAll(src, trk, tb)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
	want := Event{AtSample: 96 * 50, Kind: AllNotesOff, Channel: 0}
	if got[1] != want {
		t.Errorf("expected %v, got %v", want, got[1])
	}
	if !trk.Finished() || trk.Err() != nil {
		t.Errorf("expected clean finish, finished=%v err=%v", trk.Finished(), trk.Err())
	}
	if trk.Remaining() != 4 {
		t.Errorf("expected 4 unread bytes, got %d", trk.Remaining())
	}

	if ev, ok := decodeNext(src, trk, tb); ok {
		t.Errorf("finished track produced %v", ev)
	}
}

func TestDecodeTempoChange(t *testing.T) {
	// 480 ticks at 120 BPM, then 250000 us/quarter, then 480 more ticks.
	data := (&trackBuilder{}).
		event(480, 0x90, 60, 100).
		tempo(0, 250000).
		event(480, 0x90, 62, 100).
		bytes()
	trk, src := newTestTrack(data)
	tb := newTestTimebase()

	got := decodeAll(src, trk, tb)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
	if got[0].AtSample != 24000 {
		t.Errorf("first note: expected sample 24000, got %d", got[0].AtSample)
	}
	if got[1].AtSample != 36000 {
		t.Errorf("second note: expected sample 36000, got %d", got[1].AtSample)
	}
	if tb.tempo != 250000 || tb.samplesPerTick != 25 {
		t.Errorf("expected tempo 250000 at 25 samples/tick, got %d at %v", tb.tempo, tb.samplesPerTick)
	}
}

func TestDecodeOrigin(t *testing.T) {
	trk, src := newTestTrack([]byte{0x0A, 0x90, 60, 100})
	tb := newTestTimebase()
	tb.origin = 1000

	ev, ok := decodeNext(src, trk, tb)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.AtSample != 1500 {
		t.Errorf("expected sample 1500, got %d", ev.AtSample)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		events  int
		wantErr error
	}{
		{"event cut short", []byte{0x00, 0x90, 60, 100, 0x00, 0x90, 60}, 1, ErrTruncatedTrack},
		{"delta cut short", []byte{0x81}, 0, ErrTruncatedTrack},
		{"meta longer than chunk", []byte{0x00, 0xFF, 0x01, 0x10, 'a'}, 0, ErrTruncatedTrack},
		{"sysex longer than chunk", []byte{0x00, 0xF0, 0x05, 1}, 0, ErrTruncatedTrack},
		{"five byte delta", []byte{0x80, 0x80, 0x80, 0x80, 0x00, 0x90, 60, 100}, 0, ErrBadVarLen},
		{"data byte first", []byte{0x00, 60, 100}, 0, ErrNoRunningStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trk, src := newTestTrack(tt.data)
			got := decodeAll(src, trk, newTestTimebase())

			if len(got) != tt.events {
				t.Errorf("expected %d events, got %v", tt.events, got)
			}
			if !trk.Finished() {
				t.Error("track should be finished")
			}
			if !errors.Is(trk.Err(), tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, trk.Err())
			}
		})
	}
}

func TestDecodeStorageFailure(t *testing.T) {
	var data []byte
	for i := 0; i < 5; i++ {
		data = append(data, 0x00, 0x90, byte(60+i), 100)
	}
	trk := &TrackState{length: uint32(len(data))}
	trk.reset()
	src := &failingReader{r: bytes.NewReader(data), n: 10, err: errStorage}

	got := decodeAll(src, trk, newTestTimebase())
	if len(got) != 2 {
		t.Errorf("expected 2 events before the failure, got %v", got)
	}
	if !errors.Is(trk.Err(), errStorage) {
		t.Errorf("expected storage error, got %v", trk.Err())
	}
}

func TestDecodeLongTrack(t *testing.T) {
	// Several times the window size, so the decoder must refill.
	b := &trackBuilder{}
	const notes = 300
	for i := 0; i < notes; i++ {
		b.event(1, 0x90, byte(i%128), 100)
	}
	trk, src := newTestTrack(b.end(0))

	got := decodeAll(src, trk, newTestTimebase())
	if len(got) != notes+1 {
		t.Fatalf("expected %d events, got %d", notes+1, len(got))
	}
	for i := 0; i < notes; i++ {
		if got[i].Data1 != byte(i%128) || got[i].AtSample != uint64(i+1)*50 {
			t.Fatalf("event %d: got %v", i, got[i])
		}
	}
	if trk.Err() != nil {
		t.Errorf("unexpected error: %v", trk.Err())
	}
}

func TestDecodeReadsStorageEachPass(t *testing.T) {
	data := (&trackBuilder{}).
		event(0, 0x90, 60, 100).
		event(10, 0x90, 62, 100).
		bytes()
	trk, src := newTestTrack(data)
	tb := newTestTimebase()

	first, ok := decodeNext(src, trk, tb)
	if !ok || first.Data1 != 60 {
		t.Fatalf("first event: got %v, %v", first, ok)
	}
	if trk.winLen != 0 {
		t.Errorf("window should be empty between passes, holds %d bytes", trk.winLen)
	}

	// 2つ目のイベントのキーを書き換える（前回の読み込み結果が残っていれば古い値が見える）
	data[6] = 64
	second, ok := decodeNext(src, trk, tb)
	if !ok || second.Data1 != 64 {
		t.Errorf("second event should come from storage, got %v", second)
	}
}

func TestDecodeFractionalTicks(t *testing.T) {
	// 44100 Hz at 96 PPQN and 120 BPM is 229.6875 samples per tick.
	tb := &timebase{sampleRate: 44100, divisions: 96, tempo: DefaultTempo}
	tb.update()

	b := &trackBuilder{}
	for i := 0; i < 1000; i++ {
		b.event(uint32(i%7+1), 0x90, 60, 100)
	}
	trk, src := newTestTrack(b.bytes())

	var ticks uint64
	for i, ev := range decodeAll(src, trk, tb) {
		ticks += uint64(i%7 + 1)
		exact := float64(ticks) * tb.samplesPerTick
		if diff := float64(ev.AtSample) - exact; diff > 1 || diff < -1 {
			t.Fatalf("event %d: sample %d drifted from %.3f", i, ev.AtSample, exact)
		}
	}
}

func TestReadVarLen(t *testing.T) {
	tests := []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7F}, 0x7F},
		{[]byte{0x81, 0x00}, 0x80},
		{[]byte{0x83, 0x60}, 480},
		{[]byte{0xFF, 0x7F}, 0x3FFF},
		{[]byte{0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF},
	}
	for _, tt := range tests {
		trk, src := newTestTrack(tt.data)
		got, err := trk.readVarLen(src)
		if err != nil {
			t.Errorf("%x: unexpected error: %v", tt.data, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%x: expected %d, got %d", tt.data, tt.want, got)
		}
		if enc := encodeVarLen(tt.want); !bytes.Equal(enc, tt.data) {
			t.Errorf("encodeVarLen(%d) = %x, want %x", tt.want, enc, tt.data)
		}
	}
}
