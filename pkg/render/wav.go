package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrWAVClosed is returned when writing to a closed WAVWriter.
var ErrWAVClosed = errors.New("WAV writer is closed")

// ErrPartialFrame is returned when a write does not hold whole stereo frames.
var ErrPartialFrame = errors.New("PCM data is not a whole number of frames")

const wavPCMFormat = 1

// WAVWriter writes the PCM produced by Stream as a 16-bit stereo RIFF/WAVE
// file. The chunk sizes are patched in on Close, so the destination must be
// seekable.
type WAVWriter struct {
	enc       *wav.Encoder
	buf       audio.IntBuffer
	dataBytes uint32
	started   bool
	closed    bool
}

// NewWAVWriter returns a writer that encodes to w at sampleRate.
// The header is written with the first block of samples.
func NewWAVWriter(w io.WriteSeeker, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid WAV sample rate: %d", sampleRate)
	}
	return &WAVWriter{
		enc: wav.NewEncoder(w, sampleRate, 16, 2, wavPCMFormat),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write appends little-endian int16 stereo frames, as returned by
// Stream.Read, to the data chunk.
func (ww *WAVWriter) Write(p []byte) (int, error) {
	if ww.closed {
		return 0, ErrWAVClosed
	}
	if len(p)%BytesPerFrame != 0 {
		return 0, ErrPartialFrame
	}

	samples := len(p) / 2
	if cap(ww.buf.Data) < samples {
		ww.buf.Data = make([]int, samples)
	}
	ww.buf.Data = ww.buf.Data[:samples]
	for i := range ww.buf.Data {
		ww.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
	}

	if err := ww.enc.Write(&ww.buf); err != nil {
		return 0, fmt.Errorf("failed to encode WAV data: %w", err)
	}
	ww.started = true
	ww.dataBytes += uint32(len(p))
	return len(p), nil
}

// DataBytes returns the number of PCM bytes written so far.
func (ww *WAVWriter) DataBytes() uint32 {
	return ww.dataBytes
}

// Close rewrites the header with the final sizes. It does not close the
// underlying writer.
func (ww *WAVWriter) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true

	// ヘッダーは最初の書き込みで出力されるので、空のファイルでも一度書いておく
	if !ww.started {
		ww.buf.Data = ww.buf.Data[:0]
		if err := ww.enc.Write(&ww.buf); err != nil {
			return fmt.Errorf("failed to write WAV header: %w", err)
		}
	}
	if err := ww.enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
