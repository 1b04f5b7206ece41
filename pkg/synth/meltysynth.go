package synth

import (
	"errors"
	"fmt"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// ErrNoSoundFont is returned when a synthesizer is created without a SoundFont.
var ErrNoSoundFont = errors.New("SoundFont is required for synthesis")

const (
	midiControlChange = 0xB0
	midiProgramChange = 0xC0

	ccAllSoundOff = 0x78
	ccAllNotesOff = 0x7B

	numChannels = 16
)

// synthesizer is the subset of meltysynth.Synthesizer used here.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1, data2 int32)
	NoteOn(channel, key, vel int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
}

// newSynthesizer constructs a meltysynth synthesizer. Tests replace it.
var newSynthesizer = func(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings) (synthesizer, error) {
	return meltysynth.NewSynthesizer(sf, settings)
}

// Options configures a MeltySynth.
type Options struct {
	SampleRate int // Hz
	Voices     int // maximum polyphony; DefaultVoices when zero
	BlockSize  int // internal render block; meltysynth's default when zero
}

// MeltySynth is a SoundFont synthesizer backed by go-meltysynth.
// Channel 10 plays the SoundFont's percussion bank.
type MeltySynth struct {
	syn    synthesizer
	voices int
}

// NewMeltySynth creates a synthesizer for sf.
func NewMeltySynth(sf *meltysynth.SoundFont, opts Options) (*MeltySynth, error) {
	if sf == nil {
		return nil, ErrNoSoundFont
	}
	if opts.Voices <= 0 {
		opts.Voices = DefaultVoices
	}

	settings := meltysynth.NewSynthesizerSettings(int32(opts.SampleRate))
	settings.MaximumPolyphony = int32(opts.Voices)
	if opts.BlockSize > 0 {
		settings.BlockSize = int32(opts.BlockSize)
	}

	syn, err := newSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	return &MeltySynth{syn: syn, voices: opts.Voices}, nil
}

// Voices returns the configured polyphony.
func (m *MeltySynth) Voices() int { return m.voices }

func (m *MeltySynth) NoteOn(channel, key, velocity uint8) {
	m.syn.NoteOn(int32(channel), int32(key), int32(velocity))
}

func (m *MeltySynth) NoteOff(channel, key uint8) {
	m.syn.NoteOff(int32(channel), int32(key))
}

func (m *MeltySynth) ProgramChange(channel, program uint8) {
	m.syn.ProcessMidiMessage(int32(channel), midiProgramChange, int32(program), 0)
}

func (m *MeltySynth) AllNotesOff(channel uint8) {
	m.syn.ProcessMidiMessage(int32(channel), midiControlChange, ccAllNotesOff, 0)
}

func (m *MeltySynth) Render(left, right []float32) {
	m.syn.Render(left, right)
}

func (m *MeltySynth) Panic() {
	for ch := int32(0); ch < numChannels; ch++ {
		m.syn.ProcessMidiMessage(ch, midiControlChange, ccAllSoundOff, 0)
	}
}
