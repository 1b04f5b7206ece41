package sequencer

// ClockSync tracks pulses from an external clock input.
// It only records running state; tempo is not derived from it yet.
type ClockSync struct {
	sampleRate float64
	running    bool

	startSample     uint64
	lastPulseSample uint64
}

// Init sets the sample rate and clears the running state.
func (c *ClockSync) Init(sampleRate float64) {
	c.sampleRate = sampleRate
	c.Reset()
}

// Reset returns the tracker to idle.
func (c *ClockSync) Reset() {
	c.running = false
	c.startSample = 0
	c.lastPulseSample = 0
}

// OnPulse records a rising clock edge observed at sampleNow.
// The first pulse after a reset starts the clock.
func (c *ClockSync) OnPulse(sampleNow uint64) {
	c.lastPulseSample = sampleNow
	if !c.running {
		c.running = true
		c.startSample = sampleNow
	}
}

// IsRunning reports whether a pulse has been seen since the last reset.
func (c *ClockSync) IsRunning() bool { return c.running }

// StartSample returns the sample of the first pulse since the last reset.
func (c *ClockSync) StartSample() uint64 { return c.startSample }

// LastPulse returns the sample of the most recent pulse.
func (c *ClockSync) LastPulse() uint64 { return c.lastPulseSample }

