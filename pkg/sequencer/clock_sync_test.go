package sequencer

import "testing"

func TestClockSync(t *testing.T) {
	var c ClockSync
	c.Init(48000)

	if c.IsRunning() {
		t.Fatal("clock should be idle after Init")
	}
	if c.sampleRate != 48000 {
		t.Errorf("expected 48000, got %v", c.sampleRate)
	}

	c.OnPulse(1000)
	if !c.IsRunning() {
		t.Fatal("first pulse should start the clock")
	}
	c.OnPulse(1500)
	c.OnPulse(2000)

	if c.StartSample() != 1000 {
		t.Errorf("expected start at 1000, got %d", c.StartSample())
	}
	if c.LastPulse() != 2000 {
		t.Errorf("expected last pulse at 2000, got %d", c.LastPulse())
	}

	c.Reset()
	if c.IsRunning() || c.StartSample() != 0 || c.LastPulse() != 0 {
		t.Error("Reset should clear the clock")
	}

	c.OnPulse(7000)
	if c.StartSample() != 7000 {
		t.Errorf("expected restart at 7000, got %d", c.StartSample())
	}
}
