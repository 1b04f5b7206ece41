// Package driver runs the non-deadline half of playback: it keeps the event
// queue topped up from the player while the render stage consumes it.
package driver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zurustar/smfseq/pkg/logger"
	"github.com/zurustar/smfseq/pkg/sequencer"
)

// DefaultInterval is the default time between Pump calls.
const DefaultInterval = 10 * time.Millisecond

// Pumper schedules events into a queue. *sequencer.Player implements it.
type Pumper interface {
	Pump(q *sequencer.EventQueue, sampleNow uint64) int
	IsPlaying() bool
}

// Clock reports the render stage's current sample. *render.Stream implements it.
type Clock interface {
	SampleClock() uint64
}

// Driver calls Pump on a fixed interval from its own goroutine.
// The Pumper must not be used by anything else while the driver runs.
type Driver struct {
	pumper Pumper
	queue  *sequencer.EventQueue
	clock  Clock

	interval time.Duration
	ticker   *time.Ticker
	running  bool

	stopCh     chan struct{}
	doneCh     chan struct{}
	finishedCh chan struct{}

	mu sync.Mutex

	pumped atomic.Uint64

	log      *slog.Logger
	progress rate.Sometimes
}

// New creates a stopped driver. If interval is 0 or negative,
// DefaultInterval is used.
func New(p Pumper, q *sequencer.EventQueue, c Clock, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{
		pumper:     p,
		queue:      q,
		clock:      c,
		interval:   interval,
		finishedCh: make(chan struct{}),
		log:        logger.GetLogger(),
		progress:   rate.Sometimes{Interval: time.Second},
	}
}

// Start fills the queue once and then keeps pumping every interval until
// Stop is called or playback finishes. Starting a running driver does nothing.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	select {
	case <-d.finishedCh:
		d.finishedCh = make(chan struct{})
	default:
	}
	d.ticker = time.NewTicker(d.interval)

	go d.run(d.ticker, d.stopCh, d.doneCh, d.finishedCh)
}

func (d *Driver) run(ticker *time.Ticker, stopCh, doneCh, finishedCh chan struct{}) {
	defer close(doneCh)

	if d.pump() {
		close(finishedCh)
		return
	}
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if d.pump() {
				d.log.Debug("Playback finished", "sample", d.clock.SampleClock(), "events", d.pumped.Load())
				close(finishedCh)
				return
			}
		}
	}
}

// pump runs one scheduling pass and reports whether playback is complete:
// the player has nothing left and the render stage has drained the queue.
func (d *Driver) pump() bool {
	now := d.clock.SampleClock()
	n := d.pumper.Pump(d.queue, now)
	total := d.pumped.Add(uint64(n))

	d.progress.Do(func() {
		d.log.Debug("Sequencer progress", "sample", now, "queued", d.queue.Size(), "events", total)
	})

	return !d.pumper.IsPlaying() && d.queue.Empty()
}

// Stop stops pumping and waits for the goroutine to exit.
// Stopping a stopped driver does nothing.
func (d *Driver) Stop() {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		return
	}

	d.running = false
	close(d.stopCh)
	doneCh := d.doneCh

	d.mu.Unlock()

	// Wait outside the lock
	<-doneCh

	d.mu.Lock()
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
	d.stopCh = nil
	d.doneCh = nil
	d.mu.Unlock()
}

// IsRunning reports whether the driver goroutine has been started and not stopped.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Done is closed when playback finishes.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finishedCh
}

// Wait blocks until playback finishes or ctx is done.
func (d *Driver) Wait(ctx context.Context) error {
	select {
	case <-d.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pumped returns the total number of events scheduled.
func (d *Driver) Pumped() uint64 {
	return d.pumped.Load()
}

// Interval returns the time between Pump calls.
func (d *Driver) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// SetInterval changes the time between Pump calls.
// A running driver is restarted with the new interval.
func (d *Driver) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	d.mu.Lock()
	wasRunning := d.running
	d.mu.Unlock()

	if wasRunning {
		d.Stop()
		d.mu.Lock()
		d.interval = interval
		d.mu.Unlock()
		d.Start()
	} else {
		d.mu.Lock()
		d.interval = interval
		d.mu.Unlock()
	}
}
