package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// DefaultInterval is how often a Tracker samples its Progress when no
// interval is given.
const DefaultInterval = 250 * time.Millisecond

// A Sample is one observation of a Progress made by a Tracker.
type Sample struct {
	Bytes    int64 // bytes transferred so far
	Expected int64 // bytes the transfer is expected to move in total
	Files    int64
	Dirs     int64
	Message  string
}

// Options configure a Tracker. The zero value uses the wall clock and
// DefaultInterval.
type Options struct {
	Clock    clock.Clock
	Interval time.Duration

	// Label prefixes every sample message, e.g. "Transferring".
	Label string

	// StartMessage, if set, is used as the message of the first sample.
	StartMessage string
}

// A Tracker samples a Progress on a fixed interval from its own goroutine and
// hands each Sample to a report function. The report function is only ever
// called from one goroutine at a time, and never after Stop returns.
type Tracker struct {
	p        *Progress
	expected int64
	opts     Options
	report   func(Sample)
	begin    time.Time

	stop     chan struct{} // closed to ask the goroutine to exit
	done     chan struct{} // closed by the goroutine on exit
	stopOnce sync.Once
}

// Track starts a Tracker over p. One sample is reported before Track returns;
// more are reported every interval until Stop is called.
//
// Callers should arrange for Stop to run on every exit path of the transfer
// being tracked, usually with a defer.
func Track(p *Progress, expected int64, opts Options, report func(Sample)) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	t := &Tracker{
		p:        p,
		expected: expected,
		opts:     opts,
		report:   report,
		begin:    opts.Clock.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.sample(opts.StartMessage)
	// the ticker is made here so a mock clock sees it before Track returns
	tick := opts.Clock.Ticker(opts.Interval)
	go t.run(tick)
	return t
}

// Stop tells the tracker goroutine to exit and waits for it to do so. A final
// sample is reported on the way out. It is safe to call Stop more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Tracker) run(tick *clock.Ticker) {
	defer close(t.done)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			t.sample("")
		case <-t.stop:
			t.sample("")
			return
		}
	}
}

func (t *Tracker) sample(msg string) {
	s := Sample{
		Bytes:    t.p.Bytes(),
		Expected: t.expected,
		Files:    t.p.Files(),
		Dirs:     t.p.Dirs(),
	}
	if msg == "" {
		msg = t.describe(s)
	}
	s.Message = msg
	t.report(s)
}

// describe builds a message like
// "Transferring: 12 MB of 40 MB (30%), 4 MB/sec".
func (t *Tracker) describe(s Sample) string {
	percent := 100
	if s.Expected > 0 {
		percent = int(s.Bytes * 100 / s.Expected)
	}
	var rate int64
	elapsed := t.opts.Clock.Now().Sub(t.begin).Seconds()
	if elapsed > 0 {
		rate = int64(float64(s.Bytes) / elapsed)
	}
	msg := fmt.Sprintf("%s of %s (%d%%), %s/sec",
		HumanSize(s.Bytes),
		HumanSize(s.Expected),
		percent,
		HumanSize(rate))
	if t.opts.Label != "" {
		msg = t.opts.Label + ": " + msg
	}
	return msg
}
