package daemon

import "time"

// Clock is the scheduler's time source. The daemon only needs the
// current instant and a ticker, which keeps a simulated clock small
// enough to drive tick-skipping tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) Chan() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()                  { s.t.Stop() }
