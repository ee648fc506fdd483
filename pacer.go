package stationgraph

import (
	"context"
	"time"
)

const DefaultMinInterval = time.Second

// Spaces out requests. Wait is called right before each request, and
// blocks until at least Interval has passed since the previous call
// returned.
type Pacer struct {
	Interval time.Duration

	// Swappable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	last    time.Time
	started bool
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		Interval: interval,
		Now:      time.Now,
		Sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sleeps max(0, Interval - elapsed) unless this is the first call.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.started {
		elapsed := p.Now().Sub(p.last)
		if d := p.Interval - elapsed; d > 0 {
			if err := p.Sleep(ctx, d); err != nil {
				return err
			}
		}
	}

	p.last = p.Now()
	p.started = true
	return nil
}
