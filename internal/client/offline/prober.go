package offline

import (
	"context"
	"time"
)

// Pinger checks gateway reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls a Pinger and feeds connectivity changes to an Engine.
type Prober struct {
	Pinger   Pinger
	Interval time.Duration
	Timeout  time.Duration
}

// Run probes immediately, then every Interval, until ctx is done. Only
// changes are sent after the first probe.
func (p *Prober) Run(ctx context.Context, e *Engine) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := true
	last := false
	for {
		online := p.probe(ctx)
		if first || online != last {
			if err := e.SetOnline(ctx, online); err != nil {
				return err
			}
			first, last = false, online
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Pinger.Ping(ctx) == nil
}
