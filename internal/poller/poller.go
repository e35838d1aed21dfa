package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jarvishq/jarvis/internal/report"
)

// shortSleep caps the wait between cycles while backends are rate limited,
// so a freed-up backend is picked up quickly.
const shortSleep = 10 * time.Second

// Cycler runs one poll cycle. Implemented by the orchestrator.
type Cycler interface {
	PollOnce(ctx context.Context) (report.SessionStats, error)
	RecentUnavailable() bool
}

// Poller repeatedly runs poll cycles until its context is cancelled.
type Poller struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger

	// OnCycle, when set, receives each cycle's stats. Used for session
	// reports and publishing.
	OnCycle func(report.SessionStats)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a Poller running a cycle every interval.
func New(cycler Cycler, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{cycler: cycler, interval: interval}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run blocks, cycling until ctx is cancelled. The first cycle starts
// immediately. When a cycle saw unavailable backends the next one starts
// after at most ten seconds instead of the full interval.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval)

	for {
		p.cycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return
		}

		timer := time.NewTimer(p.nextSleep())
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poller stopped")
			return
		case <-timer.C:
		}
	}
}

// nextSleep returns the wait before the next cycle, clamped when backends
// were recently unavailable.
func (p *Poller) nextSleep() time.Duration {
	if p.cycler.RecentUnavailable() && p.interval > shortSleep {
		p.logger.Debug("backends were unavailable, shortening sleep", "sleep", shortSleep)
		return shortSleep
	}
	return p.interval
}

func (p *Poller) cycle(ctx context.Context) {
	stats, err := p.cycler.PollOnce(ctx)
	if err != nil {
		p.logger.Error("poll cycle had errors", "error", err)
	}
	if p.OnCycle != nil {
		p.OnCycle(stats)
	}
}
