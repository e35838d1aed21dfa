package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jarvishq/jarvis/internal/poller"
	"github.com/jarvishq/jarvis/internal/report"
)

// Poll handles `jarvis poll`: the long-running daemon that cycles over the
// configured repositories until interrupted.
func Poll(args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(a.orch, a.cfg.PollInterval, poller.WithLogger(a.logger))
	p.OnCycle = func(stats report.SessionStats) {
		publishSession(a, stats)
	}
	p.Run(ctx)
	return nil
}

// PollOnce handles `jarvis poll-once`: a single cycle, then exit.
func PollOnce(args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := a.orch.PollOnce(ctx)
	publishSession(a, stats)
	fmt.Print(report.SessionReport(stats))
	return err
}

// publishSession writes the cycle summary under the reports directory and,
// when publishing is enabled, commits it to the orchestrator's own repo.
func publishSession(a *app, stats report.SessionStats) {
	if stats.Processed == 0 {
		return
	}

	dir := a.cfg.ReportsDir
	if a.cfg.JarvisRepoDir != "" {
		dir = a.cfg.JarvisRepoDir + "/" + a.cfg.ReportsDir
	}
	name := "session-" + stats.Finished.Format("2006-01-02_150405") + ".md"
	if _, err := report.WriteFile(dir, name, report.SessionReport(stats)); err != nil {
		a.logger.Warn("writing session report failed", "error", err)
		return
	}

	if a.cfg.Publish && a.cfg.JarvisRepoDir != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		report.CommitReports(ctx, a.cfg.JarvisRepoDir, a.cfg.ReportsDir, a.logger)
	}
}
