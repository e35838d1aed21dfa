package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jarvishq/jarvis/internal/ledger"
	"github.com/jarvishq/jarvis/internal/orchestrator"
)

// Run handles `jarvis run <issue> [owner/repo]`: process one issue
// immediately, bypassing the poll cycle and its label filter.
func Run(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: jarvis run <issue-number> [owner/repo]")
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("issue number %q is not a number", args[0])
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	repoSlug := a.cfg.TargetRepos[0]
	if len(args) > 1 {
		repoSlug = args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := a.orch.RunSingle(ctx, repoSlug, number)
	if errors.Is(err, orchestrator.ErrClaimed) {
		fmt.Printf("issue #%d is already claimed by an earlier run\n", number)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("run #%d finished: %s\n", run.ID, run.Status)
	if run.PRURL != "" {
		fmt.Printf("pull request: %s\n", run.PRURL)
	}
	if run.Error != "" {
		fmt.Printf("error: %s\n", run.Error)
	}
	if run.Status != ledger.StatusSuccess {
		os.Exit(1)
	}
	return nil
}
