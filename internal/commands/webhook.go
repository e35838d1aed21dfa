package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jarvishq/jarvis/internal/webhook"
)

// Webhook handles `jarvis webhook`: serve the GitHub webhook receiver plus
// the status and websocket endpoints until interrupted.
func Webhook(args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	hub := webhook.NewHub(a.logger)
	a.orch.OnRunEvent = hub.BroadcastRunEvent

	srv, err := webhook.New(fmt.Sprintf(":%d", a.cfg.WebhookPort), webhook.Config{
		Secret:    a.cfg.WebhookSecret,
		Repos:     a.cfg.TargetRepos,
		Labels:    a.cfg.TriggerLabels(),
		Processor: a.orch,
		Ledger:    a.db,
		Hub:       hub,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("starting webhook server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	a.logger.Info("webhook server listening", "addr", srv.Addr())
	if err := srv.Serve(); ctx.Err() == nil {
		return err
	}
	return nil
}
