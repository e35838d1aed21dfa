package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jarvishq/jarvis/internal/agent"
	"github.com/jarvishq/jarvis/internal/config"
	"github.com/jarvishq/jarvis/internal/github"
	"github.com/jarvishq/jarvis/internal/ledger"
	"github.com/jarvishq/jarvis/internal/orchestrator"
	"github.com/jarvishq/jarvis/internal/workspace"
)

// app bundles the wired-up components every long-running command needs.
type app struct {
	cfg    config.Config
	db     *ledger.DB
	gh     *github.Client
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildApp loads config, validates it, and wires the ledger, GitHub client,
// agent backends, and orchestrator together.
func buildApp() (*app, error) {
	cfg := config.Load()
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	db, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	var ghOpts []github.Option
	if cfg.AppClientID != "" {
		ghOpts = append(ghOpts, github.WithAppAuth(github.AppCredentials{
			ClientID:       cfg.AppClientID,
			InstallationID: cfg.AppInstallationID,
			PrivateKeyPath: cfg.AppPrivateKey,
		}))
	}
	gh, err := github.New(cfg.GithubToken, ghOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating github client: %w", err)
	}

	backends := agent.BuiltinBackends(cfg.ClaudeModel, cfg.CodexModel, cfg.CodexBinary, cfg.GeminiModel)
	if cfg.BackendsConfig != "" {
		backends, err = agent.LoadBackendOverrides(cfg.BackendsConfig, backends)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("loading backend overrides: %w", err)
		}
	}
	var agentOpts []agent.Option
	agentOpts = append(agentOpts, agent.WithLogger(logger))
	if cfg.AnthropicAPIKey != "" {
		agentOpts = append(agentOpts, agent.WithEnv([]string{"ANTHROPIC_API_KEY=" + cfg.AnthropicAPIKey}))
	}
	inv := agent.New(backends, agentOpts...)

	workspaces := func(owner, repo string) orchestrator.Repo {
		return workspace.New(cfg.WorkspaceDir, owner, repo,
			workspace.WithLogger(logger),
			workspace.WithAuthor(cfg.GitAuthorName, cfg.GitAuthorEmail))
	}

	orch := orchestrator.New(cfg, db, gh, inv, workspaces, orchestrator.WithLogger(logger))

	return &app{cfg: cfg, db: db, gh: gh, orch: orch, logger: logger}, nil
}

// openLedger opens the ledger alone, for read-only commands that do not
// need GitHub credentials.
func openLedger() (*ledger.DB, error) {
	cfg := config.Load()
	db, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return db, nil
}
