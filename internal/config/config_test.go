package config

import (
	"log/slog"
	"strings"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.IssueLabel != "jarvis" {
		t.Errorf("IssueLabel = %q, want %q", cfg.IssueLabel, "jarvis")
	}
	if cfg.DoneLabel != "jarvis-done" {
		t.Errorf("DoneLabel = %q, want %q", cfg.DoneLabel, "jarvis-done")
	}
	if cfg.BranchPrefix != "jarvis/issue-" {
		t.Errorf("BranchPrefix = %q, want %q", cfg.BranchPrefix, "jarvis/issue-")
	}
	if cfg.ReviewRounds != 2 {
		t.Errorf("ReviewRounds = %d, want 2", cfg.ReviewRounds)
	}
	if cfg.MaxDiffFiles != 40 || cfg.MaxDiffLOC != 1000 {
		t.Errorf("diff limits = %d/%d, want 40/1000", cfg.MaxDiffFiles, cfg.MaxDiffLOC)
	}
	if cfg.TokenBudgetScope != "cycle" {
		t.Errorf("TokenBudgetScope = %q, want %q", cfg.TokenBudgetScope, "cycle")
	}
	want := []string{"gemini", "claude", "codex"}
	if len(cfg.ReviewerBackendOrder) != len(want) {
		t.Fatalf("ReviewerBackendOrder = %v, want %v", cfg.ReviewerBackendOrder, want)
	}
	for i, name := range want {
		if cfg.ReviewerBackendOrder[i] != name {
			t.Errorf("ReviewerBackendOrder[%d] = %q, want %q", i, cfg.ReviewerBackendOrder[i], name)
		}
	}
}

func TestFromEnv_ParsesOverrides(t *testing.T) {
	t.Setenv("TARGET_REPO", "octocat/hello, octocat/world ,")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("REVIEW_ROUNDS", "0")
	t.Setenv("PUBLISH", "yes")
	t.Setenv("DIFF_IGNORE", "**/*.lock,vendor/**")

	cfg := FromEnv()

	if len(cfg.TargetRepos) != 2 || cfg.TargetRepos[0] != "octocat/hello" || cfg.TargetRepos[1] != "octocat/world" {
		t.Errorf("TargetRepos = %v", cfg.TargetRepos)
	}
	if cfg.PollInterval.Seconds() != 5 {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	// REVIEW_ROUNDS is clamped to at least one round.
	if cfg.ReviewRounds != 1 {
		t.Errorf("ReviewRounds = %d, want 1", cfg.ReviewRounds)
	}
	if !cfg.Publish {
		t.Error("Publish = false, want true")
	}
	if len(cfg.DiffIgnore) != 2 {
		t.Errorf("DiffIgnore = %v, want two patterns", cfg.DiffIgnore)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.GithubToken = "" },
			wantErr: "GITHUB_TOKEN",
		},
		{
			name:    "missing repos",
			mutate:  func(c *Config) { c.TargetRepos = nil },
			wantErr: "TARGET_REPO is required",
		},
		{
			name:    "malformed repo",
			mutate:  func(c *Config) { c.TargetRepos = []string{"not-a-slug"} },
			wantErr: "owner/repo",
		},
		{
			name:    "bad budget scope",
			mutate:  func(c *Config) { c.TokenBudgetScope = "hourly" },
			wantErr: "TOKEN_BUDGET_SCOPE",
		},
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			cfg.GithubToken = "tok"
			cfg.TargetRepos = []string{"o/r"}
			tt.mutate(&cfg)

			errs := cfg.Validate()
			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Fatalf("Validate() = %v, want empty", errs)
				}
				return
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want one containing %q", errs, tt.wantErr)
			}
		})
	}
}

func TestTriggerLabels_IncludesModelLabels(t *testing.T) {
	cfg := FromEnv()
	labels := cfg.TriggerLabels()
	want := map[string]bool{"jarvis": true, "jarvis-cl": true, "jarvis-co": true, "jarvis-gem": true}
	if len(labels) != len(want) {
		t.Fatalf("TriggerLabels() = %v", labels)
	}
	for _, l := range labels {
		if !want[l] {
			t.Errorf("unexpected trigger label %q", l)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.raw}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
