package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the frozen settings bundle for one orchestrator process. It is
// loaded once from environment variables and never mutated afterwards.
type Config struct {
	GithubToken string
	TargetRepos []string

	// GitHub App installation auth. When AppClientID is set, it takes
	// precedence over GithubToken for API calls.
	AppClientID       string
	AppInstallationID int64
	AppPrivateKey     string

	AnthropicAPIKey string

	PollInterval time.Duration

	// Lifecycle labels.
	IssueLabel      string
	ReadyLabel      string
	DoneLabel       string
	NeedsHumanLabel string

	// Model-selection labels routing an issue to a specific backend first.
	ModelLabelClaude string
	ModelLabelCodex  string
	ModelLabelGemini string

	WorkspaceDir string
	DBPath       string
	BranchPrefix string

	ClaudeModel string
	CodexModel  string
	CodexBinary string
	GeminiModel string

	ReviewRounds         int
	ReviewerBackendOrder []string

	TestCmd     string
	TestTimeout time.Duration

	WebhookPort   int
	WebhookSecret string

	LogLevel string

	SessionTimeout time.Duration
	IssueTimeout   time.Duration

	MaxDiffFiles int
	MaxDiffLOC   int
	DiffIgnore   []string

	MaxTokensPerRun    int
	TokenWarningBuffer int
	MaxIssuesPerPoll   int
	TokenBudgetScope   string // "cycle" or "lifetime"

	BackendsConfig string
	PromptsDir     string

	ReportsDir    string
	JarvisRepoDir string
	Publish       bool

	GitAuthorName  string
	GitAuthorEmail string
}

// Load reads a .env file when present (best-effort) and builds the Config
// from the environment.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything optional.
func FromEnv() Config {
	return Config{
		GithubToken: os.Getenv("GITHUB_TOKEN"),
		TargetRepos: splitList(os.Getenv("TARGET_REPO")),

		AppClientID:       os.Getenv("GITHUB_APP_CLIENT_ID"),
		AppInstallationID: envInt64("GITHUB_APP_INSTALLATION_ID", 0),
		AppPrivateKey:     os.Getenv("GITHUB_APP_PRIVATE_KEY"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		PollInterval: envSeconds("POLL_INTERVAL", 60),

		IssueLabel:      envStr("ISSUE_LABEL", "jarvis"),
		ReadyLabel:      envStr("READY_LABEL", "jarvis-ready"),
		DoneLabel:       envStr("DONE_LABEL", "jarvis-done"),
		NeedsHumanLabel: envStr("NEEDS_HUMAN_LABEL", "jarvis-needs-human"),

		ModelLabelClaude: envStr("MODEL_LABEL_CLAUDE", "jarvis-cl"),
		ModelLabelCodex:  envStr("MODEL_LABEL_CODEX", "jarvis-co"),
		ModelLabelGemini: envStr("MODEL_LABEL_GEMINI", "jarvis-gem"),

		WorkspaceDir: envStr("WORKSPACE_DIR", "/tmp/jarvis-workspace"),
		DBPath:       envStr("DB_PATH", "jarvis.db"),
		BranchPrefix: envStr("BRANCH_PREFIX", "jarvis/issue-"),

		ClaudeModel: envStr("CLAUDE_MODEL", "sonnet"),
		CodexModel:  envStr("CODEX_MODEL", "o4-mini"),
		CodexBinary: envStr("CODEX_BINARY", "codex"),
		GeminiModel: os.Getenv("GEMINI_MODEL"),

		ReviewRounds:         envIntMin("REVIEW_ROUNDS", 2, 1),
		ReviewerBackendOrder: splitList(envStr("REVIEWER_BACKEND_ORDER", "gemini,claude,codex")),

		TestCmd:     os.Getenv("TEST_CMD"),
		TestTimeout: envSeconds("TEST_TIMEOUT_S", 900),

		WebhookPort:   envInt("WEBHOOK_PORT", 8080),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		LogLevel: envStr("LOG_LEVEL", "INFO"),

		SessionTimeout: envSeconds("SESSION_TIMEOUT", 7200),
		IssueTimeout:   envSeconds("ISSUE_TIMEOUT", 1800),

		MaxDiffFiles: envInt("MAX_DIFF_FILES", 40),
		MaxDiffLOC:   envInt("MAX_DIFF_LOC", 1000),
		DiffIgnore:   splitList(os.Getenv("DIFF_IGNORE")),

		MaxTokensPerRun:    envInt("MAX_TOKENS_PER_RUN", 180000),
		TokenWarningBuffer: envInt("TOKEN_WARNING_BUFFER", 5000),
		MaxIssuesPerPoll:   envInt("MAX_ISSUES_PER_POLL", 0),
		TokenBudgetScope:   envStr("TOKEN_BUDGET_SCOPE", "cycle"),

		BackendsConfig: os.Getenv("BACKENDS_CONFIG"),
		PromptsDir:     os.Getenv("PROMPTS_DIR"),

		ReportsDir:    envStr("REPORTS_DIR", "reports"),
		JarvisRepoDir: os.Getenv("JARVIS_REPO_DIR"),
		Publish:       envBool("PUBLISH"),

		GitAuthorName:  envStr("AGENT_GIT_NAME", "Jarvis"),
		GitAuthorEmail: envStr("AGENT_GIT_EMAIL", "jarvis@bot.dev"),
	}
}

// Validate returns the list of configuration problems that prevent the
// orchestrator from talking to external services. Empty means valid.
func (c Config) Validate() []string {
	var errs []string
	if c.GithubToken == "" && c.AppClientID == "" {
		errs = append(errs, "GITHUB_TOKEN is required (or GITHUB_APP_CLIENT_ID for app auth)")
	}
	if len(c.TargetRepos) == 0 {
		errs = append(errs, "TARGET_REPO is required (comma-separated for multiple)")
	}
	for _, repo := range c.TargetRepos {
		if !strings.Contains(repo, "/") {
			errs = append(errs, fmt.Sprintf("TARGET_REPO %q must be in owner/repo format", repo))
		}
	}
	if c.TokenBudgetScope != "cycle" && c.TokenBudgetScope != "lifetime" {
		errs = append(errs, fmt.Sprintf("TOKEN_BUDGET_SCOPE %q must be 'cycle' or 'lifetime'", c.TokenBudgetScope))
	}
	return errs
}

// TriggerLabels returns every label that makes an issue eligible for
// processing: the issue label plus all model-selection labels.
func (c Config) TriggerLabels() []string {
	return []string{c.IssueLabel, c.ModelLabelClaude, c.ModelLabelCodex, c.ModelLabelGemini}
}

// ModelLabels maps each backend name to its selection label.
func (c Config) ModelLabels() map[string]string {
	return map[string]string{
		"claude": c.ModelLabelClaude,
		"codex":  c.ModelLabelCodex,
		"gemini": c.ModelLabelGemini,
	}
}

// SlogLevel translates LOG_LEVEL into a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envIntMin(key string, fallback, min int) int {
	n := envInt(key, fallback)
	if n < min {
		return min
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(key, fallbackSeconds)) * time.Second
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
