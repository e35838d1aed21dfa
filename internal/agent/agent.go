package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jarvishq/jarvis/internal/shell"
)

// Result is the outcome of one backend invocation.
type Result struct {
	Backend   string
	Output    string
	Outcome   Outcome
	ExitCode  int
	TimedOut  bool
	TokensIn  int
	TokensOut int
}

// Tokens returns input plus output tokens, when the backend reported them.
func (r Result) Tokens() int { return r.TokensIn + r.TokensOut }

// Agent drives coding-agent CLIs as subprocesses.
type Agent struct {
	backends map[string]Descriptor
	logger   *slog.Logger
	env      []string
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithEnv appends extra environment variables for backend subprocesses.
func WithEnv(env []string) Option {
	return func(a *Agent) { a.env = env }
}

// New creates an Agent over the given backend table.
func New(backends map[string]Descriptor, opts ...Option) *Agent {
	a := &Agent{backends: backends}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Backends returns the names the agent can dispatch to.
func (a *Agent) Backends() []string {
	names := make([]string, 0, len(a.backends))
	for name := range a.backends {
		names = append(names, name)
	}
	return names
}

// Has reports whether the named backend is configured.
func (a *Agent) Has(name string) bool {
	_, ok := a.backends[name]
	return ok
}

// Invoke runs one backend with the prompt in dir, bounded by timeout. The
// Result carries output and classification even on failure; err is reserved
// for unknown backends and spawn problems.
func (a *Agent) Invoke(ctx context.Context, backend, prompt, dir string, timeout time.Duration) (Result, error) {
	d, ok := a.backends[backend]
	if !ok {
		return Result{}, fmt.Errorf("unknown backend %q", backend)
	}

	args := expandArgs(d, prompt)
	stdin := ""
	if wantsStdin(d) {
		stdin = prompt
	}

	a.logger.Info("invoking backend", "backend", d.Name, "model", d.Model, "dir", dir, "timeout", timeout)
	runner := &shell.Runner{Dir: dir, Env: a.env}
	start := time.Now()
	res, err := runner.Capture(ctx, timeout, stdin, d.Binary, args...)
	if err != nil {
		return Result{Backend: d.Name}, fmt.Errorf("invoking %s: %w", d.Name, err)
	}

	out := Result{
		Backend:  d.Name,
		Output:   res.Combined(),
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
	}

	if d.ParseJSON && res.ExitCode == 0 && !res.TimedOut {
		if text, in, tokOut, ok := parseClaudeJSON(res.Stdout); ok {
			out.Output = text
			out.TokensIn = in
			out.TokensOut = tokOut
		}
	}

	out.Outcome = Classify(out.ExitCode, out.Output, out.TimedOut)
	a.logger.Info("backend finished",
		"backend", d.Name,
		"outcome", out.Outcome.String(),
		"exit_code", out.ExitCode,
		"tokens", out.Tokens(),
		"duration", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// parseClaudeJSON extracts the result text and token usage from Claude's
// --output-format json payload.
func parseClaudeJSON(raw string) (text string, tokensIn, tokensOut int, ok bool) {
	var payload struct {
		Result string `json:"result"`
		Usage  struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", 0, 0, false
	}
	return payload.Result, payload.Usage.InputTokens, payload.Usage.OutputTokens, true
}
