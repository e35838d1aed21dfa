package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jarvishq/jarvis/internal/github"
	"github.com/jarvishq/jarvis/internal/ledger"
)

// Processor handles issues delivered by webhook. Implemented by the
// orchestrator.
type Processor interface {
	ProcessIssue(ctx context.Context, owner, repo string, issue github.Issue, trigger ledger.Trigger) (ledger.Run, error)
	ShouldProcess(issue github.Issue) bool
}

// Ledger is the read surface for the status endpoint.
type Ledger interface {
	AllRuns() ([]ledger.Run, error)
}

// Config holds webhook server configuration.
type Config struct {
	// Secret enables HMAC-SHA256 signature verification when non-empty.
	Secret string
	// Repos lists the owner/repo slugs the server accepts events for.
	Repos []string
	// Labels lists the issue labels that trigger processing.
	Labels []string
	// Processor receives accepted issues. Required.
	Processor Processor
	// Ledger backs GET /api/status. Optional.
	Ledger Ledger
	// Hub, when non-nil, serves GET /api/ws for run-event streaming.
	Hub *Hub
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the webhook front-end.
type Server struct {
	mux      *http.ServeMux
	listener net.Listener
	cfg      Config
	logger   *slog.Logger
	startAt  time.Time
}

// New creates a Server bound to the given address (e.g. ":8080"). It does
// not start serving; call Serve for that.
func New(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:      http.NewServeMux(),
		listener: ln,
		cfg:      cfg,
		logger:   logger,
		startAt:  time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

// Addr returns the listener's address (useful when binding to :0 in tests).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve starts accepting connections. It blocks until the listener is
// closed.
func (s *Server) Serve() error {
	return http.Serve(s.listener, s.mux)
}

// Close shuts down the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.cfg.Hub != nil {
		s.mux.HandleFunc("GET /api/ws", s.cfg.Hub.ServeWS)
	}
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}

// issueEvent is the subset of the GitHub issues webhook payload we use.
type issueEvent struct {
	Action string `json:"action"`
	Label  struct {
		Name string `json:"name"`
	} `json:"label"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if s.cfg.Secret != "" {
		if !verifySignature(s.cfg.Secret, body, r.Header.Get("X-Hub-Signature-256")) {
			s.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "issues" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "event"})
		return
	}

	var ev issueEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "parsing payload", http.StatusBadRequest)
		return
	}

	if ev.Action != "labeled" || !s.labelAllowed(ev.Label.Name) || !s.repoAllowed(ev.Repository.FullName) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "filter"})
		return
	}

	issue := github.Issue{
		Number: ev.Issue.Number,
		Title:  ev.Issue.Title,
		Body:   ev.Issue.Body,
		State:  ev.Issue.State,
	}
	for _, l := range ev.Issue.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	if !s.cfg.Processor.ShouldProcess(issue) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "labels"})
		return
	}

	owner, repoName, ok := splitSlug(ev.Repository.FullName)
	if !ok {
		http.Error(w, "malformed repository", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing so GitHub does not retry long runs.
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	go func() {
		s.logger.Info("webhook accepted", "issue", issue.Number, "repo", ev.Repository.FullName)
		if _, err := s.cfg.Processor.ProcessIssue(context.Background(), owner, repoName, issue, ledger.TriggerWebhook); err != nil {
			s.logger.Warn("webhook-triggered run not started", "issue", issue.Number, "error", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startAt).Round(time.Second).String(),
	}
	if s.cfg.Ledger != nil {
		runs, err := s.cfg.Ledger.AllRuns()
		if err != nil {
			http.Error(w, "reading ledger", http.StatusInternalServerError)
			return
		}
		counts := map[string]int{}
		for _, run := range runs {
			counts[string(run.Status)]++
		}
		resp["runs"] = len(runs)
		resp["by_status"] = counts
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifySignature checks the sha256= HMAC header in constant time.
func verifySignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Server) labelAllowed(name string) bool {
	for _, l := range s.cfg.Labels {
		if l == name {
			return true
		}
	}
	return false
}

func (s *Server) repoAllowed(slug string) bool {
	for _, r := range s.cfg.Repos {
		if r == slug {
			return true
		}
	}
	return false
}

func splitSlug(slug string) (owner, repo string, ok bool) {
	for i := range slug {
		if slug[i] == '/' {
			if i == 0 || i == len(slug)-1 {
				return "", "", false
			}
			return slug[:i], slug[i+1:], true
		}
	}
	return "", "", false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
