package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/jarvishq/jarvis/internal/retry"

	"github.com/bradleyfalzon/ghinstallation/v2"
	jwt "github.com/golang-jwt/jwt/v4"
)

// Issue represents a GitHub issue eligible for processing.
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
	State  string
	URL    string
}

// PR represents a GitHub pull request.
type PR struct {
	Number  int
	HTMLURL string
	Title   string
	State   string
}

// Client is a typed GitHub API client wrapping go-github.
type Client struct {
	gh           *gh.Client
	token        string
	retryBackoff []time.Duration
}

// Option configures a Client.
type Option func(*clientConfig)

// AppCredentials holds GitHub App authentication parameters.
type AppCredentials struct {
	ClientID       string
	InstallationID int64
	PrivateKeyPath string
}

type clientConfig struct {
	baseURL      string
	retryBackoff []time.Duration
	app          *AppCredentials
}

// readKeyFile is a variable for testing; defaults to os.ReadFile.
var readKeyFile = os.ReadFile

// WithBaseURL overrides the GitHub API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithRetryBackoff overrides the default retry backoff delays.
func WithRetryBackoff(delays ...time.Duration) Option {
	return func(c *clientConfig) { c.retryBackoff = delays }
}

// WithAppAuth configures GitHub App authentication using a Client ID,
// installation ID, and private key file. When set, token is ignored for
// API calls.
func WithAppAuth(app AppCredentials) Option {
	return func(c *clientConfig) { c.app = &app }
}

// New creates a new GitHub API client. When WithAppAuth is provided, the
// client authenticates as a GitHub App installation. Otherwise it
// authenticates with the given personal access token.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var client *gh.Client

	if cfg.app != nil {
		httpClient, err := newAppHTTPClient(cfg.app, cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub App auth: %w", err)
		}
		client = gh.NewClient(httpClient)
		if cfg.baseURL != "" {
			client, _ = client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
		}
	} else {
		client = gh.NewClient(nil).WithAuthToken(token)
		if cfg.baseURL != "" {
			client, _ = client.WithEnterpriseURLs(cfg.baseURL, cfg.baseURL)
		}
	}

	return &Client{gh: client, token: token, retryBackoff: cfg.retryBackoff}, nil
}

// newAppHTTPClient creates an http.Client with a GitHub App installation
// transport that uses Client ID (string) as the JWT issuer.
func newAppHTTPClient(app *AppCredentials, baseURL string) (*http.Client, error) {
	keyData, err := loadPrivateKey(app.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	signer := &clientIDSigner{
		clientID: app.ClientID,
		method:   jwt.SigningMethodRS256,
		key:      key,
	}

	atr, err := ghinstallation.NewAppsTransportWithOptions(
		http.DefaultTransport, 0, // appID unused, the signer overrides the issuer
		ghinstallation.WithSigner(signer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating apps transport: %w", err)
	}

	if baseURL != "" {
		atr.BaseURL = baseURL
	}

	itr := ghinstallation.NewFromAppsTransport(atr, app.InstallationID)
	if baseURL != "" {
		itr.BaseURL = baseURL
	}

	return &http.Client{Transport: itr}, nil
}

// loadPrivateKey accepts either an inline PEM block or a path to a key file.
func loadPrivateKey(raw string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(raw), "-----BEGIN") {
		return []byte(raw), nil
	}
	keyData, err := readKeyFile(expandHome(raw))
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", raw, err)
	}
	return keyData, nil
}

// clientIDSigner implements ghinstallation.Signer using a string Client ID
// as the JWT issuer instead of a numeric App ID.
type clientIDSigner struct {
	clientID string
	method   jwt.SigningMethod
	key      any
}

func (s *clientIDSigner) Sign(claims jwt.Claims) (string, error) {
	if rc, ok := claims.(*jwt.RegisteredClaims); ok {
		rc.Issuer = s.clientID
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

// ListLabeledIssues returns all open issues in the repo carrying the label.
// Pull requests share the issues API on GitHub and are filtered out.
func (c *Client) ListLabeledIssues(ctx context.Context, owner, repo, label string) ([]Issue, error) {
	return retry.DoVal(ctx, func() ([]Issue, error) {
		var all []Issue
		opts := &gh.IssueListByRepoOptions{
			State:       "open",
			Labels:      []string{label},
			ListOptions: gh.ListOptions{PerPage: 100},
		}
		for {
			issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
			if err != nil {
				return nil, classifyErr(fmt.Errorf("listing issues with label %q: %w", label, err))
			}
			for _, is := range issues {
				if is.IsPullRequest() {
					continue
				}
				all = append(all, issueFromGH(is))
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
		return all, nil
	}, c.retryOpts()...)
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	return retry.DoVal(ctx, func() (Issue, error) {
		is, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
		if err != nil {
			return Issue{}, classifyErr(fmt.Errorf("fetching issue #%d: %w", number, err))
		}
		return issueFromGH(is), nil
	}, c.retryOpts()...)
}

// CreatePullRequest opens a pull request and returns it.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, head, base, title, body string) (PR, error) {
	return retry.DoVal(ctx, func() (PR, error) {
		pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
			Title: gh.Ptr(title),
			Head:  gh.Ptr(head),
			Base:  gh.Ptr(base),
			Body:  gh.Ptr(body),
		})
		if err != nil {
			return PR{}, classifyErr(fmt.Errorf("creating pull request: %w", err))
		}
		return PR{
			Number:  pr.GetNumber(),
			HTMLURL: pr.GetHTMLURL(),
			Title:   pr.GetTitle(),
			State:   pr.GetState(),
		}, nil
	}, c.retryOpts()...)
}

// FindOpenPR finds an existing open PR for the given head and base branches.
// Returns nil when no matching open PR exists.
func (c *Client) FindOpenPR(ctx context.Context, owner, repo, head, base string) (*PR, error) {
	return retry.DoVal(ctx, func() (*PR, error) {
		prs, _, err := c.gh.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
			Head:  owner + ":" + head,
			Base:  base,
			State: "open",
		})
		if err != nil {
			return nil, classifyErr(fmt.Errorf("listing PRs: %w", err))
		}
		if len(prs) == 0 {
			return nil, nil
		}
		pr := PR{
			Number:  prs[0].GetNumber(),
			HTMLURL: prs[0].GetHTMLURL(),
			Title:   prs[0].GetTitle(),
			State:   prs[0].GetState(),
		}
		return &pr, nil
	}, c.retryOpts()...)
}

// Comment posts a comment on the issue (or PR, same API).
func (c *Client) Comment(ctx context.Context, owner, repo string, number int, body string) error {
	return retry.Do(ctx, func() error {
		_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{
			Body: gh.Ptr(body),
		})
		if err != nil {
			return classifyErr(fmt.Errorf("commenting on #%d: %w", number, err))
		}
		return nil
	}, c.retryOpts()...)
}

// AddLabels attaches labels to the issue.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	return retry.Do(ctx, func() error {
		_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
		if err != nil {
			return classifyErr(fmt.Errorf("adding labels to #%d: %w", number, err))
		}
		return nil
	}, c.retryOpts()...)
}

// RemoveLabel detaches a label from the issue. Removing a label that is not
// present is not an error.
func (c *Client) RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error {
	err := retry.Do(ctx, func() error {
		_, err := c.gh.Issues.RemoveLabelForIssue(ctx, owner, repo, number, label)
		if err != nil {
			return classifyErr(fmt.Errorf("removing label %q from #%d: %w", label, number, err))
		}
		return nil
	}, c.retryOpts()...)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// SwapLabels removes old labels and adds new ones on the issue. Missing
// removals are ignored; the first add failure is returned.
func (c *Client) SwapLabels(ctx context.Context, owner, repo string, number int, remove, add []string) error {
	for _, label := range remove {
		if err := c.RemoveLabel(ctx, owner, repo, number, label); err != nil {
			return err
		}
	}
	return c.AddLabels(ctx, owner, repo, number, add)
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return retry.DoVal(ctx, func() (string, error) {
		r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return "", classifyErr(fmt.Errorf("fetching repository: %w", err))
		}
		return r.GetDefaultBranch(), nil
	}, c.retryOpts()...)
}

// CloneURL returns an https clone URL carrying the access token, suitable
// for non-interactive git.
func (c *Client) CloneURL(owner, repo string) string {
	if c.token == "" {
		return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	}
	return fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", c.token, owner, repo)
}

func issueFromGH(is *gh.Issue) Issue {
	out := Issue{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		Body:   is.GetBody(),
		State:  is.GetState(),
		URL:    is.GetHTMLURL(),
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}

// retryOpts returns the retry options for this client.
func (c *Client) retryOpts() []retry.Option {
	if len(c.retryBackoff) > 0 {
		return []retry.Option{retry.WithBackoff(c.retryBackoff...)}
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// classifyErr wraps a go-github error as permanent if it's a client error
// (4xx), and leaves it retryable for server errors (5xx) and network errors.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode >= 400 && ghErr.Response.StatusCode < 500 {
			return retry.Permanent(err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
