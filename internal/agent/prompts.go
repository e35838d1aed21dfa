package agent

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.md
var templateFS embed.FS

// ImplementData holds the context for rendering the implement prompt.
type ImplementData struct {
	Repo    string
	Number  int
	Title   string
	Body    string
	TestCmd string
}

// ReviewData holds the context for rendering the review prompt.
type ReviewData struct {
	Repo       string
	Number     int
	Title      string
	Body       string
	Diffstat   string
	Diff       string
	TestOutput string
}

// FeedbackData holds the context for rendering the address-feedback prompt.
type FeedbackData struct {
	Repo       string
	Number     int
	Title      string
	Body       string
	Feedback   string
	TestOutput string
	TestCmd    string
}

// RenderImplement renders the prompt for the initial implementation pass.
// If overrideDir contains implement.md, that file is used instead of the
// embedded template.
func RenderImplement(data ImplementData, overrideDir string) (string, error) {
	return render("templates/implement.md", data, overrideDir)
}

// RenderReview renders the prompt asking a reviewer backend for a verdict.
func RenderReview(data ReviewData, overrideDir string) (string, error) {
	return render("templates/review.md", data, overrideDir)
}

// RenderFeedback renders the prompt for a change-request follow-up pass.
func RenderFeedback(data FeedbackData, overrideDir string) (string, error) {
	return render("templates/feedback.md", data, overrideDir)
}

func render(name string, data any, overrideDir string) (string, error) {
	content, err := readTemplate(name, overrideDir)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// readTemplate returns the template content, preferring an override file on
// disk (overrideDir/<filename>) and falling back to the embedded version.
func readTemplate(name, overrideDir string) ([]byte, error) {
	filename := filepath.Base(name)

	if overrideDir != "" {
		overridePath := filepath.Join(overrideDir, filename)
		if content, err := os.ReadFile(overridePath); err == nil {
			return content, nil
		}
	}

	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", name, err)
	}
	return content, nil
}
