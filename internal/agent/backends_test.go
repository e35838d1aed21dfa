package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadBackendOverrides_MergesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backends.yaml")
	writeFile(t, path, `
backends:
  - name: claude
    model: opus
  - name: aider
    binary: aider
    args: ["--yes", "--message", "{prompt}"]
`)

	base := BuiltinBackends("sonnet", "o4-mini", "codex", "")
	merged, err := LoadBackendOverrides(path, base)
	if err != nil {
		t.Fatalf("LoadBackendOverrides: %v", err)
	}

	if merged["claude"].Model != "opus" {
		t.Errorf("claude model = %q, want opus", merged["claude"].Model)
	}
	// Override without args keeps the builtin invocation shape.
	if !merged["claude"].ParseJSON {
		t.Error("claude lost ParseJSON on model-only override")
	}

	aider, ok := merged["aider"]
	if !ok {
		t.Fatal("new backend not added")
	}
	if aider.Binary != "aider" || len(aider.Args) != 3 {
		t.Errorf("aider = %+v", aider)
	}

	// Untouched builtins survive.
	if merged["codex"].Binary != "codex" {
		t.Errorf("codex = %+v", merged["codex"])
	}
}

func TestLoadBackendOverrides_RejectsNamelessEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backends.yaml")
	writeFile(t, path, "backends:\n  - binary: mystery\n")

	if _, err := LoadBackendOverrides(path, nil); err == nil {
		t.Fatal("expected error for entry without name")
	}
}

func TestLoadBackendOverrides_MissingFile(t *testing.T) {
	if _, err := LoadBackendOverrides("/nonexistent/backends.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
