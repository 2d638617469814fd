package cmd

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	if err := fn(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	r.Close()
	return buf.String()
}

func TestRunVersion(t *testing.T) {
	originalAppVersion := AppVersion
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		AppVersion = originalAppVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	AppVersion = "1.2.3"
	BuildTime = "2026-08-29T10:00:00Z"
	GitCommit = "abc123"

	output := captureStdout(t, runVersion)

	for _, expected := range []string{
		"ragline 1.2.3",
		"Build Time: 2026-08-29T10:00:00Z",
		"Git Commit: abc123",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q\nGot: %s", expected, output)
		}
	}
	// Version output never requires a valid environment: either the
	// config summary or the unavailability note must follow.
	if !strings.Contains(output, "Configuration:") {
		t.Errorf("expected a configuration section\nGot: %s", output)
	}
}

func TestOrUnset(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(unset)"},
		{"docs-bucket", "docs-bucket"},
	}
	for _, tt := range tests {
		if got := orUnset(tt.in); got != tt.want {
			t.Errorf("orUnset(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
