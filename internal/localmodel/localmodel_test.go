package localmodel

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-model.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestGenerate_ReturnsStdoutAndLatency(t *testing.T) {
	bin := writeScript(t, `cat >/dev/null; echo "hello from the model"`)
	cp := &ChildProcess{binary: bin, timeout: 5 * time.Second, label: "TEST"}

	resp, err := cp.Generate(context.Background(), "hi", Params{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hello from the model" {
		t.Errorf("text = %q, want %q", resp.Text, "hello from the model")
	}
	if resp.LatencyMS < 0 {
		t.Errorf("latency = %d, want >= 0", resp.LatencyMS)
	}
}

func TestGenerate_StripsPromptRestatementAndAssistantMarker(t *testing.T) {
	bin := writeScript(t, `read -r prompt; echo "$prompt"; echo "Assistant: the real answer"`)
	cp := &ChildProcess{binary: bin, timeout: 5 * time.Second, label: "TEST"}

	resp, err := cp.Generate(context.Background(), "what is 2+2", Params{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(resp.Text, "Assistant:") {
		t.Errorf("text = %q, should have the marker stripped", resp.Text)
	}
}

func TestGenerate_TimesOutRatherThanHanging(t *testing.T) {
	bin := writeScript(t, `cat >/dev/null; sleep 5; echo "too late"`)
	cp := &ChildProcess{binary: bin, timeout: 50 * time.Millisecond, label: "TEST"}

	start := time.Now()
	_, err := cp.Generate(context.Background(), "hi", Params{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed > 3*time.Second {
		t.Errorf("Generate took %v, expected to return promptly after the configured timeout", elapsed)
	}
}

func TestGenerate_NoBinaryConfiguredReturnsError(t *testing.T) {
	cp := &ChildProcess{label: "TEST"}
	_, err := cp.Generate(context.Background(), "hi", Params{})
	if err == nil {
		t.Fatal("expected an error when no binary is configured")
	}
}

func TestGenerate_NonZeroExitReturnsError(t *testing.T) {
	bin := writeScript(t, `cat >/dev/null; echo "boom" >&2; exit 1`)
	cp := &ChildProcess{binary: bin, timeout: 5 * time.Second, label: "TEST"}

	_, err := cp.Generate(context.Background(), "hi", Params{})
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
}

func TestNewTier_FallsBackToSharedVars(t *testing.T) {
	t.Setenv("LOCALMODEL_BIN", "/usr/bin/fake")
	t.Setenv("LOCALMODEL_TIMEOUT_S", "30")

	cp := NewTier("BRAIN")
	if cp.binary != "/usr/bin/fake" {
		t.Errorf("binary = %q, want fallback to LOCALMODEL_BIN", cp.binary)
	}
	if cp.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s from shared fallback", cp.timeout)
	}
}

func TestNewTier_PrefixOverridesShared(t *testing.T) {
	t.Setenv("LOCALMODEL_BIN", "/usr/bin/shared")
	t.Setenv("BRAIN_BIN", "/usr/bin/brain-specific")

	cp := NewTier("BRAIN")
	if cp.binary != "/usr/bin/brain-specific" {
		t.Errorf("binary = %q, want tier-specific override", cp.binary)
	}
}

func TestNew_DefaultTimeoutWhenUnset(t *testing.T) {
	cp := New()
	if cp.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default %v", cp.timeout, defaultTimeout)
	}
}

func TestParamFlags_OnlyIncludesSetFields(t *testing.T) {
	flags := paramFlags(Params{MaxTokens: 128, Temperature: 0.7})
	joined := strings.Join(flags, " ")
	if !strings.Contains(joined, "--max-tokens 128") {
		t.Errorf("flags = %q, want --max-tokens 128", joined)
	}
	if !strings.Contains(joined, "--temp 0.7") {
		t.Errorf("flags = %q, want --temp 0.7", joined)
	}
	if strings.Contains(joined, "--top-k") {
		t.Errorf("flags = %q, should omit unset --top-k", joined)
	}
}
