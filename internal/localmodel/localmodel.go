// Package localmodel implements C8: the interface the controller calls
// to get text out of the on-device model, plus a child-process adapter
// that spawns the model binary as a subprocess, per spec — no HTTP
// transport to a local model server.
package localmodel

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Ishabdullah/genesis/internal/types"
)

// Params is the enumerated bag of generation parameters the controller
// may pass. Zero values mean "use the adapter's configured default".
type Params struct {
	MaxTokens     int
	Threads       int
	Temperature   float64
	TopP          float64
	TopK          int
	ContextSize   int
	RepeatPenalty float64
	StopTokens    []string
}

// LocalModel is the contract the controller depends on.
type LocalModel interface {
	Generate(ctx context.Context, prompt string, params Params) (types.LocalResponse, error)
}

// defaultTimeout is the hard wall-clock ceiling a spawned child process
// may run before being killed; Generate always returns rather than
// hang, per spec.
const defaultTimeout = 120 * time.Second

// ChildProcess spawns a configured binary per call with the prompt on
// stdin, reads the model's answer from stdout, and routes stderr to
// the process log. Configuration is read from a tiered set of env
// vars, the same {PREFIX}_{KEY}-falls-back-to-shared-{KEY} idiom used
// for the former HTTP-backed tiers.
type ChildProcess struct {
	binary  string
	args    []string
	timeout time.Duration
	label   string
}

// New builds a ChildProcess from the shared LOCALMODEL_* env vars.
func New() *ChildProcess {
	return NewTier("")
}

// NewTier builds a ChildProcess for a named tier, falling back to the
// shared LOCALMODEL_* vars for anything the tier doesn't override.
//
//	{PREFIX}_BIN       -> LOCALMODEL_BIN        (path to the model binary)
//	{PREFIX}_ARGS      -> LOCALMODEL_ARGS        (space-separated extra args)
//	{PREFIX}_TIMEOUT_S -> LOCALMODEL_TIMEOUT_S  (seconds; default 120)
func NewTier(prefix string) *ChildProcess {
	get := func(suffix, fallback string) string {
		if prefix != "" {
			if v := os.Getenv(prefix + "_" + suffix); v != "" {
				return v
			}
		}
		return os.Getenv(fallback)
	}
	label := prefix
	if label == "" {
		label = "LOCALMODEL"
	}
	timeout := defaultTimeout
	if raw := get("TIMEOUT_S", "LOCALMODEL_TIMEOUT_S"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	var args []string
	if raw := get("ARGS", "LOCALMODEL_ARGS"); raw != "" {
		args = strings.Fields(raw)
	}
	return &ChildProcess{
		binary:  get("BIN", "LOCALMODEL_BIN"),
		args:    args,
		timeout: timeout,
		label:   label,
	}
}

// Generate spawns the configured binary, writes prompt and the
// flattened param bag to its command line/stdin, and waits up to the
// configured wall-clock timeout. It never hangs: a timed-out or failed
// spawn returns an error, never a zero-value success.
func (c *ChildProcess) Generate(ctx context.Context, prompt string, params Params) (types.LocalResponse, error) {
	if c.binary == "" {
		return types.LocalResponse{}, fmt.Errorf("localmodel: no binary configured for tier %q: %w", c.label, types.ErrLocalModelFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.args...), paramFlags(params)...)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.WaitDelay = time.Second // bound Wait even if a grandchild still holds the pipes
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start).Milliseconds()

	if ctx.Err() == context.DeadlineExceeded {
		logStderr(c.label, stderr.String())
		return types.LocalResponse{}, fmt.Errorf("localmodel: %s timed out after %s: %w", c.label, c.timeout, types.ErrLocalModelFailed)
	}
	if err != nil {
		logStderr(c.label, stderr.String())
		return types.LocalResponse{}, fmt.Errorf("localmodel: %s process failed: %w: %w", c.label, types.ErrLocalModelFailed, err)
	}
	logStderr(c.label, stderr.String())

	if strings.TrimSpace(stdout.String()) == "" {
		return types.LocalResponse{}, fmt.Errorf("localmodel: %s produced no output: %w", c.label, types.ErrLocalModelFailed)
	}
	text := cleanOutput(stdout.String(), prompt)
	return types.LocalResponse{Text: text, LatencyMS: latency}, nil
}

func paramFlags(p Params) []string {
	var flags []string
	add := func(flag, val string) {
		if val != "" {
			flags = append(flags, flag, val)
		}
	}
	if p.MaxTokens > 0 {
		add("--max-tokens", strconv.Itoa(p.MaxTokens))
	}
	if p.Threads > 0 {
		add("--threads", strconv.Itoa(p.Threads))
	}
	if p.Temperature > 0 {
		add("--temp", strconv.FormatFloat(p.Temperature, 'f', -1, 64))
	}
	if p.TopP > 0 {
		add("--top-p", strconv.FormatFloat(p.TopP, 'f', -1, 64))
	}
	if p.TopK > 0 {
		add("--top-k", strconv.Itoa(p.TopK))
	}
	if p.ContextSize > 0 {
		add("--ctx-size", strconv.Itoa(p.ContextSize))
	}
	if p.RepeatPenalty > 0 {
		add("--repeat-penalty", strconv.FormatFloat(p.RepeatPenalty, 'f', -1, 64))
	}
	for _, s := range p.StopTokens {
		flags = append(flags, "--stop", s)
	}
	return flags
}

// cleanOutput strips a leading restatement of the prompt and any
// "Assistant:" marker the model tends to echo before its real answer.
func cleanOutput(raw, prompt string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, strings.TrimSpace(prompt))
	text = strings.TrimSpace(text)
	for _, marker := range []string{"Assistant:", "assistant:", "ASSISTANT:"} {
		if idx := strings.Index(text, marker); idx == 0 {
			text = strings.TrimSpace(text[len(marker):])
		}
	}
	return text
}

func logStderr(label, stderr string) {
	if strings.TrimSpace(stderr) == "" {
		return
	}
	log.Printf("[%s] stderr: %s", label, strings.TrimSpace(stderr))
}
