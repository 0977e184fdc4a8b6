// Command genesis is the composition root: it wires every internal
// package into a running assistant and drives either a one-shot query
// or an interactive REPL, following the same construction-order,
// signal-handling, and readline idioms as the teacher's own CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/Ishabdullah/genesis/internal/accel"
	"github.com/Ishabdullah/genesis/internal/adapters"
	"github.com/Ishabdullah/genesis/internal/bridge"
	"github.com/Ishabdullah/genesis/internal/config"
	"github.com/Ishabdullah/genesis/internal/direct"
	"github.com/Ishabdullah/genesis/internal/fallback"
	"github.com/Ishabdullah/genesis/internal/feedback"
	"github.com/Ishabdullah/genesis/internal/llm"
	"github.com/Ishabdullah/genesis/internal/localmodel"
	"github.com/Ishabdullah/genesis/internal/memory"
	"github.com/Ishabdullah/genesis/internal/pipeline"
	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/tasklog"
	"github.com/Ishabdullah/genesis/internal/timesync"
	"github.com/Ishabdullah/genesis/internal/tools"
	"github.com/Ishabdullah/genesis/internal/tracer"
	"github.com/Ishabdullah/genesis/internal/types"
	"github.com/Ishabdullah/genesis/internal/websearch"
)

func main() {
	_ = godotenv.Load(".env")

	baseDir := resolveBaseDir()
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "could not create base directory %s: %v\n", baseDir, err)
		os.Exit(1)
	}

	if f, err := os.OpenFile(filepath.Join(baseDir, "debug.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	// Config precedence: defaults < YAML file < environment.
	cfg, err := config.Load(resolveConfigPath(baseDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load warning: %v\n", err)
	}

	st := store.New(baseDir)

	mem, err := memory.New(st, filepath.Join(baseDir, "memory.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open memory store: %v\n", err)
		os.Exit(1)
	}

	clock := timesync.New(st, 0)
	trc := tracer.New()
	dh := direct.New(mem)
	ledger := feedback.New(st)
	accelMgr := accel.New(st)

	model := localmodel.New()
	cascade := buildCascade(st, cfg)

	logReg := tasklog.NewRegistry(filepath.Join(baseDir, "logs"))

	br := buildBridge(baseDir, logReg.Bridge(), cfg)

	ctrl := pipeline.New(pipeline.Config{
		Memory:           mem,
		Tracer:           trc,
		Direct:           dh,
		Model:            model,
		Cascade:          cascade,
		Ledger:           ledger,
		Clock:            clock,
		Fallback:         logReg.Fallback(),
		Accel:            accelMgr,
		ModelPath:        tools.ExpandHome(firstNonEmpty(os.Getenv("GENESIS_MODEL_PATH"), cfg.ModelPath)),
		DevicePreference: firstNonEmpty(os.Getenv("GENESIS_DEVICE_PREFERENCE"), cfg.DevicePreference),
		ModelParams:      localmodel.Params{},
		BridgeToggle:     br.toggle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	clock.Start(ctx)
	go mem.Run(ctx)

	defer func() {
		mem.Close()
		logReg.CloseAll()
		br.stop()
	}()

	if len(os.Args) > 1 {
		runOneShot(ctx, ctrl, strings.Join(os.Args[1:], " "))
		return
	}
	runREPL(ctx, cancel, ctrl, baseDir)
}

// resolveBaseDir honors GENESIS_HOME, defaulting to a subdirectory of
// the user's home directory (spec.md §6).
func resolveBaseDir() string {
	if v := os.Getenv("GENESIS_HOME"); v != "" {
		return tools.ExpandHome(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genesis"
	}
	return filepath.Join(home, ".genesis")
}

// resolveConfigPath honors GENESIS_CONFIG, defaulting to config.yaml
// inside the base directory. A missing file is not an error — see
// config.Load.
func resolveConfigPath(baseDir string) string {
	if v := os.Getenv("GENESIS_CONFIG"); v != "" {
		return tools.ExpandHome(v)
	}
	return filepath.Join(baseDir, "config.yaml")
}

// firstNonEmpty returns the first non-empty string, implementing the
// defaults < YAML file < environment precedence at each call site
// (env is checked first since callers pass it as the leading arg).
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildCascade wires C10's fixed cascade order to concrete adapters:
// websearch (always available), and the two LLM tiers when their
// env-configured credentials are present. An adapter with no
// configured client is simply left unregistered — the orchestrator
// treats a missing adapter as an automatic failure for that source.
func buildCascade(st *store.Store, cfg config.Config) *fallback.Orchestrator {
	agg := websearch.Default(st)
	reg := map[types.Source]fallback.Adapter{
		types.SourceWebsearch: adapters.NewWebsearch(agg),
	}
	if hasCredentials("PROVIDER_B") {
		reg[types.SourceProviderB] = adapters.NewLLMProvider(llm.NewTier("PROVIDER_B"),
			"Synthesize a clear, well-structured answer.", 10)
	}
	if hasCredentials("PROVIDER_C") {
		reg[types.SourceProviderC] = adapters.NewLLMProvider(llm.NewTier("PROVIDER_C"),
			"Write correct, idiomatic code with a brief explanation.", 10)
	}
	var opts []fallback.Option
	if cfg.FallbackTimeoutSeconds > 0 {
		opts = append(opts, fallback.WithSourceTimeout(time.Duration(cfg.FallbackTimeoutSeconds)*time.Second))
	}
	return fallback.New(reg, opts...)
}

// hasCredentials reports whether prefix's tier (or the shared
// OPENAI_API_KEY fallback llm.NewTier itself would use) has an API key
// configured, so an unconfigured provider is left out of the cascade
// entirely rather than registered and failing every call.
func hasCredentials(prefix string) bool {
	return os.Getenv(prefix+"_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != ""
}

// bridgeHandle owns the LocalBridge's actual lifecycle so the pipeline
// package never imports net/http directly (§9's "constructor
// parameters, not a singleton" note extends to who may start a
// listener).
type bridgeHandle struct {
	cfg     bridge.Config
	audit   *tasklog.Stream
	cancel  context.CancelFunc
	running bool
}

func buildBridge(baseDir string, audit *tasklog.Stream, fileCfg config.Config) *bridgeHandle {
	port := 8765
	if fileCfg.BridgePort > 0 {
		port = fileCfg.BridgePort
	}
	if v := os.Getenv("GENESIS_BRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return &bridgeHandle{
		cfg: bridge.Config{
			Host:       "127.0.0.1",
			Port:       port,
			Secret:     firstNonEmpty(os.Getenv("GENESIS_BRIDGE_SECRET"), fileCfg.BridgeSecret),
			RuntimeDir: filepath.Join(baseDir, "bridge_runtime"),
		},
		audit: audit,
	}
}

func (h *bridgeHandle) toggle() string {
	if h.running {
		h.stop()
		return "bridge stopped"
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.running = true
	srv := bridge.New(h.cfg, h.audit)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Printf("[BRIDGE] exited: %v", err)
		}
	}()
	return fmt.Sprintf("bridge listening on %s:%d", h.cfg.Host, h.cfg.Port)
}

func (h *bridgeHandle) stop() {
	if h.running && h.cancel != nil {
		h.cancel()
	}
	h.running = false
}

func runOneShot(ctx context.Context, ctrl *pipeline.Controller, input string) {
	out := ctrl.Process(ctx, input)
	fmt.Println(out.Text)
}

func runREPL(ctx context.Context, cancel context.CancelFunc, ctrl *pipeline.Controller, baseDir string) {
	fmt.Println("\033[1m\033[36mgenesis\033[0m  \033[2m(#exit or Ctrl-D to quit, #help for commands)\033[0m")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[36m>\033[0m ",
		HistoryFile:       filepath.Join(baseDir, "history"),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "#exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init error: %v\n", err)
		cancel()
		return
	}
	defer rl.Close()

	intrCh := make(chan os.Signal, 1)
	signal.Notify(intrCh, os.Interrupt)
	defer signal.Stop(intrCh)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("\n\033[2m(Ctrl+C again or #exit to quit)\033[0m")
			line2, err2 := rl.Readline()
			if err2 == readline.ErrInterrupt || strings.TrimSpace(line2) == "#exit" {
				cancel()
				return
			}
			line, err = line2, err2
		}
		if err != nil {
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		turnCtx, turnCancel := context.WithTimeout(ctx, 2*time.Minute)
		out := ctrl.Process(turnCtx, input)
		turnCancel()

		fmt.Println(out.Text)
		if out.Exit {
			cancel()
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}
