// Package bridge implements C15: a loopback-only HTTP listener that
// lets a collaborating tool request sandboxed code execution. Every
// request is checked against the peer address and a shared secret
// before anything is spawned, and every run is capped by a wall-clock
// timeout and a denylist of dangerous operations.
package bridge

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/Ishabdullah/genesis/internal/tasklog"
	"github.com/Ishabdullah/genesis/internal/types"
)

// defaultTimeout is the hard wall-clock ceiling a /run request may
// spend in its child process, per spec.
const defaultTimeout = 20 * time.Second

// deniedPatterns mirrors the original bridge's substring denylist:
// anything here aborts the request with a 400 before a process is ever
// spawned.
var deniedPatterns = []string{
	"import socket",
	"import requests",
	"import urllib",
	"import http.client",
	"os.system(",
	"subprocess.Popen",
	"eval(",
	"exec(",
	"__import__",
	`open("/etc`,
	`open("/sys`,
	`open("/proc`,
	"/etc/",
	"/sys/",
	"/proc/",
}

// Config is the construction-time parameter bag; per spec.md §9 the
// bridge's secret, runtime root, and denylist are constructor
// parameters rather than module-level state.
type Config struct {
	Host       string // listen host, expected to be a loopback address
	Port       int
	Secret     string        // required X-Bridge-Key value
	RuntimeDir string        // working directory for spawned code
	ExecBin    string        // interpreter invoked on the submitted code, e.g. "python3"
	Timeout    time.Duration // per-request wall-clock ceiling; 0 means defaultTimeout
}

// Server is the bridge's HTTP handler plus its audit stream.
type Server struct {
	cfg    Config
	router chi.Router
	audit  *tasklog.Stream
}

// New builds a Server. It does not start listening — call ListenAndServe
// or use Router() with an external http.Server.
func New(cfg Config, audit *tasklog.Stream) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ExecBin == "" {
		cfg.ExecBin = "python3"
	}
	s := &Server{cfg: cfg, audit: audit}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{}, // no browser origin is a legitimate caller
		AllowedMethods:   []string{"GET", "POST"},
		AllowCredentials: false,
	}))
	r.Post("/run", s.handleRun)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	s.router = r
	return s
}

// Router exposes the chi router for embedding in a larger mux or a
// test httptest.Server.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe binds cfg.Host:cfg.Port and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler: s.router,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type runRequest struct {
	Code string `json:"code"`
}

type runResponse struct {
	OK         bool   `json:"ok"`
	Output     string `json:"output"`
	ReturnCode int    `json:"return_code"`
}

// isLoopback reports whether r's remote address resolves to a
// loopback IP. This is checked before every other gate — QI8 requires
// a non-loopback peer to never reach process spawn.
func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) verifyKey(r *http.Request) bool {
	provided := r.Header.Get("X-Bridge-Key")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Secret)) == 1
}

func denyReason(code string) (string, bool) {
	for _, pattern := range deniedPatterns {
		if strings.Contains(code, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied: requests must come from loopback"})
		return
	}
	if !s.verifyKey(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing bridge key"})
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required field: code"})
		return
	}

	if pattern, denied := denyReason(req.Code); denied {
		slog.Warn("[BRIDGE] request denied", "pattern", pattern, "error", types.ErrBridgeDenied)
		s.logRun(false, len(req.Code), 0, req.Code)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code rejected: unsafe operation detected: " + pattern})
		return
	}

	resp := s.execute(r.Context(), req.Code)
	s.logRun(resp.OK, len(req.Code), len(resp.Output), req.Code)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "running",
		"host":   s.cfg.Host,
		"port":   s.cfg.Port,
	})
}

// execute writes code to a fixed temp file under RuntimeDir and runs
// it through the configured interpreter with a hard timeout, combining
// stdout and stderr the way the original bridge does.
func (s *Server) execute(ctx context.Context, code string) runResponse {
	if err := os.MkdirAll(s.cfg.RuntimeDir, 0o755); err != nil {
		return runResponse{OK: false, Output: "bridge: could not create runtime dir: " + err.Error(), ReturnCode: -1}
	}
	tempFile := filepath.Join(s.cfg.RuntimeDir, "temp_exec.py")
	if err := os.WriteFile(tempFile, []byte(code), 0o644); err != nil {
		return runResponse{OK: false, Output: "bridge: could not write temp file: " + err.Error(), ReturnCode: -1}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.ExecBin, tempFile)
	cmd.Dir = s.cfg.RuntimeDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return runResponse{OK: false, Output: "execution timeout (" + s.cfg.Timeout.String() + " exceeded)", ReturnCode: -1}
	}

	output := strings.TrimSpace(stdout.String())
	if stderr.Len() > 0 {
		output += "\nSTDERR:\n" + strings.TrimSpace(stderr.String())
	}

	returnCode := 0
	ok := err == nil
	if exitErr, isExit := asExitError(err); isExit {
		returnCode = exitErr
	} else if err != nil {
		returnCode = -1
	}

	return runResponse{OK: ok, Output: output, ReturnCode: returnCode}
}

func asExitError(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	type exitCoder interface{ ExitCode() int }
	if ee, ok := err.(exitCoder); ok {
		return ee.ExitCode(), true
	}
	return 0, false
}

func (s *Server) logRun(ok bool, codeLen, outputLen int, preview string) {
	if s.audit == nil {
		return
	}
	s.audit.LogBridge(ok, codeLen, outputLen, preview)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
