package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Ishabdullah/genesis/internal/accel"
	"github.com/Ishabdullah/genesis/internal/tone"
	"github.com/Ishabdullah/genesis/internal/types"
)

const helpText = `Control directives:
  #exit                          quit
  #help                          this message
  #reset                         clear retry/tone state for a fresh turn
  #stats                         feedback + memory counters
  #pwd                           current working directory
  #bridge                        toggle the local code-execution bridge
  #assist                        toggle inline reasoning-trace display
  #assist-stats                  assist mode status
  #performance                   device acceleration profile
  #correct [ - note]             mark the last answer correct
  #incorrect [ - note]           mark the last answer incorrect
  #reset_metrics                 clear this session's feedback tally
  #memory                        session/long-term memory counts
  #prune_memory                  force a long-term memory prune
  #export_memory                 export learning data to disk
  #feedback                      feedback ledger summary
  #context                       last topic and retry state
  #tone {technical|conversational|advisory|concise}
  #verbosity {short|medium|long}
  search web:<query>             force the websearch source
  ask claude:<query>             force provider B
  ask perplexity:<query>         force provider C`

// handleDirective implements step 1 of §4.14: recognizing and
// synchronously answering every CLI control directive. Returns
// handled=false for anything that is not a directive, so the caller
// falls through to the normal pipeline.
func (c *Controller) handleDirective(ctx context.Context, input string) (Outcome, bool) {
	if !strings.HasPrefix(input, "#") {
		return Outcome{}, false
	}

	fields := strings.SplitN(input, " ", 2)
	directive := fields[0]
	var rest string
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}

	switch directive {
	case "#exit", "#quit":
		return Outcome{Text: "goodbye", Exit: true}, true

	case "#help":
		return Outcome{Text: helpText}, true

	case "#reset":
		c.lastQuestionID = ""
		c.lastPrompt = ""
		c.toneOverride = ""
		c.verbosityOverride = ""
		return Outcome{Text: "session state reset"}, true

	case "#pwd":
		wd, err := os.Getwd()
		if err != nil {
			return Outcome{Text: fmt.Sprintf("pwd error: %v", err)}, true
		}
		return Outcome{Text: wd}, true

	case "#bridge":
		return Outcome{Text: c.toggleBridge()}, true

	case "#assist":
		c.assistMode = !c.assistMode
		state := "off"
		if c.assistMode {
			state = "on"
		}
		return Outcome{Text: "assist mode: " + state}, true

	case "#assist-stats":
		state := "off"
		if c.assistMode {
			state = "on"
		}
		return Outcome{Text: fmt.Sprintf("assist mode is %s (shows each turn's reasoning trace inline)", state)}, true

	case "#performance":
		return Outcome{Text: c.renderPerformance(ctx)}, true

	case "#stats":
		return Outcome{Text: c.renderStats()}, true

	case "#feedback":
		if c.ledger == nil {
			return Outcome{Text: "no feedback ledger configured"}, true
		}
		return Outcome{Text: c.ledger.Summary()}, true

	case "#reset_metrics":
		if c.ledger != nil {
			c.ledger.ResetSessionCounters()
		}
		return Outcome{Text: "session feedback counters cleared"}, true

	case "#memory":
		return Outcome{Text: c.renderMemory()}, true

	case "#prune_memory":
		removed := c.mem.PruneNow()
		return Outcome{Text: fmt.Sprintf("pruned %d long-term interaction(s)", removed)}, true

	case "#export_memory":
		if c.ledger == nil {
			return Outcome{Text: "no feedback ledger configured"}, true
		}
		path, err := c.ledger.ExportLearningData(time.Now())
		if err != nil {
			return Outcome{Text: fmt.Sprintf("export failed: %v", err)}, true
		}
		return Outcome{Text: "exported to " + path}, true

	case "#context":
		return Outcome{Text: c.renderContext()}, true

	case "#tone":
		return Outcome{Text: c.setTone(rest)}, true

	case "#verbosity":
		return Outcome{Text: c.setVerbosity(rest)}, true

	case "#correct":
		return Outcome{Text: c.attachFeedback(true, rest)}, true

	case "#incorrect":
		return Outcome{Text: c.attachFeedback(false, rest)}, true
	}

	return Outcome{Text: "unknown directive: " + directive + " (try #help)"}, true
}

// toggleBridge delegates to the injected callback (main owns the
// bridge server's actual lifecycle — the pipeline only triggers it).
func (c *Controller) toggleBridge() string {
	if c.bridgeToggle == nil {
		return "bridge control is not wired up"
	}
	return c.bridgeToggle()
}

// renderPerformance reports the cached (or freshly probed) device
// profile, per C16.
func (c *Controller) renderPerformance(ctx context.Context) string {
	if c.accel == nil {
		return "acceleration manager is not configured"
	}
	profile, err := c.accel.GetProfile(ctx, false)
	if err != nil {
		return fmt.Sprintf("performance probe failed: %v", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Device profile (cached_at=%s)\n", profile.CachedAt.Format(time.RFC3339))
	for _, dev := range profile.Ranked {
		fmt.Fprintf(&b, "  %-4s %.1f GFLOPS\n", dev, profile.Benchmarks[dev])
	}
	fmt.Fprintf(&b, "battery=%.0f%% temp=%.1fC thermal=%s\n", profile.BatteryPct, profile.CPUTempC, profile.ThermalState)
	cores, mhz := accel.CPUInfo(ctx)
	fmt.Fprintf(&b, "cpu cores=%d mhz=%.0f\n", cores, mhz)
	return b.String()
}

func (c *Controller) renderStats() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %d turns\n", len(c.mem.Session()))
	fmt.Fprintf(&b, "Long-term memory: %d interactions\n", c.mem.LongTermCount())
	if c.ledger != nil {
		s := c.ledger.Stats()
		fmt.Fprintf(&b, "Feedback: correct=%d incorrect=%d refinements=%d learning_events=%d\n",
			s.Correct, s.Incorrect, s.Refinements, s.LearningEvents)
	}
	return b.String()
}

func (c *Controller) renderMemory() string {
	return fmt.Sprintf("session=%d long_term=%d", len(c.mem.Session()), c.mem.LongTermCount())
}

func (c *Controller) renderContext() string {
	prefs := c.mem.Preferences()
	return fmt.Sprintf("last_question_id=%s last_topic=%q tone_override=%q verbosity_override=%q",
		c.lastQuestionID, prefs.LastTopic, c.toneOverride, c.verbosityOverride)
}

func (c *Controller) setTone(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch tone.Tone(value) {
	case tone.Technical, tone.Conversational, tone.Advisory, tone.Concise:
		c.toneOverride = value
		c.mem.SetPreferences(types.Preferences{Tone: value})
		return "tone set to " + value
	default:
		slog.Warn("[PIPELINE] rejected directive argument", "directive", "#tone", "value", value, "error", types.ErrInputRejected)
		return "usage: #tone {technical|conversational|advisory|concise}"
	}
}

func (c *Controller) setVerbosity(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch tone.Verbosity(value) {
	case tone.Short, tone.Medium, tone.Long:
		c.verbosityOverride = value
		c.mem.SetPreferences(types.Preferences{Verbosity: value})
		return "verbosity set to " + value
	default:
		slog.Warn("[PIPELINE] rejected directive argument", "directive", "#verbosity", "value", value, "error", types.ErrInputRejected)
		return "usage: #verbosity {short|medium|long}"
	}
}

// attachFeedback implements the closing paragraph of §4.14: a
// correct/incorrect directive with an optional note (separated by
// " - " or " — ") attaches to the *last* Interaction by id and routes
// to the FeedbackLedger.
func (c *Controller) attachFeedback(isCorrect bool, rest string) string {
	last, ok := c.mem.Last()
	if !ok {
		return "no prior answer to give feedback on"
	}

	note := rest
	for _, sep := range []string{" - ", " — "} {
		if idx := strings.Index(rest, sep); idx >= 0 {
			note = strings.TrimSpace(rest[idx+len(sep):])
			break
		}
	}
	if note == rest {
		for _, prefix := range []string{"- ", "— "} {
			if strings.HasPrefix(rest, prefix) {
				note = strings.TrimSpace(strings.TrimPrefix(rest, prefix))
				break
			}
		}
	}

	fb := types.Feedback{IsCorrect: isCorrect, Note: note, Timestamp: time.Now()}
	c.mem.AttachFeedback(last.QuestionID, fb)

	if c.ledger != nil {
		c.ledger.AddFeedback(last.Prompt, last.FinalText, isCorrect, note, last.Source, last.Confidence)
	}

	if isCorrect {
		return "marked correct"
	}
	return "marked incorrect"
}
