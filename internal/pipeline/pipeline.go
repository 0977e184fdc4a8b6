// Package pipeline implements C14: the top-level per-prompt sequencing
// that ties every other component together. It is the only place that
// flattens adapter-level fails-with variants into user-visible text,
// and the only place a question_id is minted or reused.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ishabdullah/genesis/internal/accel"
	"github.com/Ishabdullah/genesis/internal/classifier"
	"github.com/Ishabdullah/genesis/internal/direct"
	"github.com/Ishabdullah/genesis/internal/fallback"
	"github.com/Ishabdullah/genesis/internal/feedback"
	"github.com/Ishabdullah/genesis/internal/localmodel"
	"github.com/Ishabdullah/genesis/internal/memory"
	"github.com/Ishabdullah/genesis/internal/tasklog"
	"github.com/Ishabdullah/genesis/internal/timesync"
	"github.com/Ishabdullah/genesis/internal/tone"
	"github.com/Ishabdullah/genesis/internal/tracer"
	"github.com/Ishabdullah/genesis/internal/types"
	"github.com/Ishabdullah/genesis/internal/uncertainty"
)

var retryPhrases = []string{"try again", "retry", "recalculate"}

// Config wires every dependency the controller needs. Per spec.md §9's
// "global mutable singletons" note, every one of these is an
// explicitly constructed value passed in at startup, not a
// package-level singleton.
type Config struct {
	Memory   *memory.Memory
	Tracer   *tracer.Tracer
	Direct   *direct.Handler
	Model    localmodel.LocalModel
	Cascade  *fallback.Orchestrator
	Ledger   *feedback.Ledger
	Clock    *timesync.TimeSync
	Fallback *tasklog.Stream // logs/fallback.jsonl, nil-safe
	Accel    *accel.Manager  // nil-safe; generation then calls Model.Generate directly, skipping device routing

	ModelPath        string // passed to accel.AssignDevice's quantization heuristic
	DevicePreference string // "auto", "cpu", "gpu", "npu"; empty means "auto"
	ModelParams      localmodel.Params

	// BridgeToggle is called on #bridge. The pipeline owns no HTTP
	// server of its own — the composition root supplies the actual
	// start/stop logic and returns a short status string to display.
	BridgeToggle func() string
}

// Controller is the C14 component.
type Controller struct {
	mem      *memory.Memory
	trc      *tracer.Tracer
	direct   *direct.Handler
	model    localmodel.LocalModel
	cascade  *fallback.Orchestrator
	ledger   *feedback.Ledger
	clock    *timesync.TimeSync
	fbLog    *tasklog.Stream
	accel    *accel.Manager
	modelCfg localmodel.Params

	modelPath        string
	devicePreference string

	bridgeToggle func() string

	lastQuestionID string
	lastPrompt     string

	toneOverride      string
	verbosityOverride string
	assistMode        bool
}

// New builds a Controller from cfg.
func New(cfg Config) *Controller {
	return &Controller{
		mem:              cfg.Memory,
		trc:              cfg.Tracer,
		direct:           cfg.Direct,
		model:            cfg.Model,
		cascade:          cfg.Cascade,
		ledger:           cfg.Ledger,
		clock:            cfg.Clock,
		fbLog:            cfg.Fallback,
		accel:            cfg.Accel,
		modelCfg:         cfg.ModelParams,
		modelPath:        cfg.ModelPath,
		devicePreference: cfg.DevicePreference,
		bridgeToggle:     cfg.BridgeToggle,
	}
}

// Outcome is what Process hands back to the REPL/one-shot caller.
type Outcome struct {
	Text string
	Exit bool
}

// Process runs one full turn of the pipeline against input: control
// directives and forced-source prefixes are handled synchronously
// (step 1); everything else runs the full classify/solve/generate/
// fallback/persist sequence.
func (c *Controller) Process(ctx context.Context, input string) Outcome {
	input = strings.TrimSpace(input)
	if input == "" {
		return Outcome{Text: ""}
	}

	if out, handled := c.handleDirective(ctx, input); handled {
		return out
	}

	if src, query, ok := forcedSource(input); ok {
		return Outcome{Text: c.runForcedSource(ctx, src, query)}
	}

	return Outcome{Text: c.runPrompt(ctx, input)}
}

// runPrompt implements spec.md §4.14 steps 2-12 for an ordinary prompt.
func (c *Controller) runPrompt(ctx context.Context, input string) string {
	questionID, isRetry := c.assignQuestionID(input)
	c.trc.Begin(questionID)

	if isRetry {
		if last, ok := c.mem.Last(); ok && last.QuestionID == questionID {
			return c.render(last)
		}
		// No cached answer under this id (e.g. first turn of a session
		// was itself "try again") — replay the stored prompt instead of
		// reprocessing the retry phrase itself.
		input = c.lastPrompt
	}

	// Step 4: DirectHandler short-circuit.
	if answer, ok := c.direct.Handle(ctx, input); ok {
		interaction := types.Interaction{
			QuestionID: questionID,
			Prompt:     input,
			FinalText:  answer,
			Source:     types.SourceLocal,
			Confidence: 1.0,
			Timestamp:  time.Now(),
		}
		c.persist(interaction)
		return c.render(interaction)
	}

	// Step 5: classify.
	clock := c.clock.Metadata()
	class := classifier.Classify(input, clock)

	// Step 6: time-sensitive clock header.
	var header string
	if class.TimeSensitive {
		header = fmt.Sprintf("[Context: current time %s (%s); knowledge cutoff %s]\n",
			clock.Now.Format(time.RFC3339), clock.TZ, clock.KnowledgeCutoff.Format("2006-01-02"))
	}

	// Step 7: reasoning trace (+ pseudocode for code-kind).
	steps := c.trc.StepsFor(input, class)
	if class.Kind == types.KindCode {
		steps = append(steps, types.ReasoningStep{
			N:           len(steps) + 1,
			Description: "Draft pseudocode outline",
			Detail:      tracer.PseudocodeFor(input),
		})
	}

	// Step 8: a verified symbolic answer skips straight to persistence.
	if calculated := c.trc.CalculatedAnswer(); calculated != "" {
		interaction := types.Interaction{
			QuestionID:     questionID,
			Prompt:         input,
			FinalText:      calculated,
			Source:         types.SourceLocalCalculated,
			Confidence:     1.0,
			Classification: class,
			TimeSensitive:  class.TimeSensitive,
			Reasoning:      steps,
			Timestamp:      time.Now(),
		}
		ok, warnings := tracer.Validate(steps, calculated)
		_ = ok
		interaction.Uncertain = len(warnings) > 0
		c.persist(interaction)
		return c.render(interaction)
	}

	// Step 9: local model generation, routed through the acceleration
	// manager's device assignment when one is configured.
	fullPrompt := c.buildFullPrompt(header, input, class)
	resp, genErr := c.generate(ctx, fullPrompt)
	finalText := resp.Text
	if genErr != nil || resp.Error != "" {
		finalText = "" // LocalModelFailed: empty text always triggers the uncertainty gate below
	}

	// Step 10: uncertainty gate + fallback cascade.
	report := uncertainty.Assess(finalText)
	localConfidence := fallback.CapForTimeSensitive(report.Confidence, class.TimeSensitive)
	source := types.SourceLocal
	var attempts []types.Attempt
	uncertain := report.ShouldFallback

	if report.ShouldFallback || class.TimeSensitive {
		result := c.cascade.Run(ctx, input)
		attempts = result.Attempts
		c.logFallback(questionID, class.TimeSensitive, result)
		if result.Available {
			finalText = result.Text
			source = result.Winner.Source
			localConfidence = result.Winner.Confidence
			uncertain = false
		} else {
			slog.Warn("[PIPELINE] cascade exhausted", "question_id", questionID, "error", types.ErrAllSourcesExhausted)
			if finalText == "" {
				finalText = "I don't have a confident answer for that right now."
				uncertain = true
			}
		}
	}

	// Step 11: validate the trace against the final text.
	_, warnings := tracer.Validate(steps, finalText)
	if len(warnings) > 0 {
		uncertain = true
	}

	interaction := types.Interaction{
		QuestionID:     questionID,
		Prompt:         input,
		FinalText:      finalText,
		Source:         source,
		Confidence:     localConfidence,
		Classification: class,
		TimeSensitive:  class.TimeSensitive,
		Attempts:       attempts,
		Reasoning:      steps,
		Timestamp:      time.Now(),
		Uncertain:      uncertain,
	}

	// Step 12: persist + render.
	c.persist(interaction)
	return c.render(interaction)
}

// assignQuestionID implements steps 2-3: a retry reuses last_question_id
// and last_prompt; anything else mints a fresh id.
func (c *Controller) assignQuestionID(input string) (id string, isRetry bool) {
	lower := strings.ToLower(input)
	for _, phrase := range retryPhrases {
		if strings.Contains(lower, phrase) {
			if c.lastQuestionID != "" {
				return c.lastQuestionID, true
			}
			break
		}
	}
	id = uuid.New().String()
	c.lastQuestionID = id
	c.lastPrompt = input
	return id, false
}

// generate dispatches to accel.RunInference when an AccelerationManager
// is configured (device assignment + ranked-list retry on failure),
// falling back to calling the model directly otherwise.
func (c *Controller) generate(ctx context.Context, fullPrompt string) (types.LocalResponse, error) {
	if c.accel == nil {
		return c.model.Generate(ctx, fullPrompt, c.modelCfg)
	}
	profile, err := c.accel.GetProfile(ctx, false)
	if err != nil {
		return c.model.Generate(ctx, fullPrompt, c.modelCfg)
	}
	resp, _, err := accel.RunInference(ctx, c.model, profile, c.modelPath, c.devicePreference, fullPrompt, c.modelCfg)
	return resp, err
}

// buildFullPrompt assembles the text handed to the local model: the
// tone/verbosity system modifier, an optional time-sensitive clock
// header, the most relevant prior interactions, and the prompt itself.
func (c *Controller) buildFullPrompt(header, input string, class types.Classification) string {
	prefs := c.mem.Preferences()
	t, _ := tone.DetectTone(input, c.toneOverride)
	v := tone.DetectVerbosity(input, c.verbosityOverride)
	system := tone.SystemPromptModifier(t, v)

	var b strings.Builder
	fmt.Fprintf(&b, "System: %s\n", system)
	if prefs.LastTopic != "" {
		fmt.Fprintf(&b, "Last topic: %s\n", prefs.LastTopic)
	}
	if header != "" {
		b.WriteString(header)
	}
	for _, rel := range c.mem.Relevant(input) {
		fmt.Fprintf(&b, "Earlier Q: %s\nEarlier A: %s\n", rel.Prompt, rel.FinalText)
	}
	b.WriteString(input)
	return b.String()
}

// logFallback records the cascade run to logs/fallback.jsonl.
func (c *Controller) logFallback(questionID string, timeSensitive bool, result fallback.Result) {
	if c.fbLog == nil {
		return
	}
	attempted := make([]string, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		attempted = append(attempted, string(a.Source))
	}
	winning := ""
	if result.Winner != nil {
		winning = string(result.Winner.Source)
	}
	c.fbLog.LogFallback(questionID, timeSensitive, attempted, winning, !result.Available)
}

// persist appends the Interaction to memory; memory.Append also
// records the prompt's opening words as the last-topic preference.
func (c *Controller) persist(i types.Interaction) {
	c.mem.Append(i)
}

// render formats an Interaction for display: tone/verbosity header
// followed by the answer, with an uncertainty banner when warranted.
func (c *Controller) render(i types.Interaction) string {
	t, _ := tone.DetectTone(i.Prompt, c.toneOverride)
	v := tone.DetectVerbosity(i.Prompt, c.verbosityOverride)
	header := tone.FormatHeader(t, v)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", header)
	if i.Uncertain {
		b.WriteString("⚠ UNCERTAIN — treat this answer with caution.\n")
	}
	if c.assistMode && len(i.Reasoning) > 0 {
		b.WriteString("Reasoning:\n")
		for _, step := range i.Reasoning {
			fmt.Fprintf(&b, "  %d. %s", step.N, step.Description)
			if step.Detail != "" {
				fmt.Fprintf(&b, " — %s", step.Detail)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(i.FinalText)
	return b.String()
}

// forcedSource recognizes the "search web:", "ask claude:", "ask
// perplexity:" prefixes that force a specific cascade source,
// bypassing direct/solver/local generation entirely.
func forcedSource(input string) (types.Source, string, bool) {
	lower := strings.ToLower(input)
	switch {
	case strings.HasPrefix(lower, "search web:"):
		return types.SourceWebsearch, strings.TrimSpace(input[len("search web:"):]), true
	case strings.HasPrefix(lower, "ask claude:"):
		return types.SourceProviderB, strings.TrimSpace(input[len("ask claude:"):]), true
	case strings.HasPrefix(lower, "ask perplexity:"):
		return types.SourceProviderC, strings.TrimSpace(input[len("ask perplexity:"):]), true
	}
	return "", "", false
}

// runForcedSource invokes exactly one cascade source (still through
// the Orchestrator, so per-source timeouts and attempt logging stay
// consistent with the normal cascade path) and persists the result.
func (c *Controller) runForcedSource(ctx context.Context, src types.Source, query string) string {
	if query == "" {
		return "usage: search web:<query> | ask claude:<query> | ask perplexity:<query>"
	}
	questionID := uuid.New().String()
	c.lastQuestionID = questionID
	c.lastPrompt = query
	c.trc.Begin(questionID)

	result := c.cascade.Run(ctx, query)
	c.logFallback(questionID, false, result)

	finalText := "that source did not return a usable answer"
	uncertain := true
	confidence := 0.0
	for _, a := range result.Attempts {
		if a.Source == src && a.OK {
			uncertain = false
			confidence = a.Confidence
		}
	}
	if result.Winner != nil && result.Winner.Source == src {
		finalText = result.Text
	}

	interaction := types.Interaction{
		QuestionID: questionID,
		Prompt:     query,
		FinalText:  finalText,
		Source:     src,
		Confidence: confidence,
		Attempts:   result.Attempts,
		Timestamp:  time.Now(),
		Uncertain:  uncertain,
	}
	c.persist(interaction)
	return c.render(interaction)
}
