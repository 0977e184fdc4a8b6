// Package types holds the shared data model for every component of the
// pipeline: the entities described in the system's data model, plus
// small value types threaded between packages so no two packages need
// to import each other directly.
package types

import "time"

// ClassificationKind is the closed set of prompt categories the
// classifier can produce.
type ClassificationKind string

const (
	KindDirect      ClassificationKind = "direct"
	KindMath        ClassificationKind = "math"
	KindCode        ClassificationKind = "code"
	KindWebResearch ClassificationKind = "web_research"
	KindConceptual  ClassificationKind = "conceptual"
	KindFollowUp    ClassificationKind = "follow_up"
	KindMeta        ClassificationKind = "metacognitive"
)

// Source identifies where a final answer came from.
type Source string

const (
	SourceLocal           Source = "local"
	SourceLocalCalculated Source = "local_calculated"
	SourceWebsearch       Source = "websearch"
	SourceProviderB       Source = "provider_b"
	SourceProviderC       Source = "provider_c"
)

// Prompt is one user turn. QuestionID is assigned by the pipeline
// controller; retries reuse the prior id, everything else gets a
// fresh one.
type Prompt struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	QuestionID string    `json:"question_id"`
}

// Classification is the classifier's pure-function output over a
// prompt plus the current clock snapshot. It never mutates anything.
type Classification struct {
	Kind          ClassificationKind `json:"kind"`
	Confidence    float64            `json:"confidence"`
	TimeSensitive bool               `json:"time_sensitive"`
	NeedsLiveData bool               `json:"needs_live_data"`
	IsRetry       bool               `json:"is_retry"`
	MatchedScores map[string]int     `json:"matched_scores,omitempty"`
}

// ReasoningStep is one entry in the displayed trace.
type ReasoningStep struct {
	N           int    `json:"n"`
	Description string `json:"description"`
	Detail      string `json:"detail,omitempty"`
	Result      string `json:"result,omitempty"`
}

// SolverResult is produced by the symbolic solver only for recognized
// word-problem/logic-puzzle shapes. Absence (nil) is a valid outcome.
type SolverResult struct {
	Answer   string          `json:"answer"`
	Verified bool            `json:"verified"`
	Steps    []ReasoningStep `json:"steps"`
}

// LocalResponse is what the local model adapter returns.
type LocalResponse struct {
	Text      string `json:"text"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// UncertaintyTrigger names one reason a response was scored uncertain.
type UncertaintyTrigger string

const (
	TriggerEmpty             UncertaintyTrigger = "empty"
	TriggerTooShort          UncertaintyTrigger = "too_short"
	TriggerUncertainLanguage UncertaintyTrigger = "uncertain_language"
	TriggerRepetition        UncertaintyTrigger = "repetition"
	TriggerErrorMarker       UncertaintyTrigger = "error_marker"
	TriggerIncompleteCode    UncertaintyTrigger = "incomplete_code"
)

// UncertaintyReport is the pure-function output of the uncertainty
// detector over a piece of response text.
type UncertaintyReport struct {
	Confidence     float64              `json:"confidence"`
	Triggers       []UncertaintyTrigger `json:"triggers"`
	ShouldFallback bool                 `json:"should_fallback"`
}

// Attempt records one cascade step, successful or not.
type Attempt struct {
	Source     Source  `json:"source"`
	OK         bool    `json:"ok"`
	Confidence float64 `json:"confidence"`
	LatencyMS  int64   `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

// Feedback is user correction/confirmation attached to an Interaction.
// At most one lives on an Interaction at a time; a later one replaces
// the former.
type Feedback struct {
	IsCorrect bool      `json:"is_correct"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Interaction is one complete prompt/answer cycle, written to the
// session ring on completion and promoted to the long-term pool when
// it meets the promotion rule.
type Interaction struct {
	QuestionID     string          `json:"question_id"`
	Prompt         string          `json:"prompt"`
	FinalText      string          `json:"final_text"`
	Source         Source          `json:"source"`
	Confidence     float64         `json:"confidence"`
	Classification Classification  `json:"classification"`
	TimeSensitive  bool            `json:"time_sensitive"`
	Attempts       []Attempt       `json:"attempts,omitempty"`
	Reasoning      []ReasoningStep `json:"reasoning,omitempty"`
	Feedback       *Feedback       `json:"feedback,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Uncertain      bool            `json:"uncertain,omitempty"`
}

// SourceBonus keys a small per-tag confidence bonus.
type SourceBonus map[string]float64

// SourceWeight is the per-source learned state in the feedback ledger.
type SourceWeight struct {
	BaseConfidence float64     `json:"base_confidence"`
	Success        int         `json:"success"`
	Total          int         `json:"total"`
	Bonuses        SourceBonus `json:"bonuses,omitempty"`
}

// SourceWeights maps source name to its learned weight state.
type SourceWeights map[Source]*SourceWeight

// CacheEntry is one web-search cache row.
type CacheEntry struct {
	Key        string    `json:"key"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	InsertedAt time.Time `json:"inserted_at"`
}

// ClockState is the process-wide time snapshot owned by TimeSync.
type ClockState struct {
	Now             time.Time `json:"now"`
	TZ              string    `json:"tz"`
	KnowledgeCutoff time.Time `json:"knowledge_cutoff"`
	LastSync        time.Time `json:"last_sync"`
	SyncCount       int       `json:"sync_count"`
	Running         bool      `json:"running"`
}

// DeviceProfile is C16's cached detection/benchmark snapshot.
type DeviceProfile struct {
	Detected     map[string]bool    `json:"detected"`
	Benchmarks   map[string]float64 `json:"benchmarks"`
	Ranked       []string           `json:"ranked"`
	BatteryPct   float64            `json:"battery_pct"`
	CPUTempC     float64            `json:"cpu_temp_c"`
	ThermalState string             `json:"thermal_state"`
	CachedAt     time.Time          `json:"cached_at"`
}

// ThermalState values.
const (
	ThermalNormal = "normal"
	ThermalHot    = "hot"
)

// LearningEvent is a supplemented feature (see SPEC_FULL.md): every
// incorrect or annotated-correct feedback event is additionally
// recorded here for a future (out-of-core) fine-tuning pipeline.
type LearningEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	IsCorrect bool      `json:"is_correct"`
	Note      string    `json:"note,omitempty"`
	Source    Source    `json:"source"`
	EventType string    `json:"event_type"`
	Priority  string    `json:"priority"`
}

const (
	EventPositiveRefinement = "positive_refinement"
	EventErrorCorrection    = "error_correction"
)

// Preferences is the small key/value bag C3 keeps for tone/verbosity
// defaults and last-session metadata.
type Preferences struct {
	Tone      string `json:"tone,omitempty"`
	Verbosity string `json:"verbosity,omitempty"`
	LastTopic string `json:"last_topic,omitempty"`
}

// MessageType names the kind of an observer event (clock ticks,
// completed interactions, bridge audit events). No package in this
// module publishes or consumes these events; the pipeline control path
// is a direct sequential call chain per the controller's single
// prompt-at-a-time contract.
type MessageType string

const (
	MsgClockTick           MessageType = "clock_tick"
	MsgInteractionComplete MessageType = "interaction_complete"
	MsgBridgeAudit         MessageType = "bridge_audit"
	MsgFallbackAttempt     MessageType = "fallback_attempt"
)

// Message is one observer event.
type Message struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	From      string      `json:"from"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload,omitempty"`
}
