// Package tone implements C13: purely advisory inference of a response
// style (Tone, Verbosity) from keyword cues and explicit directives in
// the user's prompt, plus the template/system-prompt-modifier tables
// that translate a (Tone, Verbosity) pair into rendering guidance.
package tone

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Tone is the inferred response register.
type Tone string

const (
	Technical      Tone = "technical"
	Conversational Tone = "conversational"
	Advisory       Tone = "advisory"
	Concise        Tone = "concise"
)

// Verbosity is the inferred response length.
type Verbosity string

const (
	Short  Verbosity = "short"
	Medium Verbosity = "medium"
	Long   Verbosity = "long"
)

type tonePattern struct {
	tone     Tone
	keywords []string
	explicit []string
}

var tonePatterns = []tonePattern{
	{
		tone: Technical,
		keywords: []string{
			"explain", "implement", "code", "algorithm", "function",
			"debug", "error", "syntax", "compile", "binary", "variable",
			"class", "method", "optimization", "complexity", "performance",
			"architecture", "design pattern", "api", "protocol", "data structure",
		},
		explicit: []string{"be technical", "give me technical", "formally", "precisely"},
	},
	{
		tone: Conversational,
		keywords: []string{
			"tell me", "what's", "how's", "story", "chat", "discuss",
			"opinion", "think", "casual", "simple", "layman", "eli5",
			"in simple terms", "easy to understand",
		},
		explicit: []string{"casually", "conversationally", "like explaining to a friend", "simply"},
	},
	{
		tone: Advisory,
		keywords: []string{
			"how do i", "how should i", "what should", "guide", "tutorial",
			"step by step", "walkthrough", "instructions", "teach", "learn",
			"best practice", "recommend", "suggest", "advice", "help me",
		},
		explicit: []string{"guide me", "teach me", "show me how", "step by step"},
	},
	{
		tone: Concise,
		keywords: []string{
			"briefly", "quick", "short", "summarize", "tldr", "in brief",
			"just tell me", "bottom line", "key points", "overview",
		},
		explicit: []string{"be brief", "short answer", "concise", "quick answer", "tldr"},
	},
}

var shortVerbosityWords = []string{"briefly", "quick", "short", "tldr", "summary", "concise"}
var longVerbosityWords = []string{"detailed", "comprehensive", "in depth", "thoroughly", "explain fully", "elaborate"}
var followUpExpansionWords = []string{"explain further", "more detail", "tell me more", "elaborate", "expand"}

// DetectTone infers the Tone for query, honoring an explicit override
// (matched case-insensitively against the tone's value) before falling
// back to explicit in-query phrases and then keyword scoring.
//
// Expectations:
//   - a non-empty override matching a known tone wins outright with confidence 1.0
//   - an explicit in-query phrase ("be brief", "teach me", ...) wins with confidence 0.95
//   - otherwise the tone with the most keyword hits wins, confidence = min(0.95, hits/10)
//   - no keyword or phrase matches anything: Conversational at confidence 0.5
func DetectTone(query, override string) (Tone, float64) {
	if override != "" {
		lowerOverride := strings.ToLower(override)
		for _, p := range tonePatterns {
			if lowerOverride == string(p.tone) {
				return p.tone, 1.0
			}
		}
	}

	lower := strings.ToLower(query)

	for _, p := range tonePatterns {
		for _, phrase := range p.explicit {
			if strings.Contains(lower, phrase) {
				return p.tone, 0.95
			}
		}
	}

	bestTone := Conversational
	bestScore := 0
	for _, p := range tonePatterns {
		score := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore, bestTone = score, p.tone
		}
	}
	if bestScore == 0 {
		return Conversational, 0.5
	}
	confidence := float64(bestScore) / 10
	if confidence > 0.95 {
		confidence = 0.95
	}
	return bestTone, confidence
}

// DetectVerbosity infers the Verbosity for query: an explicit override
// wins, then short/long keyword cues, then a follow-up expansion
// request ("explain further", "tell me more", ...) forces Long,
// defaulting to Medium otherwise.
func DetectVerbosity(query, override string) Verbosity {
	if override != "" {
		switch strings.ToLower(override) {
		case string(Short):
			return Short
		case string(Medium):
			return Medium
		case string(Long):
			return Long
		}
	}

	lower := strings.ToLower(query)

	for _, kw := range shortVerbosityWords {
		if strings.Contains(lower, kw) {
			return Short
		}
	}
	for _, kw := range longVerbosityWords {
		if strings.Contains(lower, kw) {
			return Long
		}
	}
	for _, kw := range followUpExpansionWords {
		if strings.Contains(lower, kw) {
			return Long
		}
	}
	return Medium
}

// Template is the rendering descriptor for a (Tone, Verbosity) pair.
type Template struct {
	Style           string
	MaxLines        int // 0 means unbounded
	IncludeCode     bool
	IncludeExamples bool
	Format          string
}

var templates = map[Tone]map[Verbosity]Template{
	Technical: {
		Short:  {Style: "technical_concise", MaxLines: 10, IncludeCode: true, IncludeExamples: false, Format: "bullet_points"},
		Medium: {Style: "technical_standard", MaxLines: 30, IncludeCode: true, IncludeExamples: true, Format: "structured"},
		Long:   {Style: "technical_comprehensive", MaxLines: 0, IncludeCode: true, IncludeExamples: true, Format: "detailed_sections"},
	},
	Conversational: {
		Short:  {Style: "casual_brief", MaxLines: 5, IncludeCode: false, IncludeExamples: false, Format: "paragraph"},
		Medium: {Style: "casual_standard", MaxLines: 15, IncludeCode: false, IncludeExamples: true, Format: "paragraph"},
		Long:   {Style: "casual_detailed", MaxLines: 0, IncludeCode: false, IncludeExamples: true, Format: "story_like"},
	},
	Advisory: {
		Short:  {Style: "advisory_quick", MaxLines: 8, IncludeCode: true, IncludeExamples: false, Format: "numbered_steps"},
		Medium: {Style: "advisory_standard", MaxLines: 25, IncludeCode: true, IncludeExamples: true, Format: "step_by_step"},
		Long:   {Style: "advisory_comprehensive", MaxLines: 0, IncludeCode: true, IncludeExamples: true, Format: "tutorial"},
	},
	Concise: {
		Short:  {Style: "minimal", MaxLines: 3, IncludeCode: false, IncludeExamples: false, Format: "single_line"},
		Medium: {Style: "brief", MaxLines: 7, IncludeCode: true, IncludeExamples: false, Format: "bullet_points"},
		Long:   {Style: "concise_detailed", MaxLines: 15, IncludeCode: true, IncludeExamples: false, Format: "compact_sections"},
	},
}

// ResponseTemplate looks up the rendering descriptor for (tone,
// verbosity), falling back to Conversational/Medium when either is
// unrecognized.
func ResponseTemplate(t Tone, v Verbosity) Template {
	if byTone, ok := templates[t]; ok {
		if tmpl, ok := byTone[v]; ok {
			return tmpl
		}
	}
	return templates[Conversational][Medium]
}

var toneIcons = map[Tone]string{
	Technical:      "technical",
	Conversational: "conversational",
	Advisory:       "advisory",
	Concise:        "concise",
}

var verbosityLabels = map[Verbosity]string{
	Short:  "Brief",
	Medium: "Standard",
	Long:   "Detailed",
}

// headerLabelWidth is the column width the tone label is padded to in
// FormatHeader, sized for the longest tone name
// ("conversational", capitalized).
const headerLabelWidth = 14

// FormatHeader renders a compact one-line header for the given
// (tone, verbosity) pair. The tone label is right-padded to
// headerLabelWidth with go-runewidth so the "| Length: ..." column
// lines up across tones of different display width (relevant once a
// user-defined tone name carries full-width characters).
func FormatHeader(t Tone, v Verbosity) string {
	label, ok := toneIcons[t]
	if !ok {
		label = string(Conversational)
	}
	verbosityLabel, ok := verbosityLabels[v]
	if !ok {
		verbosityLabel = "Standard"
	}
	padded := runewidth.FillRight(capitalize(label), headerLabelWidth)
	return fmt.Sprintf("[Tone: %s | Length: %s]", padded, verbosityLabel)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var systemPromptModifiers = map[Tone]map[Verbosity]string{
	Technical: {
		Short:  "Respond technically and concisely. Use precise terminology. Include code only if essential.",
		Medium: "Provide a technical explanation with examples and code where appropriate. Be clear and precise.",
		Long:   "Give a comprehensive technical explanation with detailed examples, code, and edge cases. Be thorough.",
	},
	Conversational: {
		Short:  "Answer casually and briefly, like explaining to a friend. Keep it simple.",
		Medium: "Explain conversationally with examples. Be friendly and clear without excessive detail.",
		Long:   "Provide a detailed, friendly explanation as if having an in-depth conversation. Use analogies and examples.",
	},
	Advisory: {
		Short:  "Give step-by-step guidance in numbered format. Be direct and actionable.",
		Medium: "Provide clear step-by-step instructions with explanations. Include examples and tips.",
		Long:   "Give comprehensive tutorial-style guidance with detailed steps, examples, and best practices.",
	},
	Concise: {
		Short:  "Answer in 1-2 sentences maximum. Be direct and to the point.",
		Medium: "Provide a brief, focused answer with key points only. No fluff.",
		Long:   "Give a detailed but compact answer. Include important details without unnecessary elaboration.",
	},
}

const defaultSystemPromptModifier = "Respond clearly and appropriately to the user's question."

// SystemPromptModifier returns the text appended to the LLM's system
// prompt for (tone, verbosity).
func SystemPromptModifier(t Tone, v Verbosity) string {
	if byTone, ok := systemPromptModifiers[t]; ok {
		if m, ok := byTone[v]; ok {
			return m
		}
	}
	return defaultSystemPromptModifier
}
