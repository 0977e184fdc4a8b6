// Package uncertainty implements C9: a pure function over local-model
// response text that scores confidence and decides whether the
// fallback cascade should run. It never touches the network or the
// model — every deduction is a regex or arithmetic check over the
// given string.
package uncertainty

import (
	"regexp"
	"strings"

	"github.com/Ishabdullah/genesis/internal/types"
)

const (
	minResponseLength  = 20
	maxRepetitionRatio = 0.5
	fallbackThreshold  = 0.6
)

var uncertainPatterns = []string{
	`\bi['"]?m not sure\b`, `\bi don['"]?t know\b`, `\bpossibly\b`, `\bmaybe\b`,
	`\bperhaps\b`, `\bmight be\b`, `\bcould be\b`, `\bi think\b`, `\bi believe\b`,
	`\bunsure\b`, `\buncertain\b`, `\bcan['"]?t help\b`,
	`\bdon['"]?t have enough information\b`, `\bnot confident\b`,
	`\bneed more context\b`, `\bclarify\b`, `\bnot clear\b`,
	`\bapologies.*cannot\b`, `\bsorry.*unable\b`, `\bi apologize.*cannot\b`,
	`\bthis is beyond my\b`, `\btoo complex for me\b`, `\bstruggling to\b`,
	`\bdifficult to\b`, `\bneed help with\b`, `\bcannot complete\b`,
	`\bunable to handle\b`,
}

var uncertainRe = regexp.MustCompile("(?i)" + strings.Join(uncertainPatterns, "|"))

// errorIndicatorPatterns is the broader of the original module's two
// same-named checks: a symbol/keyword regex alternation plus a set of
// literal exception-name substrings, rather than the narrower
// \b-bounded single-word list the first definition used.
var errorIndicatorPatterns = []string{
	`⚠`, `error:`, `failed:`, `timeout`, `not found`, `cannot access`, `permission denied`,
	`llm timeout`, `llm error`, `execution failed`, `✗`,
	`syntaxerror`, `nameerror`, `typeerror`, `valueerror`, `exception`, `traceback`,
}

var errorIndicatorRe = regexp.MustCompile("(?i)" + strings.Join(errorIndicatorPatterns, "|"))

var codeBlockRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*)\\s*\n(.*?)```")

var incompleteCodeRe = regexp.MustCompile(`(?m)\.\.\.+|#\s*TODO|#\s*FIXME|^\s*pass\s*$`)

// Assess scores confidence over text and reports which triggers fired.
func Assess(text string) types.UncertaintyReport {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return types.UncertaintyReport{Confidence: 0, Triggers: []types.UncertaintyTrigger{types.TriggerEmpty}, ShouldFallback: true}
	}

	lower := strings.ToLower(clean)
	uncertainMatches := uncertainRe.FindAllString(lower, -1)
	hasUncertainLanguage := len(uncertainMatches) > 0

	tooShort := len(clean) < minResponseLength

	repetitionRatio := repetitionRatio(clean)
	hasRepetition := repetitionRatio > maxRepetitionRatio

	hasErrorIndicators := errorIndicatorRe.MatchString(clean)

	hasCodeIssues := hasIncompleteCode(clean)

	confidence := 1.0
	var triggers []types.UncertaintyTrigger

	if hasUncertainLanguage {
		deduction := 0.4 + float64(len(uncertainMatches))*0.1
		if deduction > 0.6 {
			deduction = 0.6
		}
		confidence -= deduction
		triggers = append(triggers, types.TriggerUncertainLanguage)
	}
	if tooShort {
		confidence -= 0.4
		triggers = append(triggers, types.TriggerTooShort)
	}
	if hasRepetition {
		confidence -= 0.3
		triggers = append(triggers, types.TriggerRepetition)
	}
	if hasErrorIndicators {
		confidence -= 0.4
		triggers = append(triggers, types.TriggerErrorMarker)
	}
	if hasCodeIssues {
		confidence -= 0.3
		triggers = append(triggers, types.TriggerIncompleteCode)
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return types.UncertaintyReport{
		Confidence:     confidence,
		Triggers:       triggers,
		ShouldFallback: confidence < fallbackThreshold,
	}
}

// repetitionRatio is 1 - unique/total over whitespace-split words;
// texts shorter than 5 words are never flagged (too little signal).
func repetitionRatio(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 5 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return 1.0 - float64(len(seen))/float64(len(words))
}

// hasIncompleteCode reports whether any fenced code block looks
// unfinished: ellipsis, TODO/FIXME markers, a bare pass line, or an
// empty block.
func hasIncompleteCode(text string) bool {
	blocks := codeBlockRe.FindAllStringSubmatch(text, -1)
	if blocks == nil {
		return false
	}
	for _, b := range blocks {
		if strings.TrimSpace(b[1]) == "" || incompleteCodeRe.MatchString(b[1]) {
			return true
		}
	}
	return false
}
