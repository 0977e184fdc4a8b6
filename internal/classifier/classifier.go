// Package classifier implements C4: a pure keyword-counting function
// from prompt text (plus a clock snapshot) to a Classification. It
// never calls the network or the local model — every decision is a
// deterministic count over a handful of disjoint vocabularies.
package classifier

import (
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/Ishabdullah/genesis/internal/types"
)

// Vocabularies are intentionally disjoint category by category; a
// phrase appearing in two lists would double-count and isn't expected
// to occur given how each list was built.
var (
	metaKeywords = []string{
		"#incorrect", "#correct", "limitation", "how do you", "what can you",
		"explain yourself",
	}
	followUpKeywords = []string{
		"try again", "recalculate", "retry", "redo that", "do that again",
		"explain further", "give an example", "tell me more", "elaborate",
		"more details",
	}
	temporalKeywords = []string{
		"latest", "newest", "recent", "recently", "current", "currently",
		"now", "today", "this year", "2025", "2024", "emerging",
		"new", "just", "most recent", "up-to-date", "trending",
		"breaking", "modern", "contemporary", "present",
	}
	webResearchKeywords = []string{
		"latest", "2025", "2024", "published", "papers", "studies",
		"advancements", "research", "published in", "recent", "news",
		"current", "today", "this year", "breakthrough", "development",
	}
	codeGenKeywords = []string{
		"write", "script", "code", "python", "recursive", "visualize",
		"implement", "function", "class", "algorithm", "program",
		"java", "javascript", "c++", "create a",
	}
	mathKeywords = []string{
		"if", "how many", "how much", "calculate", "total", "rate",
		"per", "cost", "all but", "solve", "compute",
	}
	temporalPhraseWords = []string{"now", "currently", "today", "president"}
	relationalWords     = []string{"more", "less", "than", "equal", "divide", "multiply"}
)

var multiDigitRegex = regexp.MustCompile(`\d+.*\d+`)
var singleDigitRegex = regexp.MustCompile(`\d+`)
var whoWhatIsRegex = regexp.MustCompile(`\b(who|what)\s+is\b`)

// Classify derives a Classification from prompt text. clock is
// accepted for symmetry with the controller's call signature and for
// future use (e.g. seasonal vocabulary); it is not currently consulted
// beyond being available to callers building the time-context header.
func Classify(prompt string, clock types.ClockState) types.Classification {
	lower := strings.ToLower(prompt)
	tokens := tokenize(lower)

	metaScore := countPhrases(lower, metaKeywords)
	followUpScore := countPhrases(lower, followUpKeywords)
	temporalScore := countMixed(lower, tokens, temporalKeywords)
	webScore := countMixed(lower, tokens, webResearchKeywords)
	codeScore := countMixed(lower, tokens, codeGenKeywords)
	mathScore := countMixed(lower, tokens, mathKeywords)

	if singleDigitRegex.MatchString(prompt) && containsAny(lower, relationalWords) {
		mathScore += 2
	}

	timeSensitive := temporalScore > 0 || whoWhatIsRegex.MatchString(lower) || containsAny(lower, temporalPhraseWords)
	needsLiveData := timeSensitive || webScore >= 2

	scores := map[string]int{
		"meta":         metaScore,
		"follow_up":    followUpScore,
		"temporal":     temporalScore,
		"web_research": webScore,
		"code":         codeScore,
		"math":         mathScore,
	}

	wordCount := len(strings.Fields(prompt))

	var kind types.ClassificationKind
	var confidence float64
	switch {
	case metaScore > 0:
		kind, confidence = types.KindMeta, 0.9
	case followUpScore > 0:
		kind, confidence = types.KindFollowUp, 0.9
	case webScore >= 2 || temporalScore >= 2:
		kind, confidence = types.KindWebResearch, 0.85
	case (webScore == 1 || temporalScore == 1) && wordCount > 10:
		kind, confidence = types.KindWebResearch, 0.75
	case codeScore >= 2:
		kind, confidence = types.KindCode, 0.85
	case codeScore == 1 && (strings.Contains(lower, "write") || strings.Contains(lower, "create")):
		kind, confidence = types.KindCode, 0.80
	case mathScore >= 2:
		kind, confidence = types.KindMath, 0.85
	case multiDigitRegex.MatchString(prompt):
		kind, confidence = types.KindMath, 0.70
	default:
		kind, confidence = types.KindConceptual, 0.60
	}

	return types.Classification{
		Kind:          kind,
		Confidence:    confidence,
		TimeSensitive: timeSensitive,
		NeedsLiveData: needsLiveData,
		IsRetry:       kind == types.KindFollowUp,
		MatchedScores: scores,
	}
}

// tokenize returns the unicode word-boundary segmentation of s,
// lowercased, keeping only segments with at least one letter or digit.
func tokenize(lower string) []string {
	var out []string
	segs := words.FromString(lower)
	for segs.Next() {
		w := strings.TrimSpace(segs.Value())
		if w == "" {
			continue
		}
		for _, r := range w {
			if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// countMixed counts vocabulary matches: single-word entries are
// matched against the word-tokenized text (so "if" never matches
// inside "wifi"); multi-word phrases fall back to substring
// containment, since tokenizing a phrase pattern isn't meaningful.
func countMixed(lower string, tokens []string, vocab []string) int {
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}
	count := 0
	for _, kw := range vocab {
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				count++
			}
			continue
		}
		if _, ok := tokenSet[kw]; ok {
			count++
		}
	}
	return count
}

// countPhrases counts substring matches only — used for the
// directive-style vocabularies (meta, follow-up) where entries are
// multi-word phrases or literal control-directive tokens like
// "#correct".
func countPhrases(lower string, vocab []string) int {
	count := 0
	for _, kw := range vocab {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
