package classifier

import (
	"testing"

	"github.com/Ishabdullah/genesis/internal/types"
)

func classify(prompt string) types.Classification {
	return Classify(prompt, types.ClockState{})
}

func TestClassify_MetaTakesTopPriority(t *testing.T) {
	c := classify("#incorrect the answer was wrong, try again with code")
	if c.Kind != types.KindMeta {
		t.Errorf("kind = %s, want meta", c.Kind)
	}
}

func TestClassify_FollowUpBeatsWebResearch(t *testing.T) {
	c := classify("try again, what's the latest news today")
	if c.Kind != types.KindFollowUp {
		t.Errorf("kind = %s, want follow_up", c.Kind)
	}
	if !c.IsRetry {
		t.Error("expected IsRetry true for follow_up classification")
	}
}

func TestClassify_WebResearchOnStrongTemporalScore(t *testing.T) {
	c := classify("what are the latest recent breakthroughs in 2025 research")
	if c.Kind != types.KindWebResearch {
		t.Errorf("kind = %s, want web_research", c.Kind)
	}
	if !c.NeedsLiveData {
		t.Error("expected NeedsLiveData true")
	}
}

func TestClassify_CodeGeneration(t *testing.T) {
	c := classify("write a python function to implement quicksort algorithm")
	if c.Kind != types.KindCode {
		t.Errorf("kind = %s, want code", c.Kind)
	}
}

func TestClassify_MathWordProblem(t *testing.T) {
	c := classify("if a train travels 60 miles per hour, how many miles in 3 hours, calculate the total")
	if c.Kind != types.KindMath {
		t.Errorf("kind = %s, want math", c.Kind)
	}
}

func TestClassify_ConceptualFallback(t *testing.T) {
	c := classify("what do you think about friendship")
	if c.Kind != types.KindConceptual {
		t.Errorf("kind = %s, want conceptual", c.Kind)
	}
}

func TestClassify_TimeSensitive_WhoIsPattern(t *testing.T) {
	c := classify("who is the president right now")
	if !c.TimeSensitive {
		t.Error("expected TimeSensitive true for who-is-president pattern")
	}
}

func TestClassify_TimeSensitive_FalseWhenNoTemporalCues(t *testing.T) {
	c := classify("explain how photosynthesis works")
	if c.TimeSensitive {
		t.Error("expected TimeSensitive false")
	}
}

func TestClassify_MathKeyword_WordBoundary(t *testing.T) {
	// "if" is a single-word math keyword; must not match inside "wifi".
	c := classify("how do I connect to the wifi network please")
	if score := c.MatchedScores["math"]; score != 0 {
		t.Errorf("expected math score 0 (no 'if' token match inside 'wifi'), got %d", score)
	}
}

func TestClassify_RelationalBoost_RequiresDigitAndRelationalWord(t *testing.T) {
	c := classify("12 is more than 5, solve this and calculate")
	if c.Kind != types.KindMath {
		t.Errorf("kind = %s, want math", c.Kind)
	}
	if score := c.MatchedScores["math"]; score < 2 {
		t.Errorf("expected boosted math score >= 2, got %d", score)
	}
}

func TestClassify_MultiNumberFallsBackToMath(t *testing.T) {
	c := classify("compare 42 and 17")
	if c.Kind != types.KindMath {
		t.Errorf("kind = %s, want math (multi-number fallback)", c.Kind)
	}
}
