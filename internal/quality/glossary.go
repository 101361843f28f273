package quality

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

const (
	glossaryMissingPenalty = 15
	MaxGlossaryPenalty     = 10
)

// GlossaryTerm is a project glossary entry resolved for one target language.
// An empty TargetTerm means the term has no translation in that language.
type GlossaryTerm struct {
	ID         string `json:"id"`
	SourceTerm string `json:"sourceTerm"`
	TargetTerm string `json:"targetTerm,omitempty"`
}

type MissingTerm struct {
	SourceTerm string `json:"sourceTerm"`
	TargetTerm string `json:"targetTerm"`
}

type GlossaryResult struct {
	Passed       bool          `json:"passed"`
	Score        int           `json:"score"`
	MissingTerms []MissingTerm `json:"missingTerms,omitempty"`
	Issue        *Issue        `json:"issue,omitempty"`
}

type GlossaryEvaluator struct{}

func NewGlossaryEvaluator() *GlossaryEvaluator {
	return &GlossaryEvaluator{}
}

// Evaluate returns nil when there are no terms or none of them occur in
// source; nil means "not applicable", which is distinct from a passing result.
func (g *GlossaryEvaluator) Evaluate(terms []GlossaryTerm, source, target string) *GlossaryResult {
	if len(terms) == 0 {
		return nil
	}

	fold := cases.Fold()
	foldedSource := fold.String(source)
	foldedTarget := fold.String(target)

	relevant := 0
	missing := make([]MissingTerm, 0)
	for _, term := range terms {
		if strings.TrimSpace(term.SourceTerm) == "" {
			continue
		}
		if !strings.Contains(foldedSource, fold.String(term.SourceTerm)) {
			continue
		}
		relevant++
		if term.TargetTerm == "" {
			continue
		}
		if !strings.Contains(foldedTarget, fold.String(term.TargetTerm)) {
			missing = append(missing, MissingTerm{SourceTerm: term.SourceTerm, TargetTerm: term.TargetTerm})
		}
	}

	if relevant == 0 {
		return nil
	}
	if len(missing) == 0 {
		return &GlossaryResult{Passed: true, Score: 100}
	}

	score := 100 - len(missing)*glossaryMissingPenalty
	if score < 0 {
		score = 0
	}
	return &GlossaryResult{
		Passed:       false,
		Score:        score,
		MissingTerms: missing,
		Issue:        glossaryIssue(missing),
	}
}

func glossaryIssue(missing []MissingTerm) *Issue {
	pairs := make([]string, 0, len(missing))
	tokens := make([]string, 0, len(missing))
	for _, term := range missing {
		pairs = append(pairs, term.SourceTerm+" → "+term.TargetTerm)
		tokens = append(tokens, term.SourceTerm)
	}
	return &Issue{
		Type:     IssueGlossaryTermMissing,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("Glossary terms not used in translation: %s", strings.Join(pairs, ", ")),
		Tokens:   tokens,
	}
}

// GlossaryPenalty is the number of points a glossary result subtracts from
// the aggregate score.
func GlossaryPenalty(result *GlossaryResult) int {
	if result == nil {
		return 0
	}
	penalty := 100 - result.Score
	if penalty > MaxGlossaryPenalty {
		return MaxGlossaryPenalty
	}
	if penalty < 0 {
		return 0
	}
	return penalty
}
