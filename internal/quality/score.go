package quality

import "math"

type Rating string

const (
	RatingExcellent   Rating = "excellent"
	RatingGood        Rating = "good"
	RatingNeedsReview Rating = "needsReview"
)

// RatingFor maps a 0-100 score to its rating category.
func RatingFor(score int) Rating {
	switch {
	case score >= 80:
		return RatingExcellent
	case score >= 60:
		return RatingGood
	default:
		return RatingNeedsReview
	}
}

type EvaluationType string

const (
	EvaluationHeuristic EvaluationType = "heuristic"
	EvaluationAI        EvaluationType = "ai"
	EvaluationHybrid    EvaluationType = "hybrid"
)

// AIScores holds per-dimension scores from an AI evaluator. Nil dimensions
// were not reported and are left out of the weighted sum.
type AIScores struct {
	Accuracy    *int `json:"accuracy,omitempty"`
	Fluency     *int `json:"fluency,omitempty"`
	Terminology *int `json:"terminology,omitempty"`
	Format      *int `json:"format,omitempty"`
}

func (a *AIScores) present() bool {
	return a != nil && (a.Accuracy != nil || a.Fluency != nil || a.Terminology != nil || a.Format != nil)
}

type ScoreWeights struct {
	ErrorPenalty   int
	WarningPenalty int
	InfoPenalty    int

	Accuracy    float64
	Fluency     float64
	Terminology float64
	Format      float64
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ErrorPenalty:   25,
		WarningPenalty: 10,
		InfoPenalty:    2,
		Accuracy:       0.40,
		Fluency:        0.25,
		Terminology:    0.15,
		Format:         0.20,
	}
}

type ScoreInput struct {
	// Issues are the heuristic check issues; the glossary issue is carried
	// by Glossary and is not penalised twice.
	Issues   []Issue
	AI       *AIScores
	Glossary *GlossaryResult
}

type Score struct {
	Score           int            `json:"score"`
	Rating          Rating         `json:"rating"`
	EvaluationType  EvaluationType `json:"evaluationType"`
	AI              *AIScores      `json:"ai,omitempty"`
	GlossaryPenalty int            `json:"glossaryPenalty"`
	Issues          []Issue        `json:"issues"`
}

// Aggregate combines heuristic issues, optional AI dimension scores and the
// glossary result into a single score. A nil weights uses DefaultScoreWeights.
func Aggregate(input ScoreInput, weights *ScoreWeights) Score {
	w := DefaultScoreWeights()
	if weights != nil {
		w = *weights
	}

	errorCount := 0
	for _, issue := range input.Issues {
		if issue.Severity == SeverityError {
			errorCount++
		}
	}

	var base int
	evalType := EvaluationHeuristic
	if input.AI.present() {
		base = clampScore(aiBase(input.AI, w) - errorCount*w.ErrorPenalty)
		evalType = EvaluationAI
		if errorCount > 0 {
			evalType = EvaluationHybrid
		}
	} else {
		base = clampScore(100 - heuristicPenalty(input.Issues, w))
	}

	glossaryPenalty := GlossaryPenalty(input.Glossary)
	final := clampScore(base - glossaryPenalty)

	issues := make([]Issue, 0, len(input.Issues)+1)
	issues = append(issues, input.Issues...)
	if input.Glossary != nil && input.Glossary.Issue != nil {
		issues = append(issues, *input.Glossary.Issue)
	}

	var ai *AIScores
	if input.AI.present() {
		ai = input.AI
	}

	return Score{
		Score:           final,
		Rating:          RatingFor(final),
		EvaluationType:  evalType,
		AI:              ai,
		GlossaryPenalty: glossaryPenalty,
		Issues:          issues,
	}
}

func heuristicPenalty(issues []Issue, w ScoreWeights) int {
	total := 0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			total += w.ErrorPenalty
		case SeverityWarning:
			total += w.WarningPenalty
		case SeverityInfo:
			total += w.InfoPenalty
		}
	}
	return total
}

// aiBase is the weighted mean of the reported dimensions, renormalised over
// the weights of the dimensions that are present.
func aiBase(scores *AIScores, w ScoreWeights) int {
	var sum, weight float64
	add := func(value *int, dimWeight float64) {
		if value == nil || dimWeight <= 0 {
			return
		}
		sum += float64(clampScore(*value)) * dimWeight
		weight += dimWeight
	}
	add(scores.Accuracy, w.Accuracy)
	add(scores.Fluency, w.Fluency)
	add(scores.Terminology, w.Terminology)
	add(scores.Format, w.Format)
	if weight == 0 {
		return 0
	}
	return int(math.Round(sum / weight))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
