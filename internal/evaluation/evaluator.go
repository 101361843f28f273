package evaluation

import (
	"context"
	"strings"
	"time"

	"localeforge/api/internal/contenthash"
	"localeforge/api/internal/failure"
	"localeforge/api/internal/quality"
)

// ScoreRecord is a persisted quality score. A nil ContentHash marks a record
// written before hashes were tracked; it is always stale.
type ScoreRecord struct {
	TranslationID   string                 `json:"translationId"`
	Score           int                    `json:"score"`
	EvaluationType  quality.EvaluationType `json:"evaluationType"`
	AI              *quality.AIScores      `json:"ai,omitempty"`
	GlossaryPenalty int                    `json:"glossaryPenalty"`
	Issues          []quality.Issue        `json:"issues"`
	ContentHash     *string                `json:"contentHash,omitempty"`
	EvaluatedAt     time.Time              `json:"evaluatedAt"`
}

// TranslationContext is everything needed to score one translation.
type TranslationContext struct {
	TranslationID  string
	KeyID          string
	BranchID       string
	ProjectID      string
	Language       string
	Value          string
	SourceLanguage string
	// SourceValue is nil when the key has no source-language row.
	SourceValue *string
	Cached      *ScoreRecord
}

type ScoreRepository interface {
	GetTranslationForEvaluation(ctx context.Context, translationID string) (TranslationContext, error)
	UpsertQualityScore(ctx context.Context, record ScoreRecord) error
}

type GlossaryRepository interface {
	FindTermsWithTranslations(ctx context.Context, projectID, targetLanguage string) ([]quality.GlossaryTerm, error)
}

type AIScorer interface {
	Score(ctx context.Context, input quality.CheckInput) (quality.AIScores, error)
}

// AICache is best effort: misses and write failures never fail an evaluation.
type AICache interface {
	Get(ctx context.Context, contentHash, sourceLanguage, targetLanguage string) (quality.AIScores, bool)
	Set(ctx context.Context, contentHash, sourceLanguage, targetLanguage string, scores quality.AIScores)
}

type EvaluateOptions struct {
	// Force ignores a valid cached score.
	Force bool `json:"force"`
	// ForceAI runs the AI scorer even when heuristic checks found errors.
	ForceAI bool `json:"forceAI"`
}

type Result struct {
	ScoreRecord
	Rating quality.Rating `json:"rating"`
	Cached bool           `json:"cached"`
}

type Evaluator struct {
	scores   ScoreRepository
	glossary GlossaryRepository
	ai       AIScorer
	aiCache  AICache
	checks   quality.Config
	weights  quality.ScoreWeights
	terms    *quality.GlossaryEvaluator
	now      func() time.Time
}

type EvaluatorOption func(*Evaluator)

func WithGlossary(repo GlossaryRepository) EvaluatorOption {
	return func(e *Evaluator) { e.glossary = repo }
}

func WithAI(scorer AIScorer, cache AICache) EvaluatorOption {
	return func(e *Evaluator) {
		e.ai = scorer
		e.aiCache = cache
	}
}

func WithCheckConfig(cfg quality.Config) EvaluatorOption {
	return func(e *Evaluator) { e.checks = cfg }
}

func WithScoreWeights(weights quality.ScoreWeights) EvaluatorOption {
	return func(e *Evaluator) { e.weights = weights }
}

func NewEvaluator(scores ScoreRepository, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		scores:  scores,
		checks:  quality.DefaultConfig(),
		weights: quality.DefaultScoreWeights(),
		terms:   quality.NewGlossaryEvaluator(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateTranslation scores a single translation and stores the result. A
// cached score whose content hash still matches is returned unchanged unless
// opts.Force is set.
func (e *Evaluator) EvaluateTranslation(ctx context.Context, translationID string, opts EvaluateOptions) (Result, error) {
	if strings.TrimSpace(translationID) == "" {
		return Result{}, failure.Validation("evaluate translation", "translationId", "is required")
	}

	tc, err := e.scores.GetTranslationForEvaluation(ctx, translationID)
	if err != nil {
		return Result{}, err
	}

	// Without a source-language value there is nothing to check against, and
	// a stored score would read as excellent.
	if tc.SourceValue == nil {
		return Result{}, failure.Validation("evaluate translation", "sourceValue", "source-language translation missing")
	}
	source := *tc.SourceValue

	if !opts.Force && tc.Cached != nil &&
		!contenthash.IsStale(tc.Cached.ContentHash, source, tc.Value) {
		return Result{ScoreRecord: *tc.Cached, Rating: quality.RatingFor(tc.Cached.Score), Cached: true}, nil
	}

	input := quality.CheckInput{
		Source:         source,
		Target:         tc.Value,
		SourceLanguage: tc.SourceLanguage,
		TargetLanguage: tc.Language,
	}
	checks := quality.RunChecks(input, &e.checks)

	var glossary *quality.GlossaryResult
	if e.glossary != nil && tc.ProjectID != "" {
		terms, err := e.glossary.FindTermsWithTranslations(ctx, tc.ProjectID, tc.Language)
		if err != nil {
			return Result{}, err
		}
		glossary = e.terms.Evaluate(terms, source, tc.Value)
	}

	hash := contenthash.Generate(source, tc.Value)

	var ai *quality.AIScores
	if e.ai != nil && (opts.ForceAI || !checks.HasErrors) &&
		strings.TrimSpace(source) != "" && strings.TrimSpace(tc.Value) != "" {
		scores, err := e.aiScores(ctx, hash, input)
		if err != nil {
			return Result{}, err
		}
		ai = &scores
	}

	aggregate := quality.Aggregate(quality.ScoreInput{
		Issues:   checks.Issues,
		AI:       ai,
		Glossary: glossary,
	}, &e.weights)

	record := ScoreRecord{
		TranslationID:   tc.TranslationID,
		Score:           aggregate.Score,
		EvaluationType:  aggregate.EvaluationType,
		AI:              aggregate.AI,
		GlossaryPenalty: aggregate.GlossaryPenalty,
		Issues:          aggregate.Issues,
		ContentHash:     &hash,
		EvaluatedAt:     e.now(),
	}
	if err := e.scores.UpsertQualityScore(ctx, record); err != nil {
		return Result{}, err
	}
	return Result{ScoreRecord: record, Rating: aggregate.Rating}, nil
}

func (e *Evaluator) aiScores(ctx context.Context, hash string, input quality.CheckInput) (quality.AIScores, error) {
	if e.aiCache != nil {
		if cached, ok := e.aiCache.Get(ctx, hash, input.SourceLanguage, input.TargetLanguage); ok {
			return cached, nil
		}
	}
	scores, err := e.ai.Score(ctx, input)
	if err != nil {
		return quality.AIScores{}, err
	}
	if e.aiCache != nil {
		e.aiCache.Set(ctx, hash, input.SourceLanguage, input.TargetLanguage, scores)
	}
	return scores, nil
}
