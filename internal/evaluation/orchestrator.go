// Package evaluation decides which translations need a fresh quality score
// and produces those scores, either inline for one translation or as a
// background batch.
package evaluation

import (
	"context"
	"strings"

	"localeforge/api/internal/access"
	"localeforge/api/internal/contenthash"
	"localeforge/api/internal/events"
	"localeforge/api/internal/failure"
	"localeforge/api/internal/quality"
)

const (
	JobTypeBatchEvaluate   = "quality.batch_evaluate"
	MaxBatchTranslationIDs = 1000
)

// Candidate is a translation considered for batch evaluation together with
// its cached score, if any.
type Candidate struct {
	TranslationID string
	KeyID         string
	Language      string
	Value         string
	Cached        *ScoreRecord
}

type Repository interface {
	// FindCandidateTranslations returns the branch's translations, limited to
	// ids when ids is non-empty.
	FindCandidateTranslations(ctx context.Context, branchID string, ids []string) ([]Candidate, error)
	FindSourceValuesForKeys(ctx context.Context, keyIDs []string, sourceLanguage string) (map[string]string, error)
}

type Dispatcher interface {
	Enqueue(ctx context.Context, jobType string, payload any) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type BatchOptions struct {
	TranslationIDs []string `json:"translationIds,omitempty"`
	ForceAI        bool     `json:"forceAI"`
}

// BatchPayload is the body of a quality.batch_evaluate job.
type BatchPayload struct {
	BranchID       string   `json:"branchId"`
	ProjectID      string   `json:"projectId"`
	ActorID        string   `json:"actorId"`
	TranslationIDs []string `json:"translationIds"`
	ForceAI        bool     `json:"forceAI"`
}

type Stats struct {
	Total  int `json:"total"`
	Cached int `json:"cached"`
	Queued int `json:"queued"`
}

type BatchResult struct {
	JobID string `json:"jobId"`
	Stats Stats  `json:"stats"`
}

type Orchestrator struct {
	repo       Repository
	dispatcher Dispatcher
	publisher  Publisher
}

func NewOrchestrator(repo Repository, dispatcher Dispatcher, publisher Publisher) *Orchestrator {
	return &Orchestrator{repo: repo, dispatcher: dispatcher, publisher: publisher}
}

// EvaluateBranch queues every candidate translation whose cached score no
// longer matches its current content. project must already be verified for
// the actor. When nothing needs evaluation no job is dispatched and JobID is
// empty.
func (o *Orchestrator) EvaluateBranch(ctx context.Context, branchID, actorID string, project access.ProjectInfo, opts BatchOptions) (BatchResult, error) {
	const op = "evaluate branch"
	if strings.TrimSpace(branchID) == "" {
		return BatchResult{}, failure.Validation(op, "branchId", "is required")
	}
	if len(opts.TranslationIDs) > MaxBatchTranslationIDs {
		return BatchResult{}, failure.Validation(op, "translationIds", "exceeds maximum batch size of 1000")
	}

	candidates, err := o.repo.FindCandidateTranslations(ctx, branchID, opts.TranslationIDs)
	if err != nil {
		return BatchResult{}, err
	}

	// The source language is the baseline and is never scored against itself.
	filtered := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if quality.SameLanguage(candidate.Language, project.DefaultLanguage) {
			continue
		}
		filtered = append(filtered, candidate)
	}

	sourceValues := map[string]string{}
	if keyIDs := distinctKeyIDs(filtered); len(keyIDs) > 0 {
		sourceValues, err = o.repo.FindSourceValuesForKeys(ctx, keyIDs, project.DefaultLanguage)
		if err != nil {
			return BatchResult{}, err
		}
	}

	pending := make([]string, 0, len(filtered))
	for _, candidate := range filtered {
		if NeedsEvaluation(candidate, sourceValues) {
			pending = append(pending, candidate.TranslationID)
		}
	}

	result := BatchResult{Stats: Stats{
		Total:  len(filtered),
		Cached: len(filtered) - len(pending),
		Queued: len(pending),
	}}

	if len(pending) > 0 {
		jobID, err := o.dispatcher.Enqueue(ctx, JobTypeBatchEvaluate, BatchPayload{
			BranchID:       branchID,
			ProjectID:      project.ProjectID,
			ActorID:        actorID,
			TranslationIDs: pending,
			ForceAI:        opts.ForceAI,
		})
		if err != nil {
			return BatchResult{}, err
		}
		if jobID == "" {
			return BatchResult{}, failure.Invariant(op, "job dispatcher accepted batch without returning a job id")
		}
		result.JobID = jobID
	}

	if o.publisher != nil {
		o.publisher.Publish(ctx, events.Event{
			Type:      events.TypeBatchEvaluationQueued,
			ProjectID: project.ProjectID,
			BranchID:  branchID,
			ActorID:   actorID,
			Payload:   result,
		})
	}
	return result, nil
}

// NeedsEvaluation reports whether candidate must be re-scored given the
// current source values by key ID.
func NeedsEvaluation(candidate Candidate, sourceValues map[string]string) bool {
	source, ok := sourceValues[candidate.KeyID]
	if !ok {
		return true
	}
	if candidate.Cached == nil {
		return true
	}
	return contenthash.IsStale(candidate.Cached.ContentHash, source, candidate.Value)
}

func distinctKeyIDs(candidates []Candidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate.KeyID]; ok {
			continue
		}
		seen[candidate.KeyID] = struct{}{}
		ids = append(ids, candidate.KeyID)
	}
	return ids
}
