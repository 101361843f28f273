package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"localeforge/api/internal/access"
	"localeforge/api/internal/auth"
	"localeforge/api/internal/branchdiff"
	"localeforge/api/internal/config"
	"localeforge/api/internal/evaluation"
	"localeforge/api/internal/events"
	"localeforge/api/internal/failure"
	"localeforge/api/internal/gitrepo"
	"localeforge/api/internal/jobs"
	"localeforge/api/internal/quality"
	"localeforge/api/internal/rbac"
	"localeforge/api/internal/search"
	"localeforge/api/internal/store"
	"localeforge/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// DataStore is the persistence surface the service needs. store.PostgresStore
// satisfies it.
type DataStore interface {
	access.Repository
	branchdiff.MergeRepository
	evaluation.Repository
	evaluation.ScoreRepository
	evaluation.GlossaryRepository
	GetBranch(ctx context.Context, branchID string) (store.Branch, error)
	Ping(ctx context.Context) error
}

type Snapshots interface {
	CommitBranchSnapshot(projectID, branchName string, keys []branchdiff.Key, author, message string) (gitrepo.CommitInfo, error)
	History(projectID, branchName string, limit int) ([]gitrepo.CommitInfo, error)
}

type KeySearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	ReindexBranch(ctx context.Context, branchID string)
	DeleteKeys(ids []string)
}

type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload any) (string, error)
	Get(ctx context.Context, id string) (jobs.Job, error)
}

// Dependencies are the collaborators wired by the composition root. Search,
// Snapshots and AI are optional.
type Dependencies struct {
	Store     DataStore
	Jobs      JobQueue
	Events    evaluation.Publisher
	Search    KeySearch
	Snapshots Snapshots
	AIScorer  evaluation.AIScorer
	AICache   evaluation.AICache
}

type Service struct {
	cfg          config.Config
	store        DataStore
	jobs         JobQueue
	events       evaluation.Publisher
	search       KeySearch
	snapshots    Snapshots
	verifier     *access.Verifier
	calculator   *branchdiff.Calculator
	merger       *branchdiff.Merger
	orchestrator *evaluation.Orchestrator
	evaluator    *evaluation.Evaluator
	checkConfig  quality.Config
	logger       zerolog.Logger
	now          func() time.Time
}

func New(cfg config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	checkConfig := quality.DefaultConfig()
	if cfg.LengthWarnRatio > 0 {
		checkConfig.LengthWarnRatio = cfg.LengthWarnRatio
	}
	if cfg.LengthErrorRatio > 0 {
		checkConfig.LengthErrorRatio = cfg.LengthErrorRatio
	}

	opts := []evaluation.EvaluatorOption{
		evaluation.WithGlossary(deps.Store),
		evaluation.WithCheckConfig(checkConfig),
	}
	if deps.AIScorer != nil {
		opts = append(opts, evaluation.WithAI(deps.AIScorer, deps.AICache))
	}

	return &Service{
		cfg:          cfg,
		store:        deps.Store,
		jobs:         deps.Jobs,
		events:       deps.Events,
		search:       deps.Search,
		snapshots:    deps.Snapshots,
		verifier:     access.NewVerifier(deps.Store),
		calculator:   branchdiff.NewCalculator(deps.Store),
		merger:       branchdiff.NewMerger(deps.Store),
		orchestrator: evaluation.NewOrchestrator(deps.Store, deps.Jobs, deps.Events),
		evaluator:    evaluation.NewEvaluator(deps.Store, opts...),
		checkConfig:  checkConfig,
		logger:       logger.With().Str("component", "app").Logger(),
		now:          time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Diff(ctx context.Context, session Session, sourceBranchID, targetBranchID string) (branchdiff.Result, error) {
	if _, err := s.verifyBranchPair(ctx, session, "diff branches", sourceBranchID, targetBranchID, rbac.ActionRead); err != nil {
		return branchdiff.Result{}, err
	}
	return s.calculator.ComputeDiff(ctx, sourceBranchID, targetBranchID)
}

// verifyBranchPair checks read access on the source, targetAction on the
// target, and that both branches belong to the same project. It returns the
// target's project.
func (s *Service) verifyBranchPair(ctx context.Context, session Session, op, sourceBranchID, targetBranchID string, targetAction rbac.Action) (access.ProjectInfo, error) {
	source, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, sourceBranchID, rbac.ActionRead)
	if err != nil {
		return access.ProjectInfo{}, err
	}
	target, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, targetBranchID, targetAction)
	if err != nil {
		return access.ProjectInfo{}, err
	}
	if source.ProjectID != target.ProjectID {
		return access.ProjectInfo{}, failure.Validation(op, "targetBranchId", "branches belong to different projects")
	}
	return target, nil
}

type MergeInput struct {
	DeleteRemoved bool     `json:"deleteRemoved"`
	Languages     []string `json:"languages"`
}

type MergeOutcome struct {
	branchdiff.MergeResult
	Snapshot *gitrepo.CommitInfo `json:"snapshot"`
}

// Merge applies the source branch onto the target branch, then records a
// snapshot, refreshes search and announces the merge. Post-merge steps are
// best effort: the merge itself is already committed.
func (s *Service) Merge(ctx context.Context, session Session, sourceBranchID, targetBranchID string, input MergeInput) (MergeOutcome, error) {
	project, err := s.verifyBranchPair(ctx, session, "merge branches", sourceBranchID, targetBranchID, rbac.ActionMerge)
	if err != nil {
		return MergeOutcome{}, err
	}

	result, err := s.merger.Merge(ctx, sourceBranchID, targetBranchID, branchdiff.MergeOptions{
		DeleteRemoved: input.DeleteRemoved,
		Languages:     input.Languages,
	})
	if err != nil {
		return MergeOutcome{}, err
	}
	outcome := MergeOutcome{MergeResult: result}

	if s.snapshots != nil {
		commit, err := s.snapshotBranch(ctx, project.ProjectID, sourceBranchID, targetBranchID, session.UserName)
		if err != nil {
			s.logger.Warn().Err(err).Str("branch_id", targetBranchID).Msg("snapshot after merge failed")
		} else {
			outcome.Snapshot = &commit
		}
	}

	if s.search != nil {
		s.search.ReindexBranch(ctx, targetBranchID)
		if input.DeleteRemoved {
			removed := make([]string, 0, len(result.Diff.Removed))
			for _, key := range result.Diff.Removed {
				removed = append(removed, key.ID)
			}
			s.search.DeleteKeys(removed)
		}
	}

	s.publish(ctx, events.TypeBranchMerged, project.ProjectID, targetBranchID, session.UserID, map[string]any{
		"sourceBranchId":      sourceBranchID,
		"targetBranchId":      targetBranchID,
		"keysCreated":         result.KeysCreated,
		"translationsUpdated": result.TranslationsUpdated,
		"keysDeleted":         result.KeysDeleted,
	})
	return outcome, nil
}

func (s *Service) snapshotBranch(ctx context.Context, projectID, sourceBranchID, targetBranchID, author string) (gitrepo.CommitInfo, error) {
	target, err := s.store.GetBranch(ctx, targetBranchID)
	if err != nil {
		return gitrepo.CommitInfo{}, err
	}
	keys, err := s.store.FindKeysWithTranslations(ctx, targetBranchID)
	if err != nil {
		return gitrepo.CommitInfo{}, err
	}
	sourceName := sourceBranchID
	if source, err := s.store.GetBranch(ctx, sourceBranchID); err == nil {
		sourceName = source.Name
	}
	message := fmt.Sprintf("Merge %s into %s", sourceName, target.Name)
	return s.snapshots.CommitBranchSnapshot(projectID, target.Name, keys, author, message)
}

type EvaluateBranchInput struct {
	TranslationIDs []string `json:"translationIds"`
	ForceAI        bool     `json:"forceAI"`
}

func (s *Service) EvaluateBranch(ctx context.Context, session Session, branchID string, input EvaluateBranchInput) (evaluation.BatchResult, error) {
	project, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, branchID, rbac.ActionEvaluate)
	if err != nil {
		return evaluation.BatchResult{}, err
	}
	return s.orchestrator.EvaluateBranch(ctx, branchID, session.UserID, project, evaluation.BatchOptions{
		TranslationIDs: input.TranslationIDs,
		ForceAI:        input.ForceAI,
	})
}

type EvaluateTranslationInput struct {
	Force   bool `json:"force"`
	ForceAI bool `json:"forceAI"`
}

func (s *Service) EvaluateTranslation(ctx context.Context, session Session, translationID string, input EvaluateTranslationInput) (evaluation.Result, error) {
	tc, err := s.store.GetTranslationForEvaluation(ctx, translationID)
	if err != nil {
		return evaluation.Result{}, err
	}
	if _, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, tc.BranchID, rbac.ActionEvaluate); err != nil {
		return evaluation.Result{}, err
	}
	return s.evaluator.EvaluateTranslation(ctx, translationID, evaluation.EvaluateOptions{
		Force:   input.Force,
		ForceAI: input.ForceAI,
	})
}

// BranchChecks runs the heuristic checks over every key of a branch and
// returns only the pairs with issues.
func (s *Service) BranchChecks(ctx context.Context, session Session, branchID string, override *quality.Config) ([]quality.BatchResult, error) {
	project, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, branchID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	keys, err := s.store.FindKeysWithTranslations(ctx, branchID)
	if err != nil {
		return nil, err
	}
	entries := make([]quality.BatchEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, quality.BatchEntry{
			KeyID:        key.ID,
			Namespace:    key.Namespace,
			Name:         key.Name,
			Translations: key.Translations,
		})
	}
	cfg := s.mergeCheckConfig(override)
	return quality.RunBatchChecks(entries, project.DefaultLanguage, &cfg), nil
}

type CheckTextInput struct {
	Source         string          `json:"source"`
	Target         string          `json:"target"`
	SourceLanguage string          `json:"sourceLanguage"`
	TargetLanguage string          `json:"targetLanguage"`
	Config         *quality.Config `json:"config"`
}

func (s *Service) CheckText(input CheckTextInput) quality.CheckResult {
	cfg := s.mergeCheckConfig(input.Config)
	return quality.RunChecks(quality.CheckInput{
		Source:         input.Source,
		Target:         input.Target,
		SourceLanguage: input.SourceLanguage,
		TargetLanguage: input.TargetLanguage,
	}, &cfg)
}

// mergeCheckConfig layers a request-supplied config over the service defaults.
func (s *Service) mergeCheckConfig(override *quality.Config) quality.Config {
	cfg := s.checkConfig
	if override == nil {
		return cfg
	}
	if override.Checks != nil {
		cfg.Checks = override.Checks
	}
	if override.LengthWarnRatio > 0 {
		cfg.LengthWarnRatio = override.LengthWarnRatio
	}
	if override.LengthErrorRatio > 0 {
		cfg.LengthErrorRatio = override.LengthErrorRatio
	}
	if override.MinSourceLength > 0 {
		cfg.MinSourceLength = override.MinSourceLength
	}
	if override.SeverityOverrides != nil {
		cfg.SeverityOverrides = override.SeverityOverrides
	}
	return cfg
}

func (s *Service) SearchKeys(ctx context.Context, session Session, branchID string, q search.Query) (search.Response, error) {
	if _, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, branchID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	q.BranchID = branchID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) SnapshotHistory(ctx context.Context, session Session, projectID, branchName string, limit int) ([]gitrepo.CommitInfo, error) {
	if err := s.verifier.VerifyProjectAccess(ctx, session.UserID, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.snapshots == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_DISABLED", "Snapshots are not configured", nil)
	}
	return s.snapshots.History(projectID, branchName, limit)
}

// Job returns a background job if the caller can read its branch.
func (s *Service) Job(ctx context.Context, session Session, jobID string) (jobs.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	var payload evaluation.BatchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.BranchID == "" {
		return jobs.Job{}, failure.NotFound("get job", "job", jobID)
	}
	if _, err := s.verifier.VerifyBranchAccess(ctx, session.UserID, payload.BranchID, rbac.ActionRead); err != nil {
		return jobs.Job{}, err
	}
	return job, nil
}

func (s *Service) publish(ctx context.Context, eventType, projectID, branchID, actorID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		ID:         util.NewID("evt"),
		Type:       eventType,
		ProjectID:  projectID,
		BranchID:   branchID,
		ActorID:    actorID,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	})
}

// JobHandler returns the batch evaluation handler for background workers.
func (s *Service) JobHandler() *evaluation.JobHandler {
	return evaluation.NewJobHandler(s.evaluator)
}
