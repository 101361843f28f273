package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
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
	"localeforge/api/internal/search"
	"localeforge/api/internal/store"
)

const testSecret = "test-secret"

// fakeStore serves project p-1 with branches br-main and br-feat, and
// project p-2 with branch br-other.
type fakeStore struct {
	mu             sync.Mutex
	roles          map[string]string
	branchProjects map[string]string
	keys     map[string][]branchdiff.Key
	applied  []branchdiff.MergePlan
	upserted []evaluation.ScoreRecord

	pingFn                        func(context.Context) error
	findCandidateTranslationsFn   func(context.Context, string, []string) ([]evaluation.Candidate, error)
	getTranslationForEvaluationFn func(context.Context, string) (evaluation.TranslationContext, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:          map[string]string{"user-1": "reviewer", "viewer-1": "viewer"},
		branchProjects: map[string]string{"br-other": "p-2"},
		keys: map[string][]branchdiff.Key{
			"br-main": {
				{ID: "k-m1", Namespace: "common", Name: "greeting", Translations: map[string]string{"en": "Hello", "fr": "Salut"}},
			},
			"br-feat": {
				{ID: "k-f1", Namespace: "common", Name: "greeting", Translations: map[string]string{"en": "Hello", "fr": "Bonjour"}},
				{ID: "k-f2", Namespace: "common", Name: "farewell", Translations: map[string]string{"en": "Bye"}},
			},
			"br-other": {
				{ID: "k-o1", Namespace: "common", Name: "welcome", Translations: map[string]string{"en": "Welcome"}},
			},
		},
	}
}

func (f *fakeStore) hasBranch(branchID string) bool {
	_, ok := f.keys[branchID]
	return ok
}

func (f *fakeStore) GetBranchProject(_ context.Context, branchID string) (access.ProjectInfo, error) {
	if !f.hasBranch(branchID) {
		return access.ProjectInfo{}, failure.NotFound("get branch project", "branch", branchID)
	}
	projectID := "p-1"
	if id, ok := f.branchProjects[branchID]; ok {
		projectID = id
	}
	return access.ProjectInfo{ProjectID: projectID, SpaceID: "s-1", DefaultLanguage: "en", Languages: []string{"en", "fr"}}, nil
}

func (f *fakeStore) GetProjectRole(_ context.Context, _ string, userID string) (string, bool, error) {
	role, ok := f.roles[userID]
	return role, ok, nil
}

func (f *fakeStore) BranchExists(_ context.Context, branchID string) (bool, error) {
	return f.hasBranch(branchID), nil
}

func (f *fakeStore) FindKeysWithTranslations(_ context.Context, branchID string) ([]branchdiff.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]branchdiff.Key(nil), f.keys[branchID]...), nil
}

func (f *fakeStore) ApplyMerge(_ context.Context, _ string, plan branchdiff.MergePlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, plan)
	return nil
}

func (f *fakeStore) FindCandidateTranslations(ctx context.Context, branchID string, ids []string) ([]evaluation.Candidate, error) {
	if f.findCandidateTranslationsFn != nil {
		return f.findCandidateTranslationsFn(ctx, branchID, ids)
	}
	return nil, nil
}

func (f *fakeStore) FindSourceValuesForKeys(_ context.Context, keyIDs []string, _ string) (map[string]string, error) {
	values := map[string]string{}
	for _, id := range keyIDs {
		values[id] = "Hello"
	}
	return values, nil
}

func (f *fakeStore) GetTranslationForEvaluation(ctx context.Context, translationID string) (evaluation.TranslationContext, error) {
	if f.getTranslationForEvaluationFn != nil {
		return f.getTranslationForEvaluationFn(ctx, translationID)
	}
	return evaluation.TranslationContext{}, failure.NotFound("get translation", "translation", translationID)
}

func (f *fakeStore) UpsertQualityScore(_ context.Context, record evaluation.ScoreRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, record)
	return nil
}

func (f *fakeStore) FindTermsWithTranslations(context.Context, string, string) ([]quality.GlossaryTerm, error) {
	return nil, nil
}

func (f *fakeStore) GetBranch(_ context.Context, branchID string) (store.Branch, error) {
	names := map[string]string{"br-main": "main", "br-feat": "feature"}
	name, ok := names[branchID]
	if !ok {
		return store.Branch{}, failure.NotFound("get branch", "branch", branchID)
	}
	return store.Branch{ID: branchID, ProjectID: "p-1", Name: name}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeJobs struct {
	enqueueFn func(ctx context.Context, jobType string, payload any) (string, error)
	getFn     func(ctx context.Context, id string) (jobs.Job, error)
}

func (f *fakeJobs) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	return f.enqueueFn(ctx, jobType, payload)
}

func (f *fakeJobs) Get(ctx context.Context, id string) (jobs.Job, error) {
	return f.getFn(ctx, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeSnapshots struct {
	commitFn  func(projectID, branchName string, keys []branchdiff.Key, author, message string) (gitrepo.CommitInfo, error)
	historyFn func(projectID, branchName string, limit int) ([]gitrepo.CommitInfo, error)
}

func (f *fakeSnapshots) CommitBranchSnapshot(projectID, branchName string, keys []branchdiff.Key, author, message string) (gitrepo.CommitInfo, error) {
	return f.commitFn(projectID, branchName, keys, author, message)
}

func (f *fakeSnapshots) History(projectID, branchName string, limit int) ([]gitrepo.CommitInfo, error) {
	return f.historyFn(projectID, branchName, limit)
}

type fakeSearch struct {
	searchFn  func(ctx context.Context, q search.Query) search.Response
	reindexed []string
	deleted   []string
}

func (f *fakeSearch) Search(ctx context.Context, q search.Query) search.Response {
	return f.searchFn(ctx, q)
}

func (f *fakeSearch) ReindexBranch(_ context.Context, branchID string) {
	f.reindexed = append(f.reindexed, branchID)
}

func (f *fakeSearch) DeleteKeys(ids []string) {
	f.deleted = append(f.deleted, ids...)
}

type testDeps struct {
	store     *fakeStore
	jobs      *fakeJobs
	events    *fakePublisher
	search    *fakeSearch
	snapshots *fakeSnapshots
}

func newTestDeps() *testDeps {
	return &testDeps{
		store: newFakeStore(),
		jobs: &fakeJobs{
			enqueueFn: func(context.Context, string, any) (string, error) { return "job-1", nil },
			getFn: func(_ context.Context, id string) (jobs.Job, error) {
				return jobs.Job{}, failure.NotFound("get job", "job", id)
			},
		},
		events: &fakePublisher{},
		search: &fakeSearch{searchFn: func(_ context.Context, q search.Query) search.Response {
			return search.Response{Results: []search.Result{}, Query: q.Text}
		}},
		snapshots: &fakeSnapshots{
			commitFn: func(string, string, []branchdiff.Key, string, string) (gitrepo.CommitInfo, error) {
				return gitrepo.CommitInfo{Hash: "abc1234"}, nil
			},
			historyFn: func(string, string, int) ([]gitrepo.CommitInfo, error) { return []gitrepo.CommitInfo{}, nil },
		},
	}
}

func (d *testDeps) service() *Service {
	return New(config.Config{JWTSecret: testSecret}, Dependencies{
		Store:     d.store,
		Jobs:      d.jobs,
		Events:    d.events,
		Search:    d.search,
		Snapshots: d.snapshots,
	}, zerolog.Nop())
}

func (d *testDeps) server() *HTTPServer {
	return NewHTTPServer(d.service(), "*", zerolog.Nop())
}

func issueTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:  userID,
		Name: "Avery",
		JTI:  "jti-" + userID,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
