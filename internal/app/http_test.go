package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"localeforge/api/internal/branchdiff"
	"localeforge/api/internal/evaluation"
	"localeforge/api/internal/events"
	"localeforge/api/internal/gitrepo"
	"localeforge/api/internal/jobs"
	"localeforge/api/internal/search"
)

func doRequest(t *testing.T, server *HTTPServer, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v (%s)", err, rr.Body.String())
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	deps := newTestDeps()
	deps.store.pingFn = func(context.Context) error { return errors.New("connection refused") }

	rr := doRequest(t, deps.server(), http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if response := decodeResponse(t, rr); response["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", response["status"])
	}
}

func TestQualityCheckIsPublic(t *testing.T) {
	body := mustJSON(t, map[string]any{"source": "Hello {name}!", "target": "Bonjour!"})
	rr := doRequest(t, newTestDeps().server(), http.MethodPost, "/api/quality/check", "", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["hasErrors"] != true {
		t.Fatalf("expected hasErrors, got %v", response)
	}
	if !strings.Contains(rr.Body.String(), `"placeholder_missing"`) {
		t.Fatalf("expected placeholder_missing issue, got %s", rr.Body.String())
	}
}

func TestQualityCheckHonoursDisabledChecks(t *testing.T) {
	body := mustJSON(t, map[string]any{
		"source": "Hello {name}!",
		"target": "Bonjour!",
		"config": map[string]any{"checks": map[string]bool{"placeholders": false}},
	})
	rr := doRequest(t, newTestDeps().server(), http.MethodPost, "/api/quality/check", "", body)
	if strings.Contains(rr.Body.String(), "placeholder_missing") {
		t.Fatalf("placeholder check should be disabled: %s", rr.Body.String())
	}
}

func TestQualityRating(t *testing.T) {
	server := newTestDeps().server()
	cases := map[string]string{"80": "excellent", "79": "good", "60": "good", "59": "needsReview"}
	for score, want := range cases {
		rr := doRequest(t, server, http.MethodGet, "/api/quality/rating?score="+score, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("score %s: expected 200, got %d", score, rr.Code)
		}
		if got := decodeResponse(t, rr)["rating"]; got != want {
			t.Fatalf("score %s: expected %s, got %v", score, want, got)
		}
	}

	rr := doRequest(t, server, http.MethodGet, "/api/quality/rating?score=abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad score, got %d", rr.Code)
	}
}

func TestBranchRoutesRequireToken(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodGet, "/api/branches/br-feat/diff/br-main", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = doRequest(t, newTestDeps().server(), http.MethodGet, "/api/branches/br-feat/diff/br-main", "garbage", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rr.Code)
	}
}

func TestDiffRoute(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodGet, "/api/branches/br-feat/diff/br-main", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result branchdiff.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if result.Summary.Added != 1 || result.Summary.Modified != 1 || result.Summary.Removed != 0 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if result.Added[0].Name != "farewell" {
		t.Fatalf("expected farewell added, got %+v", result.Added)
	}
}

func TestDiffRouteMissingBranch(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodGet, "/api/branches/br-feat/diff/br-gone", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDiffAndMergeRejectCrossProjectBranches(t *testing.T) {
	deps := newTestDeps()
	token := issueTestToken(t, "user-1")

	rr := doRequest(t, deps.server(), http.MethodGet, "/api/branches/br-other/diff/br-main", token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("diff: expected 400, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-other/merge/br-main", token, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("merge: expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.store.applied) != 0 {
		t.Fatalf("cross-project merge applied %d plans", len(deps.store.applied))
	}
}

func TestMergeRouteForbiddenForViewer(t *testing.T) {
	deps := newTestDeps()
	rr := doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-feat/merge/br-main", issueTestToken(t, "viewer-1"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if len(deps.store.applied) != 0 {
		t.Fatal("merge should not be applied")
	}
}

func TestMergeRouteAppliesAndRecords(t *testing.T) {
	deps := newTestDeps()
	var snapshotBranch, snapshotMessage string
	deps.snapshots.commitFn = func(projectID, branchName string, keys []branchdiff.Key, author, message string) (gitrepo.CommitInfo, error) {
		snapshotBranch, snapshotMessage = branchName, message
		return gitrepo.CommitInfo{Hash: "abc1234", Message: message, Author: author}, nil
	}

	rr := doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-feat/merge/br-main", issueTestToken(t, "user-1"),
		mustJSON(t, map[string]any{"deleteRemoved": true}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	response := decodeResponse(t, rr)
	if response["keysCreated"] != float64(1) || response["translationsUpdated"] != float64(1) {
		t.Fatalf("unexpected merge counts: %v", response)
	}
	if len(deps.store.applied) != 1 {
		t.Fatalf("expected one applied plan, got %d", len(deps.store.applied))
	}
	if snapshotBranch != "main" || snapshotMessage != "Merge feature into main" {
		t.Fatalf("unexpected snapshot: %q %q", snapshotBranch, snapshotMessage)
	}
	if len(deps.search.reindexed) != 1 || deps.search.reindexed[0] != "br-main" {
		t.Fatalf("expected target reindex, got %v", deps.search.reindexed)
	}
	if len(deps.events.events) != 1 || deps.events.events[0].Type != events.TypeBranchMerged {
		t.Fatalf("expected branch.merged event, got %+v", deps.events.events)
	}
}

func TestMergeRouteSucceedsWhenSnapshotFails(t *testing.T) {
	deps := newTestDeps()
	deps.snapshots.commitFn = func(string, string, []branchdiff.Key, string, string) (gitrepo.CommitInfo, error) {
		return gitrepo.CommitInfo{}, errors.New("disk full")
	}
	rr := doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-feat/merge/br-main", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if response := decodeResponse(t, rr); response["snapshot"] != nil {
		t.Fatalf("expected null snapshot, got %v", response["snapshot"])
	}
}

func TestMergeIntoSelfIsValidationError(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodPost, "/api/branches/br-main/merge/br-main", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if response := decodeResponse(t, rr); response["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: %v", response["code"])
	}
}

func TestEvaluateBranchRouteQueuesJob(t *testing.T) {
	deps := newTestDeps()
	deps.store.findCandidateTranslationsFn = func(context.Context, string, []string) ([]evaluation.Candidate, error) {
		return []evaluation.Candidate{
			{TranslationID: "t-1", KeyID: "k-1", Language: "fr", Value: "Bonjour"},
			{TranslationID: "t-2", KeyID: "k-2", Language: "fr", Value: "Salut"},
		}, nil
	}
	var gotType string
	deps.jobs.enqueueFn = func(_ context.Context, jobType string, payload any) (string, error) {
		gotType = jobType
		return "job-42", nil
	}

	rr := doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-main/quality/evaluate", issueTestToken(t, "user-1"),
		mustJSON(t, map[string]any{"forceAI": true}))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var result evaluation.BatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.JobID != "job-42" || result.Stats.Queued != 2 || result.Stats.Total != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotType != evaluation.JobTypeBatchEvaluate {
		t.Fatalf("unexpected job type %q", gotType)
	}
}

func TestEvaluateBranchRouteRejectsOversizedBatch(t *testing.T) {
	ids := make([]string, evaluation.MaxBatchTranslationIDs+1)
	for i := range ids {
		ids[i] = "t"
	}
	rr := doRequest(t, newTestDeps().server(), http.MethodPost, "/api/branches/br-main/quality/evaluate", issueTestToken(t, "user-1"),
		mustJSON(t, map[string]any{"translationIds": ids}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestEvaluateTranslationRoute(t *testing.T) {
	deps := newTestDeps()
	source := "Hello {name}"
	deps.store.getTranslationForEvaluationFn = func(_ context.Context, id string) (evaluation.TranslationContext, error) {
		return evaluation.TranslationContext{
			TranslationID:  id,
			KeyID:          "k-1",
			BranchID:       "br-main",
			ProjectID:      "p-1",
			Language:       "fr",
			Value:          "Bonjour",
			SourceLanguage: "en",
			SourceValue:    &source,
		}, nil
	}

	rr := doRequest(t, deps.server(), http.MethodPost, "/api/translations/t-1/quality", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["evaluationType"] != "heuristic" || response["cached"] != false {
		t.Fatalf("unexpected response: %v", response)
	}
	if len(deps.store.upserted) != 1 || deps.store.upserted[0].ContentHash == nil {
		t.Fatalf("expected one upserted score with hash, got %+v", deps.store.upserted)
	}
}

func TestEvaluateTranslationRouteRejectsMissingSource(t *testing.T) {
	deps := newTestDeps()
	deps.store.getTranslationForEvaluationFn = func(_ context.Context, id string) (evaluation.TranslationContext, error) {
		return evaluation.TranslationContext{
			TranslationID:  id,
			KeyID:          "k-1",
			BranchID:       "br-main",
			ProjectID:      "p-1",
			Language:       "fr",
			Value:          "Bonjour",
			SourceLanguage: "en",
		}, nil
	}

	rr := doRequest(t, deps.server(), http.MethodPost, "/api/translations/t-1/quality", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.store.upserted) != 0 {
		t.Fatalf("expected no upserted score, got %+v", deps.store.upserted)
	}
}

func TestEvaluateTranslationRouteNotFound(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodPost, "/api/translations/t-missing/quality", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBranchChecksRoute(t *testing.T) {
	deps := newTestDeps()
	deps.store.keys["br-main"] = []branchdiff.Key{
		{ID: "k-1", Namespace: "common", Name: "welcome", Translations: map[string]string{"en": "Hi {name}", "fr": "Salut"}},
		{ID: "k-2", Namespace: "common", Name: "ok", Translations: map[string]string{"en": "OK", "fr": "OK"}},
	}
	rr := doRequest(t, deps.server(), http.MethodPost, "/api/branches/br-main/quality/checks", issueTestToken(t, "viewer-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if response := decodeResponse(t, rr); response["total"] != float64(1) {
		t.Fatalf("expected one reported pair, got %v", response["total"])
	}
}

func TestSearchRoutePassesBranch(t *testing.T) {
	deps := newTestDeps()
	var got string
	deps.search.searchFn = func(_ context.Context, q search.Query) search.Response {
		got = q.BranchID + ":" + q.Text
		return search.Response{Results: []search.Result{{KeyID: "k-1"}}, Total: 1, Query: q.Text}
	}
	rr := doRequest(t, deps.server(), http.MethodGet, "/api/branches/br-main/keys/search?q=greet", issueTestToken(t, "viewer-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got != "br-main:greet" {
		t.Fatalf("unexpected query %q", got)
	}
}

func TestSnapshotHistoryRoute(t *testing.T) {
	deps := newTestDeps()
	deps.snapshots.historyFn = func(projectID, branchName string, limit int) ([]gitrepo.CommitInfo, error) {
		if projectID != "p-1" || branchName != "release/2024" || limit != 5 {
			t.Fatalf("unexpected history args %q %q %d", projectID, branchName, limit)
		}
		return []gitrepo.CommitInfo{{Hash: "abc1234", Message: "Merge", CreatedAt: time.Now()}}, nil
	}
	rr := doRequest(t, deps.server(), http.MethodGet, "/api/projects/p-1/snapshots/release/2024?limit=5", issueTestToken(t, "viewer-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestJobRouteChecksBranchAccess(t *testing.T) {
	deps := newTestDeps()
	deps.jobs.getFn = func(_ context.Context, id string) (jobs.Job, error) {
		payload := mustJSON(t, evaluation.BatchPayload{BranchID: "br-main", TranslationIDs: []string{"t-1"}})
		return jobs.Job{ID: id, Type: evaluation.JobTypeBatchEvaluate, Status: jobs.StatusQueued, Payload: payload}, nil
	}

	rr := doRequest(t, deps.server(), http.MethodGet, "/api/jobs/job-1", issueTestToken(t, "viewer-1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, deps.server(), http.MethodGet, "/api/jobs/job-1", issueTestToken(t, "stranger"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", rr.Code)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	rr := doRequest(t, newTestDeps().server(), http.MethodGet, "/api/nope", issueTestToken(t, "user-1"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
