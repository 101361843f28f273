package gitrepo

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"localeforge/api/internal/branchdiff"
	"localeforge/api/internal/failure"
)

func sampleKeys() []branchdiff.Key {
	return []branchdiff.Key{
		{ID: "key_1", Namespace: "common", Name: "greeting", Translations: map[string]string{"en": "Hello", "de": "Hallo"}},
		{ID: "key_2", Namespace: "auth", Name: "login", Translations: map[string]string{"en": "Log in"}},
	}
}

func TestCommitBranchSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	commit, err := svc.CommitBranchSnapshot("prj_1", "main", sampleKeys(), "Avery", "Merge feature into main")
	if err != nil {
		t.Fatalf("CommitBranchSnapshot() error = %v", err)
	}
	if len(commit.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", commit.Hash)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "prj_1", "translations", "de.json")); err != nil {
		t.Fatalf("language file missing: %v", err)
	}

	snapshot, err := svc.ReadSnapshot("prj_1", "main")
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if got := snapshot["de"]["common"]["greeting"]; got != "Hallo" {
		t.Fatalf("expected Hallo, got %q", got)
	}
	if _, ok := snapshot["de"]["auth"]; ok {
		t.Fatal("de catalog should not contain untranslated namespace")
	}

	history, err := svc.History("prj_1", "main", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected baseline + snapshot commits, got %d", len(history))
	}
	if history[0].Message != "Merge feature into main" || history[0].Author != "Avery" {
		t.Fatalf("unexpected head commit: %+v", history[0])
	}
}

func TestCommitBranchSnapshotRemovesDroppedLanguages(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.CommitBranchSnapshot("prj_1", "main", sampleKeys(), "Avery", "first"); err != nil {
		t.Fatalf("CommitBranchSnapshot() error = %v", err)
	}
	englishOnly := []branchdiff.Key{{Namespace: "common", Name: "greeting", Translations: map[string]string{"en": "Hi"}}}
	if _, err := svc.CommitBranchSnapshot("prj_1", "main", englishOnly, "Avery", "second"); err != nil {
		t.Fatalf("CommitBranchSnapshot() second error = %v", err)
	}

	snapshot, err := svc.ReadSnapshot("prj_1", "main")
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if _, ok := snapshot["de"]; ok {
		t.Fatalf("expected de catalog removed, got %+v", snapshot)
	}
	if snapshot["en"]["common"]["greeting"] != "Hi" {
		t.Fatalf("unexpected en catalog: %+v", snapshot["en"])
	}
}

func TestBranchesAreIsolated(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.CommitBranchSnapshot("prj_1", "main", sampleKeys(), "Avery", "main"); err != nil {
		t.Fatalf("CommitBranchSnapshot(main) error = %v", err)
	}
	feature := []branchdiff.Key{{Namespace: "common", Name: "greeting", Translations: map[string]string{"en": "Howdy"}}}
	if _, err := svc.CommitBranchSnapshot("prj_1", "feature/new copy", feature, "Avery", "feature"); err != nil {
		t.Fatalf("CommitBranchSnapshot(feature) error = %v", err)
	}

	main, err := svc.ReadSnapshot("prj_1", "main")
	if err != nil {
		t.Fatalf("ReadSnapshot(main) error = %v", err)
	}
	if main["en"]["common"]["greeting"] != "Hello" {
		t.Fatalf("main snapshot changed: %+v", main["en"])
	}
	featureSnapshot, err := svc.ReadSnapshot("prj_1", "feature/new copy")
	if err != nil {
		t.Fatalf("ReadSnapshot(feature) error = %v", err)
	}
	if featureSnapshot["en"]["common"]["greeting"] != "Howdy" {
		t.Fatalf("unexpected feature snapshot: %+v", featureSnapshot["en"])
	}
}

func TestHistoryMissingRepoIsNotFound(t *testing.T) {
	svc := New(t.TempDir())
	_, err := svc.History("prj_missing", "main", 5)
	if !failure.IsKind(err, failure.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentSnapshotsSerializePerProject(t *testing.T) {
	svc := New(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitBranchSnapshot("prj_1", "main", sampleKeys(), "Avery", "concurrent")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CommitBranchSnapshot() error = %v", err)
		}
	}

	history, err := svc.History("prj_1", "main", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 commits, got %d", len(history))
	}
}

func TestRefName(t *testing.T) {
	cases := map[string]string{
		"main":             "main",
		"feature/new copy": "feature/new-copy",
		"  ":               "main",
		"/weird/":          "weird",
	}
	for in, want := range cases {
		if got := refName(in); got != want {
			t.Fatalf("refName(%q) = %q, want %q", in, got, want)
		}
	}
}
