package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"localeforge/api/internal/branchdiff"
	"localeforge/api/internal/failure"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	snapshotDir   = "translations"
	defaultBranch = "main"
)

// Catalog is one language file: namespace -> key name -> value.
type Catalog map[string]map[string]string

// Snapshot maps language to its catalog.
type Snapshot map[string]Catalog

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service keeps one git repository per project under baseDir. Each store
// branch maps to a git branch whose tree holds translations/<lang>.json.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// BuildSnapshot groups key translations by language.
func BuildSnapshot(keys []branchdiff.Key) Snapshot {
	snapshot := Snapshot{}
	for _, key := range keys {
		for lang, value := range key.Translations {
			catalog, ok := snapshot[lang]
			if !ok {
				catalog = Catalog{}
				snapshot[lang] = catalog
			}
			names, ok := catalog[key.Namespace]
			if !ok {
				names = map[string]string{}
				catalog[key.Namespace] = names
			}
			names[key.Name] = value
		}
	}
	return snapshot
}

// CommitBranchSnapshot replaces the branch's tree with keys and commits it.
// The repository and branch are created on first use.
func (s *Service) CommitBranchSnapshot(projectID, branchName string, keys []branchdiff.Key, author, message string) (CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(projectID, author)
	if err != nil {
		return CommitInfo{}, err
	}
	if err := checkoutBranch(repo, refName(branchName)); err != nil {
		return CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()
	written, stale, err := writeSnapshot(root, BuildSnapshot(keys))
	if err != nil {
		return CommitInfo{}, err
	}
	for _, rel := range stale {
		if _, err := worktree.Remove(rel); err != nil {
			return CommitInfo{}, fmt.Errorf("git rm %s: %w", rel, err)
		}
	}
	for _, rel := range written {
		if _, err := worktree.Add(rel); err != nil {
			return CommitInfo{}, fmt.Errorf("git add %s: %w", rel, err)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) History(projectID, branchName string, limit int) ([]CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(projectID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(refName(branchName)), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, failure.NotFound("snapshot history", "snapshot branch", branchName)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ReadSnapshot loads the snapshot at the branch head.
func (s *Service) ReadSnapshot(projectID, branchName string) (Snapshot, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(projectID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(refName(branchName)), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, failure.NotFound("read snapshot", "snapshot branch", branchName)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}

	files, err := commitObj.Files()
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}
	snapshot := Snapshot{}
	err = files.ForEach(func(file *object.File) error {
		dir, name := path.Split(file.Name)
		if path.Clean(dir) != snapshotDir || !strings.HasSuffix(name, ".json") {
			return nil
		}
		contents, err := file.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", file.Name, err)
		}
		var catalog Catalog
		if err := json.Unmarshal([]byte(contents), &catalog); err != nil {
			return fmt.Errorf("decode %s: %w", file.Name, err)
		}
		snapshot[strings.TrimSuffix(name, ".json")] = catalog
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func (s *Service) openRepo(projectID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, failure.NotFound("open snapshots", "project snapshots", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) ensureRepo(projectID, author string) (*git.Repository, error) {
	repoDir := s.repoPath(projectID)
	if _, err := os.Stat(repoDir); err == nil {
		repo, err := git.PlainOpen(repoDir)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(repoDir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit("Initialize translation snapshots", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(defaultBranch), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(defaultBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true, Force: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

// writeSnapshot writes one file per language under translations/ and
// returns the written paths plus previously present files to remove, both
// relative to root.
func writeSnapshot(root string, snapshot Snapshot) (written, stale []string, err error) {
	dir := filepath.Join(root, snapshotDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	languages := make([]string, 0, len(snapshot))
	keep := make(map[string]bool, len(snapshot))
	for lang := range snapshot {
		languages = append(languages, lang)
		keep[sanitizeFileName(lang)+".json"] = true
	}
	sort.Strings(languages)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && !keep[entry.Name()] {
			stale = append(stale, path.Join(snapshotDir, entry.Name()))
		}
	}

	for _, lang := range languages {
		payload, err := json.MarshalIndent(snapshot[lang], "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("marshal %s catalog: %w", lang, err)
		}
		name := sanitizeFileName(lang) + ".json"
		if err := os.WriteFile(filepath.Join(dir, name), append(payload, '\n'), 0o644); err != nil {
			return nil, nil, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path.Join(snapshotDir, name))
	}
	return written, stale, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	if strings.TrimSpace(author) == "" {
		author = "LocaleForge"
	}
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.localeforge.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

// refName maps a store branch name onto a valid git branch name.
func refName(branchName string) string {
	out := make([]rune, 0, len(branchName))
	for _, r := range strings.TrimSpace(branchName) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '/':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	name := strings.Trim(string(out), "/-")
	if name == "" {
		return defaultBranch
	}
	return name
}

func sanitizeFileName(lang string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(lang)
}
