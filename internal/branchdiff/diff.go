// Package branchdiff compares the translation keys of two branches and
// applies the result of such a comparison as a merge.
package branchdiff

import (
	"context"
	"sort"
	"strings"

	"localeforge/api/internal/failure"
)

// Key is a translation key with its values by language. A language missing
// from Translations has no translation row, which is not the same as an
// empty string.
type Key struct {
	ID           string            `json:"id"`
	Namespace    string            `json:"namespace"`
	Name         string            `json:"name"`
	Translations map[string]string `json:"translations"`
}

type Repository interface {
	BranchExists(ctx context.Context, branchID string) (bool, error)
	FindKeysWithTranslations(ctx context.Context, branchID string) ([]Key, error)
}

// ValueChange records one language of a modified key. Old is the target
// branch value and New the source branch value; nil means no row.
type ValueChange struct {
	Language string  `json:"language"`
	Old      *string `json:"old"`
	New      *string `json:"new"`
}

type ModifiedKey struct {
	Namespace   string        `json:"namespace"`
	Name        string        `json:"name"`
	SourceKeyID string        `json:"sourceKeyId"`
	TargetKeyID string        `json:"targetKeyId"`
	Changes     []ValueChange `json:"changes"`
}

type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Result lists added, removed and modified keys sorted by namespace then
// name. Unchanged keys are only counted.
type Result struct {
	SourceBranchID string        `json:"sourceBranchId"`
	TargetBranchID string        `json:"targetBranchId"`
	Added          []Key         `json:"added"`
	Removed        []Key         `json:"removed"`
	Modified       []ModifiedKey `json:"modified"`
	Summary        Summary       `json:"summary"`
}

type Calculator struct {
	repo Repository
}

func NewCalculator(repo Repository) *Calculator {
	return &Calculator{repo: repo}
}

// ComputeDiff diffs sourceBranchID against targetBranchID. Keys are matched
// by (namespace, name), never by ID.
func (c *Calculator) ComputeDiff(ctx context.Context, sourceBranchID, targetBranchID string) (Result, error) {
	const op = "compute diff"
	if strings.TrimSpace(sourceBranchID) == "" {
		return Result{}, failure.Validation(op, "sourceBranchId", "is required")
	}
	if strings.TrimSpace(targetBranchID) == "" {
		return Result{}, failure.Validation(op, "targetBranchId", "is required")
	}

	for _, branchID := range []string{sourceBranchID, targetBranchID} {
		exists, err := c.repo.BranchExists(ctx, branchID)
		if err != nil {
			return Result{}, err
		}
		if !exists {
			return Result{}, failure.NotFound(op, "branch", branchID)
		}
	}

	sourceKeys, err := c.repo.FindKeysWithTranslations(ctx, sourceBranchID)
	if err != nil {
		return Result{}, err
	}
	targetKeys, err := c.repo.FindKeysWithTranslations(ctx, targetBranchID)
	if err != nil {
		return Result{}, err
	}

	result := Diff(sourceKeys, targetKeys)
	result.SourceBranchID = sourceBranchID
	result.TargetBranchID = targetBranchID
	return result, nil
}

type identity struct {
	namespace string
	name      string
}

func identityOf(key Key) identity {
	return identity{namespace: key.Namespace, name: key.Name}
}

// Diff classifies source keys against target keys without touching storage.
func Diff(source, target []Key) Result {
	result := Result{
		Added:    []Key{},
		Removed:  []Key{},
		Modified: []ModifiedKey{},
	}

	targetByIdentity := make(map[identity]Key, len(target))
	for _, key := range target {
		id := identityOf(key)
		if _, dup := targetByIdentity[id]; dup {
			continue
		}
		targetByIdentity[id] = key
	}

	seen := make(map[identity]struct{}, len(source))
	for _, sourceKey := range source {
		id := identityOf(sourceKey)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		targetKey, ok := targetByIdentity[id]
		if !ok {
			result.Added = append(result.Added, sourceKey)
			continue
		}
		changes := compareTranslations(sourceKey.Translations, targetKey.Translations)
		if len(changes) == 0 {
			result.Summary.Unchanged++
			continue
		}
		result.Modified = append(result.Modified, ModifiedKey{
			Namespace:   sourceKey.Namespace,
			Name:        sourceKey.Name,
			SourceKeyID: sourceKey.ID,
			TargetKeyID: targetKey.ID,
			Changes:     changes,
		})
	}

	removedSeen := make(map[identity]struct{}, len(target))
	for _, targetKey := range target {
		id := identityOf(targetKey)
		if _, ok := seen[id]; ok {
			continue
		}
		if _, dup := removedSeen[id]; dup {
			continue
		}
		removedSeen[id] = struct{}{}
		result.Removed = append(result.Removed, targetKey)
	}

	sortKeys(result.Added)
	sortKeys(result.Removed)
	sort.Slice(result.Modified, func(i, j int) bool {
		return lessIdentity(result.Modified[i].Namespace, result.Modified[i].Name, result.Modified[j].Namespace, result.Modified[j].Name)
	})

	result.Summary.Added = len(result.Added)
	result.Summary.Removed = len(result.Removed)
	result.Summary.Modified = len(result.Modified)
	return result
}

func compareTranslations(source, target map[string]string) []ValueChange {
	languages := make([]string, 0, len(source)+len(target))
	for lang := range source {
		languages = append(languages, lang)
	}
	for lang := range target {
		if _, ok := source[lang]; !ok {
			languages = append(languages, lang)
		}
	}
	sort.Strings(languages)

	changes := make([]ValueChange, 0)
	for _, lang := range languages {
		newValue, inSource := source[lang]
		oldValue, inTarget := target[lang]
		if inSource == inTarget && newValue == oldValue {
			continue
		}
		change := ValueChange{Language: lang}
		if inTarget {
			change.Old = &oldValue
		}
		if inSource {
			change.New = &newValue
		}
		changes = append(changes, change)
	}
	return changes
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return lessIdentity(keys[i].Namespace, keys[i].Name, keys[j].Namespace, keys[j].Name)
	})
}

func lessIdentity(namespaceA, nameA, namespaceB, nameB string) bool {
	if namespaceA != namespaceB {
		return namespaceA < namespaceB
	}
	return nameA < nameB
}
