package branchdiff

import (
	"context"

	"localeforge/api/internal/failure"
	"localeforge/api/internal/quality"
)

type MergeOptions struct {
	// DeleteRemoved deletes target keys that no longer exist in the source.
	DeleteRemoved bool `json:"deleteRemoved"`
	// Languages restricts which translations are copied; empty means all.
	Languages []string `json:"languages,omitempty"`
}

type TranslationUpdate struct {
	KeyID    string `json:"keyId"`
	Language string `json:"language"`
	Value    string `json:"value"`
}

// MergePlan is the set of writes that bring the target branch in line with
// the source. It is applied atomically by the store.
type MergePlan struct {
	CreateKeys      []Key               `json:"createKeys"`
	SetTranslations []TranslationUpdate `json:"setTranslations"`
	DeleteKeyIDs    []string            `json:"deleteKeyIds"`
}

func (p MergePlan) Empty() bool {
	return len(p.CreateKeys) == 0 && len(p.SetTranslations) == 0 && len(p.DeleteKeyIDs) == 0
}

type MergeRepository interface {
	Repository
	ApplyMerge(ctx context.Context, targetBranchID string, plan MergePlan) error
}

type MergeResult struct {
	Diff                Result `json:"diff"`
	KeysCreated         int    `json:"keysCreated"`
	TranslationsUpdated int    `json:"translationsUpdated"`
	KeysDeleted         int    `json:"keysDeleted"`
}

type Merger struct {
	repo       MergeRepository
	calculator *Calculator
}

func NewMerger(repo MergeRepository) *Merger {
	return &Merger{repo: repo, calculator: NewCalculator(repo)}
}

// Merge copies added and modified keys from sourceBranchID into
// targetBranchID. A language the source has no row for is left untouched in
// the target.
func (m *Merger) Merge(ctx context.Context, sourceBranchID, targetBranchID string, opts MergeOptions) (MergeResult, error) {
	if sourceBranchID != "" && sourceBranchID == targetBranchID {
		return MergeResult{}, failure.Validation("merge branches", "targetBranchId", "must differ from source branch")
	}

	diff, err := m.calculator.ComputeDiff(ctx, sourceBranchID, targetBranchID)
	if err != nil {
		return MergeResult{}, err
	}

	plan := BuildMergePlan(diff, opts)
	if !plan.Empty() {
		if err := m.repo.ApplyMerge(ctx, targetBranchID, plan); err != nil {
			return MergeResult{}, err
		}
	}

	return MergeResult{
		Diff:                diff,
		KeysCreated:         len(plan.CreateKeys),
		TranslationsUpdated: len(plan.SetTranslations),
		KeysDeleted:         len(plan.DeleteKeyIDs),
	}, nil
}

func BuildMergePlan(diff Result, opts MergeOptions) MergePlan {
	plan := MergePlan{
		CreateKeys:      []Key{},
		SetTranslations: []TranslationUpdate{},
		DeleteKeyIDs:    []string{},
	}

	for _, added := range diff.Added {
		translations := make(map[string]string, len(added.Translations))
		for lang, value := range added.Translations {
			if opts.includes(lang) {
				translations[lang] = value
			}
		}
		plan.CreateKeys = append(plan.CreateKeys, Key{
			Namespace:    added.Namespace,
			Name:         added.Name,
			Translations: translations,
		})
	}

	for _, modified := range diff.Modified {
		for _, change := range modified.Changes {
			if change.New == nil || !opts.includes(change.Language) {
				continue
			}
			plan.SetTranslations = append(plan.SetTranslations, TranslationUpdate{
				KeyID:    modified.TargetKeyID,
				Language: change.Language,
				Value:    *change.New,
			})
		}
	}

	if opts.DeleteRemoved {
		for _, removed := range diff.Removed {
			plan.DeleteKeyIDs = append(plan.DeleteKeyIDs, removed.ID)
		}
	}
	return plan
}

func (o MergeOptions) includes(lang string) bool {
	if len(o.Languages) == 0 {
		return true
	}
	for _, allowed := range o.Languages {
		if quality.SameLanguage(allowed, lang) {
			return true
		}
	}
	return false
}
