package quality

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

type checker func(CheckInput, Config) []Issue

// Pipeline order is also the order issues are reported in.
var pipeline = []struct {
	name Check
	run  checker
}{
	{CheckPlaceholders, checkPlaceholders},
	{CheckWhitespace, checkWhitespace},
	{CheckPunctuation, checkPunctuation},
	{CheckLength, checkLength},
}

// RunChecks runs every enabled checker against input. A nil cfg uses
// DefaultConfig. Blank source or target text yields an empty result.
func RunChecks(input CheckInput, cfg *Config) CheckResult {
	result := CheckResult{Issues: []Issue{}}
	if strings.TrimSpace(input.Target) == "" || strings.TrimSpace(input.Source) == "" {
		return result
	}

	effective := DefaultConfig()
	if cfg != nil {
		effective = cfg.withDefaults()
	}

	for _, step := range pipeline {
		if !effective.enabled(step.name) {
			continue
		}
		result.Issues = append(result.Issues, step.run(input, effective)...)
	}

	for i := range result.Issues {
		if override, ok := effective.SeverityOverrides[result.Issues[i].Type]; ok {
			result.Issues[i].Severity = override
		}
	}

	result.HasErrors, result.HasWarnings = severityFlags(result.Issues)
	return result
}

func severityFlags(issues []Issue) (hasErrors, hasWarnings bool) {
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			hasErrors = true
		case SeverityWarning:
			hasWarnings = true
		}
	}
	return hasErrors, hasWarnings
}

// BatchEntry is one translation key with its values keyed by language code.
type BatchEntry struct {
	KeyID        string            `json:"keyId"`
	Namespace    string            `json:"namespace"`
	Name         string            `json:"name"`
	Translations map[string]string `json:"translations"`
}

type BatchResult struct {
	KeyID     string `json:"keyId"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	CheckResult
}

// RunBatchChecks checks every (key, target language) pair against the
// source-language value of the same key. Only pairs with at least one issue
// are returned; entries keep their input order and languages are sorted.
func RunBatchChecks(entries []BatchEntry, sourceLanguage string, cfg *Config) []BatchResult {
	results := make([]BatchResult, 0)
	for _, entry := range entries {
		source, ok := lookupLanguage(entry.Translations, sourceLanguage)
		if !ok {
			continue
		}

		languages := make([]string, 0, len(entry.Translations))
		for lang := range entry.Translations {
			if SameLanguage(lang, sourceLanguage) {
				continue
			}
			languages = append(languages, lang)
		}
		sort.Strings(languages)

		for _, lang := range languages {
			target := entry.Translations[lang]
			if strings.TrimSpace(target) == "" {
				continue
			}
			checked := RunChecks(CheckInput{
				Source:         source,
				Target:         target,
				SourceLanguage: sourceLanguage,
				TargetLanguage: lang,
			}, cfg)
			if len(checked.Issues) == 0 {
				continue
			}
			results = append(results, BatchResult{
				KeyID:       entry.KeyID,
				Namespace:   entry.Namespace,
				Name:        entry.Name,
				Language:    lang,
				CheckResult: checked,
			})
		}
	}
	return results
}

func lookupLanguage(values map[string]string, lang string) (string, bool) {
	if value, ok := values[lang]; ok {
		return value, true
	}
	for code, value := range values {
		if SameLanguage(code, lang) {
			return value, true
		}
	}
	return "", false
}

// SameLanguage reports whether two language codes name the same BCP-47 tag,
// so "en_US" and "en-us" compare equal. Unparseable codes fall back to a
// case-insensitive string comparison.
func SameLanguage(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	tagA, errA := language.Parse(a)
	tagB, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return tagA == tagB
}
