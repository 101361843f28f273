package quality

import (
	"fmt"
	"regexp"
	"strings"
)

// Matches {{name}}, {name}, {0} and printf verbs such as %s, %d, %1$s, %@.
var placeholderPattern = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_.]+\s*\}\}|\{[A-Za-z0-9_.]+\}|%(?:\d+\$)?[sdfi@]`)

func checkPlaceholders(input CheckInput, _ Config) []Issue {
	sourceTokens := extractPlaceholders(input.Source)
	targetTokens := extractPlaceholders(input.Target)
	if len(sourceTokens) == 0 && len(targetTokens) == 0 {
		return nil
	}

	sourceCounts := countTokens(sourceTokens)
	targetCounts := countTokens(targetTokens)

	issues := make([]Issue, 0, 2)
	if missing := tokenDifference(sourceTokens, sourceCounts, targetCounts); len(missing) > 0 {
		issues = append(issues, Issue{
			Type:     IssuePlaceholderMissing,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Translation is missing placeholders: %s", strings.Join(missing, ", ")),
			Tokens:   missing,
		})
	}
	if extra := tokenDifference(targetTokens, targetCounts, sourceCounts); len(extra) > 0 {
		issues = append(issues, Issue{
			Type:     IssuePlaceholderExtra,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Translation has placeholders not present in source: %s", strings.Join(extra, ", ")),
			Tokens:   extra,
		})
	}
	return issues
}

func extractPlaceholders(text string) []string {
	matches := placeholderPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, match := range matches {
		tokens = append(tokens, normalizePlaceholder(match))
	}
	return tokens
}

// normalizePlaceholder folds "{{ name }}" and "{{name}}" into one token.
func normalizePlaceholder(token string) string {
	if strings.HasPrefix(token, "{{") {
		return "{{" + strings.TrimSpace(token[2:len(token)-2]) + "}}"
	}
	return token
}

func countTokens(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return counts
}

// tokenDifference lists, in order of first appearance, tokens that occur more
// often in have than in other.
func tokenDifference(ordered []string, have, other map[string]int) []string {
	seen := make(map[string]struct{}, len(ordered))
	result := make([]string, 0)
	for _, token := range ordered {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		if have[token] > other[token] {
			result = append(result, token)
		}
	}
	return result
}
