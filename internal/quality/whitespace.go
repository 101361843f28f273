package quality

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func checkWhitespace(input CheckInput, _ Config) []Issue {
	issues := make([]Issue, 0)

	sourceLeading := startsWithSpace(input.Source)
	targetLeading := startsWithSpace(input.Target)
	if sourceLeading != targetLeading {
		issues = append(issues, Issue{
			Type:     IssueWhitespaceLeading,
			Severity: SeverityWarning,
			Message:  whitespaceMessage("Leading", sourceLeading),
		})
	}

	sourceTrailing := endsWithSpace(input.Source)
	targetTrailing := endsWithSpace(input.Target)
	if sourceTrailing != targetTrailing {
		issues = append(issues, Issue{
			Type:     IssueWhitespaceTrailing,
			Severity: SeverityWarning,
			Message:  whitespaceMessage("Trailing", sourceTrailing),
		})
	}

	if strings.Contains(input.Target, "  ") && !strings.Contains(input.Source, "  ") {
		issues = append(issues, Issue{
			Type:     IssueWhitespaceDouble,
			Severity: SeverityInfo,
			Message:  "Translation contains consecutive spaces not present in source",
		})
	}
	return issues
}

func whitespaceMessage(position string, sourceHasIt bool) string {
	if sourceHasIt {
		return position + " whitespace in source is missing from translation"
	}
	return position + " whitespace in translation is not present in source"
}

func startsWithSpace(text string) bool {
	r, size := utf8.DecodeRuneInString(text)
	return size > 0 && unicode.IsSpace(r)
}

func endsWithSpace(text string) bool {
	r, size := utf8.DecodeLastRuneInString(text)
	return size > 0 && unicode.IsSpace(r)
}
