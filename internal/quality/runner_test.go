package quality

import (
	"strings"
	"testing"
)

func issueTypes(issues []Issue) []IssueType {
	out := make([]IssueType, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Type)
	}
	return out
}

func findIssue(issues []Issue, issueType IssueType) (Issue, bool) {
	for _, issue := range issues {
		if issue.Type == issueType {
			return issue, true
		}
	}
	return Issue{}, false
}

func TestRunChecksReportsMissingPlaceholder(t *testing.T) {
	result := RunChecks(CheckInput{Source: "Hello {name}!", Target: "Bonjour!"}, nil)

	issue, ok := findIssue(result.Issues, IssuePlaceholderMissing)
	if !ok {
		t.Fatalf("RunChecks() issues = %v, want %s", issueTypes(result.Issues), IssuePlaceholderMissing)
	}
	if issue.Severity != SeverityError {
		t.Fatalf("placeholder issue severity = %q, want %q", issue.Severity, SeverityError)
	}
	if len(issue.Tokens) != 1 || issue.Tokens[0] != "{name}" {
		t.Fatalf("placeholder issue tokens = %v, want [{name}]", issue.Tokens)
	}
	if !strings.Contains(issue.Message, "{name}") {
		t.Fatalf("placeholder issue message = %q, want it to name {name}", issue.Message)
	}
	if !result.HasErrors {
		t.Fatal("RunChecks() HasErrors = false, want true")
	}
}

func TestRunChecksBlankInputHasNoIssues(t *testing.T) {
	cases := []struct {
		name   string
		source string
		target string
	}{
		{name: "empty target", source: "Hello {name}!", target: ""},
		{name: "whitespace target", source: "Hello {name}!", target: " \t\n"},
		{name: "empty source", source: "", target: "Bonjour {name}  !"},
		{name: "whitespace source", source: "   ", target: "Bonjour"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := RunChecks(CheckInput{Source: tc.source, Target: tc.target}, nil)
			if result.Issues == nil {
				t.Fatal("RunChecks() Issues = nil, want empty slice")
			}
			if len(result.Issues) != 0 || result.HasErrors || result.HasWarnings {
				t.Fatalf("RunChecks() = %+v, want no issues", result)
			}
		})
	}
}

func TestRunChecksSingleChecker(t *testing.T) {
	cases := []struct {
		name     string
		source   string
		target   string
		want     []IssueType
		severity Severity
	}{
		{name: "extra placeholder", source: "Save", target: "Sauver {x}", want: []IssueType{IssuePlaceholderExtra}, severity: SeverityError},
		{name: "reordered printf verbs", source: "%s of %d", target: "%d de %s", want: nil},
		{name: "spaced mustache", source: "{{ count }} items", target: "{{count}} éléments", want: nil},
		{name: "positional verbs", source: "%1$s and %2$s", target: "%2$s et %1$s", want: nil},
		{name: "trailing whitespace", source: "Hello ", target: "Bonjour", want: []IssueType{IssueWhitespaceTrailing}, severity: SeverityWarning},
		{name: "leading whitespace", source: " Hello", target: "Bonjour", want: []IssueType{IssueWhitespaceLeading}, severity: SeverityWarning},
		{name: "double space", source: "Hello world", target: "Bonjour  monde", want: []IssueType{IssueWhitespaceDouble}, severity: SeverityInfo},
		{name: "full width question mark", source: "Are you sure?", target: "Êtes-vous sûr？", want: nil},
		{name: "ellipsis forms", source: "Loading...", target: "Chargement…", want: nil},
		{name: "missing punctuation", source: "Done.", target: "Fini", want: []IssueType{IssuePunctuationMissing}, severity: SeverityWarning},
		{name: "extra punctuation", source: "Done", target: "Fini.", want: []IssueType{IssuePunctuationExtra}, severity: SeverityWarning},
		{name: "mismatched punctuation", source: "Done.", target: "Fini!", want: []IssueType{IssuePunctuationMismatch}, severity: SeverityWarning},
		{name: "length warning longer", source: "abcdefghij", target: strings.Repeat("x", 25), want: []IssueType{IssueLengthWarning}, severity: SeverityWarning},
		{name: "length warning shorter", source: "abcdefghij", target: "xxxxx", want: []IssueType{IssueLengthWarning}, severity: SeverityWarning},
		{name: "length error", source: "abcdefghij", target: strings.Repeat("x", 30), want: []IssueType{IssueLengthError}, severity: SeverityError},
		{name: "short source skips length", source: "OK", target: "D'accord, très bien", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := RunChecks(CheckInput{Source: tc.source, Target: tc.target}, nil)
			got := issueTypes(result.Issues)
			if len(got) != len(tc.want) {
				t.Fatalf("RunChecks(%q, %q) issues = %v, want %v", tc.source, tc.target, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("RunChecks(%q, %q) issues = %v, want %v", tc.source, tc.target, got, tc.want)
				}
			}
			if len(tc.want) == 1 && result.Issues[0].Severity != tc.severity {
				t.Fatalf("issue severity = %q, want %q", result.Issues[0].Severity, tc.severity)
			}
		})
	}
}

func TestRunChecksConfig(t *testing.T) {
	input := CheckInput{Source: "Hello {name}!", Target: "Bonjour!"}

	disabled := RunChecks(input, &Config{Checks: map[Check]bool{CheckPlaceholders: false}})
	if len(disabled.Issues) != 0 {
		t.Fatalf("RunChecks() with placeholders disabled = %v, want none", issueTypes(disabled.Issues))
	}

	downgraded := RunChecks(input, &Config{SeverityOverrides: map[IssueType]Severity{
		IssuePlaceholderMissing: SeverityWarning,
	}})
	if downgraded.HasErrors || !downgraded.HasWarnings {
		t.Fatalf("RunChecks() with override flags = errors:%v warnings:%v, want false/true", downgraded.HasErrors, downgraded.HasWarnings)
	}

	tight := RunChecks(CheckInput{Source: "abcdefghij", Target: strings.Repeat("x", 16)}, &Config{LengthWarnRatio: 1.5})
	if _, ok := findIssue(tight.Issues, IssueLengthWarning); !ok {
		t.Fatalf("RunChecks() with warn ratio 1.5 = %v, want %s", issueTypes(tight.Issues), IssueLengthWarning)
	}
}

func TestRunBatchChecks(t *testing.T) {
	entries := []BatchEntry{
		{
			KeyID: "k1", Namespace: "common", Name: "greeting",
			Translations: map[string]string{
				"en": "Hello {name}!",
				"fr": "Bonjour!",
				"de": "Hallo {name}!",
				"es": "",
			},
		},
		{
			KeyID: "k2", Namespace: "common", Name: "bye",
			Translations: map[string]string{"en": "Bye", "fr": "Salut"},
		},
		{
			KeyID: "k3", Namespace: "common", Name: "orphan",
			Translations: map[string]string{"fr": "Sans source."},
		},
	}

	results := RunBatchChecks(entries, "EN", nil)
	if len(results) != 1 {
		t.Fatalf("RunBatchChecks() len = %d, want 1: %+v", len(results), results)
	}
	got := results[0]
	if got.KeyID != "k1" || got.Language != "fr" {
		t.Fatalf("RunBatchChecks()[0] = %s/%s, want k1/fr", got.KeyID, got.Language)
	}
	if _, ok := findIssue(got.Issues, IssuePlaceholderMissing); !ok {
		t.Fatalf("RunBatchChecks()[0] issues = %v, want %s", issueTypes(got.Issues), IssuePlaceholderMissing)
	}
}

func TestSameLanguage(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"en", "EN", true},
		{"en-US", "en-us", true},
		{"en", "fr", false},
		{"pt-BR", "pt-PT", false},
	}
	for _, tc := range cases {
		if got := SameLanguage(tc.a, tc.b); got != tc.want {
			t.Fatalf("SameLanguage(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
