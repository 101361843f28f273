// Package quality scores translations: rule-based checks over a source/target
// pair, glossary conformance, and aggregation of heuristic and AI signals into
// a single 0-100 score.
package quality

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type IssueType string

const (
	IssuePlaceholderMissing  IssueType = "placeholder_missing"
	IssuePlaceholderExtra    IssueType = "placeholder_extra"
	IssueWhitespaceLeading   IssueType = "whitespace_leading"
	IssueWhitespaceTrailing  IssueType = "whitespace_trailing"
	IssueWhitespaceDouble    IssueType = "whitespace_double"
	IssuePunctuationMissing  IssueType = "punctuation_missing"
	IssuePunctuationExtra    IssueType = "punctuation_extra"
	IssuePunctuationMismatch IssueType = "punctuation_mismatch"
	IssueLengthWarning       IssueType = "length_warning"
	IssueLengthError         IssueType = "length_error"
	IssueGlossaryTermMissing IssueType = "glossary_term_missing"
)

type Issue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Tokens   []string  `json:"tokens,omitempty"`
}

type CheckInput struct {
	Source         string `json:"source"`
	Target         string `json:"target"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type CheckResult struct {
	HasErrors   bool    `json:"hasErrors"`
	HasWarnings bool    `json:"hasWarnings"`
	Issues      []Issue `json:"issues"`
}

// Check names a single checker in the pipeline.
type Check string

const (
	CheckPlaceholders Check = "placeholders"
	CheckWhitespace   Check = "whitespace"
	CheckPunctuation  Check = "punctuation"
	CheckLength       Check = "length"
)

const (
	DefaultLengthWarnRatio  = 2.0
	DefaultLengthErrorRatio = 3.0
	// Ratios on very short strings are noise ("OK" -> "D'accord").
	DefaultMinSourceLength = 10
)

// Config tunes the check pipeline. The zero value runs every check with the
// default thresholds.
type Config struct {
	// Checks toggles individual checkers; a missing entry means enabled.
	Checks            map[Check]bool         `json:"checks,omitempty"`
	LengthWarnRatio   float64                `json:"lengthWarnRatio,omitempty"`
	LengthErrorRatio  float64                `json:"lengthErrorRatio,omitempty"`
	MinSourceLength   int                    `json:"minSourceLength,omitempty"`
	SeverityOverrides map[IssueType]Severity `json:"severityOverrides,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		LengthWarnRatio:  DefaultLengthWarnRatio,
		LengthErrorRatio: DefaultLengthErrorRatio,
		MinSourceLength:  DefaultMinSourceLength,
	}
}

func (c Config) enabled(check Check) bool {
	value, ok := c.Checks[check]
	return !ok || value
}

func (c Config) withDefaults() Config {
	if c.LengthWarnRatio <= 0 {
		c.LengthWarnRatio = DefaultLengthWarnRatio
	}
	if c.LengthErrorRatio <= 0 {
		c.LengthErrorRatio = DefaultLengthErrorRatio
	}
	if c.LengthErrorRatio < c.LengthWarnRatio {
		c.LengthErrorRatio = c.LengthWarnRatio
	}
	if c.MinSourceLength <= 0 {
		c.MinSourceLength = DefaultMinSourceLength
	}
	return c
}
