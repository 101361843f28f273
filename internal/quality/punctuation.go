package quality

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type punctuationClass string

const (
	punctNone      punctuationClass = ""
	punctPeriod    punctuationClass = "period"
	punctExclaim   punctuationClass = "exclamation"
	punctQuestion  punctuationClass = "question"
	punctColon     punctuationClass = "colon"
	punctSemicolon punctuationClass = "semicolon"
	punctEllipsis  punctuationClass = "ellipsis"
)

// Full-width and script-specific forms map to the same class as their ASCII counterparts.
var terminalPunctuation = map[rune]punctuationClass{
	'.': punctPeriod,
	'。': punctPeriod,
	'．': punctPeriod,
	'।': punctPeriod,
	'!': punctExclaim,
	'！': punctExclaim,
	'?': punctQuestion,
	'？': punctQuestion,
	'؟': punctQuestion,
	':': punctColon,
	'：': punctColon,
	';': punctSemicolon,
	'；': punctSemicolon,
	'…': punctEllipsis,
}

func checkPunctuation(input CheckInput, _ Config) []Issue {
	sourceClass, sourceMark := terminalClass(input.Source)
	targetClass, targetMark := terminalClass(input.Target)

	switch {
	case sourceClass == targetClass:
		return nil
	case targetClass == punctNone:
		return []Issue{{
			Type:     IssuePunctuationMissing,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Source ends with %q but translation has no terminal punctuation", sourceMark),
			Tokens:   []string{sourceMark},
		}}
	case sourceClass == punctNone:
		return []Issue{{
			Type:     IssuePunctuationExtra,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Translation ends with %q but source has no terminal punctuation", targetMark),
			Tokens:   []string{targetMark},
		}}
	default:
		return []Issue{{
			Type:     IssuePunctuationMismatch,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Terminal punctuation differs: source %q, translation %q", sourceMark, targetMark),
			Tokens:   []string{sourceMark, targetMark},
		}}
	}
}

func terminalClass(text string) (punctuationClass, string) {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if strings.HasSuffix(trimmed, "...") {
		return punctEllipsis, "..."
	}
	r, size := utf8.DecodeLastRuneInString(trimmed)
	if size == 0 {
		return punctNone, ""
	}
	class, ok := terminalPunctuation[r]
	if !ok {
		return punctNone, ""
	}
	return class, string(r)
}
