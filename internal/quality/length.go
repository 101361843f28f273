package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func checkLength(input CheckInput, cfg Config) []Issue {
	sourceLen := utf8.RuneCountInString(strings.TrimSpace(input.Source))
	targetLen := utf8.RuneCountInString(strings.TrimSpace(input.Target))
	if sourceLen < cfg.MinSourceLength || targetLen == 0 {
		return nil
	}

	ratio := float64(targetLen) / float64(sourceLen)
	direction := "longer"
	if targetLen < sourceLen {
		ratio = float64(sourceLen) / float64(targetLen)
		direction = "shorter"
	}

	switch {
	case ratio >= cfg.LengthErrorRatio:
		return []Issue{{
			Type:     IssueLengthError,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Translation is %.1fx %s than source (limit %.1fx)", ratio, direction, cfg.LengthErrorRatio),
		}}
	case ratio >= cfg.LengthWarnRatio:
		return []Issue{{
			Type:     IssueLengthWarning,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Translation is %.1fx %s than source (warning at %.1fx)", ratio, direction, cfg.LengthWarnRatio),
		}}
	default:
		return nil
	}
}
