package sqlcheck

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Finding describes a suspicious value reported by the heuristic injection
// screen.
type Finding struct {
	Fingerprint string
	Value       string
}

// ScreenInput runs libinjection's heuristics over one free-text value, such
// as a natural-language prompt or a string literal lifted out of a statement.
// A hit is advisory: callers log it for operator review, nothing is rejected
// (the parser allow-list is the security policy).
//
// Returns nil when no pattern is detected.
func ScreenInput(value string) *Finding {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &Finding{Fingerprint: string(fingerprint), Value: value}
}

// ScreenLiterals extracts the single-quoted string literals from a statement
// and screens each one. Whole statements are not screened directly; a bare
// SELECT is itself an injection-shaped string, so only the embedded values
// are interesting.
func ScreenLiterals(sql string) []Finding {
	var findings []Finding
	for _, lit := range stringLiterals(sql) {
		if f := ScreenInput(lit); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// stringLiterals scans out the contents of single-quoted literals. Doubled
// quotes and backslash escapes both continue the literal. The statement has
// already been through the dialect parser, so malformed quoting is not a
// concern here.
func stringLiterals(sql string) []string {
	var literals []string
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\'' {
			continue
		}
		var sb strings.Builder
		i++
		for i < len(runes) {
			if runes[i] == '\\' && i+1 < len(runes) {
				sb.WriteRune(runes[i+1])
				i += 2
				continue
			}
			if runes[i] == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					sb.WriteRune('\'')
					i += 2
					continue
				}
				break
			}
			sb.WriteRune(runes[i])
			i++
		}
		literals = append(literals, sb.String())
	}
	return literals
}
