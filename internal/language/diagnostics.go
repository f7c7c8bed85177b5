package language

import (
	"strconv"
	"strings"
)

// Severity of one compiler finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one structured compiler-reported finding. Column defaults
// to 1 when the toolchain omits it.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ParseDiagnostics extracts structured diagnostics from raw toolchain
// output. Lines that do not match the language's pattern yield nothing;
// the caller keeps the raw log verbatim regardless.
func (l *Language) ParseDiagnostics(raw string) []Diagnostic {
	if l.diagRe == nil {
		return nil
	}

	var out []Diagnostic
	for _, m := range l.diagRe.FindAllStringSubmatch(raw, -1) {
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		col := 1
		if m[3] != "" {
			if c, err := strconv.Atoi(m[3]); err == nil {
				col = c
			}
		}
		sev := SeverityError
		if m[4] == "warning" {
			sev = SeverityWarning
		}
		out = append(out, Diagnostic{
			File:     m[1],
			Line:     line,
			Column:   col,
			Severity: sev,
			Message:  strings.TrimSpace(m[5]),
		})
	}
	return out
}

// Clean reports whether no diagnostic has error severity.
func Clean(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return false
		}
	}
	return true
}
