package language

import "testing"

func javaProfile(t *testing.T) *Language {
	t.Helper()
	l := Builtin().Get("java")
	if l == nil {
		t.Fatal("missing builtin java profile")
	}
	return l
}

func TestParseDiagnostics(t *testing.T) {
	l := javaProfile(t)

	raw := "Main.java:12:5: error: ';' expected\n" +
		"Main.java:20: warning: unchecked cast\n" +
		"1 error\n"

	diags := l.ParseDiagnostics(raw)
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(diags))
	}

	d := diags[0]
	if d.File != "Main.java" {
		t.Errorf("file = %q, want Main.java", d.File)
	}
	if d.Line != 12 {
		t.Errorf("line = %d, want 12", d.Line)
	}
	if d.Column != 5 {
		t.Errorf("column = %d, want 5", d.Column)
	}
	if d.Severity != SeverityError {
		t.Errorf("severity = %q, want error", d.Severity)
	}
	if d.Message != "';' expected" {
		t.Errorf("message = %q, want %q", d.Message, "';' expected")
	}

	// Column defaults to 1 when the toolchain omits it.
	if diags[1].Column != 1 {
		t.Errorf("column = %d, want 1 when omitted", diags[1].Column)
	}
	if diags[1].Severity != SeverityWarning {
		t.Errorf("severity = %q, want warning", diags[1].Severity)
	}
}

func TestParseDiagnosticsUnparseable(t *testing.T) {
	l := javaProfile(t)

	diags := l.ParseDiagnostics("something exploded\nno structure here\n")
	if len(diags) != 0 {
		t.Errorf("got %d diagnostics from unstructured output, want 0", len(diags))
	}
}

func TestParseDiagnosticsNoPattern(t *testing.T) {
	l := &Language{Name: "plain", RunCmd: "x"}
	if diags := l.ParseDiagnostics("anything:1: error: x"); diags != nil {
		t.Errorf("language without a pattern should parse nothing, got %v", diags)
	}
}

func TestClean(t *testing.T) {
	if !Clean(nil) {
		t.Error("no diagnostics should be clean")
	}
	if !Clean([]Diagnostic{{Severity: SeverityWarning}}) {
		t.Error("warnings alone should be clean")
	}
	if Clean([]Diagnostic{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Error("any error severity should not be clean")
	}
}
