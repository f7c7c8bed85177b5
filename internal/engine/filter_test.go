package engine

import "testing"

const jvmBanner = "Picked up JAVA_TOOL_OPTIONS:"

func filterAll(banner string, chunks ...string) string {
	f := newLineFilter(banner)
	var out []byte
	for _, c := range chunks {
		out = append(out, f.Filter([]byte(c))...)
	}
	out = append(out, f.Flush()...)
	return string(out)
}

func TestFilterStripsBannerLine(t *testing.T) {
	got := filterAll(jvmBanner,
		"Picked up JAVA_TOOL_OPTIONS: -Xmx128m\nhello\n")
	if got != "hello\n" {
		t.Errorf("got %q, want %q", got, "hello\n")
	}
}

func TestFilterSplitAcrossChunks(t *testing.T) {
	// The banner arrives split over several reads and must still be dropped.
	got := filterAll(jvmBanner,
		"Picked up JAVA_",
		"TOOL_OPTIONS: -Xmx128m\nworld\n")
	if got != "world\n" {
		t.Errorf("got %q, want %q", got, "world\n")
	}
}

func TestFilterDoesNotHoldPrompts(t *testing.T) {
	// A partial line that cannot be the banner is forwarded immediately so
	// interactive prompts are not delayed.
	f := newLineFilter(jvmBanner)
	got := string(f.Filter([]byte("Enter your name: ")))
	if got != "Enter your name: " {
		t.Errorf("prompt held back: got %q", got)
	}
}

func TestFilterHoldsPossibleBannerStart(t *testing.T) {
	f := newLineFilter(jvmBanner)
	if got := f.Filter([]byte("Picked up JAV")); len(got) != 0 {
		t.Errorf("possible banner prefix forwarded early: %q", got)
	}
	// Turns out to be ordinary output after all.
	got := string(f.Filter([]byte("ELIN\n")))
	if got != "Picked up JAVELIN\n" {
		t.Errorf("got %q, want %q", got, "Picked up JAVELIN\n")
	}
}

func TestFilterFlushDropsUnterminatedBanner(t *testing.T) {
	f := newLineFilter(jvmBanner)
	f.Filter([]byte("Picked up JAVA_TOOL_OPTIONS: -Xmx128m"))
	if got := f.Flush(); len(got) != 0 {
		t.Errorf("unterminated banner survived flush: %q", got)
	}
}

func TestFilterEmptyBannerPassthrough(t *testing.T) {
	got := filterAll("", "raw\npartial")
	if got != "raw\npartial" {
		t.Errorf("got %q, want passthrough", got)
	}
}

func TestFilterInterleavedOutput(t *testing.T) {
	got := filterAll(jvmBanner,
		"before\nPicked up JAVA_TOOL_OPTIONS: x\nafter\n")
	if got != "before\nafter\n" {
		t.Errorf("got %q, want %q", got, "before\nafter\n")
	}
}
