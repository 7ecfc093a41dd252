package main

import (
	"strings"
	"testing"
)

func TestRunUsage(t *testing.T) {
	var out strings.Builder
	if code := run(nil, &out); code != 2 {
		t.Fatalf("no args exit code = %d, want 2", code)
	}
	if !strings.Contains(out.String(), "usage:") {
		t.Fatalf("missing usage text: %q", out.String())
	}

	out.Reset()
	if code := run([]string{"--help"}, &out); code != 0 {
		t.Fatalf("--help exit code = %d, want 0", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out strings.Builder
	if code := run([]string{"ingest"}, &out); code != 2 {
		t.Fatalf("unknown command exit code = %d, want 2", code)
	}
	if !strings.Contains(out.String(), `unknown command "ingest"`) {
		t.Fatalf("missing diagnostic: %q", out.String())
	}
}

func TestGenerateRequiresConfig(t *testing.T) {
	var out strings.Builder
	if code := run([]string{"generate"}, &out); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(out.String(), "-config is required") {
		t.Fatalf("missing diagnostic: %q", out.String())
	}
}

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed("7, 11,42")
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	if len(seed) != 3 || seed[0] != 7 || seed[1] != 11 || seed[2] != 42 {
		t.Fatalf("seed = %v", seed)
	}
	if _, err := parseSeed("7,eleven"); err == nil {
		t.Fatal("expected error for a non-numeric element")
	}
	if _, err := parseSeed("-1"); err == nil {
		t.Fatal("expected error for a negative element")
	}
	if _, err := parseSeed("4294967296"); err == nil {
		t.Fatal("expected error for an element past uint32 range")
	}
}

func TestShortDigest(t *testing.T) {
	if got := shortDigest("abc"); got != "abc" {
		t.Fatalf("short input = %q", got)
	}
	long := strings.Repeat("f", 64)
	if got := shortDigest(long); got != strings.Repeat("f", 12) {
		t.Fatalf("truncated digest = %q", got)
	}
}
