package llmutils

import "testing"

func TestStripThink(t *testing.T) {
	got := StripThink("<think>plan\nsteps</think> Hello")
	if got != "Hello" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("ab", 3); got != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestCodeHint(t *testing.T) {
	if got := CodeHint("shell", "ls -la\necho done"); got != `shell("ls -la")` {
		t.Fatalf("got %q", got)
	}
	if got := CodeHint("", "x"); got != `code("x")` {
		t.Fatalf("got %q", got)
	}
}
