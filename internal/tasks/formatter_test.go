package tasks

import "testing"

func TestFormat_Say(t *testing.T) {
	got := NewFormatter().Format([]string{"[SAY] hello"})
	want := "[INSTRUCTIONS-FOR-NEXT-RESPONSE]\n" +
		"In the style of {char_name}{verb}, spoken like a genuine dialogue , say: hello\n" +
		"[/INSTRUCTIONS-FOR-NEXT-RESPONSE]"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormat_Empty(t *testing.T) {
	f := NewFormatter()
	if got := f.Format(nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := f.Format([]string{"", "  "}); got != "" {
		t.Fatalf("expected blank tokens to be skipped, got %q", got)
	}
}

func TestFormat_NestedTags(t *testing.T) {
	got := NewFormatter().Format([]string{Token(TagInform, "the tests pass")})
	want := "[INSTRUCTIONS-FOR-NEXT-RESPONSE]\n" +
		"In the style of {char_name}{verb}, spoken like a genuine dialogue  very briefly inform the user in no more than Three sentences the tests pass\n" +
		"[/INSTRUCTIONS-FOR-NEXT-RESPONSE]"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormat_OnlyLeadingSeparatorIsAbsorbed(t *testing.T) {
	got := NewFormatter().Format([]string{"[WOFA] [Q] ready?"})
	want := "[INSTRUCTIONS-FOR-NEXT-RESPONSE]\n" +
		"Without offering any further assistance, In the style of {char_name}{verb}, spoken like a genuine dialogue  Ask the user the following question:  ready?\n" +
		"[/INSTRUCTIONS-FOR-NEXT-RESPONSE]"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestFormat_SortsTokens(t *testing.T) {
	f := NewFormatter()
	a := f.Format([]string{"[Q] where?", "[WOFA] done"})
	b := f.Format([]string{"[WOFA] done", "[Q] where?"})
	if a != b {
		t.Fatalf("expected order-independent output:\n%q\n%q", a, b)
	}
}

func TestPersona_Apply(t *testing.T) {
	p := Persona{CharName: "Ada", Verb: " who hums"}
	got := p.Apply("In the style of {char_name}{verb}, say: hi")
	if got != "In the style of Ada who hums, say: hi" {
		t.Fatalf("unexpected: %q", got)
	}
}
