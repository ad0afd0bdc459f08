package security

import "testing"

func TestRedactHeadersScrubsSensitiveNamesCaseInsensitively(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer abc123",
		"Cookie":        "session=xyz",
		"Content-Type":  "application/json",
	}
	out := RedactHeaders(in)

	if out["Authorization"] != redactedPlaceholder {
		t.Fatalf("expected Authorization redacted, got %q", out["Authorization"])
	}
	if out["Cookie"] != redactedPlaceholder {
		t.Fatalf("expected Cookie redacted, got %q", out["Cookie"])
	}
	if out["Content-Type"] != "application/json" {
		t.Fatalf("expected Content-Type untouched, got %q", out["Content-Type"])
	}
}

func TestTruncateRespectsByteBudget(t *testing.T) {
	s := "hello world"
	got := Truncate(s, 5)
	if len(got) > 5 {
		t.Fatalf("expected result within the 5-byte budget, got %q", got)
	}
	if got[:5] != "hello" {
		t.Fatalf("expected prefix preserved, got %q", got)
	}
}

func TestTruncateNoopWithinBudget(t *testing.T) {
	s := "short"
	if got := Truncate(s, 100); got != s {
		t.Fatalf("expected no change within budget, got %q", got)
	}
}

func TestTruncateDoesNotSplitMultibyteRune(t *testing.T) {
	s := "aéb" // 'a', é (2 bytes), 'b' -> total 4 bytes
	got := Truncate(s, 2)
	// Cutting at byte 2 would land inside the 2-byte é; Truncate should
	// back off to a rune boundary (byte 1, after 'a').
	if got[:1] != "a" {
		t.Fatalf("expected truncation to back off to a rune boundary, got %q", got)
	}
}
