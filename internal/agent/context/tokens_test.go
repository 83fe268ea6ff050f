package context

import "testing"

func TestTokenCounter_CountsNonEmptyTextPositively(t *testing.T) {
	tc := GetTokenCounter()
	if n := tc.Count(""); n != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", n)
	}
	if n := tc.Count("the quick brown fox jumps over the lazy dog"); n <= 0 {
		t.Fatalf("expected a positive token count, got %d", n)
	}
}

func TestTokenCounter_LongerTextCostsMoreTokens(t *testing.T) {
	tc := GetTokenCounter()
	short := tc.Count("hello")
	long := tc.Count("hello hello hello hello hello hello hello hello")
	if long <= short {
		t.Fatalf("expected longer text to cost more tokens: short=%d long=%d", short, long)
	}
}
