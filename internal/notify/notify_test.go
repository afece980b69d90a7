package notify

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreviewShortContentUnchanged(t *testing.T) {
	for _, content := range []string{"", "hi", strings.Repeat("a", 120)} {
		if got := Preview(content); got != content {
			t.Errorf("Preview(%q) = %q, want unchanged", content, got)
		}
	}
}

func TestPreviewTruncatesLongContent(t *testing.T) {
	got := Preview(strings.Repeat("a", 121))
	want := strings.Repeat("a", 120) + "…"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPreviewCountsRunesNotBytes(t *testing.T) {
	content := strings.Repeat("é", 130)
	got := Preview(content)
	if !strings.HasSuffix(got, "…") {
		t.Fatal("multibyte content not truncated")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "…")); n != 120 {
		t.Fatalf("preview holds %d runes, want 120", n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
}

func TestUserSubject(t *testing.T) {
	if got := UserSubject("user-1"); got != "notify.user.user-1" {
		t.Fatalf("got %q", got)
	}
}
