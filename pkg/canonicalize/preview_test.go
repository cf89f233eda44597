package canonicalize

import (
	"strings"
	"testing"
)

func TestNormalizePreview_Truncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	p := NormalizePreview([]byte(long), 0)
	if len([]rune(p)) != DefaultPreviewRunes+3 {
		t.Fatalf("unexpected preview length %d", len([]rune(p)))
	}
	if !strings.HasSuffix(p, "...") {
		t.Fatal("expected truncation marker")
	}
}

func TestNormalizePreview_RuneSafe(t *testing.T) {
	// Truncating multi-byte runes must never split them.
	p := NormalizePreview([]byte(strings.Repeat("世", 10)), 5)
	if p != strings.Repeat("世", 5)+"..." {
		t.Fatalf("unexpected preview %q", p)
	}
}

func TestNormalizePreview_NFC(t *testing.T) {
	// Decomposed e + combining acute must normalize to the composed form.
	p := NormalizePreview([]byte("café"), 0)
	if p != "café" {
		t.Fatalf("expected NFC form, got %q", p)
	}
}

func TestNormalizePreview_SingleLine(t *testing.T) {
	p := NormalizePreview([]byte("line1\nline2\tend\x00"), 0)
	if p != "line1 line2 end" {
		t.Fatalf("unexpected preview %q", p)
	}
}

func TestNormalizePreview_Short(t *testing.T) {
	p := NormalizePreview([]byte("ok"), 10)
	if p != "ok" {
		t.Fatalf("unexpected preview %q", p)
	}
}
