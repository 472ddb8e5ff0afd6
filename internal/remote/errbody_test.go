package remote

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDescribeBodyTruncatesOnRuneBoundary(t *testing.T) {
	// Each "é" is two bytes, so the limit lands inside a rune.
	body := "x" + strings.Repeat("é", maxErrorBody)

	got := describeBody(http.Header{}, []byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body is not valid UTF-8: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got suffix %q", got[len(got)-8:])
	}
	if len(got) > maxErrorBody+len("...") {
		t.Errorf("expected at most %d bytes, got %d", maxErrorBody+3, len(got))
	}
}

func TestDescribeBodyShortBodyUnchanged(t *testing.T) {
	if got := describeBody(http.Header{}, []byte("  bad   gateway ")); got != "bad gateway" {
		t.Errorf("unexpected description %q", got)
	}
}
