package util

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	if _, ok := ParseTime(""); ok {
		t.Fatalf("empty string should not parse")
	}
	if got, ok := ParseTime("2026-08-28T10:00:00Z"); !ok || got.Hour() != 10 {
		t.Fatalf("rfc3339 parse failed: %v %v", got, ok)
	}
	if got, ok := ParseTime("1756360800"); !ok || got.Unix() != 1756360800 {
		t.Fatalf("unix parse failed: %v %v", got, ok)
	}
	def := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("garbage", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestClampRange(t *testing.T) {
	to := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	from := to.Add(2 * time.Hour) // inverted

	gotFrom, gotTo := ClampRange(from, to, time.Hour)
	if !gotTo.After(gotFrom) {
		t.Fatalf("range not normalized: %v..%v", gotFrom, gotTo)
	}
	if gotTo.Sub(gotFrom) != time.Hour {
		t.Fatalf("span not capped: %v", gotTo.Sub(gotFrom))
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
