package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimePlainDate(t *testing.T) {
	got, ok := ParseTime("2024-10-10")
	if !ok {
		t.Fatalf("expected ok")
	}
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDatetime(t *testing.T) {
	got, ok := ParseTime("2024-10-10 14:31:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Hour() != 14 || got.Minute() != 31 {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDefaultWindow(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 45, 12, 0, time.UTC)
	start, end := DefaultWindow(now)
	if !end.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
	if !start.Equal(end.AddDate(0, 0, -365)) {
		t.Fatalf("unexpected start %v", start)
	}
}

func TestDayOf(t *testing.T) {
	got := DayOf(time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC))
	if !got.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %v", got)
	}
}
