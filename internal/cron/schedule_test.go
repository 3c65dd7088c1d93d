package cron

import (
	"errors"
	"testing"
	"time"
)

func TestParseExpression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/30 * * * *", false},
		{"0 9 * * *", false},
		{"0 9 * * 1-5", false},
		{"0,15,30,45 8-18 1 jan,jul mon", false},
		{"  0   9 *  * *  ", false},
		{"", true},
		{"invalid", true},
		{"60 * * * *", true},
		{"0 25 * * *", true},
		{"* * * *", true},
		{"0 * * * * *", true},
		{"@daily", true},
		{"TZ=UTC 0 9 * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			_, err := ParseExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("error %v does not wrap ErrInvalidSchedule", err)
			}
		})
	}
}

func TestMatches_EveryThirtyMinutes(t *testing.T) {
	t.Parallel()

	sched, err := ParseExpression("*/30 * * * *")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	for m := range 3 * 24 * 60 {
		at := start.Add(time.Duration(m) * time.Minute).Add(17 * time.Second)
		want := at.Minute() == 0 || at.Minute() == 30
		if got := Matches(sched, at); got != want {
			t.Fatalf("Matches(%s) = %v, want %v", at.Format(time.RFC3339), got, want)
		}
	}
}

func TestMatches_EvaluatedInLocation(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}

	sched, err := ParseExpression("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}

	nineBerlin := time.Date(2026, 3, 1, 9, 0, 0, 0, berlin)
	if !Matches(sched, nineBerlin) {
		t.Error("expected match at 09:00 Berlin time")
	}
	if Matches(sched, nineBerlin.UTC()) {
		t.Error("unexpected match at 08:00 UTC")
	}
}

func TestParseDateTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-03-01 09:00",
		"2026-03-01T09:00:00",
		"2026-03-01T09:00",
		" 2026-03-01 09:00:00 ",
	} {
		got, err := ParseDateTime(in, nil)
		if err != nil {
			t.Errorf("ParseDateTime(%q) error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDateTime(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "tomorrow", "2026-13-01 09:00", "01/03/2026 09:00"} {
		if _, err := ParseDateTime(in, time.UTC); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("ParseDateTime(%q) error = %v, want ErrInvalidSchedule", in, err)
		}
	}
}

func FuzzParseExpression(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 * * *")
	f.Add("0 0 1 1 *")
	f.Add("* * * * *")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")
	f.Add("0 25 * * *")

	f.Fuzz(func(t *testing.T, expr string) {
		sched, err := ParseExpression(expr)
		if err != nil {
			return
		}
		// A valid schedule must be usable for matching without panicking.
		_ = Matches(sched, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	})
}
