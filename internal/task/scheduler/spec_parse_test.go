package scheduler

import (
	"testing"
	"time"
)

func TestParseWhenVariants(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 3, 10, 12, 7, 30, 0, loc)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "duration", raw: "90s", want: now.Add(90 * time.Second)},
		{name: "prefixed duration", raw: "in:2h30m", want: now.Add(150 * time.Minute)},
		{name: "hhmm", raw: "01:30", want: now.Add(90 * time.Minute)},
		{name: "prefixed hhmm", raw: "in:00:05", want: now.Add(5 * time.Minute)},
		{name: "zero offset", raw: "0s", want: now},
		{name: "rfc3339", raw: "2026-03-11T08:00:00Z", want: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
		{name: "prefixed rfc3339", raw: "at:2026-03-11T08:00:00+07:00", want: time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)},
		{name: "prefixed local", raw: "at:2026-03-11 08:00", want: time.Date(2026, 3, 11, 8, 0, 0, 0, loc)},
		{name: "cron", raw: "*/5 * * * *", want: time.Date(2026, 3, 10, 12, 10, 0, 0, loc)},
		{name: "cron seconds", raw: "cron:0 0 13 * * *", want: time.Date(2026, 3, 10, 13, 0, 0, 0, loc)},
		{name: "descriptor", raw: "@hourly", want: time.Date(2026, 3, 10, 13, 0, 0, 0, loc)},
		{name: "every", raw: "@every 1m", want: now.Add(time.Minute)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWhen(tt.raw, now, loc)
			if err != nil {
				t.Fatalf("ParseWhen(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseWhen(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseWhenInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "in:", "in:-5s", "-5s", "at:yesterday", "cron:", "cron:61 * * * *", "00:75"} {
		if _, err := ParseWhen(raw, time.Now(), time.UTC); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	d, err := parseHHMM("23:15")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if d != 23*time.Hour+15*time.Minute {
		t.Fatalf("unexpected result: %v", d)
	}
}
