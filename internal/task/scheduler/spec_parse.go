package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Wall-clock layouts accepted after "at:" besides RFC 3339. They are read in
// the scheduler's location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseWhen resolves a schedule string to an absolute due time.
//
// Supported forms:
//   - "at:<time>": RFC 3339, or "2006-01-02 15:04[:05]" in loc
//   - "in:<offset>": Go duration ("90s", "2h30m") or HH:MM ("00:50")
//   - "cron:<expr>": next occurrence of a cron expression
//
// Without a prefix: whitespace or a leading '@' means cron, HH:MM and Go
// durations are offsets from now, and an RFC 3339 timestamp is absolute.
func ParseWhen(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "at:"):
		return parseAt(strings.TrimSpace(s[len("at:"):]), loc)
	case strings.HasPrefix(low, "in:"):
		d, err := parseOffset(strings.TrimSpace(s[len("in:"):]))
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return time.Time{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return nextCron(expr, now, loc)
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return nextCron(s, now, loc)
	}
	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("offset must be >= 0")
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf(
		"invalid schedule %q (use 'at:2026-01-02T15:04:05Z', 'in:90s', HH:MM like '00:50', or cron like '*/5 * * * *')",
		raw,
	)
}

func nextCron(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron %q never fires", expr)
	}
	return next, nil
}

func parseAt(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("time required after 'at:'")
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339 or '2006-01-02 15:04:05')", v)
}

func parseOffset(v string) (time.Duration, error) {
	if v == "" {
		return 0, fmt.Errorf("offset required")
	}
	if reHHMM.MatchString(v) {
		return parseHHMM(v)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("offset must be >= 0")
	}
	return d, nil
}

// parseHHMM reads hours (up to 999) and minutes (0..59).
func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
