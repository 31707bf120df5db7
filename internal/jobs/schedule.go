package jobs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
	KindOnce
)

func (k Kind) String() string {
	switch k {
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	case KindOnce:
		return "once"
	default:
		return "unknown"
	}
}

// Schedule is a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 30 6 * * *" (optional seconds), "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - One-shot: "after:30s", "after:00:05"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type Schedule struct {
	Kind Kind
	Cron string
	// Every is the interval, or the delay of a one-shot.
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule classifies raw. Cron expressions are only checked for shape
// here; the manager compiles them.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("%w: schedule required", ErrInvalidSchedule)
	}

	low := strings.ToLower(s)
	for _, p := range []struct {
		prefix string
		kind   Kind
	}{
		{"cron:", KindCron},
		{"interval:", KindInterval},
		{"every:", KindInterval},
		{"after:", KindOnce},
	} {
		if !strings.HasPrefix(low, p.prefix) {
			continue
		}
		v := strings.TrimSpace(s[len(p.prefix):])
		if p.kind == KindCron {
			if v == "" {
				return Schedule{}, fmt.Errorf("%w: cron expression required after 'cron:'", ErrInvalidSchedule)
			}
			return Schedule{Kind: KindCron, Cron: v, Source: "cron"}, nil
		}
		d, src, err := parseInterval(v)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: p.kind, Every: d, Source: src}, nil
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Schedule{Kind: KindCron, Cron: s, Source: "cron"}, nil
	}

	d, src, err := parseInterval(s)
	if err == nil {
		return Schedule{Kind: KindInterval, Every: d, Source: src}, nil
	}
	return Schedule{}, fmt.Errorf(
		"%w: %q (use cron like '*/5 * * * *', HH:MM like '02:30', duration like '55m' or 'after:30s')",
		ErrInvalidSchedule, raw,
	)
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("%w: interval required", ErrInvalidSchedule)
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, "", fmt.Errorf("%w: invalid minutes in %q", ErrInvalidSchedule, v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, "", fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
		}
		return d, "hhmm", nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("%w: invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", ErrInvalidSchedule, v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
	}
	return d, "duration", nil
}
