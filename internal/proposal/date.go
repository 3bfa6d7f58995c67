package proposal

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical proposal date format.
const DateLayout = "2006-01-02"

// expirationLead is subtracted from a proposal's expiration to estimate
// when it was submitted.
const expirationLead = 7 * 24 * time.Hour

var timestampKeys = []string{"created_at", "createdAt", "final_queued_at", "submission_time", "start_time", "timestamp"}

// Date returns the proposal's effective date as YYYY-MM-DD. Explicit
// timestamps win, then expiration minus seven days, then ref.
func (t Tree) Date(ref time.Time) string {
	for _, src := range []Tree{t, t.Body()} {
		if d, ok := timestampDate(src); ok {
			return d
		}
	}
	if meta, ok := t.Map("metadata"); ok {
		if d, ok := parseDate(meta.String("created_at")); ok {
			return d
		}
	}
	for _, src := range []Tree{t, t.Body()} {
		if d, ok := expirationDate(src); ok {
			return d
		}
	}
	return ref.UTC().Format(DateLayout)
}

func timestampDate(t Tree) (string, bool) {
	for _, k := range timestampKeys {
		if d, ok := parseDate(t.String(k)); ok {
			return d, true
		}
	}
	return "", false
}

func expirationDate(t Tree) (string, bool) {
	exp, ok := t.Map("expiration")
	if !ok {
		return "", false
	}
	ns, err := strconv.ParseInt(exp.String("at_time"), 10, 64)
	if err != nil || ns <= 0 {
		return "", false
	}
	return time.Unix(0, ns).UTC().Add(-expirationLead).Format(DateLayout), true
}

func parseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC().Format(DateLayout), true
	}
	if len(s) >= len(DateLayout) {
		if d, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return d.Format(DateLayout), true
		}
	}
	return "", false
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, bool) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
