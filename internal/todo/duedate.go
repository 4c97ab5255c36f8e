package todo

import (
	"fmt"
	"strings"
	"time"
)

// ParseDueDate accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date.
// A plain date means the last second of that day in UTC.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d.Add(24*time.Hour - time.Second).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid due date %q: use RFC 3339 or YYYY-MM-DD", s)
}
