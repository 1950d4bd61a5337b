// Package period manages each user's retention period: the date window
// outside of which shared links are not saved.
package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/models"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with no time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// After reports whether d is a later day than o.
func (d Date) After(o Date) bool {
	return d.String() > o.String()
}

// StartIn is 00:00 on d in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Period is a user's retention window. A nil bound leaves that side open.
type Period struct {
	UserID string
	Start  *Date
	End    *Date
}

// IsEmpty reports whether neither bound is set.
func (p Period) IsEmpty() bool { return p.Start == nil && p.End == nil }

// Valid reports whether the bounds are in order. A window with one or no
// bounds is always valid.
func (p Period) Valid() bool {
	return p.Start == nil || p.End == nil || !p.Start.After(*p.End)
}

// FromStored converts the persisted shape. Unparsable bounds are an error.
func FromStored(userID string, sp models.StoredPeriod) (Period, error) {
	p := Period{UserID: userID}
	if sp.StartDate != nil {
		d, err := ParseDate(*sp.StartDate)
		if err != nil {
			return Period{}, fmt.Errorf("stored start date: %w", err)
		}
		p.Start = &d
	}
	if sp.EndDate != nil {
		d, err := ParseDate(*sp.EndDate)
		if err != nil {
			return Period{}, fmt.Errorf("stored end date: %w", err)
		}
		p.End = &d
	}
	return p, nil
}

// Policy decides what happens when a user has no bounds at all.
type Policy string

const (
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
)

// ParsePolicy accepts "allow" or "deny" (case-insensitive). Empty means allow.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAllow:
		return PolicyAllow, nil
	case PolicyDeny:
		return PolicyDeny, nil
	default:
		return "", fmt.Errorf("unknown period policy %q (want allow or deny)", s)
	}
}

// Gate evaluates periods against message times in a fixed time zone.
type Gate struct {
	Loc    *time.Location
	Policy Policy
}

// Allows reports whether a message sent at t falls inside p. The start day
// counts from 00:00 and the end day through its last instant, both in the
// gate's time zone.
func (g Gate) Allows(p Period, t time.Time) bool {
	if p.IsEmpty() {
		return g.Policy != PolicyDeny
	}
	loc := g.Loc
	if loc == nil {
		loc = time.UTC
	}
	if p.Start != nil && t.Before(p.Start.StartIn(loc)) {
		return false
	}
	if p.End != nil && !t.Before(p.End.StartIn(loc).AddDate(0, 0, 1)) {
		return false
	}
	return true
}
