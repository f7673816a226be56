package safety

import (
	"fmt"
	"strings"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

// BlackoutChecker evaluates whether now falls inside any enabled
// BlackoutWindow scoped to a runbook or server.
type BlackoutChecker struct{}

func NewBlackoutChecker() *BlackoutChecker { return &BlackoutChecker{} }

// Check returns a BlackoutActive error if now falls within any of windows
// that scope to runbookID or serverID (or apply globally, when both scope
// fields are empty). automatic is false for a manually-triggered execution;
// a window whose AppliesTo is auto_only never blocks a manual one.
func (c *BlackoutChecker) Check(windows []model.BlackoutWindow, runbookID, serverID string, now time.Time, automatic bool) error {
	for _, w := range windows {
		if !w.Enabled {
			continue
		}
		if w.ScopeRunbookID != "" && w.ScopeRunbookID != runbookID {
			continue
		}
		if w.ScopeServerID != "" && w.ScopeServerID != serverID {
			continue
		}
		if !automatic && w.AppliesTo == model.BlackoutAppliesToAutoOnly {
			continue
		}
		if len(w.AppliesToRunbookIDs) > 0 && !containsID(w.AppliesToRunbookIDs, runbookID) {
			continue
		}
		active, err := c.active(w, now)
		if err != nil {
			continue // a malformed window never blocks execution
		}
		if active {
			return apierror.New(apierror.BlackoutActive, fmt.Sprintf("blackout window %q is active", w.Name))
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// IsActive reports whether w itself is currently active, with no scope or
// AppliesTo filtering — used for edge-transition reporting, which cares
// about one window's raw state rather than whether it would block a
// particular execution.
func (c *BlackoutChecker) IsActive(w model.BlackoutWindow, now time.Time) (bool, error) {
	return c.active(w, now)
}

func (c *BlackoutChecker) active(w model.BlackoutWindow, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if w.RecurrenceRule == "" {
		if w.StartsAt == nil || w.EndsAt == nil {
			return false, fmt.Errorf("one-off window missing start/end")
		}
		return !now.Before(*w.StartsAt) && now.Before(*w.EndsAt), nil
	}

	start, err := parseRecurrenceStart(w.RecurrenceRule, local)
	if err != nil {
		return false, err
	}
	end := start.Add(time.Duration(w.DurationMinutes) * time.Minute)
	return !local.Before(start) && local.Before(end), nil
}

// parseRecurrenceStart interprets a minimal recurrence rule of the form
// "daily@HH:MM", "weekly:Mon@HH:MM", or "monthly:DD@HH:MM", returning the
// most recent occurrence of that time at or before ref.
func parseRecurrenceStart(rule string, ref time.Time) (time.Time, error) {
	if dayOfMonth, timePart, ok := parseMonthlyRule(rule); ok {
		return monthlyRecurrenceStart(dayOfMonth, timePart, ref)
	}

	var dayPart, timePart string
	if _, err := fmt.Sscanf(rule, "daily@%s", &timePart); err == nil {
		dayPart = ""
	} else if rest, ok := strings.CutPrefix(rule, "weekly:"); ok {
		var found bool
		if dayPart, timePart, found = strings.Cut(rest, "@"); !found {
			return time.Time{}, fmt.Errorf("unrecognized recurrence rule %q", rule)
		}
	} else {
		return time.Time{}, fmt.Errorf("unrecognized recurrence rule %q", rule)
	}

	hh, mm, err := parseHHMM(timePart)
	if err != nil {
		return time.Time{}, err
	}

	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hh, mm, 0, 0, ref.Location())
	if dayPart != "" {
		target := -1
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(d.String()[:3], dayPart) {
				target = int(d)
			}
		}
		if target < 0 {
			return time.Time{}, fmt.Errorf("bad weekday %q", dayPart)
		}
		for int(candidate.Weekday()) != target {
			candidate = candidate.AddDate(0, 0, -1)
		}
	}
	if candidate.After(ref) {
		candidate = candidate.AddDate(0, 0, -1)
		if dayPart != "" {
			candidate = candidate.AddDate(0, 0, -6)
		}
	}
	return candidate, nil
}

func parseMonthlyRule(rule string) (dayOfMonth int, timePart string, ok bool) {
	if _, err := fmt.Sscanf(rule, "monthly:%d@%s", &dayOfMonth, &timePart); err != nil {
		return 0, "", false
	}
	return dayOfMonth, timePart, true
}

// monthlyRecurrenceStart returns the most recent occurrence of dayOfMonth at
// HH:MM at or before ref, clamping to the last day of shorter months.
func monthlyRecurrenceStart(dayOfMonth int, timePart string, ref time.Time) (time.Time, error) {
	hh, mm, err := parseHHMM(timePart)
	if err != nil {
		return time.Time{}, err
	}

	candidate := clampedMonthDate(ref.Year(), ref.Month(), dayOfMonth, hh, mm, ref.Location())
	if candidate.After(ref) {
		prevMonth := candidate.AddDate(0, -1, 0)
		candidate = clampedMonthDate(prevMonth.Year(), prevMonth.Month(), dayOfMonth, hh, mm, ref.Location())
	}
	return candidate, nil
}

func clampedMonthDate(year int, month time.Month, day, hh, mm int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hh, mm, 0, 0, loc)
}

func parseHHMM(s string) (int, int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	return hh, mm, nil
}
