package safety

import (
	"testing"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func TestBlackoutCheckOneOffWindow(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)

	windows := []model.BlackoutWindow{
		{ID: "w1", Name: "maintenance", Enabled: true, StartsAt: &starts, EndsAt: &ends},
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err == nil {
		t.Fatal("expected an active one-off blackout window to block")
	} else if apierror.KindOf(err) != apierror.BlackoutActive {
		t.Errorf("KindOf(err) = %v, want BlackoutActive", apierror.KindOf(err))
	}

	outside := now.Add(2 * time.Hour)
	if err := c.Check(windows, "rb-1", "srv-1", outside, true); err != nil {
		t.Errorf("expected no blackout outside the window, got %v", err)
	}
}

func TestBlackoutCheckDisabledWindowNeverBlocks(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)

	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: false, StartsAt: &starts, EndsAt: &ends},
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err != nil {
		t.Errorf("disabled window must never block, got %v", err)
	}
}

func TestBlackoutCheckScopeMatching(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)

	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, ScopeRunbookID: "rb-1", StartsAt: &starts, EndsAt: &ends},
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err == nil {
		t.Fatal("expected a match: runbook scope matches")
	}
	if err := c.Check(windows, "rb-2", "srv-1", now, true); err != nil {
		t.Errorf("expected no match: runbook scope doesn't apply to rb-2, got %v", err)
	}
}

func TestBlackoutCheckDailyRecurrence(t *testing.T) {
	c := NewBlackoutChecker()
	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, Timezone: "UTC", RecurrenceRule: "daily@02:00", DurationMinutes: 60},
	}

	inside := time.Date(2026, 7, 31, 2, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", inside, true); err == nil {
		t.Fatal("expected 02:30 to fall within the 02:00-03:00 daily window")
	}

	outside := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", outside, true); err != nil {
		t.Errorf("expected 10:00 to fall outside the daily window, got %v", err)
	}
}

func TestBlackoutCheckWeeklyRecurrence(t *testing.T) {
	c := NewBlackoutChecker()
	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, Timezone: "UTC", RecurrenceRule: "weekly:Sun@01:00", DurationMinutes: 120},
	}

	// 2026-08-02 is a Sunday.
	sunday := time.Date(2026, 8, 2, 1, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", sunday, true); err == nil {
		t.Fatal("expected Sunday 01:30 to fall within the weekly window")
	}

	monday := time.Date(2026, 8, 3, 1, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", monday, true); err != nil {
		t.Errorf("expected Monday to fall outside a Sunday-only weekly window, got %v", err)
	}
}

func TestBlackoutCheckAutoOnlyIgnoresManualExecutions(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)

	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, AppliesTo: model.BlackoutAppliesToAutoOnly, StartsAt: &starts, EndsAt: &ends},
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err == nil {
		t.Fatal("expected an auto_only window to block an automatic execution")
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, false); err != nil {
		t.Errorf("an auto_only window must never block a manual execution, got %v", err)
	}
}

func TestBlackoutCheckRunbookAllowlist(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)

	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, AppliesToRunbookIDs: []string{"rb-2"}, StartsAt: &starts, EndsAt: &ends},
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err != nil {
		t.Errorf("window scoped to rb-2 must not block rb-1, got %v", err)
	}
	if err := c.Check(windows, "rb-2", "srv-1", now, true); err == nil {
		t.Fatal("expected window scoped to rb-2 to block rb-2")
	}
}

func TestBlackoutCheckMonthlyRecurrence(t *testing.T) {
	c := NewBlackoutChecker()
	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, Timezone: "UTC", RecurrenceRule: "monthly:1@02:00", DurationMinutes: 60},
	}

	inside := time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", inside, true); err == nil {
		t.Fatal("expected the 1st at 02:30 to fall within the monthly window")
	}

	outside := time.Date(2026, 8, 2, 2, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", outside, true); err != nil {
		t.Errorf("expected the 2nd to fall outside a monthly-on-the-1st window, got %v", err)
	}
}

func TestBlackoutCheckMonthlyRecurrenceClampsShortMonths(t *testing.T) {
	c := NewBlackoutChecker()
	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true, Timezone: "UTC", RecurrenceRule: "monthly:31@02:00", DurationMinutes: 60},
	}

	// February has no 31st — the window should clamp to the last day instead.
	inside := time.Date(2026, 2, 28, 2, 30, 0, 0, time.UTC)
	if err := c.Check(windows, "rb-1", "srv-1", inside, true); err == nil {
		t.Fatal("expected day-31 rule to clamp to Feb 28 in a non-leap year")
	}
}

func TestBlackoutCheckMalformedWindowNeverBlocks(t *testing.T) {
	c := NewBlackoutChecker()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	windows := []model.BlackoutWindow{
		{ID: "w1", Enabled: true}, // no recurrence rule and no start/end
	}
	if err := c.Check(windows, "rb-1", "srv-1", now, true); err != nil {
		t.Errorf("a malformed window must never block execution, got %v", err)
	}
}
