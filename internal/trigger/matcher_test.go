package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

type fakeServerResolver struct {
	byHostname map[string]string
}

func (f *fakeServerResolver) ResolveServerID(ctx context.Context, hostnameOrName string) (string, error) {
	if id, ok := f.byHostname[hostnameOrName]; ok {
		return id, nil
	}
	return "", apierror.New(apierror.NotFound, "no server record for "+hostnameOrName)
}

func TestMatchAlertRespectsOccurrenceAndDurationThresholds(t *testing.T) {
	m := NewMatcher(nil)
	m.LoadTriggers([]model.RunbookTrigger{
		{
			ID:                 "t1",
			Origin:             model.TriggerOriginAlert,
			Enabled:            true,
			MinOccurrences:     3,
			MinDurationSeconds: 60,
		},
	})

	ctx := context.Background()
	recent := model.Alert{Occurrences: 5, FirstSeenAt: time.Now().Add(-10 * time.Second)}
	if _, ok := m.MatchAlert(ctx, recent); ok {
		t.Error("expected no match: alert hasn't been firing long enough")
	}

	old := model.Alert{Occurrences: 1, FirstSeenAt: time.Now().Add(-120 * time.Second)}
	if _, ok := m.MatchAlert(ctx, old); ok {
		t.Error("expected no match: occurrence count too low")
	}

	ready := model.Alert{Occurrences: 5, FirstSeenAt: time.Now().Add(-120 * time.Second)}
	match, ok := m.MatchAlert(ctx, ready)
	if !ok || match.Trigger.ID != "t1" {
		t.Fatalf("expected t1 to match, got %+v ok=%v", match, ok)
	}
}

func TestMatchAlertSkipsDisabledAndWrongOrigin(t *testing.T) {
	m := NewMatcher(nil)
	m.LoadTriggers([]model.RunbookTrigger{
		{ID: "disabled", Origin: model.TriggerOriginAlert, Enabled: false},
		{ID: "schedule-origin", Origin: model.TriggerOriginSchedule, Enabled: true},
	})

	if _, ok := m.MatchAlert(context.Background(), model.Alert{Occurrences: 1, FirstSeenAt: time.Now()}); ok {
		t.Error("expected no trigger to match: one disabled, one wrong origin")
	}
}

func TestMatchAlertCooldown(t *testing.T) {
	m := NewMatcher(nil)
	m.LoadTriggers([]model.RunbookTrigger{
		{ID: "t1", Origin: model.TriggerOriginAlert, Enabled: true},
	})

	ctx := context.Background()
	alert := model.Alert{Occurrences: 1, FirstSeenAt: time.Now()}
	if _, ok := m.MatchAlert(ctx, alert); !ok {
		t.Fatal("expected initial match")
	}

	m.MarkFired("t1", 300)
	if _, ok := m.MatchAlert(ctx, alert); ok {
		t.Error("expected trigger in cooldown to not match")
	}
}

func TestMatchAlertOrdersByPriorityThenCreatedAt(t *testing.T) {
	m := NewMatcher(nil)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	m.LoadTriggers([]model.RunbookTrigger{
		{ID: "same-priority-newer", Origin: model.TriggerOriginAlert, Enabled: true, Priority: 5, CreatedAt: newer},
		{ID: "lower-priority", Origin: model.TriggerOriginAlert, Enabled: true, Priority: 1, CreatedAt: newer},
		{ID: "same-priority-older", Origin: model.TriggerOriginAlert, Enabled: true, Priority: 5, CreatedAt: older},
	})

	alert := model.Alert{Occurrences: 10, FirstSeenAt: time.Now()}
	match, ok := m.MatchAlert(context.Background(), alert)
	if !ok || match.Trigger.ID != "lower-priority" {
		t.Fatalf("expected the lowest-priority trigger to be tried first, got %+v", match)
	}

	m.MarkFired("lower-priority", 300)
	match, ok = m.MatchAlert(context.Background(), alert)
	if !ok || match.Trigger.ID != "same-priority-older" {
		t.Fatalf("expected the older of two equal-priority triggers next, got %+v", match)
	}
}

func TestResolveTargetFromAlertLooksUpServerByHostnameLabel(t *testing.T) {
	m := NewMatcher(&fakeServerResolver{byHostname: map[string]string{"host-42": "srv-1"}})
	trig := model.RunbookTrigger{TargetFromAlert: true, TargetServerID: "fixed-server"}
	alert := model.Alert{Labels: map[string]string{"hostname": "host-42"}}

	got, err := m.resolveTarget(context.Background(), trig, alert)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != "srv-1" {
		t.Errorf("resolveTarget() = %q, want %q", got, "srv-1")
	}
}

func TestResolveTargetFromAlertFailsWhenServerUnknown(t *testing.T) {
	m := NewMatcher(&fakeServerResolver{})
	trig := model.RunbookTrigger{TargetFromAlert: true}
	alert := model.Alert{Labels: map[string]string{"hostname": "unknown-host"}}

	if _, err := m.resolveTarget(context.Background(), trig, alert); err == nil {
		t.Error("expected an error when no server record matches the hostname")
	}
}

func TestResolveTargetUsesFixedServerWhenNotFromAlert(t *testing.T) {
	m := NewMatcher(nil)
	trig := model.RunbookTrigger{TargetFromAlert: false, TargetServerID: "fixed-server"}
	alert := model.Alert{ServerID: "alert-server"}

	got, err := m.resolveTarget(context.Background(), trig, alert)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != "fixed-server" {
		t.Errorf("resolveTarget() = %q, want %q", got, "fixed-server")
	}
}
