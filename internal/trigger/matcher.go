// Package trigger implements the runbook trigger matcher: the same
// priority-ordered condition evaluation as the rules engine, plus
// occurrence/duration thresholds and cooldown gating before a Runbook may
// fire automatically.
package trigger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/rules"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Match pairs a fired RunbookTrigger with the alert (or schedule tick) that
// satisfied it, and the server it should target.
type Match struct {
	Trigger  model.RunbookTrigger
	ServerID string
}

// ServerResolver looks up the server record a target_from_alert trigger
// should resolve to, by the hostname or name taken from the alert's
// hostname label (or its name label when hostname is absent); a runbook's
// target_alert_label is not consulted. It returns the validated server id,
// never a raw label value.
type ServerResolver interface {
	ResolveServerID(ctx context.Context, hostnameOrName string) (string, error)
}

// Matcher holds every runbook's triggers and the last-fired timestamp used for
// cooldown gating.
type Matcher struct {
	mu       sync.RWMutex
	triggers []model.RunbookTrigger
	lastFired map[string]time.Time
	servers  ServerResolver
}

func NewMatcher(servers ServerResolver) *Matcher {
	return &Matcher{lastFired: make(map[string]time.Time), servers: servers}
}

// LoadTriggers replaces the whole active trigger set, sorted by Priority
// ascending (lower fires first), ties broken by earliest CreatedAt.
func (m *Matcher) LoadTriggers(triggers []model.RunbookTrigger) {
	sorted := make([]model.RunbookTrigger, len(triggers))
	copy(sorted, triggers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = sorted
}

// MatchAlert evaluates all alert-origin triggers against alert, returning
// the first one whose conditions, occurrence count, and duration since
// first-seen are satisfied and which is not in cooldown.
func (m *Matcher) MatchAlert(ctx context.Context, alert model.Alert) (*Match, bool) {
	m.mu.RLock()
	triggers := m.triggers
	m.mu.RUnlock()

	data := rules.AlertToData(alert)
	duration := time.Since(alert.FirstSeenAt)

	for _, t := range triggers {
		if !t.Enabled || t.Origin != model.TriggerOriginAlert {
			continue
		}
		if alert.Occurrences < t.MinOccurrences {
			continue
		}
		if duration < time.Duration(t.MinDurationSeconds)*time.Second {
			continue
		}
		if m.inCooldown(t.ID) {
			continue
		}
		matched := true
		for _, c := range t.Conditions {
			if !rules.Matches(c, data) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		serverID, err := m.resolveTarget(ctx, t, alert)
		if err != nil {
			continue
		}
		return &Match{Trigger: t, ServerID: serverID}, true
	}
	return nil, false
}

// resolveTarget implements target_from_alert: when set, the candidate
// hostname or name comes from the alert itself (hostname label, falling
// back to the name label), then is resolved against the stored server
// records rather than trusted as a raw label value. A hostname/name with
// no matching server record fails the match entirely, returning the
// resolver's error.
func (m *Matcher) resolveTarget(ctx context.Context, t model.RunbookTrigger, alert model.Alert) (string, error) {
	if !t.TargetFromAlert {
		return t.TargetServerID, nil
	}
	candidate := alert.Labels["hostname"]
	if candidate == "" {
		candidate = alert.Labels["name"]
	}
	if candidate == "" {
		return "", apierror.New(apierror.ValidationFailed, "alert carries no hostname or name label to resolve a target server")
	}
	if m.servers == nil {
		return "", apierror.New(apierror.Internal, "no server resolver configured")
	}
	return m.servers.ResolveServerID(ctx, candidate)
}

// MarkFired starts a trigger's cooldown window.
func (m *Matcher) MarkFired(triggerID string, cooldownSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFired[triggerID] = time.Now().Add(time.Duration(cooldownSeconds) * time.Second)
}

func (m *Matcher) inCooldown(triggerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.lastFired[triggerID]
	return ok && time.Now().Before(until)
}
