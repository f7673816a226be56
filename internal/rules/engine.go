package rules

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// AlertToData flattens an Alert into the nested map the condition language
// addresses by dot path.
func AlertToData(a model.Alert) map[string]any {
	labels := make(map[string]any, len(a.Labels))
	for k, v := range a.Labels {
		labels[k] = v
	}
	annotations := make(map[string]any, len(a.Annotations))
	for k, v := range a.Annotations {
		annotations[k] = v
	}
	return map[string]any{
		"name":        a.Name,
		"severity":    a.Severity,
		"status":      string(a.Status),
		"occurrences": a.Occurrences,
		"server_id":   a.ServerID,
		"labels":      labels,
		"annotations": annotations,
	}
}

// Match is one rule matched against one alert, carrying the resolved
// action even when no rule fired (Rule.ID == "" and Action == RuleActionManual,
// per the "no match defaults to manual" invariant).
type Match struct {
	Rule   model.AutoAnalyzeRule
	Alert  model.Alert
	Action model.RuleAction
}

// Engine holds the priority-sorted rule set and per-(rule,host) cooldown
// state. Safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	rules     []model.AutoAnalyzeRule
	cooldowns map[string]time.Time
}

func NewEngine() *Engine {
	return &Engine{cooldowns: make(map[string]time.Time)}
}

// LoadRules replaces the active rule set, sorted by Priority ascending —
// lower priority numbers are evaluated first, same as the runbook trigger
// matcher.
func (e *Engine) LoadRules(rules []model.AutoAnalyzeRule) {
	sorted := make([]model.AutoAnalyzeRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = sorted
}

// Match returns the first enabled rule (in priority order) whose severity
// filter and conditions (or json_logic override) match alert, skipping
// rules still in cooldown for this alert's server. Exactly one rule fires
// per alert: the enabled rule with lowest priority whose patterns (and
// optional json_logic) all match wins. When no rule matches, the returned
// Match still carries Action == RuleActionManual, the spec's default, and
// the bool result is false so callers can tell no rule actually fired (for
// cooldown bookkeeping) while still switching on Action uniformly.
func (e *Engine) Match(alert model.Alert) (*Match, bool) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	data := AlertToData(alert)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !severityAllowed(rule.SeverityFilter, alert.Severity) {
			continue
		}
		if e.inCooldown(rule.ID, alert.ServerID) {
			continue
		}
		if !ruleMatches(rule, data) {
			continue
		}
		action := rule.Action
		if action == "" {
			action = model.RuleActionManual
		}
		return &Match{Rule: rule, Alert: alert, Action: action}, true
	}
	return &Match{Alert: alert, Action: model.RuleActionManual}, false
}

// ruleMatches evaluates json_logic when present (it overrides the flat
// condition list entirely), otherwise ANDs every condition.
func ruleMatches(rule model.AutoAnalyzeRule, data map[string]any) bool {
	if rule.JSONLogic != nil {
		return Matches(*rule.JSONLogic, data)
	}
	for _, c := range rule.Conditions {
		if !Matches(c, data) {
			return false
		}
	}
	return true
}

func severityAllowed(filter []string, severity string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if strings.EqualFold(s, severity) {
			return true
		}
	}
	return false
}

// MarkTriggered records that rule fired for server, starting its cooldown.
func (e *Engine) MarkTriggered(ruleID, serverID string, cooldownSeconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldowns[cooldownKey(ruleID, serverID)] = time.Now().Add(time.Duration(cooldownSeconds) * time.Second)
}

func (e *Engine) inCooldown(ruleID, serverID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	until, ok := e.cooldowns[cooldownKey(ruleID, serverID)]
	return ok && time.Now().Before(until)
}

func cooldownKey(ruleID, serverID string) string {
	return ruleID + ":" + serverID
}
