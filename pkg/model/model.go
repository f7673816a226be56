// Package model defines the data entities shared across the remediation
// control plane. Entities reference each other by id only — never by pointer
// — so any entity can be loaded, logged, or serialized in isolation.
package model

import "time"

// AlertStatus tracks an alert from arrival to resolution.
type AlertStatus string

const (
	AlertStatusFiring    AlertStatus = "firing"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusActioned  AlertStatus = "actioned"
	AlertStatusSuppressed AlertStatus = "suppressed"
)

// Alert is a deduplicated incident derived from one or more Alertmanager
// notifications sharing the same fingerprint.
type Alert struct {
	ID            string            `json:"id" db:"id"`
	Fingerprint   string            `json:"fingerprint" db:"fingerprint"`
	Name          string            `json:"name" db:"name"`
	Severity      string            `json:"severity" db:"severity"`
	Status        AlertStatus       `json:"status" db:"status"`
	Labels        map[string]string `json:"labels" db:"labels"`
	Annotations   map[string]string `json:"annotations" db:"annotations"`
	ServerID      string            `json:"server_id,omitempty" db:"server_id"`
	Occurrences   int               `json:"occurrences" db:"occurrences"`
	FirstSeenAt   time.Time         `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt    time.Time         `json:"last_seen_at" db:"last_seen_at"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
}

// ConditionOperator enumerates the comparison operators the rules and
// trigger matcher understand.
type ConditionOperator string

const (
	OpEq      ConditionOperator = "eq"
	OpNe      ConditionOperator = "ne"
	OpContains ConditionOperator = "contains"
	OpRegex   ConditionOperator = "regex"
	OpGt      ConditionOperator = "gt"
	OpLt      ConditionOperator = "lt"
	OpIn      ConditionOperator = "in"
	OpNotIn   ConditionOperator = "not_in"
	OpExists  ConditionOperator = "exists"
)

// Condition is one leaf (or boolean node) in a rule's match tree.
type Condition struct {
	Field    string            `json:"field,omitempty" yaml:"field,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    interface{}       `json:"value,omitempty" yaml:"value,omitempty"`

	// Boolean combinators, used when decoding a json_logic tree instead of a
	// flat field/operator/value leaf.
	And []Condition `json:"and,omitempty" yaml:"and,omitempty"`
	Or  []Condition `json:"or,omitempty" yaml:"or,omitempty"`
	Not *Condition  `json:"not,omitempty" yaml:"not,omitempty"`
}

// RuleAction is the decision an AutoAnalyzeRule attaches to a matching
// alert: analyze it, leave it for a human, or ignore it outright.
type RuleAction string

const (
	RuleActionAutoAnalyze RuleAction = "auto_analyze"
	RuleActionManual      RuleAction = "manual"
	RuleActionIgnore      RuleAction = "ignore"
)

// AutoAnalyzeRule decides, for a matching alert, whether a runbook should be
// triggered automatically or only analyzed.
type AutoAnalyzeRule struct {
	ID              string      `json:"id" yaml:"id" db:"id"`
	Name            string      `json:"name" yaml:"name" db:"name"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
	Priority        int         `json:"priority" yaml:"priority" db:"priority"`
	Enabled         bool        `json:"enabled" yaml:"enabled" db:"enabled"`
	SeverityFilter  []string    `json:"severity_filter,omitempty" yaml:"severity_filter,omitempty" db:"severity_filter"`
	Conditions      []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" db:"conditions"`
	JSONLogic       *Condition  `json:"json_logic,omitempty" yaml:"json_logic,omitempty" db:"json_logic"`
	Action          RuleAction  `json:"action" yaml:"action" db:"action"`
	RunbookID       string      `json:"runbook_id,omitempty" yaml:"runbook_id,omitempty" db:"runbook_id"`
	AutoTrigger     bool        `json:"auto_trigger" yaml:"auto_trigger" db:"auto_trigger"`
	CooldownSeconds int         `json:"cooldown_seconds" yaml:"cooldown_seconds" db:"cooldown_seconds"`
}

// Runbook is a named, versioned remediation procedure: an ordered list of
// RunbookSteps plus the triggers that may fire it.
type Runbook struct {
	ID                    string    `json:"id" yaml:"id" db:"id"`
	Name                  string    `json:"name" yaml:"name" db:"name"`
	Description           string    `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
	Version               int       `json:"version" yaml:"version" db:"version"`
	Enabled               bool      `json:"enabled" yaml:"enabled" db:"enabled"`
	RequiresApproval      bool      `json:"requires_approval" yaml:"requires_approval" db:"requires_approval"`
	MaxConcurrentExecutions int     `json:"max_concurrent_executions" yaml:"max_concurrent_executions" db:"max_concurrent_executions"`
	RateLimitCount        int       `json:"rate_limit_count" yaml:"rate_limit_count" db:"rate_limit_count"`
	RateLimitWindowSeconds int      `json:"rate_limit_window_seconds" yaml:"rate_limit_window_seconds" db:"rate_limit_window_seconds"`
	FailureThreshold       int       `json:"failure_threshold" yaml:"failure_threshold" db:"failure_threshold"`
	FailureWindowMinutes   int       `json:"failure_window_minutes" yaml:"failure_window_minutes" db:"failure_window_minutes"`
	OpenDurationMinutes    int       `json:"open_duration_minutes" yaml:"open_duration_minutes" db:"open_duration_minutes"`
	CooldownMinutes        int       `json:"cooldown_minutes" yaml:"cooldown_minutes" db:"cooldown_minutes"`
	ApprovalRoles          []string  `json:"approval_roles,omitempty" yaml:"approval_roles,omitempty" db:"approval_roles"`
	TargetFromAlert        bool      `json:"target_from_alert" yaml:"target_from_alert" db:"target_from_alert"`
	TargetAlertLabel       string    `json:"target_alert_label" yaml:"target_alert_label" db:"target_alert_label"`
	DefaultServerID        string    `json:"default_server_id,omitempty" yaml:"default_server_id,omitempty" db:"default_server_id"`
	CreatedAt             time.Time `json:"created_at" yaml:"-" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" yaml:"-" db:"updated_at"`
}

// StepType distinguishes how a RunbookStep is executed.
type StepType string

const (
	StepTypeSSH     StepType = "ssh"
	StepTypeWinRM   StepType = "winrm"
	StepTypeHTTPAPI StepType = "http_api"
)

// RunbookStep is one action within a Runbook, executed in StepOrder.
type RunbookStep struct {
	ID                  string            `json:"id" yaml:"id" db:"id"`
	RunbookID           string            `json:"runbook_id" yaml:"-" db:"runbook_id"`
	StepOrder           int               `json:"step_order" yaml:"step_order" db:"step_order"`
	Name                string            `json:"name" yaml:"name" db:"name"`
	Type                StepType          `json:"type" yaml:"type" db:"type"`
	CommandLinux        string            `json:"command_linux,omitempty" yaml:"command_linux,omitempty" db:"command_linux"`
	CommandWindows      string            `json:"command_windows,omitempty" yaml:"command_windows,omitempty" db:"command_windows"`
	APIEndpoint         string            `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty" db:"api_endpoint"`
	APIMethod           string            `json:"api_method,omitempty" yaml:"api_method,omitempty" db:"api_method"`
	APIBodyType         string            `json:"api_body_type,omitempty" yaml:"api_body_type,omitempty" db:"api_body_type"`
	APIBody             string            `json:"api_body,omitempty" yaml:"api_body,omitempty" db:"api_body"`
	APIHeaders          map[string]string `json:"api_headers,omitempty" yaml:"api_headers,omitempty" db:"api_headers"`
	APIRetryOnStatus    []int             `json:"api_retry_on_status_codes,omitempty" yaml:"api_retry_on_status_codes,omitempty" db:"api_retry_on_status_codes"`
	RequiresElevation   bool              `json:"requires_elevation" yaml:"requires_elevation" db:"requires_elevation"`
	TimeoutSeconds      int               `json:"timeout_seconds" yaml:"timeout_seconds" db:"timeout_seconds"`
	Retries             int               `json:"retries" yaml:"retries" db:"retries"`
	RetryDelaySeconds    int              `json:"retry_delay_seconds" yaml:"retry_delay_seconds" db:"retry_delay_seconds"`
	ContinueOnFailure   bool              `json:"continue_on_failure" yaml:"continue_on_failure" db:"continue_on_failure"`
	RollbackCommandLinux string           `json:"rollback_command_linux,omitempty" yaml:"rollback_command_linux,omitempty" db:"rollback_command_linux"`
	RollbackCommandWindows string         `json:"rollback_command_windows,omitempty" yaml:"rollback_command_windows,omitempty" db:"rollback_command_windows"`
	ExpectedExitCode    int               `json:"expected_exit_code" yaml:"expected_exit_code" db:"expected_exit_code"`
	ExpectedOutputPattern string          `json:"expected_output_pattern,omitempty" yaml:"expected_output_pattern,omitempty" db:"expected_output_pattern"`
	OutputVariable      string            `json:"output_variable,omitempty" yaml:"output_variable,omitempty" db:"output_variable"`
	OutputExtractPattern string           `json:"output_extract_pattern,omitempty" yaml:"output_extract_pattern,omitempty" db:"output_extract_pattern"`
}

// TriggerOrigin is an enum of events that can cause a trigger to be
// evaluated.
type TriggerOrigin string

const (
	TriggerOriginAlert    TriggerOrigin = "alert"
	TriggerOriginSchedule TriggerOrigin = "schedule"
	TriggerOriginManual   TriggerOrigin = "manual"
)

// RunbookTrigger binds a Runbook to the conditions under which it should run
// automatically.
type RunbookTrigger struct {
	ID                 string        `json:"id" yaml:"id" db:"id"`
	RunbookID          string        `json:"runbook_id" yaml:"-" db:"runbook_id"`
	Origin             TriggerOrigin `json:"origin" yaml:"origin" db:"origin"`
	Conditions         []Condition   `json:"conditions,omitempty" yaml:"conditions,omitempty" db:"conditions"`
	MinOccurrences     int           `json:"min_occurrences" yaml:"min_occurrences" db:"min_occurrences"`
	MinDurationSeconds int           `json:"min_duration_seconds" yaml:"min_duration_seconds" db:"min_duration_seconds"`
	CooldownSeconds    int           `json:"cooldown_seconds" yaml:"cooldown_seconds" db:"cooldown_seconds"`
	CronExpression     string        `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty" db:"cron_expression"`
	TargetFromAlert    bool          `json:"target_from_alert" yaml:"target_from_alert" db:"target_from_alert"`
	TargetServerID     string        `json:"target_server_id,omitempty" yaml:"target_server_id,omitempty" db:"target_server_id"`
	Enabled            bool          `json:"enabled" yaml:"enabled" db:"enabled"`
	Priority           int           `json:"priority" yaml:"priority" db:"priority"`
	CreatedAt          time.Time     `json:"created_at" yaml:"-" db:"created_at"`
}

// ServerCredential stores how to reach and authenticate to a managed host.
// SecretMaterialEncrypted is ciphertext at rest and in every in-memory copy
// except the moment a driver decrypts it to open a session.
type ServerCredential struct {
	ID                       string    `json:"id" db:"id"`
	ServerID                 string    `json:"server_id" db:"server_id"`
	Hostname                 string    `json:"hostname" db:"hostname"`
	Name                     string    `json:"name,omitempty" db:"name"`
	Port                     int       `json:"port" db:"port"`
	Username                 string    `json:"username" db:"username"`
	DriverType               StepType  `json:"driver_type" db:"driver_type"`
	SecretMaterialEncrypted  []byte    `json:"-" db:"secret_material_encrypted"`
	UseSSL                   bool      `json:"use_ssl" db:"use_ssl"`
	APIBaseURL               string    `json:"api_base_url,omitempty" db:"api_base_url"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}

// ExecutionStatus is the state of a RunbookExecution.
type ExecutionStatus string

const (
	ExecutionPending         ExecutionStatus = "pending"
	ExecutionPendingApproval ExecutionStatus = "pending_approval"
	ExecutionRunning         ExecutionStatus = "running"
	ExecutionSucceeded       ExecutionStatus = "succeeded"
	ExecutionFailed          ExecutionStatus = "failed"
	ExecutionRolledBack      ExecutionStatus = "rolled_back"
	ExecutionCancelled       ExecutionStatus = "cancelled"
	ExecutionTimedOut        ExecutionStatus = "timeout"
)

// RunbookExecution is one run of a Runbook against a server, triggered by an
// alert, a schedule, or a manual API call.
type RunbookExecution struct {
	ID            string          `json:"id" db:"id"`
	RunbookID     string          `json:"runbook_id" db:"runbook_id"`
	AlertID       string          `json:"alert_id,omitempty" db:"alert_id"`
	ServerID      string          `json:"server_id" db:"server_id"`
	Status        ExecutionStatus `json:"status" db:"status"`
	Origin        TriggerOrigin   `json:"origin" db:"origin"`
	TriggeredBy   string          `json:"triggered_by,omitempty" db:"triggered_by"`
	ApprovedBy    string          `json:"approved_by,omitempty" db:"approved_by"`
	Vars          map[string]any  `json:"vars,omitempty" db:"vars"`
	IsDryRun      bool            `json:"is_dry_run" db:"is_dry_run"`
	BypassCooldown bool           `json:"bypass_cooldown,omitempty" db:"bypass_cooldown"`
	BypassBlackout bool           `json:"bypass_blackout,omitempty" db:"bypass_blackout"`
	StartedAt     *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	Error         string          `json:"error,omitempty" db:"error"`
}

// StepExecution is one RunbookStep's run within a RunbookExecution.
type StepExecution struct {
	ID            string          `json:"id" db:"id"`
	ExecutionID   string          `json:"execution_id" db:"execution_id"`
	StepID        string          `json:"step_id" db:"step_id"`
	StepOrder     int             `json:"step_order" db:"step_order"`
	Status        ExecutionStatus `json:"status" db:"status"`
	Output        string          `json:"output,omitempty" db:"output"`
	ExitCode      int             `json:"exit_code" db:"exit_code"`
	Attempt       int             `json:"attempt" db:"attempt"`
	RolledBack    bool            `json:"rolled_back" db:"rolled_back"`
	StartedAt     *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// BreakerState mirrors gobreaker's three states for persistence/reporting.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker is the persisted state of one (scope, scope_id) breaker.
type CircuitBreaker struct {
	Scope           string       `json:"scope" db:"scope"`
	ScopeID         string       `json:"scope_id" db:"scope_id"`
	State           BreakerState `json:"state" db:"state"`
	Failures        int          `json:"failures" db:"failures"`
	ManuallyOpened  bool         `json:"manually_opened" db:"manually_opened"`
	OpenedAt        *time.Time   `json:"opened_at,omitempty" db:"opened_at"`
	LastFailureAt   *time.Time   `json:"last_failure_at,omitempty" db:"last_failure_at"`
}

// ExecutionRateCounter tracks execution counts in a trailing window for one
// (runbook, server) pair.
type ExecutionRateCounter struct {
	RunbookID   string    `json:"runbook_id" db:"runbook_id"`
	ServerID    string    `json:"server_id" db:"server_id"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	Count       int       `json:"count" db:"count"`
}

// BlackoutAppliesTo narrows a BlackoutWindow to automatic executions only,
// or to every execution including manually-triggered ones.
type BlackoutAppliesTo string

const (
	BlackoutAppliesToAutoOnly BlackoutAppliesTo = "auto_only"
	BlackoutAppliesToAll      BlackoutAppliesTo = "all"
)

// BlackoutWindow suppresses automatic execution within a recurring or
// one-off time range.
type BlackoutWindow struct {
	ID                   string            `json:"id" yaml:"id" db:"id"`
	Name                 string            `json:"name" yaml:"name" db:"name"`
	Timezone             string            `json:"timezone" yaml:"timezone" db:"timezone"`
	RecurrenceRule       string            `json:"recurrence_rule,omitempty" yaml:"recurrence_rule,omitempty" db:"recurrence_rule"`
	StartsAt             *time.Time        `json:"starts_at,omitempty" yaml:"-" db:"starts_at"`
	EndsAt               *time.Time        `json:"ends_at,omitempty" yaml:"-" db:"ends_at"`
	DurationMinutes      int               `json:"duration_minutes" yaml:"duration_minutes" db:"duration_minutes"`
	ScopeRunbookID       string            `json:"scope_runbook_id,omitempty" yaml:"scope_runbook_id,omitempty" db:"scope_runbook_id"`
	ScopeServerID        string            `json:"scope_server_id,omitempty" yaml:"scope_server_id,omitempty" db:"scope_server_id"`
	AppliesTo            BlackoutAppliesTo `json:"applies_to" yaml:"applies_to" db:"applies_to"`
	AppliesToRunbookIDs  []string          `json:"applies_to_runbook_ids,omitempty" yaml:"applies_to_runbook_ids,omitempty" db:"applies_to_runbook_ids"`
	Enabled              bool              `json:"enabled" yaml:"enabled" db:"enabled"`
}

// AuditEvent is one append-only entry in the audit log.
type AuditEvent struct {
	ID         string         `json:"id" db:"id"`
	Kind       string         `json:"kind" db:"kind"`
	Actor      string         `json:"actor,omitempty" db:"actor"`
	EntityType string         `json:"entity_type" db:"entity_type"`
	EntityID   string         `json:"entity_id" db:"entity_id"`
	Details    map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
