package dto

import "mailpilot-backend/internal/rule/domain"

// ConditionRequest is one condition in a create/update request
type ConditionRequest struct {
	Field         string `json:"field" binding:"required"`
	Operator      string `json:"operator" binding:"required"`
	Value         string `json:"value"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// ActionRequest is one action in a create/update request. Payload fields are
// per-type; the validator checks the required ones per variant
type ActionRequest struct {
	Type         string `json:"type" binding:"required"`
	LabelName    string `json:"label_name,omitempty"`
	ForwardTo    string `json:"forward_to_email,omitempty"`
	ReplySubject string `json:"reply_subject,omitempty"`
	ReplyBody    string `json:"reply_body,omitempty"`
	WebhookURL   string `json:"webhook_url,omitempty"`
}

// RuleRequest is the body for creating or updating a rule
type RuleRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Enabled     *bool              `json:"enabled"`
	Conditions  []ConditionRequest `json:"conditions"`
	Actions     []ActionRequest    `json:"actions"`
}

// ProcessResult aggregates one evaluation pass over a single email
type ProcessResult struct {
	RulesExecuted   int   `json:"rules_executed"`
	ActionsExecuted int   `json:"actions_executed"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// TestRuleRequest asks for a dry run of a rule definition against a stored email
type TestRuleRequest struct {
	Rule           RuleRequest `json:"rule" binding:"required"`
	EmailMessageID string      `json:"email_message_id" binding:"required"`
}

// ConditionResult is the per-condition breakdown of a dry run
type ConditionResult struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Matched  bool   `json:"matched"`
}

// TestRuleResponse is the outcome of a dry run. Nothing is executed or queued
type TestRuleResponse struct {
	Matches                 bool                `json:"matches"`
	ConditionResults        []ConditionResult   `json:"condition_results"`
	ActionsThatWouldExecute []domain.RuleAction `json:"actions_that_would_execute"`
}

// RuleActivity is one entry of the most-active-rules stats list
type RuleActivity struct {
	RuleID         string `json:"rule_id"`
	Name           string `json:"name"`
	ExecutionCount int64  `json:"execution_count"`
}

// RuleStats aggregates per-user rule and execution counters
type RuleStats struct {
	TotalRules           int64          `json:"total_rules"`
	EnabledRules         int64          `json:"enabled_rules"`
	TotalExecutions      int64          `json:"total_executions"`
	SuccessfulExecutions int64          `json:"successful_executions"`
	FailedExecutions     int64          `json:"failed_executions"`
	MostActiveRules      []RuleActivity `json:"most_active_rules"`
}
