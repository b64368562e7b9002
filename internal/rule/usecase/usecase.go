package usecase

import (
	"context"
	"strings"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/dto"
	"mailpilot-backend/internal/rule/engine"
)

// RuleUsecase defines the rule engine's business logic surface
type RuleUsecase interface {
	// ProcessEmail runs one evaluation pass of the user's enabled rules
	// against the event. Per-rule failures are isolated; only the pass-level
	// rate limit or a failure to load the rule list aborts the pass
	ProcessEmail(ctx context.Context, userID string, event *emaildomain.EmailEvent, source domain.TriggerSource) (*dto.ProcessResult, error)

	// ProcessStoredEmail fetches a stored message and runs ProcessEmail on it
	// with the manual trigger source
	ProcessStoredEmail(ctx context.Context, userID, messageID string) (*dto.ProcessResult, error)

	// CreateRule validates the request and atomically persists the rule, its
	// conditions/actions and the version-1 history row
	CreateRule(userID string, req *dto.RuleRequest) (*domain.Rule, error)

	// UpdateRule validates and atomically replaces the rule's definition,
	// bumping the version and appending a history row
	UpdateRule(userID, ruleID string, req *dto.RuleRequest) (*domain.Rule, error)

	// DeleteRule hard-deletes a rule; actions and conditions cascade
	DeleteRule(userID, ruleID string) error

	// GetRule loads a single rule with ownership check
	GetRule(userID, ruleID string) (*domain.Rule, error)

	// GetUserRules lists rules in evaluation order
	GetUserRules(userID string, enabledOnly bool) ([]*domain.Rule, error)

	// TestRule dry-runs a rule definition against a stored email. It never
	// executes or queues anything and writes no execution record
	TestRule(ctx context.Context, userID string, req *dto.TestRuleRequest) (*dto.TestRuleResponse, error)

	// GetRuleStats aggregates per-user rule and execution counters
	GetRuleStats(userID string) (*dto.RuleStats, error)
}

// MailAccountProvider supplies the Gmail OAuth material for a user. The auth
// module implements it; the engine has no opinion on where tokens come from
type MailAccountProvider interface {
	CredentialsForUser(userID string) (engine.MailCredentials, error)
}

// ValidationError carries the complete list of violations found in a
// create/update/test request. Nothing is persisted when it is returned
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid rule: " + strings.Join(e.Violations, "; ")
}
