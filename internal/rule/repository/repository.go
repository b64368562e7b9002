package repository

import (
	"time"

	"mailpilot-backend/internal/rule/domain"
)

// RuleRepository defines data access for rules and their version history
type RuleRepository interface {
	// CreateWithHistory atomically inserts the rule, its conditions and
	// actions, and the version-1 history row. All or none
	CreateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error

	// UpdateWithHistory atomically replaces the rule's fields, conditions
	// and actions and appends the next history version
	UpdateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error

	// FindByID loads a rule with its conditions and actions, or nil
	FindByID(id string) (*domain.Rule, error)

	// FindByUserID loads the user's rules ordered by priority descending,
	// creation time ascending
	FindByUserID(userID string, enabledOnly bool) ([]*domain.Rule, error)

	// Delete hard-deletes a rule; conditions and actions cascade
	Delete(id string) error

	// CountByUserID returns total and enabled rule counts for a user
	CountByUserID(userID string) (total int64, enabled int64, err error)

	// NameExists reports whether the user already has a rule with the name,
	// excluding the given rule id (empty string excludes nothing)
	NameExists(userID, name, excludeRuleID string) (bool, error)

	// IncrementExecutionStats bumps execution_count and last_executed_at
	// with an atomic column expression
	IncrementExecutionStats(ruleID string, at time.Time) error

	// MostActive returns the user's rules with the highest execution counts
	MostActive(userID string, limit int) ([]*domain.Rule, error)
}

// ExecutionRepository defines data access for the append-only execution ledger
type ExecutionRepository interface {
	// Create appends one execution record
	Create(record *domain.ExecutionRecord) error

	// CountSuccessfulSince counts successful records for a user created
	// within the trailing window starting at since
	CountSuccessfulSince(userID string, since time.Time) (int64, error)

	// CountByUser returns total, successful and failed record counts
	CountByUser(userID string) (total int64, successful int64, failed int64, err error)
}

// QueuedActionRepository defines data access for the durable async action queue
type QueuedActionRepository interface {
	// Create appends one pending queue row
	Create(action *domain.QueuedAction) error

	// CountByTypeSince counts a user's queued actions of one type created
	// within the trailing window starting at since
	CountByTypeSince(userID string, actionType domain.ActionType, since time.Time) (int64, error)

	// ClaimPending atomically moves up to limit of the oldest pending rows
	// to processing and returns them
	ClaimPending(limit int) ([]*domain.QueuedAction, error)

	// MarkCompleted transitions a row to completed
	MarkCompleted(id string) error

	// MarkFailed records the error; retryable rows go back to pending,
	// exhausted ones to failed
	MarkFailed(id string, errMsg string, retryable bool) error
}
