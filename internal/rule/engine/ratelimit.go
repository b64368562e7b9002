package engine

import (
	"fmt"
	"sync"
	"time"

	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/repository"
)

// RateLimiterConfig holds the per-user window sizes and ceilings
type RateLimiterConfig struct {
	ExecutionLimit  int64
	ExecutionWindow time.Duration
	ForwardLimit    int64
	ForwardWindow   time.Duration
	ReplyLimit      int64
	ReplyWindow     time.Duration
}

// DefaultRateLimiterConfig returns the default limits: 60 executions/minute,
// 10 forwards/hour, 10 replies/hour
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		ExecutionLimit:  60,
		ExecutionWindow: time.Minute,
		ForwardLimit:    10,
		ForwardWindow:   time.Hour,
		ReplyLimit:      10,
		ReplyWindow:     time.Hour,
	}
}

// RateLimiter enforces three independent sliding windows per user by counting
// prior ledger rows within a trailing interval. Lock serializes the window
// check and the writes that follow it for one user, so two concurrent passes
// for the same user cannot both slip past a boundary check
type RateLimiter struct {
	cfg        RateLimiterConfig
	executions repository.ExecutionRepository
	queue      repository.QueuedActionRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRateLimiter creates a RateLimiter backed by the execution ledger and queue
func NewRateLimiter(cfg RateLimiterConfig, executions repository.ExecutionRepository, queue repository.QueuedActionRepository) *RateLimiter {
	return &RateLimiter{
		cfg:        cfg,
		executions: executions,
		queue:      queue,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-user mutex. The caller must hold it across the
// window check and any inserts counted by that window, and release it with
// the returned function
func (l *RateLimiter) Lock(userID string) func() {
	l.mu.Lock()
	userLock, ok := l.locks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		l.locks[userID] = userLock
	}
	l.mu.Unlock()

	userLock.Lock()
	return userLock.Unlock
}

// CheckExecutions enforces the pass-level execution window. A breach aborts
// the whole pass
func (l *RateLimiter) CheckExecutions(userID string) error {
	count, err := l.executions.CountSuccessfulSince(userID, time.Now().Add(-l.cfg.ExecutionWindow))
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if count >= l.cfg.ExecutionLimit {
		return fmt.Errorf("execution rate limit exceeded: %d executions in the last %s", count, l.cfg.ExecutionWindow)
	}
	return nil
}

// CheckAction enforces the per-cohort window for forward and reply actions.
// Other action types are never limited. A breach skips the cohort only
func (l *RateLimiter) CheckAction(userID string, actionType domain.ActionType) error {
	var limit int64
	var window time.Duration
	var label string

	switch actionType {
	case domain.ActionForward:
		limit, window, label = l.cfg.ForwardLimit, l.cfg.ForwardWindow, "Forward"
	case domain.ActionReply:
		limit, window, label = l.cfg.ReplyLimit, l.cfg.ReplyWindow, "Reply"
	default:
		return nil
	}

	count, err := l.queue.CountByTypeSince(userID, actionType, time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if count >= limit {
		return fmt.Errorf("%s rate limit exceeded: %d in the last %s", label, count, window)
	}
	return nil
}
