package engine

import (
	"testing"
	"time"

	"mailpilot-backend/internal/rule/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(execRepo *fakeExecutionRepo, queueRepo *fakeQueueRepo) *RateLimiter {
	cfg := RateLimiterConfig{
		ExecutionLimit:  5,
		ExecutionWindow: time.Minute,
		ForwardLimit:    10,
		ForwardWindow:   time.Hour,
		ReplyLimit:      10,
		ReplyWindow:     time.Hour,
	}
	return NewRateLimiter(cfg, execRepo, queueRepo)
}

func TestExecutionWindowBoundary(t *testing.T) {
	execRepo := &fakeExecutionRepo{}
	queueRepo := &fakeQueueRepo{}
	limiter := newTestLimiter(execRepo, queueRepo)

	// Exactly the limit of successful executions fits in the window
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.CheckExecutions("user-1"))
		require.NoError(t, execRepo.Create(&domain.ExecutionRecord{UserID: "user-1", Success: true}))
	}

	err := limiter.CheckExecutions("user-1")
	require.Error(t, err, "the (N+1)th check in the same window must be rejected")
	assert.Contains(t, err.Error(), "rate limit exceeded")

	// Already-recorded executions are untouched
	total, successful, _, err := execRepo.CountByUser("user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.EqualValues(t, 5, successful)
}

func TestExecutionWindowIgnoresOldAndFailedRecords(t *testing.T) {
	execRepo := &fakeExecutionRepo{}
	limiter := newTestLimiter(execRepo, &fakeQueueRepo{})

	// Outside the trailing window
	for i := 0; i < 5; i++ {
		require.NoError(t, execRepo.Create(&domain.ExecutionRecord{
			UserID:    "user-1",
			Success:   true,
			CreatedAt: time.Now().Add(-2 * time.Minute),
		}))
	}
	// Failed records never count
	require.NoError(t, execRepo.Create(&domain.ExecutionRecord{UserID: "user-1", Success: false}))

	assert.NoError(t, limiter.CheckExecutions("user-1"))
}

func TestExecutionWindowIsPerUser(t *testing.T) {
	execRepo := &fakeExecutionRepo{}
	limiter := newTestLimiter(execRepo, &fakeQueueRepo{})

	for i := 0; i < 5; i++ {
		require.NoError(t, execRepo.Create(&domain.ExecutionRecord{UserID: "user-1", Success: true}))
	}

	assert.Error(t, limiter.CheckExecutions("user-1"))
	assert.NoError(t, limiter.CheckExecutions("user-2"))
}

func TestForwardCohortLimit(t *testing.T) {
	queueRepo := &fakeQueueRepo{}
	limiter := newTestLimiter(&fakeExecutionRepo{}, queueRepo)

	for i := 0; i < 10; i++ {
		require.NoError(t, queueRepo.Create(&domain.QueuedAction{UserID: "user-1", ActionType: domain.ActionForward}))
	}

	err := limiter.CheckAction("user-1", domain.ActionForward)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Forward rate limit exceeded")

	// Reply window is independent of the forward window
	assert.NoError(t, limiter.CheckAction("user-1", domain.ActionReply))
	// Non-cohort types are never limited
	assert.NoError(t, limiter.CheckAction("user-1", domain.ActionWebhook))
}

func TestLockSerializesPerUser(t *testing.T) {
	limiter := newTestLimiter(&fakeExecutionRepo{}, &fakeQueueRepo{})

	unlock := limiter.Lock("user-1")

	acquired := make(chan struct{})
	go func() {
		innerUnlock := limiter.Lock("user-1")
		close(acquired)
		innerUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}
}
