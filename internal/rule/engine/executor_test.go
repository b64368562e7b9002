package engine

import (
	"context"
	"testing"
	"time"

	"mailpilot-backend/internal/rule/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() MailCredentials {
	return MailCredentials{Email: "me@example.com", AccessToken: "at", RefreshToken: "rt"}
}

func TestExecuteRunsActionsInOrder(t *testing.T) {
	provider := newFakeMailProvider()
	executor := NewSyncActionExecutor(provider, time.Second)

	actions := []domain.RuleAction{
		{Type: domain.ActionArchive},
		{Type: domain.ActionMarkRead},
	}

	result := executor.Execute(context.Background(), testCreds(), actions, sampleEvent())

	require.Len(t, result.Executed, 2)
	assert.False(t, result.StopProcessing)
	assert.Equal(t, []string{"archive", "mark_read"}, provider.calls)
}

func TestExecutePartialFailureContinues(t *testing.T) {
	provider := newFakeMailProvider()
	provider.failOps["archive"] = true
	executor := NewSyncActionExecutor(provider, time.Second)

	actions := []domain.RuleAction{
		{Type: domain.ActionArchive},
		{Type: domain.ActionMarkRead},
	}

	result := executor.Execute(context.Background(), testCreds(), actions, sampleEvent())

	// The failed action is skipped, not retried, and reported with its cause
	require.Len(t, result.Executed, 1)
	assert.Equal(t, domain.ActionMarkRead, result.Executed[0].Type)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, domain.ActionArchive, result.Failed[0].Action.Type)
	assert.ErrorContains(t, result.Failed[0].Err, "archive failed")
	assert.Equal(t, 1, provider.callCount("archive"))
	assert.Equal(t, 1, provider.callCount("mark_read"))
}

func TestExecuteStopProcessingHaltsImmediately(t *testing.T) {
	provider := newFakeMailProvider()
	executor := NewSyncActionExecutor(provider, time.Second)

	actions := []domain.RuleAction{
		{Type: domain.ActionMarkRead},
		{Type: domain.ActionStopProcessing},
		{Type: domain.ActionArchive},
	}

	result := executor.Execute(context.Background(), testCreds(), actions, sampleEvent())

	assert.True(t, result.StopProcessing)
	require.Len(t, result.Executed, 2)
	assert.Equal(t, domain.ActionStopProcessing, result.Executed[1].Type)
	assert.Equal(t, 0, provider.callCount("archive"), "actions after stop_processing must not run")
}

func TestExecuteRejectsAsyncActions(t *testing.T) {
	provider := newFakeMailProvider()
	executor := NewSyncActionExecutor(provider, time.Second)

	actions := []domain.RuleAction{
		{Type: domain.ActionForward, ForwardTo: "x@y.com"},
		{Type: domain.ActionMarkRead},
	}

	result := executor.Execute(context.Background(), testCreds(), actions, sampleEvent())

	require.Len(t, result.Executed, 1)
	assert.Equal(t, domain.ActionMarkRead, result.Executed[0].Type)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, domain.ActionForward, result.Failed[0].Action.Type)
	assert.Equal(t, 0, provider.callCount("send"), "forward must never reach the sync path")
}

func TestExecuteLabelActions(t *testing.T) {
	provider := newFakeMailProvider()
	executor := NewSyncActionExecutor(provider, time.Second)

	actions := []domain.RuleAction{
		{Type: domain.ActionAddLabel, LabelName: "Receipts"},
		{Type: domain.ActionRemoveLabel, LabelName: "Unsorted"},
	}

	result := executor.Execute(context.Background(), testCreds(), actions, sampleEvent())

	assert.Len(t, result.Executed, 2)
	assert.Equal(t, 2, provider.callCount("resolve_label"))
	assert.Equal(t, 2, provider.callCount("modify_labels"))
}
