package engine

import (
	"log"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/repository"
)

// EnqueueResult reports which async actions were durably queued and which
// failed to persist
type EnqueueResult struct {
	Queued []domain.RuleAction
	Failed []domain.RuleAction
}

// AsyncActionQueue writes one pending QueuedAction row per async action.
// Each row is its own persistence call: one failure never blocks the others.
// Delivery is at-least-once; the worker owns all status transitions
type AsyncActionQueue struct {
	repo repository.QueuedActionRepository
}

// NewAsyncActionQueue creates an AsyncActionQueue over the given repository
func NewAsyncActionQueue(repo repository.QueuedActionRepository) *AsyncActionQueue {
	return &AsyncActionQueue{repo: repo}
}

// Enqueue persists the async actions for out-of-band execution
func (q *AsyncActionQueue) Enqueue(actions []domain.RuleAction, event *emaildomain.EmailEvent, ruleID, userID string) EnqueueResult {
	result := EnqueueResult{}

	for _, action := range actions {
		if !IsAsyncAction(action.Type) {
			log.Printf("[AsyncQueue] refusing sync action %s in async path (classification bug)", action.Type)
			result.Failed = append(result.Failed, action)
			continue
		}

		queued := &domain.QueuedAction{
			RuleID:         ruleID,
			UserID:         userID,
			EmailMessageID: event.MessageID,
			EmailThreadID:  event.ThreadID,
			ActionType:     action.Type,
			ForwardTo:      action.ForwardTo,
			ReplySubject:   action.ReplySubject,
			ReplyBody:      action.ReplyBody,
			WebhookURL:     action.WebhookURL,
		}

		if err := q.repo.Create(queued); err != nil {
			log.Printf("[AsyncQueue] failed to enqueue %s for rule %s: %v", action.Type, ruleID, err)
			result.Failed = append(result.Failed, action)
			continue
		}
		result.Queued = append(result.Queued, action)
	}

	return result
}
