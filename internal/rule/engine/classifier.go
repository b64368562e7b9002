package engine

import "mailpilot-backend/internal/rule/domain"

// syncActionTypes and asyncActionTypes partition the known action types.
// stop_processing is sync: it is cheap and purely in-process
var syncActionTypes = map[domain.ActionType]bool{
	domain.ActionMarkRead:       true,
	domain.ActionMarkUnread:     true,
	domain.ActionArchive:        true,
	domain.ActionDelete:         true,
	domain.ActionAddLabel:       true,
	domain.ActionRemoveLabel:    true,
	domain.ActionStopProcessing: true,
}

var asyncActionTypes = map[domain.ActionType]bool{
	domain.ActionForward: true,
	domain.ActionReply:   true,
	domain.ActionWebhook: true,
}

// IsSyncAction reports whether the action type executes in-process during
// the evaluation pass
func IsSyncAction(t domain.ActionType) bool {
	return syncActionTypes[t]
}

// IsAsyncAction reports whether the action type is deferred to the durable queue
func IsAsyncAction(t domain.ActionType) bool {
	return asyncActionTypes[t]
}

// IsKnownActionType reports whether the type belongs to either set
func IsKnownActionType(t domain.ActionType) bool {
	return syncActionTypes[t] || asyncActionTypes[t]
}

// ClassifyActions splits a rule's actions into the sync and async cohorts,
// preserving declaration order within each
func ClassifyActions(actions []domain.RuleAction) (sync []domain.RuleAction, async []domain.RuleAction) {
	for _, action := range actions {
		if IsSyncAction(action.Type) {
			sync = append(sync, action)
		} else if IsAsyncAction(action.Type) {
			async = append(async, action)
		}
	}
	return sync, async
}
