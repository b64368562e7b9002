package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
)

// MailProvider is the slice of the mail-provider client the engine needs.
// Failures are ordinary per-action errors, never fatal to the pass
type MailProvider interface {
	MarkAsRead(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh emaildomain.TokenUpdateFunc) error
	MarkAsUnread(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh emaildomain.TokenUpdateFunc) error
	ArchiveEmail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh emaildomain.TokenUpdateFunc) error
	TrashEmail(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh emaildomain.TokenUpdateFunc) error
	ModifyMessageLabels(ctx context.Context, accessToken, refreshToken, messageID string, addLabelIDs, removeLabelIDs []string, onTokenRefresh emaildomain.TokenUpdateFunc) error
	ResolveLabelID(ctx context.Context, accessToken, refreshToken, labelName string, createMissing bool, onTokenRefresh emaildomain.TokenUpdateFunc) (string, error)
	GetEmailByID(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh emaildomain.TokenUpdateFunc) (*emaildomain.EmailEvent, error)
	SendRawEmail(ctx context.Context, accessToken, refreshToken string, raw []byte, threadID string, onTokenRefresh emaildomain.TokenUpdateFunc) error
}

// MailCredentials carries the per-user OAuth material every provider call
// needs, plus the account's own address for building outgoing messages
type MailCredentials struct {
	Email          string
	AccessToken    string
	RefreshToken   string
	OnTokenRefresh emaildomain.TokenUpdateFunc
}

// FailedAction is one sync action that did not take effect, with its cause
type FailedAction struct {
	Action domain.RuleAction
	Err    error
}

// SyncResult reports which sync actions actually took effect, which failed,
// and whether a stop_processing action ended the pass early
type SyncResult struct {
	Executed       []domain.RuleAction
	Failed         []FailedAction
	StopProcessing bool
}

// SyncActionExecutor applies fast idempotent mutations through the mail
// provider. A failed action is logged and skipped; the rest still run
type SyncActionExecutor struct {
	provider      MailProvider
	actionTimeout time.Duration
}

// NewSyncActionExecutor creates a SyncActionExecutor with a per-action
// timeout bounding each provider call
func NewSyncActionExecutor(provider MailProvider, actionTimeout time.Duration) *SyncActionExecutor {
	if actionTimeout <= 0 {
		actionTimeout = 10 * time.Second
	}
	return &SyncActionExecutor{provider: provider, actionTimeout: actionTimeout}
}

// Execute runs the sync actions in declaration order against the event's
// message. Async action types reaching here are a classification bug and are
// rejected without touching the provider
func (e *SyncActionExecutor) Execute(ctx context.Context, creds MailCredentials, actions []domain.RuleAction, event *emaildomain.EmailEvent) SyncResult {
	result := SyncResult{}

	for _, action := range actions {
		if IsAsyncAction(action.Type) {
			log.Printf("[SyncExecutor] refusing async action %s in sync path (classification bug)", action.Type)
			result.Failed = append(result.Failed, FailedAction{Action: action, Err: fmt.Errorf("async action %s in sync path", action.Type)})
			continue
		}

		if action.Type == domain.ActionStopProcessing {
			result.Executed = append(result.Executed, action)
			result.StopProcessing = true
			break
		}

		actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
		err := e.dispatch(actionCtx, creds, action, event)
		cancel()

		if err != nil {
			log.Printf("[SyncExecutor] action %s failed for message %s: %v", action.Type, event.MessageID, err)
			result.Failed = append(result.Failed, FailedAction{Action: action, Err: err})
			continue
		}
		result.Executed = append(result.Executed, action)
	}

	return result
}

func (e *SyncActionExecutor) dispatch(ctx context.Context, creds MailCredentials, action domain.RuleAction, event *emaildomain.EmailEvent) error {
	switch action.Type {
	case domain.ActionMarkRead:
		return e.provider.MarkAsRead(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, creds.OnTokenRefresh)
	case domain.ActionMarkUnread:
		return e.provider.MarkAsUnread(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, creds.OnTokenRefresh)
	case domain.ActionArchive:
		return e.provider.ArchiveEmail(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, creds.OnTokenRefresh)
	case domain.ActionDelete:
		return e.provider.TrashEmail(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, creds.OnTokenRefresh)
	case domain.ActionAddLabel:
		labelID, err := e.provider.ResolveLabelID(ctx, creds.AccessToken, creds.RefreshToken, action.LabelName, true, creds.OnTokenRefresh)
		if err != nil {
			return err
		}
		return e.provider.ModifyMessageLabels(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, []string{labelID}, nil, creds.OnTokenRefresh)
	case domain.ActionRemoveLabel:
		labelID, err := e.provider.ResolveLabelID(ctx, creds.AccessToken, creds.RefreshToken, action.LabelName, false, creds.OnTokenRefresh)
		if err != nil {
			return err
		}
		return e.provider.ModifyMessageLabels(ctx, creds.AccessToken, creds.RefreshToken, event.MessageID, nil, []string{labelID}, creds.OnTokenRefresh)
	default:
		log.Printf("[SyncExecutor] unknown sync action type: %s", action.Type)
		return nil
	}
}
