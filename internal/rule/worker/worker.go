package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/engine"
	"mailpilot-backend/internal/rule/repository"
	"mailpilot-backend/pkg/metrics"
)

const (
	defaultInterval  = 15 * time.Second
	defaultBatchSize = 20
	maxAttempts      = 3
)

// CredentialsProvider supplies the Gmail OAuth material for a queued action's owner
type CredentialsProvider interface {
	CredentialsForUser(userID string) (engine.MailCredentials, error)
}

// AsyncActionWorker is the queue consumer: it polls pending QueuedAction rows,
// executes them against the mail provider (or webhook target) and transitions
// their status. Failed rows are retried up to maxAttempts before landing in
// the failed state, giving at-least-once delivery
type AsyncActionWorker struct {
	queueRepo  repository.QueuedActionRepository
	provider   engine.MailProvider
	accounts   CredentialsProvider
	httpClient *http.Client
	interval   time.Duration
	stopChan   chan struct{}
}

// NewAsyncActionWorker creates a new worker polling at the given interval
// (zero means the default)
func NewAsyncActionWorker(queueRepo repository.QueuedActionRepository, provider engine.MailProvider, accounts CredentialsProvider, interval time.Duration) *AsyncActionWorker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &AsyncActionWorker{
		queueRepo:  queueRepo,
		provider:   provider,
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the polling loop
func (w *AsyncActionWorker) Start() {
	log.Printf("[ActionWorker] starting queue consumer (interval: %s)", w.interval)

	go func() {
		// Drain anything left over from a previous run immediately
		w.processBatch()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.processBatch()
			case <-w.stopChan:
				log.Println("[ActionWorker] stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker
func (w *AsyncActionWorker) Stop() {
	close(w.stopChan)
}

func (w *AsyncActionWorker) processBatch() {
	actions, err := w.queueRepo.ClaimPending(defaultBatchSize)
	if err != nil {
		log.Printf("[ActionWorker] error claiming pending actions: %v", err)
		return
	}
	if len(actions) == 0 {
		return
	}

	log.Printf("[ActionWorker] claimed %d pending action(s)", len(actions))

	for _, action := range actions {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.execute(ctx, action)
		cancel()

		if err != nil {
			retryable := action.Attempts < maxAttempts
			log.Printf("[ActionWorker] action %s (%s) failed (attempt %d/%d, retry=%v): %v",
				action.ID, action.ActionType, action.Attempts, maxAttempts, retryable, err)
			if markErr := w.queueRepo.MarkFailed(action.ID, err.Error(), retryable); markErr != nil {
				log.Printf("[ActionWorker] error marking action %s failed: %v", action.ID, markErr)
			}
			if retryable {
				metrics.QueuedActionResults.WithLabelValues("retried").Inc()
			} else {
				metrics.QueuedActionResults.WithLabelValues("failed").Inc()
			}
			continue
		}

		if err := w.queueRepo.MarkCompleted(action.ID); err != nil {
			log.Printf("[ActionWorker] error marking action %s completed: %v", action.ID, err)
		}
		metrics.QueuedActionResults.WithLabelValues("completed").Inc()
	}
}

func (w *AsyncActionWorker) execute(ctx context.Context, action *domain.QueuedAction) error {
	switch action.ActionType {
	case domain.ActionForward:
		return w.executeForward(ctx, action)
	case domain.ActionReply:
		return w.executeReply(ctx, action)
	case domain.ActionWebhook:
		return w.executeWebhook(ctx, action)
	default:
		return fmt.Errorf("unknown queued action type: %s", action.ActionType)
	}
}

func (w *AsyncActionWorker) executeForward(ctx context.Context, action *domain.QueuedAction) error {
	creds, err := w.accounts.CredentialsForUser(action.UserID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	original, err := w.provider.GetEmailByID(ctx, creds.AccessToken, creds.RefreshToken, action.EmailMessageID, creds.OnTokenRefresh)
	if err != nil {
		return fmt.Errorf("failed to load original message: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", creds.Email)
	fmt.Fprintf(&msg, "To: %s\r\n", action.ForwardTo)
	fmt.Fprintf(&msg, "Subject: Fwd: %s\r\n", original.Subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "---------- Forwarded message ----------\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		original.From, original.Subject, original.Body)

	return w.provider.SendRawEmail(ctx, creds.AccessToken, creds.RefreshToken, msg.Bytes(), "", creds.OnTokenRefresh)
}

func (w *AsyncActionWorker) executeReply(ctx context.Context, action *domain.QueuedAction) error {
	creds, err := w.accounts.CredentialsForUser(action.UserID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	original, err := w.provider.GetEmailByID(ctx, creds.AccessToken, creds.RefreshToken, action.EmailMessageID, creds.OnTokenRefresh)
	if err != nil {
		return fmt.Errorf("failed to load original message: %w", err)
	}

	subject := action.ReplySubject
	if subject == "" {
		subject = "Re: " + original.Subject
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", creds.Email)
	fmt.Fprintf(&msg, "To: %s\r\n", original.SenderAddress())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(action.ReplyBody)
	msg.WriteString("\r\n")

	// Sending within the original thread keeps the reply in the conversation
	return w.provider.SendRawEmail(ctx, creds.AccessToken, creds.RefreshToken, msg.Bytes(), action.EmailThreadID, creds.OnTokenRefresh)
}

func (w *AsyncActionWorker) executeWebhook(ctx context.Context, action *domain.QueuedAction) error {
	payload, err := json.Marshal(map[string]interface{}{
		"rule_id":          action.RuleID,
		"user_id":          action.UserID,
		"email_message_id": action.EmailMessageID,
		"email_thread_id":  action.EmailThreadID,
		"queued_at":        action.CreatedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
