package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
)

// fakeExecutionRepo is an in-memory ExecutionRepository
type fakeExecutionRepo struct {
	mu      sync.Mutex
	records []*domain.ExecutionRecord
}

func (f *fakeExecutionRepo) Create(record *domain.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeExecutionRepo) CountSuccessfulSince(userID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, record := range f.records {
		if record.UserID == userID && record.Success && !record.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeExecutionRepo) CountByUser(userID string) (int64, int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, successful int64
	for _, record := range f.records {
		if record.UserID == userID {
			total++
			if record.Success {
				successful++
			}
		}
	}
	return total, successful, total - successful, nil
}

// fakeQueueRepo is an in-memory QueuedActionRepository; failTypes makes
// Create fail for the listed action types
type fakeQueueRepo struct {
	mu        sync.Mutex
	actions   []*domain.QueuedAction
	failTypes map[domain.ActionType]bool
}

func (f *fakeQueueRepo) Create(action *domain.QueuedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTypes[action.ActionType] {
		return errors.New("store unavailable")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	action.Status = domain.QueuedStatusPending
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeQueueRepo) CountByTypeSince(userID string, actionType domain.ActionType, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, action := range f.actions {
		if action.UserID == userID && action.ActionType == actionType &&
			action.Status != domain.QueuedStatusFailed && !action.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeQueueRepo) ClaimPending(limit int) ([]*domain.QueuedAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []*domain.QueuedAction
	for _, action := range f.actions {
		if len(claimed) >= limit {
			break
		}
		if action.Status == domain.QueuedStatusPending {
			action.Status = domain.QueuedStatusProcessing
			action.Attempts++
			claimed = append(claimed, action)
		}
	}
	return claimed, nil
}

func (f *fakeQueueRepo) MarkCompleted(id string) error {
	return f.setStatus(id, domain.QueuedStatusCompleted, "")
}

func (f *fakeQueueRepo) MarkFailed(id string, errMsg string, retryable bool) error {
	status := domain.QueuedStatusFailed
	if retryable {
		status = domain.QueuedStatusPending
	}
	return f.setStatus(id, status, errMsg)
}

func (f *fakeQueueRepo) setStatus(id string, status domain.QueuedActionStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, action := range f.actions {
		if action.ID == id {
			action.Status = status
			action.ErrorMessage = errMsg
			return nil
		}
	}
	return errors.New("not found")
}

// fakeMailProvider records calls and fails the configured operations
type fakeMailProvider struct {
	mu       sync.Mutex
	calls    []string
	failOps  map[string]bool
	messages map[string]*emaildomain.EmailEvent
}

func newFakeMailProvider() *fakeMailProvider {
	return &fakeMailProvider{
		failOps:  make(map[string]bool),
		messages: make(map[string]*emaildomain.EmailEvent),
	}
}

func (p *fakeMailProvider) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)
	if p.failOps[op] {
		return fmt.Errorf("%s failed", op)
	}
	return nil
}

func (p *fakeMailProvider) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, call := range p.calls {
		if call == op {
			count++
		}
	}
	return count
}

func (p *fakeMailProvider) MarkAsRead(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("mark_read")
}

func (p *fakeMailProvider) MarkAsUnread(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("mark_unread")
}

func (p *fakeMailProvider) ArchiveEmail(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("archive")
}

func (p *fakeMailProvider) TrashEmail(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("trash")
}

func (p *fakeMailProvider) ModifyMessageLabels(ctx context.Context, at, rt, messageID string, add, remove []string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("modify_labels")
}

func (p *fakeMailProvider) ResolveLabelID(ctx context.Context, at, rt, labelName string, createMissing bool, cb emaildomain.TokenUpdateFunc) (string, error) {
	if err := p.record("resolve_label"); err != nil {
		return "", err
	}
	return "Label_1", nil
}

func (p *fakeMailProvider) GetEmailByID(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) (*emaildomain.EmailEvent, error) {
	if err := p.record("get_email"); err != nil {
		return nil, err
	}
	if event, ok := p.messages[messageID]; ok {
		return event, nil
	}
	return nil, errors.New("message not found")
}

func (p *fakeMailProvider) SendRawEmail(ctx context.Context, at, rt string, raw []byte, threadID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("send")
}
