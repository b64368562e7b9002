package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/engine"

	"github.com/google/uuid"
)

// fakeRuleRepo is an in-memory RuleRepository honoring the transactional
// contract: a failed CreateWithHistory/UpdateWithHistory stores nothing
type fakeRuleRepo struct {
	mu          sync.Mutex
	rules       map[string]*domain.Rule
	histories   []*domain.RuleHistory
	failHistory bool
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[string]*domain.Rule)}
}

func (f *fakeRuleRepo) CreateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory {
		// Rule insert succeeded, history insert failed: rolled back
		return errors.New("history insert failed")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	copied := *rule
	f.rules[rule.ID] = &copied
	history.RuleID = rule.ID
	f.histories = append(f.histories, history)
	return nil
}

func (f *fakeRuleRepo) UpdateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistory {
		return errors.New("history insert failed")
	}
	existing, ok := f.rules[rule.ID]
	if !ok {
		return errors.New("not found")
	}
	rule.ExecutionCount = existing.ExecutionCount
	copied := *rule
	f.rules[rule.ID] = &copied
	history.RuleID = rule.ID
	f.histories = append(f.histories, history)
	return nil
}

func (f *fakeRuleRepo) FindByID(id string) (*domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return nil, nil
	}
	copied := *rule
	return &copied, nil
}

func (f *fakeRuleRepo) FindByUserID(userID string, enabledOnly bool) ([]*domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rules []*domain.Rule
	for _, rule := range f.rules {
		if rule.UserID != userID {
			continue
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		copied := *rule
		rules = append(rules, &copied)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

func (f *fakeRuleRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleRepo) CountByUserID(userID string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, enabled int64
	for _, rule := range f.rules {
		if rule.UserID == userID {
			total++
			if rule.Enabled {
				enabled++
			}
		}
	}
	return total, enabled, nil
}

func (f *fakeRuleRepo) NameExists(userID, name, excludeRuleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rule := range f.rules {
		if rule.UserID == userID && rule.Name == name && rule.ID != excludeRuleID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRuleRepo) IncrementExecutionStats(ruleID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule, ok := f.rules[ruleID]; ok {
		rule.ExecutionCount++
		rule.LastExecutedAt = &at
	}
	return nil
}

func (f *fakeRuleRepo) MostActive(userID string, limit int) ([]*domain.Rule, error) {
	rules, err := f.FindByUserID(userID, false)
	if err != nil {
		return nil, err
	}
	var active []*domain.Rule
	for _, rule := range rules {
		if rule.ExecutionCount > 0 {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].ExecutionCount > active[j].ExecutionCount
	})
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// fakeExecRepo is an in-memory ExecutionRepository
type fakeExecRepo struct {
	mu      sync.Mutex
	records []*domain.ExecutionRecord
}

func (f *fakeExecRepo) Create(record *domain.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeExecRepo) CountSuccessfulSince(userID string, since time.Time) (int64, error) {
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

func (f *fakeExecRepo) CountByUser(userID string) (int64, int64, int64, error) {
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

// fakeQueueRepo is an in-memory QueuedActionRepository
type fakeQueueRepo struct {
	mu      sync.Mutex
	actions []*domain.QueuedAction
	failAll bool
}

func (f *fakeQueueRepo) Create(action *domain.QueuedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("store unavailable")
	}
	if action.ID == "" {
		action.ID = uuid.New().String()
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

// fakeProvider implements engine.MailProvider, recording mutations and
// serving stored messages. Ops named in failOps return their error
type fakeProvider struct {
	mu       sync.Mutex
	calls    []string
	failOps  map[string]error
	messages map[string]*emaildomain.EmailEvent
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failOps:  make(map[string]error),
		messages: make(map[string]*emaildomain.EmailEvent),
	}
}

func (p *fakeProvider) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failOps[op]; ok {
		return err
	}
	p.calls = append(p.calls, op)
	return nil
}

func (p *fakeProvider) mutationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, call := range p.calls {
		if call != "get_email" {
			count++
		}
	}
	return count
}

func (p *fakeProvider) MarkAsRead(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("mark_read")
}

func (p *fakeProvider) MarkAsUnread(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("mark_unread")
}

func (p *fakeProvider) ArchiveEmail(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("archive")
}

func (p *fakeProvider) TrashEmail(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("trash")
}

func (p *fakeProvider) ModifyMessageLabels(ctx context.Context, at, rt, messageID string, add, remove []string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("modify_labels")
}

func (p *fakeProvider) ResolveLabelID(ctx context.Context, at, rt, labelName string, createMissing bool, cb emaildomain.TokenUpdateFunc) (string, error) {
	if err := p.record("resolve_label"); err != nil {
		return "", err
	}
	return "Label_1", nil
}

func (p *fakeProvider) GetEmailByID(ctx context.Context, at, rt, messageID string, cb emaildomain.TokenUpdateFunc) (*emaildomain.EmailEvent, error) {
	if err := p.record("get_email"); err != nil {
		return nil, err
	}
	if event, ok := p.messages[messageID]; ok {
		return event, nil
	}
	return nil, errors.New("message not found")
}

func (p *fakeProvider) SendRawEmail(ctx context.Context, at, rt string, raw []byte, threadID string, cb emaildomain.TokenUpdateFunc) error {
	return p.record("send")
}

// fakeAccounts returns static credentials for any user
type fakeAccounts struct{}

func (fakeAccounts) CredentialsForUser(userID string) (engine.MailCredentials, error) {
	return engine.MailCredentials{Email: userID + "@example.com", AccessToken: "at", RefreshToken: "rt"}, nil
}
