package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/dto"
	"mailpilot-backend/internal/rule/engine"
	"mailpilot-backend/internal/rule/repository"
	"mailpilot-backend/pkg/metrics"
)

// ruleUsecase implements RuleUsecase
type ruleUsecase struct {
	ruleRepo  repository.RuleRepository
	execRepo  repository.ExecutionRepository
	validator *RuleValidator
	evaluator *engine.ConditionEvaluator
	limiter   *engine.RateLimiter
	executor  *engine.SyncActionExecutor
	queue     *engine.AsyncActionQueue
	provider  engine.MailProvider
	accounts  MailAccountProvider
}

// NewRuleUsecase creates a new instance of ruleUsecase
func NewRuleUsecase(
	ruleRepo repository.RuleRepository,
	execRepo repository.ExecutionRepository,
	queueRepo repository.QueuedActionRepository,
	limiter *engine.RateLimiter,
	provider engine.MailProvider,
	accounts MailAccountProvider,
) RuleUsecase {
	return &ruleUsecase{
		ruleRepo:  ruleRepo,
		execRepo:  execRepo,
		validator: NewRuleValidator(ruleRepo),
		evaluator: engine.NewConditionEvaluator(),
		limiter:   limiter,
		executor:  engine.NewSyncActionExecutor(provider, 10*time.Second),
		queue:     engine.NewAsyncActionQueue(queueRepo),
		provider:  provider,
		accounts:  accounts,
	}
}

func (u *ruleUsecase) ProcessEmail(ctx context.Context, userID string, event *emaildomain.EmailEvent, source domain.TriggerSource) (*dto.ProcessResult, error) {
	start := time.Now()
	metrics.EmailsProcessed.WithLabelValues(string(source)).Inc()

	// The per-user lock spans the window check and every write the window
	// counts, closing the check-then-insert race between concurrent passes
	unlock := u.limiter.Lock(userID)
	defer unlock()

	if err := u.limiter.CheckExecutions(userID); err != nil {
		metrics.RateLimitRejections.WithLabelValues("pass").Inc()
		return nil, err
	}

	rules, err := u.ruleRepo.FindByUserID(userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	creds, err := u.accounts.CredentialsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail credentials: %w", err)
	}

	result := &dto.ProcessResult{}
	for _, rule := range rules {
		stop := u.runRule(ctx, rule, creds, event, source, result)
		if stop {
			break
		}
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// runRule evaluates and executes one rule. It never lets a failure escape:
// a panicking or erroring rule is logged and the pass moves on. Returns true
// when a stop_processing action ended the pass
func (u *ruleUsecase) runRule(ctx context.Context, rule *domain.Rule, creds engine.MailCredentials, event *emaildomain.EmailEvent, source domain.TriggerSource, result *dto.ProcessResult) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RuleEngine] rule %s panicked processing message %s: %v", rule.ID, event.MessageID, r)
			stop = false
		}
	}()

	matched, _ := u.evaluator.MatchesAll(rule.Conditions, event)
	if !matched {
		return false
	}
	metrics.RulesMatched.Inc()

	ruleStart := time.Now()
	syncActions, asyncActions := engine.ClassifyActions(rule.Actions)

	// Cohort-level rate limits: a breached cohort is dropped from this rule,
	// recorded as a failure, and evaluation continues
	var limitErrs []string
	var allowedAsync []domain.RuleAction
	for _, action := range asyncActions {
		if err := u.limiter.CheckAction(rule.UserID, action.Type); err != nil {
			metrics.RateLimitRejections.WithLabelValues(string(action.Type)).Inc()
			log.Printf("[RuleEngine] rule %s: %v", rule.ID, err)
			limitErrs = append(limitErrs, err.Error())
			continue
		}
		allowedAsync = append(allowedAsync, action)
	}

	execResult := u.executor.Execute(ctx, creds, syncActions, event)
	for _, action := range execResult.Executed {
		metrics.SyncActionsExecuted.WithLabelValues(string(action.Type)).Inc()
	}

	queueResult := u.queue.Enqueue(allowedAsync, event, rule.ID, rule.UserID)
	for _, action := range queueResult.Queued {
		metrics.AsyncActionsQueued.WithLabelValues(string(action.Type)).Inc()
	}

	// The record is written only after every action outcome is known; a rule
	// with any failed or dropped action is a failed execution
	var failures []string
	failures = append(failures, limitErrs...)
	for _, failed := range execResult.Failed {
		failures = append(failures, fmt.Sprintf("%s failed: %v", failed.Action.Type, failed.Err))
	}
	if len(queueResult.Failed) > 0 {
		failures = append(failures, fmt.Sprintf("failed to enqueue %d action(s)", len(queueResult.Failed)))
	}

	record := &domain.ExecutionRecord{
		RuleID:             rule.ID,
		UserID:             rule.UserID,
		EmailMessageID:     event.MessageID,
		Success:            len(failures) == 0,
		ErrorMessage:       strings.Join(failures, "; "),
		SyncActionsTaken:   actionTypesJSON(execResult.Executed),
		AsyncActionsQueued: actionTypesJSON(queueResult.Queued),
		ExecutionTimeMs:    time.Since(ruleStart).Milliseconds(),
		TriggerSource:      source,
	}
	if err := u.execRepo.Create(record); err != nil {
		log.Printf("[RuleEngine] failed to write execution record for rule %s: %v", rule.ID, err)
	}

	if err := u.ruleRepo.IncrementExecutionStats(rule.ID, time.Now()); err != nil {
		log.Printf("[RuleEngine] failed to bump stats for rule %s: %v", rule.ID, err)
	}

	result.RulesExecuted++
	result.ActionsExecuted += len(execResult.Executed) + len(queueResult.Queued)

	return execResult.StopProcessing
}

func (u *ruleUsecase) ProcessStoredEmail(ctx context.Context, userID, messageID string) (*dto.ProcessResult, error) {
	creds, err := u.accounts.CredentialsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail credentials: %w", err)
	}
	event, err := u.provider.GetEmailByID(ctx, creds.AccessToken, creds.RefreshToken, messageID, creds.OnTokenRefresh)
	if err != nil {
		return nil, errors.New("email not found")
	}
	return u.ProcessEmail(ctx, userID, event, domain.TriggerManual)
}

func (u *ruleUsecase) CreateRule(userID string, req *dto.RuleRequest) (*domain.Rule, error) {
	if violations := u.validator.Validate(userID, req, ""); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	rule := buildRule(userID, req)
	rule.Version = 1

	history := &domain.RuleHistory{
		Version:     1,
		Snapshot:    snapshotJSON(rule),
		TriggerType: domain.HistoryManualCreation,
		ChangedBy:   userID,
	}
	if err := u.ruleRepo.CreateWithHistory(rule, history); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

func (u *ruleUsecase) UpdateRule(userID, ruleID string, req *dto.RuleRequest) (*domain.Rule, error) {
	existing, err := u.ruleRepo.FindByID(ruleID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("rule not found")
	}
	if existing.UserID != userID {
		return nil, errors.New("unauthorized")
	}

	if violations := u.validator.Validate(userID, req, ruleID); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	updated := buildRule(userID, req)
	updated.ID = existing.ID
	updated.Version = existing.Version + 1
	updated.CreatedAt = existing.CreatedAt

	history := &domain.RuleHistory{
		Version:     updated.Version,
		Snapshot:    snapshotJSON(updated),
		TriggerType: domain.HistoryManualUpdate,
		ChangedBy:   userID,
	}
	if err := u.ruleRepo.UpdateWithHistory(updated, history); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return u.ruleRepo.FindByID(ruleID)
}

func (u *ruleUsecase) DeleteRule(userID, ruleID string) error {
	rule, err := u.ruleRepo.FindByID(ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return errors.New("rule not found")
	}
	if rule.UserID != userID {
		return errors.New("unauthorized")
	}
	return u.ruleRepo.Delete(ruleID)
}

func (u *ruleUsecase) GetRule(userID, ruleID string) (*domain.Rule, error) {
	rule, err := u.ruleRepo.FindByID(ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, errors.New("rule not found")
	}
	if rule.UserID != userID {
		return nil, errors.New("unauthorized")
	}
	return rule, nil
}

func (u *ruleUsecase) GetUserRules(userID string, enabledOnly bool) ([]*domain.Rule, error) {
	return u.ruleRepo.FindByUserID(userID, enabledOnly)
}

func (u *ruleUsecase) TestRule(ctx context.Context, userID string, req *dto.TestRuleRequest) (*dto.TestRuleResponse, error) {
	// Count and payload constraints still apply to a dry run, but name
	// uniqueness does not: testing an existing rule is the common case
	violations := u.validator.validateConditions(req.Rule.Conditions)
	violations = append(violations, u.validator.validateActions(req.Rule.Actions)...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	creds, err := u.accounts.CredentialsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail credentials: %w", err)
	}
	event, err := u.provider.GetEmailByID(ctx, creds.AccessToken, creds.RefreshToken, req.EmailMessageID, creds.OnTokenRefresh)
	if err != nil {
		return nil, errors.New("email not found")
	}

	rule := buildRule(userID, &req.Rule)
	matched, perCondition := u.evaluator.MatchesAll(rule.Conditions, event)

	resp := &dto.TestRuleResponse{
		Matches:          matched,
		ConditionResults: make([]dto.ConditionResult, len(rule.Conditions)),
	}
	for i, cond := range rule.Conditions {
		resp.ConditionResults[i] = dto.ConditionResult{
			Field:    string(cond.Field),
			Operator: string(cond.Operator),
			Value:    cond.Value,
			Matched:  perCondition[i],
		}
	}
	if matched {
		resp.ActionsThatWouldExecute = rule.Actions
	}
	return resp, nil
}

func (u *ruleUsecase) GetRuleStats(userID string) (*dto.RuleStats, error) {
	total, enabled, err := u.ruleRepo.CountByUserID(userID)
	if err != nil {
		return nil, err
	}
	execTotal, execSuccess, execFailed, err := u.execRepo.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	active, err := u.ruleRepo.MostActive(userID, 5)
	if err != nil {
		return nil, err
	}

	stats := &dto.RuleStats{
		TotalRules:           total,
		EnabledRules:         enabled,
		TotalExecutions:      execTotal,
		SuccessfulExecutions: execSuccess,
		FailedExecutions:     execFailed,
	}
	for _, rule := range active {
		stats.MostActiveRules = append(stats.MostActiveRules, dto.RuleActivity{
			RuleID:         rule.ID,
			Name:           rule.Name,
			ExecutionCount: rule.ExecutionCount,
		})
	}
	return stats, nil
}

// buildRule converts a validated request into domain rows. Positions follow
// the request ordering
func buildRule(userID string, req *dto.RuleRequest) *domain.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &domain.Rule{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Enabled:     enabled,
	}
	for i, cond := range req.Conditions {
		rule.Conditions = append(rule.Conditions, domain.RuleCondition{
			Position:      i,
			Field:         domain.ConditionField(cond.Field),
			Operator:      domain.ConditionOperator(cond.Operator),
			Value:         cond.Value,
			CaseSensitive: cond.CaseSensitive,
		})
	}
	for i, action := range req.Actions {
		rule.Actions = append(rule.Actions, domain.RuleAction{
			Position:     i,
			Type:         domain.ActionType(action.Type),
			LabelName:    action.LabelName,
			ForwardTo:    action.ForwardTo,
			ReplySubject: action.ReplySubject,
			ReplyBody:    action.ReplyBody,
			WebhookURL:   action.WebhookURL,
		})
	}
	return rule
}

func snapshotJSON(rule *domain.Rule) string {
	snapshot := map[string]interface{}{
		"name":        rule.Name,
		"description": rule.Description,
		"priority":    rule.Priority,
		"enabled":     rule.Enabled,
		"conditions":  rule.Conditions,
		"actions":     rule.Actions,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func actionTypesJSON(actions []domain.RuleAction) string {
	if len(actions) == 0 {
		return "[]"
	}
	types := make([]string, len(actions))
	for i, action := range actions {
		types[i] = string(action.Type)
	}
	data, _ := json.Marshal(types)
	return string(data)
}
