package repository

import (
	"time"

	"mailpilot-backend/internal/rule/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRuleRepository implements RuleRepository using GORM
type gormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository creates a new GORM-based RuleRepository
func NewGormRuleRepository(db *gorm.DB) RuleRepository {
	return &gormRuleRepository{db: db}
}

func (r *gormRuleRepository) CreateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error {
	now := time.Now()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	stampChildIDs(rule)

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rule).Error; err != nil {
			return err
		}
		if history.ID == "" {
			history.ID = uuid.New().String()
		}
		history.RuleID = rule.ID
		history.CreatedAt = now
		return tx.Create(history).Error
	})
}

func (r *gormRuleRepository) UpdateWithHistory(rule *domain.Rule, history *domain.RuleHistory) error {
	now := time.Now()
	rule.UpdatedAt = now
	stampChildIDs(rule)

	return r.db.Transaction(func(tx *gorm.DB) error {
		// Replace owned rows wholesale; positions carry the new ordering
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&domain.RuleCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&domain.RuleAction{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Rule{}).Where("id = ?", rule.ID).Updates(map[string]interface{}{
			"name":        rule.Name,
			"description": rule.Description,
			"priority":    rule.Priority,
			"enabled":     rule.Enabled,
			"version":     rule.Version,
			"updated_at":  now,
		}).Error; err != nil {
			return err
		}
		if len(rule.Conditions) > 0 {
			if err := tx.Create(&rule.Conditions).Error; err != nil {
				return err
			}
		}
		if len(rule.Actions) > 0 {
			if err := tx.Create(&rule.Actions).Error; err != nil {
				return err
			}
		}
		if history.ID == "" {
			history.ID = uuid.New().String()
		}
		history.RuleID = rule.ID
		history.CreatedAt = now
		return tx.Create(history).Error
	})
}

func (r *gormRuleRepository) FindByID(id string) (*domain.Rule, error) {
	var rule domain.Rule
	err := r.db.
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *gormRuleRepository) FindByUserID(userID string, enabledOnly bool) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	query := r.db.
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID)
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	err := query.Order("priority DESC, created_at ASC").Find(&rules).Error
	return rules, err
}

func (r *gormRuleRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", id).Delete(&domain.RuleCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rule_id = ?", id).Delete(&domain.RuleAction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Rule{}, "id = ?", id).Error
	})
}

func (r *gormRuleRepository) CountByUserID(userID string) (int64, int64, error) {
	var total, enabled int64
	if err := r.db.Model(&domain.Rule{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.Model(&domain.Rule{}).Where("user_id = ? AND enabled = ?", userID, true).Count(&enabled).Error; err != nil {
		return 0, 0, err
	}
	return total, enabled, nil
}

func (r *gormRuleRepository) NameExists(userID, name, excludeRuleID string) (bool, error) {
	var count int64
	query := r.db.Model(&domain.Rule{}).Where("user_id = ? AND name = ?", userID, name)
	if excludeRuleID != "" {
		query = query.Where("id != ?", excludeRuleID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRuleRepository) IncrementExecutionStats(ruleID string, at time.Time) error {
	return r.db.Model(&domain.Rule{}).Where("id = ?", ruleID).
		UpdateColumns(map[string]interface{}{
			"execution_count":  gorm.Expr("execution_count + ?", 1),
			"last_executed_at": at,
		}).Error
}

func (r *gormRuleRepository) MostActive(userID string, limit int) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	err := r.db.Where("user_id = ? AND execution_count > 0", userID).
		Order("execution_count DESC").Limit(limit).Find(&rules).Error
	return rules, err
}

// stampChildIDs assigns ids and positions to owned condition/action rows
func stampChildIDs(rule *domain.Rule) {
	for i := range rule.Conditions {
		if rule.Conditions[i].ID == "" {
			rule.Conditions[i].ID = uuid.New().String()
		}
		rule.Conditions[i].RuleID = rule.ID
		rule.Conditions[i].Position = i
	}
	for i := range rule.Actions {
		if rule.Actions[i].ID == "" {
			rule.Actions[i].ID = uuid.New().String()
		}
		rule.Actions[i].RuleID = rule.ID
		rule.Actions[i].Position = i
	}
}

// gormExecutionRepository implements ExecutionRepository using GORM
type gormExecutionRepository struct {
	db *gorm.DB
}

// NewGormExecutionRepository creates a new GORM-based ExecutionRepository
func NewGormExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &gormExecutionRepository{db: db}
}

func (r *gormExecutionRepository) Create(record *domain.ExecutionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return r.db.Create(record).Error
}

func (r *gormExecutionRepository) CountSuccessfulSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.ExecutionRecord{}).
		Where("user_id = ? AND success = ? AND created_at >= ?", userID, true, since).
		Count(&count).Error
	return count, err
}

func (r *gormExecutionRepository) CountByUser(userID string) (int64, int64, int64, error) {
	var total, successful int64
	if err := r.db.Model(&domain.ExecutionRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, 0, 0, err
	}
	if err := r.db.Model(&domain.ExecutionRecord{}).Where("user_id = ? AND success = ?", userID, true).Count(&successful).Error; err != nil {
		return 0, 0, 0, err
	}
	return total, successful, total - successful, nil
}

// gormQueuedActionRepository implements QueuedActionRepository using GORM
type gormQueuedActionRepository struct {
	db *gorm.DB
}

// NewGormQueuedActionRepository creates a new GORM-based QueuedActionRepository
func NewGormQueuedActionRepository(db *gorm.DB) QueuedActionRepository {
	return &gormQueuedActionRepository{db: db}
}

func (r *gormQueuedActionRepository) Create(action *domain.QueuedAction) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	now := time.Now()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	action.Status = domain.QueuedStatusPending
	return r.db.Create(action).Error
}

func (r *gormQueuedActionRepository) CountByTypeSince(userID string, actionType domain.ActionType, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.QueuedAction{}).
		Where("user_id = ? AND action_type = ? AND created_at >= ? AND status != ?",
			userID, actionType, since, domain.QueuedStatusFailed).
		Count(&count).Error
	return count, err
}

func (r *gormQueuedActionRepository) ClaimPending(limit int) ([]*domain.QueuedAction, error) {
	var claimed []*domain.QueuedAction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Row locks keep concurrent workers from claiming the same rows
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.QueuedStatusPending).
			Order("created_at ASC").Limit(limit).Find(&claimed).Error; err != nil {
			return err
		}
		for _, action := range claimed {
			action.Status = domain.QueuedStatusProcessing
			action.Attempts++
			if err := tx.Model(&domain.QueuedAction{}).Where("id = ?", action.ID).
				Updates(map[string]interface{}{
					"status":     domain.QueuedStatusProcessing,
					"attempts":   action.Attempts,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *gormQueuedActionRepository) MarkCompleted(id string) error {
	return r.db.Model(&domain.QueuedAction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.QueuedStatusCompleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormQueuedActionRepository) MarkFailed(id string, errMsg string, retryable bool) error {
	status := domain.QueuedStatusFailed
	if retryable {
		status = domain.QueuedStatusPending
	}
	return r.db.Model(&domain.QueuedAction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		}).Error
}
