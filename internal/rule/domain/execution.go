package domain

import "time"

// TriggerSource says what caused a rule evaluation
type TriggerSource string

const (
	TriggerSync   TriggerSource = "sync"
	TriggerManual TriggerSource = "manual"
	TriggerTest   TriggerSource = "test"
)

// QueuedActionStatus is the lifecycle of a durably queued async action
type QueuedActionStatus string

const (
	QueuedStatusPending    QueuedActionStatus = "pending"
	QueuedStatusProcessing QueuedActionStatus = "processing"
	QueuedStatusCompleted  QueuedActionStatus = "completed"
	QueuedStatusFailed     QueuedActionStatus = "failed"
)

// HistoryTriggerType says what produced a rule history version
type HistoryTriggerType string

const (
	HistoryManualCreation HistoryTriggerType = "manual_creation"
	HistoryManualUpdate   HistoryTriggerType = "manual_update"
)

// ExecutionRecord is one append-only audit row per rule match per email.
// It is never mutated after creation; rate limiting, stats and the dry-run
// path all read from these rows
type ExecutionRecord struct {
	ID                 string        `json:"id" gorm:"primaryKey"`
	RuleID             string        `json:"rule_id" gorm:"index;not null"`
	UserID             string        `json:"user_id" gorm:"index;not null"`
	EmailMessageID     string        `json:"email_message_id" gorm:"index"`
	Success            bool          `json:"success"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	SyncActionsTaken   string        `json:"sync_actions_taken,omitempty" gorm:"type:text"`   // JSON array of action types
	AsyncActionsQueued string        `json:"async_actions_queued,omitempty" gorm:"type:text"` // JSON array of action types
	ExecutionTimeMs    int64         `json:"execution_time_ms"`
	TriggerSource      TriggerSource `json:"trigger_source" gorm:"default:sync"`
	CreatedAt          time.Time     `json:"created_at" gorm:"index"`
}

// QueuedAction is one durable row per async action awaiting the worker.
// The engine only creates pending rows; the worker owns every transition
type QueuedAction struct {
	ID             string             `json:"id" gorm:"primaryKey"`
	RuleID         string             `json:"rule_id" gorm:"index;not null"`
	UserID         string             `json:"user_id" gorm:"index;not null"`
	EmailMessageID string             `json:"email_message_id"`
	EmailThreadID  string             `json:"email_thread_id"`
	ActionType     ActionType         `json:"action_type" gorm:"not null"`
	ForwardTo      string             `json:"forward_to_email,omitempty"`
	ReplySubject   string             `json:"reply_subject,omitempty"`
	ReplyBody      string             `json:"reply_body,omitempty"`
	WebhookURL     string             `json:"webhook_url,omitempty"`
	Status         QueuedActionStatus `json:"status" gorm:"default:pending;index"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	Attempts       int                `json:"attempts" gorm:"default:0"`
	CreatedAt      time.Time          `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// RuleHistory is an append-only version snapshot of a rule. Every structural
// change to a rule produces exactly one new version
type RuleHistory struct {
	ID          string             `json:"id" gorm:"primaryKey"`
	RuleID      string             `json:"rule_id" gorm:"index;not null"`
	Version     int                `json:"version" gorm:"not null"`
	Snapshot    string             `json:"snapshot" gorm:"type:text"` // JSON of name/description/conditions/actions
	TriggerType HistoryTriggerType `json:"trigger_type"`
	ChangedBy   string             `json:"changed_by"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (ExecutionRecord) TableName() string { return "rule_executions" }
func (QueuedAction) TableName() string    { return "queued_actions" }
func (RuleHistory) TableName() string     { return "rule_history" }
