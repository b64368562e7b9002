package domain

import "time"

// ConditionField identifies which part of an email a condition inspects
type ConditionField string

const (
	FieldFrom          ConditionField = "from"
	FieldTo            ConditionField = "to"
	FieldSubject       ConditionField = "subject"
	FieldBodyContains  ConditionField = "body_contains"
	FieldSenderDomain  ConditionField = "sender_domain"
	FieldHasAttachment ConditionField = "has_attachment"
)

// ConditionOperator is the comparison applied between the field and the value
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorStartsWith  ConditionOperator = "starts_with"
	OperatorEndsWith    ConditionOperator = "ends_with"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorRegex       ConditionOperator = "regex"
)

// ActionType discriminates the action variant. Sync types are applied
// in-process during the evaluation pass; async types are queued
type ActionType string

const (
	// Sync actions
	ActionMarkRead       ActionType = "mark_read"
	ActionMarkUnread     ActionType = "mark_unread"
	ActionArchive        ActionType = "archive"
	ActionDelete         ActionType = "delete"
	ActionAddLabel       ActionType = "add_label"
	ActionRemoveLabel    ActionType = "remove_label"
	ActionStopProcessing ActionType = "stop_processing"

	// Async actions
	ActionForward ActionType = "forward"
	ActionReply   ActionType = "reply"
	ActionWebhook ActionType = "webhook"
)

// KnownFields lists every valid condition field
func KnownFields() []ConditionField {
	return []ConditionField{FieldFrom, FieldTo, FieldSubject, FieldBodyContains, FieldSenderDomain, FieldHasAttachment}
}

// KnownOperators lists every valid condition operator
func KnownOperators() []ConditionOperator {
	return []ConditionOperator{OperatorEquals, OperatorContains, OperatorStartsWith, OperatorEndsWith, OperatorNotEquals, OperatorNotContains, OperatorRegex}
}

// Rule is a user-owned automation definition: an ordered condition list
// (AND semantics) and an ordered action list
type Rule struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	UserID         string          `json:"user_id" gorm:"index;not null;uniqueIndex:idx_rules_user_name"`
	Name           string          `json:"name" gorm:"not null;uniqueIndex:idx_rules_user_name"`
	Description    string          `json:"description,omitempty"`
	Priority       int             `json:"priority" gorm:"default:0;index"`
	Enabled        bool            `json:"enabled" gorm:"default:true"`
	Conditions     []RuleCondition `json:"conditions" gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
	Actions        []RuleAction    `json:"actions" gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
	ExecutionCount int64           `json:"execution_count" gorm:"default:0"`
	LastExecutedAt *time.Time      `json:"last_executed_at,omitempty"`
	Version        int             `json:"version" gorm:"default:1"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RuleCondition is one predicate of a rule. Within one rule the
// (field, operator) pair is unique
type RuleCondition struct {
	ID            string            `json:"id" gorm:"primaryKey"`
	RuleID        string            `json:"rule_id" gorm:"index;not null"`
	Position      int               `json:"position" gorm:"default:0"`
	Field         ConditionField    `json:"field" gorm:"not null"`
	Operator      ConditionOperator `json:"operator" gorm:"not null"`
	Value         string            `json:"value" gorm:"not null"`
	CaseSensitive bool              `json:"case_sensitive" gorm:"default:false"`
}

// RuleAction is one action of a rule. The payload columns are per-variant:
// only the fields required by the action's type are set
type RuleAction struct {
	ID       string     `json:"id" gorm:"primaryKey"`
	RuleID   string     `json:"rule_id" gorm:"index;not null"`
	Position int        `json:"position" gorm:"default:0"`
	Type     ActionType `json:"type" gorm:"not null"`

	// add_label / remove_label
	LabelName string `json:"label_name,omitempty"`
	// forward
	ForwardTo string `json:"forward_to_email,omitempty"`
	// reply
	ReplySubject string `json:"reply_subject,omitempty"`
	ReplyBody    string `json:"reply_body,omitempty"`
	// webhook
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (Rule) TableName() string          { return "rules" }
func (RuleCondition) TableName() string { return "rule_conditions" }
func (RuleAction) TableName() string    { return "rule_actions" }
