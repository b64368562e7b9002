package usecase

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"mailpilot-backend/internal/rule/domain"
	"mailpilot-backend/internal/rule/dto"
	"mailpilot-backend/internal/rule/engine"
	"mailpilot-backend/internal/rule/repository"
)

const (
	maxConditionsPerRule = 10
	maxActionsPerRule    = 5
	maxRulesPerUser      = 50
)

// RuleValidator performs structural and cross-field validation of a rule
// request before anything is persisted. All violations are collected and
// returned together, not fail-fast
type RuleValidator struct {
	rules repository.RuleRepository
}

// NewRuleValidator creates a RuleValidator that checks per-user constraints
// against the rule store
func NewRuleValidator(rules repository.RuleRepository) *RuleValidator {
	return &RuleValidator{rules: rules}
}

// Validate returns the full list of violations for a create/update request.
// excludeRuleID is the rule being updated ("" for create) so the name
// uniqueness check ignores the rule itself
func (v *RuleValidator) Validate(userID string, req *dto.RuleRequest, excludeRuleID string) []string {
	var violations []string

	if strings.TrimSpace(req.Name) == "" {
		violations = append(violations, "rule name is required")
	} else {
		exists, err := v.rules.NameExists(userID, req.Name, excludeRuleID)
		if err == nil && exists {
			violations = append(violations, fmt.Sprintf("a rule named %q already exists", req.Name))
		}
	}

	if excludeRuleID == "" {
		total, _, err := v.rules.CountByUserID(userID)
		if err == nil && total >= maxRulesPerUser {
			violations = append(violations, fmt.Sprintf("rule limit reached: at most %d rules per user", maxRulesPerUser))
		}
	}

	violations = append(violations, v.validateConditions(req.Conditions)...)
	violations = append(violations, v.validateActions(req.Actions)...)

	return violations
}

func (v *RuleValidator) validateConditions(conds []dto.ConditionRequest) []string {
	var violations []string

	if len(conds) == 0 {
		violations = append(violations, "at least one condition is required")
	}
	if len(conds) > maxConditionsPerRule {
		violations = append(violations, fmt.Sprintf("too many conditions: %d (maximum %d)", len(conds), maxConditionsPerRule))
	}

	seen := make(map[string]bool)
	for i, cond := range conds {
		field := domain.ConditionField(cond.Field)
		operator := domain.ConditionOperator(cond.Operator)

		if !isKnownField(field) {
			violations = append(violations, fmt.Sprintf("condition %d: unknown field %q", i+1, cond.Field))
		}
		if !isKnownOperator(operator) {
			violations = append(violations, fmt.Sprintf("condition %d: unknown operator %q", i+1, cond.Operator))
		}
		if cond.Value == "" {
			violations = append(violations, fmt.Sprintf("condition %d: value must not be empty", i+1))
		}

		key := cond.Field + "|" + cond.Operator
		if seen[key] {
			violations = append(violations, fmt.Sprintf("duplicate condition: field %q with operator %q appears more than once", cond.Field, cond.Operator))
		}
		seen[key] = true

		// The evaluator fails closed on bad patterns, so reject them here
		if operator == domain.OperatorRegex && cond.Value != "" {
			if _, err := regexp.Compile(cond.Value); err != nil {
				violations = append(violations, fmt.Sprintf("condition %d: invalid regex pattern: %v", i+1, err))
			}
		}
	}

	return violations
}

func (v *RuleValidator) validateActions(actions []dto.ActionRequest) []string {
	var violations []string

	if len(actions) == 0 {
		violations = append(violations, "at least one action is required")
	}
	if len(actions) > maxActionsPerRule {
		violations = append(violations, fmt.Sprintf("too many actions: %d (maximum %d)", len(actions), maxActionsPerRule))
	}

	forwardCount, replyCount := 0, 0
	for i, action := range actions {
		actionType := domain.ActionType(action.Type)
		if !engine.IsKnownActionType(actionType) {
			violations = append(violations, fmt.Sprintf("action %d: unknown type %q", i+1, action.Type))
			continue
		}

		switch actionType {
		case domain.ActionForward:
			forwardCount++
			if action.ForwardTo == "" {
				violations = append(violations, fmt.Sprintf("action %d: forward requires forward_to_email", i+1))
			} else if _, err := mail.ParseAddress(action.ForwardTo); err != nil {
				violations = append(violations, fmt.Sprintf("action %d: invalid forward address %q", i+1, action.ForwardTo))
			}
		case domain.ActionReply:
			replyCount++
			if strings.TrimSpace(action.ReplyBody) == "" {
				violations = append(violations, fmt.Sprintf("action %d: reply requires a non-empty body", i+1))
			}
		case domain.ActionWebhook:
			if action.WebhookURL == "" {
				violations = append(violations, fmt.Sprintf("action %d: webhook requires webhook_url", i+1))
			} else if u, err := url.Parse(action.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				violations = append(violations, fmt.Sprintf("action %d: webhook_url must be a valid http(s) URL", i+1))
			}
		case domain.ActionAddLabel, domain.ActionRemoveLabel:
			if strings.TrimSpace(action.LabelName) == "" {
				violations = append(violations, fmt.Sprintf("action %d: %s requires label_name", i+1, action.Type))
			}
		}
	}

	if forwardCount > 1 {
		violations = append(violations, fmt.Sprintf("at most one forward action per rule (found %d)", forwardCount))
	}
	if replyCount > 1 {
		violations = append(violations, fmt.Sprintf("at most one reply action per rule (found %d)", replyCount))
	}

	return violations
}

func isKnownField(f domain.ConditionField) bool {
	for _, known := range domain.KnownFields() {
		if f == known {
			return true
		}
	}
	return false
}

func isKnownOperator(op domain.ConditionOperator) bool {
	for _, known := range domain.KnownOperators() {
		if op == known {
			return true
		}
	}
	return false
}
