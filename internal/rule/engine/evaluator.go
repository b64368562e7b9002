package engine

import (
	"regexp"
	"strconv"
	"strings"

	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/internal/rule/domain"
)

// ConditionEvaluator decides whether a single condition matches an email
// event. It is a pure function of its inputs: no state, no side effects
type ConditionEvaluator struct{}

// NewConditionEvaluator creates a new ConditionEvaluator
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// Evaluate applies the condition's operator to the event field it names.
// Invalid regex patterns fail closed (return false); the validator rejects
// them at rule-creation time so this only guards against legacy rows
func (e *ConditionEvaluator) Evaluate(cond domain.RuleCondition, event *emaildomain.EmailEvent) bool {
	if cond.Field == domain.FieldHasAttachment {
		want, err := strconv.ParseBool(cond.Value)
		if err != nil {
			return false
		}
		return event.HasAttachment == want
	}

	values := e.resolveField(cond.Field, event)
	for _, value := range values {
		if e.applyOperator(cond.Operator, value, cond.Value, cond.CaseSensitive) {
			return true
		}
	}
	return false
}

// MatchesAll reports whether every condition matches (logical AND) and
// returns the per-condition outcomes for the dry-run breakdown
func (e *ConditionEvaluator) MatchesAll(conds []domain.RuleCondition, event *emaildomain.EmailEvent) (bool, []bool) {
	matched := true
	results := make([]bool, len(conds))
	for i, cond := range conds {
		results[i] = e.Evaluate(cond, event)
		if !results[i] {
			matched = false
		}
	}
	return matched, results
}

// resolveField maps a condition field to the candidate strings from the
// event; multi-valued fields (to) match if any entry matches
func (e *ConditionEvaluator) resolveField(field domain.ConditionField, event *emaildomain.EmailEvent) []string {
	switch field {
	case domain.FieldFrom:
		// Rule authors write the bare address; match it as well as the raw
		// "Name <addr>" header
		if addr := event.SenderAddress(); addr != event.From {
			return []string{event.From, addr}
		}
		return []string{event.From}
	case domain.FieldTo:
		return event.To
	case domain.FieldSubject:
		return []string{event.Subject}
	case domain.FieldBodyContains:
		body := event.Body
		if body == "" {
			body = event.Snippet
		}
		return []string{body}
	case domain.FieldSenderDomain:
		return []string{event.SenderDomain()}
	default:
		return nil
	}
}

func (e *ConditionEvaluator) applyOperator(op domain.ConditionOperator, value, target string, caseSensitive bool) bool {
	if !caseSensitive && op != domain.OperatorRegex {
		value = strings.ToLower(value)
		target = strings.ToLower(target)
	}

	switch op {
	case domain.OperatorEquals:
		return value == target
	case domain.OperatorNotEquals:
		return value != target
	case domain.OperatorContains:
		return strings.Contains(value, target)
	case domain.OperatorNotContains:
		return !strings.Contains(value, target)
	case domain.OperatorStartsWith:
		return strings.HasPrefix(value, target)
	case domain.OperatorEndsWith:
		return strings.HasSuffix(value, target)
	case domain.OperatorRegex:
		pattern := target
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}
