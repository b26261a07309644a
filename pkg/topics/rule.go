package topics

import "slices"

// Operator identifies how a rule's values are compared against task topics.
type Operator string

const (
	// AllOf matches when every rule value appears among the task topics.
	AllOf Operator = "all_of"
	// OneOf matches when the rule values and the task topics intersect.
	OneOf Operator = "one_of"
	// Exactly matches when the task topics equal the rule values as sets.
	Exactly Operator = "exactly"
	// None matches only tasks that carry no topics at all.
	None Operator = "none"
	// Any matches unconditionally.
	Any Operator = "any"
)

// Valid reports whether the operator is one of the supported five.
func (op Operator) Valid() bool {
	switch op {
	case AllOf, OneOf, Exactly, None, Any:
		return true
	}
	return false
}

// Rule is a topic-matching predicate configured on a queue.
// The zero value is not usable; construct rules with New.
type Rule struct {
	Operator Operator `json:"operator" yaml:"operator"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// New creates a rule with the given operator and values.
func New(op Operator, values ...string) (*Rule, error) {
	if !op.Valid() {
		return nil, &InvalidOperatorError{Operator: op}
	}
	return &Rule{Operator: op, Values: values}, nil
}

// Matches evaluates the rule against the topics attached to a task.
// Unknown operators never match.
func (r *Rule) Matches(taskTopics []string) bool {
	switch r.Operator {
	case AllOf:
		for _, v := range r.Values {
			if !slices.Contains(taskTopics, v) {
				return false
			}
		}
		return true
	case OneOf:
		for _, v := range r.Values {
			if slices.Contains(taskTopics, v) {
				return true
			}
		}
		return false
	case Exactly:
		for _, v := range r.Values {
			if !slices.Contains(taskTopics, v) {
				return false
			}
		}
		for _, t := range taskTopics {
			if !slices.Contains(r.Values, t) {
				return false
			}
		}
		return true
	case None:
		return len(taskTopics) == 0
	case Any:
		return true
	}
	return false
}

// Effective returns the rule that wins when a queue carries several rule
// entries: the last one. Rules are not merged; a later entry overrides
// everything before it. Returns nil for an empty list, which marks the
// queue as a fallback target.
func Effective(rules []Rule) *Rule {
	if len(rules) == 0 {
		return nil
	}
	return &rules[len(rules)-1]
}
