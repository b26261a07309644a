// Package topics implements the routing predicate that decides whether a
// queue is responsible for a task, based on the string labels ("topics")
// attached to the task at submission time.
//
// A queue is configured with a Rule: an operator over a set of topic values.
// Five operators are supported:
//
//   - AllOf   — every rule value is present among the task topics
//   - OneOf   — at least one rule value is present among the task topics
//   - Exactly — the task topics equal the rule values as sets
//   - None    — the task carries no topics at all
//   - Any     — matches unconditionally
//
// A queue configured without any rule is not a topic match for anything; the
// broker treats such queues as fallback targets used only when no
// topic-specific queue matched.
//
// Rules are pure predicates with no side effects, so Matches is safe for
// concurrent use.
package topics
