package topics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/taskbroker/pkg/topics"
)

func TestRule_Matches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		op     topics.Operator
		values []string
		task   []string
		want   bool
	}{
		{"all_of subset", topics.AllOf, []string{"a", "b"}, []string{"a", "b", "c"}, true},
		{"all_of exact", topics.AllOf, []string{"a", "b"}, []string{"a", "b"}, true},
		{"all_of missing value", topics.AllOf, []string{"a", "b"}, []string{"a"}, false},
		{"all_of empty task", topics.AllOf, []string{"a"}, nil, false},
		{"all_of empty rule", topics.AllOf, nil, nil, true},

		{"one_of intersects", topics.OneOf, []string{"a", "b"}, []string{"b", "x"}, true},
		{"one_of disjoint", topics.OneOf, []string{"a", "b"}, []string{"x", "y"}, false},
		{"one_of empty task", topics.OneOf, []string{"a"}, nil, false},

		{"exactly equal sets", topics.Exactly, []string{"a", "b"}, []string{"b", "a"}, true},
		{"exactly task superset", topics.Exactly, []string{"a"}, []string{"a", "b"}, false},
		{"exactly task subset", topics.Exactly, []string{"a", "b"}, []string{"a"}, false},
		{"exactly both empty", topics.Exactly, nil, nil, true},

		{"none empty task", topics.None, nil, nil, true},
		{"none with topic", topics.None, nil, []string{"x"}, false},

		{"any with topics", topics.Any, nil, []string{"x"}, true},
		{"any empty task", topics.Any, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule, err := topics.New(tt.op, tt.values...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.Matches(tt.task))
		})
	}
}

func TestNew_InvalidOperator(t *testing.T) {
	t.Parallel()

	rule, err := topics.New("contains", "a")
	assert.Nil(t, rule)

	var opErr *topics.InvalidOperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, topics.Operator("contains"), opErr.Operator)
}

func TestEffective_LastRuleWins(t *testing.T) {
	t.Parallel()

	t.Run("empty list is fallback", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, topics.Effective(nil))
	})

	t.Run("single rule", func(t *testing.T) {
		t.Parallel()

		rules := []topics.Rule{{Operator: topics.Any}}
		got := topics.Effective(rules)
		require.NotNil(t, got)
		assert.Equal(t, topics.Any, got.Operator)
	})

	t.Run("later entry overrides", func(t *testing.T) {
		t.Parallel()

		rules := []topics.Rule{
			{Operator: topics.Any},
			{Operator: topics.OneOf, Values: []string{"nightly"}},
		}
		got := topics.Effective(rules)
		require.NotNil(t, got)
		assert.Equal(t, topics.OneOf, got.Operator)
		assert.True(t, got.Matches([]string{"nightly"}))
		assert.False(t, got.Matches([]string{"hourly"}))
	})
}
