package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SingleTerm(t *testing.T) {
	result := Parse("markdown")
	require.NotNil(t, result.AST)
	assert.False(t, result.IsLogicalQuery)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{"markdown"}, result.Terms)
	assert.Equal(t, NodeTerm, result.AST.Kind)
	assert.False(t, result.AST.Exact)
}

func TestParse_MultiWordWithoutOperators(t *testing.T) {
	result := Parse("react tutorial notes")
	require.NotNil(t, result.AST)
	assert.False(t, result.IsLogicalQuery)
	assert.Equal(t, []string{"react tutorial notes"}, result.Terms)
}

func TestParse_QuotedLiteral(t *testing.T) {
	result := Parse(`"exact phrase"`)
	require.NotNil(t, result.AST)
	assert.False(t, result.IsLogicalQuery)
	assert.True(t, result.AST.Exact)
	assert.Equal(t, "exact phrase", result.AST.Value)
}

func TestParse_SimpleAnd(t *testing.T) {
	result := Parse("react AND test")
	require.NotNil(t, result.AST)
	assert.True(t, result.IsLogicalQuery)
	require.NoError(t, result.Err)

	assert.Equal(t, NodeAnd, result.AST.Kind)
	assert.Equal(t, "react", result.AST.Left.Value)
	assert.Equal(t, "test", result.AST.Right.Value)
	assert.Equal(t, []string{"react", "test"}, result.Terms)
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		rendered string
	}{
		{
			name:     "AND binds tighter than OR",
			input:    "a AND b OR c",
			rendered: "((a AND b) OR c)",
		},
		{
			name:     "parens override precedence",
			input:    "(react OR vue) AND tutorial",
			rendered: "((react OR vue) AND tutorial)",
		},
		{
			name:     "NOT binds tightest",
			input:    "NOT a AND b",
			rendered: "((NOT a) AND b)",
		},
		{
			name:     "left-associative OR",
			input:    "a OR b OR c",
			rendered: "((a OR b) OR c)",
		},
		{
			name:     "left-associative AND",
			input:    "a AND b AND c",
			rendered: "((a AND b) AND c)",
		},
		{
			name:     "double negation",
			input:    "NOT NOT a",
			rendered: "(NOT (NOT a))",
		},
		{
			name:     "quoted exact term",
			input:    `"unit test" AND go`,
			rendered: `("unit test" AND go)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			require.NoError(t, result.Err)
			assert.True(t, result.IsLogicalQuery)
			assert.Equal(t, tt.rendered, result.AST.String())
		})
	}
}

func TestParse_NestedGroupStructure(t *testing.T) {
	result := Parse("(react OR vue) AND tutorial")
	require.NoError(t, result.Err)

	require.Equal(t, NodeAnd, result.AST.Kind)
	require.Equal(t, NodeOr, result.AST.Left.Kind)
	assert.Equal(t, "react", result.AST.Left.Left.Value)
	assert.Equal(t, "vue", result.AST.Left.Right.Value)
	assert.Equal(t, "tutorial", result.AST.Right.Value)
	assert.Equal(t, []string{"react", "vue", "tutorial"}, result.Terms)
}

func TestParse_CaseInsensitiveOperators(t *testing.T) {
	result := Parse("react and test")
	require.NoError(t, result.Err)
	assert.True(t, result.IsLogicalQuery)
	assert.Equal(t, NodeAnd, result.AST.Kind)

	result = Parse("react or vue")
	require.NoError(t, result.Err)
	assert.Equal(t, NodeOr, result.AST.Kind)
}

func TestParse_QuotedOperatorIsTerm(t *testing.T) {
	result := Parse(`"AND" OR vue`)
	require.NoError(t, result.Err)
	assert.True(t, result.IsLogicalQuery)
	require.Equal(t, NodeOr, result.AST.Kind)
	assert.Equal(t, "AND", result.AST.Left.Value)
	assert.True(t, result.AST.Left.Exact)
}

func TestParse_DegradesOnMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "bare operators", input: "AND OR NOT"},
		{name: "dangling trailing operator", input: "react AND"},
		{name: "dangling leading operator", input: "OR react"},
		{name: "unbalanced open paren", input: "(react AND test"},
		{name: "unbalanced close paren", input: "react AND test)"},
		{name: "trailing tokens", input: "react AND test extra"},
		{name: "empty group", input: "() AND react"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			require.NotNil(t, result.AST)
			assert.False(t, result.IsLogicalQuery)
			assert.Error(t, result.Err)
			// Degraded query searches the raw string as a single literal term
			assert.Equal(t, NodeTerm, result.AST.Kind)
			assert.Equal(t, strings.TrimSpace(tt.input), result.AST.Value)
			assert.Equal(t, []string{strings.TrimSpace(tt.input)}, result.Terms)
		})
	}
}

func TestParse_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		result := Parse(input)
		assert.Nil(t, result.AST)
		assert.False(t, result.IsLogicalQuery)
		assert.NoError(t, result.Err)
		assert.Empty(t, result.Terms)
	}
}

type testItem struct {
	name    string
	content string
}

func matchTestItem(term string, item testItem, exact bool) bool {
	haystack := strings.ToLower(item.name + " " + item.content)
	return strings.Contains(haystack, strings.ToLower(term))
}

func TestEvaluate(t *testing.T) {
	item := testItem{name: "react-tutorial.md", content: "...React tutorial..."}

	tests := []struct {
		name     string
		node     *Node
		expected bool
	}{
		{
			name:     "and of two matching terms",
			node:     And(Term("react", false), Term("tutorial", false)),
			expected: true,
		},
		{
			name:     "and with one missing term",
			node:     And(Term("react", false), Term("angular", false)),
			expected: false,
		},
		{
			name:     "or with one matching term",
			node:     Or(Term("angular", false), Term("react", false)),
			expected: true,
		},
		{
			name:     "not of missing term",
			node:     Not(Term("angular", false)),
			expected: true,
		},
		{
			name:     "not of matching term",
			node:     Not(Term("react", false)),
			expected: false,
		},
		{
			name:     "nested group",
			node:     And(Or(Term("vue", false), Term("react", false)), Term("tutorial", false)),
			expected: true,
		},
		{
			name:     "nil node",
			node:     nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.node, item, matchTestItem))
		})
	}
}

func TestEvaluate_ShortCircuitOrder(t *testing.T) {
	var seen []string
	recorder := func(term string, _ testItem, _ bool) bool {
		seen = append(seen, term)
		return term == "hit"
	}

	// Right side of OR must not be visited once the left matched
	node := Or(Term("hit", false), Term("skipped", false))
	assert.True(t, Evaluate(node, testItem{}, recorder))
	assert.Equal(t, []string{"hit"}, seen)

	// AND stops after the first miss
	seen = nil
	node = And(Term("miss", false), Term("skipped", false))
	assert.False(t, Evaluate(node, testItem{}, recorder))
	assert.Equal(t, []string{"miss"}, seen)
}

func TestExtractTerms_DepthFirst(t *testing.T) {
	node := And(Or(Term("a", false), Not(Term("b", false))), Term("c", true))
	assert.Equal(t, []string{"a", "b", "c"}, ExtractTerms(node))
	assert.Nil(t, ExtractTerms(nil))
}

func TestParse_RoundTripThroughString(t *testing.T) {
	inputs := []string{
		"(react OR vue) AND tutorial",
		"NOT draft AND published",
		`"design doc" OR rfc`,
	}
	for _, input := range inputs {
		first := Parse(input)
		require.NoError(t, first.Err)
		second := Parse(first.AST.String())
		require.NoError(t, second.Err)
		assert.Equal(t, first.AST.String(), second.AST.String())
	}
}
