// Package query implements the boolean search query language.
//
// # Overview
//
// Queries are compiled to an immutable AST of term leaves and AND/OR/NOT
// interior nodes, then evaluated against arbitrary items via a caller-supplied
// matcher predicate. The engine owns no state and is safe for concurrent use
// against the same tree.
//
// # Grammar
//
// Highest to lowest precedence:
//
//	group   := "(" expr ")"
//	not     := "NOT" not | group | term
//	and     := not ("AND" not)*
//	expr    := and ("OR" and)*
//
// Terms are whitespace-delimited; a double-quoted run is a single exact-match
// term. Operator keywords are case-insensitive; any other token is a search
// term, including operator-like text inside quotes.
//
// # Degraded parsing
//
// Parse never hard-fails. Unbalanced parentheses, dangling operators, and
// trailing tokens degrade the whole input to one literal term with the parse
// error attached to the result, so a typoed query still searches for
// something instead of erroring out.
//
// # Usage Example
//
//	result := query.Parse(`(react OR vue) AND tutorial`)
//	ok := query.Evaluate(result.AST, entry, func(term string, e index.Entry, exact bool) bool {
//		return matchEntry(e, term, exact)
//	})
package query
