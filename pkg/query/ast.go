package query

import (
	"fmt"
	"strings"
)

// NodeKind identifies the type of a query AST node
type NodeKind int

const (
	// NodeTerm is a leaf search term
	NodeTerm NodeKind = iota
	// NodeAnd is a binary conjunction
	NodeAnd
	// NodeOr is a binary disjunction
	NodeOr
	// NodeNot is a unary negation
	NodeNot
)

func (k NodeKind) String() string {
	switch k {
	case NodeTerm:
		return "term"
	case NodeAnd:
		return "and"
	case NodeOr:
		return "or"
	case NodeNot:
		return "not"
	default:
		return "unknown"
	}
}

// Node is an immutable query AST node. Term nodes carry Value and Exact;
// And/Or nodes carry Left and Right; Not nodes carry Child.
type Node struct {
	Kind  NodeKind
	Value string // Kind == NodeTerm
	Exact bool   // Kind == NodeTerm: quoted exact-match term
	Left  *Node  // Kind == NodeAnd, NodeOr
	Right *Node  // Kind == NodeAnd, NodeOr
	Child *Node  // Kind == NodeNot
}

// Term creates a term leaf node
func Term(value string, exact bool) *Node {
	return &Node{Kind: NodeTerm, Value: value, Exact: exact}
}

// And creates a conjunction node
func And(left, right *Node) *Node {
	return &Node{Kind: NodeAnd, Left: left, Right: right}
}

// Or creates a disjunction node
func Or(left, right *Node) *Node {
	return &Node{Kind: NodeOr, Left: left, Right: right}
}

// Not creates a negation node
func Not(child *Node) *Node {
	return &Node{Kind: NodeNot, Child: child}
}

// Evaluate applies matcher at every term leaf and combines results with
// boolean logic at interior nodes. Evaluation order is deterministic
// left-before-right and short-circuits; matchers must be side-effect-free.
func Evaluate[T any](node *Node, item T, matcher func(term string, item T, exact bool) bool) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case NodeTerm:
		return matcher(node.Value, item, node.Exact)
	case NodeAnd:
		return Evaluate(node.Left, item, matcher) && Evaluate(node.Right, item, matcher)
	case NodeOr:
		return Evaluate(node.Left, item, matcher) || Evaluate(node.Right, item, matcher)
	case NodeNot:
		return !Evaluate(node.Child, item, matcher)
	default:
		return false
	}
}

// ExtractTerms returns the literal term values of a tree, depth-first,
// left-to-right
func ExtractTerms(node *Node) []string {
	var terms []string
	collectTerms(node, &terms)
	return terms
}

func collectTerms(node *Node, terms *[]string) {
	if node == nil {
		return
	}
	switch node.Kind {
	case NodeTerm:
		*terms = append(*terms, node.Value)
	case NodeAnd, NodeOr:
		collectTerms(node.Left, terms)
		collectTerms(node.Right, terms)
	case NodeNot:
		collectTerms(node.Child, terms)
	}
}

// String renders a fully parenthesized, operator-explicit reconstruction of
// the tree for diagnostics and golden tests
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case NodeTerm:
		if n.Exact {
			return fmt.Sprintf("%q", n.Value)
		}
		// Quote terms containing whitespace so output re-tokenizes cleanly
		if strings.ContainsAny(n.Value, " \t") {
			return fmt.Sprintf("%q", n.Value)
		}
		return n.Value
	case NodeAnd:
		return fmt.Sprintf("(%s AND %s)", n.Left.String(), n.Right.String())
	case NodeOr:
		return fmt.Sprintf("(%s OR %s)", n.Left.String(), n.Right.String())
	case NodeNot:
		return fmt.Sprintf("(NOT %s)", n.Child.String())
	default:
		return ""
	}
}
