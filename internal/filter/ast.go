// Package filter implements the query language used by the filter catalog:
// a small pipeline language over JSON values with property paths, function
// calls, operators, and named parameter placeholders.
package filter

import "fmt"

// Limits on accepted expressions. Catalog entries are small; anything beyond
// these bounds is rejected as malformed rather than evaluated.
const (
	MaxDepth = 32
	MaxNodes = 10000
)

// Node is one AST node.
type Node interface {
	node()
}

// Pipe chains stages left to right; each stage receives the previous
// stage's output as its input value.
type Pipe struct {
	Stages []Node
}

// PathSeg is one step of a property path: a field name or an array index.
type PathSeg struct {
	Field string
	Index int
	IsIdx bool
}

// Path is a property access rooted at the current value. An empty segment
// list is the identity path ".".
type Path struct {
	Segs []PathSeg
}

// Literal is a constant: string, float64, bool, or nil.
type Literal struct {
	Value any
}

// Array is an array literal.
type Array struct {
	Elems []Node
}

// Object is an object literal with ordered keys.
type Object struct {
	Keys   []string
	Values []Node
}

// Param is a named placeholder written {name}. Parameters are bound to
// literal values before evaluation; evaluating an unbound parameter is an
// error.
type Param struct {
	Name string
}

// Call is a function invocation.
type Call struct {
	Name string
	Args []Node
}

// Unary is a prefix operator: "-" or "not".
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator. Op is one of the comparison, membership,
// arithmetic, or logical operators.
type Binary struct {
	Op   string
	L, R Node
}

func (*Pipe) node()    {}
func (*Path) node()    {}
func (*Literal) node() {}
func (*Array) node()   {}
func (*Object) node()  {}
func (*Param) node()   {}
func (*Call) node()    {}
func (*Unary) node()   {}
func (*Binary) node()  {}

// Walk visits every node in the tree, depth first.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch t := n.(type) {
	case *Pipe:
		for _, s := range t.Stages {
			Walk(s, visit)
		}
	case *Array:
		for _, e := range t.Elems {
			Walk(e, visit)
		}
	case *Object:
		for _, v := range t.Values {
			Walk(v, visit)
		}
	case *Call:
		for _, a := range t.Args {
			Walk(a, visit)
		}
	case *Unary:
		Walk(t.X, visit)
	case *Binary:
		Walk(t.L, visit)
		Walk(t.R, visit)
	}
}

// Params returns the distinct parameter names referenced by the tree, in
// first-appearance order.
func Params(n Node) []string {
	seen := map[string]bool{}
	var names []string
	Walk(n, func(n Node) {
		if p, ok := n.(*Param); ok && !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	})
	return names
}

// Bind replaces every parameter node with a literal carrying its value.
// Unknown provided names are ignored; a parameter left unbound is reported.
func Bind(n Node, values map[string]any) (Node, error) {
	var missing []string
	out := rewrite(n, func(n Node) Node {
		p, ok := n.(*Param)
		if !ok {
			return n
		}
		v, ok := values[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			return n
		}
		return &Literal{Value: v}
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("unbound parameters: %v", missing)
	}
	return out, nil
}

// rewrite rebuilds the tree bottom-up, applying f to every node.
func rewrite(n Node, f func(Node) Node) Node {
	switch t := n.(type) {
	case *Pipe:
		stages := make([]Node, len(t.Stages))
		for i, s := range t.Stages {
			stages[i] = rewrite(s, f)
		}
		return f(&Pipe{Stages: stages})
	case *Array:
		elems := make([]Node, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = rewrite(e, f)
		}
		return f(&Array{Elems: elems})
	case *Object:
		values := make([]Node, len(t.Values))
		for i, v := range t.Values {
			values[i] = rewrite(v, f)
		}
		return f(&Object{Keys: t.Keys, Values: values})
	case *Call:
		args := make([]Node, len(t.Args))
		for i, a := range t.Args {
			args[i] = rewrite(a, f)
		}
		return f(&Call{Name: t.Name, Args: args})
	case *Unary:
		return f(&Unary{Op: t.Op, X: rewrite(t.X, f)})
	case *Binary:
		return f(&Binary{Op: t.Op, L: rewrite(t.L, f), R: rewrite(t.R, f)})
	default:
		return f(n)
	}
}
