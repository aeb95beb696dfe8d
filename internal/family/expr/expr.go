// Package expr is a small expression tree for predicates and projections
// over documents.
//
// A tree is a Lambda: one free variable (Param) and a Body built from field
// accesses, constants, comparisons and boolean operators. Predicate[T] and
// Projection[T] carry the declared type of the free variable in their type
// parameter, so a filter written against models.Document can be retargeted to
// *models.Guardian (see Retarget) without touching its logic. Stores walk the
// same tree to build native filters, which is why the tree is data and not a
// Go closure.
package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Node is any element of an expression tree.
type Node interface {
	node()
}

// Param is the free variable of a lambda. Identity matters: a Field is bound
// to the lambda only when its Target is the lambda's own *Param.
type Param struct {
	Name string
	Type string
}

// Field reads a named field from Target.
type Field struct {
	Target Node
	Name   string
}

// Const is a literal value. For OpIn the value is a []any.
type Const struct {
	Value any
}

type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpIn  Op = "in"
)

// Compare applies a binary comparison.
type Compare struct {
	Op    Op
	Left  Node
	Right Node
}

type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
)

// Logical joins boolean terms.
type Logical struct {
	Op    LogicalOp
	Terms []Node
}

// Not negates a boolean term.
type Not struct {
	Term Node
}

// Tuple is the body of a projection: the ordered list of selected fields.
type Tuple struct {
	Items []Node
}

func (*Param) node()   {}
func (*Field) node()   {}
func (*Const) node()   {}
func (*Compare) node() {}
func (*Logical) node() {}
func (*Not) node()     {}
func (*Tuple) node()   {}

// Lambda is a tree over one free variable.
type Lambda struct {
	Param *Param
	Body  Node
}

func (l Lambda) String() string {
	if l.Param == nil {
		return "<invalid>"
	}
	return fmt.Sprintf("(%s %s) => %s", l.Param.Name, l.Param.Type, format(l.Body))
}

// Var is the handle builders receive for the free variable.
type Var struct {
	p *Param
}

// Field accesses a named field of the variable.
func (v Var) Field(name string) Node {
	return &Field{Target: v.p, Name: name}
}

func newParam[T any](name string) *Param {
	return &Param{Name: name, Type: TypeName[T]()}
}

// TypeName returns the declared type name used for a parameter of type T.
func TypeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func Value(v any) Node {
	return &Const{Value: v}
}

func Eq(left, right Node) Node  { return &Compare{Op: OpEq, Left: left, Right: right} }
func Ne(left, right Node) Node  { return &Compare{Op: OpNe, Left: left, Right: right} }
func Lt(left, right Node) Node  { return &Compare{Op: OpLt, Left: left, Right: right} }
func Lte(left, right Node) Node { return &Compare{Op: OpLte, Left: left, Right: right} }
func Gt(left, right Node) Node  { return &Compare{Op: OpGt, Left: left, Right: right} }
func Gte(left, right Node) Node { return &Compare{Op: OpGte, Left: left, Right: right} }

// In matches when left equals any of values.
func In(left Node, values ...any) Node {
	return &Compare{Op: OpIn, Left: left, Right: &Const{Value: values}}
}

func And(terms ...Node) Node { return &Logical{Op: OpAnd, Terms: terms} }
func Or(terms ...Node) Node  { return &Logical{Op: OpOr, Terms: terms} }

func NotOf(term Node) Node {
	return &Not{Term: term}
}

func format(n Node) string {
	switch n := n.(type) {
	case nil:
		return "<nil>"
	case *Param:
		return n.Name
	case *Field:
		return format(n.Target) + "." + n.Name
	case *Const:
		if s, ok := n.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("%v", n.Value)
	case *Compare:
		return fmt.Sprintf("(%s %s %s)", format(n.Left), n.Op, format(n.Right))
	case *Logical:
		parts := make([]string, len(n.Terms))
		for i, t := range n.Terms {
			parts[i] = format(t)
		}
		return "(" + strings.Join(parts, " "+string(n.Op)+" ") + ")"
	case *Not:
		return "not " + format(n.Term)
	case *Tuple:
		parts := make([]string, len(n.Items))
		for i, t := range n.Items {
			parts[i] = format(t)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("<%T>", n)
}
