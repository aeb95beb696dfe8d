package expr

import (
	"fmt"

	dErrors "cradle/pkg/domain-errors"
)

// Retarget rewrites a predicate over From into the equivalent predicate over
// To. The parameter is replaced by a fresh one declared as To and every
// reference to the old parameter is re-bound; all other nodes keep their
// shape and values.
func Retarget[To, From any](p Predicate[From]) (Predicate[To], error) {
	l, err := retargetLambda(p.lambda, TypeName[To]())
	if err != nil {
		return Predicate[To]{}, err
	}
	return Predicate[To]{lambda: l}, nil
}

// RetargetProjection is Retarget for projections.
func RetargetProjection[To, From any](p Projection[From]) (Projection[To], error) {
	l, err := retargetLambda(p.lambda, TypeName[To]())
	if err != nil {
		return Projection[To]{}, err
	}
	return Projection[To]{lambda: l}, nil
}

func retargetLambda(l Lambda, typeName string) (Lambda, error) {
	if err := validate(l); err != nil {
		return Lambda{}, err
	}
	fresh := &Param{Name: l.Param.Name, Type: typeName}
	body, err := rebind(l.Body, l.Param, fresh)
	if err != nil {
		return Lambda{}, err
	}
	return Lambda{Param: fresh, Body: body}, nil
}

func validate(l Lambda) error {
	if l.Body == nil {
		return dErrors.New(dErrors.CodeInvalidExpression, "expression has no body to retarget")
	}
	if l.Param == nil {
		return dErrors.New(dErrors.CodeInvalidExpression, "expression has no parameter")
	}
	return nil
}

// rebind copies n, replacing references to from with to. Params other than
// from are left as they are.
func rebind(n Node, from, to *Param) (Node, error) {
	switch n := n.(type) {
	case *Param:
		if n == from {
			return to, nil
		}
		return n, nil
	case *Field:
		target, err := rebind(n.Target, from, to)
		if err != nil {
			return nil, err
		}
		return &Field{Target: target, Name: n.Name}, nil
	case *Const:
		return n, nil
	case *Compare:
		left, err := rebind(n.Left, from, to)
		if err != nil {
			return nil, err
		}
		right, err := rebind(n.Right, from, to)
		if err != nil {
			return nil, err
		}
		return &Compare{Op: n.Op, Left: left, Right: right}, nil
	case *Logical:
		terms, err := rebindAll(n.Terms, from, to)
		if err != nil {
			return nil, err
		}
		return &Logical{Op: n.Op, Terms: terms}, nil
	case *Not:
		term, err := rebind(n.Term, from, to)
		if err != nil {
			return nil, err
		}
		return &Not{Term: term}, nil
	case *Tuple:
		items, err := rebindAll(n.Items, from, to)
		if err != nil {
			return nil, err
		}
		return &Tuple{Items: items}, nil
	case nil:
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "expression contains an empty node")
	}
	return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("unsupported node %T", n))
}

func rebindAll(nodes []Node, from, to *Param) ([]Node, error) {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		r, err := rebind(n, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
