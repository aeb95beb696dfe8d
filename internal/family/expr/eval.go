package expr

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	dErrors "cradle/pkg/domain-errors"
)

// FieldSource is anything that can resolve named fields.
type FieldSource interface {
	FieldValue(name string) (any, bool)
}

// Eval evaluates p against doc. Field accesses must be bound to p's own
// parameter; a tree that still references another variable fails.
func Eval[T FieldSource](p Predicate[T], doc T) (bool, error) {
	if err := validate(p.lambda); err != nil {
		return false, err
	}
	e := evaluator{param: p.lambda.Param, doc: doc}
	return e.boolean(p.lambda.Body)
}

// Apply evaluates projection p against doc, keyed by field name.
func Apply[T FieldSource](p Projection[T], doc T) (map[string]any, error) {
	if err := validate(p.lambda); err != nil {
		return nil, err
	}
	tuple, ok := p.lambda.Body.(*Tuple)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "projection body must be a field list")
	}
	e := evaluator{param: p.lambda.Param, doc: doc}
	out := make(map[string]any, len(tuple.Items))
	for _, item := range tuple.Items {
		f, ok := item.(*Field)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("projection item %s is not a field", format(item)))
		}
		v, err := e.value(f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

type evaluator struct {
	param *Param
	doc   FieldSource
}

func (e evaluator) boolean(n Node) (bool, error) {
	v, err := e.value(n)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("%s is not a boolean", format(n)))
	}
	return b, nil
}

func (e evaluator) value(n Node) (any, error) {
	switch n := n.(type) {
	case *Const:
		return n.Value, nil
	case *Field:
		param, ok := n.Target.(*Param)
		if !ok || param != e.param {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("field %s is not bound to %s", format(n), e.param.Name))
		}
		v, ok := e.doc.FieldValue(n.Name)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("%s has no field %q", e.param.Type, n.Name))
		}
		return v, nil
	case *Compare:
		left, err := e.value(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.value(n.Right)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, left, right)
	case *Logical:
		switch n.Op {
		case OpAnd:
			for _, t := range n.Terms {
				b, err := e.boolean(t)
				if err != nil || !b {
					return false, err
				}
			}
			return true, nil
		case OpOr:
			for _, t := range n.Terms {
				b, err := e.boolean(t)
				if err != nil || b {
					return b, err
				}
			}
			return false, nil
		}
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "unknown logical operator "+string(n.Op))
	case *Not:
		b, err := e.boolean(n.Term)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case *Param:
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "a bare parameter has no value")
	case nil:
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "expression contains an empty node")
	}
	return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("cannot evaluate %T", n))
}

func compare(op Op, left, right any) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right), nil
	case OpNe:
		return !equal(left, right), nil
	case OpIn:
		rv := reflect.ValueOf(right)
		if rv.Kind() != reflect.Slice {
			return false, dErrors.New(dErrors.CodeInvalidExpression, "in requires a list of values")
		}
		for i := 0; i < rv.Len(); i++ {
			if equal(left, rv.Index(i).Interface()) {
				return true, nil
			}
		}
		return false, nil
	case OpLt, OpLte, OpGt, OpGte:
		c, ok, err := order(left, right)
		if err != nil || !ok {
			return false, err
		}
		switch op {
		case OpLt:
			return c < 0, nil
		case OpLte:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return false, dErrors.New(dErrors.CodeInvalidExpression, "unknown operator "+string(op))
}

func equal(a, b any) bool {
	na, nb := Normalize(a), Normalize(b)
	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	if !reflect.TypeOf(na).Comparable() || reflect.TypeOf(na) != reflect.TypeOf(nb) {
		return false
	}
	return na == nb
}

// order compares two values. ok is false when either side is nil.
func order(a, b any) (int, bool, error) {
	na, nb := Normalize(a), Normalize(b)
	if na == nil || nb == nil {
		return 0, false, nil
	}
	switch x := na.(type) {
	case string:
		if y, ok := nb.(string); ok {
			return strings.Compare(x, y), true, nil
		}
	case float64:
		if y, ok := nb.(float64); ok {
			switch {
			case x < y:
				return -1, true, nil
			case x > y:
				return 1, true, nil
			}
			return 0, true, nil
		}
	case time.Time:
		if y, ok := nb.(time.Time); ok {
			return x.Compare(y), true, nil
		}
	}
	return 0, false, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("cannot order %T and %T", a, b))
}

// Normalize folds named string types to string, numbers to float64 and
// pointers to their element so values from documents and constants compare
// alike. Stores use it to encode constants.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return v
}

// CompareValues orders two field values for sorting. nil sorts first and
// values that cannot be ordered against each other compare equal.
func CompareValues(a, b any) int {
	if Normalize(a) == nil || Normalize(b) == nil {
		switch {
		case Normalize(a) == nil && Normalize(b) == nil:
			return 0
		case Normalize(a) == nil:
			return -1
		}
		return 1
	}
	c, ok, err := order(a, b)
	if err != nil || !ok {
		return 0
	}
	return c
}
