package expr

import (
	"fmt"

	dErrors "cradle/pkg/domain-errors"
)

// Validate reports whether l is a well-formed lambda. Store translators call
// it before walking the tree.
func Validate(l Lambda) error {
	return validate(l)
}

// FieldComparison is a Compare reduced to "field op constant", the only shape
// a database filter can express.
type FieldComparison struct {
	Field string
	Op    Op
	Value any
}

var flipped = map[Op]Op{
	OpEq:  OpEq,
	OpNe:  OpNe,
	OpLt:  OpGt,
	OpLte: OpGte,
	OpGt:  OpLt,
	OpGte: OpLte,
}

// Reduce rewrites c into field-op-constant form. The field must be bound to
// param. A constant on the left is moved right and the operator mirrored.
func Reduce(c *Compare, param *Param) (FieldComparison, error) {
	field, fok := c.Left.(*Field)
	value, vok := c.Right.(*Const)
	op := c.Op
	if !fok || !vok {
		f, fok2 := c.Right.(*Field)
		v, vok2 := c.Left.(*Const)
		mirror, canFlip := flipped[op]
		if !fok2 || !vok2 || !canFlip {
			return FieldComparison{}, dErrors.New(dErrors.CodeInvalidExpression,
				fmt.Sprintf("%s must compare a field with a constant", format(c)))
		}
		field, value, op = f, v, mirror
	}
	if p, ok := field.Target.(*Param); !ok || p != param {
		return FieldComparison{}, dErrors.New(dErrors.CodeInvalidExpression,
			fmt.Sprintf("field %s is not bound to %s", format(field), param.Name))
	}
	return FieldComparison{Field: field.Name, Op: op, Value: value.Value}, nil
}

// IsConstTrue reports whether n is the literal true All builds.
func IsConstTrue(n Node) bool {
	c, ok := n.(*Const)
	if !ok {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b
}
