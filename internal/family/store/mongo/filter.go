package mongo

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/v2/bson"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

var mongoOps = map[expr.Op]string{
	expr.OpEq:  "$eq",
	expr.OpNe:  "$ne",
	expr.OpLt:  "$lt",
	expr.OpLte: "$lte",
	expr.OpGt:  "$gt",
	expr.OpGte: "$gte",
	expr.OpIn:  "$in",
}

// key maps a document field name onto its BSON key.
func key(field string) string {
	if field == models.FieldID {
		return "_id"
	}
	return field
}

// Filter translates a predicate lambda into a MongoDB query document.
func Filter(l expr.Lambda) (bson.D, error) {
	if err := expr.Validate(l); err != nil {
		return nil, err
	}
	return translate(l.Body, l.Param)
}

func translate(n expr.Node, param *expr.Param) (bson.D, error) {
	switch n := n.(type) {
	case *expr.Const:
		b, ok := n.Value.(bool)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("constant %v is not a boolean", n.Value))
		}
		if b {
			return bson.D{}, nil
		}
		return bson.D{{Key: "$expr", Value: false}}, nil
	case *expr.Compare:
		fc, err := expr.Reduce(n, param)
		if err != nil {
			return nil, err
		}
		op, ok := mongoOps[fc.Op]
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, "unsupported operator "+string(fc.Op))
		}
		value := fc.Value
		if fc.Op == expr.OpIn {
			value = toArray(value)
		}
		return bson.D{{Key: key(fc.Field), Value: bson.D{{Key: op, Value: value}}}}, nil
	case *expr.Logical:
		terms := make(bson.A, 0, len(n.Terms))
		for _, t := range n.Terms {
			d, err := translate(t, param)
			if err != nil {
				return nil, err
			}
			terms = append(terms, d)
		}
		switch n.Op {
		case expr.OpAnd:
			return bson.D{{Key: "$and", Value: terms}}, nil
		case expr.OpOr:
			return bson.D{{Key: "$or", Value: terms}}, nil
		}
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "unknown logical operator "+string(n.Op))
	case *expr.Not:
		d, err := translate(n.Term, param)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{d}}}, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("cannot translate %T to a mongo filter", n))
}

func toArray(v any) bson.A {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return bson.A{v}
	}
	out := make(bson.A, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Projection translates a projection lambda into a MongoDB projection
// document. _id is suppressed unless selected.
func Projection(l expr.Lambda) (bson.D, error) {
	if err := expr.Validate(l); err != nil {
		return nil, err
	}
	tuple, ok := l.Body.(*expr.Tuple)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidExpression, "projection body must be a field list")
	}
	proj := bson.D{}
	hasID := false
	for _, item := range tuple.Items {
		f, ok := item.(*expr.Field)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidExpression, "projection items must be fields")
		}
		if f.Name == models.FieldID {
			hasID = true
		}
		proj = append(proj, bson.E{Key: key(f.Name), Value: 1})
	}
	if !hasID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj, nil
}

// Sort translates an order-by field into a sort document.
func Sort(field string, descending bool) bson.D {
	dir := 1
	if descending {
		dir = -1
	}
	return bson.D{{Key: key(field), Value: dir}}
}
