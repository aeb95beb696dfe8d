package postgres

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"

	"cradle/internal/family/expr"
	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

type columnType int

const (
	typeText columnType = iota
	typeTime
	typeNumeric
)

var fieldTypes = map[string]columnType{
	models.FieldCreatedAt:  typeTime,
	models.FieldModifiedAt: typeTime,
	models.FieldBirthDate:  typeTime,
	models.FieldTimestamp:  typeTime,
	models.FieldValue:      typeNumeric,
}

var sqlOps = map[expr.Op]string{
	expr.OpEq:  "=",
	expr.OpNe:  "IS DISTINCT FROM",
	expr.OpLt:  "<",
	expr.OpLte: "<=",
	expr.OpGt:  ">",
	expr.OpGte: ">=",
}

// builder accumulates positional arguments while rendering a WHERE clause.
type builder struct {
	kind  models.Kind
	param *expr.Param
	args  []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Where renders a predicate lambda as a SQL boolean expression over the doc
// jsonb column. Placeholders continue after the len(args) already bound.
func Where(kind models.Kind, l expr.Lambda, args []any) (string, []any, error) {
	if err := expr.Validate(l); err != nil {
		return "", nil, err
	}
	b := &builder{kind: kind, param: l.Param, args: args}
	clause, err := b.render(l.Body)
	if err != nil {
		return "", nil, err
	}
	return clause, b.args, nil
}

// column renders the typed SQL expression for a document field.
func column(kind models.Kind, field string) (string, columnType, error) {
	if !models.HasField(kind, field) {
		return "", typeText, dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("%s has no field %q", kind, field))
	}
	if field == models.FieldID {
		return "id", typeText, nil
	}
	// field names come from the closed FieldNames set, never from input
	text := fmt.Sprintf("(doc->>'%s')", field)
	switch fieldTypes[field] {
	case typeTime:
		return text + "::timestamptz", typeTime, nil
	case typeNumeric:
		return text + "::numeric", typeNumeric, nil
	}
	return "coalesce(" + text + ", '')", typeText, nil
}

func (b *builder) render(n expr.Node) (string, error) {
	switch n := n.(type) {
	case *expr.Const:
		v, ok := n.Value.(bool)
		if !ok {
			return "", dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("constant %v is not a boolean", n.Value))
		}
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case *expr.Compare:
		return b.compare(n)
	case *expr.Logical:
		joiner := " AND "
		switch n.Op {
		case expr.OpAnd:
		case expr.OpOr:
			joiner = " OR "
		default:
			return "", dErrors.New(dErrors.CodeInvalidExpression, "unknown logical operator "+string(n.Op))
		}
		if len(n.Terms) == 0 {
			if n.Op == expr.OpAnd {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		parts := make([]string, 0, len(n.Terms))
		for _, t := range n.Terms {
			p, err := b.render(t)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	case *expr.Not:
		inner, err := b.render(n.Term)
		if err != nil {
			return "", err
		}
		// a NULL comparison counts as false, so its negation is true
		return "NOT coalesce(" + inner + ", FALSE)", nil
	}
	return "", dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("cannot translate %T to SQL", n))
}

func (b *builder) compare(c *expr.Compare) (string, error) {
	fc, err := expr.Reduce(c, b.param)
	if err != nil {
		return "", err
	}
	col, typ, err := column(b.kind, fc.Field)
	if err != nil {
		return "", err
	}

	if fc.Op == expr.OpIn {
		return b.in(col, typ, fc.Value)
	}

	value := expr.Normalize(fc.Value)
	if value == nil {
		switch fc.Op {
		case expr.OpEq:
			return col + " IS NULL", nil
		case expr.OpNe:
			return col + " IS NOT NULL", nil
		}
		return "FALSE", nil
	}
	op, ok := sqlOps[fc.Op]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidExpression, "unsupported operator "+string(fc.Op))
	}
	if !sameType(typ, value) {
		// the in-memory evaluator treats mismatched equality as unequal and
		// refuses to order mismatched values
		switch fc.Op {
		case expr.OpEq:
			return "FALSE", nil
		case expr.OpNe:
			return "TRUE", nil
		}
		return "", dErrors.New(dErrors.CodeInvalidExpression, fmt.Sprintf("cannot order %s and %T", fc.Field, value))
	}
	return fmt.Sprintf("%s %s %s", col, op, b.arg(value)), nil
}

func (b *builder) in(col string, typ columnType, values any) (string, error) {
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		return "", dErrors.New(dErrors.CodeInvalidExpression, "in requires a list of values")
	}
	switch typ {
	case typeNumeric:
		nums := make([]float64, 0, rv.Len())
		for i := range rv.Len() {
			f, ok := expr.Normalize(rv.Index(i).Interface()).(float64)
			if !ok {
				return "", dErrors.New(dErrors.CodeInvalidExpression, "in list mixes numbers and other values")
			}
			nums = append(nums, f)
		}
		return fmt.Sprintf("%s = ANY(%s::numeric[])", col, b.arg(pq.Array(nums))), nil
	case typeTime:
		stamps := make([]string, 0, rv.Len())
		for i := range rv.Len() {
			t, ok := expr.Normalize(rv.Index(i).Interface()).(time.Time)
			if !ok {
				return "", dErrors.New(dErrors.CodeInvalidExpression, "in list mixes times and other values")
			}
			stamps = append(stamps, t.UTC().Format(time.RFC3339Nano))
		}
		return fmt.Sprintf("%s = ANY(%s::timestamptz[])", col, b.arg(pq.Array(stamps))), nil
	}
	strs := make([]string, 0, rv.Len())
	for i := range rv.Len() {
		s, ok := expr.Normalize(rv.Index(i).Interface()).(string)
		if !ok {
			return "", dErrors.New(dErrors.CodeInvalidExpression, "in list mixes strings and other values")
		}
		strs = append(strs, s)
	}
	return fmt.Sprintf("%s = ANY(%s::text[])", col, b.arg(pq.Array(strs))), nil
}

func sameType(typ columnType, value any) bool {
	switch typ {
	case typeTime:
		_, ok := value.(time.Time)
		return ok
	case typeNumeric:
		_, ok := value.(float64)
		return ok
	}
	_, ok := value.(string)
	return ok
}

// OrderBy renders an ORDER BY clause for q, or "" for natural order.
func OrderBy(kind models.Kind, field string, descending bool) (string, error) {
	if field == "" {
		return "", nil
	}
	col, _, err := column(kind, field)
	if err != nil {
		return "", err
	}
	dir := "ASC NULLS FIRST"
	if descending {
		dir = "DESC NULLS LAST"
	}
	return " ORDER BY " + col + " " + dir, nil
}
