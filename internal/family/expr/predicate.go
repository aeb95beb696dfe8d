package expr

// Predicate is a boolean lambda over a variable of type T.
type Predicate[T any] struct {
	lambda Lambda
}

// Where builds a predicate over a fresh variable of type T.
func Where[T any](build func(v Var) Node) Predicate[T] {
	p := newParam[T]("d")
	return Predicate[T]{lambda: Lambda{Param: p, Body: build(Var{p: p})}}
}

// All matches every document.
func All[T any]() Predicate[T] {
	return Predicate[T]{lambda: Lambda{Param: newParam[T]("d"), Body: &Const{Value: true}}}
}

// FieldEq is shorthand for Where(d => d.field == value).
func FieldEq[T any](field string, value any) Predicate[T] {
	return Where[T](func(v Var) Node {
		return Eq(v.Field(field), Value(value))
	})
}

// PredicateFrom wraps an existing lambda. The lambda's parameter is trusted to
// describe T; use Retarget to change it.
func PredicateFrom[T any](l Lambda) Predicate[T] {
	return Predicate[T]{lambda: l}
}

func (p Predicate[T]) Lambda() Lambda {
	return p.lambda
}

func (p Predicate[T]) Param() *Param {
	return p.lambda.Param
}

func (p Predicate[T]) Body() Node {
	return p.lambda.Body
}

// IsZero reports whether the predicate was never built.
func (p Predicate[T]) IsZero() bool {
	return p.lambda.Param == nil && p.lambda.Body == nil
}

func (p Predicate[T]) String() string {
	return p.lambda.String()
}

// And combines two predicates over the same type. other is re-bound onto
// p's variable so the result has a single free variable.
func (p Predicate[T]) And(other Predicate[T]) (Predicate[T], error) {
	if err := validate(p.lambda); err != nil {
		return Predicate[T]{}, err
	}
	if err := validate(other.lambda); err != nil {
		return Predicate[T]{}, err
	}
	rhs, err := rebind(other.lambda.Body, other.lambda.Param, p.lambda.Param)
	if err != nil {
		return Predicate[T]{}, err
	}
	return Predicate[T]{lambda: Lambda{Param: p.lambda.Param, Body: And(p.lambda.Body, rhs)}}, nil
}

// Projection selects fields from a variable of type T.
type Projection[T any] struct {
	lambda Lambda
}

// Select builds a projection of the named fields.
func Select[T any](fields ...string) Projection[T] {
	p := newParam[T]("d")
	items := make([]Node, len(fields))
	for i, f := range fields {
		items[i] = &Field{Target: p, Name: f}
	}
	return Projection[T]{lambda: Lambda{Param: p, Body: &Tuple{Items: items}}}
}

// ProjectionFrom wraps an existing lambda whose body should be a *Tuple.
func ProjectionFrom[T any](l Lambda) Projection[T] {
	return Projection[T]{lambda: l}
}

func (p Projection[T]) Lambda() Lambda {
	return p.lambda
}

func (p Projection[T]) String() string {
	return p.lambda.String()
}

// Fields returns the selected field names in order. Items that are not
// fields of the projection's own variable are skipped.
func (p Projection[T]) Fields() []string {
	tuple, ok := p.lambda.Body.(*Tuple)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(tuple.Items))
	for _, item := range tuple.Items {
		if f, ok := item.(*Field); ok && f.Target == Node(p.lambda.Param) {
			out = append(out, f.Name)
		}
	}
	return out
}
