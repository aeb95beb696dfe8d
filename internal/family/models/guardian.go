package models

const (
	FieldName  = "name"
	FieldEmail = "email"
)

// Guardian is the root of the ownership hierarchy. It owns zero or more
// Dependents and references nothing.
type Guardian struct {
	Base  `bson:",inline"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

func (g *Guardian) DocumentKind() Kind { return KindGuardian }
func (g *Guardian) ParentID() string   { return "" }
func (g *Guardian) document()          {}

func (g *Guardian) FieldValue(name string) (any, bool) {
	switch name {
	case FieldName:
		return g.Name, true
	case FieldEmail:
		return g.Email, true
	}
	return g.Base.fieldValue(name)
}

func (g *Guardian) SetField(name string, value any) error {
	if ok, err := g.Base.setField(name, value); ok {
		return err
	}
	switch name {
	case FieldName:
		return assignString(name, value, &g.Name)
	case FieldEmail:
		return assignString(name, value, &g.Email)
	}
	return errUnknownField(KindGuardian, name)
}

func (g *Guardian) Clone() Document {
	c := *g
	return &c
}
