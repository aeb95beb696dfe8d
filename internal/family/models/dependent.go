package models

import "time"

const (
	FieldGuardianID = "guardianId"
	FieldBirthDate  = "birthDate"
)

// Dependent is owned by exactly one Guardian through GuardianID.
//
// Invariants:
//   - GuardianID resolves to an existing Guardian at insertion time
//   - GuardianID is not re-validated afterwards; a non-cascading guardian
//     delete leaves the dependent orphaned
type Dependent struct {
	Base       `bson:",inline"`
	GuardianID string    `json:"guardianId" bson:"guardianId"`
	Name       string    `json:"name" bson:"name"`
	BirthDate  time.Time `json:"birthDate,omitempty" bson:"birthDate,omitempty"`
}

func (d *Dependent) DocumentKind() Kind { return KindDependent }
func (d *Dependent) ParentID() string   { return d.GuardianID }
func (d *Dependent) document()          {}

func (d *Dependent) FieldValue(name string) (any, bool) {
	switch name {
	case FieldGuardianID:
		return d.GuardianID, true
	case FieldName:
		return d.Name, true
	case FieldBirthDate:
		return d.BirthDate, true
	}
	return d.Base.fieldValue(name)
}

func (d *Dependent) SetField(name string, value any) error {
	if ok, err := d.Base.setField(name, value); ok {
		return err
	}
	switch name {
	case FieldGuardianID:
		return assignString(name, value, &d.GuardianID)
	case FieldName:
		return assignString(name, value, &d.Name)
	case FieldBirthDate:
		t, err := toTime(name, value)
		if err != nil {
			return err
		}
		d.BirthDate = t
		return nil
	}
	return errUnknownField(KindDependent, name)
}

func (d *Dependent) Clone() Document {
	c := *d
	return &c
}
