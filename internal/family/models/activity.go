package models

import (
	"time"

	dErrors "cradle/pkg/domain-errors"
)

const (
	FieldDependentID  = "dependentId"
	FieldActivityKind = "kind"
	FieldPhase        = "phase"
	FieldTimestamp    = "timestamp"
	FieldNote         = "note"
	FieldValue        = "value"
)

// ActivityKind tags what an ActivityRecord describes.
type ActivityKind string

const (
	ActivityMeasurement ActivityKind = "measurement"
	ActivityFeeding     ActivityKind = "feeding"
	ActivitySleep       ActivityKind = "sleep"
	ActivityDiaper      ActivityKind = "diaper"
	ActivityMedication  ActivityKind = "medication"
)

func (k ActivityKind) IsValid() bool {
	switch k {
	case ActivityMeasurement, ActivityFeeding, ActivitySleep, ActivityDiaper, ActivityMedication:
		return true
	}
	return false
}

// IsPaired reports whether records of this kind come in Start/End phases.
func (k ActivityKind) IsPaired() bool {
	return k == ActivityFeeding || k == ActivitySleep
}

// Phase is the half of a paired activity a record represents.
type Phase string

const (
	PhaseStart Phase = "Start"
	PhaseEnd   Phase = "End"
)

func (p Phase) IsValid() bool {
	return p == PhaseStart || p == PhaseEnd
}

// ActivityRecord is owned by exactly one Dependent through DependentID.
//
// Invariants:
//   - DependentID resolves to an existing Dependent at insertion time
//   - Paired kinds carry a Phase; other kinds carry none
//   - Per (DependentID, Kind) the phases ordered by Timestamp alternate
//     Start, End, Start, ... beginning with Start
type ActivityRecord struct {
	Base        `bson:",inline"`
	DependentID string       `json:"dependentId" bson:"dependentId"`
	Kind        ActivityKind `json:"kind" bson:"kind"`
	Phase       Phase        `json:"phase,omitempty" bson:"phase,omitempty"`
	Timestamp   time.Time    `json:"timestamp" bson:"timestamp"`
	Note        string       `json:"note,omitempty" bson:"note,omitempty"`
	Value       *float64     `json:"value,omitempty" bson:"value,omitempty"`
}

func (a *ActivityRecord) DocumentKind() Kind { return KindActivity }
func (a *ActivityRecord) ParentID() string   { return a.DependentID }
func (a *ActivityRecord) document()          {}

// IsPaired reports whether the record takes part in Start/End alternation.
func (a *ActivityRecord) IsPaired() bool {
	return a.Kind.IsPaired()
}

// Validate checks the record's own shape. Foreign keys and transitions are
// the unit of work's concern.
func (a *ActivityRecord) Validate() error {
	if !a.Kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown activity kind: "+string(a.Kind))
	}
	if a.Kind.IsPaired() && !a.Phase.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "paired activity requires phase Start or End")
	}
	if !a.Kind.IsPaired() && a.Phase != "" {
		return dErrors.New(dErrors.CodeValidation, "phase is only allowed on paired activities")
	}
	if a.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "activity timestamp is required")
	}
	return nil
}

func (a *ActivityRecord) FieldValue(name string) (any, bool) {
	switch name {
	case FieldDependentID:
		return a.DependentID, true
	case FieldActivityKind:
		return a.Kind, true
	case FieldPhase:
		return a.Phase, true
	case FieldTimestamp:
		return a.Timestamp, true
	case FieldNote:
		return a.Note, true
	case FieldValue:
		if a.Value == nil {
			return nil, true
		}
		return *a.Value, true
	}
	return a.Base.fieldValue(name)
}

func (a *ActivityRecord) SetField(name string, value any) error {
	if ok, err := a.Base.setField(name, value); ok {
		return err
	}
	switch name {
	case FieldDependentID:
		return assignString(name, value, &a.DependentID)
	case FieldActivityKind:
		var s string
		if err := assignString(name, value, &s); err != nil {
			return err
		}
		a.Kind = ActivityKind(s)
		return nil
	case FieldPhase:
		var s string
		if err := assignString(name, value, &s); err != nil {
			return err
		}
		a.Phase = Phase(s)
		return nil
	case FieldTimestamp:
		t, err := toTime(name, value)
		if err != nil {
			return err
		}
		a.Timestamp = t
		return nil
	case FieldNote:
		return assignString(name, value, &a.Note)
	case FieldValue:
		if value == nil {
			a.Value = nil
			return nil
		}
		f, err := toFloat(name, value)
		if err != nil {
			return err
		}
		a.Value = &f
		return nil
	}
	return errUnknownField(KindActivity, name)
}

func (a *ActivityRecord) Clone() Document {
	c := *a
	if a.Value != nil {
		v := *a.Value
		c.Value = &v
	}
	return &c
}
