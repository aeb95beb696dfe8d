package models

import (
	"time"

	"github.com/google/uuid"
)

func NewGuardian(name, email string) *Guardian {
	return &Guardian{Base: Base{ID: uuid.NewString()}, Name: name, Email: email}
}

func NewDependent(guardianID, name string, birthDate time.Time) *Dependent {
	return &Dependent{Base: Base{ID: uuid.NewString()}, GuardianID: guardianID, Name: name, BirthDate: birthDate.UTC()}
}

// NewActivity builds an unpaired activity such as a measurement or diaper change.
func NewActivity(dependentID string, kind ActivityKind, at time.Time) *ActivityRecord {
	return &ActivityRecord{Base: Base{ID: uuid.NewString()}, DependentID: dependentID, Kind: kind, Timestamp: at.UTC()}
}

// NewPairedActivity builds one half of a Start/End pair.
func NewPairedActivity(dependentID string, kind ActivityKind, phase Phase, at time.Time) *ActivityRecord {
	a := NewActivity(dependentID, kind, at)
	a.Phase = phase
	return a
}
