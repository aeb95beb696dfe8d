package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind names one of the three collections.
type Kind string

const (
	KindGuardian  Kind = "guardian"
	KindDependent Kind = "dependent"
	KindActivity  Kind = "activity"
)

// Kinds lists every known kind in ownership order (root first).
var Kinds = []Kind{KindGuardian, KindDependent, KindActivity}

func (k Kind) IsValid() bool {
	switch k {
	case KindGuardian, KindDependent, KindActivity:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Field names shared by all kinds. Predicates and projections address
// fields by these names; stores map them onto their own layout.
const (
	FieldID         = "id"
	FieldCreatedAt  = "createdAt"
	FieldModifiedAt = "modifiedAt"
)

// Document is the abstract handle the unit of work accepts. The set of
// implementations is closed: *Guardian, *Dependent and *ActivityRecord.
type Document interface {
	DocumentID() string
	DocumentKind() Kind
	// ParentID returns the owning record's id, or "" for roots.
	ParentID() string
	// FieldValue resolves a named field for predicate evaluation.
	FieldValue(name string) (any, bool)
	// SetField assigns a named field, converting value where sensible.
	SetField(name string, value any) error
	Clone() Document
	Stamp(now time.Time)
	EnsureID()

	document()
}

// Record constrains generic code to the concrete document kinds.
type Record interface {
	*Guardian | *Dependent | *ActivityRecord
	Document
}

// Base carries the bookkeeping fields every document has.
type Base struct {
	ID         string    `json:"id" bson:"_id"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt" bson:"modifiedAt"`
}

func (b *Base) DocumentID() string {
	return b.ID
}

// Stamp sets CreatedAt on first write and always refreshes ModifiedAt.
func (b *Base) Stamp(now time.Time) {
	now = now.UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.ModifiedAt = now
}

// EnsureID assigns a random id when none was provided.
func (b *Base) EnsureID() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

func (b *Base) fieldValue(name string) (any, bool) {
	switch name {
	case FieldID:
		return b.ID, true
	case FieldCreatedAt:
		return b.CreatedAt, true
	case FieldModifiedAt:
		return b.ModifiedAt, true
	}
	return nil, false
}

func (b *Base) setField(name string, value any) (bool, error) {
	switch name {
	case FieldID:
		return true, errImmutable(name)
	case FieldCreatedAt:
		return true, errImmutable(name)
	case FieldModifiedAt:
		t, err := toTime(name, value)
		if err != nil {
			return true, err
		}
		b.ModifiedAt = t
		return true, nil
	}
	return false, nil
}

// KindOf resolves the concrete kind of an abstract document. Callers at the
// boundary use it to reject nil handles before dispatch.
func KindOf(doc Document) (Kind, bool) {
	switch d := doc.(type) {
	case *Guardian:
		return KindGuardian, d != nil
	case *Dependent:
		return KindDependent, d != nil
	case *ActivityRecord:
		return KindActivity, d != nil
	}
	return "", false
}
