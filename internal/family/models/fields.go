package models

import (
	"fmt"
	"reflect"
	"time"

	dErrors "cradle/pkg/domain-errors"
)

// FieldNames lists the addressable fields of each kind.
var FieldNames = map[Kind][]string{
	KindGuardian:  {FieldID, FieldCreatedAt, FieldModifiedAt, FieldName, FieldEmail},
	KindDependent: {FieldID, FieldCreatedAt, FieldModifiedAt, FieldGuardianID, FieldName, FieldBirthDate},
	KindActivity: {FieldID, FieldCreatedAt, FieldModifiedAt, FieldDependentID, FieldActivityKind,
		FieldPhase, FieldTimestamp, FieldNote, FieldValue},
}

// HasField reports whether kind declares a field with the given name.
func HasField(kind Kind, name string) bool {
	for _, f := range FieldNames[kind] {
		if f == name {
			return true
		}
	}
	return false
}

func errImmutable(field string) error {
	return dErrors.New(dErrors.CodeValidation, field+" cannot be updated")
}

func errUnknownField(kind Kind, field string) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s has no field %q", kind, field))
}

func errFieldType(field string, value any) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("field %q cannot hold %T", field, value))
}

func assignString(field string, value any, dst *string) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return errFieldType(field, value)
	}
	*dst = rv.String()
	return nil
}

func toTime(field string, value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case *time.Time:
		if v != nil {
			return v.UTC(), nil
		}
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errFieldType(field, value)
}

func toFloat(field string, value any) (float64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, errFieldType(field, value)
}
