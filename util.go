package sentinel

import (
	"reflect"
)

// typeName returns the concrete type name of err for the exception mechanism
// field.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	return t.String()
}

// unwrap follows both the standard Unwrap convention and the Causer convention
// of github.com/pkg/errors.
func unwrap(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Cause() error }:
		return e.Cause()
	}
	return nil
}
