package injector

import (
	"errors"
	"fmt"

	"github.com/daimatz/classpatch/pkg/visitors"
)

// ErrDuplicateInitialization is reported by Initialize when a platform is
// already bound.
var ErrDuplicateInitialization = errors.New("injector platform is already set")

// ValidationError reports patch points a visitor did not find.
type ValidationError = visitors.ValidationError

// ReadError means the class could not be obtained or decoded.
type ReadError struct {
	Class string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading class %s: %v", e.Class, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// TransformError means visiting or serializing the class failed.
type TransformError struct {
	Class string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transforming class %s: %v", e.Class, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// InjectError means the boundary refused the new definition.
type InjectError struct {
	Class string
	Err   error
}

func (e *InjectError) Error() string {
	return fmt.Sprintf("injecting class %s: %v", e.Class, e.Err)
}

func (e *InjectError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered while transforming a class.
type PanicError struct {
	Class string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while transforming class %s: %v", e.Class, e.Value)
}
