package fluid

import (
	"errors"
	"fmt"
	"reflect"
)

// Binding error kinds, reported at registration time.
var (
	ErrDuplicateBinding       = errors.New("api already bound in this registry")
	ErrAbstractImplementation = errors.New("implementation cannot be instantiated")
	ErrIncompatibleAPI        = errors.New("implementation does not satisfy api")
	ErrAmbiguousAPI           = errors.New("ambiguous api discovery")
	ErrInvalidScope           = errors.New("invalid scope")
	ErrInvalidDependency      = errors.New("invalid dependency declaration")
)

// Resolution error kinds, reported at resolution time.
var (
	ErrNotBound     = errors.New("no binding found")
	ErrCircular     = errors.New("circular dependency")
	ErrConstruction = errors.New("construction failed")
	ErrWaitTimeout  = errors.New("gave up waiting for construction")
	ErrStopped      = errors.New("container stopped")
	ErrThreadEnded  = errors.New("thread ended")
)

// BindingError is returned when a binding cannot be registered.
type BindingError struct {
	Kind           error
	API            reflect.Type
	Implementation reflect.Type
	Message        string
}

func (e *BindingError) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = e.Message + ": " + msg
	}
	switch {
	case e.API != nil && e.Implementation != nil:
		return fmt.Sprintf("%s: %v <- %v", msg, e.API, e.Implementation)
	case e.API != nil:
		return fmt.Sprintf("%s: %v", msg, e.API)
	case e.Implementation != nil:
		return fmt.Sprintf("%s: %v", msg, e.Implementation)
	}
	return msg
}

func (e *BindingError) Unwrap() error {
	return e.Kind
}

// ResolutionError is returned when a component cannot be produced. Chain is
// the printed reference chain at the point of failure.
type ResolutionError struct {
	Kind        error
	Type        reflect.Type
	Chain       string
	Message     string
	SourceError error
}

func (e *ResolutionError) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = e.Message + ": " + msg
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Type)
	if e.SourceError != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.SourceError)
	}
	if e.Chain != "" {
		msg += "\nreference chain:\n" + e.Chain
	}
	return msg
}

func (e *ResolutionError) Unwrap() []error {
	if e.SourceError == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.SourceError}
}
