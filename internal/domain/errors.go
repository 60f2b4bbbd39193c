package domain

import "errors"

var (
	// ErrInvalidDefinition matches every *DefinitionError.
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrDomainSealed is returned by builder calls made after a Solution
	// has been built from the domain.
	ErrDomainSealed = errors.New("domain is sealed")
)

// DefinitionError reports a misuse of the domain builder. It is always a
// configuration error and is raised when the definition is made.
type DefinitionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *DefinitionError) Error() string {
	msg := "definition error: " + e.Name + " " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func invalid(name, reason string) error {
	return &DefinitionError{Name: name, Reason: reason}
}
