package state

import "fmt"

// DuplicateModelError reports two models registered under the same
// (app label, name) key.
type DuplicateModelError struct {
	App  string
	Name string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("duplicate model %s.%s", e.App, e.Name)
}

// DanglingReferenceError reports a relation whose target model does not exist
// in the same project state. Both ends are named so the fix is obvious.
type DanglingReferenceError struct {
	From string
	To   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s references %s, which does not exist in the project state", e.From, e.To)
}

// InvalidFieldError reports a malformed field or model definition.
type InvalidFieldError struct {
	Model  string
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid model %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("invalid field %s on %s: %s", e.Field, e.Model, e.Reason)
}
