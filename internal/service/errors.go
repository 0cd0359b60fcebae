package service

import (
	"errors"
	"fmt"
)

// ErrGenerationFormat is returned when a non-empty generation contains no
// line in the `- "Title" by Artist` form.
var ErrGenerationFormat = errors.New("generation format error: no parsable song lines")

// AssemblyStage tells whether an assembly error happened before or after the
// playlist existed.
type AssemblyStage string

const (
	AssemblyCreateFailed AssemblyStage = "CreateFailed"
	AssemblyAddFailed    AssemblyStage = "AddFailed"
)

type AssemblyError struct {
	Stage  AssemblyStage
	Detail string
	Err    error
}

func (e *AssemblyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
