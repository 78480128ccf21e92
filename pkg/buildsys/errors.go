package buildsys

import (
	"fmt"
	"strings"
)

// TargetNotFound is returned when a label doesn't name a declared target
type TargetNotFound struct {
	Label string
	// Reason is set when the package itself could not be loaded
	Reason string
}

func (e *TargetNotFound) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("target %s not found: %s", e.Label, e.Reason)
	}
	return fmt.Sprintf("target %s not found", e.Label)
}

// VisibilityError is returned when a package references a target that isn't visible to it
type VisibilityError struct {
	Target string
	From   string
}

func (e *VisibilityError) Error() string {
	return fmt.Sprintf("target %s is not visible from %s", e.Target, e.From)
}

// CycleError lists the labels that depend on each other, the first and last entry are the same
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}
