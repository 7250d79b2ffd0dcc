// Package fault defines the typed errors returned by engine operations.
// They are expected outcomes and carry enough structure for the HTTP
// layer to map them to error codes without string matching.
package fault

import "fmt"

// ValidationError reports malformed or missing required input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateNameError reports a contractor name already taken within the project.
type DuplicateNameError struct {
	Name string
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("contractor name %q already exists in project", e.Name)
}

// NoSourceDataError: copy source date has no briefing.
type NoSourceDataError struct {
	Date string
}

func (e NoSourceDataError) Error() string {
	return fmt.Sprintf("no briefing exists for source date %s", e.Date)
}

// TargetNotEmptyError: copy target already has activities.
type TargetNotEmptyError struct {
	Date  string
	Count int
}

func (e TargetNotEmptyError) Error() string {
	return fmt.Sprintf("target date %s already has %d activities; clear it before copying", e.Date, e.Count)
}

// NothingToCopyError: copy source briefing has zero activities.
type NothingToCopyError struct {
	Date string
}

func (e NothingToCopyError) Error() string {
	return fmt.Sprintf("source date %s has no activities to copy", e.Date)
}
