package service

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when the measurement table is empty, so there is no
// latest date to anchor the window on and no most active station.
var ErrNoData = errors.New("no measurements recorded")

// InvalidDateError reports a date argument that is not YYYY-MM-DD.
type InvalidDateError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid %s date %q: expected YYYY-MM-DD", e.Field, e.Value)
}

func (e *InvalidDateError) Unwrap() error {
	return e.Err
}
