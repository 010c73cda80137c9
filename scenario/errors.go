package scenario

import "errors"

var (
	// ErrNilParam indicates a runner dependency is missing.
	ErrNilParam = errors.New("scenario: required parameter is nil")

	// ErrInvalidPlan indicates a plan that cannot be executed.
	ErrInvalidPlan = errors.New("scenario: invalid plan")

	// ErrUnexpectedOutcome indicates an attempt whose outcome differs from
	// the plan's expectation, or from the timelock prediction.
	ErrUnexpectedOutcome = errors.New("scenario: unexpected outcome")
)
