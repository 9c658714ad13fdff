package billing

import "errors"

var (
	// ErrDuplicateTrial signals an attempt to start a second trial for a company.
	// Company creation is the only legitimate trial creator, so hitting this
	// means a broken call order upstream.
	ErrDuplicateTrial = errors.New("billing: company already has a trial")

	// ErrPlanNotFound is returned when a plan code does not resolve.
	ErrPlanNotFound = errors.New("billing: plan not found")

	// ErrInvalidArgument marks malformed caller input, e.g. non-positive days.
	ErrInvalidArgument = errors.New("billing: invalid argument")
)
