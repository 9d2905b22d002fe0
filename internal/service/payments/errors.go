package payments

import "errors"

var (
	// ErrPaymentsConnection means the provider could not be reached or
	// answered with a server error.
	ErrPaymentsConnection = errors.New("payments provider unreachable")

	// ErrPaymentsInvalid means the provider answered with something this
	// client cannot interpret.
	ErrPaymentsInvalid = errors.New("payments provider returned an invalid response")
)
