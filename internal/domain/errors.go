package domain

import "errors"

var (
	// ErrParse marks an unparseable timestamp, value, or quality code.
	ErrParse = errors.New("parse error")

	// ErrSchema marks a column that was requested but is not present.
	ErrSchema = errors.New("schema error")

	// ErrValidation marks an invalid parameter or parameter combination.
	ErrValidation = errors.New("validation error")

	// ErrNotConfigured is returned when a prediction is requested before the
	// predictor has been configured.
	ErrNotConfigured = errors.New("predictor not configured")

	// ErrTransport wraps failures of the transport that carries prediction requests.
	ErrTransport = errors.New("transport error")

	// ErrDecode marks a malformed or mismatched prediction response.
	ErrDecode = errors.New("decode error")
)
