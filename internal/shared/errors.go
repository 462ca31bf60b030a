package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrTimeout       = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("resource not found")
	ErrRestricted         = fmt.Errorf("restricted mode: intermediate medium or database unavailable")

	// Push channel errors
	ErrAlreadyRunning   = fmt.Errorf("already running")
	ErrMalformedMessage = fmt.Errorf("malformed push message")
	ErrUnknownMessage   = fmt.Errorf("unknown push message type")

	// Workflow errors
	ErrUnknownPhase     = fmt.Errorf("unknown phase")
	ErrRouteNotAllowed  = fmt.Errorf("route not allowed in current phase")
	ErrNotEligible      = fmt.Errorf("action not eligible")
	ErrJobNotFound      = fmt.Errorf("job not found")
	ErrClientStateUnset = fmt.Errorf("client state key not set")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
