package control

import "errors"

var (
	// ErrInvalidValue means the value does not match the parameter type.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrNotPermitted means the parameter cannot be written.
	ErrNotPermitted = errors.New("parameter not writable")

	// ErrUnknownParameter means no parameter has the requested name.
	ErrUnknownParameter = errors.New("unknown parameter")
)

// Error codes carried in replies.
const (
	CodeInvalidValue     = "invalid_value"
	CodeNotPermitted     = "not_permitted"
	CodeUnknownParameter = "unknown_parameter"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidValue):
		return CodeInvalidValue
	case errors.Is(err, ErrNotPermitted):
		return CodeNotPermitted
	case errors.Is(err, ErrUnknownParameter):
		return CodeUnknownParameter
	default:
		return CodeInternal
	}
}

func errorFor(code string) error {
	switch code {
	case CodeInvalidValue:
		return ErrInvalidValue
	case CodeNotPermitted:
		return ErrNotPermitted
	case CodeUnknownParameter:
		return ErrUnknownParameter
	case CodeBadRequest:
		return ErrInvalidValue
	default:
		return errors.New(code)
	}
}
