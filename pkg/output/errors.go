package output

import "errors"

// ErrHardwareUnavailable indicates no output device is attached
var ErrHardwareUnavailable = errors.New("output hardware unavailable")
