package session

import "errors"

var (
	// ErrMissingCredentials means the stored credential set is incomplete and
	// the onboarding flow has to run instead of a connect.
	ErrMissingCredentials = errors.New("missing session credentials")

	// ErrRegisterFailed means the broker refused the account registration.
	ErrRegisterFailed = errors.New("account registration failed")

	// ErrDisposed is returned by operations on a disposed client.
	ErrDisposed = errors.New("session client disposed")

	// ErrUnsupportedHashMethod means the stored hash cannot be presented to the broker.
	ErrUnsupportedHashMethod = errors.New("unsupported password hash method")
)
