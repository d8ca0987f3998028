package schema

import "errors"

var (
	// ErrAuth indicates the remote side rejected the credentials or key.
	ErrAuth = errors.New("authentication failed")
	// ErrNetwork indicates the host was unreachable or refused the connection.
	ErrNetwork = errors.New("network error")
	// ErrChannel indicates shell allocation failed after the connection succeeded.
	ErrChannel = errors.New("channel error")
	// ErrCredentialLoad indicates a private key file could not be read.
	ErrCredentialLoad = errors.New("credential load failed")
	// ErrConfigPersist indicates the profile store could not be written.
	ErrConfigPersist = errors.New("profile store write failed")
	// ErrHostKeyMismatch indicates the host key did not match known_hosts.
	ErrHostKeyMismatch = errors.New("host key mismatch")
	// ErrProfileNotFound indicates a requested profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrSessionNotFound indicates a requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidProfile indicates a profile failed validation.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrSessionClosed indicates an operation on a session that has been released.
	ErrSessionClosed = errors.New("session closed")
)

// IsConnectionError reports whether err belongs to the connection-phase taxonomy
// that is captured into a session's error state.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrChannel) ||
		errors.Is(err, ErrCredentialLoad) ||
		errors.Is(err, ErrHostKeyMismatch)
}
