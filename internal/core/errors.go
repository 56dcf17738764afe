package core

import "errors"

// Error codes sent to clients.
const (
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodePersistenceFailed    = "persistence_failed"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeAlreadyAuthenticated = "already_authenticated"
)

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("rate limited")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrBadRequest           = errors.New("bad request")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrStatusRegression     = errors.New("status cannot move backwards")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
