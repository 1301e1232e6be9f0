package volleymanager

import (
	"errors"
	"time"
)

type ErrorKind int

const (
	KIND_NETWORK ErrorKind = iota
	KIND_LOGIN_PAGE_UNAVAILABLE
	KIND_MALFORMED_LOGIN_PAGE
	KIND_INVALID_CREDENTIALS
	KIND_LOCKED
	KIND_TWO_FACTOR_UNSUPPORTED
	KIND_LOGIN_FAILED
	KIND_DASHBOARD_UNREACHABLE
	KIND_SESSION_NOT_ESTABLISHED
)

func (k ErrorKind) String() string {
	switch k {
	case KIND_NETWORK:
		return "network"
	case KIND_LOGIN_PAGE_UNAVAILABLE:
		return "login_page_unavailable"
	case KIND_MALFORMED_LOGIN_PAGE:
		return "malformed_login_page"
	case KIND_INVALID_CREDENTIALS:
		return "invalid_credentials"
	case KIND_LOCKED:
		return "locked"
	case KIND_TWO_FACTOR_UNSUPPORTED:
		return "two_factor_unsupported"
	case KIND_LOGIN_FAILED:
		return "login_failed"
	case KIND_DASHBOARD_UNREACHABLE:
		return "dashboard_unreachable"
	case KIND_SESSION_NOT_ESTABLISHED:
		return "session_not_established"
	}
	return "unknown"
}

const (
	messageLoginPageUnavailable  = "Failed to load login page"
	messageMalformedLoginPage    = "Could not extract form fields"
	messageInvalidCredentials    = "Invalid username or password"
	messageLocked                = "Account temporarily locked. Please try again later."
	messageTwoFactorUnsupported  = "Two-factor authentication is not supported"
	messageLoginFailed           = "Login failed - please try again"
	messageDashboardUnreachable  = "Login succeeded but the dashboard could not be loaded"
	messageSessionNotEstablished = "Login succeeded but the session could not be established"
)

// AuthError is the only error type returned by Client.Login and
// Client.CheckSession.
type AuthError struct {
	Kind    ErrorKind
	Message string
	// LockedUntil and LockoutMinutes are only filled for KIND_LOCKED and only
	// when the backend supplied them.
	LockedUntil    *time.Time
	LockoutMinutes int
	Err            error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind, so the sentinels below work
// with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether retrying the same call can succeed without the
// user or an operator changing anything.
func (e *AuthError) Retryable() bool {
	switch e.Kind {
	case KIND_NETWORK, KIND_LOGIN_PAGE_UNAVAILABLE, KIND_DASHBOARD_UNREACHABLE, KIND_LOGIN_FAILED:
		return true
	}
	return false
}

var (
	ErrNetwork               = &AuthError{Kind: KIND_NETWORK}
	ErrLoginPageUnavailable  = &AuthError{Kind: KIND_LOGIN_PAGE_UNAVAILABLE}
	ErrMalformedLoginPage    = &AuthError{Kind: KIND_MALFORMED_LOGIN_PAGE}
	ErrInvalidCredentials    = &AuthError{Kind: KIND_INVALID_CREDENTIALS}
	ErrLocked                = &AuthError{Kind: KIND_LOCKED}
	ErrTwoFactorUnsupported  = &AuthError{Kind: KIND_TWO_FACTOR_UNSUPPORTED}
	ErrLoginFailed           = &AuthError{Kind: KIND_LOGIN_FAILED}
	ErrDashboardUnreachable  = &AuthError{Kind: KIND_DASHBOARD_UNREACHABLE}
	ErrSessionNotEstablished = &AuthError{Kind: KIND_SESSION_NOT_ESTABLISHED}
)

func newAuthError(kind ErrorKind, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: cause}
}

// networkError keeps the message of the underlying failure.
func networkError(cause error) *AuthError {
	return &AuthError{Kind: KIND_NETWORK, Message: cause.Error(), Err: cause}
}

// KindOf returns the kind of an AuthError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind, true
	}
	return 0, false
}
