package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies credential failures into user-displayable categories.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindNetwork            ErrorKind = "network_error"
	KindUnknown            ErrorKind = "unknown"
	KindUnavailable        ErrorKind = "unavailable"
	KindSessionExpired     ErrorKind = "session_expired"
)

// ErrInvalidCredentials is the sentinel wrapped by providers when a password is rejected.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// AuthError reports a credential rejection, an expired session or an unreachable provider.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + string(e.Kind)
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err with the given kind.
func NewAuthError(kind ErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// LoginReason maps any login failure to one of the displayable reasons
// invalid_credentials, network_error or unknown.
func LoginReason(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindInvalidCredentials, KindNetwork:
			return ae.Kind
		case KindUnavailable:
			return KindNetwork
		}
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return KindInvalidCredentials
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// ProfileLookupError distinguishes "no row" from a failed query.
type ProfileLookupError struct {
	UserID   string
	NotFound bool
	Err      error
}

func (e *ProfileLookupError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("profile %s not found", e.UserID)
	}
	return fmt.Sprintf("profile %s lookup failed: %v", e.UserID, e.Err)
}

func (e *ProfileLookupError) Unwrap() error { return e.Err }

// IsProfileNotFound reports whether err is a ProfileLookupError for a missing row.
func IsProfileNotFound(err error) bool {
	var le *ProfileLookupError
	return errors.As(err, &le) && le.NotFound
}

// ProfileWriteError reports a failed insert or update. Conflict marks a uniqueness
// violation on the profile id, which callers recover from by re-reading.
type ProfileWriteError struct {
	UserID   string
	Conflict bool
	Err      error
}

func (e *ProfileWriteError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("profile %s already exists", e.UserID)
	}
	return fmt.Sprintf("profile %s write failed: %v", e.UserID, e.Err)
}

func (e *ProfileWriteError) Unwrap() error { return e.Err }

// IsProfileConflict reports whether err is a ProfileWriteError caused by a duplicate id.
func IsProfileConflict(err error) bool {
	var we *ProfileWriteError
	return errors.As(err, &we) && we.Conflict
}
