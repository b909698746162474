// internal/apperr/errors.go
package apperr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind groups failures by how a caller is expected to react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTransaction
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransaction:
		return "transaction_failure"
	case KindUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Reason names one distinct failure so callers can branch without parsing messages.
type Reason string

const (
	ReasonNotAdmin            Reason = "not_admin"
	ReasonEmptyUsername       Reason = "empty_username"
	ReasonUnknownStudent      Reason = "unknown_student"
	ReasonUnknownUser         Reason = "unknown_user"
	ReasonUnknownBook         Reason = "unknown_book"
	ReasonNoCopiesAvailable   Reason = "no_copies_available"
	ReasonAlreadyIssued       Reason = "already_issued"
	ReasonNoOpenIssue         Reason = "no_open_issue"
	ReasonInvalidBook         Reason = "invalid_book"
	ReasonInvalidRegistration Reason = "invalid_registration"
	ReasonUsernameTaken       Reason = "username_taken"
	ReasonEmailTaken          Reason = "email_taken"
	ReasonInvalidCredentials  Reason = "invalid_credentials"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonInvalidID           Reason = "invalid_id"
	ReasonInvalidRole         Reason = "invalid_role"
	ReasonTransactionFailed   Reason = "transaction_failed"
	ReasonStoreUnavailable    Reason = "store_unavailable"
)

// Error is the tagged error returned by every engine operation.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error carrying the same reason.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// New builds an error without an underlying cause.
func New(kind Kind, reason Reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error that keeps err for diagnostics.
func Wrap(kind Kind, reason Reason, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(reason Reason, format string, args ...any) *Error {
	return New(KindValidation, reason, format, args...)
}

func NotFound(reason Reason, format string, args ...any) *Error {
	return New(KindNotFound, reason, format, args...)
}

func Conflict(reason Reason, format string, args ...any) *Error {
	return New(KindConflict, reason, format, args...)
}

// TransactionFailed reports a rolled back unit of work.
func TransactionFailed(err error, op string) *Error {
	return Wrap(KindTransaction, ReasonTransactionFailed, err, "database transaction failed during %s", op)
}

// Store classifies a read fault from the store. Tagged errors pass through untouched.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return Wrap(KindUnavailable, ReasonStoreUnavailable, err, "store unavailable during %s", op)
}

// IsConnectionLoss reports whether err means the store connection is gone.
func IsConnectionLoss(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || IsConnectionLoss(err) {
		return KindUnavailable
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first *Error in err's chain, or "".
func ReasonOf(err error) Reason {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Reason
	}
	return ""
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		if ReasonOf(err) == ReasonNotAdmin {
			return http.StatusForbidden
		}
		if ReasonOf(err) == ReasonInvalidCredentials {
			return http.StatusUnauthorized
		}
		if ReasonOf(err) == ReasonRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
