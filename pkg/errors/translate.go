package errors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the portal reacts to.
const (
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
	pgCheckViolation        = "23514"
	pgInsufficientPrivilege = "42501"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgAdminShutdown         = "57P01"
	pgConnectionClass       = "08"
)

const genericMessage = "something went wrong, please try again"

// Translate converts an error raised anywhere in the stack into the single message shown to users.
func Translate(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrSessionExpired.Message
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgInsufficientPrivilege:
			return "you do not have permission to perform this action"
		case pgUniqueViolation:
			return "a record with the same values already exists"
		case pgForeignKeyViolation:
			return "the referenced record does not exist"
		case pgCheckViolation:
			return "the request violates a data constraint"
		}
		if strings.Contains(strings.ToLower(pqErr.Message), "row-level security") {
			return "you do not have permission to perform this action"
		}
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != ErrInternal.Code {
		return appErr.Message
	}
	if IsRetryable(err) {
		return "network problem, please check your connection and try again"
	}
	return genericMessage
}

// Normalize maps infrastructure errors onto typed errors while keeping the original wrapped.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != ErrInternal.Code {
		return appErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Wrap(err, ErrSessionExpired.Code, ErrSessionExpired.Status, Translate(err))
	case errors.Is(err, sql.ErrNoRows):
		return Wrap(err, ErrNotFound.Code, ErrNotFound.Status, ErrNotFound.Message)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgInsufficientPrivilege:
			return Wrap(err, ErrForbidden.Code, ErrForbidden.Status, Translate(err))
		case pgUniqueViolation:
			return Wrap(err, ErrConflict.Code, ErrConflict.Status, Translate(err))
		case pgForeignKeyViolation, pgCheckViolation:
			return Wrap(err, ErrValidation.Code, ErrValidation.Status, Translate(err))
		}
	}
	if IsRetryable(err) {
		return Wrap(err, ErrNetwork.Code, ErrNetwork.Status, Translate(err))
	}
	return FromError(err)
}

// IsRetryable reports whether err is a transient failure worth another attempt.
// Validation, permission and not-found failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Code == ErrNetwork.Code {
			return true
		}
		if appErr.Status >= http.StatusBadRequest && appErr.Status < http.StatusInternalServerError {
			return false
		}
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, sql.ErrNoRows):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, pgConnectionClass) ||
			code == pgSerializationFailure ||
			code == pgDeadlockDetected ||
			code == pgAdminShutdown
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
