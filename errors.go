package tenantdb

import (
	"fmt"

	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// ErrTenantResolution is returned when the host of a request cannot be parsed.
func ErrTenantResolution(host string) *errors.Error {
	return &errors.Error{
		Code: errors.ETenantResolution,
		Msg:  fmt.Sprintf("unable to resolve tenant from host %q", host),
	}
}

// ErrAuthentication is returned for missing, malformed, unknown or expired credentials.
func ErrAuthentication(msg string) *errors.Error {
	return &errors.Error{
		Code: errors.EUnauthorized,
		Msg:  msg,
	}
}

// ErrDisabledCredential is returned when a disabled credential tries to act.
func ErrDisabledCredential(username string) *errors.Error {
	return &errors.Error{
		Code: errors.EDisabled,
		Msg:  fmt.Sprintf("credential %q is disabled", username),
	}
}

// ErrInsufficientPrivilege is returned when the caller level is below the required level.
func ErrInsufficientPrivilege(have, want Level) *errors.Error {
	return &errors.Error{
		Code: errors.EInsufficientPrivilege,
		Msg:  fmt.Sprintf("%s level is insufficient, %s level required", have, want),
	}
}

// ErrForbidden is returned when the ACL or an ownership check denies an operation.
func ErrForbidden(format string, args ...interface{}) *errors.Error {
	return &errors.Error{
		Code: errors.EForbidden,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ErrNotOwner is returned when an own-objects permission is used on another credential's object.
func ErrNotOwner(username, typ, id string) *errors.Error {
	return ErrForbidden("%q is not the owner of [%s][%s] object", username, typ, id)
}

// ErrSchema is returned for invalid schema declarations.
func ErrSchema(format string, args ...interface{}) *errors.Error {
	return &errors.Error{
		Code: errors.EInvalidSchema,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ErrVersionConflict is returned when an expected version does not match the stored one.
func ErrVersionConflict(typ, id string, expected, actual int64) *errors.Error {
	return &errors.Error{
		Code: errors.EVersionConflict,
		Msg: fmt.Sprintf("[%s][%s] object version is [%d], not [%d]",
			typ, id, actual, expected),
	}
}

// ErrNotFound is returned for unknown tenants, types, credentials or objects.
func ErrNotFound(format string, args ...interface{}) *errors.Error {
	return &errors.Error{
		Code: errors.ENotFound,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ErrIllegalArgument is returned for malformed request shapes.
func ErrIllegalArgument(format string, args ...interface{}) *errors.Error {
	return &errors.Error{
		Code: errors.EInvalid,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ErrBatchLimitExceeded is returned when a batch holds more than max sub-requests.
func ErrBatchLimitExceeded(max int) *errors.Error {
	return &errors.Error{
		Code: errors.EBatchLimitExceeded,
		Msg:  fmt.Sprintf("batches are limited to %d sub requests", max),
	}
}

// ErrInternal wraps an unexpected error.
func ErrInternal(err error, op string) *errors.Error {
	return &errors.Error{
		Code: errors.EInternal,
		Op:   op,
		Err:  err,
	}
}
