package tenant

import (
	"fmt"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

var (
	// ErrUsernameEmpty is returned when a credential has no username.
	ErrUsernameEmpty = &errors.Error{
		Code: errors.EInvalid,
		Msg:  "username is empty",
	}

	// ErrPasswordEmpty is returned when an empty password is set.
	ErrPasswordEmpty = &errors.Error{
		Code: errors.EInvalid,
		Msg:  "password is empty",
	}

	// ErrInvalidCredentials is returned for unknown usernames and wrong passwords alike.
	ErrInvalidCredentials = &errors.Error{
		Code: errors.EUnauthorized,
		Msg:  "invalid username or password",
	}

	// ErrInvalidToken is returned for unknown and expired access tokens.
	ErrInvalidToken = &errors.Error{
		Code: errors.EUnauthorized,
		Msg:  "invalid or expired access token",
	}

	// ErrInvalidKey is returned when an API key is unknown or its secret does not match.
	ErrInvalidKey = &errors.Error{
		Code: errors.EUnauthorized,
		Msg:  "invalid key",
	}

	// ErrInvalidResetCode is returned when a password reset code does not match.
	ErrInvalidResetCode = &errors.Error{
		Code: errors.EForbidden,
		Msg:  "invalid password reset code",
	}

	// ErrRootTenant is returned when the root tenant is provisioned or deleted through the API.
	ErrRootTenant = &errors.Error{
		Code: errors.EInvalid,
		Msg:  "the root tenant cannot be provisioned or deleted",
	}
)

// ErrCredentialNotFound is returned when a credential does not exist in a tenant.
func ErrCredentialNotFound(tenantID, ref string) *errors.Error {
	return &errors.Error{
		Code: errors.ENotFound,
		Msg:  fmt.Sprintf("credential [%s] not found in backend [%s]", ref, tenantID),
	}
}

// ErrUsernameReserved is returned when a username is taken by the anonymous
// or the key identities.
func ErrUsernameReserved(username string) *errors.Error {
	return &errors.Error{
		Code: errors.EInvalid,
		Msg:  fmt.Sprintf("username [%s] is reserved; usernames cannot be %q or contain ':'", username, tenantdb.AnonymousUsername),
	}
}

// ErrTenantNotFound is returned when a tenant does not exist.
func ErrTenantNotFound(id string) *errors.Error {
	return &errors.Error{
		Code: errors.ENotFound,
		Msg:  fmt.Sprintf("backend [%s] not found", id),
	}
}

// UsernameAlreadyExistsError is returned when a username is taken in a tenant.
func UsernameAlreadyExistsError(tenantID, username string) *errors.Error {
	return &errors.Error{
		Code: errors.EConflict,
		Msg:  fmt.Sprintf("username [%s] already exists in backend [%s]", username, tenantID),
	}
}

// CredentialIDAlreadyExistsError is returned when a credential id is taken in a tenant.
func CredentialIDAlreadyExistsError(tenantID, id string) *errors.Error {
	return &errors.Error{
		Code: errors.EConflict,
		Msg:  fmt.Sprintf("credential [%s] already exists in backend [%s]", id, tenantID),
	}
}

// TenantAlreadyExistsError is returned when a tenant id is taken.
func TenantAlreadyExistsError(id string) *errors.Error {
	return &errors.Error{
		Code: errors.EConflict,
		Msg:  fmt.Sprintf("backend [%s] already exists", id),
	}
}

// ErrInvalidTenantID is returned for tenant ids that cannot name a host label.
func ErrInvalidTenantID(id string) *errors.Error {
	return &errors.Error{
		Code: errors.EInvalid,
		Msg:  fmt.Sprintf("invalid backend id [%s]", id),
	}
}

// ErrCorruptCredential is returned when a stored credential cannot be decoded.
func ErrCorruptCredential(err error) *errors.Error {
	return &errors.Error{
		Code: errors.EInternal,
		Msg:  "credential could not be unmarshalled",
		Err:  err,
		Op:   "tenant/unmarshalCredential",
	}
}

// ErrCorruptTenant is returned when a stored tenant cannot be decoded.
func ErrCorruptTenant(err error) *errors.Error {
	return &errors.Error{
		Code: errors.EInternal,
		Msg:  "backend could not be unmarshalled",
		Err:  err,
		Op:   "tenant/unmarshalTenant",
	}
}

// ErrInternalServiceError wraps errors that do not carry a code yet.
func ErrInternalServiceError(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return &errors.Error{
		Code: errors.EInternal,
		Op:   op,
		Err:  err,
	}
}
