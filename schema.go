package tenantdb

import (
	"context"
	"encoding/json"
)

// SettingsType is reserved for tenant settings and cannot be declared as a schema.
const SettingsType = "settings"

// SchemaApplied reports the outcome of applying a declaration.
type SchemaApplied struct {
	Type    string `json:"id"`
	Created bool   `json:"created"`
	Changed bool   `json:"changed"`
}

// SchemaService stores type declarations of tenants.
type SchemaService interface {
	// ApplySchema validates, compiles and provisions a declaration.
	ApplySchema(ctx context.Context, tenantID, typ string, declaration json.RawMessage, opts TypeOptions) (*SchemaApplied, error)

	// FindSchema returns the declaration of typ as it was applied.
	FindSchema(ctx context.Context, tenantID, typ string) (json.RawMessage, error)

	// FindSchemas returns every declaration of a tenant keyed by type.
	FindSchemas(ctx context.Context, tenantID string) (map[string]json.RawMessage, error)

	// DeleteSchema removes a type and its objects. Unknown types are not an error.
	DeleteSchema(ctx context.Context, tenantID, typ string) error
}

// SettingsService stores named JSON settings of tenants.
type SettingsService interface {
	FindSettings(ctx context.Context, tenantID, id string) (json.RawMessage, error)
	PutSettings(ctx context.Context, tenantID, id string, settings json.RawMessage) error
	DeleteSettings(ctx context.Context, tenantID, id string) error
	DeleteTenantSettings(ctx context.Context, tenantID string) error
}

// CredentialsSettingsID names the settings controlling credential sign-up.
const CredentialsSettingsID = "credentials"

// CredentialsSettings control self-service credential creation.
type CredentialsSettings struct {
	DisableGuestSignUp bool `json:"disableGuestSignUp"`
	MinPasswordLength  int  `json:"minPasswordLength,omitempty"`
}
