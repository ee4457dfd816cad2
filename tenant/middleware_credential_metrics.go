package tenant

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/metric"
)

var _ tenantdb.CredentialService = (*CredentialMetrics)(nil)
var _ tenantdb.PasswordService = (*PasswordMetrics)(nil)

type CredentialMetrics struct {
	// RED metrics
	rec *metric.REDClient

	credentialService tenantdb.CredentialService
}

// NewCredentialMetrics returns a metrics service middleware for the Credential Service.
func NewCredentialMetrics(reg prometheus.Registerer, s tenantdb.CredentialService, opts ...metric.ClientOptFn) *CredentialMetrics {
	o := metric.ApplyMetricOpts(opts...)
	return &CredentialMetrics{
		rec:               metric.New(reg, o.ApplySuffix("credential"), opts...),
		credentialService: s,
	}
}

func (m *CredentialMetrics) FindCredentialByID(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	rec := m.rec.Record("find_credential_by_id")
	c, err := m.credentialService.FindCredentialByID(ctx, tenantID, id)
	return c, rec(err)
}

func (m *CredentialMetrics) FindCredentialByUsername(ctx context.Context, tenantID, username string) (*tenantdb.Credential, error) {
	rec := m.rec.Record("find_credential_by_username")
	c, err := m.credentialService.FindCredentialByUsername(ctx, tenantID, username)
	return c, rec(err)
}

func (m *CredentialMetrics) FindCredentialByToken(ctx context.Context, token string) (*tenantdb.Credential, error) {
	rec := m.rec.Record("find_credential_by_token")
	c, err := m.credentialService.FindCredentialByToken(ctx, token)
	return c, rec(err)
}

func (m *CredentialMetrics) FindCredentials(ctx context.Context, filter tenantdb.CredentialFilter, opt ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error) {
	rec := m.rec.Record("find_credentials")
	cs, n, err := m.credentialService.FindCredentials(ctx, filter, opt...)
	return cs, n, rec(err)
}

func (m *CredentialMetrics) CreateCredential(ctx context.Context, c *tenantdb.Credential, password string) error {
	rec := m.rec.Record("create_credential")
	err := m.credentialService.CreateCredential(ctx, c, password)
	return rec(err)
}

func (m *CredentialMetrics) UpdateCredential(ctx context.Context, tenantID, id string, upd tenantdb.CredentialUpdate) (*tenantdb.Credential, error) {
	rec := m.rec.Record("update_credential")
	c, err := m.credentialService.UpdateCredential(ctx, tenantID, id, upd)
	return c, rec(err)
}

func (m *CredentialMetrics) DeleteCredential(ctx context.Context, tenantID, id string) error {
	rec := m.rec.Record("delete_credential")
	err := m.credentialService.DeleteCredential(ctx, tenantID, id)
	return rec(err)
}

type PasswordMetrics struct {
	// RED metrics
	rec *metric.REDClient

	pwdService tenantdb.PasswordService
}

// NewPasswordMetrics returns a metrics service middleware for the Password Service.
func NewPasswordMetrics(reg prometheus.Registerer, s tenantdb.PasswordService, opts ...metric.ClientOptFn) *PasswordMetrics {
	o := metric.ApplyMetricOpts(opts...)
	return &PasswordMetrics{
		rec:        metric.New(reg, o.ApplySuffix("password"), opts...),
		pwdService: s,
	}
}

func (m *PasswordMetrics) ComparePassword(ctx context.Context, tenantID, username, password string) (*tenantdb.Credential, error) {
	rec := m.rec.Record("compare_password")
	c, err := m.pwdService.ComparePassword(ctx, tenantID, username, password)
	return c, rec(err)
}

func (m *PasswordMetrics) SetPassword(ctx context.Context, tenantID, id, password string) error {
	rec := m.rec.Record("set_password")
	err := m.pwdService.SetPassword(ctx, tenantID, id, password)
	return rec(err)
}

func (m *PasswordMetrics) SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) error {
	rec := m.rec.Record("set_password_with_code")
	err := m.pwdService.SetPasswordWithCode(ctx, tenantID, id, code, password)
	return rec(err)
}

func (m *PasswordMetrics) ResetPassword(ctx context.Context, tenantID, id string) (string, error) {
	rec := m.rec.Record("reset_password")
	code, err := m.pwdService.ResetPassword(ctx, tenantID, id)
	return code, rec(err)
}
