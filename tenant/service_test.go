package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb"
	platformerrors "github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/tenant"
	itesting "github.com/tenantdb/tenantdb/testing"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, opts ...tenant.ServiceOption) (*tenant.Service, *clock.Mock) {
	t.Helper()

	store, err := tenant.NewStore(itesting.NewTestInmemStore(t))
	require.NoError(t, err)

	clk := clock.NewMock()
	clk.Set(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC))
	opts = append([]tenant.ServiceOption{tenant.WithClock(clk), tenant.WithPasswordSalt("pepper")}, opts...)
	svc := tenant.NewService(store, opts...)

	_, err = svc.EnsureTenant(context.Background(), tenantdb.RootTenantID)
	require.NoError(t, err)
	return svc, clk
}

func createTenant(t *testing.T, svc *tenant.Service, id string) (*tenantdb.Tenant, *tenantdb.Credential) {
	t.Helper()
	tn, c, err := svc.CreateTenant(context.Background(), tenantdb.TenantCreate{
		TenantID: id,
		Username: "boss",
		Password: "hi-dude",
		Email:    "boss@" + id + ".com",
	})
	require.NoError(t, err)
	return tn, c
}

func TestService_CreateTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tn, c := createTenant(t, svc, "acme")
	assert.Equal(t, "acme", tn.ID)
	key, ok := tn.Key(tenantdb.DefaultKeyName)
	require.True(t, ok)
	assert.NotEmpty(t, key.Secret)

	assert.Equal(t, tenantdb.LevelSuperAdmin, c.Level)
	assert.Equal(t, int64(1), c.Version)
	assert.NotEqual(t, "hi-dude", c.HashedPassword)

	_, _, err := svc.CreateTenant(ctx, tenantdb.TenantCreate{TenantID: "acme", Username: "x", Password: "y"})
	assert.Equal(t, platformerrors.EConflict, platformerrors.ErrorCode(err))

	_, _, err = svc.CreateTenant(ctx, tenantdb.TenantCreate{TenantID: "Not Valid", Username: "x", Password: "y"})
	assert.Equal(t, platformerrors.EInvalid, platformerrors.ErrorCode(err))

	_, _, err = svc.CreateTenant(ctx, tenantdb.TenantCreate{TenantID: tenantdb.RootTenantID, Username: "x", Password: "y"})
	assert.Equal(t, platformerrors.EInvalid, platformerrors.ErrorCode(err))

	require.NoError(t, svc.CheckKey(ctx, "acme", tenantdb.DefaultKeyName, key.Secret))
	assert.Equal(t, tenant.ErrInvalidKey, svc.CheckKey(ctx, "acme", tenantdb.DefaultKeyName, "nope"))
	assert.Equal(t, tenant.ErrInvalidKey, svc.CheckKey(ctx, "nobody", tenantdb.DefaultKeyName, key.Secret))
}

func TestService_UsernameUniquePerTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createTenant(t, svc, "acme")
	createTenant(t, svc, "other")

	err := svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "acme", Username: "BOSS", Level: tenantdb.LevelUser}, "pwd")
	assert.Equal(t, platformerrors.EConflict, platformerrors.ErrorCode(err))

	err = svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "other", Username: "fred", Level: tenantdb.LevelUser}, "pwd")
	require.NoError(t, err)
	err = svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "acme", Username: "fred", Level: tenantdb.LevelUser}, "pwd")
	require.NoError(t, err)

	_, n, err := svc.FindCredentials(ctx, tenantdb.CredentialFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_CreateCredential_ReservedUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createTenant(t, svc, "acme")

	for _, username := range []string{tenantdb.AnonymousUsername, "Anonymous", tenantdb.KeyPrincipalPrefix + tenantdb.DefaultKeyName, "a:b"} {
		t.Run(username, func(t *testing.T) {
			err := svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "acme", Username: username, Level: tenantdb.LevelUser}, "secret")
			assert.Equal(t, platformerrors.EInvalid, platformerrors.ErrorCode(err))
		})
	}

	_, _, err := svc.CreateTenant(ctx, tenantdb.TenantCreate{TenantID: "guests", Username: tenantdb.AnonymousUsername, Password: "y"})
	assert.Equal(t, platformerrors.EInvalid, platformerrors.ErrorCode(err))

	// the plain key name is an ordinary username
	require.NoError(t, svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "acme", Username: tenantdb.DefaultKeyName, Level: tenantdb.LevelUser}, "secret"))
}

func TestService_CreateCredential_Superdog(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createTenant(t, svc, "acme")

	tests := []struct {
		name string
		c    *tenantdb.Credential
		code string
	}{
		{
			name: "superdog in root",
			c:    &tenantdb.Credential{TenantID: tenantdb.RootTenantID, Username: "superdog-dave", Level: tenantdb.LevelSuperdog},
		},
		{
			name: "superdog outside root",
			c:    &tenantdb.Credential{TenantID: "acme", Username: "superdog-eve", Level: tenantdb.LevelSuperdog},
			code: platformerrors.EInvalid,
		},
		{
			name: "superdog level without prefix",
			c:    &tenantdb.Credential{TenantID: tenantdb.RootTenantID, Username: "mallory", Level: tenantdb.LevelSuperdog},
			code: platformerrors.EInvalid,
		},
		{
			name: "unknown tenant",
			c:    &tenantdb.Credential{TenantID: "ghost", Username: "casper", Level: tenantdb.LevelUser},
			code: platformerrors.ENotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateCredential(ctx, tt.c, "pwd")
			assert.Equal(t, tt.code, platformerrors.ErrorCode(err))
		})
	}
}

func TestService_Passwords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, boss := createTenant(t, svc, "acme")

	c, err := svc.ComparePassword(ctx, "acme", "boss", "hi-dude")
	require.NoError(t, err)
	assert.Equal(t, boss.ID, c.ID)

	_, err = svc.ComparePassword(ctx, "acme", "boss", "wrong")
	assert.Equal(t, tenant.ErrInvalidCredentials, err)
	_, err = svc.ComparePassword(ctx, "acme", "nobody", "hi-dude")
	assert.Equal(t, tenant.ErrInvalidCredentials, err)

	code, err := svc.ResetPassword(ctx, "acme", boss.ID)
	require.NoError(t, err)
	_, err = svc.ComparePassword(ctx, "acme", "boss", "hi-dude")
	assert.Equal(t, tenant.ErrInvalidCredentials, err)

	assert.Equal(t, tenant.ErrInvalidResetCode, svc.SetPasswordWithCode(ctx, "acme", boss.ID, "bad", "new"))
	require.NoError(t, svc.SetPasswordWithCode(ctx, "acme", boss.ID, code, "new"))
	_, err = svc.ComparePassword(ctx, "acme", "boss", "new")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, "acme", boss.ID, "newer"))
	_, err = svc.ComparePassword(ctx, "acme", "boss", "newer")
	require.NoError(t, err)
	assert.Equal(t, tenant.ErrPasswordEmpty, svc.SetPassword(ctx, "acme", boss.ID, ""))
}

func TestService_CredentialWithoutPasswordCannotLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createTenant(t, svc, "acme")

	c := &tenantdb.Credential{TenantID: "acme", Username: "vince", Level: tenantdb.LevelUser}
	require.NoError(t, svc.CreateCredential(ctx, c, ""))
	assert.NotEmpty(t, c.PasswordResetCode)
	assert.Empty(t, c.HashedPassword)

	_, err := svc.ComparePassword(ctx, "acme", "vince", "")
	assert.Equal(t, tenant.ErrInvalidCredentials, err)
}

func TestService_Sessions(t *testing.T) {
	svc, clk := newTestService(t, tenant.WithTokenLifetime(time.Hour))
	ctx := context.Background()
	_, boss := createTenant(t, svc, "acme")

	c, err := svc.CreateSession(ctx, "acme", boss.ID)
	require.NoError(t, err)
	require.NotEmpty(t, c.AccessToken)
	assert.Equal(t, clk.Now().UTC().Add(time.Hour), c.AccessTokenExpiresAt)

	found, err := svc.FindCredentialByToken(ctx, c.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, boss.ID, found.ID)

	// a new session revokes the previous token
	again, err := svc.CreateSession(ctx, "acme", boss.ID)
	require.NoError(t, err)
	_, err = svc.FindCredentialByToken(ctx, c.AccessToken)
	assert.Equal(t, tenant.ErrInvalidToken, err)

	clk.Add(time.Hour)
	_, err = svc.FindCredentialByToken(ctx, again.AccessToken)
	assert.Equal(t, tenant.ErrInvalidToken, err)

	third, err := svc.CreateSession(ctx, "acme", boss.ID)
	require.NoError(t, err)
	require.NoError(t, svc.ExpireSession(ctx, "acme", boss.ID))
	_, err = svc.FindCredentialByToken(ctx, third.AccessToken)
	assert.Equal(t, tenant.ErrInvalidToken, err)
}

func TestService_UpdateCredential(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	_, boss := createTenant(t, svc, "acme")

	clk.Add(time.Minute)
	admin := tenantdb.LevelAdmin
	email := "b@acme.com"
	c, err := svc.UpdateCredential(ctx, "acme", boss.ID, tenantdb.CredentialUpdate{
		Level:      &admin,
		Email:      &email,
		GrantRoles: []string{"driver"},
	})
	require.NoError(t, err)
	assert.Equal(t, tenantdb.LevelAdmin, c.Level)
	assert.Equal(t, email, c.Email)
	assert.Equal(t, []string{"driver"}, c.Roles)
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, clk.Now().UTC(), c.UpdatedAt)

	// no change, no new version
	c, err = svc.UpdateCredential(ctx, "acme", boss.ID, tenantdb.CredentialUpdate{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)

	c, err = svc.UpdateCredential(ctx, "acme", boss.ID, tenantdb.CredentialUpdate{RevokeRoles: []string{"driver"}})
	require.NoError(t, err)
	assert.Empty(t, c.Roles)

	_, err = svc.UpdateCredential(ctx, "acme", "missing", tenantdb.CredentialUpdate{Email: &email})
	assert.Equal(t, platformerrors.ENotFound, platformerrors.ErrorCode(err))
}

func TestService_DeleteCredentialIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, boss := createTenant(t, svc, "acme")

	require.NoError(t, svc.DeleteCredential(ctx, "acme", boss.ID))
	require.NoError(t, svc.DeleteCredential(ctx, "acme", boss.ID))

	_, err := svc.FindCredentialByUsername(ctx, "acme", "boss")
	assert.Equal(t, platformerrors.ENotFound, platformerrors.ErrorCode(err))

	// the username is free again
	require.NoError(t, svc.CreateCredential(ctx, &tenantdb.Credential{TenantID: "acme", Username: "boss", Level: tenantdb.LevelUser}, "x"))
}

func TestService_DeleteTenant(t *testing.T) {
	var cleaned []string
	cleanup := func(ctx context.Context, tenantID string) error {
		cleaned = append(cleaned, tenantID)
		return nil
	}
	failing := func(ctx context.Context, tenantID string) error {
		return errors.New("engine unavailable")
	}

	svc, _ := newTestService(t, tenant.WithTenantCleanup(cleanup))
	ctx := context.Background()
	createTenant(t, svc, "acme")
	createTenant(t, svc, "other")

	require.NoError(t, svc.DeleteTenant(ctx, "acme"))
	assert.Equal(t, []string{"acme"}, cleaned)

	_, err := svc.FindTenantByID(ctx, "acme")
	assert.Equal(t, platformerrors.ENotFound, platformerrors.ErrorCode(err))
	_, n, err := svc.FindCredentials(ctx, tenantdb.CredentialFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, n, err = svc.FindCredentials(ctx, tenantdb.CredentialFilter{TenantID: "other"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, tenant.ErrRootTenant, svc.DeleteTenant(ctx, tenantdb.RootTenantID))
	assert.Equal(t, platformerrors.ENotFound, platformerrors.ErrorCode(svc.DeleteTenant(ctx, "acme")))

	svc2, _ := newTestService(t, tenant.WithTenantCleanup(failing, cleanup))
	createTenant(t, svc2, "acme")
	err = svc2.DeleteTenant(ctx, "acme")
	assert.Equal(t, platformerrors.EInternal, platformerrors.ErrorCode(err))
	// the remaining cleanups and the credential store still ran
	assert.Equal(t, []string{"acme", "acme"}, cleaned)
	_, err = svc2.FindTenantByID(ctx, "acme")
	assert.Equal(t, platformerrors.ENotFound, platformerrors.ErrorCode(err))
}

func TestServiceDecorators(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createTenant(t, svc, "acme")

	reg := prometheus.NewRegistry()
	var creds tenantdb.CredentialService = tenant.NewCredentialMetrics(reg, svc)
	creds = tenant.NewCredentialLogger(zaptest.NewLogger(t), creds)

	c, err := creds.FindCredentialByUsername(ctx, "acme", "boss")
	require.NoError(t, err)
	assert.Equal(t, "boss", c.Username)

	pwd := tenant.NewPasswordMetrics(reg, svc)
	_, err = pwd.ComparePassword(ctx, "acme", "boss", "wrong")
	assert.Error(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
