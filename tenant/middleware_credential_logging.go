package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantdb/tenantdb"
	"go.uber.org/zap"
)

type CredentialLogger struct {
	logger            *zap.Logger
	credentialService tenantdb.CredentialService
}

// NewCredentialLogger returns a logging service middleware for the Credential Service.
func NewCredentialLogger(log *zap.Logger, s tenantdb.CredentialService) *CredentialLogger {
	return &CredentialLogger{
		logger:            log,
		credentialService: s,
	}
}

var _ tenantdb.CredentialService = (*CredentialLogger)(nil)

func (l *CredentialLogger) FindCredentialByID(ctx context.Context, tenantID, id string) (c *tenantdb.Credential, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to find credential with ID %v in %v", id, tenantID)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential find by ID", dur)
	}(time.Now())
	return l.credentialService.FindCredentialByID(ctx, tenantID, id)
}

func (l *CredentialLogger) FindCredentialByUsername(ctx context.Context, tenantID, username string) (c *tenantdb.Credential, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to find credential with username %v in %v", username, tenantID)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential find by username", dur)
	}(time.Now())
	return l.credentialService.FindCredentialByUsername(ctx, tenantID, username)
}

func (l *CredentialLogger) FindCredentialByToken(ctx context.Context, token string) (c *tenantdb.Credential, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find credential by token", zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential find by token", dur)
	}(time.Now())
	return l.credentialService.FindCredentialByToken(ctx, token)
}

func (l *CredentialLogger) FindCredentials(ctx context.Context, filter tenantdb.CredentialFilter, opt ...tenantdb.FindOptions) (cs []*tenantdb.Credential, n int, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find credentials matching the given filter", zap.Error(err), dur)
			return
		}
		l.logger.Debug("credentials find", dur)
	}(time.Now())
	return l.credentialService.FindCredentials(ctx, filter, opt...)
}

func (l *CredentialLogger) CreateCredential(ctx context.Context, c *tenantdb.Credential, password string) (err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to create credential", zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential create", dur)
	}(time.Now())
	return l.credentialService.CreateCredential(ctx, c, password)
}

func (l *CredentialLogger) UpdateCredential(ctx context.Context, tenantID, id string, upd tenantdb.CredentialUpdate) (c *tenantdb.Credential, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to update credential", zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential update", dur)
	}(time.Now())
	return l.credentialService.UpdateCredential(ctx, tenantID, id, upd)
}

func (l *CredentialLogger) DeleteCredential(ctx context.Context, tenantID, id string) (err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to delete credential with ID %v in %v", id, tenantID)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Debug("credential delete", dur)
	}(time.Now())
	return l.credentialService.DeleteCredential(ctx, tenantID, id)
}

type TenantLogger struct {
	logger        *zap.Logger
	tenantService tenantdb.TenantService
}

// NewTenantLogger returns a logging service middleware for the Tenant Service.
func NewTenantLogger(log *zap.Logger, s tenantdb.TenantService) *TenantLogger {
	return &TenantLogger{
		logger:        log,
		tenantService: s,
	}
}

var _ tenantdb.TenantService = (*TenantLogger)(nil)

func (l *TenantLogger) CreateTenant(ctx context.Context, tc tenantdb.TenantCreate) (t *tenantdb.Tenant, c *tenantdb.Credential, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to create backend %v", tc.TenantID)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Info("backend create", zap.String("tenant", tc.TenantID), dur)
	}(time.Now())
	return l.tenantService.CreateTenant(ctx, tc)
}

func (l *TenantLogger) FindTenantByID(ctx context.Context, id string) (t *tenantdb.Tenant, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to find backend %v", id)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Debug("backend find by ID", dur)
	}(time.Now())
	return l.tenantService.FindTenantByID(ctx, id)
}

func (l *TenantLogger) FindTenants(ctx context.Context) (ts []*tenantdb.Tenant, err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			l.logger.Debug("failed to find backends", zap.Error(err), dur)
			return
		}
		l.logger.Debug("backends find", dur)
	}(time.Now())
	return l.tenantService.FindTenants(ctx)
}

func (l *TenantLogger) DeleteTenant(ctx context.Context, id string) (err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to delete backend %v", id)
			l.logger.Error(msg, zap.Error(err), dur)
			return
		}
		l.logger.Info("backend delete", zap.String("tenant", id), dur)
	}(time.Now())
	return l.tenantService.DeleteTenant(ctx, id)
}

func (l *TenantLogger) CheckKey(ctx context.Context, tenantID, name, secret string) (err error) {
	defer func(start time.Time) {
		dur := zap.Duration("took", time.Since(start))
		if err != nil {
			msg := fmt.Sprintf("failed to check key %v of backend %v", name, tenantID)
			l.logger.Debug(msg, zap.Error(err), dur)
			return
		}
		l.logger.Debug("key check", dur)
	}(time.Now())
	return l.tenantService.CheckKey(ctx, tenantID, name, secret)
}
