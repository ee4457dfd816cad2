// Package settings stores named JSON settings objects of tenants in a kv.Store.
package settings

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
	"go.uber.org/zap"
)

// tenant, id -> settings object
var settingsBucket = []byte("settingsv1")

const keySeparator = "\x00"

var _ tenantdb.SettingsService = (*Service)(nil)

// Service implements tenantdb.SettingsService. Reads are cached on the
// security context of the request when there is one.
type Service struct {
	kvStore kv.Store
	log     *zap.Logger
}

// NewService returns a settings service over kvStore.
func NewService(log *zap.Logger, kvStore kv.Store) *Service {
	return &Service{
		kvStore: kvStore,
		log:     log,
	}
}

func settingsKey(tenantID, id string) []byte {
	return []byte(tenantID + keySeparator + id)
}

func cacheKey(tenantID, id string) string {
	return tenantID + keySeparator + id
}

func errSettingsNotFound(id string) error {
	return tenantdb.ErrNotFound("settings [%s] not found", id)
}

// FindSettings returns the settings object named id.
func (s *Service) FindSettings(ctx context.Context, tenantID, id string) (json.RawMessage, error) {
	sec, secErr := icontext.GetSecurity(ctx)
	if secErr == nil {
		if v, ok := sec.Settings(cacheKey(tenantID, id)); ok {
			if v == nil {
				return nil, errSettingsNotFound(id)
			}
			return v, nil
		}
	}

	var v json.RawMessage
	err := s.kvStore.View(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(settingsBucket)
		if err != nil {
			return err
		}
		raw, err := b.Get(settingsKey(tenantID, id))
		if kv.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		v = append(json.RawMessage(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, &errors.Error{Code: errors.EInternal, Op: "FindSettings", Err: err}
	}

	if secErr == nil {
		sec.CacheSettings(cacheKey(tenantID, id), v)
	}
	if v == nil {
		return nil, errSettingsNotFound(id)
	}
	return v, nil
}

// PutSettings creates or replaces the settings object named id.
func (s *Service) PutSettings(ctx context.Context, tenantID, id string, settings json.RawMessage) error {
	if id == "" {
		return tenantdb.ErrIllegalArgument("settings id is required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(settings, &obj); err != nil || obj == nil {
		return tenantdb.ErrIllegalArgument("settings must be a JSON object")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, settings); err != nil {
		return tenantdb.ErrIllegalArgument("settings must be a JSON object")
	}

	err := s.kvStore.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(settingsBucket)
		if err != nil {
			return err
		}
		return b.Put(settingsKey(tenantID, id), compact.Bytes())
	})
	if err != nil {
		return &errors.Error{Code: errors.EInternal, Op: "PutSettings", Err: err}
	}
	s.evict(ctx, tenantID, id)
	return nil
}

// DeleteSettings removes the settings object named id. Unknown settings are not an error.
func (s *Service) DeleteSettings(ctx context.Context, tenantID, id string) error {
	err := s.kvStore.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(settingsBucket)
		if err != nil {
			return err
		}
		return b.Delete(settingsKey(tenantID, id))
	})
	if err != nil {
		return &errors.Error{Code: errors.EInternal, Op: "DeleteSettings", Err: err}
	}
	s.evict(ctx, tenantID, id)
	return nil
}

// DeleteTenantSettings removes every settings object of a tenant.
func (s *Service) DeleteTenantSettings(ctx context.Context, tenantID string) error {
	var n int
	err := s.kvStore.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(settingsBucket)
		if err != nil {
			return err
		}
		n, err = kv.DeletePrefix(b, []byte(tenantID+keySeparator))
		return err
	})
	if err != nil {
		return &errors.Error{Code: errors.EInternal, Op: "DeleteTenantSettings", Err: err}
	}
	s.log.Debug("Deleted tenant settings", zap.String("tenant", tenantID), zap.Int("count", n))
	return nil
}

func (s *Service) evict(ctx context.Context, tenantID, id string) {
	if sec, err := icontext.GetSecurity(ctx); err == nil {
		sec.EvictSettings(cacheKey(tenantID, id))
	}
}

// CredentialsSettings returns the sign-up settings of a tenant, or their zero
// value when the tenant has none.
func CredentialsSettings(ctx context.Context, svc tenantdb.SettingsService, tenantID string) (tenantdb.CredentialsSettings, error) {
	var cs tenantdb.CredentialsSettings
	v, err := svc.FindSettings(ctx, tenantID, tenantdb.CredentialsSettingsID)
	if errors.ErrorCode(err) == errors.ENotFound {
		return cs, nil
	}
	if err != nil {
		return cs, err
	}
	if err := json.Unmarshal(v, &cs); err != nil {
		return cs, &errors.Error{Code: errors.EInternal, Msg: "corrupt credentials settings", Err: err}
	}
	return cs, nil
}
