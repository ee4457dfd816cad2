// Package requestlog records the top level requests served for each tenant in SQLite.
package requestlog

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/tenantdb/tenantdb"
	ierrors "github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/sqlite"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// timeLayout has a fixed width so stored times compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ tenantdb.RequestLogService = (*Service)(nil)

type Service struct {
	store *sqlite.SqlStore
	log   *zap.Logger
}

func NewService(logger *zap.Logger, store *sqlite.SqlStore) *Service {
	return &Service{
		store: store,
		log:   logger,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// AddLog records e, assigning it an id when it has none.
func (s *Service) AddLog(ctx context.Context, e *tenantdb.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query, args, err := sq.Insert("request_log").
		Columns("id", "tenant_id", "method", "path", "status", "username", "level", "received_at", "duration_ms").
		Values(e.ID, e.TenantID, e.Method, e.Path, e.Status, e.Username, e.Level, formatTime(e.ReceivedAt), e.DurationMS).
		ToSql()
	if err != nil {
		return err
	}

	s.store.Mu.Lock()
	defer s.store.Mu.Unlock()

	if _, err := s.store.DB.ExecContext(ctx, query, args...); err != nil {
		return &ierrors.Error{Code: ierrors.EInternal, Op: "AddLog", Err: err}
	}
	return nil
}

// FindLogs returns entries matching filter, most recent first. An empty tenant
// id matches every tenant.
func (s *Service) FindLogs(ctx context.Context, filter tenantdb.LogFilter) ([]*tenantdb.LogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := sq.Select("id", "tenant_id", "method", "path", "status", "username", "level", "received_at", "duration_ms").
		From("request_log").
		OrderBy("received_at DESC", "id").
		Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	if filter.TenantID != "" {
		q = q.Where(sq.Eq{"tenant_id": filter.TenantID})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"received_at": formatTime(*filter.Since)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	entries := []*tenantdb.LogEntry{}
	if err := s.store.DB.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, &ierrors.Error{Code: ierrors.EInternal, Op: "FindLogs", Err: err}
	}
	return entries, nil
}

// PurgeLogs removes the entries of a tenant received before the given time. A
// zero time removes every entry of the tenant.
func (s *Service) PurgeLogs(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	q := sq.Delete("request_log").Where(sq.Eq{"tenant_id": tenantID})
	if !before.IsZero() {
		q = q.Where(sq.Lt{"received_at": formatTime(before)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}

	s.store.Mu.Lock()
	defer s.store.Mu.Unlock()

	res, err := s.store.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &ierrors.Error{Code: ierrors.EInternal, Op: "PurgeLogs", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.log.Debug("Purged request log", zap.String("tenant", tenantID), zap.Int64("count", n))
	return n, nil
}

// DeleteTenantLogs removes every entry of a tenant.
func (s *Service) DeleteTenantLogs(ctx context.Context, tenantID string) error {
	_, err := s.PurgeLogs(ctx, tenantID, time.Time{})
	return err
}
