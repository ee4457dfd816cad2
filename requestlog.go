package tenantdb

import (
	"context"
	"time"
)

// LogEntry records one top level request.
type LogEntry struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenantId" db:"tenant_id"`
	Method     string    `json:"method" db:"method"`
	Path       string    `json:"path" db:"path"`
	Status     int       `json:"status" db:"status"`
	Username   string    `json:"username" db:"username"`
	Level      string    `json:"level" db:"level"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
	DurationMS int64     `json:"durationMs" db:"duration_ms"`
}

// LogFilter restricts the entries returned by FindLogs.
type LogFilter struct {
	TenantID string
	Since    *time.Time
	Limit    int
	Offset   int
}

// RequestLogService persists request log entries.
type RequestLogService interface {
	AddLog(ctx context.Context, e *LogEntry) error
	FindLogs(ctx context.Context, filter LogFilter) ([]*LogEntry, error)
	// PurgeLogs removes the entries of a tenant received before t and returns how many were removed.
	PurgeLogs(ctx context.Context, tenantID string, before time.Time) (int64, error)
}
