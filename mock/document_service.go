package mock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tenantdb/tenantdb"
)

var (
	_ tenantdb.DocumentService   = (*DocumentService)(nil)
	_ tenantdb.SettingsService   = (*SettingsService)(nil)
	_ tenantdb.RequestLogService = (*RequestLogService)(nil)
)

// DocumentService is a mock implementation of tenantdb.DocumentService.
type DocumentService struct {
	CreateDocumentFn  func(context.Context, string, string, string, json.RawMessage, string) (*tenantdb.DocumentSaved, error)
	UpdateDocumentFn  func(context.Context, string, string, string, tenantdb.DocumentUpdate, string) (*tenantdb.DocumentSaved, error)
	FindDocumentFn    func(context.Context, string, string, string) (*tenantdb.Document, error)
	DeleteDocumentFn  func(context.Context, string, string, string) error
	SearchDocumentsFn func(context.Context, string, tenantdb.SearchQuery) (*tenantdb.DocumentPage, error)
}

func (s *DocumentService) CreateDocument(ctx context.Context, tenantID, typ, id string, source json.RawMessage, author string) (*tenantdb.DocumentSaved, error) {
	return s.CreateDocumentFn(ctx, tenantID, typ, id, source, author)
}

func (s *DocumentService) UpdateDocument(ctx context.Context, tenantID, typ, id string, upd tenantdb.DocumentUpdate, author string) (*tenantdb.DocumentSaved, error) {
	return s.UpdateDocumentFn(ctx, tenantID, typ, id, upd, author)
}

func (s *DocumentService) FindDocument(ctx context.Context, tenantID, typ, id string) (*tenantdb.Document, error) {
	return s.FindDocumentFn(ctx, tenantID, typ, id)
}

func (s *DocumentService) DeleteDocument(ctx context.Context, tenantID, typ, id string) error {
	return s.DeleteDocumentFn(ctx, tenantID, typ, id)
}

func (s *DocumentService) SearchDocuments(ctx context.Context, tenantID string, q tenantdb.SearchQuery) (*tenantdb.DocumentPage, error) {
	return s.SearchDocumentsFn(ctx, tenantID, q)
}

// SettingsService is a mock implementation of tenantdb.SettingsService.
type SettingsService struct {
	FindSettingsFn         func(context.Context, string, string) (json.RawMessage, error)
	PutSettingsFn          func(context.Context, string, string, json.RawMessage) error
	DeleteSettingsFn       func(context.Context, string, string) error
	DeleteTenantSettingsFn func(context.Context, string) error
}

// NewSettingsService returns a mock of SettingsService where no settings exist.
func NewSettingsService() *SettingsService {
	return &SettingsService{
		FindSettingsFn: func(_ context.Context, _ string, id string) (json.RawMessage, error) {
			return nil, tenantdb.ErrNotFound("settings [%s] not found", id)
		},
		PutSettingsFn:          func(context.Context, string, string, json.RawMessage) error { return nil },
		DeleteSettingsFn:       func(context.Context, string, string) error { return nil },
		DeleteTenantSettingsFn: func(context.Context, string) error { return nil },
	}
}

func (s *SettingsService) FindSettings(ctx context.Context, tenantID, id string) (json.RawMessage, error) {
	return s.FindSettingsFn(ctx, tenantID, id)
}

func (s *SettingsService) PutSettings(ctx context.Context, tenantID, id string, settings json.RawMessage) error {
	return s.PutSettingsFn(ctx, tenantID, id, settings)
}

func (s *SettingsService) DeleteSettings(ctx context.Context, tenantID, id string) error {
	return s.DeleteSettingsFn(ctx, tenantID, id)
}

func (s *SettingsService) DeleteTenantSettings(ctx context.Context, tenantID string) error {
	return s.DeleteTenantSettingsFn(ctx, tenantID)
}

// RequestLogService is a mock implementation of tenantdb.RequestLogService.
type RequestLogService struct {
	AddLogFn    func(context.Context, *tenantdb.LogEntry) error
	FindLogsFn  func(context.Context, tenantdb.LogFilter) ([]*tenantdb.LogEntry, error)
	PurgeLogsFn func(context.Context, string, time.Time) (int64, error)
}

// NewRequestLogService returns a mock of RequestLogService where its methods will return zero values.
func NewRequestLogService() *RequestLogService {
	return &RequestLogService{
		AddLogFn:    func(context.Context, *tenantdb.LogEntry) error { return nil },
		FindLogsFn:  func(context.Context, tenantdb.LogFilter) ([]*tenantdb.LogEntry, error) { return nil, nil },
		PurgeLogsFn: func(context.Context, string, time.Time) (int64, error) { return 0, nil },
	}
}

func (s *RequestLogService) AddLog(ctx context.Context, e *tenantdb.LogEntry) error {
	return s.AddLogFn(ctx, e)
}

func (s *RequestLogService) FindLogs(ctx context.Context, filter tenantdb.LogFilter) ([]*tenantdb.LogEntry, error) {
	return s.FindLogsFn(ctx, filter)
}

func (s *RequestLogService) PurgeLogs(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	return s.PurgeLogsFn(ctx, tenantID, before)
}
