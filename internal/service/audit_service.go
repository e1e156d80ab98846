package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/export"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// AuditService queries the append-only trail and renders compliance exports.
type AuditService struct {
	repo   auditStore
	csv    *export.CSVExporter
	logger *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, csv: export.NewCSVExporter(), logger: logger}
}

// List returns audit records matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, nil
}

// ExportCSV renders matching records as CSV for inspection handoff.
func (s *AuditService) ExportCSV(ctx context.Context, filter models.AuditFilter) ([]byte, error) {
	logs, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	headers := []string{"Timestamp", "User", "Action", "Resource", "Resource ID", "IP Address", "Detail"}
	rows := make([]map[string]string, 0, len(logs))
	for _, log := range logs {
		row := map[string]string{
			"Timestamp":  log.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"Action":     log.Action,
			"Resource":   log.Resource,
			"IP Address": log.IPAddress,
			"Detail":     string(log.NewValues),
		}
		if log.UserID != nil {
			row["User"] = *log.UserID
		}
		if log.ResourceID != nil {
			row["Resource ID"] = *log.ResourceID
		}
		rows = append(rows, row)
	}
	data, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}
	s.logger.Sugar().Infow("audit export rendered", "rows", len(rows))
	return data, nil
}

// Record appends one audit entry. Handlers use it for request-level actions
// the services do not own.
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) error {
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		return fmt.Errorf("record audit log: %w", err)
	}
	return nil
}
