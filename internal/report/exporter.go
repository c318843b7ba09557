// Package report produces operator-facing spreadsheet exports of the
// request base and its audit trail.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	requestsSheet = "Requests"
	auditSheet    = "Audit"

	exportPageSize = 500
)

// Exporter renders patron requests and audit history into xlsx workbooks.
type Exporter struct {
	requests *repository.PatronRequestRepository
	audit    *repository.AuditRepository
	logger   *zap.Logger
}

// NewExporter creates a report exporter
func NewExporter(requests *repository.PatronRequestRepository, audit *repository.AuditRepository, logger *zap.Logger) *Exporter {
	return &Exporter{requests: requests, audit: audit, logger: logger}
}

// WriteRequestsReport writes a workbook listing every patron request to w.
func (e *Exporter) WriteRequestsReport(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), requestsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []any{
		"ID", "Status", "Workflow", "Patron System", "Patron Local ID",
		"Bib Cluster", "Pickup Location", "Resolutions", "Renewals",
		"Error", "Created", "Updated",
	}
	if err := e.writeRow(f, requestsSheet, 1, headers); err != nil {
		return err
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		page, err := e.requests.List(ctx, exportPageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list requests: %w", err)
		}
		for _, pr := range page {
			values := []any{
				pr.ID.String(), string(pr.Status), pr.ActiveWorkflow,
				pr.PatronHostLmsCode, pr.PatronLocalID,
				pr.BibClusterID, pr.PickupLocationCode,
				pr.ResolutionCount, pr.RenewalCount,
				pr.ErrorMessage,
				pr.CreatedAt.Format(time.RFC3339), pr.UpdatedAt.Format(time.RFC3339),
			}
			if err := e.writeRow(f, requestsSheet, row, values); err != nil {
				return err
			}
			row++
		}
		if len(page) < exportPageSize {
			break
		}
	}

	e.logger.Info("Requests report generated", zap.Int("rows", row-2))
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteAuditReport writes a workbook with the audit trail of one request.
func (e *Exporter) WriteAuditReport(ctx context.Context, patronRequestID uuid.UUID, w io.Writer) error {
	entries, err := e.audit.ListByPatronRequest(ctx, patronRequestID)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), auditSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []any{"Timestamp", "From", "To", "Message", "Details"}
	if err := e.writeRow(f, auditSheet, 1, headers); err != nil {
		return err
	}
	for i, entry := range entries {
		values := []any{
			entry.CreatedAt.Format(time.RFC3339),
			string(entry.FromStatus), string(entry.ToStatus),
			entry.Message, flattenAuditData(entry),
		}
		if err := e.writeRow(f, auditSheet, i+2, values); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *Exporter) writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func flattenAuditData(entry *models.AuditEntry) string {
	if len(entry.AuditData) == 0 {
		return ""
	}
	out := ""
	for k, v := range entry.AuditData {
		if out != "" {
			out += "; "
		}
		out += fmt.Sprintf("%s=%v", k, v)
	}
	return out
}
