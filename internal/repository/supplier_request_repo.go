package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// SupplierRequestRepository handles supplier request database operations
type SupplierRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSupplierRequestRepository creates a new supplier request repository
func NewSupplierRequestRepository(db *sql.DB, logger *zap.Logger) *SupplierRequestRepository {
	return &SupplierRequestRepository{
		db:     db,
		logger: logger,
	}
}

const supplierRequestColumns = `
	id, patron_request_id, agency_code, host_lms_code, local_id,
	local_item_id, item_barcode, local_status, status_code,
	virtual_patron_id, is_active, created_at, updated_at
`

// Save inserts a new supplier request
func (r *SupplierRequestRepository) Save(ctx context.Context, sr *models.SupplierRequest) error {
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	now := time.Now().UTC()
	sr.CreatedAt = now
	sr.UpdatedAt = now

	query := `
		INSERT INTO supplier_requests (` + supplierRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		sr.ID.String(),
		sr.PatronRequestID.String(),
		sr.AgencyCode,
		sr.HostLmsCode,
		sr.LocalID,
		sr.LocalItemID,
		sr.ItemBarcode,
		sr.LocalStatus,
		string(sr.StatusCode),
		sr.VirtualPatronID,
		sr.IsActive,
		sr.CreatedAt,
		sr.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save supplier request", zap.String("id", sr.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to save supplier request: %w", err)
	}
	return nil
}

// Update writes the whole supplier request back by id
func (r *SupplierRequestRepository) Update(ctx context.Context, sr *models.SupplierRequest) error {
	sr.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE supplier_requests SET
			agency_code = ?, host_lms_code = ?, local_id = ?, local_item_id = ?,
			item_barcode = ?, local_status = ?, status_code = ?,
			virtual_patron_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		sr.AgencyCode,
		sr.HostLmsCode,
		sr.LocalID,
		sr.LocalItemID,
		sr.ItemBarcode,
		sr.LocalStatus,
		string(sr.StatusCode),
		sr.VirtualPatronID,
		sr.IsActive,
		sr.UpdatedAt,
		sr.ID.String(),
	)
	if err != nil {
		r.logger.Error("Failed to update supplier request", zap.String("id", sr.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update supplier request: %w", err)
	}
	return nil
}

// GetActiveByPatronRequest returns the single active supplier request for a
// patron request, or nil when none is active
func (r *SupplierRequestRepository) GetActiveByPatronRequest(ctx context.Context, patronRequestID uuid.UUID) (*models.SupplierRequest, error) {
	query := `
		SELECT ` + supplierRequestColumns + `
		FROM supplier_requests
		WHERE patron_request_id = ? AND is_active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, patronRequestID.String())
	sr, err := scanSupplierRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active supplier request",
			zap.String("patron_request_id", patronRequestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get active supplier request: %w", err)
	}
	return sr, nil
}

// ListByPatronRequest returns all supplier requests for a patron request,
// active and historical
func (r *SupplierRequestRepository) ListByPatronRequest(ctx context.Context, patronRequestID uuid.UUID) ([]*models.SupplierRequest, error) {
	query := `
		SELECT ` + supplierRequestColumns + `
		FROM supplier_requests
		WHERE patron_request_id = ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, patronRequestID.String())
	if err != nil {
		r.logger.Error("Failed to list supplier requests",
			zap.String("patron_request_id", patronRequestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list supplier requests: %w", err)
	}
	defer rows.Close()

	var out []*models.SupplierRequest
	for rows.Next() {
		sr, err := scanSupplierRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier request: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func scanSupplierRequest(row rowScanner) (*models.SupplierRequest, error) {
	var sr models.SupplierRequest
	var id, patronRequestID, statusCode string

	err := row.Scan(
		&id,
		&patronRequestID,
		&sr.AgencyCode,
		&sr.HostLmsCode,
		&sr.LocalID,
		&sr.LocalItemID,
		&sr.ItemBarcode,
		&sr.LocalStatus,
		&statusCode,
		&sr.VirtualPatronID,
		&sr.IsActive,
		&sr.CreatedAt,
		&sr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier request id %q: %w", id, err)
	}
	sr.ID = parsed
	parsedPR, err := uuid.Parse(patronRequestID)
	if err != nil {
		return nil, fmt.Errorf("invalid patron request id %q: %w", patronRequestID, err)
	}
	sr.PatronRequestID = parsedPR
	sr.StatusCode = models.SupplierRequestStatus(statusCode)
	return &sr, nil
}
