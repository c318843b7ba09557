package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// AgencyRepository handles agency and location mapping lookups
type AgencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAgencyRepository creates a new agency repository
func NewAgencyRepository(db *sql.DB, logger *zap.Logger) *AgencyRepository {
	return &AgencyRepository{
		db:     db,
		logger: logger,
	}
}

// GetByCode returns the agency with the given code, or nil
func (r *AgencyRepository) GetByCode(ctx context.Context, code string) (*models.Agency, error) {
	query := `
		SELECT code, name, host_lms_code, is_supplying, is_borrowing, loan_count, borrow_count
		FROM agencies WHERE code = ?
	`
	row := r.db.QueryRowContext(ctx, query, code)

	var a models.Agency
	err := row.Scan(&a.Code, &a.Name, &a.HostLmsCode, &a.IsSupplying, &a.IsBorrowing, &a.LoanCount, &a.BorrowCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get agency", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	return &a, nil
}

// ResolveLocation maps a home-library or pickup location code to its agency,
// returning nil when no mapping exists
func (r *AgencyRepository) ResolveLocation(ctx context.Context, locationCode string) (*models.Agency, error) {
	query := `
		SELECT a.code, a.name, a.host_lms_code, a.is_supplying, a.is_borrowing, a.loan_count, a.borrow_count
		FROM location_mappings m
		JOIN agencies a ON a.code = m.agency_code
		WHERE m.location_code = ?
	`
	row := r.db.QueryRowContext(ctx, query, locationCode)

	var a models.Agency
	err := row.Scan(&a.Code, &a.Name, &a.HostLmsCode, &a.IsSupplying, &a.IsBorrowing, &a.LoanCount, &a.BorrowCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to resolve location", zap.String("location_code", locationCode), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve location: %w", err)
	}
	return &a, nil
}

// IncrementLoanCount bumps an agency's supplied-loan counter, used by the
// ratio-balancing resolution sort
func (r *AgencyRepository) IncrementLoanCount(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE agencies SET loan_count = loan_count + 1 WHERE code = ?`, code)
	if err != nil {
		r.logger.Error("Failed to increment loan count", zap.String("code", code), zap.Error(err))
		return fmt.Errorf("failed to increment loan count: %w", err)
	}
	return nil
}

// IncrementBorrowCount bumps an agency's borrowed-loan counter
func (r *AgencyRepository) IncrementBorrowCount(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE agencies SET borrow_count = borrow_count + 1 WHERE code = ?`, code)
	if err != nil {
		r.logger.Error("Failed to increment borrow count", zap.String("code", code), zap.Error(err))
		return fmt.Errorf("failed to increment borrow count: %w", err)
	}
	return nil
}
