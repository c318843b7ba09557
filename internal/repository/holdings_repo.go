package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// HoldingsRepository reads the shared holdings index maintained by the
// clustering subsystem. Resolution is its only consumer.
type HoldingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHoldingsRepository creates a new holdings repository
func NewHoldingsRepository(db *sql.DB, logger *zap.Logger) *HoldingsRepository {
	return &HoldingsRepository{
		db:     db,
		logger: logger,
	}
}

// ListByCluster returns every indexed item for a bibliographic cluster
func (r *HoldingsRepository) ListByCluster(ctx context.Context, bibClusterID string) ([]*models.HoldingsItem, error) {
	query := `
		SELECT id, bib_cluster_id, agency_code, host_lms_code, local_item_id,
			barcode, item_type, circulating, available_copies, hold_count
		FROM holdings_index
		WHERE bib_cluster_id = ?
	`
	rows, err := r.db.QueryContext(ctx, query, bibClusterID)
	if err != nil {
		r.logger.Error("Failed to list holdings", zap.String("bib_cluster_id", bibClusterID), zap.Error(err))
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var out []*models.HoldingsItem
	for rows.Next() {
		var item models.HoldingsItem
		err := rows.Scan(
			&item.ID,
			&item.BibClusterID,
			&item.AgencyCode,
			&item.HostLmsCode,
			&item.LocalItemID,
			&item.Barcode,
			&item.ItemType,
			&item.Circulating,
			&item.AvailableCopies,
			&item.HoldCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holdings item: %w", err)
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}
