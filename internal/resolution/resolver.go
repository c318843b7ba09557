// Package resolution selects the supplying agency and item for a patron
// request: candidates come from the shared holdings index, ineligible items
// are filtered out, the rest are sorted by the configured policy and the top
// candidate wins.
package resolution

import (
	"context"
	"fmt"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"go.uber.org/zap"
)

// Sort policies.
const (
	SortPolicyRatio        = "ratio"
	SortPolicyAvailability = "availability"
)

// CandidateSource lists indexed items for a bibliographic cluster.
type CandidateSource interface {
	ListByCluster(ctx context.Context, bibClusterID string) ([]*models.HoldingsItem, error)
}

// AgencyDirectory resolves agency codes to agency records.
type AgencyDirectory interface {
	GetByCode(ctx context.Context, code string) (*models.Agency, error)
}

// Outcome is a chosen supplier: the item and the agency holding it.
type Outcome struct {
	Item   *models.HoldingsItem
	Agency *models.Agency
}

// Resolver runs the gather/filter/sort/select pipeline.
type Resolver struct {
	source     CandidateSource
	agencies   AgencyDirectory
	sortPolicy string
	logger     *zap.Logger
}

// NewResolver creates a resolver with the given sort policy
func NewResolver(source CandidateSource, agencies AgencyDirectory, sortPolicy string, logger *zap.Logger) *Resolver {
	if sortPolicy == "" {
		sortPolicy = SortPolicyRatio
	}
	return &Resolver{
		source:     source,
		agencies:   agencies,
		sortPolicy: sortPolicy,
		logger:     logger,
	}
}

// Resolve picks a supplier for the request. excludedItems holds the local
// item ids of previously tried (now inactive) supplier requests; a nil
// Outcome with nil error means no eligible supplier exists.
func (r *Resolver) Resolve(ctx context.Context, request *models.PatronRequest, excludedItems map[string]bool) (*Outcome, error) {
	items, err := r.source.ListByCluster(ctx, request.BibClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to gather candidates: %w", err)
	}

	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		agency, err := r.agencies.GetByCode(ctx, item.AgencyCode)
		if err != nil {
			return nil, fmt.Errorf("failed to look up agency %s: %w", item.AgencyCode, err)
		}
		if reason := eligibility(item, agency, excludedItems); reason != "" {
			r.logger.Debug("Excluded candidate",
				zap.String("patron_request_id", request.ID.String()),
				zap.String("local_item_id", item.LocalItemID),
				zap.String("agency_code", item.AgencyCode),
				zap.String("reason", reason))
			continue
		}
		candidates = append(candidates, candidate{item: item, agency: agency})
	}

	if len(candidates) == 0 {
		r.logger.Info("No eligible supplier found",
			zap.String("patron_request_id", request.ID.String()),
			zap.String("bib_cluster_id", request.BibClusterID),
			zap.Int("indexed", len(items)))
		return nil, nil
	}

	sortCandidates(candidates, r.sortPolicy)
	top := candidates[0]

	r.logger.Info("Resolved supplier",
		zap.String("patron_request_id", request.ID.String()),
		zap.String("agency_code", top.agency.Code),
		zap.String("local_item_id", top.item.LocalItemID),
		zap.String("sort_policy", r.sortPolicy),
		zap.Int("candidates", len(candidates)))

	return &Outcome{Item: top.item, Agency: top.agency}, nil
}

type candidate struct {
	item   *models.HoldingsItem
	agency *models.Agency
}
