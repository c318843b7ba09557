package models

import (
	"time"

	"github.com/google/uuid"
)

// SupplierRequestStatus is the domain status of a hold at a supplying agency,
// distinct from the raw LocalStatus string the remote system reports.
type SupplierRequestStatus string

const (
	SupplierStatusPending   SupplierRequestStatus = "PENDING"
	SupplierStatusPlaced    SupplierRequestStatus = "PLACED"
	SupplierStatusConfirmed SupplierRequestStatus = "CONFIRMED"
	SupplierStatusCancelled SupplierRequestStatus = "CANCELLED"
)

// SupplierRequest is the record of a hold placed (or about to be placed) at
// one supplying agency for a patron request. At most one is active per
// request; deactivated rows are kept as re-resolution history.
type SupplierRequest struct {
	ID              uuid.UUID             `json:"id"`
	PatronRequestID uuid.UUID             `json:"patron_request_id"`
	AgencyCode      string                `json:"agency_code"`
	HostLmsCode     string                `json:"host_lms_code"`
	LocalID         string                `json:"local_id,omitempty"`
	LocalItemID     string                `json:"local_item_id"`
	ItemBarcode     string                `json:"item_barcode,omitempty"`
	LocalStatus     string                `json:"local_status,omitempty"`
	StatusCode      SupplierRequestStatus `json:"status_code"`
	VirtualPatronID string                `json:"virtual_patron_id,omitempty"`
	IsActive        bool                  `json:"is_active"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}
