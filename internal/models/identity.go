package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity roles. A request carries one identity per participating system:
// the patron's home record, the virtual patron at the supplier, and (for
// pickup-anywhere loans) the virtual patron at the pickup system.
const (
	IdentityRoleBorrower = "BORROWER"
	IdentityRoleSupplier = "SUPPLIER"
	IdentityRolePickup   = "PICKUP"
)

// PatronIdentity is the patron's record at one host system.
type PatronIdentity struct {
	ID              uuid.UUID `json:"id"`
	PatronRequestID uuid.UUID `json:"patron_request_id"`
	HostLmsCode     string    `json:"host_lms_code"`
	Role            string    `json:"role"`
	LocalID         string    `json:"local_id"`
	LocalBarcode    string    `json:"local_barcode,omitempty"`
	LocalPtype      string    `json:"local_ptype,omitempty"`
	HomeLibraryCode string    `json:"home_library_code,omitempty"`
	Virtual         bool      `json:"virtual"`
	CreatedAt       time.Time `json:"created_at"`
}
