// Package hostlms defines the per-vendor client abstraction the workflow
// engine calls to effect remote actions, and a registry keyed by host system
// code. Vendor wire protocols live behind the Client interface; the engine
// treats every remote error opaquely.
package hostlms

import (
	"context"
	"errors"
)

// ErrNoClient is returned by the registry for an unknown host system code.
var ErrNoClient = errors.New("no host lms client registered for code")

// ErrNotFound is returned by lookups when the remote record does not exist.
var ErrNotFound = errors.New("record not found at host lms")

// Patron is a patron record at a host system.
type Patron struct {
	LocalID         string `json:"local_id"`
	Barcode         string `json:"barcode,omitempty"`
	Ptype           string `json:"ptype,omitempty"`
	HomeLibraryCode string `json:"home_library_code,omitempty"`
}

// Bib is a bibliographic record at a host system.
type Bib struct {
	LocalID string `json:"local_id"`
	Title   string `json:"title,omitempty"`
	Author  string `json:"author,omitempty"`
}

// Item is an item record at a host system.
type Item struct {
	LocalID  string `json:"local_id"`
	BibID    string `json:"bib_id"`
	Barcode  string `json:"barcode,omitempty"`
	Status   string `json:"status,omitempty"`
	Location string `json:"location,omitempty"`
}

// HoldRequest describes a hold to place at a host system.
type HoldRequest struct {
	PatronLocalID string `json:"patron_local_id"`
	ItemLocalID   string `json:"item_local_id,omitempty"`
	BibLocalID    string `json:"bib_local_id,omitempty"`
	PickupLocation string `json:"pickup_location,omitempty"`
	Note          string `json:"note,omitempty"`
}

// Hold is the remote view of a placed hold.
type Hold struct {
	LocalID      string `json:"local_id"`
	Status       string `json:"status"`
	ItemLocalID  string `json:"item_local_id,omitempty"`
	ItemBarcode  string `json:"item_barcode,omitempty"`
	RenewalCount int    `json:"renewal_count"`
}

// Client is the operation set every host system adapter provides. All calls
// take a context and may fail with a vendor error the caller must treat
// opaquely.
type Client interface {
	Code() string

	PlaceHoldRequest(ctx context.Context, hold HoldRequest) (*Hold, error)
	CancelHoldRequest(ctx context.Context, localHoldID string) error
	GetRequest(ctx context.Context, localHoldID string) (*Hold, error)
	Renew(ctx context.Context, patronLocalID, itemLocalID string) error

	CheckOutItemToPatron(ctx context.Context, itemLocalID, patronLocalID string) error
	GetItem(ctx context.Context, itemLocalID string) (*Item, error)
	UpdateItemStatus(ctx context.Context, itemLocalID, status string) error

	CreateBib(ctx context.Context, bib Bib) (*Bib, error)
	CreateItem(ctx context.Context, item Item) (*Item, error)
	DeleteBib(ctx context.Context, localID string) error
	DeleteItem(ctx context.Context, localID string) error

	CreatePatron(ctx context.Context, patron Patron) (*Patron, error)
	UpdatePatron(ctx context.Context, patron Patron) (*Patron, error)
	GetPatronByLocalID(ctx context.Context, localID string) (*Patron, error)
	FindVirtualPatron(ctx context.Context, barcode string) (*Patron, error)
	DeletePatron(ctx context.Context, localID string) error

	Ping(ctx context.Context) error
}
