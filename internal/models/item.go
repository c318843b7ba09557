package models

// HoldingsItem is one candidate item from the shared holdings index, used by
// supplier resolution. Rows are produced by the (out of scope) clustering
// subsystem; resolution only reads them.
type HoldingsItem struct {
	ID              string `json:"id"`
	BibClusterID    string `json:"bib_cluster_id"`
	AgencyCode      string `json:"agency_code"`
	HostLmsCode     string `json:"host_lms_code"`
	LocalItemID     string `json:"local_item_id"`
	Barcode         string `json:"barcode,omitempty"`
	ItemType        string `json:"item_type"`
	Circulating     bool   `json:"circulating"`
	AvailableCopies int    `json:"available_copies"`
	HoldCount       int    `json:"hold_count"`
}
