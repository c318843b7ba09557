package models

// Agency is one consortium member library system.
type Agency struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	HostLmsCode   string `json:"host_lms_code"`
	IsSupplying   bool   `json:"is_supplying"`
	IsBorrowing   bool   `json:"is_borrowing"`
	LoanCount     int    `json:"loan_count"`
	BorrowCount   int    `json:"borrow_count"`
}

// LocationMapping maps a home-library or pickup location code to the agency
// that owns it. Patron validation fails a request whose home library has no
// mapping.
type LocationMapping struct {
	LocationCode string `json:"location_code"`
	AgencyCode   string `json:"agency_code"`
}
