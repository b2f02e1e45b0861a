package domain

// Address is a saved user address. Orders keep a copy, not a reference.
type Address struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	FullName    string `json:"full_name"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
}
