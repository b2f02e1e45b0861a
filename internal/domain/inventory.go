package domain

import "time"

// Inventory actions recorded in the audit log.
const (
	InventoryActionReserve = "reserve"
	InventoryActionRelease = "release"
	InventoryActionCommit  = "commit"
	InventoryActionRestock = "restock"
)

// InventoryLog is one audit entry per stock mutation.
type InventoryLog struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Action           string    `json:"action"`
	Quantity         int       `json:"quantity"`
	PreviousStock    int       `json:"previous_stock"`
	NewStock         int       `json:"new_stock"`
	PreviousReserved int       `json:"previous_reserved"`
	NewReserved      int       `json:"new_reserved"`
	ReferenceID      string    `json:"reference_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
