package domain

import (
	"slices"
	"time"
)

type InventoryRecord struct {
	ID                  string
	UserID              string
	CatalogItemID       string
	Quantity            int
	AcquiredDate        time.Time
	ProcessedMessageIDs []string
	Version             int // optimistic locking
}

// HasProcessed reports whether messageID is already in the idempotency ledger.
func (r *InventoryRecord) HasProcessed(messageID string) bool {
	return slices.Contains(r.ProcessedMessageIDs, messageID)
}

// Grant adds quantity and records messageID. It returns false without
// touching the record when messageID was already applied.
func (r *InventoryRecord) Grant(quantity int, messageID string) bool {
	if r.HasProcessed(messageID) {
		return false
	}
	r.Quantity += quantity
	r.ProcessedMessageIDs = append(r.ProcessedMessageIDs, messageID)
	return true
}

// Clone returns a copy that shares no slice memory with r.
func (r InventoryRecord) Clone() InventoryRecord {
	r.ProcessedMessageIDs = slices.Clone(r.ProcessedMessageIDs)
	return r
}

type InventoryFilter struct {
	UserID         string
	CatalogItemID  string
	CatalogItemIDs []string
}

func (f InventoryFilter) Matches(r InventoryRecord) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.CatalogItemID != "" && r.CatalogItemID != f.CatalogItemID {
		return false
	}
	if len(f.CatalogItemIDs) > 0 && !slices.Contains(f.CatalogItemIDs, r.CatalogItemID) {
		return false
	}
	return true
}

// InventoryItemView is an inventory record joined with its catalog entry.
type InventoryItemView struct {
	UserID        string    `json:"userId"`
	CatalogItemID string    `json:"catalogItemId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Quantity      int       `json:"quantity"`
	AcquiredDate  time.Time `json:"acquiredDate"`
}
