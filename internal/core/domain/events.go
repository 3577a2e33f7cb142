package domain

const (
	EventGrantsAcknowledged = "inventory.grants-acknowledged"
	EventInventoryUpdated   = "inventory.updated"
)

// Event is an outbound integration event.
type Event interface {
	EventType() string
	// PartitionKey groups events that must stay ordered relative to each other.
	PartitionKey() string
}

type GrantsAcknowledged struct {
	CorrelationID string `json:"correlationId"`
}

func (GrantsAcknowledged) EventType() string      { return EventGrantsAcknowledged }
func (e GrantsAcknowledged) PartitionKey() string { return e.CorrelationID }

type InventoryUpdated struct {
	UserID        string `json:"userId"`
	CatalogItemID string `json:"catalogItemId"`
	NewQuantity   int    `json:"newQuantity"`
}

func (InventoryUpdated) EventType() string      { return EventInventoryUpdated }
func (e InventoryUpdated) PartitionKey() string { return e.UserID }
