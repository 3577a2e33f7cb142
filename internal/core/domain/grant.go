package domain

import "fmt"

// GrantItems asks for quantity units of a catalog item to be added to a
// user's inventory. MessageID is assigned by the delivery layer and stays
// the same across redeliveries of one logical command.
type GrantItems struct {
	CatalogItemID string `json:"catalogItemId"`
	UserID        string `json:"userId"`
	Quantity      int    `json:"quantity"`
	CorrelationID string `json:"correlationId"`
	MessageID     string `json:"-"`
}

func (g GrantItems) Validate() error {
	switch {
	case g.CatalogItemID == "":
		return fmt.Errorf("%w: catalogItemId is required", ErrInvalidCommand)
	case g.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidCommand)
	case g.CorrelationID == "":
		return fmt.Errorf("%w: correlationId is required", ErrInvalidCommand)
	case g.MessageID == "":
		return fmt.Errorf("%w: message id is required", ErrInvalidCommand)
	case g.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidCommand, g.Quantity)
	}
	return nil
}

type GrantResult string

const (
	ResultApplied     GrantResult = "applied"
	ResultDuplicate   GrantResult = "duplicate"
	ResultItemUnknown GrantResult = "item_unknown"
)

type GrantOutcome struct {
	Result GrantResult
	Record *InventoryRecord
}

// Err converts the ResultItemUnknown variant into ErrUnknownCatalogItem for
// transports that have to hand a failure back to the broker.
func (o GrantOutcome) Err() error {
	if o.Result == ResultItemUnknown {
		return ErrUnknownCatalogItem
	}
	return nil
}
