package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// CatalogItem is the local projection of an upstream catalog entry. ID is
// the upstream identity, never generated locally.
type CatalogItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func (c CatalogItem) Equal(other CatalogItem) bool {
	return c.ID == other.ID &&
		c.Name == other.Name &&
		c.Description == other.Description &&
		c.Price.Equal(other.Price)
}

type CatalogFilter struct {
	IDs []string
}

func (f CatalogFilter) Matches(c CatalogItem) bool {
	return len(f.IDs) == 0 || slices.Contains(f.IDs, c.ID)
}

// CatalogListing is what the catalog source returns. Degraded is set when
// the upstream could not be read; Items is then empty and must not be
// treated as the upstream state.
type CatalogListing struct {
	Items      []CatalogItem
	Degraded   bool
	Diagnostic error
}
