package port

import (
	"context"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

type CatalogSource interface {
	// ListAll returns the full upstream catalog. It never fails: an unreachable
	// upstream yields an empty listing with Degraded set and a Diagnostic.
	ListAll(ctx context.Context) domain.CatalogListing
}
