package domain

import "errors"

var (
	ErrUnknownCatalogItem     = errors.New("unknown catalog item")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrUpstreamUnavailable    = errors.New("upstream catalog unavailable")
	ErrPublishFailure         = errors.New("event publish failed")
	ErrInvalidCommand         = errors.New("invalid command")
	ErrReconcileInProgress    = errors.New("reconciliation already in progress")
)
