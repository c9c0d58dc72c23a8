package store

import "storefront/internal/models"

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = models.ErrNotFound
