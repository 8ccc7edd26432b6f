package order

import (
	"context"
)

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

// Offset returns the row offset for the filter's page.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Repo persists orders. Missing rows are reported as pgx.ErrNoRows.
type Repo interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, int, error)
	// UpdateStatus applies the change only while the order is still in from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
}
