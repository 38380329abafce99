package item

import (
	"context"

	"github.com/xraph/circulate/id"
)

// Store persists catalog items. UpdateItem must never write the
// availability flag; that belongs to the reservation write path.
type Store interface {
	CreateItem(ctx context.Context, i *Item) error
	GetItem(ctx context.Context, itemID id.ItemID) (*Item, error)
	ListItems(ctx context.Context, opts ListOpts) ([]*Item, error)
	UpdateItem(ctx context.Context, i *Item) error
	IsAvailable(ctx context.Context, itemID id.ItemID) (bool, error)
}

// ListOpts filters ListItems.
type ListOpts struct {
	Category string
	// AvailableOnly restricts the listing to items whose flag is set.
	AvailableOnly bool
	Limit         int
	Offset        int
}
