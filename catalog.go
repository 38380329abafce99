package circulate

import (
	"context"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/types"
)

// ──────────────────────────────────────────────────
// Item Catalog
// ──────────────────────────────────────────────────

// RegisterItem adds an item to the pool. New items are available.
func (e *Engine) RegisterItem(ctx context.Context, i *item.Item) error {
	if err := i.Validate(); err != nil {
		return ValidationError{Field: "item", Message: err.Error()}
	}
	if i.ID.IsNil() {
		i.ID = id.NewItemID()
	}
	i.Entity = types.NewEntityAt(e.now())
	i.Available = true

	if err := e.store.CreateItem(ctx, i); err != nil {
		return e.fail(ctx, "register item", err, "item_id", i.ID.String())
	}

	e.logger.Info("item registered",
		"item_id", i.ID.String(),
		"name", i.Name,
		"risk_tier", i.RiskTier,
	)
	return nil
}

// UpdateItem changes catalog fields of an item. The availability flag is
// not writable here and is reported back as stored.
func (e *Engine) UpdateItem(ctx context.Context, i *item.Item) error {
	if err := i.Validate(); err != nil {
		return ValidationError{Field: "item", Message: err.Error()}
	}

	existing, err := e.store.GetItem(ctx, i.ID)
	if err != nil {
		return e.fail(ctx, "update item: get", err, "item_id", i.ID.String())
	}
	i.CreatedAt = existing.CreatedAt
	i.Touch(e.now())
	i.Available = existing.Available

	if err := e.store.UpdateItem(ctx, i); err != nil {
		return e.fail(ctx, "update item", err, "item_id", i.ID.String())
	}
	return nil
}

// GetItem retrieves an item by ID.
func (e *Engine) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	i, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, e.fail(ctx, "get item", err, "item_id", itemID.String())
	}
	return i, nil
}

// ListItems lists catalog items matching opts.
func (e *Engine) ListItems(ctx context.Context, opts item.ListOpts) ([]*item.Item, error) {
	if err := validatePage(opts.Limit, opts.Offset); err != nil {
		return nil, err
	}
	items, err := e.store.ListItems(ctx, opts)
	if err != nil {
		return nil, e.fail(ctx, "list items", err)
	}
	return items, nil
}

// validatePage rejects negative paging bounds. A zero limit means no limit.
func validatePage(limit, offset int) error {
	if limit < 0 {
		return ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if offset < 0 {
		return ValidationError{Field: "offset", Message: "must not be negative"}
	}
	return nil
}
