package records

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// KindInventory is the record kind of inventory items.
const KindInventory = "inventory"

// InventoryItem is a stocked item, keyed by name.
type InventoryItem struct {
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Inventory stores inventory items.
type Inventory struct {
	store *Store[InventoryItem]
}

// NewInventory returns the inventory collection of backend.
func NewInventory(backend Backend, opts ...Option) *Inventory {
	return &Inventory{store: New[InventoryItem](backend, KindInventory, opts...)}
}

// Add inserts a new item. Fails with ledger.CodeDuplicate if the name exists.
func (inv *Inventory) Add(ctx context.Context, item InventoryItem) (InventoryItem, error) {
	item, err := validateItem(item)
	if err != nil {
		return InventoryItem{}, err
	}
	if err := inv.store.Create(ctx, item.Name, item); err != nil {
		return InventoryItem{}, err
	}
	return item, nil
}

// Update replaces quantity and price of an existing item.
func (inv *Inventory) Update(ctx context.Context, item InventoryItem) (InventoryItem, error) {
	item, err := validateItem(item)
	if err != nil {
		return InventoryItem{}, err
	}
	if err := inv.store.Update(ctx, item.Name, item); err != nil {
		return InventoryItem{}, err
	}
	return item, nil
}

func (inv *Inventory) Get(ctx context.Context, name string) (InventoryItem, error) {
	return inv.store.Get(ctx, name)
}

func (inv *Inventory) List(ctx context.Context) ([]InventoryItem, error) {
	return inv.store.List(ctx)
}

func (inv *Inventory) Remove(ctx context.Context, name string) error {
	return inv.store.Delete(ctx, name)
}

func validateItem(item InventoryItem) (InventoryItem, error) {
	item.Name = ledger.NormalizeName(item.Name)
	if item.Name == "" {
		return item, ledger.NewValidationError("item name is required")
	}
	if item.Quantity < 0 {
		return item, ledger.NewValidationError("quantity must not be negative")
	}
	if item.Price.IsNegative() {
		return item, ledger.NewValidationError("price must not be negative")
	}
	return item, nil
}
