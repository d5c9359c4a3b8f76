package checkout

import "fmt"

// CartSnapshot is an immutable view of the cart at a point in time.
// The zero value is an empty cart with no unit.
type CartSnapshot struct {
	unitID   string
	items    []Item
	subtotal int64
}

func NewCartSnapshot(unitID string, items []Item) (CartSnapshot, error) {
	cp := make([]Item, 0, len(items))
	var subtotal int64
	for i, it := range items {
		if it.Quantity <= 0 {
			return CartSnapshot{}, &ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be greater than zero",
			}
		}
		if it.UnitPrice < 0 {
			return CartSnapshot{}, &ValidationError{
				Field:   fmt.Sprintf("items[%d].unitPrice", i),
				Message: "unit price must not be negative",
			}
		}
		cp = append(cp, it)
		subtotal += it.LineTotal()
	}
	return CartSnapshot{unitID: unitID, items: cp, subtotal: subtotal}, nil
}

func (c CartSnapshot) UnitID() string  { return c.unitID }
func (c CartSnapshot) Subtotal() int64 { return c.subtotal }
func (c CartSnapshot) Len() int        { return len(c.items) }
func (c CartSnapshot) Empty() bool     { return len(c.items) == 0 }

// Items returns a copy; the snapshot itself never changes.
func (c CartSnapshot) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Previewable reports whether pricing calls make sense for this cart.
func (c CartSnapshot) Previewable() bool {
	return c.unitID != "" && len(c.items) > 0
}
