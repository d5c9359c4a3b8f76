package checkout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCartSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		items    []Item
		subtotal int64
		field    string
	}{
		{"empty", nil, 0, ""},
		{"single", []Item{{ProductID: "p1", Quantity: 2, UnitPrice: 1500}}, 3000, ""},
		{"multi", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1000}, {ProductID: "p2", Quantity: 3, UnitPrice: 250}}, 1750, ""},
		{"free item", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 0}}, 0, ""},
		{"zero quantity", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 10}, {ProductID: "p2", Quantity: 0, UnitPrice: 10}}, 0, "items[1].quantity"},
		{"negative price", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: -1}}, 0, "items[0].unitPrice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCartSnapshot("unit-1", tt.items)
			if tt.field != "" {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, tt.field, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, c.Subtotal())
			assert.Equal(t, len(tt.items), c.Len())
		})
	}
}

func TestCartSnapshotIsImmutable(t *testing.T) {
	items := []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 100}}
	c, err := NewCartSnapshot("unit-1", items)
	require.NoError(t, err)

	items[0].Quantity = 99
	got := c.Items()
	got[0].UnitPrice = 1
	assert.Equal(t, 1, c.Items()[0].Quantity)
	assert.Equal(t, int64(100), c.Items()[0].UnitPrice)
	assert.Equal(t, int64(100), c.Subtotal())
}

func TestCartSnapshotPreviewable(t *testing.T) {
	var zero CartSnapshot
	assert.False(t, zero.Previewable())
	assert.True(t, zero.Empty())

	noUnit, _ := NewCartSnapshot("", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1}})
	assert.False(t, noUnit.Previewable())

	ok, _ := NewCartSnapshot("u", []Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1}})
	assert.True(t, ok.Previewable())
}

func TestNewTotals(t *testing.T) {
	tests := []struct {
		subtotal, redeem int64
		want             Totals
	}{
		{10000, 2000, Totals{Subtotal: 10000, CashbackRedeem: 2000, Total: 8000}},
		{10000, 0, Totals{Subtotal: 10000, CashbackRedeem: 0, Total: 10000}},
		{1000, 5000, Totals{Subtotal: 1000, CashbackRedeem: 1000, Total: 0}},
		{1000, -5, Totals{Subtotal: 1000, CashbackRedeem: 0, Total: 1000}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewTotals(tt.subtotal, tt.redeem))
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusReserved, StatusPaid))
	assert.True(t, CanTransition(StatusReserved, StatusExpired))
	assert.False(t, CanTransition(StatusPaid, StatusCanceled))
	assert.False(t, CanTransition(StatusExpired, StatusPaid))

	for _, s := range []Status{StatusCanceled, StatusExpired, StatusFailed} {
		assert.True(t, s.Terminal(), s)
		assert.True(t, s.Negative(), s)
		assert.False(t, s.Dispatchable(), s)
	}
	assert.True(t, StatusPaid.Terminal())
	assert.False(t, StatusPaid.Negative())
	assert.True(t, StatusPaid.Dispatchable())
	assert.True(t, StatusReserved.Dispatchable())
	assert.False(t, Status("bogus").Valid())
}
