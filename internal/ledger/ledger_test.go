package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineSubtotal(t *testing.T) {
	line := Line{Quantity: 4, UnitPrice: 25.5, Discount: 2}
	require.InDelta(t, 100.0, line.Subtotal(), 0.001)
}

func TestComputeTotals(t *testing.T) {
	lines := []Line{
		{Quantity: 2, UnitPrice: 10, Discount: 1},
		{Quantity: 3, UnitPrice: 5},
	}

	totals := Compute(lines, PolicyDiscounted, 4, 2.5, 7)
	require.InDelta(t, 34.0, totals.Subtotal, 0.001)
	require.InDelta(t, 39.5, totals.Total, 0.001)

	// Idempotent: same inputs, same result.
	again := Compute(lines, PolicyDiscounted, 4, 2.5, 7)
	require.Equal(t, totals, again)
}

func TestComputeIgnoresDiscountUnderPlainPolicy(t *testing.T) {
	lines := []Line{{Quantity: 2, UnitPrice: 10, Discount: 5}}

	totals := Compute(lines, PolicyPlain, 0, 0, 0)
	require.InDelta(t, 20.0, totals.Subtotal, 0.001)
	require.InDelta(t, 20.0, totals.Total, 0.001)
}

func TestCounts(t *testing.T) {
	lines := []Line{
		{Quantity: 2, UnitPrice: 10},
		{Quantity: 5, UnitPrice: 1},
	}
	require.Equal(t, 2, TotalItems(lines))
	require.Equal(t, 7, TotalQuantity(lines))
}

func TestNormalizeNumber(t *testing.T) {
	require.Equal(t, "SO-100", NormalizeNumber("  so-100 "))
	require.Equal(t, "Q-2024-01", NormalizeNumber("q-2024-01"))
}
