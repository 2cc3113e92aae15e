package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusLabel(t *testing.T) {
	require.Equal(t, "Out Of Stock", StatusLabel(StockStatusOut))
	require.Equal(t, "Low Stock", StatusLabel(StockStatusLow))
	require.Equal(t, "In Stock", StatusLabel(StockStatusIn))
}

func TestWriteItemsCSV(t *testing.T) {
	items := []Item{
		{SKU: "WID-001", Name: "Widget", Quantity: 0, LowStockThreshold: 5, UnitPrice: 2.5, IsActive: true},
		{SKU: "GAD-001", Name: "Gadget", Quantity: 40, LowStockThreshold: 5, UnitPrice: 10, IsActive: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteItemsCSV(&buf, items))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "SKU,Name,Quantity,Unit Price,Stock Status,Total Value,Active", lines[0])
	require.Contains(t, lines[1], "Out Of Stock")
	require.Contains(t, lines[2], "400.00")
}
