package catalog

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const exportLimit = 10000

var titleCaser = cases.Title(language.English)

// StatusLabel renders a snake_case status as a human readable label, e.g.
// "out_of_stock" becomes "Out Of Stock".
func StatusLabel(status string) string {
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

// WriteItemsCSV streams the item list as CSV.
func WriteItemsCSV(w io.Writer, items []Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"SKU", "Name", "Quantity", "Unit Price", "Stock Status", "Total Value", "Active"}); err != nil {
		return err
	}
	for _, item := range items {
		record := []string{
			item.SKU,
			item.Name,
			strconv.Itoa(item.Quantity),
			strconv.FormatFloat(item.UnitPrice, 'f', 2, 64),
			StatusLabel(item.StockStatus()),
			strconv.FormatFloat(item.TotalValue(), 'f', 2, 64),
			strconv.FormatBool(item.IsActive),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
