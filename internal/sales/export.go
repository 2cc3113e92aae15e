package sales

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

func label(status string) string {
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

// WriteOrdersCSV streams the order list as CSV.
func WriteOrdersCSV(w io.Writer, orders []SalesOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Order Number", "Customer ID", "Order Date", "Status", "Payment Status", "Subtotal", "Total"}); err != nil {
		return err
	}
	for _, so := range orders {
		record := []string{
			so.OrderNumber,
			strconv.FormatInt(so.CustomerID, 10),
			so.OrderDate.Format("2006-01-02"),
			label(so.Status),
			label(so.PaymentStatus),
			strconv.FormatFloat(so.Subtotal, 'f', 2, 64),
			strconv.FormatFloat(so.TotalAmount, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
