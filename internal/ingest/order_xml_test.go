package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderXML(body string) []byte {
	return []byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<orders>\n" + body + "</orders>\n")
}

func orderElement(id, mobile, date, sku, count, amount string) string {
	return "<order>" +
		"<order_id>" + id + "</order_id>" +
		"<mobile_number>" + mobile + "</mobile_number>" +
		"<order_date_time>" + date + "</order_date_time>" +
		"<sku_id>" + sku + "</sku_id>" +
		"<sku_count>" + count + "</sku_count>" +
		"<total_amount>" + amount + "</total_amount>" +
		"</order>\n"
}

func TestOrderParseValidRecords(t *testing.T) {
	data := orderXML(
		orderElement("ORD-001", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "2", "5000.00") +
			orderElement("ORD-002", "+91 87654 32109", "2024-03-16 09:00:00", "SKU-2001", "1", "₹1,250.50"),
	)

	v := NewOrderValidator()
	orders, fieldErrs, err := v.Parse(data)
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	require.Len(t, orders, 2)

	assert.Equal(t, "ORD-001", orders[0].OrderID)
	assert.Equal(t, "9876543210", orders[0].MobileNumber)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), orders[0].OrderDateTime)
	assert.Equal(t, "2024-03-15T10:30:00", orders[0].OrderDateRaw)
	assert.Equal(t, 2, orders[0].SKUCount)
	assert.InDelta(t, 5000.0, orders[0].TotalAmount, 1e-9)

	assert.Equal(t, "8765432109", orders[1].MobileNumber)
	assert.InDelta(t, 1250.50, orders[1].TotalAmount, 1e-9)
}

func TestOrderParseDropsWholesaleOnAnyBadField(t *testing.T) {
	data := orderXML(
		orderElement("ORD-001", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "2", "5000.00") +
			orderElement("BAD-002", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "1", "100.00") +
			orderElement("ORD-003", "12345", "2024-03-15T10:30:00", "SKU-1001", "1", "100.00") +
			orderElement("ORD-004", "9876543210", "not a date", "SKU-1001", "1", "100.00") +
			orderElement("ORD-005", "9876543210", "2024-03-15T10:30:00", "ITEM-1", "1", "100.00") +
			orderElement("ORD-006", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "0", "100.00") +
			orderElement("ORD-007", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "1", "-50"),
	)

	v := NewOrderValidator()
	orders, fieldErrs, err := v.Parse(data)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-001", orders[0].OrderID)
	require.Len(t, fieldErrs, 6)

	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fe.Field
	}
	assert.ElementsMatch(t, []string{
		"order_id", "mobile_number", "order_date_time", "sku_id", "sku_count", "total_amount",
	}, fields)
}

func TestOrderParseOrdinals(t *testing.T) {
	data := orderXML(
		orderElement("ORD-001", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "1", "100.00") +
			orderElement("ORD-002", "bad", "2024-03-15T10:30:00", "SKU-1001", "1", "100.00"),
	)

	v := NewOrderValidator()
	_, fieldErrs, err := v.Parse(data)
	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, 2, fieldErrs[0].Row)
}

func TestOrderParseEmptyInput(t *testing.T) {
	v := NewOrderValidator()
	_, _, err := v.Parse([]byte("   \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestOrderParseMalformedXML(t *testing.T) {
	v := NewOrderValidator()
	_, _, err := v.Parse([]byte("<orders><order></orders>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode order XML")
}

func TestOrderParseWrongRootElement(t *testing.T) {
	v := NewOrderValidator()
	_, _, err := v.Parse([]byte("<invoices><order></order></invoices>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode order XML")
}

func TestOrderParseNoOrderElements(t *testing.T) {
	v := NewOrderValidator()
	orders, fieldErrs, err := v.Parse([]byte("<orders></orders>"))
	require.NoError(t, err)
	assert.Empty(t, orders)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, 0, fieldErrs[0].Row)
	assert.Equal(t, "orders", fieldErrs[0].Field)
}

func TestOrderSuspiciousUnitPriceIsAccepted(t *testing.T) {
	// Unit price 5.00 is below the plausible band but the record must survive.
	data := orderXML(
		orderElement("ORD-001", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "1", "5.00"),
	)

	v := NewOrderValidator()
	orders, fieldErrs, err := v.Parse(data)
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	require.Len(t, orders, 1)
	assert.InDelta(t, 5.0, orders[0].TotalAmount, 1e-9)

	report := v.QualityReport(orders, fieldErrs)
	assert.Equal(t, 1, report.SuspiciousUnitPrice)
}

func TestOrderValidationIdempotent(t *testing.T) {
	raw := RawOrder{
		OrderID:       "ORD-042",
		MobileNumber:  "+91 98765 43210",
		OrderDateTime: "2024-06-01 12:00:00",
		SKUID:         "SKU-3001",
		SKUCount:      "3",
		TotalAmount:   "₹7,500",
	}

	v := NewOrderValidator()
	first, errs1 := v.ValidateRecord(raw, 1)
	require.Empty(t, errs1)
	second, errs2 := v.ValidateRecord(raw, 1)
	require.Empty(t, errs2)
	assert.Equal(t, first, second)
}

func TestOrderQualityReport(t *testing.T) {
	data := orderXML(
		orderElement("ORD-001", "9876543210", "2024-03-15T10:30:00", "SKU-1001", "2", "5000.00") +
			orderElement("ORD-001", "9876543210", "2024-03-16T10:30:00", "SKU-1001", "1", "2500.00") + // duplicate id
			orderElement("ORD-003", "8765432109", "2024-03-18T10:30:00", "SKU-2001", "4", "10000.00"),
	)

	v := NewOrderValidator()
	orders, fieldErrs, err := v.Parse(data)
	require.NoError(t, err)
	require.Len(t, orders, 3)

	report := v.QualityReport(orders, fieldErrs)
	assert.Equal(t, 3, report.TotalOrders)
	assert.Equal(t, 1, report.DuplicateOrderIDs)
	assert.Equal(t, 3, report.DateRange.DaysSpan)
	assert.InDelta(t, 2500.0, report.AmountStats.Min, 1e-9)
	assert.InDelta(t, 10000.0, report.AmountStats.Max, 1e-9)
	assert.InDelta(t, 17500.0, report.AmountStats.TotalRevenue, 1e-9)
	assert.Equal(t, 7, report.QuantityStats.TotalItems)
	assert.Equal(t, 2, report.SKUAnalysis.UniqueSKUs)
	assert.Equal(t, 3, report.SKUAnalysis.TotalSKUInstances)
	assert.Equal(t, 2, report.CustomerAnalysis.UniqueCustomers)
	assert.InDelta(t, 1.5, report.CustomerAnalysis.AvgOrdersPerCustomer, 1e-9)
}

func TestOrderQualityReportEmpty(t *testing.T) {
	v := NewOrderValidator()
	report := v.QualityReport(nil, nil)
	assert.Equal(t, 0, report.TotalOrders)
	assert.Equal(t, 0, report.SuspiciousUnitPrice)
}
