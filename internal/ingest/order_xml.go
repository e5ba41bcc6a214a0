package ingest

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

// RawOrder mirrors one <order> element before validation. All fields are the
// raw text-node values.
type RawOrder struct {
	OrderID       string `xml:"order_id"`
	MobileNumber  string `xml:"mobile_number"`
	OrderDateTime string `xml:"order_date_time"`
	SKUID         string `xml:"sku_id"`
	SKUCount      string `xml:"sku_count"`
	TotalAmount   string `xml:"total_amount"`
}

type ordersDocument struct {
	XMLName xml.Name   `xml:"orders"`
	Orders  []RawOrder `xml:"order"`
}

// OrderValidator validates and cleans raw order records from XML input.
type OrderValidator struct {
	strictness Strictness
	logger     *zap.Logger
}

func NewOrderValidator() *OrderValidator {
	return &OrderValidator{
		strictness: DropWholesale,
		logger:     util.GetLogger(),
	}
}

// ParseFile reads and validates an order XML file. Unparsable XML or a wrong
// root element is a structural error; a document with zero <order> children
// yields an empty set plus a FieldError.
func (v *OrderValidator) ParseFile(path string) ([]models.Order, []models.FieldError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open order file: %w", err)
	}
	orders, fieldErrs, err := v.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return orders, fieldErrs, nil
}

// Parse validates order XML content. Records are numbered by their 1-based
// element ordinal in the document.
func (v *OrderValidator) Parse(data []byte) ([]models.Order, []models.FieldError, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil, ErrEmptyFile
	}

	var doc ordersDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode order XML: %w", err)
	}
	if len(doc.Orders) == 0 {
		return nil, []models.FieldError{
			{Row: 0, Field: "orders", Message: "no order elements found"},
		}, nil
	}

	var (
		valid     []models.Order
		fieldErrs []models.FieldError
		dropped   int
	)
	for i, raw := range doc.Orders {
		order, recordErrs := v.ValidateRecord(raw, i+1)
		if len(recordErrs) > 0 {
			fieldErrs = append(fieldErrs, recordErrs...)
			if v.strictness == DropWholesale {
				dropped++
				continue
			}
		}
		valid = append(valid, order)
	}

	util.RecordsValidatedTotal.WithLabelValues("order").Add(float64(len(valid)))
	util.ValidationErrorsTotal.WithLabelValues("order").Add(float64(dropped))
	v.logger.Info("Order batch validated",
		zap.Int("valid", len(valid)),
		zap.Int("dropped", dropped),
		zap.Int("field_errors", len(fieldErrs)))

	return valid, fieldErrs, nil
}

// ValidateRecord checks one raw order element. Structural failures drop the
// record. An implausible unit price does not: the order is accepted, logged
// at Warn and counted in the quality report.
func (v *OrderValidator) ValidateRecord(raw RawOrder, ordinal int) (models.Order, []models.FieldError) {
	var errs []models.FieldError

	orderID := strings.TrimSpace(raw.OrderID)
	switch {
	case orderID == "":
		errs = append(errs, models.FieldError{Row: ordinal, Field: "order_id", Message: "missing value"})
	case !strings.HasPrefix(orderID, "ORD-"):
		errs = append(errs, models.FieldError{Row: ordinal, Field: "order_id", Message: fmt.Sprintf("invalid format: %q", orderID)})
	}

	mobile, err := NormalizeMobileNumber(raw.MobileNumber)
	if err != nil {
		errs = append(errs, models.FieldError{Row: ordinal, Field: "mobile_number", Message: err.Error()})
	}

	dateRaw := strings.TrimSpace(raw.OrderDateTime)
	orderDate, err := NormalizeDateTime(dateRaw)
	if err != nil {
		errs = append(errs, models.FieldError{Row: ordinal, Field: "order_date_time", Message: err.Error()})
	}

	skuID := strings.TrimSpace(raw.SKUID)
	switch {
	case skuID == "":
		errs = append(errs, models.FieldError{Row: ordinal, Field: "sku_id", Message: "missing value"})
	case !strings.HasPrefix(skuID, "SKU-"):
		errs = append(errs, models.FieldError{Row: ordinal, Field: "sku_id", Message: fmt.Sprintf("invalid format: %q", skuID)})
	}

	skuCount := int(SafeNumeric(raw.SKUCount, 0))
	if skuCount <= 0 {
		errs = append(errs, models.FieldError{Row: ordinal, Field: "sku_count", Message: fmt.Sprintf("not a positive quantity: %q", raw.SKUCount)})
	}

	totalAmount := SafeNumeric(raw.TotalAmount, 0)
	if totalAmount <= 0 {
		errs = append(errs, models.FieldError{Row: ordinal, Field: "total_amount", Message: fmt.Sprintf("not a positive amount: %q", raw.TotalAmount)})
	}

	order := models.Order{
		OrderID:       orderID,
		MobileNumber:  mobile,
		OrderDateTime: orderDate,
		OrderDateRaw:  dateRaw,
		SKUID:         skuID,
		SKUCount:      skuCount,
		TotalAmount:   totalAmount,
	}

	if len(errs) == 0 {
		if up := order.UnitPrice(); up < models.UnitPriceMin || up > models.UnitPriceMax {
			util.SuspiciousUnitPriceTotal.Inc()
			v.logger.Warn("Suspicious unit price",
				zap.String("order_id", orderID),
				zap.Float64("unit_price", up))
		}
	}

	return order, errs
}

// QualityReport summarizes a validated order batch.
func (v *OrderValidator) QualityReport(valid []models.Order, fieldErrs []models.FieldError) models.OrderQualityReport {
	report := models.OrderQualityReport{
		TotalOrders:      len(valid),
		ValidationErrors: len(fieldErrs),
	}
	if len(valid) == 0 {
		return report
	}

	ids := make(map[string]struct{}, len(valid))
	skus := make(map[string]struct{}, len(valid))
	mobiles := make(map[string]struct{}, len(valid))

	first := valid[0]
	minDate, maxDate := first.OrderDateTime, first.OrderDateTime
	minAmount, maxAmount, totalAmount := first.TotalAmount, first.TotalAmount, 0.0
	minQty, maxQty, totalQty := first.SKUCount, first.SKUCount, 0

	for _, o := range valid {
		ids[o.OrderID] = struct{}{}
		skus[o.SKUID] = struct{}{}
		mobiles[o.MobileNumber] = struct{}{}

		if o.OrderDateTime.Before(minDate) {
			minDate = o.OrderDateTime
		}
		if o.OrderDateTime.After(maxDate) {
			maxDate = o.OrderDateTime
		}
		if o.TotalAmount < minAmount {
			minAmount = o.TotalAmount
		}
		if o.TotalAmount > maxAmount {
			maxAmount = o.TotalAmount
		}
		totalAmount += o.TotalAmount
		if o.SKUCount < minQty {
			minQty = o.SKUCount
		}
		if o.SKUCount > maxQty {
			maxQty = o.SKUCount
		}
		totalQty += o.SKUCount

		if up := o.UnitPrice(); up < models.UnitPriceMin || up > models.UnitPriceMax {
			report.SuspiciousUnitPrice++
		}
	}

	n := float64(len(valid))
	report.DateRange = models.DateRangeStats{
		MinDate:  minDate,
		MaxDate:  maxDate,
		DaysSpan: int(maxDate.Sub(minDate).Hours() / 24),
	}
	report.AmountStats = models.AmountStats{
		Min:          minAmount,
		Max:          maxAmount,
		Avg:          totalAmount / n,
		TotalRevenue: totalAmount,
	}
	report.QuantityStats = models.QuantityStats{
		Min:        minQty,
		Max:        maxQty,
		Avg:        float64(totalQty) / n,
		TotalItems: totalQty,
	}
	report.SKUAnalysis = models.SKUAnalysis{
		UniqueSKUs:        len(skus),
		TotalSKUInstances: len(valid),
	}
	report.CustomerAnalysis = models.CustomerAnalysis{
		UniqueCustomers:      len(mobiles),
		TotalOrders:          len(valid),
		AvgOrdersPerCustomer: n / float64(len(mobiles)),
	}
	report.DuplicateOrderIDs = len(valid) - len(ids)
	return report
}
