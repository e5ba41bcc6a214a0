package pipeline

import (
	"strings"
	"time"

	"order-analytics/internal/models"
)

// BuildDataQualityReport assesses one validated batch: per-entity hygiene,
// how well the two entity sets link up, and a graded overall score.
func BuildDataQualityReport(customers []models.Customer, orders []models.Order, now time.Time) models.DataQualityReport {
	report := models.DataQualityReport{
		AssessmentDate:      now,
		CustomerDataQuality: assessCustomers(customers),
		OrderDataQuality:    assessOrders(orders),
		RelationshipQuality: assessRelationship(customers, orders),
	}
	report.OverallScore = scoreQuality(report.CustomerDataQuality, report.OrderDataQuality, report.RelationshipQuality)
	return report
}

func assessCustomers(customers []models.Customer) models.CustomerDataQuality {
	q := models.CustomerDataQuality{
		TotalRecords:       len(customers),
		RegionDistribution: make(map[string]int),
	}

	mobiles := make(map[string]struct{}, len(customers))
	for _, c := range customers {
		if _, ok := mobiles[c.MobileNumber]; ok {
			q.DuplicateMobileNumbers++
		}
		mobiles[c.MobileNumber] = struct{}{}

		if strings.TrimSpace(c.CustomerName) == "" {
			q.MissingNames++
		}
		if strings.TrimSpace(c.Region) == "" {
			q.MissingRegions++
			continue
		}
		q.RegionDistribution[c.Region]++
	}
	q.UniqueRegions = len(q.RegionDistribution)
	return q
}

func assessOrders(orders []models.Order) models.OrderDataQuality {
	q := models.OrderDataQuality{TotalRecords: len(orders)}
	if len(orders) == 0 {
		return q
	}

	ids := make(map[string]struct{}, len(orders))
	first := orders[0]
	minDate, maxDate := first.OrderDateTime, first.OrderDateTime
	minAmount, maxAmount, total := first.TotalAmount, first.TotalAmount, 0.0
	for _, o := range orders {
		if _, ok := ids[o.OrderID]; ok {
			q.DuplicateOrderIDs++
		}
		ids[o.OrderID] = struct{}{}

		switch {
		case o.TotalAmount == 0:
			q.ZeroAmounts++
		case o.TotalAmount < 0:
			q.NegativeAmounts++
		}

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
		total += o.TotalAmount
	}

	q.DateRange = models.DateRangeStats{
		MinDate:  minDate,
		MaxDate:  maxDate,
		DaysSpan: int(maxDate.Sub(minDate).Hours() / 24),
	}
	q.AmountStats = models.AmountStats{
		Min:          minAmount,
		Max:          maxAmount,
		Avg:          total / float64(len(orders)),
		TotalRevenue: total,
	}
	return q
}

// assessRelationship measures linkage between the two entity sets over
// distinct mobile numbers. The integrity score is the Jaccard similarity of
// the two mobile sets as a percentage, zero when both sets are empty.
func assessRelationship(customers []models.Customer, orders []models.Order) models.RelationshipQuality {
	customerMobiles := make(map[string]struct{}, len(customers))
	for _, c := range customers {
		customerMobiles[c.MobileNumber] = struct{}{}
	}
	orderMobiles := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		orderMobiles[o.MobileNumber] = struct{}{}
	}

	var q models.RelationshipQuality
	intersection := 0
	union := len(customerMobiles)
	for m := range orderMobiles {
		if _, ok := customerMobiles[m]; ok {
			intersection++
		} else {
			q.OrdersWithoutCustomers++
			union++
		}
	}
	for m := range customerMobiles {
		if _, ok := orderMobiles[m]; !ok {
			q.CustomersWithoutOrders++
		}
	}
	if union > 0 {
		q.DataIntegrityScore = float64(intersection) / float64(union) * 100
	}
	return q
}

// scoreQuality applies a flat deduction per issue class present, regardless
// of how many records exhibit it. The score floors at zero.
func scoreQuality(cust models.CustomerDataQuality, ord models.OrderDataQuality, rel models.RelationshipQuality) models.QualityScore {
	score := 100
	if cust.DuplicateMobileNumbers > 0 {
		score -= 10
	}
	if cust.MissingNames > 0 {
		score -= 5
	}
	if ord.DuplicateOrderIDs > 0 {
		score -= 10
	}
	if ord.ZeroAmounts > 0 {
		score -= 5
	}
	if ord.NegativeAmounts > 0 {
		score -= 10
	}
	if rel.DataIntegrityScore < 95 {
		score -= 15
	}
	if score < 0 {
		score = 0
	}

	var grade string
	switch {
	case score >= 95:
		grade = "Excellent"
	case score >= 85:
		grade = "Good"
	case score >= 70:
		grade = "Fair"
	default:
		grade = "Poor"
	}

	return models.QualityScore{
		Score:           score,
		Grade:           grade,
		Recommendations: qualityRecommendations(cust, ord, rel),
	}
}

func qualityRecommendations(cust models.CustomerDataQuality, ord models.OrderDataQuality, rel models.RelationshipQuality) []string {
	var recs []string
	if cust.DuplicateMobileNumbers > 0 {
		recs = append(recs, "Remove or consolidate duplicate customer mobile numbers")
	}
	if ord.DuplicateOrderIDs > 0 {
		recs = append(recs, "Investigate and resolve duplicate order IDs")
	}
	if ord.NegativeAmounts > 0 {
		recs = append(recs, "Review and correct negative order amounts")
	}
	if rel.OrdersWithoutCustomers > 0 {
		recs = append(recs, "Add customer records for orders with missing customer data")
	}
	if rel.DataIntegrityScore < 95 {
		recs = append(recs, "Improve data linking between customers and orders")
	}
	return recs
}
