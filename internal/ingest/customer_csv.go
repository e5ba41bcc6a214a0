package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"order-analytics/internal/models"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

var (
	ErrEmptyFile      = errors.New("file contains no data")
	ErrMissingColumns = errors.New("missing required columns")
)

// Strictness controls how a validator treats records with failing fields.
type Strictness int

const (
	// DropWholesale discards the entire record when any required field
	// fails. The only level currently shipped; partial-record salvage
	// would be a new level here.
	DropWholesale Strictness = iota
)

// customerColumns are the required CSV header columns. Extra columns are
// tolerated and ignored; order does not matter.
var customerColumns = []string{"customer_id", "customer_name", "mobile_number", "region"}

// CustomerValidator validates and cleans raw customer rows from CSV input.
type CustomerValidator struct {
	strictness Strictness
	logger     *zap.Logger
}

func NewCustomerValidator() *CustomerValidator {
	return &CustomerValidator{
		strictness: DropWholesale,
		logger:     util.GetLogger(),
	}
}

// ParseFile reads and validates a customer CSV file. The returned error is
// reserved for structural failures (unreadable file, missing header columns);
// per-record problems are reported through the FieldError list and the
// offending rows are dropped.
func (v *CustomerValidator) ParseFile(path string) ([]models.Customer, []models.FieldError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open customer file: %w", err)
	}
	defer f.Close()

	customers, fieldErrs, err := v.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return customers, fieldErrs, nil
}

// Parse validates customer CSV content from r. Data rows are numbered from 2,
// matching spreadsheet conventions (row 1 is the header).
func (v *CustomerValidator) Parse(r io.Reader) ([]models.Customer, []models.FieldError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read customer data: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyFile
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = sniffDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range customerColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var (
		valid     []models.Customer
		fieldErrs []models.FieldError
		dropped   int
	)
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{
				Row: rowNum, Field: "row", Message: fmt.Sprintf("malformed CSV row: %v", err),
			})
			dropped++
			continue
		}
		if allEmpty(record) {
			continue
		}

		row := make(map[string]string, len(customerColumns))
		for _, col := range customerColumns {
			i := colIdx[col]
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}

		customer, recordErrs := v.ValidateRecord(row, rowNum)
		if len(recordErrs) > 0 {
			fieldErrs = append(fieldErrs, recordErrs...)
			if v.strictness == DropWholesale {
				dropped++
				continue
			}
		}
		valid = append(valid, customer)
	}

	util.RecordsValidatedTotal.WithLabelValues("customer").Add(float64(len(valid)))
	util.ValidationErrorsTotal.WithLabelValues("customer").Add(float64(dropped))
	v.logger.Info("Customer batch validated",
		zap.Int("valid", len(valid)),
		zap.Int("dropped", dropped),
		zap.Int("field_errors", len(fieldErrs)))

	return valid, fieldErrs, nil
}

// ValidateRecord checks one raw row. Every required field is checked so a bad
// row reports all of its problems at once. The returned record is fully
// populated only when the error slice is empty.
func (v *CustomerValidator) ValidateRecord(row map[string]string, rowNum int) (models.Customer, []models.FieldError) {
	var errs []models.FieldError

	customerID := row["customer_id"]
	switch {
	case customerID == "":
		errs = append(errs, models.FieldError{Row: rowNum, Field: "customer_id", Message: "missing value"})
	case !strings.HasPrefix(customerID, "CUST-"):
		errs = append(errs, models.FieldError{Row: rowNum, Field: "customer_id", Message: fmt.Sprintf("invalid format: %q", customerID)})
	}

	name := CleanCustomerName(row["customer_name"])
	if row["customer_name"] == "" {
		errs = append(errs, models.FieldError{Row: rowNum, Field: "customer_name", Message: "missing value"})
	} else if utf8.RuneCountInString(name) < 2 {
		errs = append(errs, models.FieldError{Row: rowNum, Field: "customer_name", Message: fmt.Sprintf("too short after cleaning: %q", name)})
	}

	mobile, err := NormalizeMobileNumber(row["mobile_number"])
	if err != nil {
		errs = append(errs, models.FieldError{Row: rowNum, Field: "mobile_number", Message: err.Error()})
	}

	region := row["region"]
	if !validRegion(region) {
		errs = append(errs, models.FieldError{Row: rowNum, Field: "region", Message: fmt.Sprintf("unknown region: %q", region)})
	}

	return models.Customer{
		CustomerID:   customerID,
		CustomerName: name,
		MobileNumber: mobile,
		Region:       region,
	}, errs
}

// QualityReport summarizes a validated customer batch. Duplicate counts are
// list length minus distinct count, so one injected duplicate yields exactly 1.
func (v *CustomerValidator) QualityReport(valid []models.Customer, fieldErrs []models.FieldError) models.CustomerQualityReport {
	report := models.CustomerQualityReport{
		TotalRecords:       len(valid),
		ValidationErrors:   len(fieldErrs),
		RegionDistribution: make(map[string]int),
	}
	if len(valid) == 0 {
		return report
	}

	ids := make(map[string]struct{}, len(valid))
	mobiles := make(map[string]struct{}, len(valid))
	minLen, maxLen, totalLen := len(valid[0].MobileNumber), 0, 0
	for _, c := range valid {
		report.RegionDistribution[c.Region]++
		ids[c.CustomerID] = struct{}{}
		mobiles[c.MobileNumber] = struct{}{}

		l := len(c.MobileNumber)
		if l < minLen {
			minLen = l
		}
		if l > maxLen {
			maxLen = l
		}
		totalLen += l
	}
	report.DuplicateCustomerIDs = len(valid) - len(ids)
	report.DuplicateMobileNumbers = len(valid) - len(mobiles)
	report.MobileNumberStats = models.LengthStats{
		MinLength: minLen,
		MaxLength: maxLen,
		AvgLength: float64(totalLen) / float64(len(valid)),
	}
	return report
}

func validRegion(region string) bool {
	for _, r := range models.ValidRegions {
		if region == r {
			return true
		}
	}
	return false
}

func allEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// sniffDelimiter picks the most frequent candidate delimiter on the header
// line, defaulting to a comma.
func sniffDelimiter(content string) rune {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', 0
	for _, cand := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}
