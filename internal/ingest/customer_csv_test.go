package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerHeader = "customer_id,customer_name,mobile_number,region\n"

func TestCustomerParseValidRows(t *testing.T) {
	csvData := customerHeader +
		"CUST-001,john doe,9876543210,North\n" +
		"CUST-002,  amit   kumar ,+91 87654 32109,South\n"

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	require.Len(t, customers, 2)

	assert.Equal(t, "CUST-001", customers[0].CustomerID)
	assert.Equal(t, "John Doe", customers[0].CustomerName)
	assert.Equal(t, "9876543210", customers[0].MobileNumber)
	assert.Equal(t, "North", customers[0].Region)

	assert.Equal(t, "Amit Kumar", customers[1].CustomerName)
	assert.Equal(t, "8765432109", customers[1].MobileNumber)
}

func TestCustomerParseDropsWholesaleOnAnyBadField(t *testing.T) {
	csvData := customerHeader +
		"CUST-001,john doe,9876543210,North\n" +
		"CUST-002,ok name,12345,South\n" + // bad mobile: whole row dropped
		"BAD-003,ok name,9876543211,East\n" + // bad id prefix
		"CUST-004,x,9876543212,West\n" + // name too short
		"CUST-005,fine name,9876543213,north\n" // region is case-sensitive

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "CUST-001", customers[0].CustomerID)
	assert.Len(t, fieldErrs, 4)

	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fe.Field
	}
	assert.ElementsMatch(t, []string{"mobile_number", "customer_id", "customer_name", "region"}, fields)
}

func TestCustomerParseRowNumbersStartAtTwo(t *testing.T) {
	csvData := customerHeader + "CUST-001,ok name,12345,North\n"

	v := NewCustomerValidator()
	_, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, 2, fieldErrs[0].Row)
}

func TestCustomerParseMissingColumns(t *testing.T) {
	csvData := "customer_id,customer_name\nCUST-001,john doe\n"

	v := NewCustomerValidator()
	_, _, err := v.Parse(strings.NewReader(csvData))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "mobile_number")
	assert.Contains(t, err.Error(), "region")
}

func TestCustomerParseEmptyFile(t *testing.T) {
	v := NewCustomerValidator()
	_, _, err := v.Parse(strings.NewReader("  \n "))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestCustomerParseSkipsBlankRows(t *testing.T) {
	csvData := customerHeader +
		"CUST-001,john doe,9876543210,North\n" +
		",,,\n" +
		"CUST-002,jane roe,9876543211,South\n"

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	assert.Len(t, customers, 2)
}

func TestCustomerParseSniffsSemicolonDelimiter(t *testing.T) {
	csvData := "customer_id;customer_name;mobile_number;region\n" +
		"CUST-001;john doe;9876543210;North\n"

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	require.Len(t, customers, 1)
	assert.Equal(t, "John Doe", customers[0].CustomerName)
}

func TestCustomerParseToleratesExtraColumnsAnyOrder(t *testing.T) {
	csvData := "region,notes,customer_name,mobile_number,customer_id\n" +
		"East,vip,mary major,9876543210,CUST-009\n"

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Empty(t, fieldErrs)
	require.Len(t, customers, 1)
	assert.Equal(t, "CUST-009", customers[0].CustomerID)
	assert.Equal(t, "East", customers[0].Region)
}

func TestCustomerValidationIdempotent(t *testing.T) {
	row := map[string]string{
		"customer_id":   "CUST-010",
		"customer_name": "  raj   PATEL ",
		"mobile_number": "+91 91234 56789",
		"region":        "Central",
	}

	v := NewCustomerValidator()
	first, errs1 := v.ValidateRecord(row, 2)
	require.Empty(t, errs1)
	second, errs2 := v.ValidateRecord(row, 2)
	require.Empty(t, errs2)
	assert.Equal(t, first, second)

	// Re-validating the cleaned output is a fixed point.
	cleanedRow := map[string]string{
		"customer_id":   first.CustomerID,
		"customer_name": first.CustomerName,
		"mobile_number": first.MobileNumber,
		"region":        first.Region,
	}
	third, errs3 := v.ValidateRecord(cleanedRow, 2)
	require.Empty(t, errs3)
	assert.Equal(t, first, third)
}

func TestCustomerQualityReportDuplicates(t *testing.T) {
	csvData := customerHeader +
		"CUST-001,john doe,9876543210,North\n" +
		"CUST-001,john doe,9876543210,North\n" + // injected duplicate
		"CUST-002,jane roe,9876543211,South\n"

	v := NewCustomerValidator()
	customers, fieldErrs, err := v.Parse(strings.NewReader(csvData))
	require.NoError(t, err)

	report := v.QualityReport(customers, fieldErrs)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.DuplicateCustomerIDs)
	assert.Equal(t, 1, report.DuplicateMobileNumbers)
	assert.Equal(t, 2, report.RegionDistribution["North"])
	assert.Equal(t, 1, report.RegionDistribution["South"])
	assert.Equal(t, 10, report.MobileNumberStats.MinLength)
	assert.Equal(t, 10, report.MobileNumberStats.MaxLength)
	assert.InDelta(t, 10.0, report.MobileNumberStats.AvgLength, 1e-9)
}

func TestCustomerQualityReportEmpty(t *testing.T) {
	v := NewCustomerValidator()
	report := v.QualityReport(nil, nil)
	assert.Equal(t, 0, report.TotalRecords)
	assert.Equal(t, 0, report.ValidationErrors)
	assert.NotNil(t, report.RegionDistribution)
}
