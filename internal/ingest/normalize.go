package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	ErrInvalidMobileNumber = errors.New("invalid mobile number format")
	ErrUnparsableDateTime  = errors.New("unparsable date/time format")
)

// dateTimeLayouts are tried in order; the first successful parse wins. All
// values are treated as naive UTC, no timezone conversion is performed.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// NormalizeMobileNumber strips non-digit characters and canonicalizes to the
// 10-digit domestic form. Accepted shapes: exactly 10 digits starting with
// 6-9, or 12/13 digits carrying a leading "91" country code, which is
// stripped. Every other shape fails.
func NormalizeMobileNumber(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && digits[0] >= '6' && digits[0] <= '9':
		return digits, nil
	case (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "91"):
		return digits[2:], nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMobileNumber, raw)
}

// NormalizeDateTime parses raw against the supported layouts.
func NormalizeDateTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparsableDateTime)
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDateTime, raw)
}

// SafeNumeric converts raw to a float, stripping currency symbols, commas and
// other formatting characters first. It returns def instead of failing.
func SafeNumeric(raw string, def float64) float64 {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return def
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return def
	}
	return v
}

// CleanCustomerName collapses whitespace and title-cases each word.
func CleanCustomerName(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// skuCategories maps the first digit after the SKU- prefix to a category.
var skuCategories = map[byte]string{
	'1': "Electronics",
	'2': "Clothing",
	'3': "Books",
	'4': "Home",
}

// SKUCategory derives a product category from the numeric portion of a SKU
// identifier. Unmapped digits fall back to "Other".
func SKUCategory(skuID string) string {
	rest, ok := strings.CutPrefix(skuID, "SKU-")
	if !ok || rest == "" {
		return "Other"
	}
	if category, ok := skuCategories[rest[0]]; ok {
		return category
	}
	return "Other"
}
