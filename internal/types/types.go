// Package types converts and validates instance values per XML data type.
package types

import (
	"math"
	"strconv"
	"strings"

	"github.com/jacoelho/xformdoc/internal/number"
)

// Data types with dedicated handling. Anything else behaves as String.
const (
	String   = "string"
	Int      = "int"
	Decimal  = "decimal"
	Date     = "date"
	DateTime = "datetime"
	Time     = "time"
	Geopoint = "geopoint"
	Binary   = "binary"
	Barcode  = "barcode"
)

// Normalize lowercases a type name and strips an xsd: prefix.
func Normalize(xmlType string) string {
	xmlType = strings.ToLower(strings.TrimSpace(xmlType))
	if i := strings.IndexByte(xmlType, ':'); i >= 0 {
		xmlType = xmlType[i+1:]
	}
	switch xmlType {
	case "integer":
		return Int
	case "double", "float":
		// Not an XForms data type; treated as a string.
		return String
	}
	return xmlType
}

// Text renders a raw value as instance text. Lists are joined by single
// spaces with empty members preserved.
func Text(value any) string {
	switch current := value.(type) {
	case nil:
		return ""
	case string:
		return current
	case []string:
		return strings.Join(current, " ")
	case []any:
		parts := make([]string, len(current))
		for i, part := range current {
			parts[i] = Text(part)
		}
		return strings.Join(parts, " ")
	case bool:
		return strconv.FormatBool(current)
	}
	if f, ok := number.ToFloat64(value); ok {
		return number.Format(f)
	}
	return ""
}

// Convert returns the best-effort canonical text for value. It never fails;
// unparsable values become empty for numeric and temporal types.
func Convert(value any, xmlType string) string {
	xmlType = Normalize(xmlType)

	if days, ok := number.ToFloat64(value); ok && (xmlType == Date || xmlType == DateTime) {
		return fromEpochDays(days, xmlType)
	}

	text := Text(value)
	if text == "" {
		return ""
	}

	switch xmlType {
	case Int:
		f, ok := parseFloat(text)
		if !ok || math.IsInf(f, 0) {
			return ""
		}
		return number.Format(math.Trunc(f))
	case Decimal:
		f, ok := parseFloat(text)
		if !ok || math.IsInf(f, 0) {
			return ""
		}
		return number.Format(f)
	case Date:
		return convertDate(text)
	case DateTime:
		return convertDateTime(text)
	case Time:
		return convertTime(text)
	}
	return text
}

// Valid reports whether the value is structurally valid for xmlType. Empty
// values are always valid.
func Valid(value any, xmlType string) bool {
	xmlType = Normalize(xmlType)
	if days, ok := number.ToFloat64(value); ok && (xmlType == Date || xmlType == DateTime) {
		return !math.IsNaN(days) && !math.IsInf(days, 0)
	}

	text := Text(value)
	if strings.TrimSpace(text) == "" {
		return true
	}

	switch xmlType {
	case Int:
		return isInteger(strings.TrimSpace(text))
	case Decimal:
		trimmed := strings.TrimSpace(text)
		if trimmed == "Infinity" || trimmed == "-Infinity" {
			return true
		}
		f, ok := parseFloat(trimmed)
		return ok && !math.IsInf(f, 0)
	case Date:
		_, ok := parseDate(strings.TrimSpace(text))
		return ok
	case DateTime:
		return validDateTime(strings.TrimSpace(text))
	case Time:
		_, ok := parseClock(strings.TrimSpace(text))
		return ok
	case Geopoint:
		return validGeopoint(text)
	}
	return true
}

// parseFloat accepts decimal and exponent notation plus the Infinity
// literals. NaN is rejected.
func parseFloat(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	switch text {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	lower := strings.ToLower(strings.TrimLeft(text, "+-"))
	if lower == "" || strings.HasPrefix(lower, "inf") || strings.HasPrefix(lower, "nan") || strings.HasPrefix(lower, "0x") {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isInteger(text string) bool {
	digits := strings.TrimLeft(text, "+-")
	if digits == "" || len(text)-len(digits) > 1 {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}
