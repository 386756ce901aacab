package format

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FieldType tells Value how a metric should be rendered.
type FieldType string

const (
	FieldCurrency   FieldType = "currency"
	FieldPercentage FieldType = "percentage"
)

// DefaultCurrencySymbol prefixes currency values.
const DefaultCurrencySymbol = "Rs."

// Formatter renders numeric values for display.
type Formatter struct {
	CurrencySymbol string
	printer        *message.Printer
}

// NewFormatter returns a Formatter that groups digits the en locale way.
// An empty symbol falls back to DefaultCurrencySymbol.
func NewFormatter(symbol string) Formatter {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	return Formatter{CurrencySymbol: symbol, printer: message.NewPrinter(language.English)}
}

var defaultFormatter = NewFormatter(DefaultCurrencySymbol)

// Currency formats v with the default symbol, thousands separators and two decimals.
func Currency(v any) string { return defaultFormatter.Currency(v) }

// Percentage formats v with two decimals and a trailing " %".
func Percentage(v any) string { return defaultFormatter.Percentage(v) }

// Value formats v according to fieldType, returning v unchanged for untyped fields.
func Value(v any, fieldType FieldType) any { return defaultFormatter.Value(v, fieldType) }

// Currency formats v as "<symbol> 1,234.50". Non-numeric values are printed as is.
func (f Formatter) Currency(v any) string {
	d, ok := ToDecimal(v)
	if !ok {
		return fmt.Sprint(v)
	}
	p := f.printer
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return f.CurrencySymbol + " " + p.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// Percentage formats v as "12.50 %". Non-numeric values are printed as is.
func (f Formatter) Percentage(v any) string {
	d, ok := ToDecimal(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return d.StringFixed(2) + " %"
}

// Value dispatches on fieldType.
func (f Formatter) Value(v any, fieldType FieldType) any {
	switch fieldType {
	case FieldCurrency:
		return f.Currency(v)
	case FieldPercentage:
		return f.Percentage(v)
	default:
		return v
	}
}

// ToDecimal converts the numeric shapes database drivers hand back into a
// decimal. NaN and infinities are rejected.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return fromString(strconv.FormatUint(n, 10))
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case []byte:
		return fromString(string(n))
	case string:
		return fromString(n)
	default:
		return decimal.Decimal{}, false
	}
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}

func fromString(s string) (decimal.Decimal, bool) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}
