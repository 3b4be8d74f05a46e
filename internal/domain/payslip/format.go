package payslip

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatCLP renders whole pesos the Chilean way: $1.234.567.
func FormatCLP(amount int64) string {
	if amount < 0 {
		return "-$" + FormatCount(-amount)
	}
	return "$" + FormatCount(amount)
}

// FormatCount groups thousands with a period.
func FormatCount(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}

// FormatPercent renders a fraction with two decimals and a decimal comma.
func FormatPercent(fraction float64) string {
	return strings.Replace(decimal.NewFromFloat(fraction).Mul(hundred).StringFixed(2), ".", ",", 1) + "%"
}

func FormatHours(hours float64) string {
	return strings.Replace(decimal.NewFromFloat(hours).String(), ".", ",", 1)
}
