// Package amountwords spells whole peso amounts as uppercase Spanish
// cardinal numbers for printed pay slips.
package amountwords

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidArgument = errors.New("amount must be a non-negative integer")

// MaxAmount is the largest value ToWords accepts.
const MaxAmount int64 = 999_999_999_999

var units = []string{
	"", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE",
}

var teens = []string{
	"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE",
	"DIECISEIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE",
}

var tens = []string{
	"", "", "VEINTE", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA",
}

var hundreds = []string{
	"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS",
	"SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS",
}

// ToWords returns the Spanish spelling of n, e.g. 2500000 -> "DOS MILLONES QUINIENTOS MIL".
func ToWords(n int64) (string, error) {
	if n < 0 || n > MaxAmount {
		return "", fmt.Errorf("%w: %d", ErrInvalidArgument, n)
	}
	if n == 0 {
		return "CERO", nil
	}
	return spell(n), nil
}

// FromFloat accepts amounts carried as floating point and rejects anything
// that is not a whole, non-negative number.
func FromFloat(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, v)
	}
	if v < 0 || v > float64(MaxAmount) {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, v)
	}
	return ToWords(int64(v))
}

func spell(n int64) string {
	switch {
	case n < 10:
		return units[n]
	case n < 20:
		return teens[n-10]
	case n < 100:
		t, u := n/10, n%10
		if u == 0 {
			return tens[t]
		}
		return tens[t] + " Y " + units[u]
	case n < 1000:
		if n == 100 {
			return "CIEN"
		}
		h, rest := n/100, n%100
		if rest == 0 {
			return hundreds[h]
		}
		return hundreds[h] + " " + spell(rest)
	case n < 1_000_000:
		return compose(n/1000, n%1000, "MIL", "MIL", false)
	default:
		return compose(n/1_000_000, n%1_000_000, "MILLON", "MILLONES", true)
	}
}

// compose joins a leading segment with its scale word and the spelled
// remainder. A leading 1 is "MIL" for thousands but "UN MILLON" for millions.
func compose(lead, rest int64, singular, plural string, singularArticle bool) string {
	var head string
	switch {
	case lead == 1 && singularArticle:
		head = "UN " + singular
	case lead == 1:
		head = singular
	default:
		head = spell(lead) + " " + plural
	}
	if rest == 0 {
		return head
	}
	return strings.Join([]string{head, spell(rest)}, " ")
}
