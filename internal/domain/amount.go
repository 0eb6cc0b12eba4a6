package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer(
	"₹", "", "$", "", "£", "", "€", "",
	",", "", " ", "", "\u00a0", "",
)

// ParseAmount reads a printed money value such as "₹1,234.50 CR" or "Rs. 99".
// Currency markers, thousands separators and a trailing CR/DR are ignored.
// Empty or unparseable input yields zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "CR")
	s = strings.TrimSuffix(s, "DR")
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"INR", "RS.", "RS"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = amountNoise.Replace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
