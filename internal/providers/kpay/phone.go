package kpay

import (
	"strings"
)

// FormatPhoneNumber converts Rwandan numbers to the 10 digit local form KPay
// expects (07XXXXXXXX). Anything it does not recognise is returned unchanged.
func FormatPhoneNumber(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "2507"):
		return "0" + digits[3:]
	case len(digits) == 10 && strings.HasPrefix(digits, "07"):
		return digits
	case len(digits) == 9 && strings.HasPrefix(digits, "7"):
		return "0" + digits
	default:
		return input
	}
}
