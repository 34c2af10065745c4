package ussd

import "strings"

// CountryCode is prepended to local South African numbers
const CountryCode = "27"

// NormalizePhone converts the local formats sent by telecom gateways to a
// leading-plus international number: non-digits are stripped, a 10-digit
// number with a leading zero has the zero replaced by the country code, a
// 9-digit number gets the country code prepended, anything else passes through.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone) + 3)
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && digits[0] == '0':
		digits = CountryCode + digits[1:]
	case len(digits) == 9:
		digits = CountryCode + digits
	}

	return "+" + digits
}
