package validation

import "strings"

// medicareWeights apply to the first eight digits of a Medicare card number.
var medicareWeights = [8]int{1, 3, 7, 9, 1, 3, 7, 9}

// providerWeights apply to the six value positions of a provider number stem.
var providerWeights = [6]int{3, 5, 8, 4, 2, 1}

// providerLocationChars is the 32-symbol practice location alphabet. Letters
// easily confused with digits (I, O, S, Z) are excluded.
const providerLocationChars = "0123456789ABCDEFGHJKLMNPQRTUVWXY"

// providerCheckChars maps a weighted sum mod 11 to the check character.
const providerCheckChars = "YXWTLKJHFBA"

// providerStateValues maps the leading state letter of the alphabetic
// provider number form to its checksum value.
var providerStateValues = map[byte]int{
	'N': 1, // NSW
	'V': 2, // VIC
	'Q': 3, // QLD
	'S': 4, // SA
	'W': 5, // WA
	'T': 6, // TAS
}

// ValidMedicareNumber reports whether a 10-digit Medicare card number passes
// the weighted checksum. The ninth digit is the check digit; the tenth is the
// card issue number and must not be zero. Any malformed input fails, it is
// never coerced.
func ValidMedicareNumber(number string) bool {
	if len(number) != 10 || !allDigits(number) {
		return false
	}
	sum := 0
	for i, w := range medicareWeights {
		sum += int(number[i]-'0') * w
	}
	if sum%10 != int(number[8]-'0') {
		return false
	}
	return number[9] != '0'
}

// ValidProviderNumber reports whether an administering provider number passes
// its checksum. Two forms exist: a numeric stem (6 digits, practice location
// character, check character) and an alphabetic state form (state letter,
// 5 digits, check character). The weighting scheme is shared.
func ValidProviderNumber(provider string) bool {
	provider = strings.ToUpper(strings.TrimSpace(provider))
	switch len(provider) {
	case 8:
		return validNumericStemProvider(provider)
	case 7:
		return validStateCodeProvider(provider)
	default:
		return false
	}
}

func validNumericStemProvider(provider string) bool {
	stem := provider[:6]
	if !allDigits(stem) {
		return false
	}
	location := strings.IndexByte(providerLocationChars, provider[6])
	if location < 0 {
		return false
	}
	sum := 0
	for i, w := range providerWeights {
		sum += int(stem[i]-'0') * w
	}
	sum += location * 6
	return providerCheckChars[sum%11] == provider[7]
}

func validStateCodeProvider(provider string) bool {
	state, ok := providerStateValues[provider[0]]
	if !ok {
		return false
	}
	digits := provider[1:6]
	if !allDigits(digits) {
		return false
	}
	values := [6]int{state}
	for i := 0; i < 5; i++ {
		values[i+1] = int(digits[i] - '0')
	}
	sum := 0
	for i, w := range providerWeights {
		sum += values[i] * w
	}
	return providerCheckChars[sum%11] == provider[6]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
