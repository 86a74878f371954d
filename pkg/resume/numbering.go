package resume

import (
	"fmt"
	"strings"

	"wardial-server/pkg/errors"
)

// Plan holds the numbering-plan rules used to validate, format and
// enumerate phone numbers. The zero value is not usable; construct via
// NANP or with explicit fields.
type Plan struct {
	// CountryCode is the dialing prefix stripped during normalization.
	CountryCode string

	// TargetLength is the number of national digits in a full number.
	TargetLength int
}

// NANP returns the North American Numbering Plan: 10 national digits,
// area and exchange codes restricted to leading digits 2-9 and barred
// from the N11 service-code block.
func NANP() Plan {
	return Plan{CountryCode: "1", TargetLength: 10}
}

// Normalize strips formatting characters and a leading country code,
// leaving national digits only. The country code is only treated as such
// when the digit count matches a full international form, so area codes
// that happen to start with the country code digit survive.
func (p Plan) Normalize(number string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(number, "+") {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if p.CountryCode != "" &&
		strings.HasPrefix(digits, p.CountryCode) &&
		len(digits) == p.TargetLength+len(p.CountryCode) {
		digits = digits[len(p.CountryCode):]
	}

	return digits
}

// NormalizePattern is Normalize for partial prefixes: the country code is
// stripped whenever enough digits are present for one to exist.
func (p Plan) NormalizePattern(pattern string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(pattern, "+") {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if p.CountryCode != "" &&
		strings.HasPrefix(digits, p.CountryCode) &&
		len(digits) >= p.TargetLength+len(p.CountryCode) {
		digits = digits[len(p.CountryCode):]
	}

	return digits
}

// ValidateNumber checks a full national number against the plan rules.
func (p Plan) ValidateNumber(digits string) error {
	if len(digits) != p.TargetLength {
		return errors.Wrap(errors.ErrInvalidNumber,
			fmt.Sprintf("number must be %d digits, got %d", p.TargetLength, len(digits)))
	}
	if !allDigits(digits) {
		return errors.Wrap(errors.ErrInvalidNumber, "number must contain only digits")
	}

	// Component rules below are NANP-specific; other plans only get the
	// length and digit checks.
	if p.TargetLength != 10 {
		return nil
	}

	areaCode := digits[0:3]
	exchange := digits[3:6]

	if areaCode[0] < '2' {
		return errors.Wrap(errors.ErrInvalidNumber,
			fmt.Sprintf("area code must start with 2-9: %s", areaCode))
	}
	if areaCode[1:3] == "11" {
		return errors.Wrap(errors.ErrInvalidNumber,
			fmt.Sprintf("area code cannot be N11 service code: %s", areaCode))
	}
	if exchange[0] < '2' {
		return errors.Wrap(errors.ErrInvalidNumber,
			fmt.Sprintf("exchange code must start with 2-9: %s", exchange))
	}
	if exchange[1:3] == "11" {
		return errors.Wrap(errors.ErrInvalidNumber,
			fmt.Sprintf("exchange code cannot be N11 service code: %s", exchange))
	}

	return nil
}

// ValidatePattern checks a digit prefix. Only the components actually
// present are validated, so short prefixes produced by inference pass as
// long as what is there could still expand into valid numbers.
func (p Plan) ValidatePattern(digits string) error {
	if len(digits) == 0 {
		return errors.Wrap(errors.ErrInvalidPattern, "pattern has no digits")
	}
	if !allDigits(digits) {
		return errors.Wrap(errors.ErrInvalidPattern, "pattern must contain only digits")
	}
	if len(digits) > p.TargetLength {
		return errors.Wrap(errors.ErrInvalidPattern,
			fmt.Sprintf("pattern longer than %d digits: %s", p.TargetLength, digits))
	}

	if p.TargetLength != 10 {
		return nil
	}

	if digits[0] < '2' {
		return errors.Wrap(errors.ErrInvalidPattern,
			fmt.Sprintf("area code must start with 2-9: %s", digits))
	}
	if len(digits) >= 3 && digits[1:3] == "11" {
		return errors.Wrap(errors.ErrInvalidPattern,
			fmt.Sprintf("area code cannot be N11 service code: %s", digits[0:3]))
	}
	if len(digits) >= 4 && digits[3] < '2' {
		return errors.Wrap(errors.ErrInvalidPattern,
			fmt.Sprintf("exchange code must start with 2-9: %s", digits[3:]))
	}
	if len(digits) >= 6 && digits[4:6] == "11" {
		return errors.Wrap(errors.ErrInvalidPattern,
			fmt.Sprintf("exchange code cannot be N11 service code: %s", digits[3:6]))
	}

	return nil
}

// Format renders a full national number in the plan's display form,
// NXX-NXX-XXXX for NANP-style 10-digit plans.
func (p Plan) Format(digits string) string {
	if len(digits) == 10 {
		return fmt.Sprintf("%s-%s-%s", digits[0:3], digits[3:6], digits[6:10])
	}
	return digits
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
