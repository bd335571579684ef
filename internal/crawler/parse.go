package crawler

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	numberPattern  = regexp.MustCompile(`\d[\d\s .,\x{00a0}]*`)
	odometerThous  = regexp.MustCompile(`(\d+)\s*тис`)
	odometerPlain  = regexp.MustCompile(`(\d[\d\s\x{00a0}]*)\s*км`)
	phonePattern   = regexp.MustCompile(`\(\d{3}\)\s*\d{3}\s*\d{2}\s*\d{2}`)
	phoneNonNumber = regexp.MustCompile(`[^\d+]`)
	thousandsComma = regexp.MustCompile(`,(\d{3})(?:\D|$)`)
)

// CleanText collapses whitespace runs and trims the result.
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// ParsePrice extracts the first number from locale-formatted price text
// ("25 500 $", "7,500", "25500"). Returns nil when nothing parseable is
// present; never returns a negative value.
func ParsePrice(text string) *float64 {
	raw := numberPattern.FindString(text)
	if raw == "" {
		return nil
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, raw)
	// A comma followed by a group of three digits is a thousands separator,
	// otherwise it is a decimal mark.
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		if thousandsComma.MatchString(cleaned) {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	value, err := strconv.ParseFloat(strings.TrimRight(cleaned, "."), 64)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

// ParseOdometer reads mileage text as kilometers. The site abbreviates
// thousands ("95 тис. км" means 95000 km); plain "142 000 км" is also
// accepted. Returns nil on unparseable input.
func ParseOdometer(text string) *int64 {
	if m := odometerThous.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n < 0 {
			return nil
		}
		km := n * 1000
		return &km
	}
	if m := odometerPlain.FindStringSubmatch(text); m != nil {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m[1])
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || n < 0 {
			return nil
		}
		return &n
	}
	return nil
}

// FindPhone scans rendered HTML for a disclosed phone number in the site's
// "(XXX) XXX XX XX" format and normalizes it. Returns nil when no number
// is present.
func FindPhone(html string) *string {
	match := phonePattern.FindString(html)
	if match == "" {
		return nil
	}
	normalized := NormalizePhone(match)
	return &normalized
}

// NormalizePhone strips formatting and prefixes the national code when the
// number carries none.
func NormalizePhone(raw string) string {
	digits := phoneNonNumber.ReplaceAllString(raw, "")
	if !strings.HasPrefix(digits, "+") {
		digits = "+38" + digits
	}
	return digits
}
