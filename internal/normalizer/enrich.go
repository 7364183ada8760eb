package normalizer

import (
	"regexp"
	"strings"
	"unicode"
)

// UnknownLabel is used when a merchant or payment method cannot be determined
const UnknownLabel = "Unknown"

var (
	merchantPrefix = regexp.MustCompile(`^(purchase|payment|transfer|deposit)\s+`)
	merchantSuffix = regexp.MustCompile(`\s+(inc|llc|corp|ltd)\.?$`)
)

// ExtractMerchant strips transactional prefixes and corporate suffixes from a
// description and returns its first word, title-cased
func ExtractMerchant(description string) string {
	cleaned := strings.ToLower(strings.TrimSpace(description))
	cleaned = merchantPrefix.ReplaceAllString(cleaned, "")
	cleaned = merchantSuffix.ReplaceAllString(cleaned, "")

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return UnknownLabel
	}
	return titleCase(fields[0])
}

// titleCase upper-cases each letter that follows a non-letter and lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

type paymentKeyword struct {
	keywords []string
	label    string
}

// checked in priority order
var paymentKeywords = []paymentKeyword{
	{[]string{"debit", "atm"}, "Debit Card"},
	{[]string{"credit"}, "Credit Card"},
	{[]string{"check"}, "Check"},
	{[]string{"transfer"}, "Bank Transfer"},
	{[]string{"cash"}, "Cash"},
}

// DetectPaymentMethod infers the payment method from keywords in the description
func DetectPaymentMethod(description string) string {
	lowered := strings.ToLower(description)
	for _, pk := range paymentKeywords {
		for _, kw := range pk.keywords {
			if strings.Contains(lowered, kw) {
				return pk.label
			}
		}
	}
	return UnknownLabel
}

func splitTags(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' || r == '|' })
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
