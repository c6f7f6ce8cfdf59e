package core

// Currency describes one supported ISO currency. Instances are immutable and
// always come from the registry below; constructing one by hand bypasses the
// supported-set guarantee.
type Currency struct {
	Code               string // 3-letter ISO 4217 code
	Symbol             string
	Name               string
	MinorUnitsPerMajor int64 // 100 for most currencies, 1 for zero-decimal ones
}

var currencies = map[string]Currency{
	"PHP": {Code: "PHP", Symbol: "₱", Name: "Philippine Peso", MinorUnitsPerMajor: 100},
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar", MinorUnitsPerMajor: 100},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro", MinorUnitsPerMajor: 100},
	"GBP": {Code: "GBP", Symbol: "£", Name: "Pound Sterling", MinorUnitsPerMajor: 100},
	"JPY": {Code: "JPY", Symbol: "¥", Name: "Japanese Yen", MinorUnitsPerMajor: 1},
	"KRW": {Code: "KRW", Symbol: "₩", Name: "South Korean Won", MinorUnitsPerMajor: 1},
	"SGD": {Code: "SGD", Symbol: "S$", Name: "Singapore Dollar", MinorUnitsPerMajor: 100},
	"AUD": {Code: "AUD", Symbol: "A$", Name: "Australian Dollar", MinorUnitsPerMajor: 100},
	"CAD": {Code: "CAD", Symbol: "C$", Name: "Canadian Dollar", MinorUnitsPerMajor: 100},
	"CHF": {Code: "CHF", Symbol: "Fr", Name: "Swiss Franc", MinorUnitsPerMajor: 100},
	"INR": {Code: "INR", Symbol: "₹", Name: "Indian Rupee", MinorUnitsPerMajor: 100},
}

// LookupCurrency returns the supported currency for a code. The second return
// is false for unknown codes; callers dealing with persisted data must treat
// that as corruption, not pick a default.
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencies[code]
	return c, ok
}

// SupportedCurrencies returns the codes of every supported currency.
func SupportedCurrencies() []string {
	codes := make([]string, 0, len(currencies))
	for code := range currencies {
		codes = append(codes, code)
	}
	return codes
}
