package shared

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyPlaces is the number of fractional digits kept on monetary amounts.
const MoneyPlaces = 2

// RoundMoney rounds to MoneyPlaces, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

var symbols = message.NewPrinter(language.English)

// FormatMoney renders an amount with its currency symbol for human-readable
// text, e.g. "$1,234.50". Digits come from the decimal itself.
func FormatMoney(code string, amount decimal.Decimal) string {
	digits := groupThousands(amount.StringFixed(MoneyPlaces))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return digits + " " + code
	}
	sym := symbols.Sprint(currency.Symbol(unit))
	if strings.HasPrefix(digits, "-") {
		return "-" + sym + digits[1:]
	}
	return sym + digits
}

// groupThousands inserts commas into the integer part of a plain decimal string.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
