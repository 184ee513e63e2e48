package model

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	minorPerMajor = decimal.NewFromInt(100)
	maxMinor      = decimal.NewFromInt(math.MaxInt64)
	minMinor      = decimal.NewFromInt(math.MinInt64)

	// float64 точно представляет целые числа до 2^53.
	maxExactMinor = decimal.NewFromInt(1 << 53)
)

// ErrAmountOutOfRange возвращается, если сумма в минимальных единицах не помещается в int64.
var ErrAmountOutOfRange = errors.New("amount is out of range")

var currencySymbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
}

var displayPrinter = message.NewPrinter(language.BritishEnglish)

// ToMinor переводит сумму в основных единицах в минимальные единицы: round(amount*100).
func ToMinor(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(minorPerMajor).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrAmountOutOfRange
	}
	return minor.IntPart(), nil
}

// MajorAmount возвращает сумму в основных единицах валюты.
func MajorAmount(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -int32(currencyScale(code)))
}

// FormatAmount форматирует сумму в минимальных единицах для отображения, например «£25.50».
func FormatAmount(minor int64, code string) string {
	scale := currencyScale(code)
	major := decimal.New(minor, -int32(scale))

	prefix, ok := currencySymbols[strings.ToUpper(code)]
	if !ok {
		prefix = strings.ToUpper(code) + " "
	}

	sign := ""
	if major.IsNegative() {
		sign = "-"
		major = major.Neg()
	}

	if major.Shift(int32(scale)).LessThanOrEqual(maxExactMinor) {
		return sign + prefix + displayPrinter.Sprint(number.Decimal(major.InexactFloat64(), number.Scale(scale)))
	}
	return sign + prefix + groupThousands(major.StringFixed(int32(scale)))
}

// groupThousands расставляет разделители разрядов в целой части десятичной записи.
func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func currencyScale(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Amount возвращает сумму заявки в основных единицах валюты.
func (e Expense) Amount() decimal.Decimal {
	return MajorAmount(e.AmountMinor, e.Currency)
}

// FormattedAmount возвращает сумму заявки в виде строки для отображения.
func (e Expense) FormattedAmount() string {
	return FormatAmount(e.AmountMinor, e.Currency)
}
