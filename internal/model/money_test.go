package model

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    int64
		wantErr bool
	}{
		{name: "two decimals", amount: "25.50", want: 2550},
		{name: "whole", amount: "10", want: 1000},
		{name: "rounds half up", amount: "10.005", want: 1001},
		{name: "rounds down", amount: "0.014", want: 1},
		{name: "sub penny", amount: "0.004", want: 0},
		{name: "zero", amount: "0", want: 0},
		{name: "largest", amount: "92233720368547758.07", want: math.MaxInt64},
		{name: "one penny past int64", amount: "92233720368547758.08", wantErr: true},
		{name: "1e17 pounds", amount: "1e17", wantErr: true},
		{name: "1e18 pounds", amount: "1e18", wantErr: true},
		{name: "large negative", amount: "-1e18", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinor(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAmountOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "£25.50", FormatAmount(2550, "GBP"))
	assert.Equal(t, "£0.05", FormatAmount(5, "GBP"))
	assert.Equal(t, "£120.00", FormatAmount(12000, "gbp"))
	assert.Equal(t, "£1,234,567.89", FormatAmount(123456789, "GBP"))
	assert.Equal(t, "-£4.20", FormatAmount(-420, "GBP"))
}

func TestFormatAmount_BeyondFloatPrecision(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{minor: 1<<53 + 1, want: "£90,071,992,547,409.93"},
		{minor: math.MaxInt64, want: "£92,233,720,368,547,758.07"},
		{minor: -(1<<53 + 1), want: "-£90,071,992,547,409.93"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.minor, "GBP"))
		})
	}
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0.05", groupThousands("0.05"))
	assert.Equal(t, "999", groupThousands("999"))
	assert.Equal(t, "1,000.00", groupThousands("1000.00"))
	assert.Equal(t, "123,456,789", groupThousands("123456789"))
}

func TestExpenseAmount(t *testing.T) {
	e := Expense{AmountMinor: 6900, Currency: DefaultCurrency}

	assert.True(t, decimal.RequireFromString("69").Equal(e.Amount()))
	assert.Equal(t, "£69.00", e.FormattedAmount())
}

func TestCurrencyScale(t *testing.T) {
	assert.Equal(t, 2, currencyScale("GBP"))
	assert.Equal(t, 0, currencyScale("JPY"))
	assert.Equal(t, 2, currencyScale("POUNDS"))
	assert.Equal(t, "JPY 1,500", FormatAmount(1500, "JPY"))
}
