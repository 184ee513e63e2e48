package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/expense-system/internal/model"
)

func TestStruct_CreateExpenseRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    model.CreateExpenseRequest
		fields []string
	}{
		{
			name: "valid",
			req: model.CreateExpenseRequest{
				UserID:     1,
				CategoryID: 2,
				Amount:     decimal.RequireFromString("10.00"),
			},
		},
		{
			name: "zero amount",
			req: model.CreateExpenseRequest{
				UserID:     1,
				CategoryID: 2,
				Amount:     decimal.Zero,
			},
			fields: []string{"amount"},
		},
		{
			name: "negative amount and missing category",
			req: model.CreateExpenseRequest{
				UserID: 1,
				Amount: decimal.RequireFromString("-1"),
			},
			fields: []string{"category_id", "amount"},
		},
		{
			name:   "no user",
			req:    model.CreateExpenseRequest{CategoryID: 1, Amount: decimal.NewFromInt(5)},
			fields: []string{"user_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}

			var verr *Error
			require.ErrorAs(t, err, &verr)

			got := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestStruct_ReviewRequest(t *testing.T) {
	err := Struct(model.ReviewRequest{ExpenseID: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviewer_id: must be greater than 0")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: " 2024-03-01T10:00:00Z ", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{in: "15/01/2024", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{in: "", wantErr: true},
		{in: "March 1st", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("£1,250.50")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(d))

	_, err = ParseAmount("ten")
	require.Error(t, err)
}
