package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_Formats(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"15/01/2024", "15-01-2024", "2024-01-15", "2024-01-15T09:30:00Z", " 15 January 2024 ", "15 Jan 2024"} {
		t.Run(in, func(t *testing.T) {
			got := Date(in)
			require.NotNil(t, got)
			assert.True(t, want.Equal(*got), "got %v", got)
		})
	}
}

func TestDate_Invalid(t *testing.T) {
	assert.Nil(t, Date("not-a-date"))
	assert.Nil(t, Date(""))
	assert.Nil(t, Date("31/02/2024"))
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  string
	}{
		{"£5,000.00", true, "5000"},
		{"5000", true, "5000"},
		{" £1,234,567.891 ", true, "1234567.89"},
		{"", false, ""},
		{"n/a", false, ""},
		{"-", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Money(tt.in)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got.Decimal), "got %s", got.Decimal)
			}
		})
	}

	assert.False(t, MoneyPtr(nil).Valid)
}

func TestJoinBreaches(t *testing.T) {
	got := JoinBreaches([]string{
		"Health and Safety at Work etc Act 1974 / 2(1)\n",
		"  ",
		"Work at Height Regulations 2005 / 4(1);",
		"Health and Safety at Work etc Act 1974 / 2(1)",
	})
	require.NotNil(t, got)
	assert.Equal(t, "Health and Safety at Work etc Act 1974 / 2(1); Work at Height Regulations 2005 / 4(1)", *got)

	assert.Nil(t, JoinBreaches(nil))
	assert.Nil(t, JoinBreaches([]string{" ", "\n"}))
}

func TestOffenderName(t *testing.T) {
	assert.Equal(t, "acme construction ltd", OffenderName("ACME Construction Limited"))
	assert.Equal(t, "acme construction ltd", OffenderName("Acme  Construction Ltd."))
	assert.Equal(t, "smith and sons plc", OffenderName("Smith & Sons Public Limited Company"))
}

func TestPostcode(t *testing.T) {
	assert.Equal(t, "SW1A 1AA", Postcode("10 Downing Street, London sw1a1aa"))
	assert.Equal(t, "M1 2AB", Postcode("Unit 4, Manchester, M1 2AB"))
	assert.Equal(t, "", Postcode("no postcode here"))
}
