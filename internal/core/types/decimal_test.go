package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Quantity
		wantErr bool
	}{
		{name: "number", input: `12.5`, want: 125_000},
		{name: "string", input: `"12.5"`, want: 125_000},
		{name: "negative", input: `"-3.25"`, want: -32_500},
		{name: "explicit plus", input: `"+2"`, want: 20_000},
		{name: "leading dot", input: `".5"`, want: 5_000},
		{name: "extra digits truncated", input: `"1.23456"`, want: 12_345},
		{name: "exponent", input: `"1.5e2"`, want: 1_500_000},
		{name: "largest", input: `"922337203685477.5807"`, want: math.MaxInt64},
		{name: "null", input: `null`, want: 0},

		{name: "integer part overflows", input: `"1000000000000000"`, wantErr: true},
		{name: "just above largest", input: `"922337203685477.5808"`, wantErr: true},
		{name: "negative overflow", input: `"-1000000000000000"`, wantErr: true},
		{name: "exponent overflow", input: `"1e20"`, wantErr: true},
		{name: "signed fraction", input: `"1.-5"`, wantErr: true},
		{name: "plus in fraction", input: `"1.+5"`, wantErr: true},
		{name: "double sign", input: `"--5"`, wantErr: true},
		{name: "two dots", input: `"1.2.3"`, wantErr: true},
		{name: "letters", input: `"12abc"`, wantErr: true},
		{name: "sign only", input: `"-"`, wantErr: true},
		{name: "dot only", input: `"."`, wantErr: true},
		{name: "empty", input: `""`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quantity
			err := json.Unmarshal([]byte(tt.input), &q)
			if tt.wantErr {
				require.Error(t, err, "parsed as %s", q)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestQuantity_OverflowIsRangeError(t *testing.T) {
	var q Quantity
	err := json.Unmarshal([]byte(`"1000000000000000"`), &q)
	assert.ErrorIs(t, err, ErrQuantityRange)
	assert.Zero(t, q)
}

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "12.5000", Quantity(125_000).String())
	assert.Equal(t, "-0.0001", Quantity(-1).String())
	assert.Equal(t, MustQuantity("-7.125"), MustQuantity(Quantity(-71_250).String()))
}

func TestNewQuantityFromDecimal(t *testing.T) {
	q, err := NewQuantityFromDecimal(decimal.RequireFromString("3.14159"))
	require.NoError(t, err)
	assert.Equal(t, Quantity(31_415), q)

	_, err = NewQuantityFromDecimal(decimal.RequireFromString("-1e16"))
	assert.ErrorIs(t, err, ErrQuantityRange)
}

func TestAddSubQuantity(t *testing.T) {
	sum, err := AddQuantity(NewQuantity(2), NewQuantity(3))
	require.NoError(t, err)
	assert.Equal(t, NewQuantity(5), sum)

	diff, err := SubQuantity(NewQuantity(2), NewQuantity(3))
	require.NoError(t, err)
	assert.Equal(t, NewQuantity(-1), diff)

	_, err = AddQuantity(Quantity(math.MaxInt64), 1)
	assert.ErrorIs(t, err, ErrQuantityRange)

	_, err = SubQuantity(Quantity(math.MinInt64), 1)
	assert.ErrorIs(t, err, ErrQuantityRange)

	_, err = SubQuantity(0, Quantity(math.MinInt64))
	assert.ErrorIs(t, err, ErrQuantityRange)
}
