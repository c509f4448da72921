package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"costledger/internal/core/types"
)

func pos(qty, avg string) Position {
	return Position{Quantity: types.MustQuantity(qty), AverageCost: types.MustMoney(avg)}
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name    string
		start   Position
		qty     string
		cost    string
		wantQty string
		wantAvg string
	}{
		{name: "empty row takes incoming cost", start: pos("0", "0"), qty: "10", cost: "100", wantQty: "10", wantAvg: "100"},
		{name: "weighted average", start: pos("10", "100"), qty: "5", cost: "130", wantQty: "15", wantAvg: "110"},
		{name: "negative row blends carried value", start: pos("-3", "50"), qty: "5", cost: "80", wantQty: "2", wantAvg: "125"},
		{name: "still negative after receipt", start: pos("-10", "100"), qty: "5", cost: "80", wantQty: "-5", wantAvg: "120"},
		{name: "negative blend falls back to incoming cost", start: pos("-8", "100"), qty: "10", cost: "10", wantQty: "2", wantAvg: "10"},
		{name: "zero result keeps average", start: pos("-5", "50"), qty: "5", cost: "80", wantQty: "0", wantAvg: "50"},
		{name: "rounded to cost scale", start: pos("3", "1"), qty: "3", cost: "1.0000001", wantQty: "6", wantAvg: "1"},
		{name: "fractional quantities", start: pos("0.5", "10"), qty: "1.5", cost: "20", wantQty: "2", wantAvg: "17.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Receive(tt.start, types.MustQuantity(tt.qty), types.MustMoney(tt.cost))
			assert.Equal(t, types.MustQuantity(tt.wantQty), got.Quantity)
			assert.True(t, types.MustMoney(tt.wantAvg).Equal(got.AverageCost), "avg %s", got.AverageCost)
		})
	}
}

func TestIssue_KeepsAverage(t *testing.T) {
	got := Issue(pos("15", "110"), types.NewQuantity(8), types.MustMoney("110"))

	assert.Equal(t, types.NewQuantity(7), got.Quantity)
	assert.True(t, types.MustMoney("110").Equal(got.AverageCost))
	assert.True(t, types.MustMoney("770").Equal(types.RoundMoney(got.Value())))
}

func TestIssue_AllowsNegative(t *testing.T) {
	got := Issue(pos("2", "10"), types.NewQuantity(5), types.MustMoney("10"))

	assert.Equal(t, types.NewQuantity(-3), got.Quantity)
	assert.True(t, types.MustMoney("10").Equal(got.AverageCost))
}

func TestIssue_UncostedRowTakesBookedCost(t *testing.T) {
	got := Issue(pos("0", "0"), types.NewQuantity(5), types.MustMoney("100"))

	assert.Equal(t, types.NewQuantity(-5), got.Quantity)
	assert.True(t, types.MustMoney("100").Equal(got.AverageCost))
	assert.True(t, types.MustMoney("-500").Equal(types.RoundMoney(got.Value())))
}

func TestReceiveOntoNegativeStock_ConservesValue(t *testing.T) {
	shipped := Issue(pos("0", "0"), types.NewQuantity(5), types.MustMoney("100"))
	got := Receive(shipped, types.NewQuantity(10), types.MustMoney("130"))

	assert.Equal(t, types.NewQuantity(5), got.Quantity)
	assert.True(t, types.MustMoney("160").Equal(got.AverageCost), "avg %s", got.AverageCost)
	// 1300 received less 500 shipped.
	assert.True(t, types.MustMoney("800").Equal(types.RoundMoney(got.Value())))
}

func TestUnissue_EmptiedRowResetsCost(t *testing.T) {
	shipped := Issue(pos("0", "0"), types.NewQuantity(5), types.MustMoney("100"))
	back := Unissue(shipped, types.NewQuantity(5), types.MustMoney("100"))

	assert.True(t, back.Quantity.IsZero())
	assert.True(t, back.AverageCost.IsZero())
}

func TestUnreceive(t *testing.T) {
	tests := []struct {
		name    string
		start   Position
		qty     string
		cost    string
		wantQty string
		wantAvg string
	}{
		{name: "restores previous average", start: pos("15", "110"), qty: "5", cost: "130", wantQty: "10", wantAvg: "100"},
		{name: "empties row", start: pos("10", "100"), qty: "10", cost: "100", wantQty: "0", wantAvg: "0"},
		{name: "residual value clamps at zero", start: pos("10", "10"), qty: "5", cost: "50", wantQty: "5", wantAvg: "0"},
		{name: "emptied row with residual keeps average", start: pos("10", "100"), qty: "10", cost: "90", wantQty: "0", wantAvg: "100"},
		{name: "negative result keeps average", start: pos("2", "100"), qty: "5", cost: "100", wantQty: "-3", wantAvg: "100"},
		{name: "undoes receipt onto negative row", start: pos("2", "125"), qty: "5", cost: "80", wantQty: "-3", wantAvg: "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unreceive(tt.start, types.MustQuantity(tt.qty), types.MustMoney(tt.cost))
			assert.Equal(t, types.MustQuantity(tt.wantQty), got.Quantity)
			assert.True(t, types.MustMoney(tt.wantAvg).Equal(got.AverageCost), "avg %s", got.AverageCost)
		})
	}
}

func TestReceiveThenUnreceive_Symmetric(t *testing.T) {
	start := pos("10", "100")
	qty := types.NewQuantity(5)
	cost := types.MustMoney("130")

	back := Unreceive(Receive(start, qty, cost), qty, cost)

	assert.True(t, start.Equal(back), "got %s @ %s", back.Quantity, back.AverageCost)
}

func TestIssueThenUnissue_Symmetric(t *testing.T) {
	start := pos("15", "110")
	qty := types.NewQuantity(8)

	back := Unissue(Issue(start, qty, start.AverageCost), qty, start.AverageCost)

	assert.True(t, start.Equal(back), "got %s @ %s", back.Quantity, back.AverageCost)
}
