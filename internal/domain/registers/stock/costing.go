package stock

import (
	"time"

	"costledger/internal/core/types"
)

// Position is the state of one ledger row as seen by the costing transitions.
type Position struct {
	Quantity    types.Quantity
	AverageCost types.Money
	LastDocDate time.Time
}

// Value returns quantity multiplied by average cost, unrounded.
func (p Position) Value() types.Money {
	return p.Quantity.Decimal().Mul(p.AverageCost)
}

// Equal compares quantity and average cost.
func (p Position) Equal(o Position) bool {
	return p.Quantity == o.Quantity && p.AverageCost.Equal(o.AverageCost)
}

// Receive applies an inbound movement with the moving-average formula
//
//	new_avg = (old_qty*old_avg + in_qty*in_cost) / (old_qty + in_qty)
//
// The formula also runs on a negative row, so the value carried by the
// shortage is settled by the receipt. A zero resulting quantity keeps the old
// average. When the blended average would be negative the incoming cost is
// used instead.
func Receive(p Position, qty types.Quantity, unitCost types.Money) Position {
	newQty := p.Quantity + qty
	out := Position{Quantity: newQty, AverageCost: p.AverageCost, LastDocDate: p.LastDocDate}

	if newQty.IsZero() {
		return out
	}

	total := p.Value().Add(qty.Decimal().Mul(unitCost))
	avg := total.Div(newQty.Decimal())
	if avg.IsNegative() {
		avg = unitCost
	}
	out.AverageCost = types.RoundCost(avg)
	return out
}

// Issue applies an outbound movement at unitCost, the cost the movement was
// booked with. The average is unchanged unless the row carried no cost, in
// which case unitCost becomes the average so the row value matches what left.
func Issue(p Position, qty types.Quantity, unitCost types.Money) Position {
	out := Position{Quantity: p.Quantity - qty, AverageCost: p.AverageCost, LastDocDate: p.LastDocDate}
	if !p.AverageCost.IsPositive() && !p.Quantity.IsPositive() {
		out.AverageCost = types.RoundCost(unitCost)
	}
	return out
}

// Unreceive reverses an inbound movement by removing qty at its historical cost.
// The residual value is re-spread over the remaining quantity and the average
// never goes below zero. An emptied row with no residual value resets to zero
// cost.
func Unreceive(p Position, qty types.Quantity, unitCost types.Money) Position {
	newQty := p.Quantity - qty
	residual := p.Value().Sub(qty.Decimal().Mul(unitCost))
	out := Position{Quantity: newQty, AverageCost: p.AverageCost, LastDocDate: p.LastDocDate}

	switch {
	case newQty.IsZero():
		if types.RoundMoney(residual).IsZero() {
			out.AverageCost = types.Zero()
		}
	default:
		avg := residual.Div(newQty.Decimal())
		if avg.IsNegative() {
			if newQty.IsNegative() {
				return out
			}
			avg = types.Zero()
		}
		out.AverageCost = types.RoundCost(avg)
	}
	return out
}

// Unissue reverses an outbound movement: the goods come back at the cost they
// left with. A row emptied with no residual value resets to zero cost.
func Unissue(p Position, qty types.Quantity, unitCost types.Money) Position {
	out := Receive(p, qty, unitCost)
	if out.Quantity.IsZero() && types.RoundMoney(p.Value().Add(qty.Decimal().Mul(unitCost))).IsZero() {
		out.AverageCost = types.Zero()
	}
	return out
}
