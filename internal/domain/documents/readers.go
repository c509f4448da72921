package documents

import (
	"context"
	"fmt"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/refdata"
)

// Readers normalize stock documents into StockMovements. Every line location
// is resolved once, before the ledger is touched.
type Readers struct {
	resolver *refdata.LocationResolver
}

// NewReaders creates the transaction source readers.
func NewReaders(resolver *refdata.LocationResolver) *Readers {
	return &Readers{resolver: resolver}
}

// Movements returns a stock document's movements in line order.
// Non-stock documents have none.
func (r *Readers) Movements(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	switch doc.Type {
	case entity.DocReceiving:
		return r.receiving(ctx, doc)
	case entity.DocShipment:
		return r.shipment(ctx, doc)
	case entity.DocInventoryAdjustment:
		return r.adjustment(ctx, doc)
	case entity.DocItemConversion:
		return r.conversion(ctx, doc)
	case entity.DocLocationTransfer:
		return r.transfer(ctx, doc)
	}
	return nil, nil
}

func (r *Readers) receiving(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, 0, len(doc.Lines))
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if line.UnitCost.IsNegative() {
			return nil, lineError(line, "unit cost must not be negative")
		}
		m, err := r.movement(ctx, doc, line, entity.DirectionIn, line.LocationID)
		if err != nil {
			return nil, err
		}
		m.UnitCost = line.UnitCost
		m.CostMode = entity.CostExplicit
		out = append(out, m)
	}
	return out, nil
}

func (r *Readers) shipment(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, 0, len(doc.Lines))
	for i := range doc.Lines {
		m, err := r.movement(ctx, doc, &doc.Lines[i], entity.DirectionOut, doc.Lines[i].LocationID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// adjustment: positive lines come in at their unit cost, or at the current
// average when none is given; negative lines write stock off.
func (r *Readers) adjustment(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, 0, len(doc.Lines))
	for i := range doc.Lines {
		line := &doc.Lines[i]
		dir := entity.DirectionIn
		if line.Quantity.IsNegative() {
			dir = entity.DirectionOut
		}
		m, err := r.movement(ctx, doc, line, dir, line.LocationID)
		if err != nil {
			return nil, err
		}
		if dir == entity.DirectionIn {
			m.CostMode = entity.CostCurrentAverage
			if line.UnitCost.IsPositive() {
				m.UnitCost = line.UnitCost
				m.CostMode = entity.CostExplicit
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// conversion: inputs are consumed, outputs share the consumed value by quantity.
func (r *Readers) conversion(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, 0, len(doc.Lines))
	var inputs, outputs int
	for i := range doc.Lines {
		line := &doc.Lines[i]
		var dir entity.Direction
		switch line.Role {
		case entity.LineRoleInput:
			dir = entity.DirectionOut
			inputs++
		case entity.LineRoleOutput:
			dir = entity.DirectionIn
			outputs++
		default:
			return nil, lineError(line, "conversion line must be an input or an output")
		}

		m, err := r.movement(ctx, doc, line, dir, line.LocationID)
		if err != nil {
			return nil, err
		}
		if dir == entity.DirectionIn {
			m.CostMode = entity.CostFromOutflows
		}
		out = append(out, m)
	}
	if inputs == 0 || outputs == 0 {
		return nil, apperror.NewValidation("conversion needs at least one input and one output").
			WithDetail("documentId", doc.ID.String())
	}
	return out, nil
}

// transfer: each line is an outbound/inbound pair moving value at the source average.
func (r *Readers) transfer(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, 0, 2*len(doc.Lines))
	for i := range doc.Lines {
		line := &doc.Lines[i]
		src, err := r.movement(ctx, doc, line, entity.DirectionOut, line.LocationID)
		if err != nil {
			return nil, err
		}

		dstLoc, err := r.resolver.Resolve(ctx, line.DestLocationID, doc.DestLocationID, nil)
		if err != nil {
			return nil, withLine(err, line)
		}
		if dstLoc == src.Location {
			return nil, lineError(line, "transfer source and destination are the same location")
		}

		dst := src
		dst.Direction = entity.DirectionIn
		dst.Location = dstLoc
		dst.CostMode = entity.CostFromOutflows

		src.Group = i + 1
		dst.Group = i + 1
		out = append(out, src, dst)
	}
	return out, nil
}

// movement builds the common part of a line movement. Quantity is made positive.
func (r *Readers) movement(ctx context.Context, doc *entity.Document, line *entity.DocumentLine, dir entity.Direction, lineLocation *id.ID) (entity.StockMovement, error) {
	if line.ItemID == nil || id.IsNil(*line.ItemID) {
		return entity.StockMovement{}, lineError(line, "item is required")
	}
	if line.Quantity.IsZero() {
		return entity.StockMovement{}, lineError(line, "quantity must not be zero")
	}

	loc, err := r.resolver.Resolve(ctx, lineLocation, doc.LocationID, doc.WarehouseID)
	if err != nil {
		return entity.StockMovement{}, withLine(err, line)
	}

	return entity.StockMovement{
		SourceType: doc.Type,
		DocumentID: doc.ID,
		DocSeq:     doc.Seq,
		DocDate:    doc.Date,
		LineID:     line.ID,
		LineNo:     line.LineNo,
		Direction:  dir,
		ItemID:     *line.ItemID,
		Location:   loc,
		Quantity:   line.Quantity.Abs(),
		UnitCost:   types.Zero(),
		CostMode:   entity.CostExplicit,
	}, nil
}

// WithAppliedCosts replaces each movement's cost with the unit cost stored on
// its line at approval. Used by reversal and re-posting.
func WithAppliedCosts(doc *entity.Document, movements []entity.StockMovement) ([]entity.StockMovement, error) {
	out := make([]entity.StockMovement, len(movements))
	for i, m := range movements {
		line, ok := doc.Line(m.LineID)
		if !ok || line.AppliedCost == nil {
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "document line has no stored cost").
				WithDetail("documentId", doc.ID.String()).
				WithDetail("lineNo", m.LineNo)
		}
		m.UnitCost = *line.AppliedCost
		m.CostMode = entity.CostExplicit
		out[i] = m
	}
	return out, nil
}

func lineError(line *entity.DocumentLine, msg string) error {
	return apperror.NewValidation(msg).WithDetail("lineNo", line.LineNo)
}

func withLine(err error, line *entity.DocumentLine) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("lineNo", line.LineNo)
	}
	return fmt.Errorf("line %d: %w", line.LineNo, err)
}
