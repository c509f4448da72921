package stock

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// NegativeStockEvent describes a movement that drove a ledger row below zero.
type NegativeStockEvent struct {
	DocType      entity.DocumentType
	ItemID       id.ID
	WarehouseID  id.ID
	LocationID   id.ID
	ResultingQty types.Quantity
	// Backdated is set when the document is older than the latest one already on the row.
	Backdated bool
	// Reversal is set when the event comes from unapproving a document.
	Reversal bool
}

// NegativeStockPolicy decides whether a negative resulting quantity is
// tolerated (recorded as an anomaly) or fails the transition.
type NegativeStockPolicy interface {
	Tolerate(ctx context.Context, event NegativeStockEvent) (bool, error)
}

// AlwaysTolerate accepts every negative position.
type AlwaysTolerate struct{}

// Tolerate implements NegativeStockPolicy.
func (AlwaysTolerate) Tolerate(context.Context, NegativeStockEvent) (bool, error) {
	return true, nil
}

// CELPolicy evaluates a boolean CEL expression per event. The expression sees
// doc_type, item_id, warehouse_id, location_id (strings), resulting_qty (double),
// backdated and reversal (bools). A true result tolerates the event.
//
//	backdated || doc_type == "InventoryAdjustment"
type CELPolicy struct {
	expr string
	prg  cel.Program
}

// NewCELPolicy compiles the expression. It fails with a configuration error
// when the expression does not compile to a bool.
func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("item_id", cel.StringType),
		cel.Variable("warehouse_id", cel.StringType),
		cel.Variable("location_id", cel.StringType),
		cel.Variable("resulting_qty", cel.DoubleType),
		cel.Variable("backdated", cel.BoolType),
		cel.Variable("reversal", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewConfiguration("invalid negative stock rule").
			WithDetail("expression", expr).
			WithCause(iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewConfiguration("negative stock rule must evaluate to bool").
			WithDetail("expression", expr).
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}
	return &CELPolicy{expr: expr, prg: prg}, nil
}

// Tolerate implements NegativeStockPolicy.
func (p *CELPolicy) Tolerate(ctx context.Context, e NegativeStockEvent) (bool, error) {
	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"doc_type":      string(e.DocType),
		"item_id":       e.ItemID.String(),
		"warehouse_id":  e.WarehouseID.String(),
		"location_id":   e.LocationID.String(),
		"resulting_qty": e.ResultingQty.Decimal().InexactFloat64(),
		"backdated":     e.Backdated,
		"reversal":      e.Reversal,
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, apperror.NewConfiguration("negative stock rule returned a non-bool value").
			WithDetail("expression", p.expr)
	}
	return ok, nil
}

// PolicyFromRule returns AlwaysTolerate for an empty rule, otherwise a CELPolicy.
func PolicyFromRule(rule string) (NegativeStockPolicy, error) {
	if rule == "" || rule == "true" {
		return AlwaysTolerate{}, nil
	}
	return NewCELPolicy(rule)
}
