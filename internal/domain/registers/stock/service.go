package stock

import (
	"context"
	"fmt"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/refdata"
	"costledger/pkg/logger"
)

// Service is the incremental mutation applier over the stock ledger.
// Transactions and scope locks are owned by the caller (the document transitioner).
type Service struct {
	repo    Repository
	applier *Applier
	now     func() time.Time
}

// NewService creates a new stock ledger service.
func NewService(repo Repository, items refdata.ItemCatalog, policy NegativeStockPolicy) *Service {
	return &Service{
		repo:    repo,
		applier: NewApplier(items, policy, entity.AnomalyFromTransition),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DocumentResult is what one document did to the ledger.
type DocumentResult struct {
	Applied   []AppliedMovement
	Anomalies []entity.StockAnomaly
	// Warnings holds one InsufficientStock error per tolerated anomaly.
	Warnings []*apperror.AppError
}

// LineCosts returns the booked unit cost per document line. For lines with
// several movements (transfers) the outbound movement's cost wins.
func (r *DocumentResult) LineCosts() map[id.ID]types.Money {
	out := make(map[id.ID]types.Money, len(r.Applied))
	for i := range r.Applied {
		m := r.Applied[i].Movement
		if _, seen := out[m.LineID]; seen && m.Direction != entity.DirectionOut {
			continue
		}
		out[m.LineID] = r.Applied[i].UnitCost
	}
	return out
}

// Value sums the booked value of movements in the given direction.
func (r *DocumentResult) Value(dir entity.Direction) types.Money {
	total := types.Zero()
	for i := range r.Applied {
		if r.Applied[i].Movement.Direction == dir {
			total = total.Add(r.Applied[i].Value)
		}
	}
	return total
}

// ApplyMovement applies a single movement and returns the row's new quantity and average.
func (s *Service) ApplyMovement(ctx context.Context, m entity.StockMovement) (types.Quantity, types.Money, error) {
	res, err := s.ApplyDocument(ctx, entity.Ref{Type: m.SourceType, ID: m.DocumentID}, []entity.StockMovement{m})
	if err != nil {
		return 0, types.Zero(), err
	}
	after := res.Applied[0].After
	return after.Quantity, after.AverageCost, nil
}

// ApplyDocument applies all movements of an approved document.
// Tolerated negative positions are recorded as anomalies and returned as warnings.
func (s *Service) ApplyDocument(ctx context.Context, ref entity.Ref, movements []entity.StockMovement) (*DocumentResult, error) {
	store := newLedgerStore(s.repo, s.now())
	applied, err := s.applier.Apply(ctx, store, movements)
	if err != nil {
		return nil, err
	}
	res, err := s.finish(ctx, ref, applied)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "applied stock movements",
		"document_type", ref.Type,
		"document_id", ref.ID,
		"count", len(applied),
		"anomalies", len(res.Anomalies),
	)
	return res, nil
}

// ReverseDocument undoes a document's movements at their stored unit costs.
func (s *Service) ReverseDocument(ctx context.Context, ref entity.Ref, movements []entity.StockMovement) (*DocumentResult, error) {
	store := newLedgerStore(s.repo, s.now())
	applied, err := s.applier.Reverse(ctx, store, movements)
	if err != nil {
		return nil, err
	}
	res, err := s.finish(ctx, ref, applied)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "reversed stock movements",
		"document_type", ref.Type,
		"document_id", ref.ID,
		"count", len(applied),
	)
	return res, nil
}

func (s *Service) finish(ctx context.Context, ref entity.Ref, applied []AppliedMovement) (*DocumentResult, error) {
	res := &DocumentResult{Applied: applied}
	for i := range applied {
		a := applied[i].Anomaly
		if a == nil {
			continue
		}
		m := applied[i].Movement
		res.Anomalies = append(res.Anomalies, *a)
		res.Warnings = append(res.Warnings,
			apperror.NewInsufficientStock(a.ItemID.String(), a.WarehouseID.String(), m.Quantity, applied[i].Before.Quantity).
				WithDetail("location_id", a.LocationID.String()).
				WithDetail("resulting_qty", a.ResultingQty.String()).
				WithDetail("backdated", a.Backdated))

		logger.Warn(ctx, "negative stock tolerated",
			"document_type", ref.Type,
			"document_id", ref.ID,
			"document_number", ref.Number,
			"item_id", a.ItemID,
			"warehouse_id", a.WarehouseID,
			"location_id", a.LocationID,
			"resulting_qty", a.ResultingQty.String(),
			"backdated", a.Backdated,
		)
	}

	if len(res.Anomalies) > 0 {
		if err := s.repo.RecordAnomalies(ctx, res.Anomalies); err != nil {
			return nil, fmt.Errorf("record anomalies: %w", err)
		}
	}
	return res, nil
}

// ListLedger returns ledger rows.
func (s *Service) ListLedger(ctx context.Context, filter LedgerFilter) ([]entity.StockLedgerEntry, error) {
	return s.repo.List(ctx, filter)
}

// ListAnomalies returns recorded negative stock anomalies.
func (s *Service) ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]entity.StockAnomaly, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.ListAnomalies(ctx, filter)
}

// Valuation sums the stock value of the rows matching filter.
func (s *Service) Valuation(ctx context.Context, filter LedgerFilter) (types.Quantity, types.Money, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return 0, types.Zero(), fmt.Errorf("list ledger: %w", err)
	}
	var qty types.Quantity
	value := types.Zero()
	for i := range rows {
		qty += rows[i].Quantity
		value = value.Add(rows[i].Value())
	}
	return qty, value, nil
}
