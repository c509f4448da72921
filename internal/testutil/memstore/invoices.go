package memstore

import (
	"context"
	"slices"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/allocation"
)

// InvoiceRepo implements allocation.InvoiceRepository.
type InvoiceRepo struct{ s *Store }

// AllocationRepo implements allocation.Repository.
type AllocationRepo struct{ s *Store }

// Invoices returns the invoice balance repository.
func (s *Store) Invoices() *InvoiceRepo { return &InvoiceRepo{s: s} }

// Allocations returns the allocation repository.
func (s *Store) Allocations() *AllocationRepo { return &AllocationRepo{s: s} }

var (
	_ allocation.InvoiceRepository = (*InvoiceRepo)(nil)
	_ allocation.Repository        = (*AllocationRepo)(nil)
)

// Get implements allocation.InvoiceRepository.
func (r *InvoiceRepo) Get(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error) {
	var out *entity.Invoice
	err := r.s.do(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		out = &inv
		return nil
	})
	return out, err
}

// GetForUpdate implements allocation.InvoiceRepository.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*entity.Invoice, error) {
	return r.Get(ctx, invoiceID)
}

// Upsert implements allocation.InvoiceRepository.
func (r *InvoiceRepo) Upsert(ctx context.Context, inv *entity.Invoice) error {
	return r.s.do(ctx, func(st *state) error {
		st.invoices[inv.ID] = *inv
		return nil
	})
}

// UpdateBalance implements allocation.InvoiceRepository.
func (r *InvoiceRepo) UpdateBalance(ctx context.Context, invoiceID id.ID, paid types.Money, status entity.InvoiceStatus) error {
	return r.s.do(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		inv.PaidAmount = paid
		inv.Status = status
		inv.UpdatedAt = r.s.now()
		st.invoices[invoiceID] = inv
		return nil
	})
}

// Insert implements allocation.Repository.
func (r *AllocationRepo) Insert(ctx context.Context, a entity.Allocation) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.allocations[a.ID]; ok {
			return apperror.NewDuplicate("allocation", "id", a.ID.String())
		}
		st.allocations[a.ID] = a
		return nil
	})
}

// Delete implements allocation.Repository.
func (r *AllocationRepo) Delete(ctx context.Context, allocationID id.ID) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.allocations[allocationID]; !ok {
			return apperror.NewNotFound("allocation", allocationID)
		}
		delete(st.allocations, allocationID)
		return nil
	})
}

// ListByVoucher implements allocation.Repository.
func (r *AllocationRepo) ListByVoucher(ctx context.Context, jvID id.ID) ([]entity.Allocation, error) {
	return r.list(ctx, func(a entity.Allocation) bool { return a.JVID == jvID })
}

// ListByInvoice implements allocation.Repository.
func (r *AllocationRepo) ListByInvoice(ctx context.Context, invoiceID id.ID) ([]entity.Allocation, error) {
	return r.list(ctx, func(a entity.Allocation) bool { return a.InvoiceID == invoiceID })
}

func (r *AllocationRepo) list(ctx context.Context, keep func(entity.Allocation) bool) ([]entity.Allocation, error) {
	var out []entity.Allocation
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.allocations {
			if keep(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b entity.Allocation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ID, b.ID)
	})
	return out, err
}
