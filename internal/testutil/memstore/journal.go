package memstore

import (
	"context"
	"slices"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/posting"
)

// JournalRepo implements posting.Repository.
type JournalRepo struct{ s *Store }

// Journals returns the journal voucher repository.
func (s *Store) Journals() *JournalRepo { return &JournalRepo{s: s} }

var _ posting.Repository = (*JournalRepo)(nil)

// GetBySource implements posting.Repository.
func (r *JournalRepo) GetBySource(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (*entity.JournalVoucher, error) {
	var out *entity.JournalVoucher
	err := r.s.do(ctx, func(st *state) error {
		for _, jv := range st.vouchers {
			if jv.SourceType == sourceType && jv.RefID == refID {
				out = &jv
				return nil
			}
		}
		return apperror.NewNotFound("journal_voucher", refID)
	})
	return out, err
}

// GetByID implements posting.Repository.
func (r *JournalRepo) GetByID(ctx context.Context, jvID id.ID) (*entity.JournalVoucher, error) {
	var out *entity.JournalVoucher
	err := r.s.do(ctx, func(st *state) error {
		jv, ok := st.vouchers[jvID]
		if !ok {
			return apperror.NewNotFound("journal_voucher", jvID)
		}
		out = &jv
		return nil
	})
	return out, err
}

// Create implements posting.Repository.
func (r *JournalRepo) Create(ctx context.Context, jv *entity.JournalVoucher) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.vouchers {
			if other.SourceType == jv.SourceType && other.RefID == jv.RefID {
				return apperror.NewDuplicate("journal_voucher", "ref_id", jv.RefID.String())
			}
		}
		header := *jv
		header.Details = nil
		st.vouchers[jv.ID] = header
		return nil
	})
}

// UpdateHeader implements posting.Repository.
func (r *JournalRepo) UpdateHeader(ctx context.Context, jv *entity.JournalVoucher) error {
	return r.s.do(ctx, func(st *state) error {
		stored, ok := st.vouchers[jv.ID]
		if !ok {
			return apperror.NewNotFound("journal_voucher", jv.ID)
		}
		stored.DocDate = jv.DocDate
		stored.Description = jv.Description
		stored.Status = jv.Status
		stored.UpdatedAt = jv.UpdatedAt
		st.vouchers[jv.ID] = stored
		return nil
	})
}

// DeleteDetails implements posting.Repository.
func (r *JournalRepo) DeleteDetails(ctx context.Context, jvID id.ID) error {
	return r.s.do(ctx, func(st *state) error {
		for _, a := range st.allocations {
			if a.JVID == jvID {
				return apperror.NewConflict("journal detail is referenced by an allocation")
			}
		}
		delete(st.details, jvID)
		return nil
	})
}

// InsertDetails implements posting.Repository.
func (r *JournalRepo) InsertDetails(ctx context.Context, details []entity.JournalVoucherDetail) error {
	return r.s.do(ctx, func(st *state) error {
		for _, d := range details {
			if _, ok := st.vouchers[d.JVID]; !ok {
				return apperror.NewNotFound("journal_voucher", d.JVID)
			}
			st.details[d.JVID] = append(st.details[d.JVID], d)
		}
		return nil
	})
}

// Delete implements posting.Repository.
func (r *JournalRepo) Delete(ctx context.Context, jvID id.ID) error {
	return r.s.do(ctx, func(st *state) error {
		if len(st.details[jvID]) > 0 {
			return apperror.NewConflict("journal voucher still has details")
		}
		delete(st.vouchers, jvID)
		delete(st.details, jvID)
		return nil
	})
}

// GetDetails implements posting.Repository.
func (r *JournalRepo) GetDetails(ctx context.Context, jvID id.ID) ([]entity.JournalVoucherDetail, error) {
	var out []entity.JournalVoucherDetail
	err := r.s.do(ctx, func(st *state) error {
		out = slices.Clone(st.details[jvID])
		return nil
	})
	slices.SortFunc(out, func(a, b entity.JournalVoucherDetail) int { return a.LineNo - b.LineNo })
	return out, err
}

// Vouchers returns every voucher header.
func (s *Store) Vouchers() []entity.JournalVoucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.JournalVoucher, 0, len(s.st.vouchers))
	for _, jv := range s.st.vouchers {
		out = append(out, jv)
	}
	slices.SortFunc(out, func(a, b entity.JournalVoucher) int { return id.Compare(a.ID, b.ID) })
	return out
}
