// Package journal_repo stores journal vouchers and their detail lines.
package journal_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/posting"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	vouchersTable = "journal_vouchers"
	detailsTable  = "journal_voucher_details"
)

var voucherColumns = []string{
	"id", "doc_number", "doc_date", "status", "source_type", "ref_id",
	"description", "created_at", "updated_at",
}

var detailColumns = []string{
	"id", "jv_id", "line_no", "coa_id", "debit", "credit",
	"ref_id", "ref_type", "description",
}

// JournalRepo implements posting.Repository.
type JournalRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

var _ posting.Repository = (*JournalRepo)(nil)

// NewJournalRepo creates the voucher repository.
func NewJournalRepo(txManager *postgres.TxManager) *JournalRepo {
	return &JournalRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   postgres.Builder(),
	}
}

// GetBySource locks the voucher header of a source document.
func (r *JournalRepo) GetBySource(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (*entity.JournalVoucher, error) {
	q := r.builder.Select(voucherColumns...).
		From(vouchersTable).
		Where(squirrel.Eq{"source_type": sourceType, "ref_id": refID}).
		Suffix("FOR UPDATE")
	return r.getOne(ctx, q, refID)
}

// GetByID returns a voucher header.
func (r *JournalRepo) GetByID(ctx context.Context, jvID id.ID) (*entity.JournalVoucher, error) {
	q := r.builder.Select(voucherColumns...).
		From(vouchersTable).
		Where(squirrel.Eq{"id": jvID})
	return r.getOne(ctx, q, jvID)
}

func (r *JournalRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key id.ID) (*entity.JournalVoucher, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var jv entity.JournalVoucher
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &jv, sql, args...); err != nil {
		return nil, postgres.TranslateError(err, "journal_voucher", key)
	}
	return &jv, nil
}

// Create inserts a voucher header. The (source_type, ref_id) unique index
// turns a concurrent double post into a Duplicate error.
func (r *JournalRepo) Create(ctx context.Context, jv *entity.JournalVoucher) error {
	sql, args, err := r.builder.Insert(vouchersTable).
		Columns(voucherColumns...).
		Values(jv.ID, jv.DocNumber, jv.DocDate, jv.Status, jv.SourceType, jv.RefID,
			jv.Description, jv.CreatedAt, jv.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("journal_voucher", "ref_id", jv.RefID.String()).WithCause(err)
		}
		return postgres.TranslateError(fmt.Errorf("insert voucher: %w", err), "journal_voucher", jv.ID)
	}
	return nil
}

// UpdateHeader rewrites date, description, status and updated_at.
func (r *JournalRepo) UpdateHeader(ctx context.Context, jv *entity.JournalVoucher) error {
	sql, args, err := r.builder.Update(vouchersTable).
		Set("doc_date", jv.DocDate).
		Set("description", jv.Description).
		Set("status", jv.Status).
		Set("updated_at", jv.UpdatedAt).
		Where(squirrel.Eq{"id": jv.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update voucher: %w", err), "journal_voucher", jv.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("journal_voucher", jv.ID)
	}
	return nil
}

// DeleteDetails removes every detail line of a voucher. Allocations still
// pointing at a line make the foreign key fail with a Conflict.
func (r *JournalRepo) DeleteDetails(ctx context.Context, jvID id.ID) error {
	sql, args, err := r.builder.Delete(detailsTable).Where(squirrel.Eq{"jv_id": jvID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("delete details: %w", err), "journal_voucher_detail", jvID)
	}
	return nil
}

// InsertDetails copies detail lines in.
func (r *JournalRepo) InsertDetails(ctx context.Context, details []entity.JournalVoucherDetail) error {
	rows := make([][]any, 0, len(details))
	for _, d := range details {
		var refType *string
		if d.RefType != "" {
			s := string(d.RefType)
			refType = &s
		}
		rows = append(rows, []any{
			d.ID, d.JVID, d.LineNo, d.COAID, d.Debit, d.Credit,
			d.RefID, refType, d.Description,
		})
	}
	if _, err := r.inserter.CopyFromSlice(ctx, detailsTable, detailColumns, rows); err != nil {
		return fmt.Errorf("insert details: %w", err)
	}
	return nil
}

// Delete removes a voucher header.
func (r *JournalRepo) Delete(ctx context.Context, jvID id.ID) error {
	sql, args, err := r.builder.Delete(vouchersTable).Where(squirrel.Eq{"id": jvID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("delete voucher: %w", err), "journal_voucher", jvID)
	}
	return nil
}

// GetDetails returns detail lines ordered by line_no.
func (r *JournalRepo) GetDetails(ctx context.Context, jvID id.ID) ([]entity.JournalVoucherDetail, error) {
	sql, args, err := r.builder.
		Select("id", "jv_id", "line_no", "coa_id", "debit", "credit",
			"ref_id", "COALESCE(ref_type, '') AS ref_type", "description").
		From(detailsTable).
		Where(squirrel.Eq{"jv_id": jvID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var details []entity.JournalVoucherDetail
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &details, sql, args...); err != nil {
		return nil, fmt.Errorf("get details: %w", err)
	}
	return details, nil
}
