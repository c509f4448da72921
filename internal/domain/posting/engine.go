// Package posting builds balanced double-entry journal vouchers from source
// documents. There is at most one voucher per source document; posting again
// rewrites it in place.
package posting

import (
	"context"
	"fmt"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/numerator"
	"costledger/internal/core/types"
	"costledger/internal/domain/refdata"
	"costledger/pkg/logger"
)

// Line is one computed journal line before account resolution.
// Exactly one of Debit and Credit is non-zero; lines with both zero are dropped.
type Line struct {
	Role   entity.AccountRole
	Debit  types.Money
	Credit types.Money

	RefID   *id.ID
	RefType entity.DocumentType
	// Allocate applies the line amount to the invoice RefID.
	Allocate bool

	Description string
}

// Debit is a debit line helper.
func Debit(role entity.AccountRole, amount types.Money) Line {
	return Line{Role: role, Debit: amount, Credit: types.Zero()}
}

// Credit is a credit line helper.
func Credit(role entity.AccountRole, amount types.Money) Line {
	return Line{Role: role, Debit: types.Zero(), Credit: amount}
}

// Draft is the computed content of a voucher.
type Draft struct {
	DocDate     time.Time
	Description string
	Lines       []Line
}

// Engine is the journal posting engine.
// It runs inside the caller's transaction and never opens its own.
type Engine struct {
	repo      Repository
	settings  refdata.GLSettings
	allocator Allocator
	numbers   numerator.Generator
	numbering numerator.Config
	now       func() time.Time
}

// NewEngine creates a posting engine. Voucher numbers use the JV prefix.
func NewEngine(repo Repository, settings refdata.GLSettings, allocator Allocator, numbers numerator.Generator) *Engine {
	return &Engine{
		repo:      repo,
		settings:  settings,
		allocator: allocator,
		numbers:   numbers,
		numbering: numerator.DefaultConfig("JV"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PostJournal creates or rewrites the voucher of (sourceType, refID).
// Roles are resolved and the balance is checked before anything is written.
// A draft with no non-zero lines removes any existing voucher and returns id.Nil().
func (e *Engine) PostJournal(ctx context.Context, sourceType entity.DocumentType, refID id.ID, draft Draft) (id.ID, error) {
	details, err := e.buildDetails(ctx, draft.Lines)
	if err != nil {
		return id.Nil(), err
	}
	if len(details) == 0 {
		if _, err := e.DeleteJournal(ctx, sourceType, refID); err != nil {
			return id.Nil(), err
		}
		return id.Nil(), nil
	}

	now := e.now()
	jv, err := e.repo.GetBySource(ctx, sourceType, refID)
	switch {
	case err == nil:
		if err := e.allocator.ReleaseVoucher(ctx, jv.ID); err != nil {
			return id.Nil(), fmt.Errorf("release allocations: %w", err)
		}
		if err := e.repo.DeleteDetails(ctx, jv.ID); err != nil {
			return id.Nil(), fmt.Errorf("delete details: %w", err)
		}
		jv.DocDate = draft.DocDate
		jv.Description = draft.Description
		jv.Status = entity.VoucherPosted
		jv.UpdatedAt = now
		if err := e.repo.UpdateHeader(ctx, jv); err != nil {
			return id.Nil(), fmt.Errorf("update voucher: %w", err)
		}

	case apperror.IsNotFound(err):
		number, err := e.numbers.GetNextNumber(ctx, e.numbering, draft.DocDate)
		if err != nil {
			return id.Nil(), fmt.Errorf("voucher number: %w", err)
		}
		jv = &entity.JournalVoucher{
			ID:          id.New(),
			DocNumber:   number,
			DocDate:     draft.DocDate,
			Status:      entity.VoucherPosted,
			SourceType:  sourceType,
			RefID:       refID,
			Description: draft.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.repo.Create(ctx, jv); err != nil {
			return id.Nil(), fmt.Errorf("create voucher: %w", err)
		}

	default:
		return id.Nil(), fmt.Errorf("get voucher: %w", err)
	}

	for i := range details {
		details[i].JVID = jv.ID
	}
	if err := e.repo.InsertDetails(ctx, details); err != nil {
		return id.Nil(), fmt.Errorf("insert details: %w", err)
	}

	for i, line := range nonZero(draft.Lines) {
		if !line.Allocate {
			continue
		}
		if line.RefID == nil {
			return id.Nil(), apperror.NewValidation("allocating line has no invoice reference").
				WithDetail("lineNo", details[i].LineNo)
		}
		err := e.allocator.Allocate(ctx, entity.Allocation{
			ID:              id.New(),
			JournalLineID:   details[i].ID,
			JVID:            jv.ID,
			InvoiceID:       *line.RefID,
			AllocatedAmount: details[i].Amount(),
			CreatedAt:       now,
		})
		if err != nil {
			return id.Nil(), err
		}
	}

	debit, _ := entity.Totals(details)
	logger.Info(ctx, "journal posted",
		"jv_id", jv.ID,
		"doc_number", jv.DocNumber,
		"source_type", sourceType,
		"ref_id", refID,
		"lines", len(details),
		"amount", debit.String(),
	)
	return jv.ID, nil
}

// DeleteJournal removes the voucher of a source document in the order
// allocations, details, header. It reports whether a voucher existed.
func (e *Engine) DeleteJournal(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (bool, error) {
	jv, err := e.repo.GetBySource(ctx, sourceType, refID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get voucher: %w", err)
	}

	if err := e.allocator.ReleaseVoucher(ctx, jv.ID); err != nil {
		return false, fmt.Errorf("release allocations: %w", err)
	}
	if err := e.repo.DeleteDetails(ctx, jv.ID); err != nil {
		return false, fmt.Errorf("delete details: %w", err)
	}
	if err := e.repo.Delete(ctx, jv.ID); err != nil {
		return false, fmt.Errorf("delete voucher: %w", err)
	}

	logger.Info(ctx, "journal deleted",
		"jv_id", jv.ID,
		"doc_number", jv.DocNumber,
		"source_type", sourceType,
		"ref_id", refID,
	)
	return true, nil
}

// GetJournal returns the voucher of a source document with its details.
func (e *Engine) GetJournal(ctx context.Context, sourceType entity.DocumentType, refID id.ID) (*entity.JournalVoucher, error) {
	jv, err := e.repo.GetBySource(ctx, sourceType, refID)
	if err != nil {
		return nil, err
	}
	details, err := e.repo.GetDetails(ctx, jv.ID)
	if err != nil {
		return nil, fmt.Errorf("get details: %w", err)
	}
	jv.Details = details
	return jv, nil
}

// buildDetails resolves roles, rounds amounts and checks the balance.
func (e *Engine) buildDetails(ctx context.Context, lines []Line) ([]entity.JournalVoucherDetail, error) {
	lines = nonZero(lines)
	accounts := make(map[entity.AccountRole]id.ID)
	details := make([]entity.JournalVoucherDetail, 0, len(lines))

	for i, line := range lines {
		debit, credit := types.RoundMoney(line.Debit), types.RoundMoney(line.Credit)
		if debit.IsNegative() || credit.IsNegative() {
			return nil, apperror.NewValidation("journal amounts must not be negative").
				WithDetail("role", string(line.Role))
		}
		if !debit.IsZero() && !credit.IsZero() {
			return nil, apperror.NewValidation("journal line has both debit and credit").
				WithDetail("role", string(line.Role))
		}

		coaID, ok := accounts[line.Role]
		if !ok {
			var found bool
			var err error
			coaID, found, err = e.settings.AccountFor(ctx, line.Role)
			if err != nil {
				return nil, fmt.Errorf("resolve account role %s: %w", line.Role, err)
			}
			if !found {
				return nil, apperror.NewMissingAccountRole(string(line.Role))
			}
			accounts[line.Role] = coaID
		}

		details = append(details, entity.JournalVoucherDetail{
			ID:          id.New(),
			LineNo:      i + 1,
			COAID:       coaID,
			Debit:       debit,
			Credit:      credit,
			RefID:       line.RefID,
			RefType:     line.RefType,
			Description: line.Description,
		})
	}

	debit, credit := entity.Totals(details)
	if !debit.Equal(credit) {
		return nil, apperror.NewUnbalancedJournal(debit, credit)
	}
	return details, nil
}

// nonZero drops lines whose rounded amounts are both zero.
func nonZero(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if types.RoundMoney(l.Debit).IsZero() && types.RoundMoney(l.Credit).IsZero() {
			continue
		}
		out = append(out, l)
	}
	return out
}
