package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/stock"
)

func TestTransition_ReceiveReceiveShip(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	r1 := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	r2 := f.receiving(day(2), "650", line(itemX, locA, 5, "130"))
	f.approve(t, r1)
	f.approve(t, r2)
	f.assertPosition(t, itemX, locA, 15, "110")

	ship := f.shipment(day(3), line(itemX, locA, 8, "0"))
	res := f.approve(t, ship)
	assert.Equal(t, entity.StatusApproved, res.Status)
	require.NotNil(t, res.JournalVoucherID)
	assert.Empty(t, res.Warnings)

	f.assertPosition(t, itemX, locA, 7, "110")
	assert.True(t, types.MustMoney("770").Equal(types.RoundMoney(f.position(itemX, locA).Value())))

	jv := f.journal(t, ship)
	require.Len(t, jv.Details, 2)
	debit, credit := entity.Totals(jv.Details)
	assert.True(t, types.MustMoney("880").Equal(debit))
	assert.True(t, debit.Equal(credit))

	stored, ok := f.store.Document(ship.ID)
	require.True(t, ok)
	require.NotNil(t, stored.Lines[0].AppliedCost)
	assert.True(t, types.MustMoney("110").Equal(*stored.Lines[0].AppliedCost))
}

func TestTransition_UnbalancedJournalRollsBack(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	doc := f.receiving(day(1), "900", line(itemX, locA, 10, "100"))
	_, err := f.transition(doc, entity.ActionApprove)
	require.Error(t, err)
	assert.True(t, apperror.IsUnbalancedJournal(err))

	assert.Empty(t, f.store.Ledger(), "stock must not change")
	assert.Empty(t, f.store.Vouchers())
	assert.Empty(t, f.store.AuditEntries())

	stored, _ := f.store.Document(doc.ID)
	assert.Equal(t, entity.StatusDraft, stored.Status)
	assert.Nil(t, stored.Lines[0].AppliedCost)
}

func TestTransition_UnapproveRestoresLedger(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.approve(t, f.receiving(day(2), "650", line(itemX, locA, 5, "130")))
	ship := f.shipment(day(3), line(itemX, locA, 8, "0"))
	f.approve(t, ship)

	res, err := f.transition(ship, entity.ActionUnapprove)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, res.Status)
	assert.Nil(t, res.JournalVoucherID)

	f.assertPosition(t, itemX, locA, 15, "110")
	_, err = f.posting.GetJournal(context.Background(), ship.Type, ship.ID)
	assert.True(t, apperror.IsNotFound(err))

	stored, _ := f.store.Document(ship.ID)
	assert.Nil(t, stored.Lines[0].AppliedCost)

	// Approving again books the same cost.
	f.approve(t, ship)
	f.assertPosition(t, itemX, locA, 7, "110")
}

func TestTransition_UnapproveLastReceivingEmptiesRow(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	r1 := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	f.approve(t, r1)
	_, err := f.transition(r1, entity.ActionUnapprove)
	require.NoError(t, err)

	f.assertPosition(t, itemX, locA, 0, "0")
}

func TestTransition_DependentsBlockUnapprove(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	f.approve(t, rcv)

	inv := f.store.AddDocument(entity.Document{
		Type:           entity.DocAPInvoice,
		Number:         "API-1",
		Date:           day(2),
		BaseDocumentID: ptr(rcv.ID),
		TotalAmount:    types.MustMoney("1000"),
	})
	f.approve(t, inv)

	_, err := f.transition(rcv, entity.ActionUnapprove)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDependentDocuments))
	f.assertPosition(t, itemX, locA, 10, "100")

	_, err = f.transition(inv, entity.ActionUnapprove)
	require.NoError(t, err)
	_, err = f.transition(rcv, entity.ActionUnapprove)
	require.NoError(t, err)
}

func TestTransition_BaseDocumentMustBeApproved(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	inv := f.store.AddDocument(entity.Document{
		Type:           entity.DocAPInvoice,
		Date:           day(2),
		BaseDocumentID: ptr(rcv.ID),
		TotalAmount:    types.MustMoney("1000"),
	})

	_, err := f.transition(inv, entity.ActionApprove)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))
}

func TestTransition_PaymentAllocation(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	ctx := context.Background()

	inv := f.store.AddDocument(entity.Document{
		Type:        entity.DocAPInvoice,
		Number:      "API-7",
		Date:        day(1),
		TotalAmount: types.MustMoney("50000"),
	})
	f.approve(t, inv)

	balance, err := f.allocations.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoicePosted, balance.Status)

	pay := f.store.AddDocument(entity.Document{
		Type:        entity.DocPayment,
		Number:      "PAY-1",
		Date:        day(2),
		PaymentKind: entity.PaymentAP,
		Lines: []entity.DocumentLine{
			{InvoiceID: ptr(inv.ID), Amount: types.MustMoney("20000")},
		},
	})
	f.approve(t, pay)

	balance, err = f.allocations.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoicePartial, balance.Status)
	assert.True(t, types.MustMoney("20000").Equal(balance.PaidAmount))

	// A paid invoice cannot go back to draft.
	_, err = f.transition(inv, entity.ActionUnapprove)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDependentDocuments))

	_, err = f.transition(pay, entity.ActionUnapprove)
	require.NoError(t, err)

	balance, err = f.allocations.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoicePosted, balance.Status)
	assert.True(t, balance.PaidAmount.IsZero())

	allocs, err := f.allocations.ListAllocations(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestTransition_OverAllocationRollsBack(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	inv := f.store.AddDocument(entity.Document{
		Type:        entity.DocARInvoice,
		Date:        day(1),
		TotalAmount: types.MustMoney("100"),
	})
	f.approve(t, inv)

	pay := f.store.AddDocument(entity.Document{
		Type:        entity.DocPayment,
		Date:        day(2),
		PaymentKind: entity.PaymentAR,
		Lines: []entity.DocumentLine{
			{InvoiceID: ptr(inv.ID), Amount: types.MustMoney("150")},
		},
	})
	_, err := f.transition(pay, entity.ActionApprove)
	require.Error(t, err)
	assert.True(t, apperror.IsOverAllocation(err))

	_, err = f.posting.GetJournal(context.Background(), pay.Type, pay.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransition_RepostIsIdempotent(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})

	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	first := f.approve(t, rcv)
	require.NotNil(t, first.JournalVoucherID)
	number := f.journal(t, rcv).DocNumber

	for range 2 {
		res, err := f.transition(rcv, entity.ActionRepost)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusApproved, res.Status)
		assert.Equal(t, *first.JournalVoucherID, *res.JournalVoucherID)
	}

	require.Len(t, f.store.Vouchers(), 1)
	jv := f.journal(t, rcv)
	assert.Equal(t, number, jv.DocNumber)
	require.Len(t, jv.Details, 2)
	f.assertPosition(t, itemX, locA, 10, "100")
}

func TestTransition_MissingAccountRole(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	f.approve(t, f.receiving(day(1), "1000", line(itemX, locA, 10, "100")))
	f.store.RemoveAccount(entity.RoleCOGS)

	ship := f.shipment(day(2), line(itemX, locA, 4, "0"))
	_, err := f.transition(ship, entity.ActionApprove)
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))
	f.assertPosition(t, itemX, locA, 10, "100")
}

func TestTransition_NegativeStock(t *testing.T) {
	t.Run("tolerated", func(t *testing.T) {
		f := newFixture(t, stock.AlwaysTolerate{})
		ship := f.shipment(day(1), line(itemX, locA, 5, "0"))

		res := f.approve(t, ship)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, apperror.CodeInsufficientStock, res.Warnings[0].Code)
		f.assertPosition(t, itemX, locA, -5, "50")

		anomalies, err := f.stock.ListAnomalies(context.Background(), stock.AnomalyFilter{DocumentID: ptr(ship.ID)})
		require.NoError(t, err)
		require.Len(t, anomalies, 1)
		assert.Equal(t, types.NewQuantity(-5), anomalies[0].ResultingQty)

		// Valued at the item standard cost when no average exists.
		debit, _ := entity.Totals(f.journal(t, ship).Details)
		assert.True(t, types.MustMoney("250").Equal(debit))

		// The receipt settles the shortage at the booked value: 650 in, 250 out.
		f.approve(t, f.receiving(day(2), "650", line(itemX, locA, 10, "65")))
		f.assertPosition(t, itemX, locA, 5, "80")
	})

	t.Run("rejected", func(t *testing.T) {
		policy, err := stock.NewCELPolicy("false")
		require.NoError(t, err)
		f := newFixture(t, policy)

		_, err = f.transition(f.shipment(day(1), line(itemX, locA, 5, "0")), entity.ActionApprove)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
		assert.Empty(t, f.store.Ledger())
	})
}

func TestTransition_InvalidTransitions(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))

	_, err := f.transition(rcv, entity.ActionUnapprove)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	f.approve(t, rcv)
	_, err = f.transition(rcv, entity.ActionApprove)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	res, err := f.transition(rcv, entity.ActionClose)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClosed, res.Status)

	_, err = f.transition(rcv, entity.ActionUnapprove)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
}

func TestTransition_WrongTypeIsNotFound(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))

	_, err := f.tr.Transition(context.Background(), entity.DocShipment, rcv.ID, entity.ActionApprove)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.tr.Transition(context.Background(), entity.DocShipment, id.New(), entity.ActionApprove)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransition_RecordsAudit(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	rcv := f.receiving(day(1), "1000", line(itemX, locA, 10, "100"))
	f.approve(t, rcv)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, rcv.ID, entries[0].EntityID)
	assert.Equal(t, string(entity.ActionApprove), entries[0].Action)
	assert.Equal(t, string(entity.DocReceiving), entries[0].EntityType)
}
