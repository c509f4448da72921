package documents

import (
	"fmt"
	"slices"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/stock"
)

// Values is the stock value a document moved, per direction, at booked costs.
type Values struct {
	In  types.Money
	Out types.Money
}

// ValuesOf sums the booked values of an applied document.
func ValuesOf(res *stock.DocumentResult) Values {
	if res == nil {
		return Values{In: types.Zero(), Out: types.Zero()}
	}
	return Values{In: res.Value(entity.DirectionIn), Out: res.Value(entity.DirectionOut)}
}

// StoredValues sums movement values at the costs they carry. Rounding matches
// the applier, so stored costs reproduce the values booked at approval.
func StoredValues(movements []entity.StockMovement) Values {
	v := Values{In: types.Zero(), Out: types.Zero()}
	for _, m := range movements {
		value := types.RoundMoney(m.Quantity.Decimal().Mul(m.UnitCost))
		if m.Direction == entity.DirectionIn {
			v.In = v.In.Add(value)
		} else {
			v.Out = v.Out.Add(value)
		}
	}
	return v
}

// HasJournal reports whether approving documents of this type posts a voucher.
func HasJournal(t entity.DocumentType) bool {
	return t != entity.DocPurchaseOrder && t != entity.DocSalesOrder
}

// ComposeJournal computes a document's voucher lines. Stock documents are
// valued with v; other documents use their own amounts.
func ComposeJournal(doc *entity.Document, v Values) (posting.Draft, error) {
	draft := posting.Draft{
		DocDate:     doc.Date,
		Description: fmt.Sprintf("%s %s", doc.Type, doc.Number),
	}
	ref := doc.ID

	var lines []posting.Line
	switch doc.Type {
	case entity.DocReceiving:
		credit := types.RoundMoney(doc.TotalAmount)
		if credit.IsZero() {
			credit = lineTotal(doc)
		}
		lines = []posting.Line{
			posting.Debit(entity.RoleInventory, v.In),
			posting.Credit(entity.RoleAPTemp, credit),
		}

	case entity.DocShipment:
		lines = []posting.Line{
			posting.Debit(entity.RoleCOGS, v.Out),
			posting.Credit(entity.RoleInventory, v.Out),
		}

	case entity.DocInventoryAdjustment:
		lines = []posting.Line{
			posting.Debit(entity.RoleInventory, v.In),
			posting.Credit(entity.RoleInventoryAdjustment, v.In),
			posting.Debit(entity.RoleInventoryAdjustment, v.Out),
			posting.Credit(entity.RoleInventory, v.Out),
		}

	case entity.DocItemConversion, entity.DocLocationTransfer:
		// Outputs and destinations carry exactly the consumed value; rounding
		// per line must not unbalance the voucher.
		lines = []posting.Line{
			posting.Debit(entity.RoleInventory, v.Out),
			posting.Credit(entity.RoleInventory, v.Out),
		}

	case entity.DocAPInvoice:
		lines = []posting.Line{
			posting.Debit(entity.RoleAPTemp, doc.TotalAmount),
			posting.Credit(entity.RoleAccountsPayable, doc.TotalAmount),
		}

	case entity.DocARInvoice:
		lines = []posting.Line{
			posting.Debit(entity.RoleAccountsReceivable, doc.TotalAmount),
			posting.Credit(entity.RoleSales, doc.TotalAmount),
		}

	case entity.DocPayment:
		var err error
		lines, err = paymentLines(doc)
		if err != nil {
			return posting.Draft{}, err
		}

	default:
		return draft, nil
	}

	for i := range lines {
		if lines[i].RefID == nil {
			lines[i].RefID = &ref
			lines[i].RefType = doc.Type
		}
	}
	draft.Lines = lines
	return draft, nil
}

// paymentSides maps a payment kind to its invoice-side and counter-side roles.
// invoiceDebit tells which side the allocating lines sit on.
var paymentSides = map[entity.PaymentKind]struct {
	invoice      entity.AccountRole
	counter      entity.AccountRole
	invoiceDebit bool
	invoiceType  entity.DocumentType
}{
	entity.PaymentAP:           {entity.RoleAccountsPayable, entity.RoleCash, true, entity.DocAPInvoice},
	entity.PaymentAR:           {entity.RoleAccountsReceivable, entity.RoleCash, false, entity.DocARInvoice},
	entity.PaymentAPAdjustment: {entity.RoleAccountsPayable, entity.RoleAPAdjustment, true, entity.DocAPInvoice},
	entity.PaymentARAdjustment: {entity.RoleAccountsReceivable, entity.RoleARAdjustment, false, entity.DocARInvoice},
}

// paymentLines: one allocating line per invoice line, sorted by invoice id so
// invoices are locked in a stable order, and one counter line for the total.
func paymentLines(doc *entity.Document) ([]posting.Line, error) {
	side, ok := paymentSides[doc.PaymentKind]
	if !ok {
		return nil, apperror.NewValidation("unknown payment kind").
			WithDetail("paymentKind", string(doc.PaymentKind))
	}

	if len(doc.Lines) == 0 {
		return nil, apperror.NewValidation("payment has no lines").WithDetail("field", "lines")
	}

	lines := slices.Clone(doc.Lines)
	slices.SortStableFunc(lines, func(a, b entity.DocumentLine) int {
		return id.Compare(derefID(a.InvoiceID), derefID(b.InvoiceID))
	})

	out := make([]posting.Line, 0, len(lines)+1)
	total := types.Zero()
	for i := range lines {
		line := &lines[i]
		if line.InvoiceID == nil || id.IsNil(*line.InvoiceID) {
			return nil, lineError(line, "payment line must reference an invoice")
		}
		amount := types.RoundMoney(line.Amount)
		if !amount.IsPositive() {
			return nil, lineError(line, "payment amount must be positive")
		}
		invoiceID := *line.InvoiceID

		l := posting.Credit(side.invoice, amount)
		if side.invoiceDebit {
			l = posting.Debit(side.invoice, amount)
		}
		l.RefID = &invoiceID
		l.RefType = side.invoiceType
		l.Allocate = true
		out = append(out, l)
		total = total.Add(amount)
	}

	counter := posting.Debit(side.counter, total)
	if side.invoiceDebit {
		counter = posting.Credit(side.counter, total)
	}
	return append(out, counter), nil
}

func lineTotal(doc *entity.Document) types.Money {
	total := types.Zero()
	for _, line := range doc.Lines {
		amount := line.Amount
		if amount.IsZero() {
			amount = line.Quantity.Decimal().Mul(line.UnitCost)
		}
		total = total.Add(types.RoundMoney(amount))
	}
	return total
}

func derefID(v *id.ID) id.ID {
	if v == nil {
		return id.Nil()
	}
	return *v
}
