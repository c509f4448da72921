package entity

import (
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// AccountRole is a logical GL role resolved to a chart-of-accounts id via GL settings.
type AccountRole string

const (
	RoleInventory           AccountRole = "inventory_account"
	RoleAPTemp              AccountRole = "ap_temp_account"
	RoleCOGS                AccountRole = "cogs_account"
	RoleInventoryAdjustment AccountRole = "inventory_adjustment_account"
	RoleAccountsPayable     AccountRole = "accounts_payable_account"
	RoleAccountsReceivable  AccountRole = "accounts_receivable_account"
	RoleSales               AccountRole = "sales_account"
	RoleCash                AccountRole = "cash_account"
	RoleAPAdjustment        AccountRole = "ap_adjustment_account"
	RoleARAdjustment        AccountRole = "ar_adjustment_account"
)

// VoucherStatus is the journal voucher state. Vouchers only exist while posted.
type VoucherStatus string

const VoucherPosted VoucherStatus = "posted"

// JournalVoucher is the header of a double-entry posting generated from a source document.
// There is at most one voucher per (SourceType, RefID).
type JournalVoucher struct {
	ID          id.ID         `db:"id" json:"id"`
	DocNumber   string        `db:"doc_number" json:"docNumber"`
	DocDate     time.Time     `db:"doc_date" json:"docDate"`
	Status      VoucherStatus `db:"status" json:"status"`
	SourceType  DocumentType  `db:"source_type" json:"sourceType"`
	RefID       id.ID         `db:"ref_id" json:"refId"`
	Description string        `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updatedAt"`

	Details []JournalVoucherDetail `db:"-" json:"details,omitempty"`
}

// JournalVoucherDetail is one debit or credit line of a voucher.
type JournalVoucherDetail struct {
	ID          id.ID        `db:"id" json:"id"`
	JVID        id.ID        `db:"jv_id" json:"jvId"`
	LineNo      int          `db:"line_no" json:"lineNo"`
	COAID       id.ID        `db:"coa_id" json:"coaId"`
	Debit       types.Money  `db:"debit" json:"debit"`
	Credit      types.Money  `db:"credit" json:"credit"`
	RefID       *id.ID       `db:"ref_id" json:"refId,omitempty"`
	RefType     DocumentType `db:"ref_type" json:"refType,omitempty"`
	Description string       `db:"description" json:"description,omitempty"`
}

// Amount returns the non-zero side of the line.
func (d *JournalVoucherDetail) Amount() types.Money {
	if d.Debit.IsZero() {
		return d.Credit
	}
	return d.Debit
}

// Totals returns the voucher's debit and credit sums.
func Totals(details []JournalVoucherDetail) (debit, credit types.Money) {
	debit, credit = types.Zero(), types.Zero()
	for _, d := range details {
		debit = debit.Add(d.Debit)
		credit = credit.Add(d.Credit)
	}
	return debit, credit
}
