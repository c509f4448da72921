package documents

import (
	"context"
	"fmt"
	"time"

	"costledger/internal/core/apperror"
	appctx "costledger/internal/core/context"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/domain/allocation"
	"costledger/internal/domain/audit"
	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/stock"
	"costledger/pkg/logger"
)

// Result is the outcome of a successful transition.
type Result struct {
	DocumentID       id.ID                 `json:"documentId"`
	DocumentType     entity.DocumentType   `json:"documentType"`
	Action           entity.Action         `json:"action"`
	Status           entity.DocumentStatus `json:"status"`
	JournalVoucherID *id.ID                `json:"journalVoucherId,omitempty"`
	// Warnings are tolerated InsufficientStock conditions, recorded as anomalies.
	Warnings []*apperror.AppError `json:"warnings,omitempty"`
}

// Transitioner is the document state machine. Every transition is one unit of
// work: stock mutation, journal posting and allocation commit or roll back together.
type Transitioner struct {
	txm         tx.Manager
	docs        Repository
	readers     *Readers
	stock       *stock.Service
	locker      stock.ScopeLocker
	posting     *posting.Engine
	allocations *allocation.Engine
	audit       audit.Recorder
	observer    Observer
}

// Deps are the Transitioner's collaborators.
type Deps struct {
	TxManager   tx.Manager
	Documents   Repository
	Readers     *Readers
	Stock       *stock.Service
	Locker      stock.ScopeLocker
	Posting     *posting.Engine
	Allocations *allocation.Engine
	Audit       audit.Recorder
	Observer    Observer
}

// NewTransitioner creates the state machine.
func NewTransitioner(d Deps) *Transitioner {
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Observer == nil {
		d.Observer = NopObserver{}
	}
	return &Transitioner{
		txm:         d.TxManager,
		docs:        d.Documents,
		readers:     d.Readers,
		stock:       d.Stock,
		locker:      d.Locker,
		posting:     d.Posting,
		allocations: d.Allocations,
		audit:       d.Audit,
		observer:    d.Observer,
	}
}

// transition carries the state of one attempt.
type transition struct {
	doc      *entity.Document
	action   entity.Action
	from     entity.DocumentStatus
	result   *Result
	stockRes *stock.DocumentResult
	releases []func(context.Context)
}

// Transition applies action to a document. A ConcurrentModification error is
// retryable: the caller re-runs the whole transition.
func (t *Transitioner) Transition(ctx context.Context, docType entity.DocumentType, docID id.ID, action entity.Action) (*Result, error) {
	started := time.Now()
	tr := &transition{action: action}

	defer func() {
		for i := len(tr.releases) - 1; i >= 0; i-- {
			tr.releases[i](appctx.Detach(ctx))
		}
	}()

	err := t.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := t.docs.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Type != docType {
			return apperror.NewNotFound(string(docType), docID)
		}
		tr.doc = doc
		tr.from = doc.Status

		target, ok := action.Target(doc.Status)
		if !ok {
			return apperror.NewInvalidTransition(string(doc.Type), string(doc.Status), string(action))
		}
		tr.result = &Result{DocumentID: doc.ID, DocumentType: doc.Type, Action: action, Status: target}

		switch action {
		case entity.ActionApprove:
			err = t.approve(ctx, tr)
		case entity.ActionUnapprove:
			err = t.unapprove(ctx, tr)
		case entity.ActionRepost:
			err = t.repost(ctx, tr)
		case entity.ActionClose:
		}
		if err != nil {
			return err
		}

		if err := t.docs.UpdateStatus(ctx, doc.ID, target, doc.Version); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return t.record(ctx, tr)
	})

	t.observer.TransitionFinished(docType, action, time.Since(started), err)
	if err != nil {
		logger.Warn(ctx, "document transition failed",
			"document_type", docType,
			"document_id", docID,
			"action", action,
			"error", err,
		)
		return nil, err
	}

	if tr.stockRes != nil && len(tr.stockRes.Anomalies) > 0 {
		t.observer.AnomaliesRecorded(docType, len(tr.stockRes.Anomalies))
	}
	logger.Info(ctx, "document transition",
		"document_type", docType,
		"document_id", docID,
		"document_number", tr.doc.Number,
		"action", action,
		"from", tr.from,
		"to", tr.result.Status,
		"warnings", len(tr.result.Warnings),
	)
	return tr.result, nil
}

// approve: stock, then invoice balance, then journal and its allocations.
func (t *Transitioner) approve(ctx context.Context, tr *transition) error {
	doc := tr.doc
	if err := doc.Validate(ctx); err != nil {
		return err
	}
	if err := t.checkBaseDocument(ctx, doc); err != nil {
		return err
	}

	values := Values{}
	if doc.Type.IsStock() {
		movements, err := t.readers.Movements(ctx, doc)
		if err != nil {
			return err
		}
		if err := t.lock(ctx, tr, movements); err != nil {
			return err
		}

		res, err := t.stock.ApplyDocument(ctx, doc.Ref(), movements)
		if err != nil {
			return err
		}
		if err := t.docs.SaveAppliedCosts(ctx, doc.ID, res.LineCosts()); err != nil {
			return fmt.Errorf("save applied costs: %w", err)
		}
		tr.stockRes = res
		tr.result.Warnings = res.Warnings
		values = ValuesOf(res)
	}

	if doc.Type.IsInvoice() {
		if err := t.allocations.OpenInvoice(ctx, doc); err != nil {
			return err
		}
	}

	return t.post(ctx, tr, values)
}

// unapprove reverses approve in the opposite order: allocations and journal,
// then invoice balance, then stock at the stored line costs.
func (t *Transitioner) unapprove(ctx context.Context, tr *transition) error {
	doc := tr.doc

	dependents, err := t.docs.ListDependents(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list dependents: %w", err)
	}
	if len(dependents) > 0 {
		refs := make([]string, 0, len(dependents))
		for _, d := range dependents {
			refs = append(refs, fmt.Sprintf("%s %s", d.Type, d.Number))
		}
		return apperror.NewDependentDocuments(doc.ID.String(), refs)
	}

	if doc.Type.IsInvoice() {
		if err := t.allocations.CloseInvoice(ctx, doc.ID); err != nil {
			return err
		}
	}

	if _, err := t.posting.DeleteJournal(ctx, doc.Type, doc.ID); err != nil {
		return err
	}

	if doc.Type.IsStock() {
		movements, err := t.storedMovements(ctx, doc)
		if err != nil {
			return err
		}
		if err := t.lock(ctx, tr, movements); err != nil {
			return err
		}

		res, err := t.stock.ReverseDocument(ctx, doc.Ref(), movements)
		if err != nil {
			return err
		}
		if err := t.docs.SaveAppliedCosts(ctx, doc.ID, nil); err != nil {
			return fmt.Errorf("clear applied costs: %w", err)
		}
		tr.stockRes = res
		tr.result.Warnings = res.Warnings
	}
	return nil
}

// repost rewrites the voucher from the stored line costs. The ledger is not touched.
func (t *Transitioner) repost(ctx context.Context, tr *transition) error {
	values := Values{}
	if tr.doc.Type.IsStock() {
		movements, err := t.storedMovements(ctx, tr.doc)
		if err != nil {
			return err
		}
		values = StoredValues(movements)
	}
	return t.post(ctx, tr, values)
}

func (t *Transitioner) post(ctx context.Context, tr *transition, values Values) error {
	if !HasJournal(tr.doc.Type) {
		return nil
	}
	draft, err := ComposeJournal(tr.doc, values)
	if err != nil {
		return err
	}
	jvID, err := t.posting.PostJournal(ctx, tr.doc.Type, tr.doc.ID, draft)
	if err != nil {
		return err
	}
	if !id.IsNil(jvID) {
		tr.result.JournalVoucherID = &jvID
	}
	return nil
}

func (t *Transitioner) storedMovements(ctx context.Context, doc *entity.Document) ([]entity.StockMovement, error) {
	movements, err := t.readers.Movements(ctx, doc)
	if err != nil {
		return nil, err
	}
	return WithAppliedCosts(doc, movements)
}

func (t *Transitioner) lock(ctx context.Context, tr *transition, movements []entity.StockMovement) error {
	release, err := t.locker.Acquire(ctx, stock.ScopesOf(movements))
	if err != nil {
		return err
	}
	tr.releases = append(tr.releases, release)
	return nil
}

// checkBaseDocument requires the upstream document to be in the books.
func (t *Transitioner) checkBaseDocument(ctx context.Context, doc *entity.Document) error {
	if doc.BaseDocumentID == nil || id.IsNil(*doc.BaseDocumentID) {
		return nil
	}
	base, err := t.docs.Get(ctx, *doc.BaseDocumentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewValidation("base document not found").
				WithDetail("baseDocumentId", doc.BaseDocumentID.String())
		}
		return fmt.Errorf("get base document: %w", err)
	}
	if !base.Status.IsEffective() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "base document is not approved").
			WithDetail("baseDocumentId", base.ID.String()).
			WithDetail("baseDocumentNumber", base.Number)
	}
	return nil
}

// transitionAudit is the audit payload of a transition.
type transitionAudit struct {
	From             entity.DocumentStatus `json:"from"`
	To               entity.DocumentStatus `json:"to"`
	JournalVoucherID *id.ID                `json:"journalVoucherId,omitempty"`
	Movements        []auditMovement       `json:"movements,omitempty"`
	Anomalies        []entity.StockAnomaly `json:"anomalies,omitempty"`
	Warnings         []*apperror.AppError  `json:"warnings,omitempty"`
}

type auditMovement struct {
	LineNo    int              `json:"lineNo"`
	Direction entity.Direction `json:"direction"`
	Key       entity.LedgerKey `json:"key"`
	Quantity  string           `json:"quantity"`
	UnitCost  string           `json:"unitCost"`
	Before    [2]string        `json:"before"`
	After     [2]string        `json:"after"`
}

func (t *Transitioner) record(ctx context.Context, tr *transition) error {
	payload := transitionAudit{
		From:             tr.from,
		To:               tr.result.Status,
		JournalVoucherID: tr.result.JournalVoucherID,
		Warnings:         tr.result.Warnings,
	}
	if tr.stockRes != nil {
		payload.Anomalies = tr.stockRes.Anomalies
		for _, a := range tr.stockRes.Applied {
			payload.Movements = append(payload.Movements, auditMovement{
				LineNo:    a.Movement.LineNo,
				Direction: a.Movement.Direction,
				Key:       a.Movement.Key(),
				Quantity:  a.Movement.Quantity.String(),
				UnitCost:  a.UnitCost.String(),
				Before:    [2]string{a.Before.Quantity.String(), a.Before.AverageCost.String()},
				After:     [2]string{a.After.Quantity.String(), a.After.AverageCost.String()},
			})
		}
	}

	err := t.audit.Record(ctx, audit.Entry{
		EntityType: string(tr.doc.Type),
		EntityID:   tr.doc.ID,
		Action:     string(tr.action),
		UserID:     appctx.GetUserID(ctx),
		Changes:    payload,
	})
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
