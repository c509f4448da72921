// Package document_repo provides the PostgreSQL document store used by the
// state machine and the recalculator.
package document_repo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/documents"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	documentsTable = "documents"
	linesTable     = "document_lines"
)

var (
	headerColumns = postgres.ExtractDBColumns[entity.Document]()
	lineColumns   = postgres.ExtractDBColumns[entity.DocumentLine]()

	// seq is assigned by the identity column.
	headerInsertColumns = slices.DeleteFunc(slices.Clone(headerColumns), func(c string) bool { return c == "seq" })

	effectiveStatuses = []entity.DocumentStatus{entity.StatusApproved, entity.StatusClosed}
)

// DocumentRepo implements documents.Repository and documents.DraftStore.
type DocumentRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	batch     *postgres.BatchExecutor
	builder   squirrel.StatementBuilderType
}

var (
	_ documents.Repository = (*DocumentRepo)(nil)
	_ documents.DraftStore = (*DocumentRepo)(nil)
)

// NewDocumentRepo creates the document repository.
func NewDocumentRepo(txManager *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		batch:     postgres.NewBatchExecutor(txManager),
		builder:   postgres.Builder(),
	}
}

// Create inserts a draft header and its lines, filling doc.Seq.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	data := postgres.Pick(postgres.StructToMap(doc), headerInsertColumns)
	sql, args, err := r.builder.Insert(documentsTable).
		SetMap(data).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&doc.Seq); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("document", "doc_number", doc.Number).WithCause(err)
		}
		return postgres.TranslateError(fmt.Errorf("insert document: %w", err), "document", doc.ID)
	}

	rows := make([][]any, 0, len(doc.Lines))
	for i := range doc.Lines {
		rows = append(rows, postgres.RowValues(&doc.Lines[i], lineColumns))
	}
	if _, err := r.inserter.CopyFromSlice(ctx, linesTable, lineColumns, rows); err != nil {
		return fmt.Errorf("insert document lines: %w", err)
	}
	return nil
}

// Get returns a document with its lines.
func (r *DocumentRepo) Get(ctx context.Context, docID id.ID) (*entity.Document, error) {
	return r.get(ctx, docID, false)
}

// GetForUpdate is Get with the header row locked.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*entity.Document, error) {
	return r.get(ctx, docID, true)
}

func (r *DocumentRepo) get(ctx context.Context, docID id.ID, lock bool) (*entity.Document, error) {
	q := r.builder.Select(headerColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"id": docID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var doc entity.Document
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &doc, sql, args...); err != nil {
		return nil, postgres.TranslateError(err, "document", docID)
	}

	docs := []*entity.Document{&doc}
	if err := r.loadLines(ctx, docs); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus sets the status when the stored version still matches.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID id.ID, status entity.DocumentStatus, version int) error {
	sql, args, err := r.builder.Update(documentsTable).
		Set("status", status).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": docID, "version": version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update document status: %w", err), "document", docID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.Get(ctx, docID); err != nil {
		return err
	}
	return apperror.NewConcurrentModification("document", docID)
}

// SaveAppliedCosts clears every line's cost and writes the given ones in one round-trip.
func (r *DocumentRepo) SaveAppliedCosts(ctx context.Context, docID id.ID, costs map[id.ID]types.Money) error {
	queries, err := postgres.QueueBuilt(nil, r.builder.Update(linesTable).
		Set("applied_cost", nil).
		Where(squirrel.Eq{"document_id": docID}))
	if err != nil {
		return fmt.Errorf("build clear: %w", err)
	}

	lineIDs := make([]id.ID, 0, len(costs))
	for lineID := range costs {
		lineIDs = append(lineIDs, lineID)
	}
	slices.SortFunc(lineIDs, id.Compare)

	for _, lineID := range lineIDs {
		queries, err = postgres.QueueBuilt(queries, r.builder.Update(linesTable).
			Set("applied_cost", costs[lineID]).
			Where(squirrel.Eq{"id": lineID, "document_id": docID}))
		if err != nil {
			return fmt.Errorf("build cost update: %w", err)
		}
	}

	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("save applied costs: %w", err)
	}
	return nil
}

// ListDependents returns effective documents based on docID.
func (r *DocumentRepo) ListDependents(ctx context.Context, docID id.ID) ([]entity.Ref, error) {
	sql, args, err := r.builder.Select("doc_type", "id", "doc_number", "status").
		From(documentsTable).
		Where(squirrel.Eq{"base_document_id": docID, "status": effectiveStatuses}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var refs []entity.Ref
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &refs, sql, args...); err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	return refs, nil
}

// ListEffectiveStock returns effective stock documents touching itemIDs in replay order.
func (r *DocumentRepo) ListEffectiveStock(ctx context.Context, itemIDs []id.ID) ([]*entity.Document, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	q := r.effective(entity.StockDocumentTypes).
		Where(squirrel.Expr(
			"EXISTS (SELECT 1 FROM "+linesTable+" l WHERE l.document_id = "+documentsTable+".id AND l.item_id = ANY(?::uuid[]))",
			uuidStrings(itemIDs)))
	return r.listWithLines(ctx, q)
}

// ListEffectiveConversions returns effective item conversions with their lines.
func (r *DocumentRepo) ListEffectiveConversions(ctx context.Context) ([]*entity.Document, error) {
	return r.listWithLines(ctx, r.effective([]entity.DocumentType{entity.DocItemConversion}))
}

// StockItems returns the distinct items on effective stock documents.
func (r *DocumentRepo) StockItems(ctx context.Context) ([]id.ID, error) {
	sql, args, err := r.builder.Select("DISTINCT l.item_id").
		From(linesTable + " l").
		Join(documentsTable + " d ON d.id = l.document_id").
		Where(squirrel.Eq{"d.doc_type": entity.StockDocumentTypes, "d.status": effectiveStatuses}).
		Where(squirrel.NotEq{"l.item_id": nil}).
		OrderBy("l.item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	return items, nil
}

func (r *DocumentRepo) effective(docTypes []entity.DocumentType) squirrel.SelectBuilder {
	return r.builder.Select(headerColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"doc_type": docTypes, "status": effectiveStatuses}).
		OrderBy("doc_date", "seq")
}

func (r *DocumentRepo) listWithLines(ctx context.Context, q squirrel.SelectBuilder) ([]*entity.Document, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var docs []*entity.Document
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &docs, sql, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if err := r.loadLines(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// loadLines fetches the lines of every document in one query.
func (r *DocumentRepo) loadLines(ctx context.Context, docs []*entity.Document) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[id.ID]*entity.Document, len(docs))
	ids := make([]id.ID, 0, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	sql, args, err := r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Expr("document_id = ANY(?::uuid[])", uuidStrings(ids))).
		OrderBy("document_id", "line_no").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	var lines []entity.DocumentLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return fmt.Errorf("load document lines: %w", err)
	}
	for _, l := range lines {
		if d, ok := byID[l.DocumentID]; ok {
			d.Lines = append(d.Lines, l)
		}
	}
	return nil
}

func uuidStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
