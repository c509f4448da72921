package memstore

import (
	"context"
	"slices"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/documents"
)

// DocumentRepo implements documents.Repository.
type DocumentRepo struct{ s *Store }

// Documents returns the document repository.
func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{s: s} }

var (
	_ documents.Repository = (*DocumentRepo)(nil)
	_ documents.DraftStore = (*DocumentRepo)(nil)
)

// AddDocument stores a draft document. Missing ids, line numbers, sequence
// and version are filled in; the stored copy is returned.
func (s *Store) AddDocument(doc entity.Document) entity.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.IsNil(doc.ID) {
		doc.ID = id.New()
	}
	if doc.Status == "" {
		doc.Status = entity.StatusDraft
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	s.st.docSeq++
	doc.Seq = s.st.docSeq
	doc.CreatedAt = s.now()
	doc.UpdatedAt = doc.CreatedAt

	doc.Lines = slices.Clone(doc.Lines)
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if id.IsNil(line.ID) {
			line.ID = id.New()
		}
		if line.LineNo == 0 {
			line.LineNo = i + 1
		}
		line.DocumentID = doc.ID
	}

	s.st.documents[doc.ID] = doc
	return cloneDocument(doc)
}

// Document returns the stored copy of a document.
func (s *Store) Document(docID id.ID) (entity.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.st.documents[docID]
	return cloneDocument(doc), ok
}

// Get implements documents.Repository.
func (r *DocumentRepo) Get(ctx context.Context, docID id.ID) (*entity.Document, error) {
	var out *entity.Document
	err := r.s.do(ctx, func(st *state) error {
		doc, ok := st.documents[docID]
		if !ok {
			return apperror.NewNotFound("document", docID)
		}
		c := cloneDocument(doc)
		out = &c
		return nil
	})
	return out, err
}

// GetForUpdate implements documents.Repository.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*entity.Document, error) {
	return r.Get(ctx, docID)
}

// UpdateStatus implements documents.Repository.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID id.ID, status entity.DocumentStatus, version int) error {
	return r.s.do(ctx, func(st *state) error {
		doc, ok := st.documents[docID]
		if !ok {
			return apperror.NewNotFound("document", docID)
		}
		if doc.Version != version {
			return apperror.NewConcurrentModification("document", docID)
		}
		doc.Status = status
		doc.Version++
		doc.UpdatedAt = r.s.now()
		st.documents[docID] = doc
		return nil
	})
}

// SaveAppliedCosts implements documents.Repository.
func (r *DocumentRepo) SaveAppliedCosts(ctx context.Context, docID id.ID, costs map[id.ID]types.Money) error {
	return r.s.do(ctx, func(st *state) error {
		doc, ok := st.documents[docID]
		if !ok {
			return apperror.NewNotFound("document", docID)
		}
		doc = cloneDocument(doc)
		for i := range doc.Lines {
			doc.Lines[i].AppliedCost = nil
			if cost, ok := costs[doc.Lines[i].ID]; ok {
				doc.Lines[i].AppliedCost = &cost
			}
		}
		st.documents[docID] = doc
		return nil
	})
}

// ListDependents implements documents.Repository.
func (r *DocumentRepo) ListDependents(ctx context.Context, docID id.ID) ([]entity.Ref, error) {
	var out []entity.Ref
	err := r.s.do(ctx, func(st *state) error {
		for _, doc := range st.documents {
			if doc.BaseDocumentID != nil && *doc.BaseDocumentID == docID && doc.Status.IsEffective() {
				out = append(out, doc.Ref())
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b entity.Ref) int { return id.Compare(a.ID, b.ID) })
	return out, err
}

// ListEffectiveStock implements documents.Repository.
func (r *DocumentRepo) ListEffectiveStock(ctx context.Context, itemIDs []id.ID) ([]*entity.Document, error) {
	return r.listEffective(ctx, func(doc *entity.Document) bool {
		if !doc.Type.IsStock() {
			return false
		}
		for _, line := range doc.Lines {
			if line.ItemID != nil && slices.Contains(itemIDs, *line.ItemID) {
				return true
			}
		}
		return false
	})
}

// ListEffectiveConversions implements documents.Repository.
func (r *DocumentRepo) ListEffectiveConversions(ctx context.Context) ([]*entity.Document, error) {
	return r.listEffective(ctx, func(doc *entity.Document) bool {
		return doc.Type == entity.DocItemConversion
	})
}

// StockItems implements documents.Repository.
func (r *DocumentRepo) StockItems(ctx context.Context) ([]id.ID, error) {
	docs, err := r.listEffective(ctx, func(doc *entity.Document) bool { return doc.Type.IsStock() })
	if err != nil {
		return nil, err
	}
	var items []id.ID
	for _, doc := range docs {
		for _, line := range doc.Lines {
			if line.ItemID != nil {
				items = append(items, *line.ItemID)
			}
		}
	}
	return id.SortedUnique(items), nil
}

func (r *DocumentRepo) listEffective(ctx context.Context, keep func(*entity.Document) bool) ([]*entity.Document, error) {
	var out []*entity.Document
	err := r.s.do(ctx, func(st *state) error {
		for _, doc := range st.documents {
			if !doc.Status.IsEffective() {
				continue
			}
			c := cloneDocument(doc)
			if keep(&c) {
				out = append(out, &c)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *entity.Document) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.Seq - b.Seq)
	})
	return out, err
}

// Create implements documents.DraftStore.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.documents[doc.ID]; ok {
			return apperror.NewDuplicate("document", "id", doc.ID.String())
		}
		for _, other := range st.documents {
			if other.Type == doc.Type && doc.Number != "" && other.Number == doc.Number {
				return apperror.NewDuplicate("document", "doc_number", doc.Number)
			}
		}
		st.docSeq++
		doc.Seq = st.docSeq
		st.documents[doc.ID] = cloneDocument(*doc)
		return nil
	})
}
