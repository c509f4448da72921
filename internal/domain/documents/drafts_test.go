package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/types"
	"costledger/internal/domain/documents"
	"costledger/internal/domain/registers/stock"
)

func TestDrafts_Create(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	drafts := documents.NewDrafts(f.store, f.store.Documents(), f.store)
	ctx := context.Background()

	doc, err := drafts.Create(ctx, &entity.Document{
		Type:        entity.DocReceiving,
		Date:        day(2),
		TotalAmount: types.MustMoney("1000"),
		Lines:       []entity.DocumentLine{line(itemX, locA, 10, "100")},
	})
	require.NoError(t, err)
	assert.Equal(t, "RCV-2026-00001", doc.Number)
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 1, doc.Lines[0].LineNo)
	assert.Equal(t, doc.ID, doc.Lines[0].DocumentID)

	stored, ok := f.store.Document(doc.ID)
	require.True(t, ok)
	assert.Equal(t, doc.Seq, stored.Seq)

	// A stored draft goes straight into the state machine.
	f.approve(t, stored)
	f.assertPosition(t, itemX, locA, 10, "100")
}

func TestDrafts_Rejects(t *testing.T) {
	f := newFixture(t, stock.AlwaysTolerate{})
	drafts := documents.NewDrafts(f.store, f.store.Documents(), f.store)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  entity.Document
	}{
		{"unknown type", entity.Document{Type: "Quote", Date: day(1)}},
		{"missing date", entity.Document{Type: entity.DocShipment}},
		{"approved status", entity.Document{Type: entity.DocShipment, Date: day(1), Status: entity.StatusApproved}},
		{"negative shipment", entity.Document{
			Type:  entity.DocShipment,
			Date:  day(1),
			Lines: []entity.DocumentLine{line(itemX, locA, -1, "0")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := drafts.Create(ctx, &tt.doc)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "unexpected error: %v", err)
		})
	}

	_, err := drafts.Create(ctx, &entity.Document{Type: entity.DocSalesOrder, Date: day(1), Number: "SO-1"})
	require.NoError(t, err)
	_, err = drafts.Create(ctx, &entity.Document{Type: entity.DocSalesOrder, Date: day(1), Number: "SO-1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}
