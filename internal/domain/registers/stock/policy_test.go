package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

func TestCELPolicy(t *testing.T) {
	policy, err := NewCELPolicy(`backdated || doc_type == "InventoryAdjustment" || resulting_qty > -5.0`)
	require.NoError(t, err)

	tests := []struct {
		name  string
		event NegativeStockEvent
		want  bool
	}{
		{
			name:  "backdated shipment",
			event: NegativeStockEvent{DocType: entity.DocShipment, Backdated: true, ResultingQty: types.NewQuantity(-10)},
			want:  true,
		},
		{
			name:  "adjustment",
			event: NegativeStockEvent{DocType: entity.DocInventoryAdjustment, ResultingQty: types.NewQuantity(-10)},
			want:  true,
		},
		{
			name:  "small shortage",
			event: NegativeStockEvent{DocType: entity.DocShipment, ResultingQty: types.MustQuantity("-0.5")},
			want:  true,
		},
		{
			name:  "current shipment far below zero",
			event: NegativeStockEvent{DocType: entity.DocShipment, ResultingQty: types.NewQuantity(-10), ItemID: id.New()},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Tolerate(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCELPolicy_Invalid(t *testing.T) {
	_, err := NewCELPolicy(`doc_type ==`)
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))

	_, err = NewCELPolicy(`resulting_qty + 1.0`)
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))
}

func TestPolicyFromRule_DefaultTolerates(t *testing.T) {
	p, err := PolicyFromRule("")
	require.NoError(t, err)
	assert.IsType(t, AlwaysTolerate{}, p)
}
