package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/domain/registers/stock"
)

func TestCollector_TransitionFinished(t *testing.T) {
	c := NewCollector()

	c.TransitionFinished(entity.DocShipment, entity.ActionApprove, 20*time.Millisecond, nil)
	c.TransitionFinished(entity.DocShipment, entity.ActionApprove, 5*time.Millisecond, nil)
	c.TransitionFinished(entity.DocShipment, entity.ActionApprove, time.Millisecond, apperror.NewConfiguration("no cogs account"))
	c.TransitionFinished(entity.DocReceiving, entity.ActionUnapprove, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("Shipment", "approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Shipment", "approve", apperror.CodeConfiguration)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Receiving", "unapprove", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.transitionSeconds))
}

func TestCollector_AnomaliesRecorded(t *testing.T) {
	c := NewCollector()

	c.AnomaliesRecorded(entity.DocShipment, 0)
	c.AnomaliesRecorded(entity.DocShipment, 3)
	c.AnomaliesRecorded(entity.DocLocationTransfer, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.anomalies.WithLabelValues("Shipment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.anomalies.WithLabelValues("LocationTransfer")))
}

func TestCollector_RecalcProgress(t *testing.T) {
	c := NewCollector()

	var seen []stock.Progress
	fn := c.RecalcProgress(func(p stock.Progress) { seen = append(seen, p) })
	fn(stock.Progress{GroupsDone: 1, GroupsTotal: 4, Items: 2})
	fn(stock.Progress{GroupsDone: 2, GroupsTotal: 4, Items: 5})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.recalcDone))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.recalcTotal))
	assert.Len(t, seen, 2)

	assert.NotPanics(t, func() { c.RecalcProgress(nil)(stock.Progress{GroupsTotal: 1}) })
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.TransitionFinished(entity.DocInventoryAdjustment, entity.ActionApprove, time.Millisecond, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), MetricTransitionsTotal))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
