package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	appctx "costledger/internal/core/context"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/documents"
	v1 "costledger/internal/infrastructure/http/v1"
	"costledger/internal/infrastructure/metrics"
	"costledger/pkg/logger"
)

type fakeDocs struct {
	mu      sync.Mutex
	docs    map[id.ID]*entity.Document
	failN   int
	calls   int
	users   []string
	lastErr error
	panics  bool
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[id.ID]*entity.Document{}}
}

func (f *fakeDocs) Get(_ context.Context, docID id.ID) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("document", docID.String())
	}
	return doc, nil
}

func (f *fakeDocs) Create(_ context.Context, doc *entity.Document) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = id.New()
	doc.Status = entity.StatusDraft
	doc.Number = "RCV-1"
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeDocs) Transition(ctx context.Context, docType entity.DocumentType, docID id.ID, action entity.Action) (*documents.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.users = append(f.users, appctx.GetUserID(ctx))
	if f.panics {
		panic("nil ledger row")
	}
	if f.calls <= f.failN {
		return nil, apperror.NewConcurrentModification("stock scope", docID.String())
	}
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return &documents.Result{DocumentID: docID, DocumentType: docType, Action: action, Status: entity.StatusApproved}, nil
}

func newRouter(t *testing.T, docs *fakeDocs, retries int) http.Handler {
	t.Helper()
	return v1.NewRouter(v1.RouterConfig{
		Logger:            logger.Default(),
		Documents:         docs,
		Drafts:            docs,
		Transitioner:      docs,
		TransitionRetries: retries,
		Metrics:           metrics.NewCollector(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_TransitionRetriesConcurrentModification(t *testing.T) {
	docs := newFakeDocs()
	docs.failN = 2
	h := newRouter(t, docs, 3)

	docID := id.New()
	w := do(t, h, http.MethodPost, "/api/v1/documents/Receiving/"+docID.String()+"/approve", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res documents.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, docID, res.DocumentID)
	assert.Equal(t, entity.StatusApproved, res.Status)
	assert.Equal(t, 3, docs.calls)
	assert.Equal(t, []string{"u-42", "u-42", "u-42"}, docs.users)
}

func TestRouter_TransitionGivesUpAfterRetries(t *testing.T) {
	docs := newFakeDocs()
	docs.failN = 10
	h := newRouter(t, docs, 1)

	w := do(t, h, http.MethodPost, "/api/v1/documents/Shipment/"+id.New().String()+"/approve", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, docs.calls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeConcurrentModification, body["code"])
}

func TestRouter_BusinessErrorIsNotRetried(t *testing.T) {
	docs := newFakeDocs()
	docs.lastErr = apperror.NewUnbalancedJournal(types.MustMoney("1000"), types.MustMoney("900"))
	h := newRouter(t, docs, 3)

	w := do(t, h, http.MethodPost, "/api/v1/documents/Receiving/"+id.New().String()+"/post", "")
	assert.Equal(t, 1, docs.calls)
	assert.GreaterOrEqual(t, w.Code, 400)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeUnbalancedJournal, body["code"])
}

func TestRouter_RejectsUnknownTypeAndAction(t *testing.T) {
	docs := newFakeDocs()
	h := newRouter(t, docs, 0)

	w := do(t, h, http.MethodPost, "/api/v1/documents/Nope/"+id.New().String()+"/approve", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/documents/Receiving/"+id.New().String()+"/explode", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/documents/Receiving/not-an-id/approve", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, docs.calls)
}

func TestRouter_CreateAndGetDocument(t *testing.T) {
	docs := newFakeDocs()
	h := newRouter(t, docs, 0)

	item, loc := id.New(), id.New()
	body := `{"type":"Receiving","date":"2026-03-01T00:00:00Z","locationId":"` + loc.String() +
		`","totalAmount":"1000","lines":[{"itemId":"` + item.String() + `","quantity":"10","unitCost":"100"}]}`
	w := do(t, h, http.MethodPost, "/api/v1/documents", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created entity.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, entity.StatusDraft, created.Status)
	require.Len(t, created.Lines, 1)

	w = do(t, h, http.MethodGet, "/api/v1/documents/"+created.ID.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/documents/"+id.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	h := newRouter(t, newFakeDocs(), 0)

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_PanicRendersInternalError(t *testing.T) {
	docs := newFakeDocs()
	docs.panics = true
	h := newRouter(t, docs, 3)

	w := do(t, h, http.MethodPost, "/api/v1/documents/Receiving/"+id.New().String()+"/approve", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, docs.calls, "a panic is not retried")

	var body struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.NotContains(t, body.Message, "nil ledger row")
	assert.Equal(t, w.Header().Get("X-Request-ID"), body.Details["request_id"])
}

func TestRouter_Live(t *testing.T) {
	h := newRouter(t, newFakeDocs(), 0)

	w := do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
