package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/documents"
	"costledger/internal/infrastructure/http/v1/dto"
	"costledger/pkg/logger"
)

// DocumentReader loads a document with its lines.
type DocumentReader interface {
	Get(ctx context.Context, docID id.ID) (*entity.Document, error)
}

// DraftCreator stores new draft documents.
type DraftCreator interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
}

// DocumentTransitioner runs the document state machine.
type DocumentTransitioner interface {
	Transition(ctx context.Context, docType entity.DocumentType, docID id.ID, action entity.Action) (*documents.Result, error)
}

// DocumentHandler serves document drafts and transitions.
type DocumentHandler struct {
	*BaseHandler
	docs         DocumentReader
	drafts       DraftCreator
	transitioner DocumentTransitioner
	retries      int
	backoff      time.Duration
}

// NewDocumentHandler creates a document handler. A transition that fails with
// a retryable error is attempted up to retries more times.
func NewDocumentHandler(base *BaseHandler, docs DocumentReader, drafts DraftCreator, transitioner DocumentTransitioner, retries int) *DocumentHandler {
	return &DocumentHandler{
		BaseHandler:  base,
		docs:         docs,
		drafts:       drafts,
		transitioner: transitioner,
		retries:      retries,
		backoff:      25 * time.Millisecond,
	}
}

// Create handles POST /documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	created, err := h.drafts.Create(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, created)
}

// Get handles GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Transition handles POST /documents/:type/:id/:action
func (h *DocumentHandler) Transition(c *gin.Context) {
	docType, err := entity.ParseDocumentType(c.Param("type"))
	if err != nil {
		h.Error(c, err)
		return
	}
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	action, err := entity.ParseAction(c.Param("action"))
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.transition(c.Request.Context(), docType, docID, action)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

func (h *DocumentHandler) transition(ctx context.Context, docType entity.DocumentType, docID id.ID, action entity.Action) (*documents.Result, error) {
	for attempt := 0; ; attempt++ {
		result, err := h.transitioner.Transition(ctx, docType, docID, action)
		if err == nil || !apperror.IsRetryable(err) || attempt >= h.retries {
			return result, err
		}

		logger.Debug(ctx, "retrying document transition", "document_id", docID, "attempt", attempt+1, "error", err)
		t := time.NewTimer(h.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, err
		case <-t.C:
		}
	}
}
