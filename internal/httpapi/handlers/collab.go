package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"otserver/internal/collab"
	"otserver/internal/ot"
	"otserver/internal/store"
)

type CollabHandler struct {
	Svc collab.Service
	Dir *store.DocumentRegistry
}

func NewCollabHandler(svc collab.Service, dir *store.DocumentRegistry) *CollabHandler {
	return &CollabHandler{Svc: svc, Dir: dir}
}

type submitOpReq struct {
	Op              ot.Operation `json:"operation"`
	ClientSequence  uint64       `json:"clientSequence"`
	ExpectedVersion *uint64      `json:"expectedVersion,omitempty"`
}

type submitBatchReq struct {
	Items           []collab.BatchItem `json:"operations"`
	ExpectedVersion *uint64            `json:"expectedVersion,omitempty"`
}

type diffReq struct {
	OldDocument string `json:"oldDocument"`
	NewDocument string `json:"newDocument"`
}

type rebaseReq struct {
	FromSequence uint64 `json:"fromSequence"`
}

type rollbackReq struct {
	TargetSequence uint64 `json:"targetSequence"`
}

type createDocReq struct {
	Title string `json:"title"`
}

// 统一错误出口：哨兵错误串就是对外错误码，包装后的全文放 message
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ot.ErrInvalidOperation):
		c.JSON(http.StatusBadRequest, gin.H{"code": ot.ErrInvalidOperation.Error(), "message": err.Error()})
	case errors.Is(err, ot.ErrPositionOutOfBounds):
		c.JSON(http.StatusConflict, gin.H{"code": ot.ErrPositionOutOfBounds.Error(), "message": err.Error()})
	case errors.Is(err, collab.ErrRevisionConflict):
		c.JSON(http.StatusConflict, gin.H{"code": collab.ErrRevisionConflict.Error(), "message": err.Error()})
	case errors.Is(err, collab.ErrDuplicateOrOutOfOrder):
		c.JSON(http.StatusConflict, gin.H{"code": collab.ErrDuplicateOrOutOfOrder.Error(), "message": err.Error()})
	case errors.Is(err, collab.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": collab.ErrDocumentNotFound.Error(), "message": err.Error()})
	case errors.Is(err, store.ErrTitleTaken):
		c.JSON(http.StatusConflict, gin.H{"code": store.ErrTitleTaken.Error(), "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": err.Error()})
	}
}

func (h *CollabHandler) SubmitOp(c *gin.Context) {
	var req submitOpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": err.Error()})
		return
	}
	res, err := h.Svc.ApplyOperation(c.Request.Context(), c.Param("docID"), c.GetUint64("userId"),
		req.Op, req.ClientSequence, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CollabHandler) SubmitBatch(c *gin.Context) {
	var req submitBatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": "operations must not be empty"})
		return
	}
	res, err := h.Svc.ApplyBatch(c.Request.Context(), c.Param("docID"), c.GetUint64("userId"),
		req.Items, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CollabHandler) Diff(c *gin.Context) {
	var req diffReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": err.Error()})
		return
	}
	ops := h.Svc.Diff(req.OldDocument, req.NewDocument)
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func (h *CollabHandler) Rebase(c *gin.Context) {
	var req rebaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": err.Error()})
		return
	}
	res, err := h.Svc.Rebase(c.Request.Context(), c.Param("docID"), req.FromSequence)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Rollback 破坏性操作，路由上挂 RequireRole("admin")
func (h *CollabHandler) Rollback(c *gin.Context) {
	var req rollbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": err.Error()})
		return
	}
	res, err := h.Svc.Rollback(c.Request.Context(), c.Param("docID"), req.TargetSequence)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CollabHandler) GetDocument(c *gin.Context) {
	doc, err := h.Svc.GetDocument(c.Request.Context(), c.Param("docID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *CollabHandler) CreateDocument(c *gin.Context) {
	var req createDocReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_JSON", "message": "title is required"})
		return
	}
	docID := uuid.NewString()
	if err := h.Dir.CreateDocument(c.Request.Context(), docID, c.GetUint64("userId"), req.Title); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "title": req.Title})
}
