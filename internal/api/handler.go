// Package api serves the proof and verification endpoints and the admin
// stamping hooks over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/stamp"
	"github.com/jmerrifield20/ProofStamp/internal/verify"
	"go.uber.org/zap"
)

// Verifier is the read side used by the public routes.
type Verifier interface {
	Verify(ctx context.Context, url string) (*verify.Result, error)
	Proof(ctx context.Context, id int64) (*verify.Proof, error)
}

// Stamper is the write side used by the admin routes.
type Stamper interface {
	OnTransition(ctx context.Context, id int64, oldStatus, newStatus string) (*stamp.Result, error)
	StampMany(ctx context.Context, ids []int64) stamp.Tally
}

// Handler exposes the proof, verify and admin stamping endpoints.
type Handler struct {
	verifier Verifier
	stamper  Stamper
	logger   *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(verifier Verifier, stamper Stamper, logger *zap.Logger) *Handler {
	return &Handler{verifier: verifier, stamper: stamper, logger: logger}
}

// Register mounts the public routes on the given router group. verifyMW
// runs only in front of /verify, which fetches remote documents.
func (h *Handler) Register(rg *gin.RouterGroup, verifyMW ...gin.HandlerFunc) {
	rg.GET("/proof/:id", h.GetProof)
	rg.GET("/verify", append(verifyMW, h.Verify)...)
}

// RegisterAdmin mounts the admin routes; callers attach the auth middleware
// to rg.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.POST("/transition", h.Transition)
	rg.POST("/stamp", h.StampMany)
}

// GetProof handles GET /proof/:id.
func (h *Handler) GetProof(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	p, err := h.verifier.Proof(c.Request.Context(), id)
	if errors.Is(err, content.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.logger.Error("proof lookup failed", zap.Int64("document_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load proof"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Verify handles GET /verify?url=...
func (h *Handler) Verify(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url"})
		return
	}

	res, err := h.verifier.Verify(c.Request.Context(), url)
	if err != nil {
		h.logger.Error("verification failed", zap.String("url", url), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type transitionRequest struct {
	ID        int64  `json:"id" binding:"required"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status" binding:"required"`
}

// Transition handles POST /admin/transition, the publish lifecycle hook.
func (h *Handler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.stamper.OnTransition(c.Request.Context(), req.ID, req.OldStatus, req.NewStatus)
	switch {
	case err == nil && res == nil:
		c.JSON(http.StatusOK, gin.H{"stamped": false})
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"stamped": true, "mode": verify.ModeLedger, "id": res.DocumentID, "hash": res.Hash, "commit": res.Receipt})
	case errors.Is(err, content.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
	case res != nil && errors.Is(err, ledger.ErrNotConfigured):
		c.JSON(http.StatusOK, gin.H{"stamped": true, "mode": verify.ModeLocal, "id": res.DocumentID, "hash": res.Hash})
	case res != nil:
		h.logger.Warn("ledger stamp failed", zap.Int64("document_id", req.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ledger write failed", "mode": verify.ModeLocal, "id": res.DocumentID, "hash": res.Hash})
	default:
		h.logger.Error("stamp failed", zap.Int64("document_id", req.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stamp failed"})
	}
}

type stampRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

// StampMany handles POST /admin/stamp, the bulk stamping action.
func (h *Handler) StampMany(c *gin.Context) {
	var req stampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.stamper.StampMany(c.Request.Context(), req.IDs))
}
