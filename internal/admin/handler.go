// Package admin exposes the quarantine to operators over HTTP.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"labor/internal/constants"
	"labor/internal/logger"
	"labor/internal/pipeline"
	"labor/internal/quarantine"
	"labor/pkg/errors"
	"labor/pkg/models"
)

type QuarantineReader interface {
	List(ctx context.Context, filter quarantine.ListFilter) ([]*quarantine.Entry, int, error)
	Get(ctx context.Context, id string) (*quarantine.Entry, error)
}

type OwnerAssigner interface {
	RetryWithForcedOwner(ctx context.Context, entryID, ownerID string) (pipeline.Outcome, error)
}

type AuditReader interface {
	ByRawMessage(ctx context.Context, rawMessageID string) ([]models.AuditEvent, error)
}

type ListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=pending permanently_failed resolved"`
	Reason string `form:"reason"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type ListResponse struct {
	Items  []*quarantine.Entry `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type AssignOwnerRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

type Handler struct {
	entries  QuarantineReader
	assigner OwnerAssigner
	audit    AuditReader
	logger   logger.Logger
}

// NewHandler wires the admin routes. audit may be nil when no audit store is configured.
func NewHandler(entries QuarantineReader, assigner OwnerAssigner, audit AuditReader, log logger.Logger) *Handler {
	return &Handler{entries: entries, assigner: assigner, audit: audit, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		q := v1.Group("/quarantine")
		{
			q.GET("", h.ListEntries)
			q.GET("/:id", h.GetEntry)
			q.POST("/:id/assign", h.AssignOwner)
		}

		v1.GET("/raw-messages/:id/audit", h.GetAuditTrail)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// ListEntries godoc
// @Summary      List quarantine entries
// @Description  Lists quarantine entries, newest first
// @Tags         quarantine
// @Produce      json
// @Param        status  query     string  false  "pending, permanently_failed or resolved"
// @Param        reason  query     string  false  "decode_error or empty_message"
// @Param        limit   query     int     false  "Page size (max 1000)"
// @Param        offset  query     int     false  "Page offset"
// @Success      200     {object}  ListResponse
// @Failure      400     {object}  errors.ErrorResponse
// @Failure      503     {object}  errors.ErrorResponse
// @Router       /quarantine [get]
func (h *Handler) ListEntries(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if q.Limit == 0 {
		q.Limit = constants.DefaultLimit
	}

	items, total, err := h.entries.List(c.Request.Context(), quarantine.ListFilter{
		Status: quarantine.Status(q.Status),
		Reason: q.Reason,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	if items == nil {
		items = []*quarantine.Entry{}
	}

	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset})
}

// GetEntry godoc
// @Summary      Get a quarantine entry
// @Tags         quarantine
// @Produce      json
// @Param        id   path      string  true  "Entry ID"
// @Success      200  {object}  quarantine.Entry
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /quarantine/{id} [get]
func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.entries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// AssignOwner godoc
// @Summary      Replay an entry with a forced owner
// @Description  Replays the quarantined message and assigns the result to the given owner. Works on permanently failed entries too.
// @Tags         quarantine
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Entry ID"
// @Param        request  body      AssignOwnerRequest  true  "Owner to assign"
// @Success      200      {object}  pipeline.Outcome
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      404      {object}  errors.ErrorResponse
// @Failure      409      {object}  errors.ErrorResponse
// @Failure      503      {object}  errors.ErrorResponse
// @Router       /quarantine/{id}/assign [post]
func (h *Handler) AssignOwner(c *gin.Context) {
	var req AssignOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	outcome, err := h.assigner.RetryWithForcedOwner(c.Request.Context(), c.Param("id"), req.OwnerID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// GetAuditTrail godoc
// @Summary      Audit trail of a raw message
// @Tags         audit
// @Produce      json
// @Param        id   path      string  true  "Raw message ID"
// @Success      200  {array}   models.AuditEvent
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /raw-messages/{id}/audit [get]
func (h *Handler) GetAuditTrail(c *gin.Context) {
	if h.audit == nil {
		h.handleError(c, errors.ErrServiceUnavailable.WithDetail("reason", "audit store disabled"))
		return
	}

	events, err := h.audit.ByRawMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, errors.ErrStoreFailure.WithCause(err))
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	c.JSON(http.StatusOK, events)
}
