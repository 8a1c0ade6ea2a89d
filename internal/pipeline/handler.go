package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"labor/internal/constants"
	"labor/internal/logger"
	apperrors "labor/pkg/errors"
	"labor/pkg/models"
)

// Ingester is implemented by Service.
type Ingester interface {
	Ingest(ctx context.Context, d *models.Delivery) (Outcome, error)
}

type Handler struct {
	ingester     Ingester
	maxBodyBytes int64
	logger       logger.Logger
}

func NewHandler(ingester Ingester, maxBodyBytes int64, log logger.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = constants.DefaultMaxBodyBytes
	}
	return &Handler{ingester: ingester, maxBodyBytes: maxBodyBytes, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/ldt/messages", h.IngestMessage)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
}

// IngestMessage godoc
// @Summary      Ingest one raw LDT message
// @Description  Accepts the raw LDT payload as the request body. The response reports the terminal outcome.
// @Tags         ingestion
// @Accept       plain
// @Produce      json
// @Param        X-Message-ID     header  string  false  "Transport message id"
// @Param        Idempotency-Key  header  string  false  "Explicit idempotency key"
// @Param        X-BSNR-Hint      header  string  false  "BSNR known to the sender"
// @Param        X-LANR-Hint      header  string  false  "LANR known to the sender"
// @Param        payload          body    string  true   "Raw LDT payload"
// @Success      201  {object}  Outcome  "stored"
// @Success      200  {object}  Outcome  "duplicate"
// @Success      202  {object}  Outcome  "quarantined"
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      413  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /ldt/messages [post]
func (h *Handler) IngestMessage(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(c, apperrors.ErrPayloadTooLarge.WithDetail("limit_bytes", tooLarge.Limit))
			return
		}
		h.handleError(c, apperrors.ErrInvalidPayload.WithCause(err))
		return
	}

	d := models.NewDeliveryBuilder(models.SourceHTTP).
		WithMessageID(c.GetHeader(constants.HTTPHeaderMessageID)).
		WithIdempotencyKey(c.GetHeader(constants.HTTPHeaderIdempotencyKey)).
		WithHints(c.GetHeader(constants.HTTPHeaderBSNRHint), c.GetHeader(constants.HTTPHeaderLANRHint)).
		WithPayload(payload).
		WithReceivedAt(time.Now().UTC()).
		Build()

	outcome, err := h.ingester.Ingest(c.Request.Context(), d)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(StatusCode(outcome), outcome)
}

// StatusCode maps an outcome to the HTTP status reported to webhook callers.
func StatusCode(o Outcome) int {
	switch o.Status {
	case models.OutcomeStored:
		return http.StatusCreated
	case models.OutcomeQuarantined, models.OutcomePermanentlyFailed:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}
