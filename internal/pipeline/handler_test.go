package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/logger"
	apperrors "labor/pkg/errors"
	"labor/pkg/models"
)

type stubIngester struct {
	outcome Outcome
	err     error
	got     *models.Delivery
}

func (s *stubIngester) Ingest(_ context.Context, d *models.Delivery) (Outcome, error) {
	s.got = d
	return s.outcome, s.err
}

func newTestRouter(ingester Ingester, maxBody int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(ingester, maxBody, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func TestIngestMessage_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		outcome    Outcome
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "stored", outcome: Outcome{Status: models.OutcomeStored, ResultID: "r-1"}, wantStatus: http.StatusCreated},
		{name: "duplicate", outcome: Outcome{Status: models.OutcomeDuplicate, ResultID: "r-1"}, wantStatus: http.StatusOK},
		{name: "quarantined", outcome: Outcome{Status: models.OutcomeQuarantined}, wantStatus: http.StatusAccepted},
		{name: "store failure", err: apperrors.ErrStoreFailure, wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_FAILURE"},
		{name: "invalid delivery", err: apperrors.ErrInvalidPayload, wantStatus: http.StatusBadRequest, wantCode: "INVALID_PAYLOAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubIngester{outcome: tt.outcome, err: tt.err}, 0)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/ldt/messages", strings.NewReader(validPayload))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			} else {
				assert.Equal(t, tt.outcome.Status, body["status"])
			}
		})
	}
}

func TestIngestMessage_PassesHeadersAndPayload(t *testing.T) {
	stub := &stubIngester{outcome: Outcome{Status: models.OutcomeStored}}
	router := newTestRouter(stub, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ldt/messages", strings.NewReader(validPayload))
	req.Header.Set("X-Message-ID", "msg-42")
	req.Header.Set("Idempotency-Key", "key-42")
	req.Header.Set("X-BSNR-Hint", "93860200")
	req.Header.Set("X-LANR-Hint", "7272005")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, stub.got)
	assert.Equal(t, models.SourceHTTP, stub.got.Source)
	assert.Equal(t, "msg-42", stub.got.MessageID)
	assert.Equal(t, "key-42", stub.got.IdempotencyKey)
	assert.Equal(t, "93860200", stub.got.BSNRHint)
	assert.Equal(t, "7272005", stub.got.LANRHint)
	assert.Equal(t, validPayload, string(stub.got.Payload))
	assert.False(t, stub.got.ReceivedAt.IsZero())
}

func TestIngestMessage_RejectsOversizedBody(t *testing.T) {
	stub := &stubIngester{}
	router := newTestRouter(stub, 16)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ldt/messages", strings.NewReader(validPayload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, stub.got)
}

func TestKafkaHandler_ReturnsOnlyFailuresWithoutOutcome(t *testing.T) {
	stored := KafkaHandler(&stubIngester{outcome: Outcome{Status: models.OutcomeQuarantined}})
	assert.NoError(t, stored(context.Background(), delivery(shortLine)))

	failing := KafkaHandler(&stubIngester{err: apperrors.ErrStoreFailure})
	err := failing(context.Background(), delivery(validPayload))
	assert.True(t, apperrors.IsStoreFailure(err))
}
