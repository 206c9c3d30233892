package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meal-program/production-service/pkg/errors"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter() *gin.Engine {
	router := gin.New()
	Setup(router, DefaultConfig("production-service", discardLogger()))
	return router
}

type checkRequest struct {
	CheckType   string `json:"checkType" binding:"required,check_type"`
	Severity    string `json:"severity" binding:"omitempty,severity"`
	BatchNumber string `json:"batchNumber" binding:"omitempty,batch_number"`
	Score       *int   `json:"score" binding:"omitempty,gte=0,lte=100"`
}

func TestBindAndValidate_CustomValidators(t *testing.T) {
	router := newRouter()
	router.POST("/checks", func(c *gin.Context) {
		var req checkRequest
		if appErr := BindAndValidate(c, &req); appErr != nil {
			NewErrorResponder(c, discardLogger()).RespondWithAppError(appErr)
			return
		}
		c.JSON(http.StatusCreated, req)
	})

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"valid", `{"checkType":"HYGIENE","severity":"CRITICAL","batchNumber":"PROD-20250102-001"}`, http.StatusCreated, ""},
		{"bad check type", `{"checkType":"SMELL"}`, http.StatusBadRequest, "checkType"},
		{"bad severity", `{"checkType":"TASTE","severity":"URGENT"}`, http.StatusBadRequest, "severity"},
		{"bad batch number", `{"checkType":"TASTE","batchNumber":"PROD-2025-1"}`, http.StatusBadRequest, "batchNumber"},
		{"score out of range", `{"checkType":"TASTE","score":101}`, http.StatusBadRequest, "score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/checks", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.field != "" {
				var resp APIErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, apperrors.CodeValidationError, resp.Code)
				assert.Contains(t, resp.Details, tt.field)
			}
		})
	}
}

func TestActorAndCorrelation_PropagateToContext(t *testing.T) {
	router := newRouter()
	router.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"user":        logging.UserIDFromContext(ctx),
			"correlation": logging.CorrelationIDFromContext(ctx),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "supervisor-7")
	req.Header.Set(HeaderCorrelationID, "corr-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"supervisor-7","correlation":"corr-42"}`, w.Body.String())
	assert.Equal(t, "corr-42", w.Header().Get(HeaderCorrelationID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	router := newRouter()
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInternalError)
}

func TestContentType_RejectsNonJSONBody(t *testing.T) {
	router := newRouter()
	router.POST("/batches", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewBufferString("plannedPortions=10"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestNoRoute(t *testing.T) {
	router := newRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")
}

func TestReadinessCheck(t *testing.T) {
	router := gin.New()
	ready := true
	router.GET("/ready", ReadinessCheck("production-service", func(ctx context.Context) error {
		if !ready {
			return errors.New("mongo unreachable")
		}
		return nil
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	ready = false
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mongo unreachable")
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("production-service"))
	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/api/v1/batches/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", MetricsEndpoint(m))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batches/b-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/api/v1/batches/:id"`)
}

type kindedErr struct{ kind string }

func (e kindedErr) Error() string     { return "inventory service unreachable" }
func (e kindedErr) ErrorKind() string { return e.kind }

func TestErrorResponder_MapsKinds(t *testing.T) {
	tests := []struct {
		kind       string
		status     int
		retryAfter string
	}{
		{apperrors.KindDependency, http.StatusServiceUnavailable, "30"},
		{apperrors.KindConflict, http.StatusConflict, ""},
		{apperrors.KindNotFound, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			router := newRouter()
			router.GET("/batches/:id", func(c *gin.Context) {
				NewErrorResponder(c, discardLogger()).RespondWithError(kindedErr{kind: tt.kind})
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/b-1", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			var resp APIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "/batches/b-1", resp.Path)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}
