package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/internal/infrastructure/clients"
	"github.com/meal-program/production-service/internal/infrastructure/eventing"
	"github.com/meal-program/production-service/internal/infrastructure/memory"
	"github.com/meal-program/production-service/pkg/cloudevents"
	"github.com/meal-program/production-service/pkg/kafka"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	logCfg := logging.DefaultConfig("production-service-test")
	logCfg.Output = io.Discard
	logger := logging.New(logCfg)
	m := metrics.New(metrics.DefaultConfig("handlers-test"))

	catalog := clients.NewStaticCatalog("USD")
	catalog.PutRecipe(&domain.MenuRecipe{
		MenuID:         "menu-1",
		CostPerServing: domain.MustMoney(250, "USD"),
		Lines: []domain.RecipeLine{
			{IngredientID: "rice", IngredientName: "Rice", QuantityPerPortion: 0.125, Unit: "kg"},
		},
	})
	require.NoError(t, catalog.PutUnitCost("rice", 180))

	store := memory.NewStore()
	service := application.NewProductionService(application.Dependencies{
		Batches:         store.Batches(),
		Checks:          store.QualityChecks(),
		Reconciliations: store.Reconciliations(),
		Sequence:        store.Sequence(),
		Tx:              store,
		Outbox:          eventing.NewOutboxRecorder(store.Outbox(), cloudevents.NewEventFactory("/production-service"), kafka.Topics.ProductionEvents),
		Recipes:         catalog,
		Costs:           catalog,
	}, application.DefaultConfig(), logger, m)

	return newRouter(service, func(context.Context) error { return nil }, logger, m)
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func do(t *testing.T, router *gin.Engine, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createBody() map[string]any {
	return map[string]any{
		"programId":       "program-1",
		"menuId":          "menu-1",
		"productionDate":  "2025-03-14",
		"plannedPortions": 100,
		"plannedStart":    "2025-03-14T06:00:00Z",
		"plannedEnd":      "2025-03-14T09:00:00Z",
		"headCook":        "cook-1",
	}
}

func createBatch(t *testing.T, router *gin.Engine) application.BatchDTO {
	t.Helper()
	rec := do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/batches",
		body:    createBody(),
		headers: map[string]string{"X-User-ID": "planner-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[application.BatchDTO](t, rec)
}

func transition(t *testing.T, router *gin.Engine, batchID string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/batches/" + batchID + "/transitions",
		body:    body,
		headers: map[string]string{"X-User-ID": "cook-1"},
	})
}

func TestCreateBatchHandler(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/batches",
		body:    createBody(),
		headers: map[string]string{"X-User-ID": "planner-1"},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decode[application.BatchDTO](t, rec)
	assert.Equal(t, "PROD-20250314-001", batch.BatchNumber)
	assert.Equal(t, "PLANNED", batch.Status)
	assert.Equal(t, "planner-1", batch.CreatedBy)
	assert.Equal(t, int64(25000), batch.EstimatedCost.Amount)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	assert.Equal(t, "/api/v1/batches/"+batch.ID, rec.Header().Get("Location"))
}

func TestCreateBatchHandler_AnonymousActor(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, request{method: http.MethodPost, path: "/api/v1/batches", body: createBody()})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, anonymousActor, decode[application.BatchDTO](t, rec).CreatedBy)
}

func TestCreateBatchHandler_Validation(t *testing.T) {
	tests := []struct {
		name  string
		patch map[string]any
		field string
	}{
		{"missing menu", map[string]any{"menuId": ""}, "menuId"},
		{"bad date", map[string]any{"productionDate": "14/03/2025"}, "productionDate"},
		{"zero portions", map[string]any{"plannedPortions": 0}, "plannedPortions"},
		{"end before start", map[string]any{"plannedEnd": "2025-03-14T05:00:00Z"}, "plannedEnd"},
		{"hot oven", map[string]any{"targetTemperature": 400}, "targetTemperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t)
			body := createBody()
			for k, v := range tt.patch {
				body[k] = v
			}

			rec := do(t, router, request{method: http.MethodPost, path: "/api/v1/batches", body: body})

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[map[string]any](t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp["code"])
			details, _ := resp["details"].(map[string]any)
			assert.Contains(t, details, tt.field)
		})
	}
}

func TestCreateBatchHandler_UnknownMenu(t *testing.T) {
	router := newTestRouter(t)
	body := createBody()
	body["menuId"] = "menu-404"

	rec := do(t, router, request{method: http.MethodPost, path: "/api/v1/batches", body: body})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBatchHandler(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	rec := do(t, router, request{method: http.MethodGet, path: "/api/v1/batches/" + created.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.BatchNumber, decode[application.BatchDTO](t, rec).BatchNumber)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches/missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", decode[map[string]any](t, rec)["code"])
}

func TestListBatchesHandler(t *testing.T) {
	router := newTestRouter(t)
	first := createBatch(t, router)
	createBatch(t, router)
	require.Equal(t, http.StatusOK, transition(t, router, first.ID, map[string]any{"status": "PREPARING"}).Code)

	rec := do(t, router, request{method: http.MethodGet, path: "/api/v1/batches?status=PREPARING"})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[application.BatchListDTO](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, first.ID, list.Items[0].ID)

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches?from=2025-03-14&to=2025-03-14&pageSize=1"})
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[application.BatchListDTO](t, rec)
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Items, 1)

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches?status=BOILING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateBatchHandler(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	rec := do(t, router, request{
		method:  http.MethodPatch,
		path:    "/api/v1/batches/" + created.ID,
		body:    map[string]any{"plannedPortions": 120},
		headers: map[string]string{"If-Match": `"1"`},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 120, decode[application.BatchDTO](t, rec).PlannedPortions)
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))

	rec = do(t, router, request{
		method:  http.MethodPatch,
		path:    "/api/v1/batches/" + created.ID,
		body:    map[string]any{"plannedPortions": 130},
		headers: map[string]string{"If-Match": `"1"`},
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = do(t, router, request{
		method: http.MethodPatch,
		path:   "/api/v1/batches/" + created.ID,
		body:   map[string]any{"plannedPortions": 130, "expectedVersion": 1},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionHandler_Lifecycle(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	require.Equal(t, http.StatusOK, transition(t, router, created.ID, map[string]any{"status": "PREPARING"}).Code)
	require.Equal(t, http.StatusOK, transition(t, router, created.ID, map[string]any{"status": "COOKING"}).Code)

	rec := transition(t, router, created.ID, map[string]any{"status": "QUALITY_CHECK", "actualPortions": 40})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[application.TransitionResultDTO](t, rec)
	assert.Equal(t, "QUALITY_CHECK", result.Batch.Status)
	assert.False(t, result.ReconciliationPending)
	require.NotNil(t, result.Reconciliation)
	assert.Equal(t, int64(900), result.Reconciliation.TotalCost.Amount)

	rec = do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/batches/" + created.ID + "/quality-checks",
		body:    map[string]any{"checkType": "TASTE", "parameter": "salt", "actualValue": "balanced", "passed": true, "score": 90},
		headers: map[string]string{"X-User-ID": "inspector-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "inspector-1", decode[application.QualityCheckDTO](t, rec).CheckedBy)

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches/" + created.ID + "/quality-summary"})
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[application.QualitySummaryDTO](t, rec)
	assert.Equal(t, 90, summary.OverallScore)
	require.NotNil(t, summary.Verdict)
	assert.True(t, *summary.Verdict)

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches/" + created.ID + "/quality-checks"})
	require.Equal(t, http.StatusOK, rec.Code)
	checks := decode[map[string][]application.QualityCheckDTO](t, rec)
	assert.Len(t, checks["items"], 1)

	rec = transition(t, router, created.ID, map[string]any{"status": "COMPLETED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "COMPLETED", decode[application.TransitionResultDTO](t, rec).Batch.Status)

	rec = do(t, router, request{method: http.MethodGet, path: "/api/v1/batches/" + created.ID + "/reconciliation"})
	require.Equal(t, http.StatusOK, rec.Code)
	reconciliation := decode[application.ReconciliationDTO](t, rec)
	assert.Equal(t, 40, reconciliation.ActualPortions)
	require.Len(t, reconciliation.Records, 1)
	assert.Equal(t, 5.0, reconciliation.Records[0].QuantityUsed)
}

func TestTransitionHandler_Rejections(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	tests := []struct {
		name    string
		body    map[string]any
		headers map[string]string
		status  int
		code    string
	}{
		{"skips a step", map[string]any{"status": "COOKING"}, nil, http.StatusConflict, "INVALID_TRANSITION"},
		{"unknown status", map[string]any{"status": "BOILING"}, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"short cancel reason", map[string]any{"status": "CANCELLED", "reason": "nope"}, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"stale If-Match", map[string]any{"status": "PREPARING"}, map[string]string{"If-Match": `"7"`}, http.StatusPreconditionFailed, "PRECONDITION_FAILED"},
		{"garbled If-Match", map[string]any{"status": "PREPARING"}, map[string]string{"If-Match": "latest"}, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, request{
				method:  http.MethodPost,
				path:    "/api/v1/batches/" + created.ID + "/transitions",
				body:    tt.body,
				headers: tt.headers,
			})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[map[string]any](t, rec)["code"])
		})
	}
}

func TestTransitionHandler_Cancel(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	rec := transition(t, router, created.ID, map[string]any{"status": "CANCELLED", "reason": "menu withdrawn by program"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decode[application.TransitionResultDTO](t, rec).Batch
	assert.Equal(t, "CANCELLED", batch.Status)
	assert.Empty(t, batch.AllowedTransitions)
}

func TestReconcileHandler(t *testing.T) {
	router := newTestRouter(t)
	created := createBatch(t, router)

	rec := do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/batches/" + created.ID + "/reconciliation",
		body:   map[string]any{"actualPortions": 40},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/batches/" + created.ID + "/reconciliation",
		body:   map[string]any{"actualPortions": 0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndContentType(t *testing.T) {
	router := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(t, router, request{method: http.MethodGet, path: "/health"}).Code)
	assert.Equal(t, http.StatusOK, do(t, router, request{method: http.MethodGet, path: "/ready"}).Code)
	assert.Equal(t, http.StatusOK, do(t, router, request{method: http.MethodGet, path: "/metrics"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", bytes.NewBufferString("programId=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
