package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/errors"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/middleware"
)

const (
	dateLayout     = "2006-01-02"
	anonymousActor = "anonymous"
)

// CreateBatchRequest is the request body for scheduling a batch
type CreateBatchRequest struct {
	ProgramID         string    `json:"programId" binding:"required"`
	MenuID            string    `json:"menuId" binding:"required"`
	ProductionDate    string    `json:"productionDate" binding:"required,datetime=2006-01-02"`
	PlannedPortions   int       `json:"plannedPortions" binding:"required,min=1"`
	PlannedStart      time.Time `json:"plannedStart" binding:"required"`
	PlannedEnd        time.Time `json:"plannedEnd" binding:"required,gtfield=PlannedStart"`
	HeadCook          string    `json:"headCook" binding:"required"`
	AssistantCooks    []string  `json:"assistantCooks" binding:"omitempty,max=10,dive,required"`
	Supervisor        *string   `json:"supervisor"`
	TargetTemperature *float64  `json:"targetTemperature" binding:"omitempty,gte=-50,lte=300"`
}

// UpdateBatchRequest is the request body for editing a PLANNED batch
type UpdateBatchRequest struct {
	ExpectedVersion   *int64     `json:"expectedVersion"`
	PlannedPortions   *int       `json:"plannedPortions" binding:"omitempty,min=1"`
	PlannedStart      *time.Time `json:"plannedStart"`
	PlannedEnd        *time.Time `json:"plannedEnd"`
	HeadCook          *string    `json:"headCook"`
	AssistantCooks    []string   `json:"assistantCooks" binding:"omitempty,max=10,dive,required"`
	Supervisor        *string    `json:"supervisor"`
	TargetTemperature *float64   `json:"targetTemperature" binding:"omitempty,gte=-50,lte=300"`
}

// TransitionRequest is the request body for a status change
type TransitionRequest struct {
	Status            string   `json:"status" binding:"required,batch_status"`
	ExpectedVersion   *int64   `json:"expectedVersion"`
	ActualPortions    *int     `json:"actualPortions"`
	ActualTemperature *float64 `json:"actualTemperature"`
	WasteAmount       *float64 `json:"wasteAmount"`
	WasteNotes        *string  `json:"wasteNotes"`
	QualityPassed     *bool    `json:"qualityPassed"`
	Reason            *string  `json:"reason"`
}

// QualityCheckRequest is the request body for recording an inspection
type QualityCheckRequest struct {
	CheckType       string     `json:"checkType" binding:"required,check_type"`
	Parameter       string     `json:"parameter" binding:"required"`
	ExpectedValue   *string    `json:"expectedValue"`
	ActualValue     string     `json:"actualValue" binding:"required"`
	Passed          *bool      `json:"passed" binding:"required"`
	Score           *int       `json:"score" binding:"omitempty,min=0,max=100"`
	Severity        *string    `json:"severity" binding:"omitempty,severity"`
	Notes           string     `json:"notes"`
	Recommendations string     `json:"recommendations"`
	ActionRequired  bool       `json:"actionRequired"`
	ActionTaken     *string    `json:"actionTaken"`
	CheckTime       *time.Time `json:"checkTime"`
}

// ReconcileRequest is the request body for an explicit reconciliation
type ReconcileRequest struct {
	ActualPortions int `json:"actualPortions" binding:"required,min=1"`
}

// ListBatchesRequest holds the list query parameters
type ListBatchesRequest struct {
	Status                string `form:"status" binding:"omitempty,batch_status"`
	ProgramID             string `form:"programId"`
	MenuID                string `form:"menuId"`
	From                  string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To                    string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	ReconciliationPending *bool  `form:"reconciliationPending"`
	Page                  int    `form:"page" binding:"omitempty,min=1"`
	PageSize              int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

func registerRoutes(v1 *gin.RouterGroup, service *application.ProductionService, logger *logging.Logger) {
	batches := v1.Group("/batches")
	{
		batches.POST("", createBatchHandler(service, logger))
		batches.GET("", listBatchesHandler(service, logger))
		batches.GET("/:id", getBatchHandler(service, logger))
		batches.PATCH("/:id", updateBatchHandler(service, logger))
		batches.POST("/:id/transitions", transitionHandler(service, logger))
		batches.POST("/:id/quality-checks", addQualityCheckHandler(service, logger))
		batches.GET("/:id/quality-checks", listQualityChecksHandler(service, logger))
		batches.GET("/:id/quality-summary", qualitySummaryHandler(service, logger))
		batches.POST("/:id/reconciliation", reconcileHandler(service, logger))
		batches.GET("/:id/reconciliation", getReconciliationHandler(service, logger))
	}
}

// actor is the user named by X-User-ID. Authentication happens upstream.
func actor(c *gin.Context) string {
	if userID := logging.UserIDFromContext(c.Request.Context()); userID != "" {
		return userID
	}
	return anonymousActor
}

func setETag(c *gin.Context, version int64) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// ifMatchVersion parses If-Match. A missing header or "*" yields nil.
func ifMatchVersion(c *gin.Context) (*int64, *errors.AppError) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.ErrBadRequest("If-Match must carry a batch version")
	}
	return &v, nil
}

// expectedVersion prefers If-Match over the body field
func expectedVersion(c *gin.Context, body *int64) (*int64, bool, *errors.AppError) {
	header, appErr := ifMatchVersion(c)
	if appErr != nil {
		return nil, false, appErr
	}
	if header != nil {
		return header, true, nil
	}
	return body, false, nil
}

func respondError(responder *middleware.ErrorResponder, err error, fromIfMatch bool) {
	if fromIfMatch && domain.IsConflict(err) {
		responder.RespondWithAppError(errors.ErrPreconditionFailed(err.Error()).Wrap(err))
		return
	}
	responder.RespondWithError(err)
}

func createBatchHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req CreateBatchRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		productionDate, _ := time.Parse(dateLayout, req.ProductionDate)

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"batch.program_id":       req.ProgramID,
			"batch.menu_id":          req.MenuID,
			"batch.planned_portions": req.PlannedPortions,
		})

		result, err := service.CreateBatch(c.Request.Context(), application.CreateBatchCommand{
			ProgramID:         req.ProgramID,
			MenuID:            req.MenuID,
			ProductionDate:    productionDate,
			PlannedPortions:   req.PlannedPortions,
			PlannedStart:      req.PlannedStart,
			PlannedEnd:        req.PlannedEnd,
			HeadCook:          req.HeadCook,
			AssistantCooks:    req.AssistantCooks,
			Supervisor:        req.Supervisor,
			TargetTemperature: req.TargetTemperature,
			CreatedBy:         actor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		setETag(c, result.Version)
		c.Header("Location", "/api/v1/batches/"+result.ID)
		c.JSON(http.StatusCreated, result)
	}
}

func getBatchHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.GetBatch(c.Request.Context(), application.GetBatchQuery{BatchID: c.Param("id")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		setETag(c, result.Version)
		c.JSON(http.StatusOK, result)
	}
}

func listBatchesHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req ListBatchesRequest
		if appErr := middleware.BindQuery(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		query := application.ListBatchesQuery{
			Status:                req.Status,
			ProgramID:             req.ProgramID,
			MenuID:                req.MenuID,
			ReconciliationPending: req.ReconciliationPending,
			Page:                  req.Page,
			PageSize:              req.PageSize,
		}
		if req.From != "" {
			from, _ := time.Parse(dateLayout, req.From)
			query.ProductionDateFrom = &from
		}
		if req.To != "" {
			to, _ := time.Parse(dateLayout, req.To)
			query.ProductionDateTo = &to
		}

		result, err := service.ListBatches(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func updateBatchHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req UpdateBatchRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		version, fromIfMatch, appErr := expectedVersion(c, req.ExpectedVersion)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.UpdateBatch(c.Request.Context(), application.UpdateBatchCommand{
			BatchID:           c.Param("id"),
			ExpectedVersion:   version,
			PlannedPortions:   req.PlannedPortions,
			PlannedStart:      req.PlannedStart,
			PlannedEnd:        req.PlannedEnd,
			HeadCook:          req.HeadCook,
			AssistantCooks:    req.AssistantCooks,
			Supervisor:        req.Supervisor,
			TargetTemperature: req.TargetTemperature,
			UpdatedBy:         actor(c),
		})
		if err != nil {
			respondError(responder, err, fromIfMatch)
			return
		}

		setETag(c, result.Version)
		c.JSON(http.StatusOK, result)
	}
}

func transitionHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req TransitionRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		version, fromIfMatch, appErr := expectedVersion(c, req.ExpectedVersion)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"batch.id":     c.Param("id"),
			"batch.target": req.Status,
		})

		result, err := service.Transition(c.Request.Context(), application.TransitionCommand{
			BatchID:           c.Param("id"),
			TargetStatus:      req.Status,
			ExpectedVersion:   version,
			ActualPortions:    req.ActualPortions,
			ActualTemperature: req.ActualTemperature,
			WasteAmount:       req.WasteAmount,
			WasteNotes:        req.WasteNotes,
			QualityPassed:     req.QualityPassed,
			Reason:            req.Reason,
			Actor:             actor(c),
		})
		if err != nil {
			respondError(responder, err, fromIfMatch)
			return
		}

		setETag(c, result.Batch.Version)
		c.JSON(http.StatusOK, result)
	}
}

func addQualityCheckHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req QualityCheckRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.AddQualityCheck(c.Request.Context(), application.AddQualityCheckCommand{
			BatchID:         c.Param("id"),
			CheckType:       req.CheckType,
			Parameter:       req.Parameter,
			ExpectedValue:   req.ExpectedValue,
			ActualValue:     req.ActualValue,
			Passed:          *req.Passed,
			Score:           req.Score,
			Severity:        req.Severity,
			Notes:           req.Notes,
			Recommendations: req.Recommendations,
			ActionRequired:  req.ActionRequired,
			ActionTaken:     req.ActionTaken,
			CheckTime:       req.CheckTime,
			CheckedBy:       actor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

func listQualityChecksHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.ListQualityChecks(c.Request.Context(), c.Param("id"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": result})
	}
}

func qualitySummaryHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.GetQualitySummary(c.Request.Context(), c.Param("id"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func reconcileHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req ReconcileRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.Reconcile(c.Request.Context(), application.ReconcileCommand{
			BatchID:        c.Param("id"),
			ActualPortions: req.ActualPortions,
			Actor:          actor(c),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func getReconciliationHandler(service *application.ProductionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.GetReconciliation(c.Request.Context(), c.Param("id"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
