package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/verenigingen/boekhouden-import/internal/analyzer"
	"github.com/verenigingen/boekhouden-import/internal/httputil"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

// RegisterRunRoutes registers the routes for import runs.
func (co Controller) RegisterRunRoutes(r *gin.RouterGroup) {
	r.POST("", co.CreateRun)
	r.GET("", co.GetRuns)
	r.GET("/:id", co.GetRun)
	r.GET("/:id/failures", co.GetRunFailures)
	r.GET("/:id/analysis", co.GetRunAnalysis)
	r.POST("/:id/cancel", co.CancelRun)
}

// RunCreate is the request body for starting an import run.
type RunCreate struct {
	Company       string `json:"company"`
	DateFrom      string `json:"dateFrom" example:"2019-01-01"`
	DateTo        string `json:"dateTo" example:"2019-12-31"`
	MutationTypes string `json:"mutationTypes" example:"0,2,1,3"` // empty means all
}

type RunResponse struct {
	Data models.ImportRun `json:"data"`
}

type RunListResponse struct {
	Data []models.ImportRun `json:"data"`
}

// CreateRun queues a new import run and starts the worker. Only one run per
// company may be active; a second request is rejected.
func (co Controller) CreateRun(c *gin.Context) {
	var create RunCreate
	if err := c.ShouldBindJSON(&create); err != nil {
		httputil.BindError(c, err)
		return
	}

	if create.Company == "" {
		create.Company = co.Config.DefaultCompany
	}

	run := models.ImportRun{
		Company:       create.Company,
		Status:        models.RunQueued,
		MutationTypes: create.MutationTypes,
	}

	var err error
	if run.DateFrom, err = parseDay(create.DateFrom); err != nil {
		httputil.BindError(c, err)
		return
	}
	if run.DateTo, err = parseDay(create.DateTo); err != nil {
		httputil.BindError(c, err)
		return
	}

	// The worker re-checks under the write lock; this check only gives the
	// caller an immediate 409 instead of a failed run
	var active models.ImportRun
	err = co.DB.
		Where("company = ? AND status IN (?)", run.Company, []models.RunStatus{models.RunQueued, models.RunRunning}).
		First(&active).Error
	if err == nil {
		httputil.ErrorHandler(c, models.ErrRunActiveForCompany)
		return
	}

	if err := co.DB.Create(&run).Error; err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	// Render from a copy: the worker mutates the run as it progresses
	response := RunResponse{Data: run}

	go func() {
		if err := co.Runner.Execute(context.Background(), &run); err != nil {
			log.Error().Err(err).Str("run", run.ID.String()).Msg("import run failed")
		}
	}()

	c.JSON(http.StatusCreated, response)
}

// GetRuns lists runs, newest first. The company and status query parameters
// filter.
func (co Controller) GetRuns(c *gin.Context) {
	query := co.DB.Order("created_at DESC")

	if company := c.Query("company"); company != "" {
		query = query.Where("company = ?", company)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var runs []models.ImportRun
	if err := query.Find(&runs).Error; err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	// Always return a list, even when empty
	if len(runs) == 0 {
		runs = make([]models.ImportRun, 0)
	}

	c.JSON(http.StatusOK, RunListResponse{Data: runs})
}

// GetRun returns a single run.
func (co Controller) GetRun(c *gin.Context) {
	run, ok := co.run(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, RunResponse{Data: run})
}

type FailedRecordListResponse struct {
	Data []models.FailedRecord `json:"data"`
}

// GetRunFailures returns the failed records of a run, optionally filtered by
// error category.
func (co Controller) GetRunFailures(c *gin.Context) {
	run, ok := co.run(c)
	if !ok {
		return
	}

	records, err := models.FailedRecordsForRun(co.DB, run.ID, models.ErrorCategory(c.Query("category")))
	if err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	if len(records) == 0 {
		records = make([]models.FailedRecord, 0)
	}

	c.JSON(http.StatusOK, FailedRecordListResponse{Data: records})
}

type AnalysisResponse struct {
	Data analyzer.Report `json:"data"`
}

// GetRunAnalysis groups a run's failures by category with a remediation
// suggestion per group.
func (co Controller) GetRunAnalysis(c *gin.Context) {
	run, ok := co.run(c)
	if !ok {
		return
	}

	records, err := models.FailedRecordsForRun(co.DB, run.ID, "")
	if err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	c.JSON(http.StatusOK, AnalysisResponse{Data: analyzer.Analyze(records)})
}

// CancelRun requests cancellation of an active run. The worker stops at the
// next mutation boundary; documents already imported stay in place.
func (co Controller) CancelRun(c *gin.Context) {
	run, ok := co.run(c)
	if !ok {
		return
	}

	if err := run.Cancel(co.DB); err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	c.JSON(http.StatusOK, RunResponse{Data: run})
}

// run reads the run addressed by the id path parameter. On failure the
// response has already been written.
func (co Controller) run(c *gin.Context) (models.ImportRun, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.InvalidUUID(c)
		return models.ImportRun{}, false
	}

	run, err := models.RunByID(co.DB, id)
	if err != nil {
		httputil.ErrorHandler(c, err)
		return models.ImportRun{}, false
	}

	return run, true
}

// parseDay parses an optional YYYY-MM-DD value.
func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}

	return &day, nil
}
