package controllers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/verenigingen/boekhouden-import/internal/httputil"
	"github.com/verenigingen/boekhouden-import/internal/reconcile"
)

// RegisterReturnRoutes registers the route for processing a bank return
// batch.
func (co Controller) RegisterReturnRoutes(r *gin.RouterGroup) {
	r.POST("", co.ProcessReturns)
}

type ReturnsResponse struct {
	Data reconcile.Stats `json:"data"`
}

// ProcessReturns accepts a return CSV in the "file" form field and reverses
// the matched payments. Rows that cannot be matched are recorded as failures
// and reported in the stats, they never abort the batch.
func (co Controller) ProcessReturns(c *gin.Context) {
	formFile, err := c.FormFile("file")
	if formFile == nil || err != nil {
		httputil.NewError(c, http.StatusBadRequest, fmt.Errorf("you must send a file with the 'file' parameter"))
		return
	}

	if !strings.HasSuffix(formFile.Filename, ".csv") {
		httputil.NewError(c, http.StatusBadRequest, fmt.Errorf("this endpoint only supports .csv files"))
		return
	}

	f, err := formFile.Open()
	if err != nil {
		httputil.ErrorHandler(c, err)
		return
	}
	defer f.Close()

	records, err := reconcile.ParseReturnFile(f)
	if err != nil {
		httputil.NewError(c, http.StatusBadRequest, err)
		return
	}

	company := c.Query("company")
	if company == "" {
		company = co.Config.DefaultCompany
	}

	engine := reconcile.New(co.DB, uuid.Nil, log.Logger)
	stats, err := engine.ProcessReturns(company, records, reconcile.NewLedgerBatchSource(co.DB))
	if err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	c.JSON(http.StatusOK, ReturnsResponse{Data: stats})
}
