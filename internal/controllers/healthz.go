package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verenigingen/boekhouden-import/internal/httputil"
)

// RegisterHealthzRoutes registers the routes for the healthz endpoint.
func (co Controller) RegisterHealthzRoutes(r *gin.RouterGroup) {
	r.GET("", co.GetHealthz)
}

// GetHealthz returns 204 when the database can be reached.
func (co Controller) GetHealthz(c *gin.Context) {
	sqlDB, err := co.DB.DB()
	if err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	if err := sqlDB.Ping(); err != nil {
		httputil.ErrorHandler(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
