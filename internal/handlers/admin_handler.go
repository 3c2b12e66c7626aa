package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marchkov/shuttle-backend/internal/services"
)

// CronController is the part of the scheduler exposed to operators
type CronController interface {
	GetJobStatus() map[string]interface{}
	RunAutoReserveNow() *services.JobRun
}

// AdminHandler handles operator-only maintenance endpoints
type AdminHandler struct {
	cron CronController
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cron CronController) *AdminHandler {
	return &AdminHandler{cron: cron}
}

// CronStatus handles GET /api/v1/admin/cron/status
func (h *AdminHandler) CronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}

// RunCron handles POST /api/v1/admin/cron/run
func (h *AdminHandler) RunCron(c *gin.Context) {
	run := h.cron.RunAutoReserveNow()
	c.JSON(http.StatusOK, gin.H{
		"message": "Auto-reserve job executed",
		"run":     run,
	})
}
