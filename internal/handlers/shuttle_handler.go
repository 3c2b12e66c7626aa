package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/internal/utils"
)

// ShuttleFacade is the reservation pipeline exposed over HTTP
type ShuttleFacade interface {
	Login(ctx context.Context) models.ActionResult
	Reserve(ctx context.Context, req models.ReserveRequest, origin models.RequestOrigin) models.ReserveResult
	Cancel(ctx context.Context, bookingID, bookingSubID int, origin models.RequestOrigin) models.ActionResult
	History(ctx context.Context) models.HistoryResult
	Overview(ctx context.Context) models.OverviewResult
}

// RecordLister reads the ride journal
type RecordLister interface {
	List(ctx context.Context, limit int) ([]models.RideRecord, error)
}

// ShuttleHandler handles shuttle reservation requests.
// Pipeline outcomes are always returned with 200 and a success flag;
// only malformed requests get an error status.
type ShuttleHandler struct {
	shuttle ShuttleFacade
	records RecordLister // nil when no database is configured
	logger  *logrus.Logger
}

// NewShuttleHandler creates a new shuttle handler
func NewShuttleHandler(shuttle ShuttleFacade, records RecordLister, logger *logrus.Logger) *ShuttleHandler {
	return &ShuttleHandler{
		shuttle: shuttle,
		records: records,
		logger:  logger,
	}
}

// Login handles POST /api/v1/shuttle/login
func (h *ShuttleHandler) Login(c *gin.Context) {
	c.JSON(http.StatusOK, h.shuttle.Login(c.Request.Context()))
}

// Reserve handles POST /api/v1/shuttle/reserve
func (h *ShuttleHandler) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_direction",
			Message: err.Error(),
			Code:    "INVALID_DIRECTION",
		})
		return
	}

	origin := utils.RequestOriginFrom(c)
	result := h.shuttle.Reserve(c.Request.Context(), req, origin)

	h.logger.WithFields(logrus.Fields{
		"success":     result.Success,
		"direction":   result.Direction,
		"code_type":   result.CodeType,
		"device_type": origin.DeviceType,
	}).Info("Reserve request handled")

	c.JSON(http.StatusOK, result)
}

// Cancel handles POST /api/v1/shuttle/cancel
func (h *ShuttleHandler) Cancel(c *gin.Context) {
	var req models.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "booking_id and booking_sub_id are required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	result := h.shuttle.Cancel(c.Request.Context(), req.BookingID, *req.BookingSubID, utils.RequestOriginFrom(c))
	c.JSON(http.StatusOK, result)
}

// History handles GET /api/v1/shuttle/history
func (h *ShuttleHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, h.shuttle.History(c.Request.Context()))
}

// Overview handles GET /api/v1/shuttle/overview
func (h *ShuttleHandler) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, h.shuttle.Overview(c.Request.Context()))
}

// Records handles GET /api/v1/shuttle/records?limit=N
func (h *ShuttleHandler) Records(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusOK, gin.H{
			"enabled": false,
			"records": []models.RideRecord{},
			"count":   0,
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a non-negative integer",
				Code:    "INVALID_LIMIT",
			})
			return
		}
		limit = parsed
	}

	records, err := h.records.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list ride records")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "records_unavailable",
			Message: "Failed to fetch ride records",
			Code:    "RECORDS_UNAVAILABLE",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"records": records,
		"count":   len(records),
	})
}
