package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/internal/services"
	"github.com/marchkov/shuttle-backend/pkg/jwt"
)

type fakeShuttle struct {
	reserveReq    *models.ReserveRequest
	reserveOrigin models.RequestOrigin
	reserveResult models.ReserveResult
	cancelled     []int
	cancelOrigin  models.RequestOrigin
}

func (f *fakeShuttle) Login(context.Context) models.ActionResult {
	return models.ActionResult{Success: true, Message: "login successful"}
}

func (f *fakeShuttle) Reserve(_ context.Context, req models.ReserveRequest, origin models.RequestOrigin) models.ReserveResult {
	f.reserveReq = &req
	f.reserveOrigin = origin
	return f.reserveResult
}

func (f *fakeShuttle) Cancel(_ context.Context, bookingID, bookingSubID int, origin models.RequestOrigin) models.ActionResult {
	f.cancelled = []int{bookingID, bookingSubID}
	f.cancelOrigin = origin
	return models.ActionResult{Success: true, Message: "cancelled"}
}

func (f *fakeShuttle) History(context.Context) models.HistoryResult {
	return models.HistoryResult{Success: true, Message: "ok", Rides: []models.Appointment{}}
}

func (f *fakeShuttle) Overview(context.Context) models.OverviewResult {
	return models.OverviewResult{Success: true, Date: "2024-05-20"}
}

type fakeRecords struct {
	limit   int
	records []models.RideRecord
	err     error
}

func (f *fakeRecords) List(_ context.Context, limit int) ([]models.RideRecord, error) {
	f.limit = limit
	return f.records, f.err
}

type fakeCron struct {
	runs int
}

func (f *fakeCron) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{"running": true, "job_count": 1}
}

func (f *fakeCron) RunAutoReserveNow() *services.JobRun {
	f.runs++
	return &services.JobRun{Success: true, Message: "reserved"}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupShuttleRouter(shuttle ShuttleFacade, records RecordLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewShuttleHandler(shuttle, records, testLogger())
	router.POST("/shuttle/login", h.Login)
	router.POST("/shuttle/reserve", h.Reserve)
	router.POST("/shuttle/cancel", h.Cancel)
	router.GET("/shuttle/history", h.History)
	router.GET("/shuttle/overview", h.Overview)
	router.GET("/shuttle/records", h.Records)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIssueToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	jwtService := jwt.NewService("test-secret", time.Hour)
	limiter := services.NewRateLimitService(services.RateLimitConfig{Every: time.Hour, Burst: 3})
	router := gin.New()
	router.POST("/auth/token", NewAuthHandler(jwtService, limiter, string(hash), testLogger()).IssueToken)

	t.Run("Success", func(t *testing.T) {
		w := doJSON(router, "POST", "/auth/token", gin.H{"password": "operator-pass"}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp TokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.InDelta(t, 3600, resp.ExpiresIn, 5)

		claims, err := jwtService.ValidateAccessToken(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "operator", claims.Operator)
	})

	t.Run("Wrong password", func(t *testing.T) {
		w := doJSON(router, "POST", "/auth/token", gin.H{"password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_CREDENTIALS")
	})

	t.Run("Missing password", func(t *testing.T) {
		w := doJSON(router, "POST", "/auth/token", gin.H{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
	})

	t.Run("Rate limited after burst", func(t *testing.T) {
		// The two password attempts above consumed two of the three allowed requests
		w := doJSON(router, "POST", "/auth/token", gin.H{"password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = doJSON(router, "POST", "/auth/token", gin.H{"password": "operator-pass"}, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	})
}

func TestShuttleHandler_Reserve(t *testing.T) {
	outbound := models.DirectionOutbound

	t.Run("First attempt passes origin through", func(t *testing.T) {
		shuttle := &fakeShuttle{reserveResult: models.ReserveResult{Success: true, Direction: outbound, CodeType: models.CodeTypeBoarding}}
		router := setupShuttleRouter(shuttle, nil)

		w := doJSON(router, "POST", "/shuttle/reserve", gin.H{"is_first_attempt": true}, map[string]string{
			"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			"X-Real-IP":  "203.0.113.7",
		})

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, shuttle.reserveReq)
		assert.True(t, shuttle.reserveReq.IsFirstAttempt)
		assert.Equal(t, models.TriggerAPI, shuttle.reserveOrigin.Trigger)
		assert.Equal(t, "203.0.113.7", shuttle.reserveOrigin.ClientIP)
		assert.Equal(t, "mobile", shuttle.reserveOrigin.DeviceType)

		var resp models.ReserveResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, outbound, resp.Direction)
	})

	t.Run("Failure outcome is still 200", func(t *testing.T) {
		shuttle := &fakeShuttle{reserveResult: models.ReserveResult{Success: false, Message: services.MessageNoEligibleBus}}
		router := setupShuttleRouter(shuttle, nil)

		w := doJSON(router, "POST", "/shuttle/reserve", gin.H{"is_first_attempt": false, "direction": "return"}, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), services.MessageNoEligibleBus)
		assert.Equal(t, models.DirectionReturn, shuttle.reserveReq.Direction)
	})

	t.Run("Direction is canonicalized", func(t *testing.T) {
		shuttle := &fakeShuttle{reserveResult: models.ReserveResult{Success: true}}
		router := setupShuttleRouter(shuttle, nil)

		w := doJSON(router, "POST", "/shuttle/reserve", gin.H{"direction": " OUTBOUND "}, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, shuttle.reserveReq)
		assert.Equal(t, models.DirectionOutbound, shuttle.reserveReq.Direction)
	})

	t.Run("Missing direction", func(t *testing.T) {
		shuttle := &fakeShuttle{}
		router := setupShuttleRouter(shuttle, nil)

		w := doJSON(router, "POST", "/shuttle/reserve", gin.H{"is_first_attempt": false}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_DIRECTION")
		assert.Nil(t, shuttle.reserveReq)
	})

	t.Run("Unknown direction", func(t *testing.T) {
		shuttle := &fakeShuttle{}
		router := setupShuttleRouter(shuttle, nil)

		w := doJSON(router, "POST", "/shuttle/reserve", gin.H{"direction": "sideways"}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, shuttle.reserveReq)
	})

	t.Run("Malformed body", func(t *testing.T) {
		router := setupShuttleRouter(&fakeShuttle{}, nil)
		req := httptest.NewRequest("POST", "/shuttle/reserve", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
	})
}

func TestShuttleHandler_Cancel(t *testing.T) {
	shuttle := &fakeShuttle{}
	router := setupShuttleRouter(shuttle, nil)

	w := doJSON(router, "POST", "/shuttle/cancel", gin.H{"booking_id": 123, "booking_sub_id": 456}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{123, 456}, shuttle.cancelled)
	assert.Equal(t, models.TriggerAPI, shuttle.cancelOrigin.Trigger)

	w = doJSON(router, "POST", "/shuttle/cancel", gin.H{"booking_id": 123, "booking_sub_id": 0}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{123, 0}, shuttle.cancelled)

	w = doJSON(router, "POST", "/shuttle/cancel", gin.H{"booking_id": 123}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShuttleHandler_ReadEndpoints(t *testing.T) {
	router := setupShuttleRouter(&fakeShuttle{}, nil)

	w := doJSON(router, "POST", "/shuttle/login", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "login successful")

	w = doJSON(router, "GET", "/shuttle/history", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rides":[]`)

	w = doJSON(router, "GET", "/shuttle/overview", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2024-05-20")
}

func TestShuttleHandler_Records(t *testing.T) {
	t.Run("Journal disabled", func(t *testing.T) {
		router := setupShuttleRouter(&fakeShuttle{}, nil)

		w := doJSON(router, "GET", "/shuttle/records", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"enabled":false`)
	})

	t.Run("With limit", func(t *testing.T) {
		records := &fakeRecords{records: []models.RideRecord{{Status: models.RideStatusReserved, Message: "ok"}}}
		router := setupShuttleRouter(&fakeShuttle{}, records)

		w := doJSON(router, "GET", "/shuttle/records?limit=5", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, records.limit)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("Invalid limit", func(t *testing.T) {
		router := setupShuttleRouter(&fakeShuttle{}, &fakeRecords{})

		w := doJSON(router, "GET", "/shuttle/records?limit=abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_LIMIT")
	})

	t.Run("Repository error", func(t *testing.T) {
		router := setupShuttleRouter(&fakeShuttle{}, &fakeRecords{err: errors.New("connection refused")})

		w := doJSON(router, "GET", "/shuttle/records", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestAdminHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cron := &fakeCron{}
	h := NewAdminHandler(cron)
	router := gin.New()
	router.GET("/admin/cron/status", h.CronStatus)
	router.POST("/admin/cron/run", h.RunCron)

	w := doJSON(router, "GET", "/admin/cron/status", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"job_count":1`)

	w = doJSON(router, "POST", "/admin/cron/run", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, cron.runs)
	assert.Contains(t, w.Body.String(), "reserved")
}
