package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
)

// autoReserveTimeout bounds one scheduled reservation run
const autoReserveTimeout = 3 * time.Minute

// Reserver is the part of the shuttle facade the scheduler drives
type Reserver interface {
	Reserve(ctx context.Context, req models.ReserveRequest, origin models.RequestOrigin) models.ReserveResult
}

// JobRun describes the outcome of one scheduled run
type JobRun struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
}

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	reserver  Reserver
	schedules []string
	logger    *logrus.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]string
	lastRun *JobRun
}

// NewCronService creates a new CronService
func NewCronService(reserver Reserver, schedules []string, location *time.Location, logger *logrus.Logger) *CronService {
	if location == nil {
		location = time.Local
	}
	// Cron with seconds precision, evaluated in the portal's timezone
	c := cron.New(cron.WithSeconds(), cron.WithLocation(location))

	return &CronService{
		cron:      c,
		reserver:  reserver,
		schedules: schedules,
		logger:    logger,
		entries:   make(map[cron.EntryID]string),
	}
}

// Start schedules the auto-reserve jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Cron format: second minute hour day month weekday
	// "0 50 7 * * 1-5" = At 7:50 AM on weekdays
	for _, spec := range s.schedules {
		id, err := s.cron.AddFunc(spec, s.autoReserveJob)
		if err != nil {
			return fmt.Errorf("failed to schedule auto-reserve job %q: %w", spec, err)
		}
		s.mu.Lock()
		s.entries[id] = spec
		s.mu.Unlock()
		s.logger.WithField("schedule", spec).Info("✓ Scheduled: Auto reserve")
	}

	s.cron.Start()
	s.logger.WithField("jobs", len(s.schedules)).Info("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// autoReserveJob reserves for the direction derived from the clock
func (s *CronService) autoReserveJob() {
	s.logger.Info("[CRON] Starting auto-reserve job...")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), autoReserveTimeout)
	defer cancel()

	result := s.reserver.Reserve(ctx, models.ReserveRequest{IsFirstAttempt: true}, models.RequestOrigin{Trigger: models.TriggerCron})

	duration := time.Since(startTime)
	s.mu.Lock()
	s.lastRun = &JobRun{
		StartedAt: startTime,
		Duration:  duration.String(),
		Success:   result.Success,
		Message:   result.Message,
	}
	s.mu.Unlock()

	fields := logrus.Fields{
		"duration":  duration.String(),
		"direction": result.Direction,
		"code_type": result.CodeType,
		"route":     result.RouteName,
	}
	if !result.Success {
		s.logger.WithFields(fields).WithField("message", result.Message).Warn("[CRON ERROR] Auto-reserve failed")
		return
	}
	s.logger.WithFields(fields).Info("[CRON] ✓ Auto-reserve succeeded")
}

// RunAutoReserveNow runs the auto-reserve job immediately
func (s *CronService) RunAutoReserveNow() *JobRun {
	s.logger.Info("[MANUAL] Running auto-reserve now...")
	s.autoReserveJob()

	s.mu.Lock()
	defer s.mu.Unlock()
	run := *s.lastRun
	return &run
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"schedule": s.entries[entry.ID],
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
		"last_run":  s.lastRun,
	}
}
