package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/portal"
	"github.com/marchkov/shuttle-backend/pkg/validator"
)

// MessageNoEligibleBus is reported when neither direction has a usable slot
const MessageNoEligibleBus = "no eligible bus currently"

// RideRecorder journals reserve and cancel outcomes
type RideRecorder interface {
	Record(ctx context.Context, record *models.RideRecord) error
}

// NoopRecorder discards records; used when no database is configured
type NoopRecorder struct{}

// Record does nothing
func (NoopRecorder) Record(context.Context, *models.RideRecord) error { return nil }

// ShuttleConfig holds the facade's decision settings
type ShuttleConfig struct {
	Selector                SelectorConfig
	CriticalTime            validator.ClockTime
	MorningToOutbound       bool
	AutoCancelOnCodeFailure bool
}

// ShuttleService is the API facade over the reservation pipeline.
// Operations are serialized: the portal session is not safe for concurrent mutation.
type ShuttleService struct {
	sessions     *SessionManager
	timetables   *TimetableService
	reservations *ReservationService
	recorder     RideRecorder
	config       ShuttleConfig
	logger       *logrus.Logger
	now          func() time.Time

	mu sync.Mutex
}

// NewShuttleService creates a new shuttle service
func NewShuttleService(
	sessions *SessionManager,
	timetables *TimetableService,
	reservations *ReservationService,
	recorder RideRecorder,
	config ShuttleConfig,
	logger *logrus.Logger,
) *ShuttleService {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	if config.Selector.Location == nil {
		config.Selector.Location = time.Local
	}
	return &ShuttleService{
		sessions:     sessions,
		timetables:   timetables,
		reservations: reservations,
		recorder:     recorder,
		config:       config,
		logger:       logger,
		now:          time.Now,
	}
}

// Login forces a fresh portal session
func (s *ShuttleService) Login(ctx context.Context) (result models.ActionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverAction("login", &result)

	if _, err := s.sessions.Login(ctx); err != nil {
		s.logger.WithError(err).Error("Login failed")
		return models.ActionResult{Success: false, Message: err.Error()}
	}
	return models.ActionResult{Success: true, Message: "login successful"}
}

// Reserve targets the best slot for the request's direction. On a first attempt
// the direction comes from the clock and is flipped once if nothing qualifies.
func (s *ShuttleService) Reserve(ctx context.Context, req models.ReserveRequest, origin models.RequestOrigin) (result models.ReserveResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &models.RideRecord{Trigger: origin.Trigger}
	var current models.Direction // direction being tried, reported if a step panics
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Reserve panicked")
			result = models.ReserveResult{Success: false, Message: "internal error", Direction: current}
		}
		s.journal(ctx, record, origin, result)
	}()

	now := s.now()
	var candidates []models.Direction
	if req.IsFirstAttempt {
		direction := DirectionAt(now, s.config.CriticalTime, s.config.MorningToOutbound, s.config.Selector.Location)
		candidates = []models.Direction{direction, direction.Opposite()}
	} else {
		direction, err := models.ParseDirection(string(req.Direction))
		if err != nil {
			return models.ReserveResult{Success: false, Message: err.Error(), Direction: req.Direction}
		}
		candidates = []models.Direction{direction}
	}
	date := now.In(s.config.Selector.Location).Format(models.SlotDateLayout)

	for _, dir := range candidates {
		current = dir
		record.Directions = append(record.Directions, string(dir))
		log := s.logger.WithFields(logrus.Fields{
			"direction": dir,
			"date":      date,
			"trigger":   origin.Trigger,
		})

		session, timetable, err := s.timetables.FetchTimetable(ctx, date)
		if err != nil {
			log.WithError(err).Error("Failed to load timetable")
			return failure(dir, err)
		}

		decision := SelectSlot(now, dir, timetable, s.config.Selector)
		if !decision.Found() {
			log.Info("No eligible slot")
			continue
		}

		log.WithFields(logrus.Fields{
			"classification": decision.Classification,
			"route_id":       decision.Route.ID,
			"slot_time":      decision.Slot.Time,
			"offset_minutes": decision.OffsetMinutes,
		}).Info("Slot selected")

		if decision.Classification == models.ClassificationExpired {
			return s.catchUp(ctx, session, dir, decision)
		}
		return s.reserveUpcoming(ctx, session, dir, decision)
	}

	return models.ReserveResult{Success: false, Message: MessageNoEligibleBus, Direction: candidates[len(candidates)-1]}
}

func (s *ShuttleService) catchUp(ctx context.Context, session *SessionHandle, dir models.Direction, decision models.SelectionDecision) models.ReserveResult {
	code, err := s.reservations.GetCatchUpCode(ctx, session, *decision.Route, *decision.Slot)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch catch-up code")
		return failure(dir, err)
	}
	return models.ReserveResult{
		Success:       true,
		Message:       "catch-up code issued",
		Direction:     dir,
		CodeType:      code.Type,
		RouteName:     code.RouteName,
		ScheduledTime: code.ScheduledTime,
		CodePayload:   code.ImagePNG,
		CodeText:      code.Text,
	}
}

func (s *ShuttleService) reserveUpcoming(ctx context.Context, session *SessionHandle, dir models.Direction, decision models.SelectionDecision) models.ReserveResult {
	reservation, err := s.reservations.ReserveSlot(ctx, session, *decision.Route, *decision.Slot)
	if err != nil {
		s.logger.WithError(err).Error("Reservation failed")
		return failure(dir, err)
	}
	bookingID, subID := reservation.BookingID, reservation.BookingSubID

	code, err := s.reservations.GetBoardingCode(ctx, session, reservation)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to fetch boarding code")
		result := failure(dir, err)

		if !s.config.AutoCancelOnCodeFailure {
			result.Message += "; reservation kept"
			result.BookingID, result.BookingSubID = &bookingID, &subID
			return result
		}
		if cancelErr := s.reservations.Cancel(ctx, session, bookingID, subID); cancelErr != nil {
			s.logger.WithError(cancelErr).WithField("booking_id", bookingID).Warn("Rollback cancellation failed")
			result.Message += "; rollback cancellation failed: " + cancelErr.Error()
			result.BookingID, result.BookingSubID = &bookingID, &subID
			return result
		}
		result.Message += "; reservation cancelled"
		return result
	}

	return models.ReserveResult{
		Success:       true,
		Message:       "reservation successful",
		Direction:     dir,
		CodeType:      code.Type,
		RouteName:     code.RouteName,
		ScheduledTime: code.ScheduledTime,
		CodePayload:   code.ImagePNG,
		CodeText:      code.Text,
		BookingID:     &bookingID,
		BookingSubID:  &subID,
	}
}

// Cancel revokes a reservation made earlier
func (s *ShuttleService) Cancel(ctx context.Context, bookingID, bookingSubID int, origin models.RequestOrigin) (result models.ActionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverAction("cancel", &result)

	err := s.withSession(ctx, func(session *SessionHandle) error {
		return s.reservations.Cancel(ctx, session, bookingID, bookingSubID)
	})

	record := &models.RideRecord{
		Status:       models.RideStatusCancelled,
		BookingID:    &bookingID,
		BookingSubID: &bookingSubID,
		Trigger:      origin.Trigger,
	}
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Cancellation failed")
		result = models.ActionResult{Success: false, Message: err.Error()}
		record.Status = models.RideStatusFailed
	} else {
		result = models.ActionResult{Success: true, Message: "reservation cancelled"}
	}
	record.Message = result.Message
	s.record(ctx, record, origin)
	return result
}

// History lists the account's past rides, newest first, without revoked ones
func (s *ShuttleService) History(ctx context.Context) (result models.HistoryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("History panicked")
			result = models.HistoryResult{Success: false, Message: "internal error", Rides: []models.Appointment{}}
		}
	}()

	var appointments []models.Appointment
	err := s.withSession(ctx, func(session *SessionHandle) error {
		var err error
		appointments, err = session.Client.Appointments(ctx, portal.AppointmentQuery{
			Page:       1,
			PageSize:   0,
			Status:     portal.AppointmentStatusAll,
			Descending: true,
		})
		return err
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ride history")
		return models.HistoryResult{Success: false, Message: err.Error(), Rides: []models.Appointment{}}
	}

	rides := make([]models.Appointment, 0, len(appointments))
	for _, a := range appointments {
		if !a.Revoked() {
			rides = append(rides, a)
		}
	}
	return models.HistoryResult{Success: true, Message: fmt.Sprintf("%d rides", len(rides)), Rides: rides}
}

// Overview returns today's timetable and the account's upcoming appointments
func (s *ShuttleService) Overview(ctx context.Context) (result models.OverviewResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	date := now.In(s.config.Selector.Location).Format(models.SlotDateLayout)
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Overview panicked")
			result = models.OverviewResult{Success: false, Message: "internal error", Date: date, GeneratedAt: now}
		}
	}()

	// The timetable read may re-authenticate, so appointments are read afterwards
	// on the session it returns rather than concurrently.
	session, routes, err := s.timetables.FetchTimetable(ctx, date)
	if err != nil {
		s.logger.WithError(err).Error("Failed to build overview")
		return models.OverviewResult{Success: false, Message: err.Error(), Date: date, GeneratedAt: now}
	}

	var appointments []models.Appointment
	readAppointments := func(current *SessionHandle) error {
		var err error
		appointments, err = current.Client.Appointments(ctx, portal.AppointmentQuery{
			Page:     1,
			PageSize: recentAppointmentsPageSize,
			Status:   portal.AppointmentStatusConfirmed,
		})
		return err
	}
	err = readAppointments(session)
	if errors.Is(err, portal.ErrSessionRejected) {
		s.sessions.Invalidate()
		err = s.withSession(ctx, readAppointments)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to build overview")
		return models.OverviewResult{Success: false, Message: err.Error(), Date: date, GeneratedAt: now}
	}

	if appointments == nil {
		appointments = []models.Appointment{}
	}
	return models.OverviewResult{
		Success:      true,
		Message:      "ok",
		Date:         date,
		GeneratedAt:  now,
		Routes:       routes,
		Appointments: appointments,
	}
}

// withSession runs fn on the current session, re-authenticating once if the portal rejected it
func (s *ShuttleService) withSession(ctx context.Context, fn func(session *SessionHandle) error) error {
	session, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		return err
	}
	err = fn(session)
	if err == nil || !errors.Is(err, portal.ErrSessionRejected) {
		return err
	}

	s.sessions.Invalidate()
	session, err = s.sessions.EnsureSession(ctx)
	if err != nil {
		return err
	}
	return fn(session)
}

func (s *ShuttleService) recoverAction(op string, result *models.ActionResult) {
	if r := recover(); r != nil {
		s.logger.WithFields(logrus.Fields{"operation": op, "panic": r}).Error("Operation panicked")
		*result = models.ActionResult{Success: false, Message: "internal error"}
	}
}

// journal fills the record from a reserve result and stores it
func (s *ShuttleService) journal(ctx context.Context, record *models.RideRecord, origin models.RequestOrigin, result models.ReserveResult) {
	switch {
	case !result.Success:
		record.Status = models.RideStatusFailed
	case result.CodeType == models.CodeTypeCatchUp:
		record.Status = models.RideStatusCatchUp
	default:
		record.Status = models.RideStatusReserved
	}
	record.Message = result.Message
	record.BookingID = result.BookingID
	record.BookingSubID = result.BookingSubID
	if result.CodeType != "" {
		codeType := string(result.CodeType)
		record.CodeType = &codeType
	}
	if result.RouteName != "" {
		record.RouteName = &result.RouteName
	}
	if result.ScheduledTime != "" {
		record.ScheduledAt = &result.ScheduledTime
	}
	s.record(ctx, record, origin)
}

func (s *ShuttleService) record(ctx context.Context, record *models.RideRecord, origin models.RequestOrigin) {
	record.ID = uuid.New()
	record.CreatedAt = s.now()
	if record.Trigger == "" {
		record.Trigger = models.TriggerAPI
	}
	if record.Directions == nil {
		record.Directions = models.StringArray{}
	}
	record.ClientIP = optionalString(origin.ClientIP)
	record.UserAgent = optionalString(origin.UserAgent)
	record.DeviceType = optionalString(origin.DeviceType)

	if err := s.recorder.Record(ctx, record); err != nil {
		s.logger.WithError(err).Warn("Failed to journal ride record")
	}
}

func failure(dir models.Direction, err error) models.ReserveResult {
	return models.ReserveResult{Success: false, Message: err.Error(), Direction: dir}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
