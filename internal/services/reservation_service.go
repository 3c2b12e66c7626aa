package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/portal"
)

const (
	// recentAppointmentsPageSize is how many confirmed appointments are scanned for a new booking
	recentAppointmentsPageSize = 10
	// appointmentListingAttempts is how often the listing is read before a booking counts as missing
	appointmentListingAttempts = 2
)

// ReservationService performs reservations, code retrieval and cancellation on a session
type ReservationService struct {
	logger *logrus.Logger
	now    func() time.Time
	render func(text string) (string, error)
}

// NewReservationService creates a new reservation service
func NewReservationService(logger *logrus.Logger) *ReservationService {
	return &ReservationService{
		logger: logger,
		now:    time.Now,
		render: RenderCodePNG,
	}
}

// ReserveSlot books slot on route and resolves the booking identifiers.
// The portal does not return a booking id, so the new appointment is found
// by route and exact "date time" in the account's confirmed appointments.
func (s *ReservationService) ReserveSlot(ctx context.Context, session *SessionHandle, route models.Route, slot models.Slot) (*models.Reservation, error) {
	launch, err := session.Client.Launch(ctx, portal.LaunchRequest{
		RouteID: route.ID,
		Date:    slot.Date,
		Period:  slot.ID,
	})
	if err != nil {
		return nil, models.NewShuttleError(models.ErrorKindReservation, "failed to submit reservation", err)
	}

	logFields := logrus.Fields{
		"route_id": route.ID,
		"date":     slot.Date,
		"time":     slot.Time,
	}
	if !launch.OK() {
		// Already-booked answers still leave a matching appointment behind
		s.logger.WithFields(logFields).WithFields(logrus.Fields{
			"code":    launch.Code,
			"message": launch.Message,
		}).Warn("Portal did not confirm reservation")
	}

	wanted := slot.AppointmentTime()
	var listErr error
	for attempt := 1; attempt <= appointmentListingAttempts; attempt++ {
		appointments, err := session.Client.Appointments(ctx, portal.AppointmentQuery{
			Page:     1,
			PageSize: recentAppointmentsPageSize,
			Status:   portal.AppointmentStatusConfirmed,
		})
		if err != nil {
			listErr = err
			continue
		}
		listErr = nil

		for _, a := range appointments {
			if a.RouteID == route.ID && strings.TrimSpace(a.AppointmentTime) == wanted && !a.Revoked() {
				s.logger.WithFields(logFields).WithField("booking_id", a.ID).Info("Reservation confirmed")
				return &models.Reservation{
					BookingID:    a.ID,
					BookingSubID: a.DataID,
					RouteID:      route.ID,
					RouteName:    routeName(route, a.RouteName),
					Date:         slot.Date,
					Time:         slot.Time,
				}, nil
			}
		}
	}

	if listErr != nil {
		return nil, models.NewShuttleError(models.ErrorKindReservation, "failed to list appointments", listErr)
	}

	message := "reservation not found among recent appointments"
	if !launch.OK() && launch.Message != "" {
		message = fmt.Sprintf("%s (portal: %s)", message, launch.Message)
	}
	return nil, models.NewShuttleError(models.ErrorKindReservation, message, nil)
}

// GetBoardingCode fetches the code of a confirmed reservation
func (s *ReservationService) GetBoardingCode(ctx context.Context, session *SessionHandle, reservation *models.Reservation) (*models.BoardingCode, error) {
	result, err := session.Client.BoardingCode(ctx, reservation.BookingID, reservation.BookingSubID)
	if err != nil {
		return nil, models.NewShuttleError(models.ErrorKindCodeRetrieval, "failed to fetch boarding code", err)
	}
	return s.buildCode(models.CodeTypeBoarding, result, reservation.RouteName, reservation.ScheduledAt())
}

// GetCatchUpCode fetches the temporary code for a bus that already departed
func (s *ReservationService) GetCatchUpCode(ctx context.Context, session *SessionHandle, route models.Route, slot models.Slot) (*models.BoardingCode, error) {
	result, err := session.Client.CatchUpCode(ctx, route.ID, slot.Time)
	if err != nil {
		return nil, models.NewShuttleError(models.ErrorKindCodeRetrieval, "failed to fetch catch-up code", err)
	}
	return s.buildCode(models.CodeTypeCatchUp, result, route.Name, slot.AppointmentTime())
}

// Cancel revokes a reservation by its booking identifiers
func (s *ReservationService) Cancel(ctx context.Context, session *SessionHandle, bookingID, bookingSubID int) error {
	err := session.Client.Cancel(ctx, bookingID, bookingSubID)
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id":     bookingID,
			"booking_sub_id": bookingSubID,
		}).Info("Reservation cancelled")
		return nil
	}

	var apiErr *portal.APIError
	if errors.As(err, &apiErr) {
		return models.NewShuttleError(models.ErrorKindCancellation, apiErr.Message, nil)
	}
	return models.NewShuttleError(models.ErrorKindCancellation, "failed to cancel reservation", err)
}

func (s *ReservationService) buildCode(codeType models.CodeType, result portal.CodeResult, routeName, scheduled string) (*models.BoardingCode, error) {
	text := strings.TrimSpace(result.Code)
	if text == "" {
		return nil, models.NewShuttleError(models.ErrorKindCodeRetrieval, "portal returned no code", nil)
	}

	image, err := s.render(text)
	if err != nil {
		return nil, models.NewShuttleError(models.ErrorKindCodeRetrieval, "failed to render code", err)
	}

	return &models.BoardingCode{
		Type:          codeType,
		RouteName:     routeName,
		ScheduledTime: scheduled,
		Text:          text,
		ImagePNG:      image,
		HolderName:    holderName(result.Name),
		IssuedAt:      s.now(),
	}, nil
}

func routeName(route models.Route, fallback string) string {
	if route.Name != "" {
		return route.Name
	}
	return fallback
}

// holderName returns the first line of the portal's "name\r\nid" field
func holderName(name string) string {
	name = strings.ReplaceAll(name, "\r\n", "\n")
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
