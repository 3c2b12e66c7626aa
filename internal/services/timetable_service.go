package services

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/portal"
)

// maxConcurrentProbes bounds per-route probes against the portal
const maxConcurrentProbes = 4

// TimetableService fetches the day's routes through the session manager
type TimetableService struct {
	sessions *SessionManager
	mapping  models.RouteMapping
	logger   *logrus.Logger
}

// NewTimetableService creates a new timetable service
func NewTimetableService(sessions *SessionManager, mapping models.RouteMapping, logger *logrus.Logger) *TimetableService {
	return &TimetableService{
		sessions: sessions,
		mapping:  mapping,
		logger:   logger,
	}
}

// FetchTimetable returns the routes of date together with the session used to read them.
// A rejected session or unreadable listing triggers one re-authentication and retry;
// a timeout, network failure or 5xx is retried once on the same session.
func (s *TimetableService) FetchTimetable(ctx context.Context, date string) (*SessionHandle, []models.Route, error) {
	session, err := s.sessions.EnsureSession(ctx)
	if err != nil {
		return nil, nil, err
	}

	if routes, ok := s.sessions.CachedTimetable(date); ok {
		return session, routes, nil
	}

	routes, err := s.read(ctx, session, date)
	if err != nil {
		switch {
		case needsReauth(err):
			s.logger.WithError(err).Warn("Timetable read failed, re-authenticating")
			s.sessions.Invalidate()

			session, err = s.sessions.EnsureSession(ctx)
			if err != nil {
				return nil, nil, err
			}
		case portal.IsTransient(err):
			s.logger.WithError(err).Warn("Timetable read failed, retrying on the same session")
		default:
			return nil, nil, models.NewShuttleError(models.ErrorKindFetch, "failed to fetch timetable", err)
		}

		routes, err = s.read(ctx, session, date)
		if err != nil {
			return nil, nil, models.NewShuttleError(models.ErrorKindFetch, "failed to fetch timetable", err)
		}
	}

	s.sessions.StoreTimetable(date, routes)

	s.logger.WithFields(logrus.Fields{
		"date":   date,
		"routes": len(routes),
	}).Debug("Timetable fetched")

	return session, routes, nil
}

// read lists the timetable, probing mapped routes concurrently when the
// transport reads one route at a time
func (s *TimetableService) read(ctx context.Context, session *SessionHandle, date string) ([]models.Route, error) {
	var (
		routes []models.Route
		err    error
	)
	if prober, ok := session.Client.(portal.RouteProber); ok {
		routes, err = s.probe(ctx, prober, date)
	} else {
		routes, err = session.Client.Timetable(ctx, date)
	}
	if err != nil {
		return nil, err
	}

	for i := range routes {
		if d, ok := s.mapping.DirectionOf(routes[i].ID); ok {
			routes[i].Direction = d
		}
	}
	return routes, nil
}

func (s *TimetableService) probe(ctx context.Context, prober portal.RouteProber, date string) ([]models.Route, error) {
	ids := make([]int, 0, len(s.mapping))
	for id := range s.mapping {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	routes := make([]models.Route, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			route, err := prober.ProbeRoute(gctx, id, date)
			if err != nil {
				return err
			}
			route.ID = id
			routes[i] = route
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return routes, nil
}

// needsReauth reports whether a failed read means the session itself is unusable
func needsReauth(err error) bool {
	if errors.Is(err, portal.ErrSessionRejected) {
		return true
	}
	var decodeErr *portal.DecodeError
	return errors.As(err, &decodeErr)
}
