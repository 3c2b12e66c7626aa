package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/portal"
	"github.com/marchkov/shuttle-backend/pkg/validator"
)

// SessionPolicy decides whether a live session is reused
type SessionPolicy string

const (
	// SessionPolicyCached reuses a session until it expires
	SessionPolicyCached SessionPolicy = "cached"
	// SessionPolicyEager authenticates again on every EnsureSession call
	SessionPolicyEager SessionPolicy = "eager"
)

// ParseSessionPolicy parses a policy name
func ParseSessionPolicy(s string) (SessionPolicy, error) {
	switch SessionPolicy(s) {
	case SessionPolicyCached, "":
		return SessionPolicyCached, nil
	case SessionPolicyEager:
		return SessionPolicyEager, nil
	}
	return "", fmt.Errorf("invalid session policy %q (must be 'cached' or 'eager')", s)
}

// SessionConfig holds session lifetime and login retry settings
type SessionConfig struct {
	Expiry       time.Duration
	TimetableTTL time.Duration
	Policy       SessionPolicy
	MaxAttempts  int
	Backoff      BackoffConfig
}

// SessionHandle is one authenticated portal session
type SessionHandle struct {
	Client    portal.Client
	Token     string
	CreatedAt time.Time
}

type cachedTimetable struct {
	date     string
	routes   []models.Route
	storedAt time.Time
}

// SessionManager owns the single portal session of the deployment
type SessionManager struct {
	factory portal.Factory
	creds   portal.Credentials
	config  SessionConfig
	logger  *logrus.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration

	mu        sync.Mutex
	session   *SessionHandle
	timetable *cachedTimetable
}

// NewSessionManager creates a new session manager
func NewSessionManager(factory portal.Factory, creds portal.Credentials, config SessionConfig, logger *logrus.Logger) *SessionManager {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Policy == "" {
		config.Policy = SessionPolicyCached
	}
	return &SessionManager{
		factory: factory,
		creds:   creds,
		config:  config,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		jitter:  randomJitter,
	}
}

// EnsureSession returns a session that is authenticated at return time
func (m *SessionManager) EnsureSession(ctx context.Context) (*SessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Policy == SessionPolicyCached && m.session != nil && !m.expiredLocked() {
		return m.session, nil
	}
	return m.authenticateLocked(ctx)
}

// Login discards any session and authenticates again
func (m *SessionManager) Login(ctx context.Context) (*SessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.authenticateLocked(ctx)
}

// Invalidate drops the current session and its cached timetable
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardLocked()
}

// Active reports whether a non-expired session exists
func (m *SessionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session != nil && !m.expiredLocked()
}

// CachedTimetable returns the session's timetable for date if it is still fresh
func (m *SessionManager) CachedTimetable(date string) ([]models.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.timetable == nil || m.timetable.date != date {
		return nil, false
	}
	if m.config.TimetableTTL > 0 && m.now().Sub(m.timetable.storedAt) > m.config.TimetableTTL {
		m.timetable = nil
		return nil, false
	}
	return m.timetable.routes, true
}

// StoreTimetable caches a timetable for the current session
func (m *SessionManager) StoreTimetable(date string, routes []models.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.config.TimetableTTL <= 0 {
		return
	}
	m.timetable = &cachedTimetable{date: date, routes: routes, storedAt: m.now()}
}

func (m *SessionManager) expiredLocked() bool {
	return m.config.Expiry > 0 && m.now().Sub(m.session.CreatedAt) > m.config.Expiry
}

func (m *SessionManager) discardLocked() {
	m.session = nil
	m.timetable = nil
}

// authenticateLocked runs the login protocol with bounded retries.
// Transient failures back off exponentially; rejected credentials fail at once.
func (m *SessionManager) authenticateLocked(ctx context.Context) (*SessionHandle, error) {
	m.discardLocked()

	var lastErr error
	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := m.config.Backoff.Delay(attempt-1, m.jitter)
			m.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("Retrying portal login")

			if err := m.sleep(ctx, delay); err != nil {
				return nil, models.NewShuttleError(models.ErrorKindAuthentication, "login interrupted", err)
			}
		}

		handle, err := m.loginOnce(ctx)
		if err == nil {
			m.session = handle
			m.logger.WithFields(logrus.Fields{
				"account":  validator.MaskAccount(m.creds.Username),
				"attempts": attempt,
			}).Info("Portal session established")
			return handle, nil
		}
		lastErr = err

		var rejected *portal.LoginRejectedError
		if errors.As(err, &rejected) {
			m.logger.WithError(err).Warn("Portal rejected credentials")
			return nil, models.NewShuttleError(models.ErrorKindAuthentication, "credentials rejected", err)
		}
		if ctx.Err() != nil {
			return nil, models.NewShuttleError(models.ErrorKindAuthentication, "login interrupted", ctx.Err())
		}

		m.logger.WithError(err).WithField("attempt", attempt).Warn("Portal login failed")
	}

	return nil, models.NewShuttleError(models.ErrorKindAuthentication,
		fmt.Sprintf("login failed after %d attempts", m.config.MaxAttempts), lastErr)
}

func (m *SessionManager) loginOnce(ctx context.Context) (*SessionHandle, error) {
	client, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create portal client: %w", err)
	}

	token, err := client.Login(ctx, m.creds)
	if err != nil {
		return nil, err
	}

	return &SessionHandle{
		Client:    client,
		Token:     token,
		CreatedAt: m.now(),
	}, nil
}
