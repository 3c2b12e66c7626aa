package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/portal"
)

// fakePortal is an in-memory portal.Client; nil funcs return zero values
type fakePortal struct {
	mu sync.Mutex

	loginFn        func(call int) (string, error)
	timetableFn    func(call int, date string) ([]models.Route, error)
	launchFn       func(req portal.LaunchRequest) (portal.LaunchResult, error)
	appointmentsFn func(call int, q portal.AppointmentQuery) ([]models.Appointment, error)
	boardingFn     func(appointmentID, dataID int) (portal.CodeResult, error)
	catchUpFn      func(routeID int, startTime string) (portal.CodeResult, error)
	cancelFn       func(appointmentID, dataID int) error

	calls     map[string]int
	launched  []portal.LaunchRequest
	cancelled [][2]int
}

func newFakePortal() *fakePortal {
	return &fakePortal{calls: make(map[string]int)}
}

func (f *fakePortal) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakePortal) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePortal) Login(ctx context.Context, creds portal.Credentials) (string, error) {
	n := f.count("login")
	if f.loginFn != nil {
		return f.loginFn(n)
	}
	return "token", nil
}

func (f *fakePortal) Timetable(ctx context.Context, date string) ([]models.Route, error) {
	n := f.count("timetable")
	if f.timetableFn != nil {
		return f.timetableFn(n, date)
	}
	return nil, nil
}

func (f *fakePortal) Launch(ctx context.Context, req portal.LaunchRequest) (portal.LaunchResult, error) {
	f.count("launch")
	f.mu.Lock()
	f.launched = append(f.launched, req)
	f.mu.Unlock()
	if f.launchFn != nil {
		return f.launchFn(req)
	}
	return portal.LaunchResult{}, nil
}

func (f *fakePortal) Appointments(ctx context.Context, q portal.AppointmentQuery) ([]models.Appointment, error) {
	n := f.count("appointments")
	if f.appointmentsFn != nil {
		return f.appointmentsFn(n, q)
	}
	return nil, nil
}

func (f *fakePortal) BoardingCode(ctx context.Context, appointmentID, dataID int) (portal.CodeResult, error) {
	f.count("boarding")
	if f.boardingFn != nil {
		return f.boardingFn(appointmentID, dataID)
	}
	return portal.CodeResult{}, nil
}

func (f *fakePortal) CatchUpCode(ctx context.Context, routeID int, startTime string) (portal.CodeResult, error) {
	f.count("catch_up")
	if f.catchUpFn != nil {
		return f.catchUpFn(routeID, startTime)
	}
	return portal.CodeResult{}, nil
}

func (f *fakePortal) Cancel(ctx context.Context, appointmentID, dataID int) error {
	f.count("cancel")
	f.mu.Lock()
	f.cancelled = append(f.cancelled, [2]int{appointmentID, dataID})
	f.mu.Unlock()
	if f.cancelFn != nil {
		return f.cancelFn(appointmentID, dataID)
	}
	return nil
}

// fakeProber adds per-route probing to fakePortal
type fakeProber struct {
	*fakePortal
	routes map[int]models.Route
	probed []int
	mu     sync.Mutex
}

func (p *fakeProber) ProbeRoute(ctx context.Context, routeID int, date string) (models.Route, error) {
	p.mu.Lock()
	p.probed = append(p.probed, routeID)
	p.mu.Unlock()
	return p.routes[routeID], nil
}

// fakeClock is a settable clock
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestSessionManager wires a session manager to fp with a fake clock and no real sleeping
func newTestSessionManager(fp portal.Client, clock *fakeClock, config SessionConfig) (*SessionManager, *[]time.Duration, *int) {
	factoryCalls := 0
	factory := func() (portal.Client, error) {
		factoryCalls++
		return fp, nil
	}

	m := NewSessionManager(factory, portal.Credentials{Username: "2100012345", Password: "secret"}, config, quietLogger())
	m.now = clock.Now

	var slept []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	m.jitter = func(time.Duration) time.Duration { return 0 }
	return m, &slept, &factoryCalls
}

func defaultTestSessionConfig() SessionConfig {
	return SessionConfig{
		Expiry:       time.Hour,
		TimetableTTL: 5 * time.Minute,
		Policy:       SessionPolicyCached,
		MaxAttempts:  5,
		Backoff:      BackoffConfig{Base: 500 * time.Millisecond, Max: 15 * time.Second},
	}
}
