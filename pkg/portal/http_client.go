package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/marchkov/shuttle-backend/internal/models"
)

const (
	defaultHallID     = "1"
	maxResponseBytes  = 4 << 20
	reservePagePath   = "/v2/reserve/"
	casLoginPath      = "/site/login/cas-login"
	reservationPrefix = "/site/reservation/"
)

// HTTPConfig holds configuration for the portal HTTP client
type HTTPConfig struct {
	AuthURL   string // e.g. https://iaaa.pku.edu.cn
	BaseURL   string // e.g. https://wproc.pku.edu.cn
	AppID     string
	Timeout   time.Duration
	UserAgent string
}

// HTTPClient implements Client against the portal's JSON endpoints.
// One HTTPClient is one session: it owns its cookie jar.
type HTTPClient struct {
	authURL   *url.URL
	baseURL   *url.URL
	appID     string
	timeout   time.Duration
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *logrus.Logger
}

// NewHTTPClient creates a portal client with an empty cookie jar
func NewHTTPClient(config HTTPConfig, limiter *rate.Limiter, logger *logrus.Logger) (*HTTPClient, error) {
	authURL, err := url.Parse(strings.TrimRight(config.AuthURL, "/"))
	if err != nil || authURL.Host == "" {
		return nil, fmt.Errorf("invalid portal auth URL %q", config.AuthURL)
	}
	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid portal base URL %q", config.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &HTTPClient{
		authURL:   authURL,
		baseURL:   baseURL,
		appID:     config.AppID,
		timeout:   timeout,
		userAgent: config.UserAgent,
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// NewHTTPFactory returns a Factory whose clients share one rate limiter
func NewHTTPFactory(config HTTPConfig, limiter *rate.Limiter, logger *logrus.Logger) Factory {
	return func() (Client, error) {
		return NewHTTPClient(config, limiter, logger)
	}
}

func (c *HTTPClient) redirectURL() string {
	return c.baseURL.String() + casLoginPath + "?redirect_url=" + c.baseURL.String() + reservePagePath
}

// Login authenticates and establishes the reservation site's cookies
func (c *HTTPClient) Login(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("appid", c.appID)
	form.Set("userName", creds.Username)
	form.Set("password", creds.Password)
	form.Set("randCode", "")
	form.Set("smsCode", "")
	form.Set("otpCode", "")
	form.Set("redirUrl", c.redirectURL())

	body, err := c.send(ctx, http.MethodPost, c.authURL.String()+"/iaaa/oauthlogin.do", form)
	if err != nil {
		return "", wrapPhase(PhaseAuthenticate, err)
	}

	var loginResp loginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return "", wrapPhase(PhaseAuthenticate, &DecodeError{Snippet: snippet(body), Err: err})
	}
	if !loginResp.Success {
		return "", wrapPhase(PhaseAuthenticate, &LoginRejectedError{
			Code:    loginResp.Errors.Code,
			Message: loginResp.Errors.Msg,
		})
	}
	if loginResp.Token == "" {
		return "", wrapPhase(PhaseAuthenticate, &DecodeError{Snippet: snippet(body), Err: fmt.Errorf("missing token")})
	}

	q := url.Values{}
	q.Set("redirect_url", c.baseURL.String()+reservePagePath)
	q.Set("_rand", strconv.FormatFloat(rand.Float64(), 'f', 16, 64))
	q.Set("token", loginResp.Token)
	if _, err := c.send(ctx, http.MethodGet, c.baseURL.String()+casLoginPath+"?"+q.Encode(), nil); err != nil {
		return "", wrapPhase(PhaseAuthenticate, fmt.Errorf("failed to establish site session: %w", err))
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"token": maskToken(loginResp.Token),
		}).Debug("Portal session established")
	}
	return loginResp.Token, nil
}

// Timetable lists all routes and their slots for a date
func (c *HTTPClient) Timetable(ctx context.Context, date string) ([]models.Route, error) {
	q := url.Values{}
	q.Set("hall_id", defaultHallID)
	q.Set("time", date)
	q.Set("p", "1")
	q.Set("page_size", "0")

	var data timetableData
	if err := c.getJSON(ctx, "list-page", q, &data); err != nil {
		return nil, wrapPhase(PhaseListTimetable, err)
	}
	return data.toRoutes(), nil
}

// ProbeRoute lists one route's slots for a date
func (c *HTTPClient) ProbeRoute(ctx context.Context, routeID int, date string) (models.Route, error) {
	routes, err := c.Timetable(ctx, date)
	if err != nil {
		return models.Route{}, err
	}
	for _, r := range routes {
		if r.ID == routeID {
			return r, nil
		}
	}
	return models.Route{ID: routeID, Slots: []models.Slot{}}, nil
}

// Launch submits a reservation. A non-zero portal status is reported in the result.
func (c *HTTPClient) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	items, err := json.Marshal([]launchItem{{Date: req.Date, Period: req.Period, SubResourceID: 0}})
	if err != nil {
		return LaunchResult{}, wrapPhase(PhaseSubmitReservation, fmt.Errorf("failed to marshal launch data: %w", err))
	}

	form := url.Values{}
	form.Set("resource_id", strconv.Itoa(req.RouteID))
	form.Set("data", string(items))

	env, err := c.postForm(ctx, "launch", form)
	if err != nil {
		return LaunchResult{}, wrapPhase(PhaseSubmitReservation, err)
	}
	return LaunchResult{Code: env.E, Message: env.M}, nil
}

// Appointments lists the account's appointments
func (c *HTTPClient) Appointments(ctx context.Context, query AppointmentQuery) ([]models.Appointment, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	sortOrder := "asc"
	if query.Descending {
		sortOrder = "desc"
	}

	q := url.Values{}
	q.Set("p", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(query.PageSize))
	q.Set("status", strconv.Itoa(query.Status))
	q.Set("sort_time", "true")
	q.Set("sort", sortOrder)

	var data appointmentData
	if err := c.getJSON(ctx, "my-list-time", q, &data); err != nil {
		return nil, wrapPhase(PhaseResolveBooking, err)
	}
	return data.toAppointments(), nil
}

// BoardingCode fetches the sign-in code of a confirmed appointment
func (c *HTTPClient) BoardingCode(ctx context.Context, appointmentID, dataID int) (CodeResult, error) {
	q := url.Values{}
	q.Set("type", "0")
	q.Set("id", strconv.Itoa(appointmentID))
	q.Set("hall_appointment_data_id", strconv.Itoa(dataID))
	return c.fetchCode(ctx, q)
}

// CatchUpCode fetches the temporary code for a bus that already departed
func (c *HTTPClient) CatchUpCode(ctx context.Context, routeID int, startTime string) (CodeResult, error) {
	q := url.Values{}
	q.Set("type", "1")
	q.Set("resource_id", strconv.Itoa(routeID))
	q.Set("text", startTime)
	return c.fetchCode(ctx, q)
}

func (c *HTTPClient) fetchCode(ctx context.Context, q url.Values) (CodeResult, error) {
	var data codeData
	if err := c.getJSON(ctx, "get-sign-qrcode", q, &data); err != nil {
		return CodeResult{}, wrapPhase(PhaseFetchCode, err)
	}
	return CodeResult{Code: data.Code, Name: data.Name}, nil
}

// Cancel revokes an appointment
func (c *HTTPClient) Cancel(ctx context.Context, appointmentID, dataID int) error {
	form := url.Values{}
	form.Set("appointment_id", strconv.Itoa(appointmentID))
	form.Set("data_id[0]", strconv.Itoa(dataID))

	env, err := c.postForm(ctx, "single-time-cancel", form)
	if err != nil {
		return wrapPhase(PhaseCancel, err)
	}
	if env.E != 0 {
		return wrapPhase(PhaseCancel, &APIError{Code: env.E, Message: env.M})
	}
	return nil
}

// getJSON fetches a reservation endpoint and decodes its "d" payload into out.
// A non-zero "e" becomes an APIError.
func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	body, err := c.send(ctx, http.MethodGet, c.baseURL.String()+reservationPrefix+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return err
	}
	if env.E != 0 {
		return &APIError{Code: env.E, Message: env.M}
	}
	if len(env.D) == 0 || string(env.D) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.D, out); err != nil {
		return &DecodeError{Snippet: snippet(env.D), Err: err}
	}
	return nil
}

func (c *HTTPClient) postForm(ctx context.Context, endpoint string, form url.Values) (envelope, error) {
	body, err := c.send(ctx, http.MethodPost, c.baseURL.String()+reservationPrefix+endpoint, form)
	if err != nil {
		return envelope{}, err
	}
	return decodeEnvelope(body)
}

func decodeEnvelope(body []byte) (envelope, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		// An HTML page instead of JSON is the login page
		return envelope{}, ErrSessionRejected
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, &DecodeError{Snippet: snippet(body), Err: err}
	}
	return env, nil
}

// send performs one rate limited request under the per-call deadline
func (c *HTTPClient) send(ctx context.Context, method, rawURL string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   req.URL.Path,
			"status": resp.StatusCode,
		}).Debug("Portal request")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrSessionRejected
	}
	// Redirected back to the auth host means the site session is gone
	if resp.Request != nil && resp.Request.URL.Host == c.authURL.Host && req.URL.Host != c.authURL.Host {
		return nil, ErrSessionRejected
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func maskToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "***"
}
