package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/marchkov/shuttle-backend/pkg/validator"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Remote portal configuration
	Portal PortalConfig

	// Slot selection configuration
	Schedule ScheduleConfig

	// Session configuration
	Session SessionConfig

	// Reservation pipeline configuration
	Reservation ReservationConfig

	// Scheduled auto-reservation
	Cron CronConfig

	// Database configuration (optional ride journal)
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Operator authentication
	Auth AuthConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// PortalConfig holds the portal account and endpoints
type PortalConfig struct {
	Username       string
	Password       string
	AuthURL        string
	BaseURL        string
	AppID          string
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second
	RateBurst      int
	UserAgent      string
}

// ScheduleConfig holds direction and window settings of slot selection
type ScheduleConfig struct {
	CriticalTime      validator.ClockTime
	MorningToOutbound bool
	PrevInterval      time.Duration
	NextInterval      time.Duration
	OutboundRouteIDs  []int
	ReturnRouteIDs    []int
	Location          *time.Location
	ExpiredSlotPolicy string // first or closest
}

// SessionConfig holds session lifetime and login retry settings
type SessionConfig struct {
	Expiry          time.Duration
	Policy          string // cached or eager
	TimetableTTL    time.Duration
	AuthMaxAttempts int
	AuthBackoffBase time.Duration
	AuthBackoffMax  time.Duration
}

// ReservationConfig holds reservation pipeline behaviour
type ReservationConfig struct {
	AutoCancelOnCodeFailure bool
}

// CronConfig holds scheduled reservation specs
type CronConfig struct {
	AutoReserveSchedules []string // 6-field cron specs (with seconds)
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Enabled reports whether the ride journal database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// AuthConfig holds the operator credential
type AuthConfig struct {
	PasswordHash string // bcrypt
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

const (
	defaultAuthURL   = "https://iaaa.pku.edu.cn"
	defaultBaseURL   = "https://wproc.pku.edu.cn"
	defaultUserAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config, err := FromEnv()
	if err != nil {
		return nil, err
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv reads the configuration from the process environment without validating it
func FromEnv() (*Config, error) {
	criticalTime, err := validator.ParseClock(getEnv("CRITICAL_TIME", "14"))
	if err != nil {
		return nil, fmt.Errorf("invalid CRITICAL_TIME: %w", err)
	}

	location, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Shanghai"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	outbound, err := getEnvAsIntSlice("OUTBOUND_ROUTE_IDS", []int{2, 4})
	if err != nil {
		return nil, err
	}
	ret, err := getEnvAsIntSlice("RETURN_ROUTE_IDS", []int{5, 6, 7})
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Portal: PortalConfig{
			Username:       getEnv("PORTAL_USERNAME", ""),
			Password:       getEnv("PORTAL_PASSWORD", ""),
			AuthURL:        getEnv("PORTAL_AUTH_URL", defaultAuthURL),
			BaseURL:        getEnv("PORTAL_BASE_URL", defaultBaseURL),
			AppID:          getEnv("PORTAL_APP_ID", "wproc"),
			RequestTimeout: time.Duration(getEnvAsInt("PORTAL_REQUEST_TIMEOUT", 30)) * time.Second,
			RateLimit:      getEnvAsFloat("PORTAL_RATE_LIMIT", 5),
			RateBurst:      getEnvAsInt("PORTAL_RATE_BURST", 5),
			UserAgent:      getEnv("PORTAL_USER_AGENT", defaultUserAgent),
		},
		Schedule: ScheduleConfig{
			CriticalTime:      criticalTime,
			MorningToOutbound: getEnvAsBool("MORNING_TO_OUTBOUND", true),
			PrevInterval:      time.Duration(getEnvAsInt("PREV_INTERVAL_MINUTES", 10)) * time.Minute,
			NextInterval:      time.Duration(getEnvAsInt("NEXT_INTERVAL_MINUTES", 60)) * time.Minute,
			OutboundRouteIDs:  outbound,
			ReturnRouteIDs:    ret,
			Location:          location,
			ExpiredSlotPolicy: getEnv("EXPIRED_SLOT_POLICY", "first"),
		},
		Session: SessionConfig{
			Expiry:          time.Duration(getEnvAsInt("SESSION_EXPIRY", 3600)) * time.Second,
			Policy:          getEnv("SESSION_POLICY", "cached"),
			TimetableTTL:    time.Duration(getEnvAsInt("TIMETABLE_CACHE_TTL", 300)) * time.Second,
			AuthMaxAttempts: getEnvAsInt("AUTH_MAX_ATTEMPTS", 5),
			AuthBackoffBase: time.Duration(getEnvAsInt("AUTH_BACKOFF_BASE_MS", 500)) * time.Millisecond,
			AuthBackoffMax:  time.Duration(getEnvAsInt("AUTH_BACKOFF_MAX_MS", 15000)) * time.Millisecond,
		},
		Reservation: ReservationConfig{
			AutoCancelOnCodeFailure: getEnvAsBool("AUTO_CANCEL_ON_CODE_FAILURE", true),
		},
		Cron: CronConfig{
			AutoReserveSchedules: getEnvAsSliceSep("AUTO_RESERVE_SCHEDULE", ";", nil),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 5),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 2),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 86400)) * time.Second,
		},
		Auth: AuthConfig{
			PasswordHash: getEnv("API_PASSWORD_HASH", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := validator.ValidateAccount(c.Portal.Username); err != nil {
		return fmt.Errorf("PORTAL_USERNAME: %w", err)
	}

	if c.Portal.Password == "" {
		return fmt.Errorf("PORTAL_PASSWORD is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Auth.PasswordHash == "" {
		return fmt.Errorf("API_PASSWORD_HASH is required")
	}

	if c.Schedule.PrevInterval <= 0 || c.Schedule.NextInterval <= 0 {
		return fmt.Errorf("PREV_INTERVAL_MINUTES and NEXT_INTERVAL_MINUTES must be positive")
	}

	for _, id := range c.Schedule.OutboundRouteIDs {
		for _, other := range c.Schedule.ReturnRouteIDs {
			if id == other {
				return fmt.Errorf("route %d is listed in both OUTBOUND_ROUTE_IDS and RETURN_ROUTE_IDS", id)
			}
		}
	}

	switch c.Schedule.ExpiredSlotPolicy {
	case "first", "closest":
	default:
		return fmt.Errorf("invalid EXPIRED_SLOT_POLICY: %s (must be 'first' or 'closest')", c.Schedule.ExpiredSlotPolicy)
	}

	switch c.Session.Policy {
	case "cached", "eager":
	default:
		return fmt.Errorf("invalid SESSION_POLICY: %s (must be 'cached' or 'eager')", c.Session.Policy)
	}

	if c.Session.AuthMaxAttempts < 1 {
		return fmt.Errorf("AUTH_MAX_ATTEMPTS must be at least 1")
	}

	if c.Portal.RateLimit <= 0 || c.Portal.RateBurst < 1 {
		return fmt.Errorf("PORTAL_RATE_LIMIT and PORTAL_RATE_BURST must be positive")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	return getEnvAsSliceSep(key, ",", defaultValue)
}

func getEnvAsSliceSep(key, sep string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, sep) {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func getEnvAsIntSlice(key string, defaultValue []int) ([]int, error) {
	values := getEnvAsSlice(key, nil)
	if values == nil {
		return defaultValue, nil
	}
	result := make([]int, 0, len(values))
	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, v, err)
		}
		result = append(result, n)
	}
	return result, nil
}
