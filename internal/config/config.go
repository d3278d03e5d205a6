package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Tracing     TracingConfig
	Scheduling  SchedulingConfig
	Integration IntegrationConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s Timezone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

// RedisConfig controls the optional per-provider booking lock. The
// serializable store transaction alone guarantees correctness; disabling
// Redis only removes the contention damper in front of it.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Username string
	Password string
	LockTTL  time.Duration
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

// SchedulingConfig holds the clinic's booking rules. All times are
// interpreted on a single UTC clinic calendar.
type SchedulingConfig struct {
	OpenHour         int           // first bookable hour of day, inclusive
	CloseHour        int           // last bookable hour of day, exclusive
	MinLeadTime      time.Duration // gap required between now and a new slot's start
	RescheduleCutoff time.Duration // gap required between now and the existing slot's start
	MaxReschedules   int
	MinDurationMins  int
	MaxDurationMins  int
	DefaultDuration  int
}

type IntegrationConfig struct {
	PatientServiceURL      string
	DoctorServiceURL       string
	NotificationServiceURL string
	BillingServiceURL      string
	PrescriptionServiceURL string
	RequestTimeout         time.Duration
	NotifyAttempts         int
	BasicAuthUser          string
	BasicAuthPassword      string
	// EligibilityFailOpen decides what happens when the patient or
	// doctor service cannot be reached: true treats the party as active
	// with a logged warning, false rejects the operation.
	EligibilityFailOpen bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "appointment-service"),
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.0.0"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "appointments"),
			User:            getEnv("DB_USER", "appointments"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnv("JWT_ISSUER", "appointment-service"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", true),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "appointment-service"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "otel-collector:4318"),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Scheduling: SchedulingConfig{
			OpenHour:         getEnvInt("CLINIC_OPEN_HOUR", 9),
			CloseHour:        getEnvInt("CLINIC_CLOSE_HOUR", 17),
			MinLeadTime:      getEnvDuration("MIN_LEAD_TIME", 2*time.Hour),
			RescheduleCutoff: getEnvDuration("RESCHEDULE_CUTOFF", time.Hour),
			MaxReschedules:   getEnvInt("MAX_RESCHEDULES", 2),
			MinDurationMins:  getEnvInt("MIN_DURATION_MINS", 5),
			MaxDurationMins:  getEnvInt("MAX_DURATION_MINS", 480),
			DefaultDuration:  getEnvInt("DEFAULT_DURATION_MINS", 30),
		},
		Integration: IntegrationConfig{
			PatientServiceURL:      getEnv("PATIENT_SERVICE_URL", "http://patient-service:5000/api/v1/patients"),
			DoctorServiceURL:       getEnv("DOCTOR_SERVICE_URL", "http://doctor-service:5001/api/v1/doctors"),
			NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://notification-service:5002/api/v1/events"),
			BillingServiceURL:      getEnv("BILLING_SERVICE_URL", "http://billing-service:5003/api/v1/bills"),
			PrescriptionServiceURL: getEnv("PRESCRIPTION_SERVICE_URL", "http://prescription-service:5004/api/v1/prescriptions"),
			RequestTimeout:         getEnvDuration("INTEGRATION_TIMEOUT", 5*time.Second),
			NotifyAttempts:         getEnvInt("NOTIFY_ATTEMPTS", 2),
			BasicAuthUser:          getEnv("INTEGRATION_AUTH_USER", ""),
			BasicAuthPassword:      getEnv("INTEGRATION_AUTH_PASSWORD", ""),
			EligibilityFailOpen:    getEnvBool("ELIGIBILITY_FAIL_OPEN", false),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.Environment == "production" {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	if cfg.Database.Password == "" && cfg.App.Environment != "development" {
		errs = append(errs, "DB_PASSWORD is required in non-development environments")
	}

	if cfg.Database.SSLMode == "disable" && cfg.App.Environment == "production" {
		errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
	}

	s := cfg.Scheduling
	if s.OpenHour < 0 || s.CloseHour > 24 || s.OpenHour >= s.CloseHour {
		errs = append(errs, "CLINIC_OPEN_HOUR must be before CLINIC_CLOSE_HOUR within a single day")
	}
	if s.MinDurationMins <= 0 || s.MinDurationMins > s.MaxDurationMins {
		errs = append(errs, "MIN_DURATION_MINS must be positive and not exceed MAX_DURATION_MINS")
	}
	if s.MaxReschedules < 0 {
		errs = append(errs, "MAX_RESCHEDULES must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
