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
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// LockoutConfig parameterizes one failed-login gate. The two flows and the
// student IP-wide gate use different values on purpose; they are injected
// per flow rather than unified into shared constants.
type LockoutConfig struct {
	Window             time.Duration // rolling window failures accumulate in
	MaxAttempts        int           // "remaining attempts" is reported against this
	LockThreshold      int           // failures before the key is locked
	TimedLockThreshold int           // failures before the lock gets a hard expiry
	LockoutDuration    time.Duration // length of the timed lock
}

type AuthConfig struct {
	StaffLockout     LockoutConfig
	StudentLockout   LockoutConfig
	StudentIPLockout LockoutConfig

	ChallengeTTL   time.Duration
	ResendCooldown time.Duration
	NotifyTimeout  time.Duration
	SessionTTL     time.Duration

	CleanupInterval time.Duration

	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
	TimingDelayOnSuccess bool
}

type EmailConfig struct {
	AWSRegion      string
	FromAddress    string
	FallbackRegion string // optional second SES region tried when the first fails
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "kainan"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			StaffLockout: LockoutConfig{
				Window:             getEnvAsDuration("STAFF_LOCKOUT_WINDOW", 15*time.Minute),
				MaxAttempts:        getEnvAsInt("STAFF_MAX_ATTEMPTS", 3),
				LockThreshold:      getEnvAsInt("STAFF_LOCK_THRESHOLD", 3),
				TimedLockThreshold: getEnvAsInt("STAFF_TIMED_LOCK_THRESHOLD", 5),
				LockoutDuration:    getEnvAsDuration("STAFF_LOCKOUT_DURATION", 15*time.Minute),
			},
			StudentLockout: LockoutConfig{
				Window:             getEnvAsDuration("STUDENT_LOCKOUT_WINDOW", 15*time.Minute),
				MaxAttempts:        getEnvAsInt("STUDENT_MAX_ATTEMPTS", 3),
				LockThreshold:      getEnvAsInt("STUDENT_LOCK_THRESHOLD", 3),
				TimedLockThreshold: getEnvAsInt("STUDENT_TIMED_LOCK_THRESHOLD", 3),
				LockoutDuration:    getEnvAsDuration("STUDENT_LOCKOUT_DURATION", 60*time.Second),
			},
			StudentIPLockout: LockoutConfig{
				Window:             getEnvAsDuration("STUDENT_IP_LOCKOUT_WINDOW", 30*time.Second),
				MaxAttempts:        getEnvAsInt("STUDENT_IP_MAX_ATTEMPTS", 3),
				LockThreshold:      getEnvAsInt("STUDENT_IP_LOCK_THRESHOLD", 5),
				TimedLockThreshold: getEnvAsInt("STUDENT_IP_TIMED_LOCK_THRESHOLD", 5),
				LockoutDuration:    getEnvAsDuration("STUDENT_IP_LOCKOUT_DURATION", 30*time.Second),
			},
			ChallengeTTL:         getEnvAsDuration("CHALLENGE_TTL", 10*time.Minute),
			ResendCooldown:       getEnvAsDuration("CHALLENGE_RESEND_COOLDOWN", 60*time.Second),
			NotifyTimeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			SessionTTL:           getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		Email: EmailConfig{
			AWSRegion:      getEnv("AWS_REGION", "ap-southeast-1"),
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", "no-reply@kainan.umak.edu.ph"),
			FallbackRegion: getEnv("EMAIL_FALLBACK_REGION", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateLockout("STAFF", cfg.Auth.StaffLockout); err != nil {
		return nil, err
	}
	if err := validateLockout("STUDENT", cfg.Auth.StudentLockout); err != nil {
		return nil, err
	}
	if err := validateLockout("STUDENT_IP", cfg.Auth.StudentIPLockout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateLockout rejects threshold combinations that would make a gate
// unlockable or a no-op.
func validateLockout(prefix string, lc LockoutConfig) error {
	if lc.LockThreshold < 1 {
		return fmt.Errorf("%s_LOCK_THRESHOLD must be at least 1", prefix)
	}
	if lc.TimedLockThreshold < lc.LockThreshold {
		return fmt.Errorf("%s_TIMED_LOCK_THRESHOLD must be >= %s_LOCK_THRESHOLD", prefix, prefix)
	}
	if lc.Window <= 0 {
		return fmt.Errorf("%s_LOCKOUT_WINDOW must be positive", prefix)
	}
	if lc.LockoutDuration <= 0 {
		return fmt.Errorf("%s_LOCKOUT_DURATION must be positive", prefix)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
