package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Mail transport selection
const (
	MailProviderHTTP = "http" // SendGrid-compatible HTTP API
	MailProviderSES  = "ses"  // AWS SES
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (edge rate limiting; shared audit counters in multi-instance deployments)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Mail transport
	MailProvider   string // "http" or "ses"
	MailAPIBaseURL string // HTTP provider endpoint
	MailAPIKey     string
	MailFrom       string
	MailReplyTo    string
	AWSRegion      string

	// Platform identity used in rendered templates
	PlatformName string
	PlatformURL  string

	// Notification behavior
	ApprovalRetries int           // retry budget for approval/rejection emails
	WelcomeRetries  int           // retry budget for welcome/digest emails
	WelcomeDelay    time.Duration // dispatch delay before the welcome email
	SendTimeout     time.Duration // per-attempt transport timeout

	// Export service
	ExportServiceURL string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "clubmatch",
		DBPassword: "",
		DBName:     "clubmatch",
		DBSSLMode:  "disable",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		MailProvider:   MailProviderHTTP,
		MailAPIBaseURL: "https://api.sendgrid.com/v3/mail/send",
		MailFrom:       "noreply@clubmatch.local",
		AWSRegion:      "us-east-1",

		PlatformName: "ClubMatch",
		PlatformURL:  "https://clubmatch.local",

		ApprovalRetries: 3,
		WelcomeRetries:  2,
		WelcomeDelay:    2 * time.Second,
		SendTimeout:     10 * time.Second,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Mail transport config
	if provider := os.Getenv("MAIL_PROVIDER"); provider != "" {
		if provider != MailProviderHTTP && provider != MailProviderSES {
			return nil, fmt.Errorf("invalid MAIL_PROVIDER: %q (must be %q or %q)", provider, MailProviderHTTP, MailProviderSES)
		}
		cfg.MailProvider = provider
	}

	if url := os.Getenv("MAIL_API_BASE_URL"); url != "" {
		cfg.MailAPIBaseURL = url
	}

	if key := os.Getenv("MAIL_API_KEY"); key != "" {
		cfg.MailAPIKey = key
	}

	if from := os.Getenv("MAIL_FROM"); from != "" {
		cfg.MailFrom = from
	}

	if replyTo := os.Getenv("MAIL_REPLY_TO"); replyTo != "" {
		cfg.MailReplyTo = replyTo
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// Platform identity
	if name := os.Getenv("PLATFORM_NAME"); name != "" {
		cfg.PlatformName = name
	}

	if url := os.Getenv("PLATFORM_URL"); url != "" {
		cfg.PlatformURL = url
	}

	// Notification behavior
	if retries := os.Getenv("NOTIFY_APPROVAL_RETRIES"); retries != "" {
		r, err := strconv.Atoi(retries)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("invalid NOTIFY_APPROVAL_RETRIES: %q", retries)
		}
		cfg.ApprovalRetries = r
	}

	if retries := os.Getenv("NOTIFY_WELCOME_RETRIES"); retries != "" {
		r, err := strconv.Atoi(retries)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("invalid NOTIFY_WELCOME_RETRIES: %q", retries)
		}
		cfg.WelcomeRetries = r
	}

	if delay := os.Getenv("NOTIFY_WELCOME_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid NOTIFY_WELCOME_DELAY: %q", delay)
		}
		cfg.WelcomeDelay = d
	}

	if timeout := os.Getenv("MAIL_SEND_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid MAIL_SEND_TIMEOUT: %q", timeout)
		}
		cfg.SendTimeout = d
	}

	if url := os.Getenv("EXPORT_SERVICE_URL"); url != "" {
		cfg.ExportServiceURL = url
	}

	return cfg, nil
}
