package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Payments  PaymentsConfig
	SMTP      SMTPConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PaymentsConfig struct {
	BaseURL     string
	APIKey      string
	RedirectURL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SchedulerConfig struct {
	CancelInterval    time.Duration // how often stale reservations are swept
	CleanupInterval   time.Duration // how often abandoned orders are removed
	PaymentInterval   time.Duration // how often pending payments are polled
	WebhookInterval   time.Duration // how often pending webhook tasks are delivered
	ReservationMaxAge time.Duration // how long a reservation may stay unpaid
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	paymentsBaseURL := os.Getenv("PAYMENTS_BASE_URL")
	if paymentsBaseURL == "" {
		return nil, fmt.Errorf("%s: missing PAYMENTS_BASE_URL", op)
	}

	paymentsAPIKey := os.Getenv("PAYMENTS_API_KEY")
	if paymentsAPIKey == "" {
		return nil, fmt.Errorf("%s: missing PAYMENTS_API_KEY", op)
	}

	smtpPort, err := envInt("SMTP_PORT", 25)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sched := SchedulerConfig{}
	for _, d := range []struct {
		name string
		def  time.Duration
		dst  *time.Duration
	}{
		{"SCHED_CANCEL_INTERVAL", time.Minute, &sched.CancelInterval},
		{"SCHED_CLEANUP_INTERVAL", time.Hour, &sched.CleanupInterval},
		{"SCHED_PAYMENT_INTERVAL", 30 * time.Second, &sched.PaymentInterval},
		{"SCHED_WEBHOOK_INTERVAL", 15 * time.Second, &sched.WebhookInterval},
		{"RESERVATION_MAX_AGE", 72 * time.Hour, &sched.ReservationMaxAge},
	} {
		v, err := envDuration(d.name, d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		*d.dst = v
	}

	return &Config{
		Server: ServerConfig{
			Host: envStr("SERVER_HOST", "localhost"),
			Port: serverPort,
		},
		Postgres: PostgresConfig{
			User:     postgresUser,
			Password: postgresPassword,
			Name:     postgresDB,
			Host:     envStr("POSTGRES_HOST", "localhost"),
			Port:     postgresPort,
			SSLMode:  envStr("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Payments: PaymentsConfig{
			BaseURL:     paymentsBaseURL,
			APIKey:      paymentsAPIKey,
			RedirectURL: envStr("PAYMENTS_REDIRECT_URL", "http://localhost:8080/orders/return"),
		},
		SMTP: SMTPConfig{
			Host:     envStr("SMTP_HOST", "localhost"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envStr("SMTP_FROM", "boxoffice@localhost"),
		},
		Scheduler: sched,
	}, nil
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
