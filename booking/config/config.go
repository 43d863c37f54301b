package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/hostelhub/booking-service/pkg/kafka"
	"github.com/hostelhub/booking-service/pkg/logger"
	"github.com/hostelhub/booking-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `envconfig:"BOOKING_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"BOOKING_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ" default:"30s"`
	WriteTimeout time.Duration
}

// Engine holds the reservation engine knobs.
type Engine struct {
	// how far in the past a check-in may still be accepted
	GraceWindow time.Duration `envconfig:"BOOKING_GRACE_WINDOW" default:"0s"`
	// onCreate | onExplicitConfirm
	ConfirmationTrigger string        `envconfig:"BOOKING_CONFIRMATION_TRIGGER" default:"onExplicitConfirm"`
	RetryMaxAttempts    int           `envconfig:"BOOKING_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBackoffBase    time.Duration `envconfig:"BOOKING_RETRY_BACKOFF_BASE" default:"100ms"`
	ReminderLead        time.Duration `envconfig:"BOOKING_REMINDER_LEAD" default:"24h"`
	SweepInterval       time.Duration `envconfig:"BOOKING_SWEEP_INTERVAL" default:"1m"`
	NotifyAttempts      int           `envconfig:"BOOKING_NOTIFY_ATTEMPTS" default:"5"`
	NotifyBackoff       time.Duration `envconfig:"BOOKING_NOTIFY_BACKOFF" default:"1s"`
}

type Config struct {
	Server   HTTPServer
	Database postgres.Config
	Kafka    kafka.Config
	Engine   Engine
	Log      logger.Log
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}
