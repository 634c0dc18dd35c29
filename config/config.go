package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

const (
	EmailProviderNone    = ""
	EmailProviderMailgun = "mailgun"
	EmailProviderMailjet = "mailjet"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS      string `env:"SERVER_DNS" envDefault:"http://localhost:3000"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"ttquick.sqlite"`
	}

	SlotAPI struct {
		BaseURL   string        `env:"SLOT_API_BASE_URL" envDefault:"https://ttp.cbp.dhs.gov/schedulerapi/"`
		Timeout   time.Duration `env:"SLOT_API_TIMEOUT" envDefault:"5s"`
		UserAgent string        `env:"SLOT_API_USER_AGENT" envDefault:"Mozilla/5.0"`
	}

	Poller struct {
		Schedule              string        `env:"POLL_SCHEDULE" envDefault:"@every 5m"`
		Concurrency           int           `env:"POLL_CONCURRENCY" envDefault:"5"`
		TickTimeout           time.Duration `env:"TICK_TIMEOUT" envDefault:"2m"`
		RecheckDelay          time.Duration `env:"RECHECK_DELAY" envDefault:"10m"`
		ResetHour             int           `env:"RESET_HOUR" envDefault:"6"`
		TimeZone              string        `env:"TIMEZONE" envDefault:"America/New_York"`
		DirectorySyncSchedule string        `env:"DIRECTORY_SYNC_SCHEDULE" envDefault:"0 5 * * *"`
		SyncOnStart           bool          `env:"SYNC_ON_START" envDefault:"true"`
	}

	Quota struct {
		DailyLimit int `env:"DAILY_NOTIFICATION_LIMIT" envDefault:"3"`
		Initial    int `env:"INITIAL_NOTIFICATIONS" envDefault:"10"`
	}

	Email struct {
		Provider   string        `env:"EMAIL_PROVIDER"`
		SenderFrom string        `env:"EMAIL_SENDER_FROM" envDefault:"Trusted Travel Quick <support@ttquick.dev>"`
		Timeout    time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	}
	Mailgun struct {
		Domain string `env:"MAILGUN_DOMAIN"`
		APIKey string `env:"MAILGUN_API_KEY"`
	}
	Mailjet struct {
		PublicKey  string `env:"MAILJET_PUBLIC_KEY"`
		PrivateKey string `env:"MAILJET_PRIVATE_KEY"`
	}

	log      *zap.Logger
	creds    map[string]string
	location *time.Location
}

// ConfigurationError is returned for missing or malformed settings. It is
// only ever raised at start-up.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfig(log *zap.Logger) (*Config, error) {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		return nil, &ConfigurationError{"environment", err}
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) init() error {
	creds, err := cfg.parseCreds()
	if err != nil {
		if !cfg.IsProduction() {
			cfg.logger().Sugar().Infof("%s (credentials will be set to default outside production)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			return &ConfigurationError{"BASIC_AUTH_CREDS", err}
		}
	}
	cfg.creds = creds

	loc, err := time.LoadLocation(cfg.Poller.TimeZone)
	if err != nil {
		return &ConfigurationError{"TIMEZONE", err}
	}
	cfg.location = loc

	return cfg.validate()
}

func (cfg *Config) validate() error {
	switch {
	case cfg.SlotAPI.BaseURL == "":
		return &ConfigurationError{"SLOT_API_BASE_URL", errors.New("must be set")}
	case cfg.SlotAPI.Timeout <= 0:
		return &ConfigurationError{"SLOT_API_TIMEOUT", errors.New("must be positive")}
	case cfg.Poller.TickTimeout <= 0:
		return &ConfigurationError{"TICK_TIMEOUT", errors.New("must be positive")}
	case cfg.Email.Timeout <= 0:
		return &ConfigurationError{"EMAIL_TIMEOUT", errors.New("must be positive")}
	case cfg.Poller.Concurrency < 1:
		return &ConfigurationError{"POLL_CONCURRENCY", errors.New("must be at least 1")}
	case cfg.Poller.RecheckDelay <= 0:
		return &ConfigurationError{"RECHECK_DELAY", errors.New("must be positive")}
	case cfg.Poller.ResetHour < 0 || cfg.Poller.ResetHour > 23:
		return &ConfigurationError{"RESET_HOUR", fmt.Errorf("%d is not an hour of the day", cfg.Poller.ResetHour)}
	case cfg.Quota.DailyLimit < 1:
		return &ConfigurationError{"DAILY_NOTIFICATION_LIMIT", errors.New("must be at least 1")}
	case cfg.Quota.Initial < 0:
		return &ConfigurationError{"INITIAL_NOTIFICATIONS", errors.New("must not be negative")}
	}

	switch cfg.Email.Provider {
	case EmailProviderNone:
	case EmailProviderMailgun:
		if cfg.Mailgun.Domain == "" || cfg.Mailgun.APIKey == "" {
			return &ConfigurationError{"MAILGUN_DOMAIN/MAILGUN_API_KEY", errors.New("required when EMAIL_PROVIDER=mailgun")}
		}
	case EmailProviderMailjet:
		if cfg.Mailjet.PublicKey == "" || cfg.Mailjet.PrivateKey == "" {
			return &ConfigurationError{"MAILJET_PUBLIC_KEY/MAILJET_PRIVATE_KEY", errors.New("required when EMAIL_PROVIDER=mailjet")}
		}
	default:
		return &ConfigurationError{"EMAIL_PROVIDER", fmt.Errorf("unsupported provider %q", cfg.Email.Provider)}
	}
	return nil
}

func (cfg *Config) IsProduction() bool {
	return cfg.Env == "production"
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// Location is the time zone in which the reset hour is interpreted.
func (cfg *Config) Location() *time.Location {
	if cfg.location == nil {
		return time.UTC
	}
	return cfg.location
}

func (cfg *Config) logger() *zap.Logger {
	if cfg.log == nil {
		return zap.NewNop()
	}
	return cfg.log
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
