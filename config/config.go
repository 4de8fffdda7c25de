// Package config loads and validates the watch list document.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"patreon-tier-notifier/pkg/notifier"
)

// Defaults applied when the document omits a field.
const (
	DefaultUserAgent            = "Patreon Tier Alerter Bot/1.0"
	DefaultCheckIntervalSeconds = 3600
	DefaultRequestDelaySeconds  = 5
	DefaultMaxConcurrency       = 4
	DefaultMaxBackoffSeconds    = 6 * 60 * 60
)

// ErrMissing reports that no configuration source produced a document.
var ErrMissing = errors.New("missing configuration")

// InvalidError reports a document that could not be parsed or failed validation.
type InvalidError struct {
	Err error
}

func (e *InvalidError) Error() string { return e.Err.Error() }

func (e *InvalidError) Unwrap() error { return e.Err }

// SMSSettings selects and configures the notification provider.
// Fields unused by the chosen provider are ignored.
type SMSSettings struct {
	Provider             string `mapstructure:"provider"`
	RecipientPhoneNumber string `mapstructure:"recipient_phone_number"`

	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSRegion          string `mapstructure:"aws_region"`

	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	TwilioFromNumber string `mapstructure:"twilio_from_number"`

	TextbeltKey string `mapstructure:"textbelt_key"`

	APIURL   string `mapstructure:"api_url"`
	APIToken string `mapstructure:"api_token"`

	EmailTo               string `mapstructure:"email_to"`
	EmailFrom             string `mapstructure:"email_from"`
	BrevoAPIKey           string `mapstructure:"brevo_api_key"`
	GoogleCredentialsJSON string `mapstructure:"google_credentials_json"`

	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

// Config is the watch list plus scheduling and notifier settings.
type Config struct {
	Creators             []notifier.Creator `mapstructure:"creators" validate:"required,min=1,unique=Name,dive"`
	UserAgent            string             `mapstructure:"user_agent" validate:"required"`
	CheckIntervalSeconds int                `mapstructure:"check_interval_seconds" validate:"gt=0"`
	RequestDelaySeconds  int                `mapstructure:"request_delay_seconds" validate:"gte=0"`
	MaxConcurrency       int                `mapstructure:"max_concurrency" validate:"gt=0"`
	MaxBackoffSeconds    int                `mapstructure:"max_backoff_seconds" validate:"gt=0"`
	SMSSettings          *SMSSettings       `mapstructure:"sms_settings"`
}

// CheckInterval is the pause between check cycles.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// RequestDelay is the politeness pause between creators in sequential mode.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// MaxBackoff caps how long a failing creator is skipped.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("check_interval_seconds", DefaultCheckIntervalSeconds)
	v.SetDefault("request_delay_seconds", DefaultRequestDelaySeconds)
	v.SetDefault("max_concurrency", DefaultMaxConcurrency)
	v.SetDefault("max_backoff_seconds", DefaultMaxBackoffSeconds)

	_ = v.BindEnv("user_agent", "USER_AGENT")
	_ = v.BindEnv("check_interval_seconds", "CHECK_INTERVAL_SECONDS")
	_ = v.BindEnv("max_concurrency", "MAX_CONCURRENCY")

	return v
}

// Load reads and validates the document at path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// LoadFirst tries each path in order and returns the first document that loads.
// The error from the last attempt is returned when none succeed.
func LoadFirst(paths ...string) (*Config, string, error) {
	err := ErrMissing
	for _, p := range paths {
		var cfg *Config
		cfg, err = Load(p)
		if err == nil {
			return cfg, p, nil
		}
	}
	return nil, "", err
}

// Parse decodes and validates an inline JSON document.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMissing
	}
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &InvalidError{Err: fmt.Errorf("parse config: %w", err)}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &InvalidError{Err: fmt.Errorf("decode config: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InvalidError{Err: err}
	}
	return &cfg, nil
}

// Validate checks required fields and that creator names are unique, since
// creator names namespace the alert cache.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("validate config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LogLevel reads LOG_LEVEL (debug, info, warn, error), defaulting to info.
func LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}
