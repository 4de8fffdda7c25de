package notify

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/metrics"
)

// Provider discriminators accepted in sms_settings.provider.
const (
	ProviderSNS      = "aws_sns"
	ProviderTwilio   = "twilio"
	ProviderTextbelt = "textbelt"
	ProviderHTTP     = "http"
	ProviderGmail    = "gmail"
	ProviderBrevo    = "brevo"
	ProviderNATS     = "nats"
	ProviderMock     = "mock"
)

const placeholderPrefix = "YOUR_"

type field struct {
	name  string
	value string
}

// New builds a sender from the notifier settings. Unknown providers,
// missing fields and placeholder values all degrade to a console-only
// sender with a warning; New never fails.
func New(ctx context.Context, s *config.SMSSettings, recorder metrics.Recorder, logger *slog.Logger) *Sender {
	if s == nil || strings.TrimSpace(s.Provider) == "" {
		logger.Info("SMS alerts not configured, alerts will be logged only")
		return NewSender(nil, recorder, logger)
	}

	provider, err := newProvider(ctx, s, logger)
	if err != nil {
		logger.Warn("Notifier disabled, alerts will be logged only",
			"provider", s.Provider,
			"reason", err.Error())
		return NewSender(nil, recorder, logger)
	}

	logger.Info("Notifier configured", "provider", provider.Name())
	return NewSender(provider, recorder, logger)
}

func newProvider(ctx context.Context, s *config.SMSSettings, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case ProviderSNS:
		if err := checkFields(
			field{"aws_access_key_id", s.AWSAccessKeyID},
			field{"aws_secret_access_key", s.AWSSecretAccessKey},
			field{"aws_region", s.AWSRegion},
			field{"recipient_phone_number", s.RecipientPhoneNumber},
		); err != nil {
			return nil, err
		}
		return NewSNSProvider(ctx, s.AWSAccessKeyID, s.AWSSecretAccessKey, s.AWSRegion, s.RecipientPhoneNumber, logger)

	case ProviderTwilio:
		if err := checkFields(
			field{"twilio_account_sid", s.TwilioAccountSID},
			field{"twilio_auth_token", s.TwilioAuthToken},
			field{"twilio_from_number", s.TwilioFromNumber},
			field{"recipient_phone_number", s.RecipientPhoneNumber},
		); err != nil {
			return nil, err
		}
		return NewTwilioProvider(s.TwilioAccountSID, s.TwilioAuthToken, s.TwilioFromNumber, s.RecipientPhoneNumber, logger), nil

	case ProviderTextbelt:
		if err := checkFields(
			field{"textbelt_key", s.TextbeltKey},
			field{"recipient_phone_number", s.RecipientPhoneNumber},
		); err != nil {
			return nil, err
		}
		return NewTextbeltProvider(s.TextbeltKey, s.RecipientPhoneNumber, logger), nil

	case ProviderHTTP:
		if err := checkFields(
			field{"api_url", s.APIURL},
			field{"api_token", s.APIToken},
			field{"recipient_phone_number", s.RecipientPhoneNumber},
		); err != nil {
			return nil, err
		}
		return NewWebhookProvider(s.APIURL, s.APIToken, s.RecipientPhoneNumber, logger), nil

	case ProviderGmail:
		if err := checkFields(field{"email_to", s.EmailTo}); err != nil {
			return nil, err
		}
		creds := s.GoogleCredentialsJSON
		if creds == "" {
			creds = os.Getenv("GOOGLE_CREDENTIALS_JSON")
		}
		return NewGmailProvider(ctx, creds, s.EmailTo, logger)

	case ProviderBrevo:
		if err := checkFields(
			field{"brevo_api_key", s.BrevoAPIKey},
			field{"email_from", s.EmailFrom},
			field{"email_to", s.EmailTo},
		); err != nil {
			return nil, err
		}
		return NewBrevoProvider(s.BrevoAPIKey, s.EmailFrom, s.EmailTo, logger), nil

	case ProviderNATS:
		if err := checkFields(field{"nats_url", s.NATSURL}); err != nil {
			return nil, err
		}
		return NewNATSProvider(s.NATSURL, s.NATSSubject, logger)

	case ProviderMock:
		return NewMockProvider(logger), nil

	default:
		return nil, &unsupportedError{provider: s.Provider}
	}
}

type unsupportedError struct {
	provider string
}

func (e *unsupportedError) Error() string {
	return "provider " + e.provider + " is not supported"
}

type settingsError struct {
	missing      []string
	placeholders []string
}

func (e *settingsError) Error() string {
	var parts []string
	if len(e.missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.missing, ", "))
	}
	if len(e.placeholders) > 0 {
		parts = append(parts, "placeholder values in "+strings.Join(e.placeholders, ", "))
	}
	return strings.Join(parts, "; ")
}

// checkFields reports empty values and values still holding a YOUR_... placeholder.
func checkFields(fields ...field) error {
	var e settingsError
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		switch {
		case v == "":
			e.missing = append(e.missing, f.name)
		case strings.HasPrefix(v, placeholderPrefix):
			e.placeholders = append(e.placeholders, f.name)
		}
	}
	if len(e.missing) == 0 && len(e.placeholders) == 0 {
		return nil
	}
	return &e
}
