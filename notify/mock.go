package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of sending them. Useful for local development.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

func (m *MockProvider) Name() string { return ProviderMock }

// Send logs the message.
func (m *MockProvider) Send(_ context.Context, msg Message) error {
	m.logger.Info("MOCK NOTIFICATION",
		"creator", msg.Alert.CreatorName,
		"tier", msg.Alert.TierName,
		"text_length", len(msg.Text))
	return nil
}
