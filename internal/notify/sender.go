package notify

import (
	"context"
	"log/slog"

	"deliveryTracking/models"
)

// Sender delivers one message to a user over a single channel. Gateways are
// external collaborators; each implementation wraps one of them and is
// expected to respect ctx deadlines.
type Sender interface {
	Channel() models.NotificationChannel
	Send(ctx context.Context, userID, message string) error
}

// SMSSender is a stand-in for an SMS gateway client.
type SMSSender struct {
	logger *slog.Logger
}

func NewSMSSender(logger *slog.Logger) *SMSSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSSender{logger: logger}
}

func (s *SMSSender) Channel() models.NotificationChannel { return models.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("sms sent", "user_id", userID, "message", message)
	return nil
}

// EmailSender is a stand-in for an e-mail gateway client.
type EmailSender struct {
	logger *slog.Logger
}

func NewEmailSender(logger *slog.Logger) *EmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{logger: logger}
}

func (s *EmailSender) Channel() models.NotificationChannel { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email sent", "user_id", userID, "message", message)
	return nil
}

// PushSender is a stand-in for a push gateway client.
type PushSender struct {
	logger *slog.Logger
}

func NewPushSender(logger *slog.Logger) *PushSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSender{logger: logger}
}

func (s *PushSender) Channel() models.NotificationChannel { return models.ChannelPush }

func (s *PushSender) Send(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("push sent", "user_id", userID, "message", message)
	return nil
}

// DefaultSenders returns one sender per supported channel.
func DefaultSenders(logger *slog.Logger) []Sender {
	return []Sender{NewSMSSender(logger), NewEmailSender(logger), NewPushSender(logger)}
}
