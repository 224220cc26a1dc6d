package sms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogGateway accepts every message and only logs it. Used when SMS_MODE=dev.
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a new logging gateway
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message and reports success
func (g *LogGateway) Send(ctx context.Context, contact, message string) (DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, NewTransientError("cancelled", err)
	}

	result := DeliveryResult{
		MessageID:  uuid.NewString(),
		Gateway:    g.Name(),
		AcceptedAt: time.Now().UTC(),
	}

	g.logger.WithFields(logrus.Fields{
		"contact":    contact,
		"message_id": result.MessageID,
		"length":     len(message),
	}).Info("SMS (dev mode, not sent)")

	return result, nil
}

// Name returns the name of this SMS gateway
func (g *LogGateway) Name() string {
	return "log"
}
