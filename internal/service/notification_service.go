package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
)

// NotificationService turns committed queue transitions into patron
// notifications. Delivery is a stub; the selection logic is real.
type NotificationService struct {
	tokens repository.TokenRepository
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(tokens repository.TokenRepository, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		tokens: tokens,
		logger: logger,
		cfg:    cfg,
	}
}

// Handle processes one event.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) {
	switch event.Type {
	case events.EventQueueAdvanced:
		n.handleQueueAdvanced(ctx, event)
	case events.EventTokenSkipped, events.EventTokenNoShow:
		n.logger.Info("token resolved by staff",
			zap.String("queue_id", event.QueueID),
			zap.String("token_id", event.TokenID),
			zap.String("event_type", string(event.Type)))
	}
}

// handleQueueAdvanced notifies the token now being served and the patrons
// whose turn is coming up within the configured window.
func (n *NotificationService) handleQueueAdvanced(ctx context.Context, event events.Event) {
	n.logger.Info("now serving",
		zap.String("queue_id", event.QueueID),
		zap.Int("token_number", event.CurrentToken))
	n.sendWebhookStub(event)

	window := n.cfg.TurnNearWindow
	if window <= 0 {
		return
	}
	upcoming, err := n.tokens.ListByQueue(ctx, event.QueueID,
		[]domain.TokenStatus{domain.TokenStatusWaiting, domain.TokenStatusCheckedIn}, 0)
	if err != nil {
		n.logger.Warn("upcoming lookup failed", zap.Error(err))
		return
	}
	notified := 0
	for i := range upcoming {
		if upcoming[i].TokenNumber <= event.CurrentToken {
			continue
		}
		n.logger.Info("turn near",
			zap.String("queue_id", event.QueueID),
			zap.String("patron_id", upcoming[i].PatronID),
			zap.Int("token_number", upcoming[i].TokenNumber),
			zap.Int("positions_away", notified+1))
		notified++
		if notified >= window {
			break
		}
	}
}

func (n *NotificationService) sendWebhookStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("queue_id", event.QueueID),
		zap.String("event_type", string(event.Type)))
}
