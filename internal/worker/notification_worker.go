package worker

import (
	"context"

	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
)

// StartNotificationWorker consumes the hub's global stream and forwards each
// event to the notification service until ctx is cancelled.
func StartNotificationWorker(ctx context.Context, hub *events.Hub, notifications *service.NotificationService) {
	if hub == nil || notifications == nil {
		return
	}
	sub := hub.SubscribeAll()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				notifications.Handle(ctx, event)
			}
		}
	}()
}
