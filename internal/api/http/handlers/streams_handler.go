package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
)

// StreamsHandler serves server-sent event streams off the fanout hub. One
// stream per queue for boards and staff dashboards, one per token for a
// patron tracking their own place.
type StreamsHandler struct {
	hub    *events.Hub
	logger *zap.Logger
	// keepAlive is the comment-frame interval that holds idle connections
	// open through proxies.
	keepAlive time.Duration
}

// NewStreamsHandler constructs handler.
func NewStreamsHandler(hub *events.Hub, logger *zap.Logger) *StreamsHandler {
	return &StreamsHandler{hub: hub, logger: logger, keepAlive: 25 * time.Second}
}

// Queue GET /streams/queues/:id.
func (h *StreamsHandler) Queue(c *fiber.Ctx) error {
	queueID := c.Params("id")
	return h.stream(c, func() *events.Subscription {
		return h.hub.SubscribeQueue(queueID)
	})
}

// Token GET /streams/tokens/:id.
func (h *StreamsHandler) Token(c *fiber.Ctx) error {
	tokenID := c.Params("id")
	return h.stream(c, func() *events.Subscription {
		return h.hub.SubscribeToken(tokenID)
	})
}

func (h *StreamsHandler) stream(c *fiber.Ctx, subscribe func() *events.Subscription) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		sub := subscribe()
		defer sub.Close()

		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					h.logger.Debug("stream closed", zap.Error(err))
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload); err != nil {
		return err
	}
	return w.Flush()
}
