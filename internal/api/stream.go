package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
)

// stream pushes the store's notification list as server-sent events. Each
// event carries the full newest-first list.
func (h *handlers) stream(c *fiber.Ctx) error {
	ch := h.notifications(c)
	sess := sessionOf(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// the request context is gone once the handler returns
		ctx, cancel := context.WithCancel(session.WithSession(context.Background(), sess))
		defer cancel()

		events := make(chan []models.Document, 1)
		stop := ch.Subscribe(ctx, func(docs []models.Document) {
			offerLatest(events, docs)
		})
		defer stop()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		if err := streamLoop(w, events, ticker.C, h.done); err != nil {
			h.log.Debug(ctx, "notification stream closed", "error", err)
		}
	}))
	return nil
}

// offerLatest replaces any undelivered snapshot with docs.
func offerLatest(events chan []models.Document, docs []models.Document) {
	for {
		select {
		case events <- docs:
			return
		default:
		}
		select {
		case <-events:
		default:
		}
	}
}

// streamLoop writes events until done closes or the client goes away.
func streamLoop(w *bufio.Writer, events <-chan []models.Document, heartbeat <-chan time.Time, done <-chan struct{}) error {
	for {
		select {
		case docs := <-events:
			b, err := json.Marshal(docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: notifications\ndata: %s\n\n", b)
		case <-heartbeat:
			fmt.Fprint(w, ": ping\n\n")
		case <-done:
			return nil
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}
