package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/betadomot/storefront/api/responses"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/events"
	"github.com/betadomot/storefront/pkg/logger"
)

const sseKeepAlive = 25 * time.Second

// Subscriber hands out per-session change streams.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan events.Event, func())
}

// CartEvents streams cart and wishlist change notifications for the session
// as server-sent events until the client disconnects.
func CartEvents(sub Subscriber, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		stream, cancel := sub.Subscribe(sessionID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt, open := <-stream:
				if !open {
					return
				}
				if err := writeEvent(w, evt); err != nil {
					if logg != nil {
						logg.Warn(logg.WithField(ctx, "error", err.Error()), "cart.events.write_failed")
					}
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
	return err
}
