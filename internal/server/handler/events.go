package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// StreamReader reads the durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler pages through detection events appended to a stream.
type EventHandler struct {
	reader StreamReader
	stream string
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler for one stream.
func NewEventHandler(reader StreamReader, stream string, logger *slog.Logger) *EventHandler {
	return &EventHandler{reader: reader, stream: stream, logger: logger}
}

type eventJSON struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List returns events after the given stream ID, oldest first. Pass the
// returned "next" value as ?after= to continue.
// GET /api/events?after=0&limit=100
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.reader.StreamRead(r.Context(), h.stream, after, queryLimit(r, 100, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]eventJSON, 0, len(msgs))
	next := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, eventJSON{ID: m.ID, Event: m.Payload})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "next": next})
}
