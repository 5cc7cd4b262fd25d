package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voice-translation-viewer/internal/events"
	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/session"
	"voice-translation-viewer/internal/service/viewer"
)

const maxBodyBytes = 1 << 20

// Viewer is the part of the session controller the HTTP surface needs.
type Viewer interface {
	Views() viewer.Views
	Dispatch(ctx context.Context, a session.Action) (session.State, error)
	Ingest(ctx context.Context, batch []models.Segment) error
	Sync(ctx context.Context) error
}

// Options tune the router. Ready reports whether the room has been joined;
// nil means always ready. A nil Hub disables /ws.
type Options struct {
	Ready       func() bool
	Hub         *Hub
	AllowIngest bool
}

type actionRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the viewer.
func NewRouter(v Viewer, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready != nil && !opts.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/views", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views())
		})
		r.Get("/transcript", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Transcript)
		})
		r.Get("/captions", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Captions)
		})
		r.Get("/speakers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Speakers)
		})
		r.Get("/languages", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Languages)
		})
		r.Get("/routing", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Routing)
		})
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, v.Views().Session)
		})
		r.Post("/session/actions", actionHandler(v))
		if opts.AllowIngest {
			r.Post("/segments", ingestHandler(v))
		}
	})

	if opts.Hub != nil {
		r.Handle("/ws", opts.Hub)
	}

	return r
}

func actionHandler(v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		action, err := session.ParseAction(req.Kind, req.Payload)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		st, err := v.Dispatch(r.Context(), action)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func ingestHandler(v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		batch, err := events.DecodeBatch(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err := v.Ingest(r.Context(), batch.Segments); err != nil {
			writeError(w, err)
			return
		}
		if err := v.Sync(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, v.Views().Transcript)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, viewer.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
