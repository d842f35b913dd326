package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Dispatcher turns a verified webhook delivery into an acknowledgement.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte, signature string) (int, map[string]any)
}

type Server struct {
	dispatcher Dispatcher
	feed       http.Handler
	logger     *slog.Logger
	mux        *http.ServeMux
}

func NewServer(dispatcher Dispatcher, feed http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		dispatcher: dispatcher,
		feed:       feed,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /webhooks/stripe", s.stripeWebhook)
	s.mux.HandleFunc("GET /healthz", s.health)
	if s.feed != nil {
		s.mux.Handle("GET /ws/payments/{intentID}", s.feed)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	// Signature verification needs the raw body, so no JSON middleware here.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("read webhook body", "err", err)
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	status, resp := s.dispatcher.Dispatch(r.Context(), body, r.Header.Get("Stripe-Signature"))
	writeJSON(w, status, resp)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
