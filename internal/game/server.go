package game

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"example.com/quadclue/internal/auth"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Server struct {
	sessions *SessionService
	verifier TokenVerifier
	log      *slog.Logger
}

func NewServer(sessions *SessionService, verifier TokenVerifier, log *slog.Logger) *Server {
	return &Server{
		sessions: sessions,
		verifier: verifier,
		log:      log,
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.handleWS)
}

// tokenFrom reads a bearer token from the Authorization header, falling
// back to ?token= since browsers cannot set headers on WebSocket dials.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoPuzzle):
		return "no_puzzle"
	case errors.Is(err, ErrAlreadySolved):
		return "already_solved"
	case errors.Is(err, ErrInvalidGuess):
		return "invalid_guess"
	case errors.Is(err, ErrAlreadyPending):
		return "already_pending"
	case errors.Is(err, ErrNoHints):
		return "no_hints"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
