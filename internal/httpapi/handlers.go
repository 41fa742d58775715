package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/codec"
	"example.com/quadclue/internal/puzzle"
	"example.com/quadclue/internal/store"
)

type ProfileStore interface {
	Create(ctx context.Context, p store.Profile) (store.Profile, error)
	GetByAddress(ctx context.Context, address string) (store.Profile, error)
}

type PuzzleLister interface {
	Puzzles() []puzzle.View
}

type TokenIssuer interface {
	TokenVerifier
	Sign(address, username string) (string, error)
}

// Handler serves the REST side of the game. Gameplay itself runs over /ws.
type Handler struct {
	Profiles ProfileStore
	Stats    chain.StatsFetcher
	Puzzles  PuzzleLister
	Tokens   TokenIssuer
	Log      *slog.Logger
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

type RegisterRequest struct {
	Address  string `json:"address"`
	Username string `json:"username"`
}

type SessionRequest struct {
	Address string `json:"address"`
}

type SessionResponse struct {
	AccessToken string `json:"accessToken"`
}

type ProfileResponse struct {
	Address   string    `json:"address"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type MeResponse struct {
	ProfileResponse
	Stats *chain.PlayerStats `json:"stats,omitempty"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/players", h.Register)
		r.Get("/players/{address}", h.Profile)
		r.Get("/players/{address}/stats", h.PlayerStats)
		r.Post("/session", h.Session)
		r.Get("/puzzles", h.ListPuzzles)
		r.With(AuthMiddleware(h.Tokens)).Get("/me", h.Me)
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	addr := codec.NormalizeAddress(req.Address)
	req.Username = strings.TrimSpace(req.Username)

	if addr == "" {
		writeError(w, http.StatusBadRequest, "bad_address", "address must be a hex or decimal felt")
		return
	}
	if !usernameRe.MatchString(req.Username) {
		writeError(w, http.StatusBadRequest, "bad_username", "username must be 3-32 letters, digits, _ or -")
		return
	}

	p, err := h.Profiles.Create(r.Context(), store.Profile{
		ID:       uuid.NewString(),
		Address:  addr,
		Username: req.Username,
	})
	switch {
	case errors.Is(err, store.ErrAddressTaken):
		writeError(w, http.StatusConflict, "address_taken", "address already registered")
		return
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", "username already taken")
		return
	case err != nil:
		h.Log.Error("create profile", "player", addr, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, profileResponse(p))
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(p))
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok := h.lookup(w, r, req.Address)
	if !ok {
		return
	}

	token, err := h.Tokens.Sign(p.Address, p.Username)
	if err != nil {
		h.Log.Error("sign token", "player", p.Address, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{AccessToken: token})
}

func (h *Handler) ListPuzzles(w http.ResponseWriter, r *http.Request) {
	views := h.Puzzles.Puzzles()
	if views == nil {
		views = []puzzle.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	addr := codec.NormalizeAddress(chi.URLParam(r, "address"))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "bad_address", "address must be a hex or decimal felt")
		return
	}

	st, found, err := h.Stats.PlayerStats(r.Context(), addr)
	if err != nil {
		h.Log.Warn("player stats", "player", addr, "err", err)
		writeError(w, http.StatusBadGateway, "chain_unavailable", "failed to read player stats")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "stats_not_found", "no stats for this player")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return
	}

	p, ok := h.lookup(w, r, claims.Address)
	if !ok {
		return
	}

	resp := MeResponse{ProfileResponse: profileResponse(p)}
	// stats are optional here; the chain may not know the player yet
	if st, found, err := h.Stats.PlayerStats(r.Context(), p.Address); err == nil && found {
		resp.Stats = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, address string) (store.Profile, bool) {
	addr := codec.NormalizeAddress(address)
	if addr == "" {
		writeError(w, http.StatusBadRequest, "bad_address", "address must be a hex or decimal felt")
		return store.Profile{}, false
	}

	p, err := h.Profiles.GetByAddress(r.Context(), addr)
	if errors.Is(err, store.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "player_not_found", "no player with this address")
		return store.Profile{}, false
	}
	if err != nil {
		h.Log.Error("load profile", "player", addr, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load profile")
		return store.Profile{}, false
	}
	return p, true
}

func profileResponse(p store.Profile) ProfileResponse {
	return ProfileResponse{Address: p.Address, Username: p.Username, CreatedAt: p.CreatedAt}
}
