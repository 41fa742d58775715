package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/quadclue/internal/auth"
	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/codec"
	"example.com/quadclue/internal/puzzle"
	"example.com/quadclue/internal/store"
)

var alice = codec.NormalizeAddress("0xa11ce")

type memProfiles struct {
	mu sync.Mutex
	m  map[string]store.Profile
}

func (p *memProfiles) Create(ctx context.Context, pr store.Profile) (store.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[pr.Address]; ok {
		return store.Profile{}, store.ErrAddressTaken
	}
	for _, other := range p.m {
		if other.Username == pr.Username {
			return store.Profile{}, store.ErrUsernameTaken
		}
	}
	pr.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.m[pr.Address] = pr
	return pr, nil
}

func (p *memProfiles) GetByAddress(ctx context.Context, address string) (store.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.m[address]
	if !ok {
		return store.Profile{}, store.ErrProfileNotFound
	}
	return pr, nil
}

type fakeStats struct {
	stats map[string]chain.PlayerStats
	err   error
}

func (f fakeStats) PlayerStats(ctx context.Context, address string) (chain.PlayerStats, bool, error) {
	if f.err != nil {
		return chain.PlayerStats{}, false, f.err
	}
	st, ok := f.stats[address]
	return st, ok, nil
}

type staticPuzzles []puzzle.View

func (s staticPuzzles) Puzzles() []puzzle.View { return s }

type fixture struct {
	profiles *memProfiles
	tokens   *auth.Service
	ts       *httptest.Server
}

func newFixture(t *testing.T, stats chain.StatsFetcher) *fixture {
	t.Helper()
	f := &fixture{
		profiles: &memProfiles{m: map[string]store.Profile{}},
		tokens:   auth.NewService("test-secret", time.Hour),
	}
	h := &Handler{
		Profiles: f.profiles,
		Stats:    stats,
		Puzzles:  staticPuzzles{{ID: 1, WordLength: 5, Difficulty: "LEVEL_1", Active: true}},
		Tokens:   f.tokens,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	r := chi.NewRouter()
	h.Routes(r)
	f.ts = httptest.NewServer(r)
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func errCode(t *testing.T, b []byte) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(b, &e))
	return e.Code
}

func TestRegister(t *testing.T) {
	f := newFixture(t, fakeStats{})

	cases := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"ok", `{"address":"0xA11CE","username":"alice"}`, http.StatusCreated, ""},
		{"same address", `{"address":"0x00a11ce","username":"alice2"}`, http.StatusConflict, "address_taken"},
		{"same username", `{"address":"0xb0b","username":"alice"}`, http.StatusConflict, "username_taken"},
		{"bad address", `{"address":"zzz","username":"bob"}`, http.StatusBadRequest, "bad_address"},
		{"bad username", `{"address":"0xb0b","username":"b o"}`, http.StatusBadRequest, "bad_username"},
		{"bad json", `{`, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, b := f.do(t, http.MethodPost, "/api/players", tc.body, "")
			require.Equal(t, tc.wantCode, resp.StatusCode, string(b))
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, errCode(t, b))
				return
			}
			var p ProfileResponse
			require.NoError(t, json.Unmarshal(b, &p))
			assert.Equal(t, alice, p.Address)
			assert.Equal(t, "alice", p.Username)
		})
	}

	resp, b := f.do(t, http.MethodGet, "/api/players/0xa11ce", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p ProfileResponse
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, "alice", p.Username)

	resp, b = f.do(t, http.MethodGet, "/api/players/0xb0b", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "player_not_found", errCode(t, b))
}

func TestSessionAndMe(t *testing.T) {
	f := newFixture(t, fakeStats{stats: map[string]chain.PlayerStats{
		alice: {PuzzlesSolved: 2, TokensEarned: 32, Level: 3},
	}})

	resp, b := f.do(t, http.MethodPost, "/api/session", `{"address":"0xa11ce"}`, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "player_not_found", errCode(t, b))

	resp, _ = f.do(t, http.MethodPost, "/api/players", `{"address":"0xa11ce","username":"alice"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, b = f.do(t, http.MethodPost, "/api/session", `{"address":"0xA11CE"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr SessionResponse
	require.NoError(t, json.Unmarshal(b, &sr))
	require.NotEmpty(t, sr.AccessToken)

	claims, err := f.tokens.Verify(sr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice, claims.Address)
	assert.Equal(t, "alice", claims.Username)

	resp, b = f.do(t, http.MethodGet, "/api/me", "", sr.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me MeResponse
	require.NoError(t, json.Unmarshal(b, &me))
	assert.Equal(t, "alice", me.Username)
	require.NotNil(t, me.Stats)
	assert.Equal(t, uint64(3), me.Stats.Level)

	resp, _ = f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlayerStats(t *testing.T) {
	f := newFixture(t, fakeStats{stats: map[string]chain.PlayerStats{
		alice: {PuzzlesSolved: 1, TotalAttempts: 4},
	}})

	resp, b := f.do(t, http.MethodGet, "/api/players/0xa11ce/stats", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st chain.PlayerStats
	require.NoError(t, json.Unmarshal(b, &st))
	assert.Equal(t, uint64(4), st.TotalAttempts)

	resp, b = f.do(t, http.MethodGet, "/api/players/0xb0b/stats", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "stats_not_found", errCode(t, b))

	resp, _ = f.do(t, http.MethodGet, "/api/players/nope/stats", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	down := newFixture(t, fakeStats{err: errors.New("relay down")})
	resp, b = down.do(t, http.MethodGet, "/api/players/0xa11ce/stats", "", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "chain_unavailable", errCode(t, b))
}

func TestListPuzzles(t *testing.T) {
	f := newFixture(t, fakeStats{})

	resp, b := f.do(t, http.MethodGet, "/api/puzzles", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var views []puzzle.View
	require.NoError(t, json.Unmarshal(b, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "LEVEL_1", views[0].Difficulty)
}
