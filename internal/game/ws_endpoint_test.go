package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/quadclue/internal/auth"
	"example.com/quadclue/internal/chain"
)

type testVerifier struct{}

func (v testVerifier) Verify(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{Address: "0xa11ce", Username: "alice"}, nil
}

func newWSServer(t *testing.T) (*serviceFixture, *httptest.Server) {
	t.Helper()
	f := newServiceFixture(t)
	server := NewServer(f.svc, testVerifier{}, discardLogger())

	r := chi.NewRouter()
	server.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return f, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// readUntil reads envelopes until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var env Envelope
		if json.Unmarshal(data, &env) == nil && env.Type == typ {
			return env
		}
	}
}

func TestWS_Endpoint_Auth(t *testing.T) {
	_, ts := newWSServer(t)

	cases := []struct {
		name     string
		path     string
		header   string
		wantCode int // 0 => expect success (101)
	}{
		{name: "success_auth_header", path: "/ws", header: "Bearer good"},
		{name: "success_query_token", path: "/ws?token=good"},
		{name: "missing_token", path: "/ws", wantCode: http.StatusUnauthorized},
		{name: "bad_token", path: "/ws", header: "Bearer bad", wantCode: http.StatusUnauthorized},
		{name: "bad_query_token", path: "/ws?token=bad", wantCode: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hdr := http.Header{}
			if tc.header != "" {
				hdr.Set("Authorization", tc.header)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tc.path), hdr)
			if tc.wantCode != 0 {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, tc.wantCode, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			defer ws.Close()

			env := readUntil(t, ws, MsgState)
			var snap Snapshot
			require.NoError(t, json.Unmarshal(env.Payload, &snap))
			assert.Equal(t, testPlayer, snap.Player)
			assert.Equal(t, PhaseActive, snap.Phase)
		})
	}
}

func TestWS_Endpoint_GuessFlow(t *testing.T) {
	f, ts := newWSServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=good"), nil)
	require.NoError(t, err)
	defer ws.Close()
	readUntil(t, ws, MsgState)

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgSubmitGuess, Payload: mustJSON(SubmitGuessPayload{Guess: "paint"})}))
	env := readUntil(t, ws, MsgSubmitResult)
	var res SubmitResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.True(t, res.Success)

	f.feed.push(testPlayer, chain.RawGuessEvent{
		EntityID:  "e1",
		PuzzleID:  "1",
		Player:    chain.Felt(testPlayer),
		IsCorrect: true,
		Timestamp: "1700000001",
	})

	env = readUntil(t, ws, MsgGuessResult)
	var gr GuessResult
	require.NoError(t, json.Unmarshal(env.Payload, &gr))
	assert.True(t, gr.Correct)
	assert.Equal(t, 1600, gr.Points)
	assert.Equal(t, "PAINT", gr.Guess)

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgGetState}))
	env = readUntil(t, ws, MsgState)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, 1600, snap.Score)
	assert.Equal(t, []uint64{1}, snap.CompletedPuzzles)
}

func TestWS_Endpoint_Commands(t *testing.T) {
	_, ts := newWSServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=good"), nil)
	require.NoError(t, err)
	defer ws.Close()
	readUntil(t, ws, MsgState)

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgUseHint}))
	env := readUntil(t, ws, MsgHint)
	var hint HintPayload
	require.NoError(t, json.Unmarshal(env.Payload, &hint))
	assert.Contains(t, []string{"P", "A", "I", "N", "T", "E", "S"}, hint.Letter)

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgSubmitGuess, Payload: mustJSON(SubmitGuessPayload{Guess: "ab"})}))
	env = readUntil(t, ws, MsgError)
	var ep ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "invalid_guess", ep.Code)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	env = readUntil(t, ws, MsgError)
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "bad_json", ep.Code)

	require.NoError(t, ws.WriteJSON(Envelope{Type: "dance"}))
	env = readUntil(t, ws, MsgError)
	require.NoError(t, json.Unmarshal(env.Payload, &ep))
	assert.Equal(t, "unknown_type", ep.Code)

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgNextPuzzle}))
	for {
		env = readUntil(t, ws, MsgState)
		var snap Snapshot
		require.NoError(t, json.Unmarshal(env.Payload, &snap))
		if snap.CurrentPuzzleIndex == 1 {
			assert.Equal(t, 2, snap.Level)
			break
		}
	}

	require.NoError(t, ws.WriteJSON(Envelope{Type: MsgResetGame}))
	env = readUntil(t, ws, MsgNotice)
	var n Notice
	require.NoError(t, json.Unmarshal(env.Payload, &n))
	assert.Equal(t, NoticeInfo, n.Kind)
}

func TestWS_Endpoint_DisconnectEndsSession(t *testing.T) {
	f, ts := newWSServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?token=good"), nil)
	require.NoError(t, err)
	readUntil(t, ws, MsgState)

	_, ok := f.svc.Get(testPlayer)
	require.True(t, ok)
	feedCtx := f.feed.ctx(testPlayer)
	require.NoError(t, feedCtx.Err())

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		_, ok := f.svc.Get(testPlayer)
		return !ok && feedCtx.Err() != nil
	}, 2*time.Second, 10*time.Millisecond)
}
