package game

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/quadclue/internal/codec"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pingEvery  = 25 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{ws: ws, send: make(chan []byte, sendBuffer)}
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// trySend drops the message when the client is not keeping up.
func (c *ClientConn) trySend(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *ClientConn) sendEnvelope(typ string, payload any) {
	b, _ := json.Marshal(Envelope{Type: typ, Payload: mustJSON(payload)})
	c.trySend(b)
}

func (c *ClientConn) sendError(code, message string) {
	c.sendEnvelope(MsgError, ErrorPayload{Code: code, Message: message})
}

func (c *ClientConn) writeLoop() {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWS attaches a browser to the player's session.
// Requires a session token: Authorization: Bearer <t> or /ws?token=<t>.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorPayload{Code: "unauthorized", Message: "missing token"})
		return
	}
	claims, err := s.verifier.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorPayload{Code: "unauthorized", Message: "invalid token"})
		return
	}

	if codec.NormalizeAddress(claims.Address) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Code: "bad_player", Message: "token carries no valid address"})
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cc := newClientConn(ws)
	go cc.writeLoop()

	sess, err := s.sessions.Acquire(r.Context(), claims.Address, cc)
	if err != nil {
		s.log.Error("open session", "player", claims.Address, "err", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to open session"),
			time.Now().Add(writeWait))
		cc.Close()
		return
	}
	defer func() {
		s.sessions.Release(sess, cc)
		cc.Close()
	}()

	cc.sendEnvelope(MsgState, sess.Engine.Snapshot())

	ctx := r.Context()
	engine := sess.Engine
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.sendError("bad_json", "invalid json")
			continue
		}

		switch env.Type {
		case MsgSubmitGuess:
			s.sessions.ensureFeed(sess)
			var p SubmitGuessPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				cc.sendError("bad_input", "invalid payload")
				continue
			}
			res, err := engine.SubmitAnswer(ctx, p.Guess)
			cc.sendEnvelope(MsgSubmitResult, res)
			if err != nil {
				cc.sendError(errorCode(err), err.Error())
			}

		case MsgUseHint:
			letter, err := engine.UseHint(ctx)
			if err != nil {
				cc.sendError(errorCode(err), err.Error())
				continue
			}
			cc.sendEnvelope(MsgHint, HintPayload{Letter: letter})

		case MsgNextPuzzle:
			engine.NextPuzzle(ctx)

		case MsgResetGame:
			engine.ResetGame(ctx)

		case MsgGetState:
			cc.sendEnvelope(MsgState, engine.Snapshot())

		default:
			cc.sendError("unknown_type", "unknown message type")
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
