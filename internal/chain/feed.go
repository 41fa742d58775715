package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"example.com/quadclue/internal/codec"
)

const GuessSubmittedModel = Namespace + "-GuessSubmitted"

type feedEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Model  string `json:"model"`
	Player string `json:"player"`
}

type WSEventSourceConfig struct {
	URL         string
	DialTimeout time.Duration
	RetryDelay  time.Duration
}

// WSEventSource subscribes to the indexer's event feed over WebSocket and
// redials after the connection drops until the subscription is cancelled.
type WSEventSource struct {
	url    string
	dialer *websocket.Dialer
	retry  time.Duration
	log    *slog.Logger
}

func NewWSEventSource(cfg WSEventSourceConfig, log *slog.Logger) *WSEventSource {
	d := *websocket.DefaultDialer
	if cfg.DialTimeout > 0 {
		d.HandshakeTimeout = cfg.DialTimeout
	}
	retry := cfg.RetryDelay
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &WSEventSource{url: cfg.URL, dialer: &d, retry: retry, log: log}
}

func (s *WSEventSource) Subscribe(ctx context.Context, player string) (<-chan RawGuessEvent, error) {
	addr := codec.NormalizeAddress(player)
	if addr == "" {
		return nil, fmt.Errorf("subscribe: invalid player address %q", player)
	}
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	out := make(chan RawGuessEvent, 64)
	go s.run(ctx, addr, conn, out)
	return out, nil
}

func (s *WSEventSource) dial(ctx context.Context, player string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event feed: %w", err)
	}
	payload, _ := json.Marshal(subscribePayload{Model: GuessSubmittedModel, Player: player})
	if err := conn.WriteJSON(feedEnvelope{Type: "subscribe", Payload: payload}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	return conn, nil
}

func (s *WSEventSource) run(ctx context.Context, player string, conn *websocket.Conn, out chan<- RawGuessEvent) {
	defer close(out)
	for {
		err := s.stream(ctx, conn, out)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("event feed dropped", "player", player, "err", err)

		for {
			t := time.NewTimer(s.retry)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			conn, err = s.dial(ctx, player)
			if err == nil {
				break
			}
			s.log.Warn("event feed redial failed", "player", player, "err", err)
		}
	}
}

func (s *WSEventSource) stream(ctx context.Context, conn *websocket.Conn, out chan<- RawGuessEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		for {
			var env feedEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return err
			}
			if env.Type != "event" {
				continue
			}
			var raw RawGuessEvent
			if err := json.Unmarshal(env.Payload, &raw); err != nil {
				s.log.Debug("event feed: bad payload", "err", err)
				continue
			}
			select {
			case out <- raw:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return g.Wait()
}
