package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/quadclue/internal/codec"
)

const (
	Namespace    = "quad_clue"
	ActionsName  = "actions"
	submitGuess  = "submit_guess"
	getStats     = "get_player_stats"
	maxReplySize = 1 << 20
)

type HTTPGatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPGateway talks to the relay that signs and forwards contract calls.
type HTTPGateway struct {
	base   string
	client *http.Client
	log    *slog.Logger
}

func NewHTTPGateway(cfg HTTPGatewayConfig, log *slog.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type executeRequest struct {
	Account    string `json:"account"`
	Namespace  string `json:"namespace"`
	Contract   string `json:"contractName"`
	Entrypoint string `json:"entrypoint"`
	Calldata   []any  `json:"calldata"`
}

type callRequest struct {
	Namespace  string `json:"namespace"`
	Contract   string `json:"contractName"`
	Entrypoint string `json:"entrypoint"`
	Calldata   []any  `json:"calldata"`
}

type callReply struct {
	Result *rawPlayerStats `json:"result"`
}

// Account binds the gateway to the account that signs submissions.
func (g *HTTPGateway) Account(address string) Gateway {
	return &accountGateway{g: g, account: codec.NormalizeAddress(address)}
}

func (g *HTTPGateway) SubmitGuessAs(ctx context.Context, account string, puzzleID uint64, guess string) (TxHandle, error) {
	req := executeRequest{
		Account:    account,
		Namespace:  Namespace,
		Contract:   ActionsName,
		Entrypoint: submitGuess,
		Calldata:   []any{"0x" + strconv.FormatUint(puzzleID, 16), guess},
	}
	var tx TxHandle
	if err := g.post(ctx, "/execute", req, &tx); err != nil {
		return TxHandle{}, err
	}
	g.log.Debug("guess relayed", "player", account, "puzzle", puzzleID, "tx", tx.Hash)
	return tx, nil
}

// PlayerStats reads the contract's stats model. A null result means the
// player has never played.
func (g *HTTPGateway) PlayerStats(ctx context.Context, address string) (PlayerStats, bool, error) {
	addr := codec.NormalizeAddress(address)
	if addr == "" {
		return PlayerStats{}, false, nil
	}
	req := callRequest{
		Namespace:  Namespace,
		Contract:   ActionsName,
		Entrypoint: getStats,
		Calldata:   []any{addr},
	}
	var reply callReply
	if err := g.post(ctx, "/call", req, &reply); err != nil {
		return PlayerStats{}, false, err
	}
	if reply.Result == nil {
		return PlayerStats{}, false, nil
	}
	return reply.Result.decode(), true, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return fmt.Errorf("%w: read reply: %v", ErrRelay, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s %s: %s", ErrRelay, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode reply: %v", ErrRelay, err)
	}
	return nil
}

type accountGateway struct {
	g       *HTTPGateway
	account string
}

func (a *accountGateway) SubmitGuess(ctx context.Context, puzzleID uint64, guess string) (TxHandle, error) {
	return a.g.SubmitGuessAs(ctx, a.account, puzzleID, guess)
}

func (a *accountGateway) PlayerStats(ctx context.Context, address string) (PlayerStats, bool, error) {
	return a.g.PlayerStats(ctx, address)
}
