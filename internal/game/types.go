package game

import "encoding/json"

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client -> server
const (
	MsgSubmitGuess = "submit_guess"
	MsgUseHint     = "use_hint"
	MsgNextPuzzle  = "next_puzzle"
	MsgResetGame   = "reset_game"
	MsgGetState    = "get_state"
)

// server -> client
const (
	MsgState        = "state"
	MsgNotice       = "notice"
	MsgHint         = "hint"
	MsgGuessResult  = "guess_result"
	MsgSubmitResult = "submit_result"
	MsgError        = "error"
)

type SubmitGuessPayload struct {
	Guess string `json:"guess"`
}

type HintPayload struct {
	Letter string `json:"letter"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
