package ws

import (
	"encoding/json"
)

// MessageType represents the different kinds of messages our system can handle
type MessageType string

const (
	// client -> server
	MessageTypePlayerJoin   MessageType = "player_join"
	MessageTypePlayerMove   MessageType = "player_move"
	MessageTypePlayerJump   MessageType = "player_jump"
	MessageTypePlayerSelect MessageType = "player_select"

	// server -> client
	MessageTypeGameState MessageType = "game_state"
	MessageTypeMoveMade  MessageType = "move_made"
	MessageTypeError     MessageType = "error"

	// either direction
	MessageTypePing MessageType = "ping"
	MessageTypePong MessageType = "pong"
)

// Error codes surfaced to clients.
const (
	ErrCodePlayerNotFound  = "PLAYER_NOT_FOUND"
	ErrCodeGameNotFound    = "GAME_NOT_FOUND"
	ErrCodeInvalidMove     = "INVALID_MOVE"
	ErrCodeGameFull        = "GAME_FULL"
	ErrCodeConnectionError = "CONNECTION_ERROR"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeServerError     = "SERVER_ERROR"
	ErrCodeInvalidMessage  = "INVALID_MESSAGE"
)

// Cell is a board coordinate on the wire, encoded as a [row, col] array.
type Cell [2]int

// Message is the envelope for every WebSocket frame in our system.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage wraps a payload in an envelope.
func NewMessage(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Data: data}, nil
}

// JoinPayload is sent by a client asking to be matched into a game.
type JoinPayload struct {
	PlayerName     string `json:"player_name"`
	PreferredColor string `json:"preferred_color,omitempty"`
}

// MovePayload asks the server to move one piece. The timestamp is the
// client's clock and is echoed back in move_made; physics runs on the
// server's clock.
type MovePayload struct {
	PieceID   string `json:"piece_id"`
	FromCell  Cell   `json:"from_cell"`
	ToCell    Cell   `json:"to_cell"`
	Timestamp int64  `json:"timestamp"`
}

// JumpPayload asks the server to jump one piece to a target cell.
type JumpPayload struct {
	PieceID    string `json:"piece_id"`
	TargetCell Cell   `json:"target_cell"`
	Timestamp  int64  `json:"timestamp"`
}

// SelectPayload marks a piece as selected by its owner.
type SelectPayload struct {
	PieceID   string `json:"piece_id"`
	Timestamp int64  `json:"timestamp"`
}

// MoveMadePayload notifies all game members that a move was accepted.
type MoveMadePayload struct {
	PieceID   string `json:"piece_id"`
	From      Cell   `json:"from"`
	To        Cell   `json:"to"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload carries an error code and a human readable message.
type ErrorPayload struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
