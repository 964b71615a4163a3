package model

import (
	"github.com/kfchess/kfchess-server/internal/ws"
)

// MessageSink is the outbound half of a player's connection. Send must not
// block: connection handlers enqueue onto a buffered channel and report false
// when the buffer is full or the connection is gone. Nothing in the game loop
// ever does connection I/O directly.
type MessageSink interface {
	Send(msg ws.Message) bool
}

// Player is one member of a game session.
type Player struct {
	ID        string
	Name      string
	Color     PieceColor
	Connected bool
	Sink      MessageSink
}

// ClientPlayer is the wire representation of a player in game_state.
type ClientPlayer struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	Connected bool   `json:"connected"`
}
