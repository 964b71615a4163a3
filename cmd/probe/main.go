// Command probe is a smoke-test client: it connects a number of players to a
// running server, lets the matchmaker spread them over games, optionally
// fires one pawn move per white player and reports what each connection saw.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kfchess/kfchess-server/internal/ws"
)

var (
	addr     = flag.String("addr", "ws://localhost:8000/ws", "server websocket URL")
	players  = flag.Int("players", 4, "number of players to connect")
	duration = flag.Duration("duration", 10*time.Second, "how long each connection listens")
	move     = flag.Bool("move", true, "send one pawn move from every white player")
)

func main() {
	flag.Parse()

	var wg sync.WaitGroup
	for i := 0; i < *players; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runPlayer(n); err != nil {
				log.Printf("player %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
}

func runPlayer(n int) error {
	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	name := fmt.Sprintf("probe-%d", n)
	join, err := ws.NewMessage(ws.MessageTypePlayerJoin, ws.JoinPayload{PlayerName: name})
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	deadline := time.Now().Add(*duration)
	moved := false
	var gameID, color string

	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return nil // deadline or server close, both fine for a probe
		}

		switch msg.Type {
		case ws.MessageTypeGameState:
			var state struct {
				GameID  string `json:"game_id"`
				Status  string `json:"status"`
				Players map[string]struct {
					Name  string `json:"name"`
					Color string `json:"color"`
				} `json:"players"`
				Winner *string `json:"winner"`
			}
			if err := json.Unmarshal(msg.Data, &state); err != nil {
				return fmt.Errorf("bad game_state: %w", err)
			}
			if gameID == "" {
				gameID = state.GameID
				for _, p := range state.Players {
					if p.Name == name {
						color = p.Color
					}
				}
				log.Printf("%s: game %s as %s (%s)", name, gameID, color, state.Status)
			}
			if state.Status == "active" && *move && !moved && color == "white" {
				moved = true
				if err := sendPawnMove(conn); err != nil {
					return err
				}
			}
			if state.Winner != nil {
				log.Printf("%s: game over, winner %s", name, *state.Winner)
				return nil
			}

		case ws.MessageTypeMoveMade:
			var made ws.MoveMadePayload
			if err := json.Unmarshal(msg.Data, &made); err == nil {
				log.Printf("%s: move_made %s %v -> %v", name, made.PieceID, made.From, made.To)
			}

		case ws.MessageTypeError:
			var e ws.ErrorPayload
			if err := json.Unmarshal(msg.Data, &e); err == nil {
				log.Printf("%s: error %s: %s", name, e.ErrorCode, e.Message)
			}
		}
	}
	return nil
}

func sendPawnMove(conn *websocket.Conn) error {
	msg, err := ws.NewMessage(ws.MessageTypePlayerMove, ws.MovePayload{
		PieceID:   "PW4",
		FromCell:  ws.Cell{6, 4},
		ToCell:    ws.Cell{4, 4},
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
