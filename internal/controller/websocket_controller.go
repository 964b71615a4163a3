package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/kfchess/kfchess-server/internal/config"
	"github.com/kfchess/kfchess-server/internal/model"
	"github.com/kfchess/kfchess-server/internal/service"
	"github.com/kfchess/kfchess-server/internal/ws"
)

// errCloseConnection tells the read loop to hang up after the queued
// messages are flushed (e.g. after a GAME_FULL notice).
var errCloseConnection = errors.New("closing connection")

const sendBufferSize = 64

// client owns one player's connection. The read loop and the write pump are
// the only code doing connection I/O; the game loop reaches the client only
// through the buffered send channel.
type client struct {
	conn   *websocket.Conn
	send   chan ws.Message
	closed chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan ws.Message, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send enqueues a message for the write pump. It never blocks; a full buffer
// drops the message and reports false.
func (c *client) Send(msg ws.Message) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.closed) })
}

// writePump serializes outbound traffic and probes the peer with pings. On
// shutdown it flushes whatever is already queued so a final error message
// still reaches the client.
func (c *client) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			for {
				select {
				case msg := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := c.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					return
				}
			}
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) sendError(code, text string) {
	msg, err := ws.NewMessage(ws.MessageTypeError, ws.ErrorPayload{ErrorCode: code, Message: text})
	if err != nil {
		log.Printf("marshal error payload: %v", err)
		return
	}
	c.Send(msg)
}

type WebSocketController struct {
	gameService *service.GameService
	cfg         config.Config
}

func NewWebSocketController(gameService *service.GameService, cfg config.Config) *WebSocketController {
	return &WebSocketController{gameService: gameService, cfg: cfg}
}

// HandleConnection runs the read loop for one player connection. The player
// joins by message, not by URL: the first player_join matches them into a
// game.
func (wsc *WebSocketController) HandleConnection(conn *websocket.Conn) {
	cl := newClient(conn)
	go cl.writePump(wsc.cfg.HeartbeatInterval, wsc.cfg.WriteTimeout)
	defer cl.close()

	conn.SetReadDeadline(time.Now().Add(wsc.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsc.cfg.ReadTimeout))
		return nil
	})

	var player *model.Player
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("read error: %v", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsc.cfg.ReadTimeout))

		var msg ws.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			cl.sendError(ws.ErrCodeInvalidMessage, "invalid message format")
			continue
		}
		if err := wsc.handleMessage(cl, &player, msg); err != nil {
			if errors.Is(err, errCloseConnection) {
				break
			}
			log.Printf("handle %s: %v", msg.Type, err)
		}
	}

	if player != nil {
		wsc.gameService.Disconnect(player.ID)
		log.Printf("player %s disconnected", player.ID)
	}
}

func (wsc *WebSocketController) handleMessage(cl *client, player **model.Player, msg ws.Message) error {
	switch msg.Type {
	case ws.MessageTypePlayerJoin:
		if *player != nil {
			cl.sendError(ws.ErrCodeInvalidRequest, "already joined")
			return nil
		}
		var payload ws.JoinPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			cl.sendError(ws.ErrCodeInvalidMessage, "bad player_join payload")
			return nil
		}
		_, p, err := wsc.gameService.Join(payload.PlayerName, payload.PreferredColor, cl)
		if err != nil {
			if errors.Is(err, model.ErrGameFull) || errors.Is(err, service.ErrServerFull) {
				cl.sendError(ws.ErrCodeGameFull, "no free seat available")
				return errCloseConnection
			}
			cl.sendError(ws.ErrCodeServerError, "could not join a game")
			return fmt.Errorf("join: %w", err)
		}
		*player = p
		return nil

	case ws.MessageTypePlayerMove:
		if *player == nil {
			cl.sendError(ws.ErrCodeInvalidRequest, "join a game first")
			return nil
		}
		var payload ws.MovePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			cl.sendError(ws.ErrCodeInvalidMessage, "bad player_move payload")
			return nil
		}
		wsc.reportCommandError(cl, wsc.gameService.HandleMove(*player, payload))
		return nil

	case ws.MessageTypePlayerJump:
		if *player == nil {
			cl.sendError(ws.ErrCodeInvalidRequest, "join a game first")
			return nil
		}
		var payload ws.JumpPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			cl.sendError(ws.ErrCodeInvalidMessage, "bad player_jump payload")
			return nil
		}
		wsc.reportCommandError(cl, wsc.gameService.HandleJump(*player, payload))
		return nil

	case ws.MessageTypePlayerSelect:
		if *player == nil {
			cl.sendError(ws.ErrCodeInvalidRequest, "join a game first")
			return nil
		}
		var payload ws.SelectPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			cl.sendError(ws.ErrCodeInvalidMessage, "bad player_select payload")
			return nil
		}
		wsc.reportCommandError(cl, wsc.gameService.HandleSelect(*player, payload))
		return nil

	case ws.MessageTypePing:
		pong, err := ws.NewMessage(ws.MessageTypePong, struct{}{})
		if err != nil {
			return err
		}
		cl.Send(pong)
		return nil

	case ws.MessageTypePong:
		return nil

	default:
		cl.sendError(ws.ErrCodeInvalidMessage, fmt.Sprintf("unknown message type %q", msg.Type))
		return nil
	}
}

// reportCommandError maps service errors to protocol error codes. A nil
// error means the command was enqueued; apply-time rejections are reported
// asynchronously by the game loop.
func (wsc *WebSocketController) reportCommandError(cl *client, err error) {
	switch {
	case err == nil:
	case errors.Is(err, service.ErrWrongColor):
		cl.sendError(ws.ErrCodeInvalidMove, "that piece belongs to your opponent")
	case errors.Is(err, service.ErrUnknownPlayer), errors.Is(err, service.ErrGameNotFound):
		cl.sendError(ws.ErrCodePlayerNotFound, "you are not in a game")
	default:
		cl.sendError(ws.ErrCodeInvalidMove, err.Error())
	}
}
