package service

import (
	"errors"
	"fmt"

	"github.com/kfchess/kfchess-server/internal/model"
	"github.com/kfchess/kfchess-server/internal/ws"
)

var ErrWrongColor = errors.New("piece belongs to the other player")

// GameService is the facade the controllers talk to. It translates wire
// payloads into commands stamped with server game time; client timestamps
// are never fed into physics.
type GameService struct {
	gameManager *GameManager
}

func NewGameService(gameManager *GameManager) *GameService {
	return &GameService{gameManager: gameManager}
}

// Join matches a player into a game and returns the assigned record.
func (gs *GameService) Join(name string, preferred string, sink model.MessageSink) (*model.Game, *model.Player, error) {
	return gs.gameManager.JoinGame(name, model.PieceColor(preferred), sink)
}

// Disconnect releases the player from the registry.
func (gs *GameService) Disconnect(playerID string) {
	gs.gameManager.ReleasePlayer(playerID)
}

// HandleMove turns a player_move payload into exactly one command on the
// sender's game. Ownership is checked here from the piece id convention;
// everything deeper is validated lazily at apply time.
func (gs *GameService) HandleMove(player *model.Player, payload ws.MovePayload) error {
	g, cmd, err := gs.commandFor(player, payload.PieceID, model.CommandMove, payload.Timestamp,
		model.Position{Row: payload.FromCell[0], Col: payload.FromCell[1]},
		model.Position{Row: payload.ToCell[0], Col: payload.ToCell[1]})
	if err != nil {
		return err
	}
	g.EnqueueCommand(cmd, player)
	return nil
}

// HandleJump enqueues a jump command toward the target cell.
func (gs *GameService) HandleJump(player *model.Player, payload ws.JumpPayload) error {
	g, err := gs.gameManager.GameForPlayer(player.ID)
	if err != nil {
		return err
	}
	if err := checkOwnership(player, payload.PieceID); err != nil {
		return err
	}
	target := model.Position{Row: payload.TargetCell[0], Col: payload.TargetCell[1]}
	// origin param is filled at apply time from the piece's actual cell; the
	// queue still carries two params as the command contract requires
	g.EnqueueCommand(model.Command{
		TimestampMS: g.GameTimeMS(),
		ClientMS:    payload.Timestamp,
		PieceID:     payload.PieceID,
		Kind:        model.CommandJump,
		Params:      []model.Position{target, target},
	}, player)
	return nil
}

// HandleSelect enqueues a selection command.
func (gs *GameService) HandleSelect(player *model.Player, payload ws.SelectPayload) error {
	g, err := gs.gameManager.GameForPlayer(player.ID)
	if err != nil {
		return err
	}
	if err := checkOwnership(player, payload.PieceID); err != nil {
		return err
	}
	g.EnqueueCommand(model.Command{
		TimestampMS: g.GameTimeMS(),
		ClientMS:    payload.Timestamp,
		PieceID:     payload.PieceID,
		Kind:        model.CommandSelect,
	}, player)
	return nil
}

func (gs *GameService) commandFor(player *model.Player, pieceID string, kind model.CommandKind, clientMS int64, from, to model.Position) (*model.Game, model.Command, error) {
	g, err := gs.gameManager.GameForPlayer(player.ID)
	if err != nil {
		return nil, model.Command{}, err
	}
	if err := checkOwnership(player, pieceID); err != nil {
		return nil, model.Command{}, err
	}
	return g, model.Command{
		TimestampMS: g.GameTimeMS(),
		ClientMS:    clientMS,
		PieceID:     pieceID,
		Kind:        kind,
		Params:      []model.Position{from, to},
	}, nil
}

// checkOwnership rejects commands aimed at the opponent's pieces. The piece
// id convention is decoded once here, at the protocol boundary.
func checkOwnership(player *model.Player, pieceID string) error {
	_, color, err := model.ParsePieceID(pieceID)
	if err != nil {
		return fmt.Errorf("bad piece id: %w", err)
	}
	if color != player.Color {
		return ErrWrongColor
	}
	return nil
}

// GetGameState returns the snapshot of one game.
func (gs *GameService) GetGameState(gameID string) (model.Snapshot, error) {
	g, err := gs.gameManager.GetGame(gameID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return g.Snapshot(), nil
}

// ListGames returns a snapshot per registered game.
func (gs *GameService) ListGames() []model.Snapshot {
	return gs.gameManager.Snapshots()
}
