package service

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kfchess/kfchess-server/internal/event"
	"github.com/kfchess/kfchess-server/internal/model"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrServerFull    = errors.New("server is at game capacity")
	ErrUnknownPlayer = errors.New("player is not in any game")
)

// GameManager is the session registry and matchmaker. Its table is the only
// structure mutated from multiple goroutines; one coarse mutex serializes
// create/assign/release. Invariant: a player id appears in playerToGame iff
// it appears in that game's player set.
type GameManager struct {
	mu           sync.RWMutex
	games        map[string]*model.Game
	playerToGame map[string]string

	boardCfg     model.BoardConfig
	tickInterval time.Duration
	maxGames     int
}

func NewGameManager(boardCfg model.BoardConfig, tickInterval time.Duration, maxGames int) *GameManager {
	return &GameManager{
		games:        make(map[string]*model.Game),
		playerToGame: make(map[string]string),
		boardCfg:     boardCfg,
		tickInterval: tickInterval,
		maxGames:     maxGames,
	}
}

// FindOrCreateWaitingGame returns a game with a free seat, creating one when
// every existing game is full. Callers hold gm.mu.
func (gm *GameManager) findOrCreateWaitingGameLocked() (*model.Game, error) {
	for _, g := range gm.games {
		if g.HasSpace() {
			return g, nil
		}
	}
	if len(gm.games) >= gm.maxGames {
		return nil, ErrServerFull
	}
	gameID := uuid.New().String()
	g, err := model.NewGame(gameID, gm.boardCfg, event.NewBus(), gm.tickInterval)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	gm.games[gameID] = g
	log.Printf("created game %s (%d total)", gameID, len(gm.games))
	return g, nil
}

// FindOrCreateWaitingGame is the matchmaking entry point.
func (gm *GameManager) FindOrCreateWaitingGame() (*model.Game, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.findOrCreateWaitingGameLocked()
}

// JoinGame seats a new player in some waiting game: preferred color if free,
// else the remaining color. The player id is generated here and registered
// in the player table.
func (gm *GameManager) JoinGame(name string, preferred model.PieceColor, sink model.MessageSink) (*model.Game, *model.Player, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	g, err := gm.findOrCreateWaitingGameLocked()
	if err != nil {
		return nil, nil, err
	}
	player := &model.Player{
		ID:   uuid.New().String(),
		Name: name,
		Sink: sink,
	}
	if _, err := g.AddPlayer(player, preferred); err != nil {
		return nil, nil, err
	}
	gm.playerToGame[player.ID] = g.ID
	log.Printf("player %s (%s) joined game %s as %s", player.ID, name, g.ID, player.Color)
	return g, player, nil
}

// AssignPlayer seats an existing player record in a specific game.
func (gm *GameManager) AssignPlayer(g *model.Game, player *model.Player, preferred model.PieceColor) (model.PieceColor, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	color, err := g.AddPlayer(player, preferred)
	if err != nil {
		return "", err
	}
	gm.playerToGame[player.ID] = g.ID
	return color, nil
}

// ReleasePlayer marks the player's record disconnected. The game survives as
// long as any member is still connected; once none are, the game is stopped
// and removed together with its player table entries.
func (gm *GameManager) ReleasePlayer(playerID string) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gameID, ok := gm.playerToGame[playerID]
	if !ok {
		return
	}
	g, ok := gm.games[gameID]
	if !ok {
		delete(gm.playerToGame, playerID)
		return
	}
	if g.MarkDisconnected(playerID) == 0 {
		gm.destroyGameLocked(g)
	}
}

func (gm *GameManager) destroyGameLocked(g *model.Game) {
	g.Stop()
	for _, pid := range g.PlayerIDs() {
		delete(gm.playerToGame, pid)
	}
	delete(gm.games, g.ID)
	log.Printf("destroyed game %s (%d left)", g.ID, len(gm.games))
}

// GameForPlayer resolves the player's current game.
func (gm *GameManager) GameForPlayer(playerID string) (*model.Game, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	gameID, ok := gm.playerToGame[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	g, ok := gm.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

func (gm *GameManager) GetGame(gameID string) (*model.Game, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	g, ok := gm.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// GameCount reports how many games are registered.
func (gm *GameManager) GameCount() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.games)
}

// Snapshots lists every registered game's current snapshot.
func (gm *GameManager) Snapshots() []model.Snapshot {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	out := make([]model.Snapshot, 0, len(gm.games))
	for _, g := range gm.games {
		out = append(out, g.Snapshot())
	}
	return out
}

// MaintainGames periodically sweeps finished games whose members have all
// left. Run it on its own goroutine.
func (gm *GameManager) MaintainGames(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		gm.CleanupFinishedGames()
	}
}

// CleanupFinishedGames removes finished or abandoned games.
func (gm *GameManager) CleanupFinishedGames() {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for _, g := range gm.games {
		if g.Status() == model.StatusFinished && g.IsEmpty() {
			gm.destroyGameLocked(g)
		}
	}
}
