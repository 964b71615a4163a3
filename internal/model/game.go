package model

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kfchess/kfchess-server/internal/event"
	"github.com/kfchess/kfchess-server/internal/ws"
)

type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

var ErrGameFull = errors.New("game is full")

const commandQueueSize = 256

// PieceMovedEvent is published whenever a piece changes cell mid-flight, and
// once when a move or jump command is accepted (Commanded=true). ClientMS is
// the issuing client's clock, carried only so move_made can echo it.
type PieceMovedEvent struct {
	PieceID     string
	From        Position
	To          Position
	Color       PieceColor
	TimestampMS int64
	ClientMS    int64
	Commanded   bool
}

// PieceCapturedEvent is published when the resolver removes a piece.
type PieceCapturedEvent struct {
	Victim *Piece
	Winner *Piece
	Cell   Position
}

type GameStartEvent struct {
	GameID string
}

type GameEndEvent struct {
	GameID string
	Winner *PieceColor
}

// PieceView is one piece inside a snapshot / game_state broadcast.
type PieceView struct {
	ID            string   `json:"id"`
	Position      Position `json:"position"`
	Type          string   `json:"piece_type"`
	Color         string   `json:"color"`
	State         string   `json:"state_name"`
	CanBeCaptured bool     `json:"can_be_captured"`
}

// Snapshot is the immutable view of a game, also the game_state payload.
type Snapshot struct {
	GameID         string                  `json:"game_id"`
	Status         GameStatus              `json:"status"`
	Players        map[string]ClientPlayer `json:"players"`
	Pieces         []PieceView             `json:"pieces"`
	Winner         *string                 `json:"winner,omitempty"`
	SelectedPieces map[string]string       `json:"selected_pieces,omitempty"`
}

// queuedCommand pairs a command with the player it came from, so apply-time
// rejections can be reported back. from is nil for internally generated
// commands.
type queuedCommand struct {
	cmd  Command
	from *Player
}

// Game owns one match: its board, pieces, occupancy map and command queue.
// Once active, the tick loop goroutine is the sole mutator of piece state;
// everything else only enqueues commands or reads snapshots.
type Game struct {
	ID  string
	bus *event.Bus

	board        Board
	tickInterval time.Duration
	startNS      atomic.Int64
	createdAt    time.Time

	// owned by the tick loop (or by the caller before the loop starts)
	pieces    []*Piece
	pieceByID map[string]*Piece
	occ       Occupancy
	selected  map[PieceColor]string
	dirty     bool

	commands chan queuedCommand
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex // guards players, status, winner, snapshot
	players  map[string]*Player
	status   GameStatus
	winner   *PieceColor
	snapshot Snapshot
}

// NewGame builds a waiting game from a board configuration and wires the
// broadcaster to the game's own event bus instance.
func NewGame(id string, cfg BoardConfig, bus *event.Bus, tickInterval time.Duration) (*Game, error) {
	pieces, err := cfg.BuildPieces()
	if err != nil {
		return nil, fmt.Errorf("build pieces: %w", err)
	}

	g := &Game{
		ID:           id,
		bus:          bus,
		board:        cfg.Board(),
		tickInterval: tickInterval,
		createdAt:    time.Now(),
		pieces:       pieces,
		pieceByID:    make(map[string]*Piece, len(pieces)),
		occ:          make(Occupancy),
		selected:     make(map[PieceColor]string),
		commands:     make(chan queuedCommand, commandQueueSize),
		done:         make(chan struct{}),
		players:      make(map[string]*Player),
		status:       StatusWaiting,
	}
	for _, p := range pieces {
		g.pieceByID[p.ID] = p
	}
	g.startNS.Store(time.Now().UnixNano())
	g.rebuildOccupancy()

	// broadcaster: events published by the tick loop fan out to the members
	bus.Subscribe(event.TopicPieceMoved, func(data any) {
		g.dirty = true
		ev, ok := data.(PieceMovedEvent)
		if !ok || !ev.Commanded {
			return
		}
		msg, err := ws.NewMessage(ws.MessageTypeMoveMade, ws.MoveMadePayload{
			PieceID:   ev.PieceID,
			From:      ws.Cell{ev.From.Row, ev.From.Col},
			To:        ws.Cell{ev.To.Row, ev.To.Col},
			Color:     string(ev.Color),
			Timestamp: ev.ClientMS,
		})
		if err != nil {
			log.Printf("game %s: marshal move_made: %v", g.ID, err)
			return
		}
		g.broadcast(msg)
	})
	bus.Subscribe(event.TopicPieceCaptured, func(any) { g.dirty = true })
	bus.Subscribe(event.TopicGameEnd, func(any) { g.dirty = true })

	g.mu.Lock()
	g.refreshSnapshotLocked()
	g.mu.Unlock()
	return g, nil
}

// GameTimeMS is the elapsed game clock in milliseconds. The clock restarts
// when the game turns active so physics timestamps start near zero.
func (g *Game) GameTimeMS() int64 {
	return (time.Now().UnixNano() - g.startNS.Load()) / int64(time.Millisecond)
}

// AddPlayer assigns the preferred color if free, else the remaining one.
// The second join flips the game to active and starts the tick loop.
func (g *Game) AddPlayer(player *Player, preferred PieceColor) (PieceColor, error) {
	g.mu.Lock()
	if len(g.players) >= 2 {
		g.mu.Unlock()
		return "", ErrGameFull
	}

	taken := make(map[PieceColor]bool)
	for _, p := range g.players {
		taken[p.Color] = true
	}
	color := preferred
	if color != White && color != Black || taken[color] {
		switch {
		case !taken[White]:
			color = White
		case !taken[Black]:
			color = Black
		default:
			g.mu.Unlock()
			return "", ErrGameFull
		}
	}

	player.Color = color
	player.Connected = true
	g.players[player.ID] = player

	activated := false
	if len(g.players) == 2 && g.status == StatusWaiting {
		g.status = StatusActive
		activated = true
	}
	g.refreshSnapshotLocked()
	g.mu.Unlock()

	if activated {
		g.startNS.Store(time.Now().UnixNano())
		g.bus.Publish(event.TopicGameStart, GameStartEvent{GameID: g.ID})
		go g.run()
		log.Printf("game %s: active, tick loop started", g.ID)
	}
	g.broadcastState()
	return color, nil
}

// MarkDisconnected flags the player's record and returns how many members
// are still connected. The registry destroys the game once that hits zero;
// an active game with one connected player keeps running.
//
// Only the players view of the snapshot is rebuilt here: piece state belongs
// to the tick loop and must never be read from a connection goroutine.
func (g *Game) MarkDisconnected(playerID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.players[playerID]; ok {
		p.Connected = false
		p.Sink = nil
	}
	g.snapshot.Players = g.clientPlayersLocked()
	connected := 0
	for _, p := range g.players {
		if p.Connected {
			connected++
		}
	}
	return connected
}

// HasSpace reports whether a joining player can still be seated.
func (g *Game) HasSpace() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status == StatusWaiting && len(g.players) < 2
}

func (g *Game) Status() GameStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// IsEmpty reports whether no member is connected.
func (g *Game) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.players {
		if p.Connected {
			return false
		}
	}
	return true
}

// HasPlayer reports membership, connected or not.
func (g *Game) HasPlayer(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.players[playerID]
	return ok
}

// PlayerIDs lists the members of the game.
func (g *Game) PlayerIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	return ids
}

// EnqueueCommand hands a command to the tick loop. It never blocks; when the
// queue is full the command is dropped with a log line.
func (g *Game) EnqueueCommand(cmd Command, from *Player) {
	select {
	case g.commands <- queuedCommand{cmd: cmd, from: from}:
	default:
		log.Printf("game %s: command queue full, dropping %s", g.ID, cmd)
	}
}

// Snapshot returns the immutable view refreshed on the last tick (or last
// membership change).
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot
}

// Stop terminates the tick loop. Destroying the game is the registry's job.
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.done) })
}

func (g *Game) run() {
	ticker := time.NewTicker(g.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			if g.Tick(g.GameTimeMS()) {
				return
			}
		}
	}
}

// Tick is one pass of the session loop: update every piece, rebuild the
// occupancy map, apply queued commands in arrival order, resolve collisions
// and re-check the win condition. It reports whether the game is finished.
// A panic anywhere inside is contained here; one bad tick must not take the
// loop or other games down.
func (g *Game) Tick(nowMS int64) (finished bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("game %s: recovered tick panic: %v", g.ID, r)
		}
	}()

	for _, p := range g.pieces {
		if moved, from, to := p.Update(nowMS); moved {
			g.bus.Publish(event.TopicPieceMoved, PieceMovedEvent{
				PieceID: p.ID, From: from, To: to, Color: p.Color, TimestampMS: nowMS,
			})
		}
	}
	g.rebuildOccupancy()
	g.drainCommands()
	g.resolveCollisions()
	finished = g.checkWin()

	g.mu.Lock()
	g.refreshSnapshotLocked()
	g.mu.Unlock()

	if g.dirty {
		g.dirty = false
		g.broadcastState()
	}
	return finished
}

// rebuildOccupancy derives cell -> pieces from the authoritative piece list.
// Always from scratch; the map is never patched incrementally.
func (g *Game) rebuildOccupancy() {
	for cell := range g.occ {
		delete(g.occ, cell)
	}
	for _, p := range g.pieces {
		cell := p.Cell()
		g.occ[cell] = append(g.occ[cell], p)
	}
}

func (g *Game) drainCommands() {
	for {
		select {
		case qc := <-g.commands:
			g.applyCommand(qc)
		default:
			return
		}
	}
}

// applyCommand validates lazily: a command that turns out to be bad is
// dropped or answered with an error, it never faults the tick.
func (g *Game) applyCommand(qc queuedCommand) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("game %s: recovered command panic: %v (%s)", g.ID, r, qc.cmd)
			g.sendError(qc.from, ws.ErrCodeServerError, "internal error applying command")
		}
	}()

	cmd := qc.cmd
	piece, ok := g.pieceByID[cmd.PieceID]
	if !ok {
		// silent drop: the piece may have been captured since the client sent this
		log.Printf("game %s: unknown piece id %s, dropping command", g.ID, cmd.PieceID)
		return
	}

	switch cmd.Kind {
	case CommandSelect:
		if qc.from != nil && qc.from.Color != piece.Color {
			g.sendError(qc.from, ws.ErrCodeInvalidMove, "cannot select an opponent's piece")
			return
		}
		g.selected[piece.Color] = piece.ID
		g.dirty = true

	case CommandMove, CommandJump:
		target, ok := cmd.Target()
		if !ok {
			log.Printf("game %s: command %s has too few params", g.ID, cmd)
			return
		}
		if !g.board.InBounds(target) {
			g.sendError(qc.from, ws.ErrCodeInvalidMove, fmt.Sprintf("target %s is off the board", target))
			return
		}
		from := piece.Cell()
		if !piece.OnCommand(cmd, g.occ) {
			g.sendError(qc.from, ws.ErrCodeInvalidMove, fmt.Sprintf("piece %s rejected the command", piece.ID))
			return
		}
		g.bus.Publish(event.TopicPieceMoved, PieceMovedEvent{
			PieceID:     piece.ID,
			From:        from,
			To:          target,
			Color:       piece.Color,
			TimestampMS: cmd.TimestampMS,
			ClientMS:    cmd.ClientMS,
			Commanded:   true,
		})

	case CommandIdle:
		// nothing to do

	default:
		log.Printf("game %s: unknown command kind %q", g.ID, cmd.Kind)
	}
}

// resolveCollisions applies the capture rule to every contested cell.
// Capture is a function of timing, not move legality: the most recently
// initiated occupant wins, and only capturable losers of the other color are
// removed.
func (g *Game) resolveCollisions() {
	g.rebuildOccupancy()
	for cell, group := range g.occ {
		if len(group) < 2 {
			continue
		}
		winner := collisionWinner(group)
		for _, p := range group {
			if p == winner || p.Color == winner.Color {
				continue
			}
			if !p.CanBeCaptured() {
				// protected mid-animation: the overlap persists until a later tick
				continue
			}
			log.Printf("game %s: %s captures %s at %s", g.ID, winner.ID, p.ID, cell)
			g.removePiece(p.ID)
			g.bus.Publish(event.TopicPieceCaptured, PieceCapturedEvent{
				Victim: p, Winner: winner, Cell: cell,
			})
		}
	}
}

// collisionWinner picks the surviving piece of a contested cell. Non-idle
// occupants (actively arriving or still cooling down) outrank idle ones,
// then the latest state-start timestamp wins. Equal timestamps fall back to
// the lexicographically smallest piece id, so the outcome never depends on
// map iteration order.
func collisionWinner(group []*Piece) *Piece {
	winner := group[0]
	for _, p := range group[1:] {
		if beats(p, winner) {
			winner = p
		}
	}
	return winner
}

func beats(a, b *Piece) bool {
	aIdle := a.StateName() == StateIdle
	bIdle := b.StateName() == StateIdle
	if aIdle != bIdle {
		return bIdle
	}
	if a.StateStartMS() != b.StateStartMS() {
		return a.StateStartMS() > b.StateStartMS()
	}
	return a.ID < b.ID
}

func (g *Game) removePiece(id string) {
	delete(g.pieceByID, id)
	for i, p := range g.pieces {
		if p.ID == id {
			g.pieces = append(g.pieces[:i], g.pieces[i+1:]...)
			break
		}
	}
	for color, sel := range g.selected {
		if sel == id {
			delete(g.selected, color)
		}
	}
}

// checkWin flips the game to finished once fewer than two kings remain. The
// winner is the color of the surviving king; no king at all is a draw.
func (g *Game) checkWin() bool {
	var kings []*Piece
	for _, p := range g.pieces {
		if p.Type == King {
			kings = append(kings, p)
		}
	}
	if len(kings) >= 2 {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.status == StatusFinished
	}

	g.mu.Lock()
	if g.status == StatusFinished {
		g.mu.Unlock()
		return true
	}
	g.status = StatusFinished
	if len(kings) == 1 {
		winner := kings[0].Color
		g.winner = &winner
	}
	winner := g.winner
	g.mu.Unlock()

	g.bus.Publish(event.TopicGameEnd, GameEndEvent{GameID: g.ID, Winner: winner})
	log.Printf("game %s: finished, winner=%v", g.ID, winner)
	return true
}

func (g *Game) clientPlayersLocked() map[string]ClientPlayer {
	players := make(map[string]ClientPlayer, len(g.players))
	for id, p := range g.players {
		players[id] = ClientPlayer{Name: p.Name, Color: string(p.Color), Connected: p.Connected}
	}
	return players
}

// refreshSnapshotLocked rebuilds the stored snapshot. Callers hold g.mu and
// must be the tick loop (or run before it starts): the piece reads below are
// only safe from the goroutine that owns the pieces.
func (g *Game) refreshSnapshotLocked() {
	players := g.clientPlayersLocked()
	pieces := make([]PieceView, 0, len(g.pieces))
	for _, p := range g.pieces {
		pieces = append(pieces, PieceView{
			ID:            p.ID,
			Position:      p.Cell(),
			Type:          string(p.Type),
			Color:         string(p.Color),
			State:         string(p.StateName()),
			CanBeCaptured: p.CanBeCaptured(),
		})
	}
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].ID < pieces[j].ID })

	selected := make(map[string]string, len(g.selected))
	for color, id := range g.selected {
		selected[string(color)] = id
	}

	var winner *string
	if g.winner != nil {
		w := string(*g.winner)
		winner = &w
	}
	g.snapshot = Snapshot{
		GameID:         g.ID,
		Status:         g.status,
		Players:        players,
		Pieces:         pieces,
		Winner:         winner,
		SelectedPieces: selected,
	}
}

// broadcastState sends the current snapshot to every connected member.
func (g *Game) broadcastState() {
	msg, err := ws.NewMessage(ws.MessageTypeGameState, g.Snapshot())
	if err != nil {
		log.Printf("game %s: marshal game_state: %v", g.ID, err)
		return
	}
	g.broadcast(msg)
}

// broadcast enqueues a message to every connected member. Sends never block:
// the sink owns a buffered channel and drops on overflow.
func (g *Game) broadcast(msg ws.Message) {
	g.mu.Lock()
	sinks := make([]MessageSink, 0, len(g.players))
	for _, p := range g.players {
		if p.Connected && p.Sink != nil {
			sinks = append(sinks, p.Sink)
		}
	}
	g.mu.Unlock()

	for _, sink := range sinks {
		if !sink.Send(msg) {
			log.Printf("game %s: dropped broadcast, send buffer full", g.ID)
		}
	}
}

func (g *Game) sendError(to *Player, code, text string) {
	if to == nil || to.Sink == nil {
		return
	}
	msg, err := ws.NewMessage(ws.MessageTypeError, ws.ErrorPayload{ErrorCode: code, Message: text})
	if err != nil {
		log.Printf("game %s: marshal error payload: %v", g.ID, err)
		return
	}
	to.Sink.Send(msg)
}
