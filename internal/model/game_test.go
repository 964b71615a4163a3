package model

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kfchess/kfchess-server/internal/event"
	"github.com/kfchess/kfchess-server/internal/ws"
)

type nopSink struct{}

func (nopSink) Send(ws.Message) bool { return true }

// recordSink captures everything sent to one player.
type recordSink struct {
	mu   sync.Mutex
	msgs []ws.Message
}

func (r *recordSink) Send(msg ws.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recordSink) byType(t ws.MessageType) []ws.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ws.Message
	for _, m := range r.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// testBoardConfig builds a minimal valid board: both kings plus any extra
// placements, every type at 1 cell/s with a 2s cooldown so tests can reason
// about timing.
func testBoardConfig(extra ...PiecePlacement) BoardConfig {
	traits := make(map[PieceType]Traits)
	for _, pt := range []PieceType{King, Queen, Rook, Bishop, Knight, Pawn} {
		traits[pt] = Traits{SpeedCellsPerSec: 1.0, JumpMS: 500, RestMS: 2000}
	}
	cfg := BoardConfig{
		Rows: 8,
		Cols: 8,
		Pieces: append([]PiecePlacement{
			{ID: "KW4", Cell: Position{Row: 7, Col: 4}},
			{ID: "KB4", Cell: Position{Row: 0, Col: 4}},
		}, extra...),
		Traits: traits,
	}
	return cfg
}

func newTestGame(t *testing.T, cfg BoardConfig) *Game {
	t.Helper()
	// an hour-long tick interval keeps the background loop quiet so tests
	// drive Tick themselves
	g, err := NewGame("test-game", cfg, event.NewBus(), time.Hour)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	t.Cleanup(g.Stop)
	return g
}

func tickUntil(g *Game, fromMS, toMS, stepMS int64) {
	for now := fromMS; now <= toMS; now += stepMS {
		g.Tick(now)
	}
}

func TestLastMoverWinsCollision(t *testing.T) {
	// Two pawns race to (3,3): PW3 commanded at t=100 from (6,3), PB4 at
	// t=150 from (1,3). PB4 arrives first and is still cooling down when
	// PW3 rolls in, so the later-initiated PB4 wins the cell.
	cfg := testBoardConfig(
		PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}},
		PiecePlacement{ID: "PB4", Cell: Position{Row: 1, Col: 3}},
	)
	g := newTestGame(t, cfg)

	var captures []PieceCapturedEvent
	g.bus.Subscribe(event.TopicPieceCaptured, func(data any) {
		captures = append(captures, data.(PieceCapturedEvent))
	})

	g.EnqueueCommand(Command{
		TimestampMS: 100, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {3, 3}},
	}, nil)
	g.EnqueueCommand(Command{
		TimestampMS: 150, PieceID: "PB4", Kind: CommandMove,
		Params: []Position{{1, 3}, {3, 3}},
	}, nil)

	tickUntil(g, 200, 4000, 50)

	if _, alive := g.pieceByID["PW3"]; alive {
		t.Fatal("PW3 should have been captured")
	}
	pb4, alive := g.pieceByID["PB4"]
	if !alive {
		t.Fatal("PB4 should have survived")
	}
	if pb4.Cell() != (Position{3, 3}) {
		t.Fatalf("PB4 should occupy (3,3), got %s", pb4.Cell())
	}
	if len(captures) != 1 {
		t.Fatalf("expected exactly one capture event, got %d", len(captures))
	}
	if captures[0].Victim.ID != "PW3" || captures[0].Winner.ID != "PB4" {
		t.Fatalf("expected PB4 to capture PW3, got %s captures %s",
			captures[0].Winner.ID, captures[0].Victim.ID)
	}
}

func TestNoSameColorCapture(t *testing.T) {
	// Two white pieces are commanded to the same empty destination. The
	// overlap is tolerated, nobody is captured.
	cfg := testBoardConfig(
		PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}},
		PiecePlacement{ID: "NW1", Cell: Position{Row: 5, Col: 2}},
	)
	g := newTestGame(t, cfg)

	g.EnqueueCommand(Command{
		TimestampMS: 0, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {4, 3}},
	}, nil)
	g.EnqueueCommand(Command{
		TimestampMS: 10, PieceID: "NW1", Kind: CommandMove,
		Params: []Position{{5, 2}, {4, 3}},
	}, nil)

	tickUntil(g, 50, 5000, 50)

	if len(g.pieces) != 4 {
		t.Fatalf("no piece may be captured in a same-color overlap, %d pieces left", len(g.pieces))
	}
	if g.pieceByID["PW3"].Cell() != (Position{4, 3}) || g.pieceByID["NW1"].Cell() != (Position{4, 3}) {
		t.Fatal("both white pieces should sit on the shared cell")
	}
}

func TestCollisionWinnerDeterministic(t *testing.T) {
	a := newTestPiece(t, "PW1", Position{Row: 3, Col: 3})
	b := newTestPiece(t, "PB1", Position{Row: 3, Col: 3})
	a.OnCommand(moveCommand(100, "PW1", Position{3, 3}, Position{2, 3}), Occupancy{})
	b.OnCommand(moveCommand(200, "PB1", Position{3, 3}, Position{4, 3}), Occupancy{})

	// both non-idle, t1 < t2: the later start must win either way round
	if w := collisionWinner([]*Piece{a, b}); w != b {
		t.Fatalf("expected PB1 (t=200) to win, got %s", w.ID)
	}
	if w := collisionWinner([]*Piece{b, a}); w != b {
		t.Fatalf("winner depends on insertion order, got %s", w.ID)
	}
}

func TestCollisionTieBreaksOnPieceID(t *testing.T) {
	a := newTestPiece(t, "PW1", Position{Row: 3, Col: 3})
	b := newTestPiece(t, "PB1", Position{Row: 3, Col: 3})
	a.OnCommand(moveCommand(100, "PW1", Position{3, 3}, Position{2, 3}), Occupancy{})
	b.OnCommand(moveCommand(100, "PB1", Position{3, 3}, Position{4, 3}), Occupancy{})

	// equal timestamps: lexicographically smaller id wins, in both orders
	if w := collisionWinner([]*Piece{a, b}); w.ID != "PB1" {
		t.Fatalf("expected PB1 on tie, got %s", w.ID)
	}
	if w := collisionWinner([]*Piece{b, a}); w.ID != "PB1" {
		t.Fatalf("expected PB1 on tie regardless of order, got %s", w.ID)
	}
}

func TestMovingPieceOutranksIdleOccupant(t *testing.T) {
	mover := newTestPiece(t, "PB1", Position{Row: 3, Col: 3})
	idler := newTestPiece(t, "PW1", Position{Row: 3, Col: 3})
	mover.OnCommand(moveCommand(100, "PB1", Position{3, 3}, Position{4, 3}), Occupancy{})

	if w := collisionWinner([]*Piece{idler, mover}); w != mover {
		t.Fatalf("an actively moving piece must outrank an idle occupant, got %s", w.ID)
	}
}

func TestUnknownPieceCommandDropped(t *testing.T) {
	g := newTestGame(t, testBoardConfig())
	before := g.Snapshot()

	g.EnqueueCommand(Command{
		TimestampMS: 10, PieceID: "QW9", Kind: CommandMove,
		Params: []Position{{0, 0}, {1, 1}},
	}, nil)
	g.Tick(100)

	after := g.Snapshot()
	if !reflect.DeepEqual(before.Pieces, after.Pieces) {
		t.Fatal("a command for an unknown piece must not mutate the game")
	}
	if after.Status != StatusWaiting {
		t.Fatalf("expected status unchanged, got %s", after.Status)
	}
}

func TestShortCommandDropped(t *testing.T) {
	cfg := testBoardConfig(PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}})
	g := newTestGame(t, cfg)

	g.EnqueueCommand(Command{TimestampMS: 10, PieceID: "PW3", Kind: CommandMove}, nil)
	g.Tick(100)

	if g.pieceByID["PW3"].StateName() != StateIdle {
		t.Fatal("a move command without a destination must be dropped")
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	cfg := testBoardConfig(PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}})
	g := newTestGame(t, cfg)
	g.Tick(100)

	first := g.Snapshot()
	second := g.Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two snapshots with no tick in between must be equal")
	}
}

func TestGameActivatesOnSecondJoinAndNeverReverts(t *testing.T) {
	g := newTestGame(t, testBoardConfig())

	if _, err := g.AddPlayer(&Player{ID: "p1", Name: "one", Sink: nopSink{}}, ""); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if g.Status() != StatusWaiting {
		t.Fatalf("one player should leave the game waiting, got %s", g.Status())
	}

	if _, err := g.AddPlayer(&Player{ID: "p2", Name: "two", Sink: nopSink{}}, ""); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if g.Status() != StatusActive {
		t.Fatalf("two players should make the game active, got %s", g.Status())
	}

	if g.MarkDisconnected("p2") != 1 {
		t.Fatal("expected one connected player left")
	}
	if g.Status() != StatusActive {
		t.Fatalf("a disconnect must not revert the game to waiting, got %s", g.Status())
	}
}

func TestThirdPlayerRejected(t *testing.T) {
	g := newTestGame(t, testBoardConfig())
	g.AddPlayer(&Player{ID: "p1", Sink: nopSink{}}, "")
	g.AddPlayer(&Player{ID: "p2", Sink: nopSink{}}, "")

	if _, err := g.AddPlayer(&Player{ID: "p3", Sink: nopSink{}}, ""); err != ErrGameFull {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestColorAssignment(t *testing.T) {
	tests := []struct {
		name       string
		firstPref  PieceColor
		secondPref PieceColor
		firstWant  PieceColor
		secondWant PieceColor
	}{
		{name: "no preferences", firstWant: White, secondWant: Black},
		{name: "first prefers black", firstPref: Black, firstWant: Black, secondWant: White},
		{name: "both prefer white", firstPref: White, secondPref: White, firstWant: White, secondWant: Black},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGame(t, testBoardConfig())
			c1, err := g.AddPlayer(&Player{ID: "p1", Sink: nopSink{}}, tt.firstPref)
			if err != nil {
				t.Fatalf("first join: %v", err)
			}
			c2, err := g.AddPlayer(&Player{ID: "p2", Sink: nopSink{}}, tt.secondPref)
			if err != nil {
				t.Fatalf("second join: %v", err)
			}
			if c1 != tt.firstWant || c2 != tt.secondWant {
				t.Fatalf("got %s/%s, want %s/%s", c1, c2, tt.firstWant, tt.secondWant)
			}
		})
	}
}

func TestGameFinishesWhenKingFalls(t *testing.T) {
	// the white king marches onto the black king's cell and captures it
	cfg := BoardConfig{
		Rows: 8, Cols: 8,
		Pieces: []PiecePlacement{
			{ID: "KW4", Cell: Position{Row: 2, Col: 4}},
			{ID: "KB4", Cell: Position{Row: 0, Col: 4}},
		},
		Traits: map[PieceType]Traits{
			King: {SpeedCellsPerSec: 1.0, JumpMS: 500, RestMS: 2000},
		},
	}
	g := newTestGame(t, cfg)

	var ended []GameEndEvent
	g.bus.Subscribe(event.TopicGameEnd, func(data any) {
		ended = append(ended, data.(GameEndEvent))
	})

	g.EnqueueCommand(Command{
		TimestampMS: 0, PieceID: "KW4", Kind: CommandMove,
		Params: []Position{{2, 4}, {0, 4}},
	}, nil)
	tickUntil(g, 50, 2500, 50)

	if g.Status() != StatusFinished {
		t.Fatalf("expected finished, got %s", g.Status())
	}
	snap := g.Snapshot()
	if snap.Winner == nil || *snap.Winner != string(White) {
		t.Fatalf("expected white to win, got %v", snap.Winner)
	}
	if len(ended) != 1 {
		t.Fatalf("expected exactly one game_end event, got %d", len(ended))
	}
}

func TestProtectedPieceSurvivesOverlap(t *testing.T) {
	// a black pawn lands on the white knight's cell while the knight is
	// mid-jump; the jump protects it until the overlap resolves later
	cfg := testBoardConfig(
		PiecePlacement{ID: "NW1", Cell: Position{Row: 4, Col: 3}},
		PiecePlacement{ID: "PB4", Cell: Position{Row: 3, Col: 3}},
	)
	g := newTestGame(t, cfg)

	// a slow jump keeps the knight airborne on its origin cell for the
	// whole test window
	knight := g.pieceByID["NW1"]
	knight.state = newJumpingState(Position{4, 3}, Position{4, 4}, 100,
		Traits{SpeedCellsPerSec: 1.0, JumpMS: 10000, RestMS: 2000})

	// the pawn arrives on the knight's origin; its later start makes it the
	// collision winner, but the jump protects the knight
	g.EnqueueCommand(Command{
		TimestampMS: 150, PieceID: "PB4", Kind: CommandMove,
		Params: []Position{{3, 3}, {4, 3}},
	}, nil)

	tickUntil(g, 200, 2000, 50)
	if _, alive := g.pieceByID["NW1"]; !alive {
		t.Fatal("jumping knight must not be captured mid-animation")
	}
	if _, alive := g.pieceByID["PB4"]; !alive {
		t.Fatal("the winning pawn must survive the unresolved overlap")
	}
	if knight.Cell() != (Position{4, 3}) {
		t.Fatalf("airborne knight still holds its origin, got %s", knight.Cell())
	}
}

func decodeError(t *testing.T, msg ws.Message) ws.ErrorPayload {
	t.Helper()
	var payload ws.ErrorPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}

func TestRejectedCommandReportsInvalidMove(t *testing.T) {
	cfg := testBoardConfig(PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}})
	g := newTestGame(t, cfg)

	rec := &recordSink{}
	sender := &Player{ID: "p1", Color: White, Connected: true, Sink: rec}

	// off-board target
	g.EnqueueCommand(Command{
		TimestampMS: 10, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {9, 9}},
	}, sender)
	g.Tick(100)

	errs := rec.byType(ws.MessageTypeError)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error frame, got %d", len(errs))
	}
	if payload := decodeError(t, errs[0]); payload.ErrorCode != ws.ErrCodeInvalidMove {
		t.Fatalf("expected %s, got %s", ws.ErrCodeInvalidMove, payload.ErrorCode)
	}
	if g.pieceByID["PW3"].StateName() != StateIdle || g.pieceByID["PW3"].Cell() != (Position{6, 3}) {
		t.Fatal("a rejected command must not change piece state")
	}

	// state rejection: the pawn is cooling down after a move
	g.EnqueueCommand(Command{
		TimestampMS: 200, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {5, 3}},
	}, nil)
	g.Tick(200)  // apply the move
	g.Tick(1300) // move 200..1200, resting since 1200
	if g.pieceByID["PW3"].StateName() != StateResting {
		t.Fatalf("expected resting, got %s", g.pieceByID["PW3"].StateName())
	}
	g.EnqueueCommand(Command{
		TimestampMS: 1400, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{5, 3}, {4, 3}},
	}, sender)
	g.Tick(1400)

	errs = rec.byType(ws.MessageTypeError)
	if len(errs) != 2 {
		t.Fatalf("expected a second error frame, got %d total", len(errs))
	}
	if payload := decodeError(t, errs[1]); payload.ErrorCode != ws.ErrCodeInvalidMove {
		t.Fatalf("expected %s, got %s", ws.ErrCodeInvalidMove, payload.ErrorCode)
	}
	if g.pieceByID["PW3"].StateName() != StateResting {
		t.Fatal("a resting piece must stay resting after a rejected command")
	}
}

func TestMoveMadeEchoesClientTimestamp(t *testing.T) {
	cfg := testBoardConfig(PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}})
	g := newTestGame(t, cfg)

	rec := &recordSink{}
	if _, err := g.AddPlayer(&Player{ID: "p1", Sink: rec}, White); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPlayer(&Player{ID: "p2", Sink: nopSink{}}, Black); err != nil {
		t.Fatal(err)
	}

	g.EnqueueCommand(Command{
		TimestampMS: 100, ClientMS: 777, PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {5, 3}},
	}, nil)
	g.Tick(150)

	made := rec.byType(ws.MessageTypeMoveMade)
	if len(made) != 1 {
		t.Fatalf("expected one move_made frame, got %d", len(made))
	}
	var payload ws.MoveMadePayload
	if err := json.Unmarshal(made[0].Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Timestamp != 777 {
		t.Fatalf("move_made must echo the client timestamp, got %d", payload.Timestamp)
	}
	if payload.PieceID != "PW3" || payload.From != (ws.Cell{6, 3}) || payload.To != (ws.Cell{5, 3}) {
		t.Fatalf("unexpected move_made payload: %+v", payload)
	}
}

func TestDisconnectDuringLiveGame(t *testing.T) {
	// the tick loop mutates piece state while a connection goroutine
	// disconnects a player; the disconnect path must only touch the
	// players side of the snapshot
	cfg := testBoardConfig(PiecePlacement{ID: "PW3", Cell: Position{Row: 6, Col: 3}})
	g, err := NewGame("live-game", cfg, event.NewBus(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(g.Stop)

	if _, err := g.AddPlayer(&Player{ID: "p1", Sink: nopSink{}}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPlayer(&Player{ID: "p2", Sink: nopSink{}}, ""); err != nil {
		t.Fatal(err)
	}

	g.EnqueueCommand(Command{
		TimestampMS: g.GameTimeMS(), PieceID: "PW3", Kind: CommandMove,
		Params: []Position{{6, 3}, {3, 3}},
	}, nil)

	time.Sleep(10 * time.Millisecond)
	if g.MarkDisconnected("p2") != 1 {
		t.Fatal("expected one connected player left")
	}
	time.Sleep(10 * time.Millisecond)

	snap := g.Snapshot()
	if snap.Players["p2"].Connected {
		t.Fatal("snapshot must reflect the disconnect")
	}
	if !snap.Players["p1"].Connected {
		t.Fatal("the remaining player stays connected")
	}
}
