package model

import (
	"fmt"
)

type PieceType string

const (
	King   PieceType = "king"
	Queen  PieceType = "queen"
	Rook   PieceType = "rook"
	Bishop PieceType = "bishop"
	Knight PieceType = "knight"
	Pawn   PieceType = "pawn"
)

func (p PieceType) Notation() string {
	switch p {
	case King:
		return "K"
	case Queen:
		return "Q"
	case Rook:
		return "R"
	case Bishop:
		return "B"
	case Knight:
		return "N"
	case Pawn:
		return "P"
	}
	return "?"
}

type PieceColor string

const (
	White PieceColor = "white"
	Black PieceColor = "black"
)

func (c PieceColor) Notation() string {
	if c == White {
		return "W"
	}
	return "B"
}

// Opponent returns the other side.
func (c PieceColor) Opponent() PieceColor {
	if c == White {
		return Black
	}
	return White
}

var typeByNotation = map[byte]PieceType{
	'K': King, 'Q': Queen, 'R': Rook, 'B': Bishop, 'N': Knight, 'P': Pawn,
}

// ParsePieceID decodes the id convention (first letter type, second letter
// color, e.g. "PW3"). The convention is parsed once at construction or at the
// protocol boundary; everywhere else type and color are explicit fields.
func ParsePieceID(id string) (PieceType, PieceColor, error) {
	if len(id) < 2 {
		return "", "", fmt.Errorf("piece id %q too short", id)
	}
	pt, ok := typeByNotation[id[0]]
	if !ok {
		return "", "", fmt.Errorf("piece id %q has unknown type letter", id)
	}
	switch id[1] {
	case 'W':
		return pt, White, nil
	case 'B':
		return pt, Black, nil
	}
	return "", "", fmt.Errorf("piece id %q has unknown color letter", id)
}

// Traits are the per-type movement parameters. They come from the board
// configuration; the core never hardcodes them per call site.
type Traits struct {
	SpeedCellsPerSec       float64 `json:"speed_cells_per_sec"`
	JumpMS                 int64   `json:"jump_ms"`
	RestMS                 int64   `json:"rest_ms"`
	CapturableWhileJumping bool    `json:"capturable_while_jumping"`
}

// DefaultTraits mirrors the tuning of the reference piece set.
func DefaultTraits() map[PieceType]Traits {
	return map[PieceType]Traits{
		Pawn:   {SpeedCellsPerSec: 1.0, JumpMS: 800, RestMS: 2000},
		Knight: {SpeedCellsPerSec: 2.0, JumpMS: 600, RestMS: 1500},
		Bishop: {SpeedCellsPerSec: 2.5, JumpMS: 600, RestMS: 1500},
		Rook:   {SpeedCellsPerSec: 2.5, JumpMS: 700, RestMS: 1800},
		Queen:  {SpeedCellsPerSec: 3.0, JumpMS: 600, RestMS: 2000},
		King:   {SpeedCellsPerSec: 1.5, JumpMS: 900, RestMS: 2500},
	}
}

// Piece owns its state machine instance exclusively. Identity is stable for
// the piece's lifetime; captured pieces are removed from the game's active
// set, never reused.
type Piece struct {
	ID    string
	Type  PieceType
	Color PieceColor

	state State
}

// NewPiece builds a piece sitting idle at the given cell.
func NewPiece(id string, cell Position, traits Traits) (*Piece, error) {
	pt, color, err := ParsePieceID(id)
	if err != nil {
		return nil, err
	}
	return &Piece{
		ID:    id,
		Type:  pt,
		Color: color,
		state: newIdleState(cell, 0, traits),
	}, nil
}

// OnCommand feeds a command into the state machine. It reports whether the
// command was accepted, i.e. whether the state actually changed.
func (p *Piece) OnCommand(cmd Command, occ Occupancy) bool {
	next := p.state.OnCommand(cmd, occ, p.Color)
	if next == p.state {
		return false
	}
	p.state = next
	return true
}

// Update advances the piece's physics to now. If the piece's occupied cell
// changed it returns moved=true with the old and new cells so the owning
// session can publish the movement; pieces never publish events themselves.
func (p *Piece) Update(nowMS int64) (moved bool, from, to Position) {
	prev := p.Cell()
	p.state = p.state.Update(nowMS)
	cur := p.Cell()
	if prev != cur {
		return true, prev, cur
	}
	return false, prev, cur
}

// Cell returns the board cell the piece currently occupies.
func (p *Piece) Cell() Position {
	return p.state.Physics().Cell()
}

func (p *Piece) StateName() StateName {
	return p.state.Name()
}

// StateStartMS is the timestamp at which the current state began. The
// collision resolver ranks pieces by it.
func (p *Piece) StateStartMS() int64 {
	return p.state.Physics().StartMS
}

func (p *Piece) CanBeCaptured() bool {
	return p.state.CanBeCaptured()
}

func (p *Piece) IsMovementBlocker() bool {
	return p.state.IsMovementBlocker()
}
