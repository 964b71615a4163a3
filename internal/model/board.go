package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Board is the cell geometry of a game.
type Board struct {
	Rows int
	Cols int
}

func (b Board) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < b.Rows && p.Col >= 0 && p.Col < b.Cols
}

// PiecePlacement puts one piece on its starting cell.
type PiecePlacement struct {
	ID   string   `json:"id"`
	Cell Position `json:"cell"`
}

// BoardConfig is the external board/piece configuration: cell geometry, the
// initial piece set and per-type movement traits. It is loaded once per game
// creation.
type BoardConfig struct {
	Rows   int                  `json:"rows"`
	Cols   int                  `json:"cols"`
	Pieces []PiecePlacement     `json:"pieces"`
	Traits map[PieceType]Traits `json:"traits,omitempty"`
}

// DefaultBoardConfig is the standard 8x8 chess setup. Piece ids encode type,
// color and starting column, e.g. "PW3" is the white pawn on column 3.
func DefaultBoardConfig() BoardConfig {
	cfg := BoardConfig{Rows: 8, Cols: 8, Traits: DefaultTraits()}

	backRank := []PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for col, pt := range backRank {
		cfg.Pieces = append(cfg.Pieces,
			PiecePlacement{ID: fmt.Sprintf("%sB%d", pt.Notation(), col), Cell: Position{Row: 0, Col: col}},
			PiecePlacement{ID: fmt.Sprintf("%sW%d", pt.Notation(), col), Cell: Position{Row: 7, Col: col}},
		)
	}
	for col := 0; col < 8; col++ {
		cfg.Pieces = append(cfg.Pieces,
			PiecePlacement{ID: fmt.Sprintf("PB%d", col), Cell: Position{Row: 1, Col: col}},
			PiecePlacement{ID: fmt.Sprintf("PW%d", col), Cell: Position{Row: 6, Col: col}},
		)
	}
	return cfg
}

// LoadBoardConfig reads a board configuration from a JSON file. Missing
// traits fall back to the defaults so a config file can override placements
// only.
func LoadBoardConfig(path string) (BoardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BoardConfig{}, fmt.Errorf("read board config: %w", err)
	}
	var cfg BoardConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return BoardConfig{}, fmt.Errorf("parse board config: %w", err)
	}
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return BoardConfig{}, fmt.Errorf("board config has invalid dimensions %dx%d", cfg.Rows, cfg.Cols)
	}
	defaults := DefaultTraits()
	if cfg.Traits == nil {
		cfg.Traits = defaults
	} else {
		for pt, tr := range defaults {
			if _, ok := cfg.Traits[pt]; !ok {
				cfg.Traits[pt] = tr
			}
		}
	}
	return cfg, nil
}

// Board returns the cell geometry described by the config.
func (cfg BoardConfig) Board() Board {
	return Board{Rows: cfg.Rows, Cols: cfg.Cols}
}

// BuildPieces constructs the initial piece set.
func (cfg BoardConfig) BuildPieces() ([]*Piece, error) {
	board := cfg.Board()
	pieces := make([]*Piece, 0, len(cfg.Pieces))
	for _, pl := range cfg.Pieces {
		if !board.InBounds(pl.Cell) {
			return nil, fmt.Errorf("piece %s placed out of bounds at %s", pl.ID, pl.Cell)
		}
		pt, _, err := ParsePieceID(pl.ID)
		if err != nil {
			return nil, err
		}
		traits, ok := cfg.Traits[pt]
		if !ok {
			traits = DefaultTraits()[pt]
		}
		p, err := NewPiece(pl.ID, pl.Cell, traits)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
	}
	if err := ValidateBoard(pieces); err != nil {
		return nil, err
	}
	return pieces, nil
}

// ValidateBoard checks the starting invariants: exactly one king per color
// and no two same-color pieces on one cell.
func ValidateBoard(pieces []*Piece) error {
	kings := map[PieceColor]int{}
	seen := map[Position]PieceColor{}
	for _, p := range pieces {
		cell := p.Cell()
		if color, ok := seen[cell]; ok && color == p.Color {
			return fmt.Errorf("two %s pieces share cell %s", p.Color, cell)
		}
		seen[cell] = p.Color
		if p.Type == King {
			kings[p.Color]++
		}
	}
	if kings[White] != 1 || kings[Black] != 1 {
		return fmt.Errorf("board needs exactly one king per color, got %d white / %d black", kings[White], kings[Black])
	}
	return nil
}
