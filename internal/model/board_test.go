package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultBoardConfigBuilds(t *testing.T) {
	cfg := DefaultBoardConfig()
	pieces, err := cfg.BuildPieces()
	if err != nil {
		t.Fatalf("build default pieces: %v", err)
	}
	if len(pieces) != 32 {
		t.Fatalf("expected 32 pieces, got %d", len(pieces))
	}

	kings := map[PieceColor]int{}
	for _, p := range pieces {
		if p.Type == King {
			kings[p.Color]++
		}
	}
	if kings[White] != 1 || kings[Black] != 1 {
		t.Fatalf("expected one king per color, got %v", kings)
	}

	// spot-check the id convention against known placements
	byID := map[string]*Piece{}
	for _, p := range pieces {
		byID[p.ID] = p
	}
	if pw3, ok := byID["PW3"]; !ok || pw3.Cell() != (Position{Row: 6, Col: 3}) {
		t.Fatalf("expected PW3 on (6,3), got %v", pw3)
	}
	if kb4, ok := byID["KB4"]; !ok || kb4.Cell() != (Position{Row: 0, Col: 4}) {
		t.Fatalf("expected KB4 on (0,4), got %v", kb4)
	}
}

func TestValidateBoardRejectsBadSetups(t *testing.T) {
	tests := []struct {
		name   string
		pieces []PiecePlacement
	}{
		{
			name: "missing black king",
			pieces: []PiecePlacement{
				{ID: "KW4", Cell: Position{Row: 7, Col: 4}},
			},
		},
		{
			name: "two white kings",
			pieces: []PiecePlacement{
				{ID: "KW4", Cell: Position{Row: 7, Col: 4}},
				{ID: "KW5", Cell: Position{Row: 7, Col: 5}},
				{ID: "KB4", Cell: Position{Row: 0, Col: 4}},
			},
		},
		{
			name: "same color double occupancy",
			pieces: []PiecePlacement{
				{ID: "KW4", Cell: Position{Row: 7, Col: 4}},
				{ID: "KB4", Cell: Position{Row: 0, Col: 4}},
				{ID: "PW0", Cell: Position{Row: 6, Col: 0}},
				{ID: "NW0", Cell: Position{Row: 6, Col: 0}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BoardConfig{Rows: 8, Cols: 8, Pieces: tt.pieces, Traits: DefaultTraits()}
			if _, err := cfg.BuildPieces(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestBuildPiecesRejectsOutOfBounds(t *testing.T) {
	cfg := BoardConfig{
		Rows: 8, Cols: 8,
		Pieces: []PiecePlacement{
			{ID: "KW4", Cell: Position{Row: 9, Col: 4}},
			{ID: "KB4", Cell: Position{Row: 0, Col: 4}},
		},
		Traits: DefaultTraits(),
	}
	if _, err := cfg.BuildPieces(); err == nil {
		t.Fatal("expected out-of-bounds placement to fail")
	}
}

func TestLoadBoardConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	data := `{
		"rows": 4,
		"cols": 4,
		"pieces": [
			{"id": "KW0", "cell": [3, 0]},
			{"id": "KB0", "cell": [0, 0]}
		],
		"traits": {"king": {"speed_cells_per_sec": 2.5, "jump_ms": 100, "rest_ms": 50}}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadBoardConfig(path)
	if err != nil {
		t.Fatalf("load board config: %v", err)
	}
	if cfg.Rows != 4 || cfg.Cols != 4 {
		t.Fatalf("wrong dimensions: %dx%d", cfg.Rows, cfg.Cols)
	}
	if cfg.Traits[King].SpeedCellsPerSec != 2.5 {
		t.Fatalf("king traits not applied: %+v", cfg.Traits[King])
	}
	// unspecified types fall back to defaults
	if cfg.Traits[Pawn].SpeedCellsPerSec != DefaultTraits()[Pawn].SpeedCellsPerSec {
		t.Fatal("pawn traits should come from the defaults")
	}
	if _, err := cfg.BuildPieces(); err != nil {
		t.Fatalf("build from loaded config: %v", err)
	}
}

func TestLoadBoardConfigErrors(t *testing.T) {
	if _, err := LoadBoardConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"rows": 0, "cols": 8}`), 0o644)
	if _, err := LoadBoardConfig(path); err == nil {
		t.Fatal("expected error for zero rows")
	}
}
