package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Position is a board cell as (row, col). It is an immutable value and
// marshals as a [row, col] JSON array to match the wire protocol.
type Position struct {
	Row int
	Col int
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var cell [2]int
	if err := json.Unmarshal(data, &cell); err != nil {
		return fmt.Errorf("position must be a [row, col] array: %w", err)
	}
	p.Row, p.Col = cell[0], cell[1]
	return nil
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Distance is the straight-line distance to another cell, in cells.
func (p Position) Distance(other Position) float64 {
	dr := float64(other.Row - p.Row)
	dc := float64(other.Col - p.Col)
	return math.Sqrt(dr*dr + dc*dc)
}
