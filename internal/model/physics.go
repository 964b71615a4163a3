package model

import "math"

// Physics carries the time-driven position of one piece state. Positions are
// recomputed from StartMS on every call, so advancing to the same time twice
// yields the same result.
type Physics struct {
	StartMS    int64
	DurationMS int64
	From       Position
	To         Position

	// hold keeps the piece on its origin cell for the whole duration and
	// snaps to the destination only on completion (jump semantics).
	hold bool

	rowPos float64
	colPos float64
	done   bool
}

// newStaticPhysics pins a piece to one cell.
func newStaticPhysics(cell Position, startMS int64) Physics {
	return Physics{
		StartMS: startMS,
		From:    cell,
		To:      cell,
		rowPos:  float64(cell.Row),
		colPos:  float64(cell.Col),
		done:    true,
	}
}

// newTravelPhysics moves a piece from one cell to another over durationMS.
func newTravelPhysics(from, to Position, startMS, durationMS int64, hold bool) Physics {
	if durationMS < 1 {
		durationMS = 1
	}
	return Physics{
		StartMS:    startMS,
		DurationMS: durationMS,
		From:       from,
		To:         to,
		hold:       hold,
		rowPos:     float64(from.Row),
		colPos:     float64(from.Col),
	}
}

// Advance recomputes the interpolated position for now and reports whether
// the motion has completed. On completion the position snaps exactly to the
// destination cell, leaving no residual rounding error.
func (p *Physics) Advance(nowMS int64) bool {
	elapsed := nowMS - p.StartMS
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= p.DurationMS {
		p.rowPos = float64(p.To.Row)
		p.colPos = float64(p.To.Col)
		p.done = true
		return true
	}
	if p.hold {
		return false
	}
	frac := float64(elapsed) / float64(p.DurationMS)
	p.rowPos = float64(p.From.Row) + frac*float64(p.To.Row-p.From.Row)
	p.colPos = float64(p.From.Col) + frac*float64(p.To.Col-p.From.Col)
	return false
}

// CompletionMS is the timestamp at which the motion finishes. Follow-up
// states start exactly there rather than at the tick that observed the
// completion, keeping state timestamps independent of tick cadence.
func (p *Physics) CompletionMS() int64 {
	return p.StartMS + p.DurationMS
}

// Cell returns the board cell currently occupied by the piece: the rounded
// interpolated position mid-flight, the exact destination once done.
func (p *Physics) Cell() Position {
	if p.done {
		return p.To
	}
	return Position{
		Row: int(math.Round(p.rowPos)),
		Col: int(math.Round(p.colPos)),
	}
}
