package model

// StateName tags a piece state variant.
type StateName string

const (
	StateIdle    StateName = "idle"
	StateMoving  StateName = "moving"
	StateJumping StateName = "jumping"
	StateResting StateName = "resting"
)

// Occupancy maps a cell to the pieces currently occupying it. It is derived
// data, rebuilt from the authoritative piece list every tick and never
// patched incrementally.
type Occupancy map[Position][]*Piece

// HasBlockerOfColor reports whether the cell holds a movement blocker of the
// given color.
func (o Occupancy) HasBlockerOfColor(cell Position, color PieceColor) bool {
	for _, p := range o[cell] {
		if p.Color == color && p.IsMovementBlocker() {
			return true
		}
	}
	return false
}

// State is one variant of the piece state machine. OnCommand returns the
// next state, or the receiver itself when the command is rejected. Update
// advances physics for now and returns the (possibly unchanged) state; it
// must be called with monotonically increasing timestamps.
type State interface {
	Name() StateName
	Physics() *Physics
	OnCommand(cmd Command, occ Occupancy, own PieceColor) State
	Update(nowMS int64) State
	CanBeCaptured() bool
	IsMovementBlocker() bool
}

// ---------------------------------------------------------------- idle

type idleState struct {
	phys   Physics
	traits Traits
}

func newIdleState(cell Position, startMS int64, traits Traits) *idleState {
	return &idleState{phys: newStaticPhysics(cell, startMS), traits: traits}
}

func (s *idleState) Name() StateName    { return StateIdle }
func (s *idleState) Physics() *Physics  { return &s.phys }
func (s *idleState) Update(int64) State { return s }

func (s *idleState) OnCommand(cmd Command, occ Occupancy, own PieceColor) State {
	target, ok := cmd.Target()
	if !ok {
		return s
	}
	cur := s.phys.Cell()
	if target == cur {
		return s
	}
	// a same-color blocker on the destination rejects the command outright
	if occ.HasBlockerOfColor(target, own) {
		return s
	}

	switch cmd.Kind {
	case CommandMove:
		durationMS := int64(cur.Distance(target) / s.traits.SpeedCellsPerSec * 1000)
		return newMovingState(cur, target, cmd.TimestampMS, durationMS, s.traits)
	case CommandJump:
		return newJumpingState(cur, target, cmd.TimestampMS, s.traits)
	}
	return s
}

func (s *idleState) CanBeCaptured() bool     { return true }
func (s *idleState) IsMovementBlocker() bool { return true }

// ---------------------------------------------------------------- moving

type movingState struct {
	phys   Physics
	traits Traits
}

func newMovingState(from, to Position, startMS, durationMS int64, traits Traits) *movingState {
	return &movingState{
		phys:   newTravelPhysics(from, to, startMS, durationMS, false),
		traits: traits,
	}
}

func (s *movingState) Name() StateName   { return StateMoving }
func (s *movingState) Physics() *Physics { return &s.phys }

// a piece mid-move does not accept new commands
func (s *movingState) OnCommand(Command, Occupancy, PieceColor) State { return s }

func (s *movingState) Update(nowMS int64) State {
	if s.phys.Advance(nowMS) {
		return afterMotion(s.phys.To, s.phys.CompletionMS(), s.traits)
	}
	return s
}

func (s *movingState) CanBeCaptured() bool     { return true }
func (s *movingState) IsMovementBlocker() bool { return false }

// ---------------------------------------------------------------- jumping

type jumpingState struct {
	phys   Physics
	traits Traits
}

func newJumpingState(from, to Position, startMS int64, traits Traits) *jumpingState {
	return &jumpingState{
		phys:   newTravelPhysics(from, to, startMS, traits.JumpMS, true),
		traits: traits,
	}
}

func (s *jumpingState) Name() StateName   { return StateJumping }
func (s *jumpingState) Physics() *Physics { return &s.phys }

func (s *jumpingState) OnCommand(Command, Occupancy, PieceColor) State { return s }

func (s *jumpingState) Update(nowMS int64) State {
	if s.phys.Advance(nowMS) {
		return afterMotion(s.phys.To, s.phys.CompletionMS(), s.traits)
	}
	return s
}

// jumps are protected mid-animation unless the piece type says otherwise
func (s *jumpingState) CanBeCaptured() bool     { return s.traits.CapturableWhileJumping }
func (s *jumpingState) IsMovementBlocker() bool { return false }

// ---------------------------------------------------------------- resting

// restingState is the post-motion cooldown. It counts as non-idle for
// collision resolution: a piece that just arrived outranks one that has been
// sitting on the cell.
type restingState struct {
	phys   Physics
	traits Traits
}

func newRestingState(cell Position, startMS int64, traits Traits) *restingState {
	s := &restingState{phys: newStaticPhysics(cell, startMS), traits: traits}
	s.phys.DurationMS = traits.RestMS
	return s
}

func (s *restingState) Name() StateName   { return StateResting }
func (s *restingState) Physics() *Physics { return &s.phys }

func (s *restingState) OnCommand(Command, Occupancy, PieceColor) State { return s }

func (s *restingState) Update(nowMS int64) State {
	if nowMS >= s.phys.CompletionMS() {
		return newIdleState(s.phys.To, s.phys.CompletionMS(), s.traits)
	}
	return s
}

func (s *restingState) CanBeCaptured() bool     { return true }
func (s *restingState) IsMovementBlocker() bool { return true }

// afterMotion decides what a piece does once a move or jump lands.
func afterMotion(cell Position, completionMS int64, traits Traits) State {
	if traits.RestMS > 0 {
		return newRestingState(cell, completionMS, traits)
	}
	return newIdleState(cell, completionMS, traits)
}
