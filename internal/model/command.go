package model

import "fmt"

// CommandKind enumerates the intents a command can carry.
type CommandKind string

const (
	CommandIdle   CommandKind = "idle"
	CommandMove   CommandKind = "move"
	CommandJump   CommandKind = "jump"
	CommandSelect CommandKind = "select"
)

// Command is an immutable intent aimed at one piece. Move and jump commands
// carry at least two params: origin cell and destination cell. TimestampMS
// is server game time in milliseconds; it becomes the physics start time of
// whatever state the command triggers. ClientMS is the sender's own clock,
// echoed back in move_made and never fed into physics.
type Command struct {
	TimestampMS int64
	ClientMS    int64
	PieceID     string
	Kind        CommandKind
	Params      []Position
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s@%d %v", c.Kind, c.PieceID, c.TimestampMS, c.Params)
}

// Target returns the destination cell of a move or jump command.
func (c Command) Target() (Position, bool) {
	if len(c.Params) < 2 {
		return Position{}, false
	}
	return c.Params[1], true
}
