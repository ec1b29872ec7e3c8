package core

import (
	"fmt"
	"time"
)

// SeatMode selects who controls a side.
type SeatMode string

const (
	// SeatHuman leaves the side to the user.
	SeatHuman SeatMode = "human"
	// SeatAuto lets the seated agent play its moves.
	SeatAuto SeatMode = "auto"
	// SeatAdvisory asks the seated agent for suggestions the user may follow.
	SeatAdvisory SeatMode = "advisory"
)

// Seat binds a side to a mode and, for agent modes, an agent.
type Seat struct {
	Mode    SeatMode `json:"mode"`
	AgentID string   `json:"agent_id,omitempty"`
}

// Agent reports whether the seat is driven by an agent.
func (s Seat) Agent() bool {
	return (s.Mode == SeatAuto || s.Mode == SeatAdvisory) && s.AgentID != ""
}

// MatchConfig describes how a session is played.
type MatchConfig struct {
	White     Seat          `json:"white"`
	Black     Seat          `json:"black"`
	MoveDelay time.Duration `json:"move_delay"`
	Paused    bool          `json:"paused"`
}

// DefaultMatchConfig is a human versus human game.
var DefaultMatchConfig = MatchConfig{
	White:     Seat{Mode: SeatHuman},
	Black:     Seat{Mode: SeatHuman},
	MoveDelay: 500 * time.Millisecond,
	Paused:    true,
}

// Seat returns the seat for a side.
func (c MatchConfig) Seat(side Side) Seat {
	if side == SideBlack {
		return c.Black
	}
	return c.White
}

// Validate checks seat modes and delay.
func (c MatchConfig) Validate() error {
	if c.MoveDelay < 0 {
		return fmt.Errorf("%w: negative move delay %s", ErrInvalidConfig, c.MoveDelay)
	}
	for _, side := range []Side{SideWhite, SideBlack} {
		seat := c.Seat(side)
		switch seat.Mode {
		case SeatHuman:
		case SeatAuto, SeatAdvisory:
			if seat.AgentID == "" {
				return fmt.Errorf("%w: %s seat in %s mode needs an agent", ErrInvalidConfig, side, seat.Mode)
			}
		default:
			return fmt.Errorf("%w: %s seat has unknown mode %q", ErrInvalidConfig, side, seat.Mode)
		}
	}
	return nil
}
