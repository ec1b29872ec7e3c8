package core

// Capabilities is the read-only window an agent has onto the game it is
// deciding for. Every query reflects the live state at the moment it is made.
// Calls made while no session is bound fail with ErrNoSessionBound.
type Capabilities interface {
	Board() (BoardSnapshot, error)
	LegalMoves() ([]string, error)
	InCheck() (bool, error)
	GameResult() (GameResult, error)
	Position() (string, error)
	Log(message string) error
}
