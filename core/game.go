package core

// PieceType names a chess piece.
type PieceType string

const (
	Pawn   PieceType = "pawn"
	Knight PieceType = "knight"
	Bishop PieceType = "bishop"
	Rook   PieceType = "rook"
	Queen  PieceType = "queen"
	King   PieceType = "king"
)

// Piece is a piece of a given color on a square.
type Piece struct {
	Type  PieceType `json:"type"`
	Color Side      `json:"color"`
}

// CastlingRights lists the castling moves still available.
type CastlingRights struct {
	WhiteKingside  bool `json:"white_kingside"`
	WhiteQueenside bool `json:"white_queenside"`
	BlackKingside  bool `json:"black_kingside"`
	BlackQueenside bool `json:"black_queenside"`
}

// HistoryEntry is a move in UCI notation and the position it produced.
type HistoryEntry struct {
	Move string `json:"move"`
	FEN  string `json:"fen"`
}

// BoardSnapshot is a read-only copy of the board. Squares are indexed
// rank*8+file with a1 = 0 and h8 = 63; empty squares are nil.
type BoardSnapshot struct {
	Squares        [64]*Piece     `json:"squares"`
	Turn           Side           `json:"turn"`
	Castling       CastlingRights `json:"castling_rights"`
	EnPassant      *int           `json:"en_passant,omitempty"`
	HalfmoveClock  int            `json:"halfmove_clock"`
	FullmoveNumber int            `json:"fullmove_number"`
	MoveHistory    []HistoryEntry `json:"move_history"`
}

// SquareName returns the algebraic name of a square index ("e4").
func SquareName(idx int) string {
	if idx < 0 || idx > 63 {
		return ""
	}
	return string([]byte{byte('a' + idx%8), byte('1' + idx/8)})
}

// SquareIndex parses an algebraic square name. It returns -1 when invalid.
func SquareIndex(name string) int {
	if len(name) != 2 {
		return -1
	}
	f, r := int(name[0]-'a'), int(name[1]-'1')
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return -1
	}
	return r*8 + f
}

// GameResult is the outcome of a position.
type GameResult string

const (
	ResultInProgress GameResult = "in-progress"
	ResultCheckmate  GameResult = "checkmate"
	ResultStalemate  GameResult = "stalemate"
	ResultDraw       GameResult = "draw"
)

// Terminal reports whether the game has ended.
func (r GameResult) Terminal() bool { return r != "" && r != ResultInProgress }

// GameState is the read side of the rules engine.
type GameState interface {
	Board() BoardSnapshot
	LegalMoves() []string
	InCheck() bool
	Result() GameResult
	Position() string
	Turn() Side
}

// Game is the rules engine boundary. It alone decides legality: Apply
// returns ErrIllegalMove or ErrGameOver without changing state when the move
// is rejected.
type Game interface {
	GameState
	Apply(move string) error
	Undo() error
	Reset()
}
