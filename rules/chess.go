package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/notnil/chess"

	"github.com/hupe1980/gambit/core"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Game is a core.Game backed by notnil/chess. It is not safe for concurrent
// use; core.Session serializes access.
type Game struct {
	startFEN string
	game     *chess.Game
	history  []core.HistoryEntry
}

var _ core.Game = (*Game)(nil)

// New creates a game at the standard starting position.
func New() *Game {
	g, _ := FromFEN(StartFEN)
	return g
}

// FromFEN creates a game starting at the given position.
func FromFEN(fen string) (*Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		fen = StartFEN
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	return &Game{startFEN: fen, game: chess.NewGame(opt)}, nil
}

// StartPosition returns the FEN the game was created from.
func (g *Game) StartPosition() string { return g.startFEN }

// Position returns the current position as FEN.
func (g *Game) Position() string { return g.game.Position().String() }

// Turn returns the side to move.
func (g *Game) Turn() core.Side { return side(g.game.Position().Turn()) }

// LegalMoves returns all legal moves in UCI notation, sorted.
func (g *Game) LegalMoves() []string {
	if g.Result().Terminal() {
		return []string{}
	}
	pos := g.game.Position()
	valid := g.game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, m := range valid {
		out = append(out, chess.UCINotation{}.Encode(pos, m))
	}
	sort.Strings(out)
	return out
}

// InCheck reports whether the side to move is in check.
func (g *Game) InCheck() bool {
	pos := g.game.Position()
	return attacked(pos.Board().SquareMap(), pos.Turn())
}

// Result maps the library outcome onto core.GameResult.
func (g *Game) Result() core.GameResult {
	switch g.game.Method() {
	case chess.Checkmate:
		return core.ResultCheckmate
	case chess.Stalemate:
		return core.ResultStalemate
	}
	if g.game.Outcome() == chess.Draw {
		return core.ResultDraw
	}
	if half, _ := clocks(g.Position()); half >= 100 {
		return core.ResultDraw
	}
	if len(g.game.ValidMoves()) == 0 {
		if g.InCheck() {
			return core.ResultCheckmate
		}
		return core.ResultStalemate
	}
	return core.ResultInProgress
}

// Board returns a snapshot of the current position.
func (g *Game) Board() core.BoardSnapshot {
	pos := g.game.Position()
	var snap core.BoardSnapshot
	for sq, p := range pos.Board().SquareMap() {
		if pt := pieceType(p.Type()); pt != "" {
			snap.Squares[int(sq)] = &core.Piece{Type: pt, Color: side(p.Color())}
		}
	}
	snap.Turn = side(pos.Turn())
	cr := pos.CastleRights()
	snap.Castling = core.CastlingRights{
		WhiteKingside:  cr.CanCastle(chess.White, chess.KingSide),
		WhiteQueenside: cr.CanCastle(chess.White, chess.QueenSide),
		BlackKingside:  cr.CanCastle(chess.Black, chess.KingSide),
		BlackQueenside: cr.CanCastle(chess.Black, chess.QueenSide),
	}
	if ep := pos.EnPassantSquare(); ep != chess.NoSquare {
		idx := int(ep)
		snap.EnPassant = &idx
	}
	snap.HalfmoveClock, snap.FullmoveNumber = clocks(pos.String())
	snap.MoveHistory = make([]core.HistoryEntry, len(g.history))
	copy(snap.MoveHistory, g.history)
	return snap
}

// Apply plays a UCI move. Rejected moves leave the game unchanged.
func (g *Game) Apply(move string) error {
	if g.Result().Terminal() {
		return core.ErrGameOver
	}
	if !wellFormed(move) {
		return fmt.Errorf("%w: malformed move %q", core.ErrIllegalMove, move)
	}
	m, err := chess.UCINotation{}.Decode(g.game.Position(), move)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrIllegalMove, move, err)
	}
	if err := g.game.Move(m); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrIllegalMove, move, err)
	}
	g.history = append(g.history, core.HistoryEntry{Move: move, FEN: g.Position()})
	return nil
}

// Undo takes back the last move by replaying the history from the start position.
func (g *Game) Undo() error {
	if len(g.history) == 0 {
		return core.ErrNothingToUndo
	}
	moves := g.history[:len(g.history)-1]
	replay, err := FromFEN(g.startFEN)
	if err != nil {
		return err
	}
	for _, h := range moves {
		if err := replay.Apply(h.Move); err != nil {
			return fmt.Errorf("replay %s: %w", h.Move, err)
		}
	}
	*g = *replay
	return nil
}

// Reset returns to the start position.
func (g *Game) Reset() {
	opt, _ := chess.FEN(g.startFEN)
	g.game = chess.NewGame(opt)
	g.history = nil
}

func wellFormed(move string) bool {
	if len(move) != 4 && len(move) != 5 {
		return false
	}
	if core.SquareIndex(move[0:2]) < 0 || core.SquareIndex(move[2:4]) < 0 {
		return false
	}
	return len(move) == 4 || strings.ContainsRune("qrbn", rune(move[4]))
}

// clocks extracts the halfmove clock and fullmove number from a FEN.
func clocks(fen string) (int, int) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0, 1
	}
	half, _ := strconv.Atoi(fields[4])
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		full = 1
	}
	return half, full
}

func side(c chess.Color) core.Side {
	switch c {
	case chess.White:
		return core.SideWhite
	case chess.Black:
		return core.SideBlack
	default:
		return core.SideNone
	}
}

func pieceType(t chess.PieceType) core.PieceType {
	switch t {
	case chess.King:
		return core.King
	case chess.Queen:
		return core.Queen
	case chess.Rook:
		return core.Rook
	case chess.Bishop:
		return core.Bishop
	case chess.Knight:
		return core.Knight
	case chess.Pawn:
		return core.Pawn
	default:
		return ""
	}
}
