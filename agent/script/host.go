package script

import (
	"github.com/dop251/goja"

	"github.com/hupe1980/gambit/core"
)

// callState records the first capability error raised during a call so it
// wins over the script exception it causes.
type callState struct {
	err error
}

// snapshot is the game state captured when a call starts. Scripts never see
// the live session, only these values.
type snapshot struct {
	board    map[string]any
	moves    []any
	inCheck  bool
	result   string
	position string
	err      error
}

func takeSnapshot(caps core.Capabilities) *snapshot {
	if caps == nil {
		return &snapshot{err: core.ErrNoSessionBound}
	}
	board, err := caps.Board()
	if err != nil {
		return &snapshot{err: err}
	}
	moves, err := caps.LegalMoves()
	if err != nil {
		return &snapshot{err: err}
	}
	inCheck, err := caps.InCheck()
	if err != nil {
		return &snapshot{err: err}
	}
	result, err := caps.GameResult()
	if err != nil {
		return &snapshot{err: err}
	}
	position, err := caps.Position()
	if err != nil {
		return &snapshot{err: err}
	}
	list := make([]any, len(moves))
	for i, m := range moves {
		list[i] = m
	}
	return &snapshot{
		board:    boardValue(board),
		moves:    list,
		inCheck:  inCheck,
		result:   string(result),
		position: position,
	}
}

func boardValue(b core.BoardSnapshot) map[string]any {
	squares := make([]any, len(b.Squares))
	for i, p := range b.Squares {
		if p == nil {
			squares[i] = nil
			continue
		}
		squares[i] = map[string]any{"type": string(p.Type), "color": string(p.Color)}
	}
	var enPassant any
	if b.EnPassant != nil {
		enPassant = *b.EnPassant
	}
	history := make([]any, len(b.MoveHistory))
	for i, h := range b.MoveHistory {
		history[i] = map[string]any{"move": h.Move, "fen": h.FEN}
	}
	return map[string]any{
		"squares": squares,
		"turn":    string(b.Turn),
		"castlingRights": map[string]any{
			"whiteKingside":  b.Castling.WhiteKingside,
			"whiteQueenside": b.Castling.WhiteQueenside,
			"blackKingside":  b.Castling.BlackKingside,
			"blackQueenside": b.Castling.BlackQueenside,
		},
		"enPassant":      enPassant,
		"halfmoveClock":  b.HalfmoveClock,
		"fullmoveNumber": b.FullmoveNumber,
		"moveHistory":    history,
	}
}

// newHostObject builds the "host" global for one call. Capability errors
// are thrown into the script and recorded in st.
func newHostObject(vm *goja.Runtime, caps core.Capabilities, st *callState) *goja.Object {
	snap := takeSnapshot(caps)
	fail := func(err error) {
		if st.err == nil {
			st.err = err
		}
		panic(vm.NewGoError(err))
	}
	guard := func() {
		if snap.err != nil {
			fail(snap.err)
		}
	}

	obj := vm.NewObject()
	_ = obj.Set("getBoard", func() goja.Value {
		guard()
		return vm.ToValue(snap.board)
	})
	_ = obj.Set("getLegalMoves", func() goja.Value {
		guard()
		return vm.NewArray(snap.moves...)
	})
	_ = obj.Set("isInCheck", func() bool {
		guard()
		return snap.inCheck
	})
	_ = obj.Set("getGameResult", func() string {
		guard()
		return snap.result
	})
	_ = obj.Set("getPositionString", func() string {
		guard()
		return snap.position
	})
	_ = obj.Set("log", func(msg goja.Value) {
		if caps == nil {
			fail(core.ErrNoSessionBound)
		}
		if err := caps.Log(msg.String()); err != nil {
			fail(err)
		}
	})
	return obj
}
