package rules

import "github.com/notnil/chess"

var (
	knightSteps = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// attacked reports whether the king of color c is attacked on the given board.
func attacked(board map[chess.Square]chess.Piece, c chess.Color) bool {
	kf, kr := -1, -1
	for sq, p := range board {
		if p.Type() == chess.King && p.Color() == c {
			kf, kr = int(sq)%8, int(sq)/8
			break
		}
	}
	if kf < 0 {
		return false
	}
	enemy := c.Other()
	at := func(f, r int) (chess.Piece, bool) {
		if f < 0 || f > 7 || r < 0 || r > 7 {
			return chess.NoPiece, false
		}
		p, ok := board[chess.Square(r*8+f)]
		return p, ok && p != chess.NoPiece
	}
	is := func(p chess.Piece, types ...chess.PieceType) bool {
		if p.Color() != enemy {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	// pawns attack diagonally forward, so look backwards from the king
	dir := 1
	if c == chess.Black {
		dir = -1
	}
	for _, df := range []int{-1, 1} {
		if p, ok := at(kf+df, kr+dir); ok && is(p, chess.Pawn) {
			return true
		}
	}
	for _, s := range knightSteps {
		if p, ok := at(kf+s[0], kr+s[1]); ok && is(p, chess.Knight) {
			return true
		}
	}
	for _, s := range kingSteps {
		if p, ok := at(kf+s[0], kr+s[1]); ok && is(p, chess.King) {
			return true
		}
	}
	slide := func(rays [][2]int, types ...chess.PieceType) bool {
		for _, ray := range rays {
			for f, r := kf+ray[0], kr+ray[1]; f >= 0 && f < 8 && r >= 0 && r < 8; f, r = f+ray[0], r+ray[1] {
				if p, ok := at(f, r); ok {
					if is(p, types...) {
						return true
					}
					break
				}
			}
		}
		return false
	}
	return slide(rookRays, chess.Rook, chess.Queen) || slide(bishopRays, chess.Bishop, chess.Queen)
}
