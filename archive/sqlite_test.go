package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/testutil"
)

const foolsMateFEN = "rnbqkbnr/pppppppp/8/8/8/5P2/PPPPP1PP/RNBQKBNR b KQkq - 0 1"

func TestSQLiteStore_ArchiveAndRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "archive.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	sess := testutil.NewSessionBuilder("s1").FEN(foolsMateFEN).Moves("e7e5", "g2g4", "d8h4").Build()
	cfg := core.MatchConfig{
		White: core.Seat{Mode: core.SeatAuto, AgentID: "w"},
		Black: core.Seat{Mode: core.SeatAuto, AgentID: "b"},
	}
	if err := s.ArchiveGame(ctx, sess.Snapshot(), cfg); err != nil {
		t.Fatalf("ArchiveGame: %v", err)
	}

	games, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected 1 game, got %d", len(games))
	}
	g := games[0]
	if g.SessionID != "s1" || g.Result != core.ResultCheckmate || g.Plies != 3 {
		t.Fatalf("row mismatch: %+v", g)
	}
	if g.Winner != core.SideBlack {
		t.Fatalf("winner = %q, want black", g.Winner)
	}
	if g.White.AgentID != "w" || g.Black.Mode != core.SeatAuto {
		t.Fatalf("seats mismatch: %+v %+v", g.White, g.Black)
	}
	if len(g.Moves) != 3 || g.Moves[2] != "d8h4" {
		t.Fatalf("moves = %v", g.Moves)
	}
	if g.History != nil {
		t.Fatalf("List should not load history")
	}

	full, err := s.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(full.History) != 3 || full.History[2].Position != full.FinalPosition {
		t.Fatalf("history mismatch: %+v", full.History)
	}
	if full.ArchivedAt.IsZero() {
		t.Fatalf("archived_at not parsed")
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sess := testutil.NewSessionBuilder("s1").Moves("e2e4").Build()
	for i := 0; i < 3; i++ {
		if err := s.ArchiveGame(ctx, sess.Snapshot(), core.DefaultMatchConfig); err != nil {
			t.Fatalf("ArchiveGame: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 games, got %d", len(all))
	}
	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 games, got %d", len(limited))
	}
	if all[0].Winner != core.SideNone {
		t.Fatalf("unfinished game has winner %q", all[0].Winner)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	_, err = s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}
