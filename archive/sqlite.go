// Package archive keeps finished games in a SQLite database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/gambit/core"
)

// ErrNotFound is returned by Get for unknown game ids.
var ErrNotFound = errors.New("archive: game not found")

// Game is one archived match.
type Game struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	Result        core.GameResult   `json:"result"`
	Winner        core.Side         `json:"winner,omitempty"`
	Plies         int               `json:"plies"`
	FinalPosition string            `json:"final_position"`
	White         core.Seat         `json:"white"`
	Black         core.Seat         `json:"black"`
	Moves         []string          `json:"moves"`
	History       []core.MoveRecord `json:"history,omitempty"`
	ArchivedAt    time.Time         `json:"archived_at"`
}

// SQLiteStore writes games through a single connection.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the archive at path. ":memory:" keeps the
// archive in memory for the lifetime of the store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			result TEXT NOT NULL,
			winner TEXT NOT NULL,
			plies INTEGER NOT NULL,
			final_fen TEXT NOT NULL,
			white_mode TEXT NOT NULL,
			white_agent TEXT NOT NULL,
			black_mode TEXT NOT NULL,
			black_agent TEXT NOT NULL,
			moves TEXT NOT NULL,
			history_json TEXT NOT NULL,
			archived_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS games_archived_at ON games(archived_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveGame stores a finished game. The engine calls it once per game over.
func (s *SQLiteStore) ArchiveGame(ctx context.Context, snap core.SessionSnapshot, cfg core.MatchConfig) error {
	hist, err := json.Marshal(snap.History)
	if err != nil {
		return fmt.Errorf("archive: encode history: %w", err)
	}
	moves := make([]string, len(snap.History))
	for i, rec := range snap.History {
		moves[i] = rec.Move
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games(id,session_id,result,winner,plies,final_fen,white_mode,white_agent,black_mode,black_agent,moves,history_json,archived_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		core.NewID(), snap.ID, string(snap.Result), string(winner(snap)), len(snap.History), snap.Position,
		string(cfg.White.Mode), cfg.White.AgentID, string(cfg.Black.Mode), cfg.Black.AgentID,
		strings.Join(moves, " "), string(hist), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("archive: insert game: %w", err)
	}
	return nil
}

// List returns the most recent games first without their full history.
// A limit of zero or less returns every game.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Game, error) {
	q := `SELECT id,session_id,result,winner,plies,final_fen,white_mode,white_agent,black_mode,black_agent,moves,archived_at
	      FROM games ORDER BY archived_at DESC, id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list games: %w", err)
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		var (
			g          Game
			moves, at  string
			result, wn string
			wm, bm     string
		)
		if err := rows.Scan(&g.ID, &g.SessionID, &result, &wn, &g.Plies, &g.FinalPosition,
			&wm, &g.White.AgentID, &bm, &g.Black.AgentID, &moves, &at); err != nil {
			return nil, err
		}
		g.Result, g.Winner = core.GameResult(result), core.Side(wn)
		g.White.Mode, g.Black.Mode = core.SeatMode(wm), core.SeatMode(bm)
		g.Moves = strings.Fields(moves)
		g.ArchivedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Get returns one game including its move history.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Game, error) {
	var (
		g          Game
		moves, at  string
		hist       string
		result, wn string
		wm, bm     string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id,session_id,result,winner,plies,final_fen,white_mode,white_agent,black_mode,black_agent,moves,history_json,archived_at
		 FROM games WHERE id=?`, id)
	err := row.Scan(&g.ID, &g.SessionID, &result, &wn, &g.Plies, &g.FinalPosition,
		&wm, &g.White.AgentID, &bm, &g.Black.AgentID, &moves, &hist, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Game{}, err
	}
	g.Result, g.Winner = core.GameResult(result), core.Side(wn)
	g.White.Mode, g.Black.Mode = core.SeatMode(wm), core.SeatMode(bm)
	g.Moves = strings.Fields(moves)
	g.ArchivedAt, _ = time.Parse(time.RFC3339Nano, at)
	if err := json.Unmarshal([]byte(hist), &g.History); err != nil {
		return Game{}, fmt.Errorf("archive: decode history: %w", err)
	}
	return g, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// winner is the side that delivered mate; draws and stalemates have none.
func winner(snap core.SessionSnapshot) core.Side {
	if snap.Result != core.ResultCheckmate || len(snap.History) == 0 {
		return core.SideNone
	}
	return snap.History[len(snap.History)-1].Side
}
