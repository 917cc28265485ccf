package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"party-arena/internal/game"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	match_id     TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL,
	mode         TEXT NOT NULL,
	winner_id    TEXT,
	winner_name  TEXT,
	winner_team  TEXT,
	player_count INTEGER NOT NULL,
	duration     REAL NOT NULL,
	draw         INTEGER NOT NULL,
	reason       TEXT,
	ended_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_ended_at ON matches (ended_at);
CREATE TABLE IF NOT EXISTS match_players (
	match_id    TEXT NOT NULL REFERENCES matches (match_id),
	player_id   TEXT NOT NULL,
	name        TEXT,
	team        TEXT,
	score       INTEGER NOT NULL,
	total_score INTEGER NOT NULL,
	alive       INTEGER NOT NULL,
	cause       TEXT,
	placement   INTEGER NOT NULL,
	is_bot      INTEGER NOT NULL,
	PRIMARY KEY (match_id, player_id)
);
`

// SQLiteStore keeps match history in a local SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database and its tables
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; SQLite serialises writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	log.Printf("💾 SQLite match history at %s", path)
	return &SQLiteStore{db: db}, nil
}

// Save writes the match and its result rows in one transaction. Saving the same
// match twice is a no-op.
func (s *SQLiteStore) Save(ctx context.Context, m game.MatchSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO matches (match_id, room_id, mode, winner_id, winner_name, winner_team,
		player_count, duration, draw, reason, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(match_id) DO NOTHING`,
		m.MatchID, m.RoomID, m.Mode, m.WinnerID, m.WinnerName, m.WinnerTeam,
		m.PlayerCount, m.DurationSeconds, m.Draw, m.Reason, m.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.MatchID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO match_players (match_id, player_id, name, team, score, total_score,
		alive, cause, placement, is_bot)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(match_id, player_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare results: %w", err)
	}
	defer stmt.Close()

	for _, r := range m.Results {
		if _, err := stmt.ExecContext(ctx, m.MatchID, r.PlayerID, r.Name, r.Team, r.Score,
			r.TotalScore, r.Alive, r.Cause, r.Placement, r.IsBot); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", m.MatchID, r.PlayerID, err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest matches, newest first, with their result rows
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]game.MatchSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT match_id, room_id, mode, winner_id, winner_name, winner_team,
		player_count, duration, draw, reason, ended_at
	FROM matches ORDER BY ended_at DESC, match_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []game.MatchSummary
	for rows.Next() {
		var m game.MatchSummary
		if err := rows.Scan(&m.MatchID, &m.RoomID, &m.Mode, &m.WinnerID, &m.WinnerName, &m.WinnerTeam,
			&m.PlayerCount, &m.DurationSeconds, &m.Draw, &m.Reason, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		results, err := s.results(ctx, out[i].MatchID)
		if err != nil {
			return nil, err
		}
		out[i].Results = results
	}
	return out, nil
}

func (s *SQLiteStore) results(ctx context.Context, matchID string) ([]game.PlayerResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT player_id, name, team, score, total_score, alive, cause, placement, is_bot
	FROM match_players WHERE match_id = ? ORDER BY placement`, matchID)
	if err != nil {
		return nil, fmt.Errorf("query results %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []game.PlayerResult
	for rows.Next() {
		var r game.PlayerResult
		if err := rows.Scan(&r.PlayerID, &r.Name, &r.Team, &r.Score, &r.TotalScore,
			&r.Alive, &r.Cause, &r.Placement, &r.IsBot); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
