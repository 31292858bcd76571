package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteBackend = "sqlite"

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore persists players and match history in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	opts storeOptions
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dsn := filepath.Clean(dbPath) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite would otherwise surface SQLITE_BUSY on
	// concurrent transactions from the worker pool.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(ctx, db, sqliteMigrations, "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, opts: o}, nil
}

// applySQLiteMigrations runs each embedded .sql file at most once, in name order.
func applySQLiteMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var applied int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	if i := strings.Index(content, up); i >= 0 {
		content = content[i+len(up):]
	}
	if i := strings.Index(content, down); i >= 0 {
		content = content[:i]
	}
	return content
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	defer observe(sqliteBackend, "create_player", time.Now())

	p, err := preparePlayer(p, s.opts.now())
	if err != nil {
		return model.Player{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO players (id, first_name, last_name, rating, deviation, volatility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FirstName, p.LastName,
		p.Rating.Rating, p.Rating.Deviation, p.Rating.Volatility,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return model.Player{}, fmt.Errorf("%w: player %s", ErrAlreadyExists, p.ID)
		}
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}
	if n, err := s.Count(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
	// Round-trip timestamps to storage precision.
	p.CreatedAt, p.UpdatedAt = fromMillis(toMillis(p.CreatedAt)), fromMillis(toMillis(p.UpdatedAt))
	return p, nil
}

const sqlitePlayerColumns = `id, first_name, last_name, rating, deviation, volatility, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePlayer(row rowScanner) (model.Player, error) {
	var p model.Player
	var created, updated int64
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName,
		&p.Rating.Rating, &p.Rating.Deviation, &p.Rating.Volatility, &created, &updated); err != nil {
		return model.Player{}, err
	}
	p.CreatedAt, p.UpdatedAt = fromMillis(created), fromMillis(updated)
	return p, nil
}

func (s *SQLiteStore) Player(ctx context.Context, playerID string) (model.Player, error) {
	defer observe(sqliteBackend, "player", time.Now())
	p, err := scanSQLitePlayer(s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePlayerColumns+` FROM players WHERE id = ?`, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Get(ctx context.Context, playerID string) (rating.State, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return rating.State{}, err
	}
	return p.Rating, nil
}

func (s *SQLiteStore) Put(ctx context.Context, playerID string, st rating.State) error {
	defer observe(sqliteBackend, "put", time.Now())
	if err := checkState(st); err != nil {
		return err
	}
	return updateSQLiteRating(ctx, s.db, playerID, st, s.opts.now())
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSQLiteRating(ctx context.Context, db sqlExecer, playerID string, st rating.State, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE players SET rating = ?, deviation = ?, volatility = ?, updated_at = ?
		WHERE id = ?`,
		st.Rating, st.Deviation, st.Volatility, toMillis(now), playerID)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, playerID)
	}
	return nil
}

func (s *SQLiteStore) RecordMatch(ctx context.Context, rec model.MatchRecord) (err error) {
	defer observe(sqliteBackend, "record_match", time.Now())
	if err := checkRecord(rec); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record match: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO matches (match_id, score1, score2, winner_side, played_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.MatchID, rec.Score1, rec.Score2, rec.WinnerSide, toMillis(rec.PlayedAt)); err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("%w: match %s", ErrAlreadyExists, rec.MatchID)
		}
		return fmt.Errorf("insert match: %w", err)
	}

	now := s.opts.now()
	for i, p := range rec.Participants {
		if err = updateSQLiteRating(ctx, tx, p.PlayerID, p.After, now); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO match_participants (
			  match_id, position, player_id, side, won,
			  before_rating, before_deviation, before_volatility,
			  after_rating, after_deviation, after_volatility,
			  rating_change, clamped
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.MatchID, i, p.PlayerID, p.Side, p.Won,
			p.Before.Rating, p.Before.Deviation, p.Before.Volatility,
			p.After.Rating, p.After.Deviation, p.After.Volatility,
			p.Change, p.Clamped); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record match: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	defer observe(sqliteBackend, "rank", time.Now())
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return types.Entry{}, err
	}
	var above int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM players WHERE rating > ?`, p.Rating.Rating).Scan(&above); err != nil {
		return types.Entry{}, fmt.Errorf("rank: %w", err)
	}
	return entryFor(p, above+1), nil
}

func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	defer observe(sqliteBackend, "top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePlayerColumns+` FROM players ORDER BY rating DESC, id ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top n: %w", err)
	}
	defer rows.Close()

	out := make([]types.Entry, 0, n)
	for rows.Next() {
		p, err := scanSQLitePlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, entryFor(p, 0))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	assignRanks(out)
	return out, nil
}

func (s *SQLiteStore) PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error) {
	defer observe(sqliteBackend, "player_matches", time.Now())
	if _, err := s.Player(ctx, playerID); err != nil {
		return nil, err
	}
	q := `SELECT m.match_id, m.score1, m.score2, m.winner_side, m.played_at
		FROM matches m
		WHERE EXISTS (SELECT 1 FROM match_participants mp WHERE mp.match_id = m.match_id AND mp.player_id = ?)
		ORDER BY m.seq DESC`
	args := []any{playerID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, q, args...)
}

func (s *SQLiteStore) Matches(ctx context.Context) ([]model.MatchRecord, error) {
	defer observe(sqliteBackend, "matches", time.Now())
	return s.queryRecords(ctx, `SELECT match_id, score1, score2, winner_side, played_at
		FROM matches ORDER BY seq ASC`)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, q string, args ...any) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	var out []model.MatchRecord
	for rows.Next() {
		var rec model.MatchRecord
		var played int64
		if err := rows.Scan(&rec.MatchID, &rec.Score1, &rec.Score2, &rec.WinnerSide, &played); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rec.PlayedAt = fromMillis(played)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	_ = rows.Close()

	for i := range out {
		parts, err := s.participants(ctx, out[i].MatchID)
		if err != nil {
			return nil, err
		}
		out[i].Participants = parts
	}
	return out, nil
}

func (s *SQLiteStore) participants(ctx context.Context, matchID string) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, side, won,
		       before_rating, before_deviation, before_volatility,
		       after_rating, after_deviation, after_volatility,
		       rating_change, clamped
		FROM match_participants WHERE match_id = ? ORDER BY position`, matchID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.PlayerID, &p.Side, &p.Won,
			&p.Before.Rating, &p.Before.Deviation, &p.Before.Volatility,
			&p.After.Rating, &p.After.Deviation, &p.After.Volatility,
			&p.Change, &p.Clamped); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

var _ Store = (*SQLiteStore)(nil)
