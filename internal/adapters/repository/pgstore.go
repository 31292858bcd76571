package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/metrics"
)

const (
	postgresBackend   = "postgres"
	pgUniqueViolation = "23505"
)

//go:embed migrations/postgres/schema.sql
var pgSchema embed.FS

// PostgresStore persists players and match history in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts storeOptions
}

// OpenPostgres connects to dsn and applies the embedded schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, opts: o}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlBytes, err := pgSchema.ReadFile("migrations/postgres/schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	defer observe(postgresBackend, "create_player", time.Now())

	p, err := preparePlayer(p, s.opts.now())
	if err != nil {
		return model.Player{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO players (id, first_name, last_name, rating, deviation, volatility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.FirstName, p.LastName,
		p.Rating.Rating, p.Rating.Deviation, p.Rating.Volatility,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return model.Player{}, fmt.Errorf("%w: player %s", ErrAlreadyExists, p.ID)
		}
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}
	if n, err := s.Count(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
	return p, nil
}

const pgPlayerColumns = `id, first_name, last_name, rating, deviation, volatility, created_at, updated_at`

func scanPgPlayer(row pgx.Row) (model.Player, error) {
	var p model.Player
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName,
		&p.Rating.Rating, &p.Rating.Deviation, &p.Rating.Volatility, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, err
}

func (s *PostgresStore) Player(ctx context.Context, playerID string) (model.Player, error) {
	defer observe(postgresBackend, "player", time.Now())
	p, err := scanPgPlayer(s.pool.QueryRow(ctx,
		`SELECT `+pgPlayerColumns+` FROM players WHERE id = $1`, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Player{}, ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (rating.State, error) {
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return rating.State{}, err
	}
	return p.Rating, nil
}

func (s *PostgresStore) Put(ctx context.Context, playerID string, st rating.State) error {
	defer observe(postgresBackend, "put", time.Now())
	if err := checkState(st); err != nil {
		return err
	}
	return updatePgRating(ctx, s.pool, playerID, st, s.opts.now())
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updatePgRating(ctx context.Context, db pgExecer, playerID string, st rating.State, now time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE players SET rating = $1, deviation = $2, volatility = $3, updated_at = $4
		WHERE id = $5`,
		st.Rating, st.Deviation, st.Volatility, now, playerID)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, playerID)
	}
	return nil
}

func (s *PostgresStore) RecordMatch(ctx context.Context, rec model.MatchRecord) error {
	defer observe(postgresBackend, "record_match", time.Now())
	if err := checkRecord(rec); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO matches (match_id, score1, score2, winner_side, played_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.MatchID, rec.Score1, rec.Score2, rec.WinnerSide, rec.PlayedAt); err != nil {
			if isPgUniqueViolation(err) {
				return fmt.Errorf("%w: match %s", ErrAlreadyExists, rec.MatchID)
			}
			return fmt.Errorf("insert match: %w", err)
		}

		now := s.opts.now()
		batch := &pgx.Batch{}
		for i, p := range rec.Participants {
			if err := updatePgRating(ctx, tx, p.PlayerID, p.After, now); err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO match_participants (
				  match_id, position, player_id, side, won,
				  before_rating, before_deviation, before_volatility,
				  after_rating, after_deviation, after_volatility,
				  rating_change, clamped
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				rec.MatchID, i, p.PlayerID, p.Side, p.Won,
				p.Before.Rating, p.Before.Deviation, p.Before.Volatility,
				p.After.Rating, p.After.Deviation, p.After.Volatility,
				p.Change, p.Clamped)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	defer observe(postgresBackend, "rank", time.Now())
	p, err := s.Player(ctx, playerID)
	if err != nil {
		return types.Entry{}, err
	}
	var above int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM players WHERE rating > $1`, p.Rating.Rating).Scan(&above); err != nil {
		return types.Entry{}, fmt.Errorf("rank: %w", err)
	}
	return entryFor(p, above+1), nil
}

func (s *PostgresStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	defer observe(postgresBackend, "top_n", time.Now())
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPlayerColumns+` FROM players ORDER BY rating DESC, id ASC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("top n: %w", err)
	}
	defer rows.Close()

	out := make([]types.Entry, 0, n)
	for rows.Next() {
		p, err := scanPgPlayer(rows)
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

func (s *PostgresStore) PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error) {
	defer observe(postgresBackend, "player_matches", time.Now())
	if _, err := s.Player(ctx, playerID); err != nil {
		return nil, err
	}
	q := `SELECT m.match_id, m.score1, m.score2, m.winner_side, m.played_at
		FROM matches m
		WHERE EXISTS (SELECT 1 FROM match_participants mp WHERE mp.match_id = m.match_id AND mp.player_id = $1)
		ORDER BY m.seq DESC`
	args := []any{playerID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryRecords(ctx, q, args...)
}

func (s *PostgresStore) Matches(ctx context.Context) ([]model.MatchRecord, error) {
	defer observe(postgresBackend, "matches", time.Now())
	return s.queryRecords(ctx, `SELECT match_id, score1, score2, winner_side, played_at
		FROM matches ORDER BY seq ASC`)
}

func (s *PostgresStore) queryRecords(ctx context.Context, q string, args ...any) ([]model.MatchRecord, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MatchRecord, error) {
		var rec model.MatchRecord
		err := row.Scan(&rec.MatchID, &rec.Score1, &rec.Score2, &rec.WinnerSide, &rec.PlayedAt)
		rec.PlayedAt = rec.PlayedAt.UTC()
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	byID := make(map[string]int, len(out))
	for i, rec := range out {
		ids[i] = rec.MatchID
		byID[rec.MatchID] = i
	}
	prow, err := s.pool.Query(ctx, `
		SELECT match_id, player_id, side, won,
		       before_rating, before_deviation, before_volatility,
		       after_rating, after_deviation, after_volatility,
		       rating_change, clamped
		FROM match_participants WHERE match_id = ANY($1) ORDER BY match_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var matchID string
		var p model.Participant
		if err := prow.Scan(&matchID, &p.PlayerID, &p.Side, &p.Won,
			&p.Before.Rating, &p.Before.Deviation, &p.Before.Volatility,
			&p.After.Rating, &p.After.Deviation, &p.After.Volatility,
			&p.Change, &p.Clamped); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		i := byID[matchID]
		out[i].Participants = append(out[i].Participants, p)
	}
	return out, prow.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(1) FROM players`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
