// Package service composes the store, rating engine, dedupe cache, match
// queue and worker pool behind the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/shuttle/internal/adapters/export"
	"github.com/okian/shuttle/internal/adapters/mq/queue"
	"github.com/okian/shuttle/internal/adapters/mq/worker"
	"github.com/okian/shuttle/internal/adapters/repository"
	"github.com/okian/shuttle/internal/domain/dedupe"
	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/logger"
	"github.com/okian/shuttle/pkg/metrics"
)

const (
	defaultQueueSize  = 10000
	defaultDedupeSize = 100000
	defaultMaxScore   = 30
	maxSideSize       = 2
	stopTimeout       = 30 * time.Second
)

// SubmitResult reports what happened to a submitted match.
type SubmitResult struct {
	MatchID   string `json:"match_id"`
	Duplicate bool   `json:"duplicate"`
}

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	engine  *rating.Engine
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	locks   *worker.StripedLock

	workerCount     int
	queueSize       int
	dedupeSize      int
	maxScore        int
	tau             float64
	maxRatingChange float64

	started bool
	cancel  context.CancelFunc
	pending atomic.Int64

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. It fails when the rating parameters are invalid.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		maxScore:        defaultMaxScore,
		tau:             rating.DefaultTau,
		maxRatingChange: rating.DefaultMaxRatingChange,
		now:             func() time.Time { return time.Now().UTC() },
		locks:           worker.NewStripedLock(0),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine, err := rating.NewEngine(
		rating.WithTau(s.tau),
		rating.WithMaxRatingChange(s.maxRatingChange),
	)
	if err != nil {
		return nil, fmt.Errorf("build rating engine: %w", err)
	}
	s.engine = engine
	if s.store == nil {
		s.store = repository.NewTreapStore()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s, nil
}

// Start creates the match queue and starts the worker pool. Workers outlive
// ctx cancellation; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(runCtx)
	s.cancel = cancel
	s.started = true

	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("tau", s.engine.Tau()),
		logger.Float64("maxRatingChange", s.engine.MaxRatingChange()),
	)
	return nil
}

// Stop drains queued matches and stops the workers. The store stays open
// so the service can be started again.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping rating service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// Close stops the service and closes the store.
func (s *Service) Close() error {
	s.Stop()
	return s.store.Close()
}

// RegisterPlayer creates a player. An empty ID gets a generated one.
func (s *Service) RegisterPlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	created, err := s.store.CreatePlayer(ctx, p)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPlayer) || errors.Is(err, repository.ErrInvalidRating) {
			return model.Player{}, fmt.Errorf("%w: %w", ErrInvalidPlayer, err)
		}
		return model.Player{}, err
	}
	s.logger.Debug(ctx, "player registered", logger.String("playerID", created.ID))
	return created, nil
}

// Player returns a registered player.
func (s *Service) Player(ctx context.Context, playerID string) (model.Player, error) {
	return s.store.Player(ctx, playerID)
}

// SubmitMatch validates a match and queues it for rating. A match ID seen
// before is acknowledged as a duplicate and not queued again.
func (s *Service) SubmitMatch(ctx context.Context, m model.Match) (SubmitResult, error) {
	m = s.normalize(m)
	if err := s.validate(ctx, m); err != nil {
		metrics.RecordMatchFailed("invalid")
		return SubmitResult{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, m.MatchID) {
		metrics.RecordMatchDuplicate()
		s.logger.Debug(ctx, "duplicate match", logger.String("matchID", m.MatchID))
		return SubmitResult{MatchID: m.MatchID, Duplicate: true}, nil
	}

	s.pending.Add(1)
	if err := s.queue.Enqueue(ctx, m); err != nil {
		s.pending.Add(-1)
		// Let the client retry the same ID.
		s.deduper.Unrecord(ctx, m.MatchID)
		if errors.Is(err, queue.ErrFull) {
			return SubmitResult{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return SubmitResult{}, fmt.Errorf("enqueue match %s: %w", m.MatchID, err)
	}
	metrics.RecordMatchAccepted()
	return SubmitResult{MatchID: m.MatchID}, nil
}

// ProcessMatch implements worker.Processor. When rating fails for a reason
// that may not repeat, such as a store error, the match ID is forgotten so
// the client can submit it again.
func (s *Service) ProcessMatch(ctx context.Context, m model.Match) error {
	defer s.pending.Add(-1)
	_, err := s.ApplyMatch(ctx, m)
	if err != nil && !permanent(err) {
		s.deduper.Unrecord(ctx, strings.TrimSpace(m.MatchID))
		s.logger.Warn(ctx, "match not rated, accepting resubmission",
			logger.String("matchID", m.MatchID),
			logger.Error(err),
		)
	}
	return err
}

// permanent reports whether resubmitting the same match would fail the same way.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidMatch) ||
		errors.Is(err, ErrUnknownPlayer) ||
		errors.Is(err, rating.ErrInvalidMatchComposition) ||
		errors.Is(err, rating.ErrNonFiniteResult) ||
		errors.Is(err, rating.ErrConfiguration) ||
		errors.Is(err, repository.ErrAlreadyExists) ||
		errors.Is(err, repository.ErrInvalidMatch) ||
		errors.Is(err, repository.ErrInvalidRating)
}

// Pending returns the number of accepted matches not yet rated.
func (s *Service) Pending() int64 {
	return s.pending.Load()
}

// ApplyMatch rates a match and commits the new states and history record.
// Participants are locked for the whole read-rate-write cycle.
func (s *Service) ApplyMatch(ctx context.Context, m model.Match) (model.MatchRecord, error) {
	m = s.normalize(m)
	if err := s.validateShape(m); err != nil {
		metrics.RecordMatchFailed("invalid")
		return model.MatchRecord{}, err
	}

	unlock := s.locks.Lock(m.PlayerIDs()...)
	defer unlock()

	side1, err := s.states(ctx, m.Side1)
	if err != nil {
		metrics.RecordMatchFailed("unknown_player")
		return model.MatchRecord{}, err
	}
	side2, err := s.states(ctx, m.Side2)
	if err != nil {
		metrics.RecordMatchFailed("unknown_player")
		return model.MatchRecord{}, err
	}

	start := time.Now()
	outcome, err := s.engine.Resolve(side1, side2, m.Score1, m.Score2)
	metrics.RecordResolveLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordMatchFailed(engineFailure(err))
		metrics.RecordErrorByType("engine_error", "high")
		s.logger.Error(ctx, "rating engine rejected match",
			logger.String("matchID", m.MatchID),
			logger.Error(err),
		)
		return model.MatchRecord{}, fmt.Errorf("resolve match %s: %w", m.MatchID, err)
	}

	rec := model.NewMatchRecord(m, outcome.Deltas)
	if err := s.store.RecordMatch(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			metrics.RecordMatchDuplicate()
		} else {
			metrics.RecordMatchFailed("store")
		}
		return model.MatchRecord{}, fmt.Errorf("record match %s: %w", m.MatchID, err)
	}

	for _, sol := range outcome.Solutions {
		metrics.RecordSolver(sol.Iterations, sol.Converged)
	}
	for _, d := range outcome.Deltas {
		metrics.RecordRatingChange(d.RatingChange, d.Clamped)
	}
	metrics.RecordMatchRated()
	s.logger.Debug(ctx, "match rated",
		logger.String("matchID", m.MatchID),
		logger.Int("winnerSide", rec.WinnerSide),
	)
	return rec, nil
}

func engineFailure(err error) string {
	switch {
	case errors.Is(err, rating.ErrInvalidMatchComposition):
		return "invalid_composition"
	case errors.Is(err, rating.ErrNonFiniteResult):
		return "non_finite"
	case errors.Is(err, rating.ErrConfiguration):
		return "configuration"
	default:
		return "engine"
	}
}

func (s *Service) states(ctx context.Context, ids []string) ([]rating.State, error) {
	out := make([]rating.State, len(ids))
	for i, id := range ids {
		st, err := s.store.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
		}
		if err != nil {
			return nil, fmt.Errorf("load player %s: %w", id, err)
		}
		out[i] = st
	}
	return out, nil
}

func (s *Service) normalize(m model.Match) model.Match {
	m.MatchID = strings.TrimSpace(m.MatchID)
	if m.MatchID == "" {
		m.MatchID = uuid.NewString()
	}
	if m.PlayedAt.IsZero() {
		m.PlayedAt = s.now()
	}
	m.PlayedAt = m.PlayedAt.UTC()
	m.Side1 = trimIDs(m.Side1)
	m.Side2 = trimIDs(m.Side2)
	return m
}

func trimIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimSpace(id)
	}
	return out
}

// validateShape checks side sizes, IDs and scores.
func (s *Service) validateShape(m model.Match) error {
	for side, ids := range [][]string{m.Side1, m.Side2} {
		if len(ids) < 1 || len(ids) > maxSideSize {
			return fmt.Errorf("%w: side %d must have 1 or 2 players, got %d", ErrInvalidMatch, side+1, len(ids))
		}
	}
	seen := make(map[string]struct{}, len(m.Side1)+len(m.Side2))
	for _, id := range m.PlayerIDs() {
		if id == "" {
			return fmt.Errorf("%w: empty player id", ErrInvalidMatch)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: player %s appears more than once", ErrInvalidMatch, id)
		}
		seen[id] = struct{}{}
	}
	for _, score := range []int{m.Score1, m.Score2} {
		if score < 0 || score > s.maxScore {
			return fmt.Errorf("%w: score %d outside [0, %d]", ErrInvalidMatch, score, s.maxScore)
		}
	}
	return nil
}

// validate also rejects unknown players so they fail before queueing.
func (s *Service) validate(ctx context.Context, m model.Match) error {
	if err := s.validateShape(m); err != nil {
		return err
	}
	for _, id := range m.PlayerIDs() {
		if _, err := s.store.Get(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
			}
			return fmt.Errorf("load player %s: %w", id, err)
		}
	}
	return nil
}

// TopN returns the top n leaderboard rows.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	return s.store.TopN(ctx, n)
}

// Rank returns a player's leaderboard row.
func (s *Service) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	return s.store.Rank(ctx, playerID)
}

// PlayerMatches returns a player's rated matches, most recently rated first.
func (s *Service) PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error) {
	return s.store.PlayerMatches(ctx, playerID, limit)
}

// PlayerStats summarizes a player's full match history.
func (s *Service) PlayerStats(ctx context.Context, playerID string) (model.PlayerStats, error) {
	recs, err := s.store.PlayerMatches(ctx, playerID, 0)
	if err != nil {
		return model.PlayerStats{}, err
	}
	return model.ComputeStats(playerID, recs), nil
}

// ExportRows aggregates every rated match per player.
func (s *Service) ExportRows(ctx context.Context) ([]export.Row, error) {
	recs, err := s.store.Matches(ctx)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	names := make(map[string]string)
	for _, rec := range recs {
		for _, p := range rec.Participants {
			if _, ok := names[p.PlayerID]; ok {
				continue
			}
			player, err := s.store.Player(ctx, p.PlayerID)
			if err != nil {
				return nil, fmt.Errorf("load player %s: %w", p.PlayerID, err)
			}
			names[p.PlayerID] = player.Name()
		}
	}
	return export.Summarize(recs, names), nil
}

// Export writes the per-player summary as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.ExportRows(ctx)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, rows)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"dedupeEntries":   s.deduper.Size(),
		"pending":         s.pending.Load(),
		"tau":             s.engine.Tau(),
		"maxRatingChange": s.engine.MaxRatingChange(),
	}
	if n, err := s.store.Count(context.Background()); err == nil {
		stats["players"] = n
		metrics.UpdatePlayersTotal(n)
	}
	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// MaxScore returns the highest accepted score for one side.
func (s *Service) MaxScore() int { return s.maxScore }
