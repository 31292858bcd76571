package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, then player ID ASC (deterministic). "less" means
// ranks earlier, so in-order traversal yields the leaderboard from best to
// worst. Nodes carry subtree sizes for O(log n) rank queries.

const memoryBackend = "memory"

type node struct {
	id     string
	rating float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aRating, aID) ranks before (bRating, bID).
func less(aRating float64, aID string, bRating float64, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, r float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, rating: r, prio: prio, size: 1}
	}
	if less(r, id, n.rating, n.id) {
		n.left = insert(n.left, id, r, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, r, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, r float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case r == n.rating && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, r)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, r)
		}
	case less(r, id, n.rating, n.id):
		n.left = deleteNode(n.left, id, r)
	default:
		n.right = deleteNode(n.right, id, r)
	}
	fix(n)
	return n
}

// countAbove returns the number of nodes rated strictly higher than r.
func countAbove(n *node, r float64) int {
	count := 0
	for n != nil {
		if n.rating > r {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit node IDs in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	collectTopN(n.right, limit, out)
}

// TreapStore keeps everything in memory. Safe for concurrent use.
type TreapStore struct {
	mu       sync.RWMutex
	opts     storeOptions
	root     *node
	players  map[string]model.Player
	matches  []model.MatchRecord
	matchIdx map[string]struct{}
	byPlayer map[string][]int // indexes into matches, oldest first
}

// NewTreapStore constructs an empty in-memory store.
func NewTreapStore(opts ...Option) *TreapStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &TreapStore{
		opts:     o,
		players:  make(map[string]model.Player),
		matchIdx: make(map[string]struct{}),
		byPlayer: make(map[string][]int),
	}
}

// Close is a no-op for the memory store.
func (s *TreapStore) Close() error { return nil }

func (s *TreapStore) CreatePlayer(_ context.Context, p model.Player) (model.Player, error) {
	defer observe(memoryBackend, "create_player", time.Now())

	p, err := preparePlayer(p, s.opts.now())
	if err != nil {
		return model.Player{}, err
	}

	s.mu.Lock()
	if _, ok := s.players[p.ID]; ok {
		s.mu.Unlock()
		return model.Player{}, fmt.Errorf("%w: player %s", ErrAlreadyExists, p.ID)
	}
	s.players[p.ID] = p
	s.root = insert(s.root, p.ID, p.Rating.Rating, rand.Uint64())
	count := len(s.players)
	s.mu.Unlock()

	metrics.UpdatePlayersTotal(count)
	return p, nil
}

func (s *TreapStore) Player(_ context.Context, playerID string) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

func (s *TreapStore) Get(_ context.Context, playerID string) (rating.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		return rating.State{}, ErrNotFound
	}
	return p.Rating, nil
}

func (s *TreapStore) Put(_ context.Context, playerID string, st rating.State) error {
	defer observe(memoryBackend, "put", time.Now())
	if err := checkState(st); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; !ok {
		return ErrNotFound
	}
	s.setRating(playerID, st, s.opts.now())
	return nil
}

// setRating moves a player within the treap. Caller holds the write lock.
func (s *TreapStore) setRating(playerID string, st rating.State, now time.Time) {
	p := s.players[playerID]
	s.root = deleteNode(s.root, p.ID, p.Rating.Rating)
	p.Rating = st
	p.UpdatedAt = now
	s.players[playerID] = p
	s.root = insert(s.root, p.ID, st.Rating, rand.Uint64())
}

func (s *TreapStore) RecordMatch(_ context.Context, rec model.MatchRecord) error {
	defer observe(memoryBackend, "record_match", time.Now())
	if err := checkRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matchIdx[rec.MatchID]; ok {
		return fmt.Errorf("%w: match %s", ErrAlreadyExists, rec.MatchID)
	}
	for _, p := range rec.Participants {
		if _, ok := s.players[p.PlayerID]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, p.PlayerID)
		}
	}

	now := s.opts.now()
	for _, p := range rec.Participants {
		s.setRating(p.PlayerID, p.After, now)
	}
	rec.Participants = append([]model.Participant(nil), rec.Participants...)
	idx := len(s.matches)
	s.matches = append(s.matches, rec)
	s.matchIdx[rec.MatchID] = struct{}{}
	for _, p := range rec.Participants {
		s.byPlayer[p.PlayerID] = append(s.byPlayer[p.PlayerID], idx)
	}
	return nil
}

func (s *TreapStore) Rank(_ context.Context, playerID string) (types.Entry, error) {
	defer observe(memoryBackend, "rank", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	return entryFor(p, countAbove(s.root, p.Rating.Rating)+1), nil
}

func (s *TreapStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	defer observe(memoryBackend, "top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, min(n, len(s.players)))
	collectTopN(s.root, n, &ids)
	out := make([]types.Entry, len(ids))
	for i, id := range ids {
		out[i] = entryFor(s.players[id], 0)
	}
	assignRanks(out)
	return out, nil
}

func (s *TreapStore) PlayerMatches(_ context.Context, playerID string, limit int) ([]model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.players[playerID]; !ok {
		return nil, ErrNotFound
	}

	idx := s.byPlayer[playerID]
	out := make([]model.MatchRecord, 0, len(idx))
	for i := len(idx) - 1; i >= 0; i-- {
		out = append(out, s.matches[idx[i]])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TreapStore) Matches(_ context.Context) ([]model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MatchRecord(nil), s.matches...), nil
}

func (s *TreapStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players), nil
}

var _ Store = (*TreapStore)(nil)
