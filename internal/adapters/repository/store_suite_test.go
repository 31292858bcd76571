package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
)

var suiteEpoch = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return suiteEpoch }
}

func mustCreate(t *testing.T, s Store, id, first string, r float64) model.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), model.Player{
		ID:        id,
		FirstName: first,
		Rating:    rating.State{Rating: r, Deviation: 200, Volatility: 0.06},
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return p
}

func record(id string, at time.Time, parts ...model.Participant) model.MatchRecord {
	return model.MatchRecord{
		MatchID:      id,
		Score1:       21,
		Score2:       17,
		WinnerSide:   1,
		PlayedAt:     at,
		Participants: parts,
	}
}

func participant(id string, side int, before, after float64) model.Participant {
	return model.Participant{
		PlayerID: id,
		Side:     side,
		Won:      side == 1,
		Before:   rating.State{Rating: before, Deviation: 200, Volatility: 0.06},
		After:    rating.State{Rating: after, Deviation: 190, Volatility: 0.06},
		Change:   after - before,
	}
}

// runStoreSuite exercises the Store contract against one backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreatePlayer", func(t *testing.T) {
		s := newStore(t)
		p, err := s.CreatePlayer(ctx, model.Player{ID: " p1 ", FirstName: "Lin", LastName: "Dan"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != "p1" {
			t.Errorf("expected trimmed id, got %q", p.ID)
		}
		if p.Rating != rating.DefaultState() {
			t.Errorf("expected default rating, got %+v", p.Rating)
		}
		if !p.CreatedAt.Equal(suiteEpoch) {
			t.Errorf("expected created at %v, got %v", suiteEpoch, p.CreatedAt)
		}

		got, err := s.Player(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name() != "Lin Dan" || got.Rating != p.Rating {
			t.Errorf("unexpected player %+v", got)
		}

		if _, err := s.CreatePlayer(ctx, model.Player{ID: "p1", FirstName: "Again"}); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if _, err := s.CreatePlayer(ctx, model.Player{ID: "p2"}); !errors.Is(err, ErrInvalidPlayer) {
			t.Errorf("expected ErrInvalidPlayer, got %v", err)
		}
		if n, _ := s.Count(ctx); n != 1 {
			t.Errorf("expected count 1, got %d", n)
		}
	})

	t.Run("CreatePlayerRejectsUnratableState", func(t *testing.T) {
		s := newStore(t)
		bad := []rating.State{
			{Rating: 1500, Deviation: 200, Volatility: 0},
			{Rating: 1500, Deviation: 200, Volatility: -0.06},
			{Rating: 1500, Deviation: 29.9, Volatility: 0.06},
			{Rating: 1500, Deviation: 351, Volatility: 0.06},
		}
		for _, st := range bad {
			if _, err := s.CreatePlayer(ctx, model.Player{ID: "p1", FirstName: "A", Rating: st}); !errors.Is(err, ErrInvalidRating) {
				t.Errorf("state %+v: expected ErrInvalidRating, got %v", st, err)
			}
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Errorf("expected no players, got %d", n)
		}

		edge := rating.State{Rating: 1500, Deviation: rating.MinDeviation, Volatility: 0.06}
		p, err := s.CreatePlayer(ctx, model.Player{ID: "p1", FirstName: "A", Rating: edge})
		if err != nil || p.Rating != edge {
			t.Errorf("expected %+v accepted, got %+v (%v)", edge, p.Rating, err)
		}
		if err := s.Put(ctx, "p1", rating.State{Rating: 1500, Deviation: 400, Volatility: 0.06}); !errors.Is(err, ErrInvalidRating) {
			t.Errorf("expected ErrInvalidRating on put, got %v", err)
		}
	})

	t.Run("GetPut", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, "p1", "A", 1500)

		if _, err := s.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		want := rating.State{Rating: 1612.5, Deviation: 140, Volatility: 0.059}
		if err := s.Put(ctx, "p1", want); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
		if err := s.Put(ctx, "ghost", want); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.Put(ctx, "p1", rating.State{Rating: 1500, Deviation: 100}); !errors.Is(err, ErrInvalidRating) {
			t.Errorf("expected ErrInvalidRating, got %v", err)
		}
	})

	t.Run("RankAndTopN", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, "c", "C", 1600)
		mustCreate(t, s, "a", "A", 1600)
		mustCreate(t, s, "b", "B", 1550)
		mustCreate(t, s, "d", "D", 1400)

		entries, err := s.TopN(ctx, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wantIDs := []string{"a", "c", "b", "d"}
		wantRanks := []int{1, 1, 3, 4}
		if len(entries) != len(wantIDs) {
			t.Fatalf("expected %d entries, got %d", len(wantIDs), len(entries))
		}
		for i, e := range entries {
			if e.PlayerID != wantIDs[i] || e.Rank != wantRanks[i] {
				t.Errorf("entry %d: expected %s/%d, got %s/%d", i, wantIDs[i], wantRanks[i], e.PlayerID, e.Rank)
			}
		}

		top2, err := s.TopN(ctx, 2)
		if err != nil || len(top2) != 2 {
			t.Fatalf("expected 2 entries, got %d (%v)", len(top2), err)
		}
		if _, err := s.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}

		e, err := s.Rank(ctx, "c")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Rank != 1 || e.Name != "C" {
			t.Errorf("unexpected entry %+v", e)
		}
		if e, _ := s.Rank(ctx, "d"); e.Rank != 4 {
			t.Errorf("expected rank 4, got %d", e.Rank)
		}
		if _, err := s.Rank(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		// Moving a player re-sorts the board.
		if err := s.Put(ctx, "d", rating.State{Rating: 1700, Deviation: 100, Volatility: 0.06}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e, _ := s.Rank(ctx, "d"); e.Rank != 1 {
			t.Errorf("expected rank 1 after update, got %d", e.Rank)
		}
		if e, _ := s.Rank(ctx, "a"); e.Rank != 2 {
			t.Errorf("expected rank 2 after update, got %d", e.Rank)
		}
	})

	t.Run("RecordMatch", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, "p1", "A", 1500)
		mustCreate(t, s, "p2", "B", 1500)

		rec := record("m1", suiteEpoch, participant("p1", 1, 1500, 1562), participant("p2", 2, 1500, 1438))
		if err := s.RecordMatch(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		st, _ := s.Get(ctx, "p1")
		if st.Rating != 1562 || st.Deviation != 190 {
			t.Errorf("expected after state applied, got %+v", st)
		}
		st, _ = s.Get(ctx, "p2")
		if st.Rating != 1438 {
			t.Errorf("expected 1438, got %v", st.Rating)
		}

		if err := s.RecordMatch(ctx, rec); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		bad := record("m2", suiteEpoch, participant("p1", 1, 1562, 1600), participant("ghost", 2, 1500, 1462))
		if err := s.RecordMatch(ctx, bad); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		// Nothing from the failed match is kept.
		if st, _ := s.Get(ctx, "p1"); st.Rating != 1562 {
			t.Errorf("expected rollback to 1562, got %v", st.Rating)
		}
		all, _ := s.Matches(ctx)
		if len(all) != 1 {
			t.Errorf("expected 1 match, got %d", len(all))
		}

		if err := s.RecordMatch(ctx, model.MatchRecord{MatchID: "m3"}); !errors.Is(err, ErrInvalidMatch) {
			t.Errorf("expected ErrInvalidMatch, got %v", err)
		}
	})

	t.Run("History", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, "p1", "A", 1500)
		mustCreate(t, s, "p2", "B", 1500)
		mustCreate(t, s, "p3", "C", 1500)

		recs := []model.MatchRecord{
			record("m1", suiteEpoch, participant("p1", 1, 1500, 1550), participant("p2", 2, 1500, 1450)),
			record("m2", suiteEpoch.Add(time.Hour), participant("p2", 1, 1450, 1490), participant("p3", 2, 1500, 1460)),
			record("m3", suiteEpoch.Add(2*time.Hour), participant("p1", 1, 1550, 1580), participant("p3", 2, 1460, 1430)),
		}
		for _, r := range recs {
			if err := s.RecordMatch(ctx, r); err != nil {
				t.Fatalf("record %s: %v", r.MatchID, err)
			}
		}

		got, err := s.PlayerMatches(ctx, "p1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0].MatchID != "m3" || got[1].MatchID != "m1" {
			t.Fatalf("expected [m3 m1], got %+v", got)
		}
		if len(got[0].Participants) != 2 || got[0].Participants[0].PlayerID != "p1" {
			t.Errorf("expected participants in submission order, got %+v", got[0].Participants)
		}
		p, ok := got[0].Participant("p3")
		if !ok || p.Before.Rating != 1460 || p.After.Rating != 1430 || p.Won {
			t.Errorf("unexpected participant %+v", p)
		}
		if !got[0].PlayedAt.Equal(suiteEpoch.Add(2 * time.Hour)) {
			t.Errorf("unexpected played at %v", got[0].PlayedAt)
		}

		limited, _ := s.PlayerMatches(ctx, "p1", 1)
		if len(limited) != 1 || limited[0].MatchID != "m3" {
			t.Errorf("expected only m3, got %+v", limited)
		}
		if _, err := s.PlayerMatches(ctx, "ghost", 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		none, err := s.PlayerMatches(ctx, "p2", 0)
		if err != nil || len(none) != 2 {
			t.Errorf("expected 2 matches for p2, got %d (%v)", len(none), err)
		}

		all, err := s.Matches(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 3 || all[0].MatchID != "m1" || all[2].MatchID != "m3" {
			t.Errorf("expected oldest first, got %+v", all)
		}
	})

	t.Run("HistoryFollowsRecordingOrder", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, "p1", "A", 1500)
		mustCreate(t, s, "p2", "B", 1500)

		// m2 is recorded after m1 but reports an earlier play time.
		m1 := record("m1", suiteEpoch, participant("p1", 1, 1500, 1600), participant("p2", 2, 1500, 1400))
		m2 := record("m2", suiteEpoch.Add(-24*time.Hour), participant("p2", 1, 1400, 1500), participant("p1", 2, 1600, 1500))
		for _, r := range []model.MatchRecord{m1, m2} {
			if err := s.RecordMatch(ctx, r); err != nil {
				t.Fatalf("record %s: %v", r.MatchID, err)
			}
		}

		got, err := s.PlayerMatches(ctx, "p1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0].MatchID != "m2" || got[1].MatchID != "m1" {
			t.Fatalf("expected [m2 m1], got %+v", got)
		}
		if limited, _ := s.PlayerMatches(ctx, "p1", 1); len(limited) != 1 || limited[0].MatchID != "m2" {
			t.Errorf("expected only m2, got %+v", limited)
		}
		if !got[0].PlayedAt.Equal(suiteEpoch.Add(-24 * time.Hour)) {
			t.Errorf("expected played at kept for display, got %v", got[0].PlayedAt)
		}

		all, err := s.Matches(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 2 || all[0].MatchID != "m1" || all[1].MatchID != "m2" {
			t.Fatalf("expected [m1 m2], got %+v", all)
		}
		// The rating chain is continuous in recording order.
		first, _ := all[0].Participant("p1")
		second, _ := all[1].Participant("p1")
		if first.After.Rating != second.Before.Rating {
			t.Errorf("expected chained ratings, got %v then %v", first.After.Rating, second.Before.Rating)
		}
	})
}
