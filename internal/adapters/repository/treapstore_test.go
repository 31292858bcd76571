package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
)

func TestTreapStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewTreapStore(WithClock(fixedClock()))
	})
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()
	const players = 200

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%03d", i)
			if _, err := store.CreatePlayer(ctx, model.Player{ID: id, FirstName: id}); err != nil {
				t.Errorf("create %s: %v", id, err)
				return
			}
			st := rating.State{Rating: 1000 + float64(i), Deviation: 100, Volatility: 0.06}
			if err := store.Put(ctx, id, st); err != nil {
				t.Errorf("put %s: %v", id, err)
			}
			_, _ = store.TopN(ctx, 10)
		}(i)
	}
	wg.Wait()

	if n, _ := store.Count(ctx); n != players {
		t.Fatalf("expected %d players, got %d", players, n)
	}
	entries, err := store.TopN(ctx, players)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d: expected rank %d, got %d", i, i+1, e.Rank)
		}
		if i > 0 && e.Rating > entries[i-1].Rating {
			t.Errorf("entry %d out of order", i)
		}
	}
	if entries[0].PlayerID != fmt.Sprintf("p%03d", players-1) {
		t.Errorf("unexpected leader %s", entries[0].PlayerID)
	}
}

func TestTreapStore_RankMatchesTreapCount(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()
	ratings := []float64{1500, 1720.5, 1500, 1388, 1900, 1720.5, 1200}
	for i, r := range ratings {
		mustCreate(t, store, fmt.Sprintf("p%d", i), "X", r)
	}
	for i, r := range ratings {
		want := 1
		for _, other := range ratings {
			if other > r {
				want++
			}
		}
		e, err := store.Rank(ctx, fmt.Sprintf("p%d", i))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Rank != want {
			t.Errorf("p%d: expected rank %d, got %d", i, want, e.Rank)
		}
	}
	if nsize(store.root) != len(ratings) {
		t.Errorf("expected treap size %d, got %d", len(ratings), nsize(store.root))
	}
}

func BenchmarkTreapStore_Put(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	const players = 10000
	for i := 0; i < players; i++ {
		id := fmt.Sprintf("p%05d", i)
		if _, err := store.CreatePlayer(ctx, model.Player{ID: id, FirstName: id}); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("p%05d", i%players)
		st := rating.State{Rating: 1000 + float64(i%1000), Deviation: 100, Volatility: 0.06}
		if err := store.Put(ctx, id, st); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreapStore_ReadHeavy(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	const players = 10000
	for i := 0; i < players; i++ {
		id := fmt.Sprintf("p%05d", i)
		r := rating.State{Rating: 1000 + float64(i%2000), Deviation: 100, Volatility: 0.06}
		if _, err := store.CreatePlayer(ctx, model.Player{ID: id, FirstName: id, Rating: r}); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%10 == 0 {
				_, _ = store.TopN(ctx, 100)
			} else {
				_, _ = store.Rank(ctx, fmt.Sprintf("p%05d", i%players))
			}
			i++
		}
	})
}
