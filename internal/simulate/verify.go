package simulate

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInconsistent reports a leaderboard that breaks its ordering or rank rules.
var ErrInconsistent = errors.New("leaderboard inconsistent")

// VerifyLeaderboard checks that rows are ordered by rating desc then player
// ID asc, and that ranks are competition style: tied ratings share a rank and
// the next rating takes its row position.
func VerifyLeaderboard(rows []Entry) error {
	for i, row := range rows {
		if i == 0 {
			if row.Rank != 1 {
				return fmt.Errorf("%w: first row has rank %d", ErrInconsistent, row.Rank)
			}
			continue
		}
		prev := rows[i-1]
		switch {
		case row.Rating > prev.Rating:
			return fmt.Errorf("%w: row %d rated %.3f above row %d (%.3f)", ErrInconsistent, i, row.Rating, i-1, prev.Rating)
		case row.Rating == prev.Rating && row.PlayerID < prev.PlayerID:
			return fmt.Errorf("%w: tie at row %d not ordered by player id", ErrInconsistent, i)
		case row.Rating == prev.Rating && row.Rank != prev.Rank:
			return fmt.Errorf("%w: tied rows %d and %d have ranks %d and %d", ErrInconsistent, i-1, i, prev.Rank, row.Rank)
		case row.Rating < prev.Rating && row.Rank != i+1:
			return fmt.Errorf("%w: row %d has rank %d, want %d", ErrInconsistent, i, row.Rank, i+1)
		}
	}
	return nil
}

// VerifyRank checks a /rank answer against the leaderboard row of the same player.
func VerifyRank(row, got Entry) error {
	if got.PlayerID != row.PlayerID || got.Rank != row.Rank || got.Rating != row.Rating {
		return fmt.Errorf("%w: rank of %s is %d (%.3f), leaderboard says %d (%.3f)",
			ErrInconsistent, row.PlayerID, got.Rank, got.Rating, row.Rank, row.Rating)
	}
	return nil
}

// SkillCorrelation returns the Spearman rank correlation between hidden skill
// and rating for players present in rows. It is NaN with fewer than two rows.
func SkillCorrelation(rows []Entry, players []Player) float64 {
	skill := make(map[string]float64, len(players))
	for _, p := range players {
		skill[p.ID] = p.Skill
	}
	type pair struct{ rating, skill float64 }
	pairs := make([]pair, 0, len(rows))
	for _, r := range rows {
		if s, ok := skill[r.PlayerID]; ok {
			pairs = append(pairs, pair{r.Rating, s})
		}
	}
	n := len(pairs)
	if n < 2 {
		return math.NaN()
	}

	ratingRank := ranks(n, func(i, j int) bool { return pairs[i].rating > pairs[j].rating })
	skillRank := ranks(n, func(i, j int) bool { return pairs[i].skill > pairs[j].skill })
	sumD2 := 0.0
	for i := 0; i < n; i++ {
		d := float64(ratingRank[i] - skillRank[i])
		sumD2 += d * d
	}
	fn := float64(n)
	return 1 - 6*sumD2/(fn*(fn*fn-1))
}

// ranks returns the position of each index when sorted by less.
func ranks(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	out := make([]int, n)
	for pos, i := range idx {
		out[i] = pos
	}
	return out
}
