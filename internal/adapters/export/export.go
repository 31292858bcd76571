// Package export builds per-player result summaries and writes them as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/okian/shuttle/internal/domain/model"
)

// Row is one player's aggregate over a set of match records.
type Row struct {
	PlayerID      string  `json:"player_id"`
	Name          string  `json:"name"`
	GamesPlayed   int     `json:"games_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	PointsFor     int     `json:"points_for"`
	PointsAgainst int     `json:"points_against"`
	OldRating     float64 `json:"old_rating"`
	NewRating     float64 `json:"new_rating"`
	RatingChange  float64 `json:"rating_change"`
}

// PointsDiff returns points scored minus points conceded.
func (r Row) PointsDiff() int { return r.PointsFor - r.PointsAgainst }

var header = []string{
	"position", "player_id", "name", "old_rating", "new_rating", "rating_change",
	"games", "wins", "losses", "draws", "points_diff", "points_for", "points_against",
}

// Summarize aggregates records (in the order they were rated) per participant. OldRating is
// the rating before the player's first match in the set and NewRating the
// rating after their last. Rows are sorted by NewRating desc, then ID.
// names maps player IDs to display names; missing entries leave Name empty.
func Summarize(records []model.MatchRecord, names map[string]string) []Row {
	byID := make(map[string]*Row)
	for _, rec := range records {
		for _, p := range rec.Participants {
			row, ok := byID[p.PlayerID]
			if !ok {
				row = &Row{PlayerID: p.PlayerID, Name: names[p.PlayerID], OldRating: p.Before.Rating}
				byID[p.PlayerID] = row
			}
			row.GamesPlayed++
			switch {
			case rec.WinnerSide == 0:
				row.Draws++
			case p.Won:
				row.Wins++
			default:
				row.Losses++
			}
			row.PointsFor += rec.PointsFor(p.Side)
			row.PointsAgainst += rec.PointsAgainst(p.Side)
			row.NewRating = p.After.Rating
			row.RatingChange += p.Change
		}
	}

	rows := make([]Row, 0, len(byID))
	for _, r := range byID {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NewRating != rows[j].NewRating {
			return rows[i].NewRating > rows[j].NewRating
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	return rows
}

// WriteCSV writes rows with a header line. Ratings are rounded to whole points.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		rec := []string{
			strconv.Itoa(i + 1),
			r.PlayerID,
			r.Name,
			strconv.FormatFloat(r.OldRating, 'f', 0, 64),
			strconv.FormatFloat(r.NewRating, 'f', 0, 64),
			fmt.Sprintf("%+.0f", r.RatingChange),
			strconv.Itoa(r.GamesPlayed),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			strconv.Itoa(r.Draws),
			fmt.Sprintf("%+d", r.PointsDiff()),
			strconv.Itoa(r.PointsFor),
			strconv.Itoa(r.PointsAgainst),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", r.PlayerID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
