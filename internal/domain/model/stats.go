package model

// PlayerStats summarises a player's match history.
type PlayerStats struct {
	PlayerID      string  `json:"player_id"`
	GamesPlayed   int     `json:"games_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	WinRate       float64 `json:"win_rate"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

// ComputeStats derives stats for playerID from records ordered most recently
// rated first.
// Records the player did not take part in are ignored. The current streak is
// the run of wins ending at the newest game; the best streak is the longest
// run of wins anywhere in the history.
func ComputeStats(playerID string, records []MatchRecord) PlayerStats {
	st := PlayerStats{PlayerID: playerID}
	run := 0

	// Walk oldest to newest so runs accumulate in rating order.
	for i := len(records) - 1; i >= 0; i-- {
		p, ok := records[i].Participant(playerID)
		if !ok {
			continue
		}
		st.GamesPlayed++
		switch {
		case p.Won:
			st.Wins++
			run++
			if run > st.BestStreak {
				st.BestStreak = run
			}
		case records[i].WinnerSide == 0:
			st.Draws++
			run = 0
		default:
			st.Losses++
			run = 0
		}
	}
	st.CurrentStreak = run

	if st.GamesPlayed > 0 {
		st.WinRate = float64(st.Wins) / float64(st.GamesPlayed)
	}
	return st
}
