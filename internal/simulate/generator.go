package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Badminton rally scoring: first to 21, win by two, capped at 30.
const (
	targetScore = 21
	capScore    = 30
	// skillSpread is the standard deviation of hidden skill, in rating points.
	skillSpread = 200
	meanSkill   = 1500
)

var firstNames = []string{"Lin", "Viktor", "Carolina", "Tai", "Kento", "Akane", "Lee", "Ratchanok", "Anders", "Pusarla"}

// Player is a simulated player with a hidden skill on the rating scale.
type Player struct {
	PlayerRequest
	Skill float64 `json:"skill"`
}

// Generator produces players and match results from a seeded source. IDs are
// random; skills, pairings and scores repeat for the same seed.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Players creates n players with normally distributed skill.
func (g *Generator) Players(n int) []Player {
	out := make([]Player, n)
	for i := range out {
		out[i] = Player{
			PlayerRequest: PlayerRequest{
				ID:        uuid.NewString(),
				FirstName: firstNames[i%len(firstNames)],
				LastName:  fmt.Sprintf("P%04d", i+1),
			},
			Skill: meanSkill + g.rng.NormFloat64()*skillSpread,
		}
	}
	return out
}

// Matches creates n matches between distinct players. A match is doubles
// with probability doublesRatio when at least four players exist. Play
// times increase by one minute per match.
func (g *Generator) Matches(players []Player, n int, doublesRatio float64) []MatchRequest {
	if len(players) < 2 {
		return nil
	}
	start := g.now().UTC().Add(-time.Duration(n) * time.Minute).Truncate(time.Second)
	out := make([]MatchRequest, 0, n)
	for i := 0; i < n; i++ {
		perSide := 1
		if len(players) >= 4 && g.rng.Float64() < doublesRatio {
			perSide = 2
		}
		picked := g.rng.Perm(len(players))[:2*perSide]
		side1, side2 := players[picked[0]:picked[0]+1], players[picked[1]:picked[1]+1]
		if perSide == 2 {
			side1 = []Player{players[picked[0]], players[picked[2]]}
			side2 = []Player{players[picked[1]], players[picked[3]]}
		}

		s1, s2 := g.score(meanSkillOf(side1), meanSkillOf(side2))
		out = append(out, MatchRequest{
			MatchID:  uuid.NewString(),
			Side1:    idsOf(side1),
			Side2:    idsOf(side2),
			Score1:   s1,
			Score2:   s2,
			PlayedAt: start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}
	return out
}

// score draws the winner from the Elo expectation of the two skills and a
// plausible losing score.
func (g *Generator) score(skill1, skill2 float64) (int, int) {
	p1 := 1 / (1 + math.Pow(10, (skill2-skill1)/400))
	loser := g.rng.IntN(targetScore - 1)
	winner := targetScore
	if g.rng.IntN(10) == 0 {
		// Deuce: win by two, or the cap decides it.
		loser = targetScore - 1 + g.rng.IntN(capScore-targetScore)
		winner = min(loser+2, capScore)
	}
	if g.rng.Float64() < p1 {
		return winner, loser
	}
	return loser, winner
}

func meanSkillOf(side []Player) float64 {
	sum := 0.0
	for _, p := range side {
		sum += p.Skill
	}
	return sum / float64(len(side))
}

func idsOf(side []Player) []string {
	ids := make([]string, len(side))
	for i, p := range side {
		ids[i] = p.ID
	}
	return ids
}
