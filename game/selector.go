// Challenge selection policy.
//
// Difficulty is chosen by weighted random selection where each
// category's weight is the player's stated preference multiplied by the
// category's share of the content pool. Preferences alone would starve
// turns whenever a favored category is nearly empty; pool share alone
// would ignore the player entirely. The product biases toward
// categories the player wants AND the pool can actually supply.

package game

import (
	"strconv"
	"strings"
)

// sampleAttempts bounds the retry loop that enforces the sex filter and
// the remembered-challenge window. On exhaustion the last sample is
// accepted as-is rather than failing the turn.
const sampleAttempts = 10

// Player2Bias optionally reweights second-player selection. It receives
// the current player, the candidate list and the chosen difficulty and
// returns one non-negative weight per candidate; nil (or a mismatched
// slice) falls back to uniform selection.
type Player2Bias func(current *Player, candidates []*Player, d Difficulty) []float64

// pickDifficulty implements the cumulative-weight walk. A zero or
// malformed total defaults to Medium.
func (e *Engine) pickDifficulty(w Weights, stats PoolStats) Difficulty {
	total := stats.Total()
	if total <= 0 {
		return Medium
	}

	var weights [4]float64
	var sum float64
	for i, d := range Difficulties {
		weights[i] = w[i] * float64(stats.Count(d)) / float64(total)
		sum += weights[i]
	}
	if sum <= 0 {
		return Medium
	}

	r := e.randFloat64() * sum
	var cum float64
	for i, d := range Difficulties {
		cum += weights[i]
		if r < cum {
			return d
		}
	}
	return Extreme
}

// sampleChallenge draws from the repository until the sample passes the
// player's sex filter and is outside the room's remembered window, up
// to sampleAttempts tries.
func (e *Engine) sampleChallenge(room *Room, player *Player) (Challenge, error) {
	g := room.Game
	d := e.pickDifficulty(player.Weights, g.Stats)

	var challenge Challenge
	for attempt := 0; attempt < sampleAttempts; attempt++ {
		c, err := e.repo.SampleByDifficulty(d)
		if err != nil {
			return Challenge{}, err
		}
		challenge = c

		if !c.AppliesTo(player.Sex) {
			continue
		}
		if g.seenRecently(c.Text) {
			continue
		}
		break
	}

	g.remember(challenge.Text, room.Window)
	return challenge, nil
}

// pickPlayer2 selects a second player from everyone except current,
// applying the bias hook when one is installed. Returns nil when no
// other player exists.
func (e *Engine) pickPlayer2(room *Room, current *Player, d Difficulty) *Player {
	candidates := make([]*Player, 0, len(room.Players)-1)
	for _, p := range room.Players {
		if p != current {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if e.Player2Bias != nil {
		if weights := e.Player2Bias(current, candidates, d); len(weights) == len(candidates) {
			var sum float64
			for _, w := range weights {
				if w > 0 {
					sum += w
				}
			}
			if sum > 0 {
				r := e.randFloat64() * sum
				var cum float64
				for i, w := range weights {
					if w <= 0 {
						continue
					}
					cum += w
					if r < cum {
						return candidates[i]
					}
				}
			}
		}
	}

	return candidates[e.randIntN(len(candidates))]
}

const (
	placeholderPlayer  = "{Player}"
	placeholderPlayer2 = "{Player2}"
	placeholderSips    = "{sips}"

	// The literal target for room-wide challenges.
	everyoneWord = "Everyone"
)

// personalize substitutes the template placeholders. An empty player2
// leaves {Player2} unresolved, which is the documented behavior for
// rooms without a second player.
func personalize(text, player, player2 string, sips int) string {
	pairs := []string{
		placeholderPlayer, player,
		placeholderSips, strconv.Itoa(sips),
	}
	if player2 != "" {
		pairs = append(pairs, placeholderPlayer2, player2)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func (g *GameState) seenRecently(text string) bool {
	for _, seen := range g.recent {
		if seen == text {
			return true
		}
	}
	return false
}

func (g *GameState) remember(text string, window int) {
	if window <= 0 {
		return
	}
	g.recent = append(g.recent, text)
	if len(g.recent) > window {
		g.recent = g.recent[len(g.recent)-window:]
	}
}
