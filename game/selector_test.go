package game

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	e := NewEngine(NewRegistry(), &stubRepo{}, NopBroadcaster{})
	e.Rand = rand.New(rand.NewPCG(7, 13))
	return e
}

func TestPickDifficulty(t *testing.T) {
	t.Parallel()

	t.Run("frequencies track preference times pool share", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		weights := Weights{0.4, 0.3, 0.2, 0.1}
		stats := PoolStats{Easy: 10, Medium: 10, Hard: 10, Extreme: 10}

		const draws = 10000
		counts := make(map[Difficulty]int)
		for range draws {
			counts[e.pickDifficulty(weights, stats)]++
		}

		assert.InDelta(t, 0.4, float64(counts[Easy])/draws, 0.02)
		assert.InDelta(t, 0.3, float64(counts[Medium])/draws, 0.02)
		assert.InDelta(t, 0.2, float64(counts[Hard])/draws, 0.02)
		assert.InDelta(t, 0.1, float64(counts[Extreme])/draws, 0.02)
	})

	t.Run("pool share skews an even preference", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		weights := Weights{0.25, 0.25, 0.25, 0.25}
		stats := PoolStats{Easy: 30, Medium: 10}

		const draws = 10000
		counts := make(map[Difficulty]int)
		for range draws {
			counts[e.pickDifficulty(weights, stats)]++
		}

		assert.InDelta(t, 0.75, float64(counts[Easy])/draws, 0.02)
		assert.InDelta(t, 0.25, float64(counts[Medium])/draws, 0.02)
		assert.Zero(t, counts[Hard])
		assert.Zero(t, counts[Extreme])
	})

	t.Run("empty pool defaults to medium", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		assert.Equal(t, Medium, e.pickDifficulty(Weights{0.25, 0.25, 0.25, 0.25}, PoolStats{}))
	})

	t.Run("zero preference overlap defaults to medium", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		// Player only wants extreme, pool only has easy.
		assert.Equal(t, Medium, e.pickDifficulty(Weights{0, 0, 0, 1}, PoolStats{Easy: 5}))
	})
}

func TestPersonalize(t *testing.T) {
	t.Parallel()

	t.Run("replaces all placeholders", func(t *testing.T) {
		t.Parallel()
		got := personalize("{Player}, give {Player2} {sips} sips.", "alice", "bob", 4)
		assert.Equal(t, "alice, give bob 4 sips.", got)
	})

	t.Run("keeps the second-player placeholder when nobody fills it", func(t *testing.T) {
		t.Parallel()
		got := personalize("{Player} toasts {Player2}.", "alice", "", 1)
		assert.Equal(t, "alice toasts {Player2}.", got)
	})

	t.Run("repeated placeholders", func(t *testing.T) {
		t.Parallel()
		got := personalize("{Player} and {Player} again", "alice", "", 1)
		assert.Equal(t, "alice and alice again", got)
	})
}

func TestSampleChallenge(t *testing.T) {
	t.Parallel()

	gameRoom := func(window int) (*Room, *Player) {
		player := &Player{Name: "alice", Sex: SexFemale, Weights: Weights{0, 1, 0, 0}}
		room := &Room{
			Window:  window,
			Players: []*Player{player},
			Game:    &GameState{Round: 1, Stats: PoolStats{Medium: 3}},
		}
		return room, player
	}

	t.Run("skips challenges for the wrong sex", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.repo = &stubRepo{challenges: map[Difficulty][]Challenge{
			Medium: {
				{Text: "guys only", Difficulty: Medium, Sexes: []Sex{SexMale}},
				{Text: "anyone", Difficulty: Medium},
			},
		}}
		room, player := gameRoom(0)

		c, err := e.sampleChallenge(room, player)
		require.NoError(t, err)
		assert.Equal(t, "anyone", c.Text)
	})

	t.Run("remembered window avoids repeats", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.repo = &stubRepo{challenges: map[Difficulty][]Challenge{
			Medium: {
				{Text: "first", Difficulty: Medium},
				{Text: "second", Difficulty: Medium},
			},
		}}
		room, player := gameRoom(1)

		c1, err := e.sampleChallenge(room, player)
		require.NoError(t, err)
		c2, err := e.sampleChallenge(room, player)
		require.NoError(t, err)
		assert.NotEqual(t, c1.Text, c2.Text)
	})

	t.Run("exhausted retries settle for a repeat", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.repo = &stubRepo{challenges: map[Difficulty][]Challenge{
			Medium: {{Text: "only one", Difficulty: Medium}},
		}}
		room, player := gameRoom(10)

		c1, err := e.sampleChallenge(room, player)
		require.NoError(t, err)
		c2, err := e.sampleChallenge(room, player)
		require.NoError(t, err)
		assert.Equal(t, c1.Text, c2.Text)
	})

	t.Run("repository errors surface", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.repo = &stubRepo{sampleErr: assert.AnError}
		room, player := gameRoom(0)

		_, err := e.sampleChallenge(room, player)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestRememberWindow(t *testing.T) {
	t.Parallel()

	t.Run("zero window remembers nothing", func(t *testing.T) {
		t.Parallel()
		g := &GameState{}
		g.remember("x", 0)
		assert.False(t, g.seenRecently("x"))
	})

	t.Run("oldest entries fall out", func(t *testing.T) {
		t.Parallel()
		g := &GameState{}
		g.remember("a", 2)
		g.remember("b", 2)
		g.remember("c", 2)

		assert.False(t, g.seenRecently("a"))
		assert.True(t, g.seenRecently("b"))
		assert.True(t, g.seenRecently("c"))
	})
}

func TestPickPlayer2(t *testing.T) {
	t.Parallel()

	threePlayers := func() (*Room, *Player) {
		alice := &Player{Name: "alice"}
		bob := &Player{Name: "bob"}
		carol := &Player{Name: "carol"}
		return &Room{Players: []*Player{alice, bob, carol}}, alice
	}

	t.Run("never picks the current player", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		room, alice := threePlayers()

		for range 100 {
			p2 := e.pickPlayer2(room, alice, Medium)
			require.NotNil(t, p2)
			assert.NotEqual(t, alice.Name, p2.Name)
		}
	})

	t.Run("nil when alone", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		alice := &Player{Name: "alice"}
		room := &Room{Players: []*Player{alice}}

		assert.Nil(t, e.pickPlayer2(room, alice, Medium))
	})

	t.Run("bias hook steers the pick", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.Player2Bias = func(current *Player, candidates []*Player, d Difficulty) []float64 {
			weights := make([]float64, len(candidates))
			for i, c := range candidates {
				if c.Name == "carol" {
					weights[i] = 1
				}
			}
			return weights
		}
		room, alice := threePlayers()

		for range 50 {
			p2 := e.pickPlayer2(room, alice, Medium)
			require.NotNil(t, p2)
			assert.Equal(t, "carol", p2.Name)
		}
	})

	t.Run("malformed bias falls back to uniform", func(t *testing.T) {
		t.Parallel()
		e := testEngine()
		e.Player2Bias = func(current *Player, candidates []*Player, d Difficulty) []float64 {
			return []float64{1} // wrong length
		}
		room, alice := threePlayers()

		p2 := e.pickPlayer2(room, alice, Medium)
		require.NotNil(t, p2)
		assert.NotEqual(t, "alice", p2.Name)
	})
}
