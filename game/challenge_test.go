package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPack = `[
	{"text": "{Player} drinks {sips} sips.", "difficulty": 1, "sips": 2},
	{"text": "{Player}, swap shirts with {Player2}.", "difficulty": 2, "sips": 3},
	{"text": "Everyone drinks!", "difficulty": 2, "sips": 1},
	{"text": "{Player}, talk in rhymes or drink {sips}.", "difficulty": 3, "type": "penalty",
	 "sips": 4, "penalty_rounds": 3, "penalty_text": "{Player} talks in rhymes."},
	{"text": "Gentlemen only.", "difficulty": 1, "sexes": ["M"]}
]`

func TestLoadPack(t *testing.T) {
	t.Parallel()

	t.Run("groups by difficulty", func(t *testing.T) {
		t.Parallel()
		pack, err := LoadPack([]byte(testPack))
		require.NoError(t, err)

		stats, err := pack.PoolStats()
		require.NoError(t, err)
		assert.Equal(t, PoolStats{Easy: 2, Medium: 2, Hard: 1}, stats)
		assert.Equal(t, 5, stats.Total())
	})

	t.Run("missing type defaults to challenge", func(t *testing.T) {
		t.Parallel()
		pack, err := LoadPack([]byte(`[{"text": "x", "difficulty": 1}]`))
		require.NoError(t, err)

		c, err := pack.SampleByDifficulty(Easy)
		require.NoError(t, err)
		assert.Equal(t, TypeChallenge, c.Type)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		t.Parallel()
		_, err := LoadPack([]byte(`[{"text": "", "difficulty": 1}]`))
		assert.Error(t, err)
	})

	t.Run("rejects out-of-range difficulty", func(t *testing.T) {
		t.Parallel()
		_, err := LoadPack([]byte(`[{"text": "x", "difficulty": 5}]`))
		assert.Error(t, err)

		_, err = LoadPack([]byte(`[{"text": "x", "difficulty": 0}]`))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		_, err := LoadPack([]byte(`{"not": "an array"}`))
		assert.Error(t, err)
	})
}

func TestPackSampling(t *testing.T) {
	t.Parallel()

	pack, err := LoadPack([]byte(testPack))
	require.NoError(t, err)

	t.Run("samples stay within the requested difficulty", func(t *testing.T) {
		t.Parallel()
		for range 20 {
			c, err := pack.SampleByDifficulty(Medium)
			require.NoError(t, err)
			assert.Equal(t, Medium, c.Difficulty)
		}
	})

	t.Run("empty level reports pool exhaustion", func(t *testing.T) {
		t.Parallel()
		_, err := pack.SampleByDifficulty(Extreme)
		assert.ErrorIs(t, err, ErrPoolEmpty)
	})

	t.Run("sampling is safe across goroutines", func(t *testing.T) {
		t.Parallel()
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					_, err := pack.SampleByDifficulty(Easy)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()
	})
}

func TestChallengeAppliesTo(t *testing.T) {
	t.Parallel()

	unrestricted := Challenge{Text: "x"}
	assert.True(t, unrestricted.AppliesTo(SexMale))
	assert.True(t, unrestricted.AppliesTo(SexFemale))

	menOnly := Challenge{Text: "x", Sexes: []Sex{SexMale}}
	assert.True(t, menOnly.AppliesTo(SexMale))
	assert.False(t, menOnly.AppliesTo(SexFemale))
}

func TestDifficultyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "easy", Easy.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "hard", Hard.String())
	assert.Equal(t, "extreme", Extreme.String())
}

func TestPoolStatsCount(t *testing.T) {
	t.Parallel()

	stats := PoolStats{Easy: 1, Medium: 2, Hard: 3, Extreme: 4}
	for i, d := range Difficulties {
		assert.Equal(t, i+1, stats.Count(d))
	}
	assert.Equal(t, 10, stats.Total())
}
