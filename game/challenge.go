// Drinkster challenge content.
//
// The engine only ever sees the ChallengeRepository contract: one
// pseudo-random challenge of a requested difficulty, plus aggregate
// counts per difficulty. The default implementation is a Pack loaded
// from an embedded JSON file, but anything satisfying the interface
// (a database, a remote service) can be dropped in.

package game

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
)

type Difficulty int

const (
	Easy Difficulty = iota + 1
	Medium
	Hard
	Extreme
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Extreme:
		return "extreme"
	}
	return "unknown"
}

// Difficulties lists every category in weight order.
var Difficulties = [4]Difficulty{Easy, Medium, Hard, Extreme}

type ChallengeType string

const (
	TypeChallenge ChallengeType = "challenge"
	TypePenalty   ChallengeType = "penalty"
)

// Challenge is a templated prompt. Text may contain the placeholders
// {Player}, {Player2} and {sips}; penalty-type challenges additionally
// carry the parameters for the standing obligation created when the
// player declines to drink.
type Challenge struct {
	Text          string        `json:"text"`
	Difficulty    Difficulty    `json:"difficulty"`
	Sexes         []Sex         `json:"sexes,omitempty"` // empty = applies to anyone
	Type          ChallengeType `json:"type"`
	Sips          int           `json:"sips"`
	PenaltyRounds int           `json:"penalty_rounds,omitempty"`
	PenaltyText   string        `json:"penalty_text,omitempty"`
}

// AppliesTo reports whether the challenge's sex filter admits s.
func (c Challenge) AppliesTo(s Sex) bool {
	if len(c.Sexes) == 0 {
		return true
	}
	for _, allowed := range c.Sexes {
		if allowed == s {
			return true
		}
	}
	return false
}

// PoolStats holds per-difficulty challenge counts, used to bias the
// weighted difficulty selection toward categories the pool can supply.
type PoolStats struct {
	Easy    int `json:"easy"`
	Medium  int `json:"medium"`
	Hard    int `json:"hard"`
	Extreme int `json:"extreme"`
}

func (s PoolStats) Count(d Difficulty) int {
	switch d {
	case Easy:
		return s.Easy
	case Medium:
		return s.Medium
	case Hard:
		return s.Hard
	case Extreme:
		return s.Extreme
	}
	return 0
}

func (s PoolStats) Total() int {
	return s.Easy + s.Medium + s.Hard + s.Extreme
}

type ChallengeRepository interface {
	SampleByDifficulty(d Difficulty) (Challenge, error)
	PoolStats() (PoolStats, error)
}

// Pack is an in-memory ChallengeRepository backed by a JSON challenge
// list, grouped by difficulty at load time.
type Pack struct {
	mu      sync.RWMutex
	byLevel map[Difficulty][]Challenge
	rand    *rand.Rand
}

// LoadPack parses a JSON array of challenges.
func LoadPack(data []byte) (*Pack, error) {
	var challenges []Challenge
	if err := json.Unmarshal(data, &challenges); err != nil {
		return nil, fmt.Errorf("parsing challenge pack: %w", err)
	}

	p := &Pack{
		byLevel: make(map[Difficulty][]Challenge),
		rand:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	for i, c := range challenges {
		if c.Text == "" {
			return nil, fmt.Errorf("challenge %d: empty text", i)
		}
		if c.Difficulty < Easy || c.Difficulty > Extreme {
			return nil, fmt.Errorf("challenge %d: bad difficulty %d", i, c.Difficulty)
		}
		if c.Type == "" {
			c.Type = TypeChallenge
		}
		p.byLevel[c.Difficulty] = append(p.byLevel[c.Difficulty], c)
	}

	return p, nil
}

// SampleByDifficulty takes the write lock: drawing advances the shared
// rand state.
func (p *Pack) SampleByDifficulty(d Difficulty) (Challenge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.byLevel[d]
	if len(pool) == 0 {
		return Challenge{}, fmt.Errorf("%w: no %s challenges", ErrPoolEmpty, d)
	}
	return pool[p.rand.IntN(len(pool))], nil
}

func (p *Pack) PoolStats() (PoolStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Easy:    len(p.byLevel[Easy]),
		Medium:  len(p.byLevel[Medium]),
		Hard:    len(p.byLevel[Hard]),
		Extreme: len(p.byLevel[Extreme]),
	}, nil
}
