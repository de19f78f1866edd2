// Drinkster turn engine.
//
// Once a room starts playing, the engine owns its GameState: the turn
// pointer, the round counter, penalty decay, the single outstanding
// turn timer, and challenge personalization. All mutating operations on
// one room run under that room's mutex; rooms never share a lock.
//
// Repository failures never fail a turn. They are logged and a fixed
// fallback challenge keeps the machine alive.

package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// DefaultTurnTimeout is how long a player has to complete or skip
// before the engine advances on its own.
const DefaultTurnTimeout = 3 * time.Minute

// fallbackChallenge substitutes for the repository when selection
// fails mid-game.
var fallbackChallenge = Challenge{
	Text:       "Drink {sips} sips to continue.",
	Difficulty: Medium,
	Type:       TypeChallenge,
	Sips:       3,
}

// TurnInfo is the cached "current turn" record.
type TurnInfo struct {
	PlayerID   string     `json:"player_id"`
	PlayerName string     `json:"player_name"`
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty"`
	Sips       int        `json:"sips"`
	Everyone   bool       `json:"everyone,omitempty"`
}

// GameState exists only while its Room is playing and is destroyed when
// the game ends. Guarded by the owning Room's mutex.
type GameState struct {
	Current        int       `json:"current"`
	Round          int       `json:"round"`
	Turn           TurnInfo  `json:"turn"`
	PendingPlayer2 string    `json:"pending_player2,omitempty"`
	Stats          PoolStats `json:"stats"`

	recent    []string  // remembered-challenge window
	challenge Challenge // full current challenge, incl. penalty params

	// pending2ID pins the selected second player by persistent ID;
	// PendingPlayer2 keeps only the name, and names may collide.
	pending2ID string

	// The generation counter detects stale timer callbacks after rapid
	// re-arm/cancel cycles; exactly one generation is ever live.
	timerGen uint64
	timer    *time.Timer
}

type Engine struct {
	reg  *Registry
	repo ChallengeRepository
	bc   Broadcaster

	// randMu serializes draws from Rand. Rooms advance concurrently
	// under their own mutexes, so the shared source needs its own.
	randMu sync.Mutex

	// Tunables, settable before first use.
	Rand        *rand.Rand
	Logf        func(format string, args ...any)
	TurnTimeout time.Duration
	Player2Bias Player2Bias
}

func (e *Engine) randFloat64() float64 {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	return e.Rand.Float64()
}

func (e *Engine) randIntN(n int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	return e.Rand.IntN(n)
}

func NewEngine(reg *Registry, repo ChallengeRepository, bc Broadcaster) *Engine {
	return &Engine{
		reg:         reg,
		repo:        repo,
		bc:          bc,
		Rand:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Logf:        func(string, ...any) {},
		TurnTimeout: DefaultTurnTimeout,
	}
}

// Start transitions a waiting room to playing and deals the first turn.
// Only the admin may start, and every player must be ready.
func (e *Engine) Start(roomID int, connID string) (TurnInfo, error) {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return TurnInfo{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	caller := room.playerByConn(connID)
	if caller == nil || !caller.Admin {
		return TurnInfo{}, ErrPermissionDenied
	}
	if room.Status == StatusPlaying {
		return TurnInfo{}, fmt.Errorf("%w: game already running", ErrInvalidState)
	}
	if room.Status != StatusWaiting {
		return TurnInfo{}, fmt.Errorf("%w: room is %s", ErrInvalidState, room.Status)
	}
	for _, p := range room.Players {
		if !p.Ready {
			return TurnInfo{}, fmt.Errorf("%w: %s", ErrNotReady, p.Name)
		}
	}

	stats, err := e.repo.PoolStats()
	if err != nil || stats.Total() <= 0 {
		// Absorbed: a stats failure only flattens the selection bias.
		e.Logf("GAMES: Pool stats unavailable for room %d, using flat stats: %v", room.ID, err)
		stats = PoolStats{Easy: 1, Medium: 1, Hard: 1, Extreme: 1}
	}

	room.Game = &GameState{Round: 1, Stats: stats}
	room.Status = StatusPlaying

	e.bc.ToRoom(room.ID, EventGameStarted, StartedMessage{
		PlayerID:   room.Players[0].ID,
		PlayerName: room.Players[0].Name,
	})
	e.Logf("GAMES: Started game in room %d with %d players", room.ID, len(room.Players))

	e.setTurnLocked(room)

	return room.Game.Turn, nil
}

// Complete resolves the current turn for the caller. Declining a
// penalty-type challenge (drank=false) converts it into a standing
// multi-round Penalty instead of completing it outright.
func (e *Engine) Complete(roomID int, connID string, drank bool) (TurnInfo, error) {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return TurnInfo{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	g := room.Game
	if room.Status != StatusPlaying || g == nil {
		return TurnInfo{}, fmt.Errorf("%w: no game running", ErrInvalidState)
	}

	player := room.playerByConn(connID)
	if player == nil {
		return TurnInfo{}, ErrPlayerNotFound
	}
	if player.ID != g.Turn.PlayerID {
		return TurnInfo{}, ErrNotYourTurn
	}

	declined := g.challenge.Type == TypePenalty && !drank
	penaltyText := personalize(g.challenge.PenaltyText, player.Name, g.PendingPlayer2, g.challenge.Sips)
	penaltyRounds := g.challenge.PenaltyRounds

	e.cancelTimerLocked(g)
	e.nextPlayerLocked(room)
	e.decayPenaltiesLocked(room)

	// The new obligation starts counting from the next advance, so it
	// is appended after this turn's decay but before the fan-out.
	if declined {
		player.Penalties = append(player.Penalties, Penalty{
			Text:   penaltyText,
			Rounds: penaltyRounds,
		})
	}

	e.setTurnLocked(room)

	return g.Turn, nil
}

// ForceSkip advances the turn with no completion side effects.
// Admin only.
func (e *Engine) ForceSkip(roomID int, connID string) (TurnInfo, error) {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return TurnInfo{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	caller := room.playerByConn(connID)
	if caller == nil || !caller.Admin {
		return TurnInfo{}, ErrPermissionDenied
	}
	g := room.Game
	if room.Status != StatusPlaying || g == nil {
		return TurnInfo{}, fmt.Errorf("%w: no game running", ErrInvalidState)
	}

	e.cancelTimerLocked(g)
	e.advanceTurnLocked(room)

	return g.Turn, nil
}

// End finishes the game, cancels the timer and detaches the GameState.
// Admin only.
func (e *Engine) End(roomID int, connID string) error {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	caller := room.playerByConn(connID)
	if caller == nil || !caller.Admin {
		return ErrPermissionDenied
	}
	if room.Status != StatusPlaying || room.Game == nil {
		return fmt.Errorf("%w: no game running", ErrInvalidState)
	}

	e.cancelTimerLocked(room.Game)
	room.Game = nil
	room.Status = StatusFinished
	room.touchLocked()

	e.bc.ToRoom(room.ID, EventGameEnded, EndedMessage{RoomID: room.ID})
	e.Logf("GAMES: Ended game in room %d", room.ID)

	return nil
}

// VacateTurn redeals the current turn after the player holding it left
// the game, fitting Lifecycle's TurnVacated hook. The caller holds the
// room's mutex with the departed player already removed; the turn
// pointer still indexes the right successor.
func (e *Engine) VacateTurn(room *Room) {
	if room.Game == nil || len(room.Players) == 0 {
		return
	}

	e.setTurnLocked(room)
}

// Release cancels a room's outstanding timer without touching its
// status, for callers about to drop the room entirely (the idle
// reaper). Safe on rooms with no running game.
func (e *Engine) Release(roomID int) {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Game != nil {
		e.cancelTimerLocked(room.Game)
	}
}

// advanceTurnLocked moves to the next player, decays penalties, selects
// the next challenge and re-arms the timer. Caller holds room.mu.
func (e *Engine) advanceTurnLocked(room *Room) {
	e.nextPlayerLocked(room)
	e.decayPenaltiesLocked(room)
	e.setTurnLocked(room)
}

// nextPlayerLocked steps the turn pointer and the round counter.
func (e *Engine) nextPlayerLocked(room *Room) {
	g := room.Game
	n := len(room.Players)
	if g == nil || n == 0 {
		return
	}

	g.PendingPlayer2 = ""
	g.pending2ID = ""

	if room.Mode == ModeRandom && n > 1 {
		next := e.randIntN(n - 1)
		if next >= g.Current {
			next++
		}
		g.Current = next
	} else {
		g.Current = (g.Current + 1) % n
	}
	g.Round++
}

// decayPenaltiesLocked applies one decay step to every player's
// penalties, independent of whose turn it is.
func (e *Engine) decayPenaltiesLocked(room *Room) {
	for _, p := range room.Players {
		kept := p.Penalties[:0]
		for _, pen := range p.Penalties {
			pen.Rounds--
			if pen.Rounds > 0 {
				kept = append(kept, pen)
			}
		}
		p.Penalties = kept
	}
}

// setTurnLocked computes the current player's personalized challenge,
// caches the turn record, arms the timeout and fans out notifications.
// Caller holds room.mu.
func (e *Engine) setTurnLocked(room *Room) {
	g := room.Game
	if g == nil || len(room.Players) == 0 {
		return
	}
	g.Current %= len(room.Players)
	current := room.Players[g.Current]

	challenge, err := e.sampleChallenge(room, current)
	if err != nil {
		e.Logf("GAMES: Challenge selection failed in room %d: %v", room.ID, err)
		challenge = fallbackChallenge
	}

	var player2, player2ID string
	if strings.Contains(challenge.Text, placeholderPlayer2) {
		if p2 := e.pickPlayer2(room, current, challenge.Difficulty); p2 != nil {
			player2 = p2.Name
			player2ID = p2.ID
		}
	}
	g.PendingPlayer2 = player2
	g.pending2ID = player2ID

	everyone := strings.Contains(challenge.Text, everyoneWord)

	g.challenge = challenge
	g.Turn = TurnInfo{
		PlayerID:   current.ID,
		PlayerName: current.Name,
		Text:       personalize(challenge.Text, current.Name, player2, challenge.Sips),
		Difficulty: challenge.Difficulty,
		Sips:       challenge.Sips,
		Everyone:   everyone,
	}

	// An "Everyone" challenge must not consume the next player's slot:
	// step the pointer back one so the following advance repeats it.
	if everyone {
		n := len(room.Players)
		g.Current = (g.Current - 1 + n) % n
	}

	room.touchLocked()
	e.armTimerLocked(room)
	e.sendCurrentChallengeLocked(room)
}

// armTimerLocked replaces any armed timer with a fresh one. The
// generation bump invalidates callbacks from the old timer even if it
// already fired and is waiting on the room mutex.
func (e *Engine) armTimerLocked(room *Room) {
	g := room.Game
	g.timerGen++
	gen := g.timerGen

	if g.timer != nil {
		g.timer.Stop()
	}
	if e.TurnTimeout <= 0 {
		return
	}

	// Capture the ID only; the callback must not keep the room alive.
	roomID := room.ID
	g.timer = time.AfterFunc(e.TurnTimeout, func() {
		e.handleTimeout(roomID, gen)
	})
}

func (e *Engine) cancelTimerLocked(g *GameState) {
	g.timerGen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// handleTimeout is the timer callback. It can never fail visibly to a
// caller; it re-checks room liveness and the generation under the room
// mutex, announces the expiry and advances.
func (e *Engine) handleTimeout(roomID int, gen uint64) {
	room, ok := e.reg.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	g := room.Game
	if g == nil || room.Status != StatusPlaying || g.timerGen != gen {
		return
	}

	e.Logf("GAMES: Turn timed out for %q in room %d", g.Turn.PlayerName, roomID)
	e.bc.ToRoom(roomID, EventChallengeTimeout, TimeoutMessage{
		PlayerName: g.Turn.PlayerName,
		Round:      g.Round,
	})

	e.advanceTurnLocked(room)
}
