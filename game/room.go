// Drinkster room lifecycle.
//
// Rooms are created in the waiting state, admit players until the game
// starts, and are keyed by a short numeric ID drawn from a bounded
// range. The first player to join a room is its admin for the room's
// whole life; there is no admin transfer. Each room carries its own
// mutex (never a global one), so unrelated rooms never serialize.

package game

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

type Mode string

const (
	ModeNormal Mode = "normal" // sequential turn order
	ModeRandom Mode = "random" // uniform random next player
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	roomIDMin = 1000
	roomIDMax = 9999

	// Bounds for the remembered-challenge window.
	windowMax = 500

	weightTolerance = 1e-5
)

// Weights holds a player's difficulty preference for
// easy/medium/hard/extreme, expected to sum to 1.
type Weights [4]float64

func (w Weights) valid() bool {
	sum := 0.0
	for _, v := range w {
		if v < 0 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= weightTolerance
}

// Penalty is a deferred drinking obligation, decremented once per turn
// advance and discarded when it reaches zero.
type Penalty struct {
	Text   string `json:"text"`
	Rounds int    `json:"rounds"`
}

// Player identity is split in two: ID is generated once at join time
// and survives reconnects, ConnID changes on every reconnect and is
// empty while the player is disconnected. Never conflate the two.
type Player struct {
	ID        string    `json:"id"`
	ConnID    string    `json:"-"`
	Name      string    `json:"name"`
	Sex       Sex       `json:"sex"`
	Weights   Weights   `json:"weights"`
	Admin     bool      `json:"admin"`
	Ready     bool      `json:"ready"`
	Penalties []Penalty `json:"penalties,omitempty"`
}

type Room struct {
	mu sync.Mutex

	ID         int
	Name       string
	Private    bool
	Password   string
	Mode       Mode
	Window     int // remembered-challenge window size
	ShowOthers bool
	Status     Status
	CreatedAt  time.Time
	LastActive time.Time

	// Join order; index 0 is the admin. Guarded by mu.
	Players []*Player

	// Present only while Status is StatusPlaying. Guarded by mu.
	Game *GameState
}

func (r *Room) touchLocked() {
	r.LastActive = time.Now()
}

// IdleSince reports the last mutation time, for the idle reaper.
func (r *Room) IdleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.LastActive
}

// playerByConn resolves the caller of a "current caller" action.
func (r *Room) playerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// playerByID resolves admin-action targets and reconnecting sessions.
func (r *Room) playerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) admin() *Player {
	for _, p := range r.Players {
		if p.Admin {
			return p
		}
	}
	return nil
}

// RoomConfig is the payload for room creation. Player describes the
// creating player, who becomes the room's admin.
type RoomConfig struct {
	Name       string       `json:"name"`
	Private    bool         `json:"private"`
	Password   string       `json:"password,omitempty"`
	Mode       Mode         `json:"mode"`
	Window     int          `json:"window"`
	ShowOthers bool         `json:"show_others"`
	Player     PlayerConfig `json:"player"`
}

type PlayerConfig struct {
	Name     string   `json:"name"`
	Sex      Sex      `json:"sex"`
	Weights  *Weights `json:"weights"`
	Password string   `json:"password,omitempty"` // join only, private rooms
}

// RoomSummary is the projection exposed by room listings.
type RoomSummary struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Status  Status `json:"status"`
	Private bool   `json:"private"`
}

// Lifecycle validates configuration, creates rooms, and manages
// membership and ready state. All state lives in the injected Registry.
type Lifecycle struct {
	reg *Registry

	// Logf receives best-effort diagnostics; defaults to discard.
	Logf func(format string, args ...any)

	// TurnVacated, when set, is invoked under the room's mutex after
	// the player holding the current turn is removed mid-game, so the
	// turn can be redealt instead of stalling until the timeout.
	TurnVacated func(room *Room)
}

func NewLifecycle(reg *Registry) *Lifecycle {
	return &Lifecycle{
		reg:  reg,
		Logf: func(string, ...any) {},
	}
}

func validatePlayer(cfg PlayerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: player name required", ErrValidation)
	}
	if cfg.Sex != SexMale && cfg.Sex != SexFemale {
		return fmt.Errorf("%w: player sex required", ErrValidation)
	}
	if cfg.Weights == nil {
		return fmt.Errorf("%w: difficulty weights required", ErrValidation)
	}
	if !cfg.Weights.valid() {
		return fmt.Errorf("%w: difficulty weights must be non-negative and sum to 1", ErrValidation)
	}
	return nil
}

func validateRoom(cfg RoomConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: room name required", ErrValidation)
	}
	if cfg.Private && cfg.Password == "" {
		return fmt.Errorf("%w: private rooms require a password", ErrValidation)
	}
	if cfg.Window < 0 || cfg.Window > windowMax {
		return fmt.Errorf("%w: remembered-challenge window must be between 0 and %d", ErrValidation, windowMax)
	}
	if cfg.Mode != ModeNormal && cfg.Mode != ModeRandom {
		return fmt.Errorf("%w: game mode required", ErrValidation)
	}
	return validatePlayer(cfg.Player)
}

func newPlayer(cfg PlayerConfig, connID string, admin bool) *Player {
	return &Player{
		ID:      uuid.NewString(),
		ConnID:  connID,
		Name:    cfg.Name,
		Sex:     cfg.Sex,
		Weights: *cfg.Weights,
		Admin:   admin,
	}
}

// newRoomID draws crypto-random numeric IDs until one doesn't collide
// with a live room. The range is four orders of magnitude larger than
// any plausible room count, so the loop terminates quickly.
func (l *Lifecycle) newRoomID() int {
	span := int64(roomIDMax - roomIDMin + 1)
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		id := roomIDMin + int(n.Int64())
		if !l.reg.Exists(id) {
			return id
		}
	}
}

// CreateRoom validates cfg, allocates a unique room ID and registers a
// new waiting room whose only player is the (not ready) admin.
func (l *Lifecycle) CreateRoom(cfg RoomConfig, connID string) (*Room, error) {
	if err := validateRoom(cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	room := &Room{
		ID:         l.newRoomID(),
		Name:       cfg.Name,
		Private:    cfg.Private,
		Password:   cfg.Password,
		Mode:       cfg.Mode,
		Window:     cfg.Window,
		ShowOthers: cfg.ShowOthers,
		Status:     StatusWaiting,
		CreatedAt:  now,
		LastActive: now,
		Players:    []*Player{newPlayer(cfg.Player, connID, true)},
	}

	l.reg.Add(room)
	l.Logf("ROOMS: Created room %d (%q) for %q", room.ID, room.Name, cfg.Player.Name)

	return room, nil
}

// Join appends a new non-admin, not-ready player to a waiting room.
func (l *Lifecycle) Join(roomID int, cfg PlayerConfig, connID string) (*Player, error) {
	room, ok := l.reg.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: room %d is %s", ErrInvalidState, roomID, room.Status)
	}
	if err := validatePlayer(cfg); err != nil {
		return nil, err
	}
	if room.Private && cfg.Password != room.Password {
		return nil, fmt.Errorf("%w: wrong room password", ErrValidation)
	}

	player := newPlayer(cfg, connID, false)
	room.Players = append(room.Players, player)
	room.touchLocked()
	l.Logf("ROOMS: Player %q joined room %d", cfg.Name, roomID)

	return player, nil
}

// Kick removes a player by persistent ID and returns the removed entry
// so the caller can notify them. Only the admin may kick, and the admin
// cannot be kicked (not even by themselves via this path).
func (l *Lifecycle) Kick(roomID int, targetID, requesterConn string) (*Player, error) {
	room, ok := l.reg.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	requester := room.playerByConn(requesterConn)
	if requester == nil || !requester.Admin {
		return nil, ErrPermissionDenied
	}

	target := room.playerByID(targetID)
	if target == nil {
		return nil, ErrPlayerNotFound
	}
	if target.Admin {
		return nil, fmt.Errorf("%w: the admin cannot be removed", ErrPermissionDenied)
	}

	room.removePlayerLocked(target)
	l.turnVacatedLocked(room, target)
	room.touchLocked()
	l.Logf("ROOMS: Player %q removed from room %d", target.Name, roomID)

	return target, nil
}

// turnVacatedLocked fires the TurnVacated hook when removed held the
// current turn. Caller holds room.mu.
func (l *Lifecycle) turnVacatedLocked(room *Room, removed *Player) {
	if l.TurnVacated == nil || room.Game == nil || len(room.Players) == 0 {
		return
	}
	if room.Game.Turn.PlayerID == removed.ID {
		l.TurnVacated(room)
	}
}

// removePlayerLocked drops p from the player list and keeps the current
// turn pointer stable for everyone still in the game.
func (r *Room) removePlayerLocked(p *Player) {
	idx := -1
	for i, other := range r.Players {
		if other == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	if r.Game != nil && len(r.Players) > 0 {
		if idx < r.Game.Current {
			r.Game.Current--
		}
		r.Game.Current %= len(r.Players)
	}
}

// SetReady flips the caller's ready flag. No effect on game state.
func (l *Lifecycle) SetReady(roomID int, connID string, ready bool) error {
	room, ok := l.reg.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	player := room.playerByConn(connID)
	if player == nil {
		return ErrPlayerNotFound
	}

	player.Ready = ready
	room.touchLocked()

	return nil
}

// Dropped identifies a player whose connection just went away.
type Dropped struct {
	RoomID   int
	PlayerID string
}

// DropConnection detaches connID wherever it is bound and reports the
// affected players. The player entries survive so sessions can be
// restored under a new connection; callers wanting eventual removal
// follow up with ScheduleRemoval. Best-effort: unknown connections are
// a silent no-op.
func (l *Lifecycle) DropConnection(connID string) []Dropped {
	var affected []Dropped

	for _, room := range l.reg.List() {
		room.mu.Lock()
		if p := room.playerByConn(connID); p != nil {
			p.ConnID = ""
			room.touchLocked()
			affected = append(affected, Dropped{RoomID: room.ID, PlayerID: p.ID})
		}
		room.mu.Unlock()
	}

	return affected
}

// ScheduleRemoval gives a disconnected player a grace period to
// reconnect before RemoveIfDisconnected takes effect.
func (l *Lifecycle) ScheduleRemoval(roomID int, playerID string, after time.Duration) {
	if after <= 0 {
		l.RemoveIfDisconnected(roomID, playerID)
		return
	}
	time.AfterFunc(after, func() {
		l.RemoveIfDisconnected(roomID, playerID)
	})
}

// RemoveIfDisconnected removes the player if they still have no live
// connection, mirroring the grace period given to reconnecting players.
// Admins are never auto-removed; their room is reaped as a whole once
// idle. Rooms left empty are dropped from the registry.
func (l *Lifecycle) RemoveIfDisconnected(roomID int, playerID string) {
	room, ok := l.reg.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()

	player := room.playerByID(playerID)
	if player == nil || player.ConnID != "" || player.Admin {
		room.mu.Unlock()
		return
	}

	room.removePlayerLocked(player)
	l.turnVacatedLocked(room, player)
	room.touchLocked()
	empty := len(room.Players) == 0
	room.mu.Unlock()

	l.Logf("ROOMS: Player %q timed out of room %d", player.Name, roomID)

	if empty {
		l.reg.Remove(roomID)
		l.Logf("ROOMS: Removed empty room %d", roomID)
	}
}

// SetWeights replaces a player's difficulty weighting. Admin only;
// takes effect from the target's next challenge selection.
func (l *Lifecycle) SetWeights(roomID int, targetID, requesterConn string, w Weights) error {
	room, ok := l.reg.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	requester := room.playerByConn(requesterConn)
	if requester == nil || !requester.Admin {
		return ErrPermissionDenied
	}

	target := room.playerByID(targetID)
	if target == nil {
		return ErrPlayerNotFound
	}
	if !w.valid() {
		return fmt.Errorf("%w: difficulty weights must be non-negative and sum to 1", ErrValidation)
	}

	target.Weights = w
	room.touchLocked()

	return nil
}

// ListRooms returns summaries of every room that hasn't finished.
func (l *Lifecycle) ListRooms() []RoomSummary {
	rooms := l.reg.List()
	summaries := make([]RoomSummary, 0, len(rooms))

	for _, room := range rooms {
		room.mu.Lock()
		if room.Status != StatusFinished {
			summaries = append(summaries, RoomSummary{
				ID:      room.ID,
				Name:    room.Name,
				Players: len(room.Players),
				Status:  room.Status,
				Private: room.Private,
			})
		}
		room.mu.Unlock()
	}

	return summaries
}
