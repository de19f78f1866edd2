package game

// RoomSnapshot is the JSON-stable view handed to reconnecting clients.
// Round-tripping a snapshot preserves the player list, the round
// counter and the current-turn record exactly.
type RoomSnapshot struct {
	ID         int              `json:"id"`
	Name       string           `json:"name"`
	Status     Status           `json:"status"`
	Mode       Mode             `json:"mode"`
	Private    bool             `json:"private"`
	ShowOthers bool             `json:"show_others"`
	Players    []PlayerSnapshot `json:"players"`
	Round      int              `json:"round,omitempty"`
	Turn       *TurnInfo        `json:"turn,omitempty"`
}

type PlayerSnapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sex       Sex       `json:"sex"`
	Admin     bool      `json:"admin"`
	Ready     bool      `json:"ready"`
	Online    bool      `json:"online"`
	Penalties []Penalty `json:"penalties,omitempty"`
}

// Snapshot captures the room under its own lock.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() RoomSnapshot {
	snap := RoomSnapshot{
		ID:         r.ID,
		Name:       r.Name,
		Status:     r.Status,
		Mode:       r.Mode,
		Private:    r.Private,
		ShowOthers: r.ShowOthers,
		Players:    make([]PlayerSnapshot, 0, len(r.Players)),
	}

	for _, p := range r.Players {
		// Left nil when empty so snapshots survive a JSON round trip intact.
		var penalties []Penalty
		if len(p.Penalties) > 0 {
			penalties = make([]Penalty, len(p.Penalties))
			copy(penalties, p.Penalties)
		}

		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Sex:       p.Sex,
			Admin:     p.Admin,
			Ready:     p.Ready,
			Online:    p.ConnID != "",
			Penalties: penalties,
		})
	}

	if r.Game != nil {
		snap.Round = r.Game.Round
		turn := r.Game.Turn
		snap.Turn = &turn
	}

	return snap
}

// Restore rebinds a reconnecting player's persistent ID to a fresh
// connection and returns the room snapshot they need to resume. The
// old connection, if any, is superseded.
func Restore(reg *Registry, persistentID, connID string) (RoomSnapshot, error) {
	for _, room := range reg.List() {
		room.mu.Lock()
		player := room.playerByID(persistentID)
		if player == nil {
			room.mu.Unlock()
			continue
		}

		player.ConnID = connID
		room.touchLocked()
		snap := room.snapshotLocked()
		room.mu.Unlock()

		return snap, nil
	}

	return RoomSnapshot{}, ErrPlayerNotFound
}
