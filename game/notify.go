package game

// Event names pushed through the Broadcaster.
const (
	EventChallenge        = "challenge"          // private, full detail
	EventChallengeNotice  = "challenge_notice"   // terse, everyone else
	EventChallengeAll     = "challenge_everyone" // room-wide
	EventChallengeTimeout = "challenge_timeout"
	EventAdminChallenge   = "admin_challenge"
	EventGameStarted      = "game_started"
	EventGameEnded        = "game_ended"
)

// Broadcaster is the notification gateway the engine pushes through.
// Both operations are fire-and-forget; delivery is best effort and the
// engine never blocks on it.
type Broadcaster interface {
	ToRoom(roomID int, event string, payload any)
	ToPlayer(connID string, event string, payload any)
}

// NopBroadcaster discards everything. Useful in tests that only care
// about state transitions.
type NopBroadcaster struct{}

func (NopBroadcaster) ToRoom(int, string, any)      {}
func (NopBroadcaster) ToPlayer(string, string, any) {}

// ChallengeMessage is the full-detail event sent to the current player
// (and, when the room shows challenges to others, to the second player
// named by the challenge).
type ChallengeMessage struct {
	PlayerID   string     `json:"player_id"`
	PlayerName string     `json:"player_name"`
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty"`
	Sips       int        `json:"sips"`
	Round      int        `json:"round"`
	Penalties  []Penalty  `json:"penalties,omitempty"` // recipient's own
}

// NoticeMessage is the terse event every bystander receives, carrying
// their own penalties so the countdown stays visible off-turn.
type NoticeMessage struct {
	PlayerName string    `json:"player_name"`
	Round      int       `json:"round"`
	Penalties  []Penalty `json:"penalties,omitempty"`
}

// EveryoneMessage is the single room-wide event used when a challenge
// targets the whole room instead of one player.
type EveryoneMessage struct {
	Text  string `json:"text"`
	Sips  int    `json:"sips"`
	Round int    `json:"round"`
}

// AdminChallengeMessage always reaches the admin, regardless of the
// room's show-challenges setting.
type AdminChallengeMessage struct {
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
	Round      int    `json:"round"`
}

// TimeoutMessage announces an expired turn before it is skipped.
type TimeoutMessage struct {
	PlayerName string `json:"player_name"`
	Round      int    `json:"round"`
}

// StartedMessage announces the game start and the opening player.
type StartedMessage struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type EndedMessage struct {
	RoomID int `json:"room_id"`
}

// sendCurrentChallengeLocked fans the cached turn out per the
// visibility rules. Caller holds room.mu.
func (e *Engine) sendCurrentChallengeLocked(room *Room) {
	g := room.Game
	if g == nil {
		return
	}
	turn := g.Turn

	if turn.Everyone {
		e.bc.ToRoom(room.ID, EventChallengeAll, EveryoneMessage{
			Text:  turn.Text,
			Sips:  turn.Sips,
			Round: g.Round,
		})
	} else {
		current := room.playerByID(turn.PlayerID)

		for _, p := range room.Players {
			if p.ConnID == "" {
				continue
			}

			switch {
			case p == current:
				e.bc.ToPlayer(p.ConnID, EventChallenge, ChallengeMessage{
					PlayerID:   p.ID,
					PlayerName: p.Name,
					Text:       turn.Text,
					Difficulty: turn.Difficulty,
					Sips:       turn.Sips,
					Round:      g.Round,
					Penalties:  p.Penalties,
				})
			case room.ShowOthers && g.pending2ID != "" && p.ID == g.pending2ID:
				e.bc.ToPlayer(p.ConnID, EventChallenge, ChallengeMessage{
					PlayerID:   turn.PlayerID,
					PlayerName: turn.PlayerName,
					Text:       turn.Text,
					Difficulty: turn.Difficulty,
					Sips:       turn.Sips,
					Round:      g.Round,
					Penalties:  p.Penalties,
				})
			default:
				e.bc.ToPlayer(p.ConnID, EventChallengeNotice, NoticeMessage{
					PlayerName: turn.PlayerName,
					Round:      g.Round,
					Penalties:  p.Penalties,
				})
			}
		}
	}

	// The admin channel always carries the raw text, bypassing both the
	// show-challenges setting and the room-wide shortcut, so the admin
	// can monitor and override every turn.
	if admin := room.admin(); admin != nil && admin.ConnID != "" {
		e.bc.ToPlayer(admin.ConnID, EventAdminChallenge, AdminChallengeMessage{
			PlayerName: turn.PlayerName,
			Text:       turn.Text,
			Round:      g.Round,
		})
	}
}
