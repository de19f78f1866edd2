// Drinkster Game Server
//
// Players create or join a room, each stating a name, a sex and a
// difficulty preference. The room's first player is its admin. Once
// everyone is ready the admin starts the game, and the server deals
// personalized challenges drawn from a weighted difficulty pool, one
// turn at a time, tracking sips and multi-round drinking penalties.
//
// Features:
// - One WebSocket per client: /drinkster/ws, all control ops as JSON messages
// - Short numeric room IDs with server-side collision check
// - Persistent player IDs survive reconnects; sessions restore over a new socket
// - Per-player challenge detail, terse notices for bystanders, admin monitor channel
// - Turn timeout auto-skips idle players after a configurable delay
// - Idle rooms auto-reaped after a configurable timeout
// - In-browser QR code to share a room's join link, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/drinkster/game"
)

//go:embed challenges.json
var defaultChallenges []byte

// clientMessage is the envelope for everything clients send. Type
// decides which of the optional fields matter.
type clientMessage struct {
	Type     string             `json:"type"`                // see dispatch
	Room     *game.RoomConfig   `json:"room,omitempty"`      // create_room
	Player   *game.PlayerConfig `json:"player,omitempty"`    // join_room
	RoomID   int                `json:"room_id,omitempty"`   // everything room-scoped
	TargetID string             `json:"target_id,omitempty"` // kick / set_difficulty
	PlayerID string             `json:"player_id,omitempty"` // restore
	Weights  *game.Weights      `json:"weights,omitempty"`   // set_difficulty
}

// serverMessage is the envelope for everything sent to clients.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// errorMessage carries a caller-facing failure back to the client that
// triggered it.
type errorMessage struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// roomStateMessage answers create/join/restore with the full room view
// plus the caller's persistent ID for later reconnects.
type roomStateMessage struct {
	game.RoomSnapshot
	PlayerID string `json:"your_id"`
}

type playerEventMessage struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type client struct {
	conn   *websocket.Conn
	send   chan serverMessage
	connID string
	roomID int // guarded by server.mu
}

// server owns the registry, the per-connection client table and the
// Broadcaster implementation the engine pushes through.
type server struct {
	cfg       *Config
	registry  *game.Registry
	lifecycle *game.Lifecycle
	engine    *game.Engine

	mu      sync.RWMutex
	clients map[string]*client
}

func newServer(cfg *Config, repo game.ChallengeRepository) *server {
	registry := game.NewRegistry()

	s := &server{
		cfg:      cfg,
		registry: registry,
		clients:  make(map[string]*client),
	}

	plainLogf := func(format string, args ...any) {
		logf(cfg, format, args...)
	}

	s.lifecycle = game.NewLifecycle(registry)
	s.lifecycle.Logf = plainLogf

	s.engine = game.NewEngine(registry, repo, s)
	s.engine.Logf = plainLogf
	s.engine.TurnTimeout = cfg.turnTimeout
	s.lifecycle.TurnVacated = s.engine.VacateTurn

	if cfg.sessionTimeout > 0 {
		go s.reaperLoop()
	}

	return s
}

// trySend queues msg for c without blocking. The send happens under the
// read lock so a concurrent drop (which closes the channel under the
// write lock) cannot interleave; full channels get the client dropped.
func (s *server) trySend(c *client, msg serverMessage) {
	s.mu.RLock()
	_, live := s.clients[c.connID]
	full := false
	if live {
		select {
		case c.send <- msg:
		default:
			full = true
		}
	}
	s.mu.RUnlock()

	if full {
		s.drop(c)
	}
}

// ToPlayer implements game.Broadcaster. Slow clients are dropped rather
// than blocking the engine.
func (s *server) ToPlayer(connID string, event string, payload any) {
	s.mu.RLock()
	c := s.clients[connID]
	s.mu.RUnlock()

	if c == nil {
		return
	}

	s.trySend(c, serverMessage{Type: event, Data: payload})
}

// ToRoom implements game.Broadcaster. Membership is resolved from the
// client table, not the room, so the engine may call this while holding
// a room's lock.
func (s *server) ToRoom(roomID int, event string, payload any) {
	msg := serverMessage{Type: event, Data: payload}

	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.roomID == roomID {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		s.trySend(c, msg)
	}
}

func (s *server) reply(c *client, event string, payload any) {
	s.trySend(c, serverMessage{Type: event, Data: payload})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrValidation):
		return "validation"
	case errors.Is(err, game.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, game.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, game.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, game.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, game.ErrNotReady):
		return "not_ready"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	}
	return "error"
}

func (s *server) sendError(c *client, op string, err error) {
	s.reply(c, "error", errorMessage{
		Op:      op,
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

func (s *server) setRoom(c *client, roomID int) {
	s.mu.Lock()
	c.roomID = roomID
	s.mu.Unlock()
}

func (s *server) register(c *client) {
	s.mu.Lock()
	s.clients[c.connID] = c
	s.mu.Unlock()
}

func (s *server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.connID]; ok {
		delete(s.clients, c.connID)
		close(c.send)
	}
	s.mu.Unlock()
}

// unregister tears a connection down: the client table entry goes away
// immediately, the player entry sticks around for the reconnect grace
// period.
func (s *server) unregister(c *client) {
	s.drop(c)

	for _, d := range s.lifecycle.DropConnection(c.connID) {
		s.lifecycle.ScheduleRemoval(d.RoomID, d.PlayerID, s.cfg.playerTimeout)
	}
}

func (s *server) dispatch(c *client, msg clientMessage) {
	switch msg.Type {
	case "create_room":
		if msg.Room == nil {
			s.sendError(c, msg.Type, game.ErrValidation)
			return
		}
		room, err := s.lifecycle.CreateRoom(*msg.Room, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.setRoom(c, room.ID)
		snap := room.Snapshot()
		s.reply(c, "room_created", roomStateMessage{
			RoomSnapshot: snap,
			PlayerID:     snap.Players[0].ID,
		})

	case "join_room":
		if msg.Player == nil {
			s.sendError(c, msg.Type, game.ErrValidation)
			return
		}
		player, err := s.lifecycle.Join(msg.RoomID, *msg.Player, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.setRoom(c, msg.RoomID)
		s.ToRoom(msg.RoomID, "player_joined", playerEventMessage{
			PlayerID:   player.ID,
			PlayerName: player.Name,
		})
		if room, ok := s.registry.Get(msg.RoomID); ok {
			s.reply(c, "room_joined", roomStateMessage{
				RoomSnapshot: room.Snapshot(),
				PlayerID:     player.ID,
			})
		}

	case "ready", "unready":
		if err := s.lifecycle.SetReady(msg.RoomID, c.connID, msg.Type == "ready"); err != nil {
			s.sendError(c, msg.Type, err)
		}

	case "kick":
		removed, err := s.lifecycle.Kick(msg.RoomID, msg.TargetID, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.evict(removed.ConnID)
		s.ToRoom(msg.RoomID, "player_left", playerEventMessage{
			PlayerID:   removed.ID,
			PlayerName: removed.Name,
		})

	case "start_game":
		turn, err := s.engine.Start(msg.RoomID, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.reply(c, "turn", turn)

	case "challenge_completed", "challenge_drunk":
		turn, err := s.engine.Complete(msg.RoomID, c.connID, msg.Type == "challenge_drunk")
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.reply(c, "turn", turn)

	case "force_skip":
		turn, err := s.engine.ForceSkip(msg.RoomID, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.reply(c, "turn", turn)

	case "end_game":
		if err := s.engine.End(msg.RoomID, c.connID); err != nil {
			s.sendError(c, msg.Type, err)
		}

	case "set_difficulty":
		if msg.Weights == nil {
			s.sendError(c, msg.Type, game.ErrValidation)
			return
		}
		if err := s.lifecycle.SetWeights(msg.RoomID, msg.TargetID, c.connID, *msg.Weights); err != nil {
			s.sendError(c, msg.Type, err)
		}

	case "restore":
		snap, err := game.Restore(s.registry, msg.PlayerID, c.connID)
		if err != nil {
			s.sendError(c, msg.Type, err)
			return
		}
		s.setRoom(c, snap.ID)
		s.reply(c, "session_restored", roomStateMessage{
			RoomSnapshot: snap,
			PlayerID:     msg.PlayerID,
		})

	default:
		// ignore unknown types
	}
}

// evict notifies and disconnects a kicked player's live connection.
func (s *server) evict(connID string) {
	if connID == "" {
		return
	}

	s.mu.RLock()
	c := s.clients[connID]
	s.mu.RUnlock()

	if c == nil {
		return
	}

	s.setRoom(c, 0)
	s.reply(c, "kicked", errorMessage{
		Op:      "kick",
		Code:    "kicked",
		Message: "You have been removed by the admin.",
	})
}

func (s *server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		s.dispatch(c, msg)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// reaperLoop periodically removes rooms idle longer than the session
// timeout, cancelling their timers first.
func (s *server) reaperLoop() {
	ticker := time.NewTicker(s.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-s.cfg.sessionTimeout)

		for _, room := range s.registry.List() {
			if room.IdleSince().Before(cutoff) {
				s.engine.Release(room.ID)
				s.registry.Remove(room.ID)
				logf(s.cfg, "ROOMS: Reaped idle room %d", room.ID)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newConnID generates the transient identity for one websocket
// connection. Distinct from the persistent player ID, which survives
// reconnects.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

func serveWS(cfg *Config, srv *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		connID := newConnID()
		if connID == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		c := &client{
			conn:   conn,
			send:   make(chan serverMessage, 8),
			connID: connID,
		}

		srv.register(c)

		go c.writePump()
		srv.readPump(c)
	}
}

// serveRooms lists joinable rooms as JSON.
func serveRooms(cfg *Config, srv *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(srv.lifecycle.ListRooms())
	}
}

// qrHandler generates a PNG QR code linking to a room, for passing a
// phone around the table.
func qrHandler(cfg *Config, srv *server, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID, err := strconv.Atoi(ps.ByName("roomid"))
		if err != nil || !srv.registry.Exists(roomID) {
			http.Error(w, "unknown room", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + path + "/" + strconv.Itoa(roomID)

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerDrinksterGame sets up routes so that:
//   - $path/rooms       → JSON list of joinable rooms
//   - $path/ws          → WebSocket carrying all game operations
//   - $path/qr/:roomid  → PNG QR code linking to that room
func registerDrinksterGame(cfg *Config, path string, mux *httprouter.Router, repo game.ChallengeRepository) {
	srv := newServer(cfg, repo)

	mux.GET(cfg.prefix+path+"/rooms", serveRooms(cfg, srv))

	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, srv))

	mux.GET(cfg.prefix+path+"/qr/:roomid", qrHandler(cfg, srv, path))
}
