package game

import "sync"

// Registry is the process-wide table of live rooms. Instances are
// injected into Lifecycle and Engine rather than shared ambiently, so
// tests can run isolated registries side by side.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int]*Room),
	}
}

func (r *Registry) Add(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room.ID] = room
}

func (r *Registry) Get(id int) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	return room, ok
}

func (r *Registry) Exists(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[id]
	return ok
}

func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, id)
}

func (r *Registry) List() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// ByConnection resolves which room a connection is currently in via a
// linear scan. Room and player counts are small enough that an index
// isn't worth maintaining.
func (r *Registry) ByConnection(connID string) (*Room, bool) {
	if connID == "" {
		return nil, false
	}

	for _, room := range r.List() {
		room.mu.Lock()
		found := room.playerByConn(connID) != nil
		room.mu.Unlock()

		if found {
			return room, true
		}
	}
	return nil, false
}
