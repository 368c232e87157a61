package realtime

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	client      *Client
	rooms       map[string]struct{}
	location    *Location
	stop        func()
	connectedAt time.Time
}

func (e *entry) view() Entry {
	out := Entry{
		Client:      e.client,
		Rooms:       make([]string, 0, len(e.rooms)),
		ConnectedAt: e.connectedAt,
	}
	for r := range e.rooms {
		out.Rooms = append(out.Rooms, r)
	}
	sort.Strings(out.Rooms)
	if e.location != nil {
		loc := *e.location
		out.Location = &loc
	}
	return out
}

// Registry is the table of live connections. Membership is mirrored in a
// room -> ids index and both sides change under the same lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	rooms   map[string]map[string]struct{}
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.L()
	}
	return &Registry{
		entries: make(map[string]*entry),
		rooms:   make(map[string]map[string]struct{}),
		logger:  logger.Named("registry"),
	}
}

// Register adds c with no rooms and no location. Registering an id twice
// replaces the previous entry.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	old := r.entries[c.ID]
	if old != nil {
		r.dropMemberships(c.ID, old)
	}
	r.entries[c.ID] = &entry{
		client:      c,
		rooms:       make(map[string]struct{}),
		connectedAt: time.Now(),
	}
	r.mu.Unlock()

	if old != nil && old.stop != nil {
		old.stop()
	}
	r.logger.Debug("connection registered", zap.String("conn_id", c.ID))
}

// AddRoom puts id in room. Unknown ids are ignored.
func (r *Registry) AddRoom(id, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.rooms[room] = struct{}{}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
}

// RemoveRoom takes id out of room. Leaving a room never joined is a no-op.
func (r *Registry) RemoveRoom(id, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(e.rooms, room)
	r.unindex(id, room)
}

// SetLocation replaces the location subscription of id.
func (r *Registry) SetLocation(id string, loc Location) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.location = &loc
	}
}

// SetHeartbeat attaches the release func of the connection's timer. It
// returns false when id is unknown; the caller then owns stop.
func (r *Registry) SetHeartbeat(id string, stop func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.stop = stop
	return true
}

// Remove deletes id with all its memberships and releases its timer.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		r.dropMemberships(id, e)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if e.stop != nil {
		e.stop()
	}
	r.logger.Debug("connection removed", zap.String("conn_id", id))
	return true
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.view(), true
}

// Members returns the clients currently in room.
func (r *Registry) Members(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rooms[room]
	out := make([]*Client, 0, len(ids))
	for id := range ids {
		if e, ok := r.entries[id]; ok {
			out = append(out, e.client)
		}
	}
	return out
}

// Clients returns every registered client.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.client)
	}
	return out
}

// ForEach calls fn for a snapshot of all entries, so fn may remove
// connections. Returning false stops the iteration.
func (r *Registry) ForEach(fn func(Entry) bool) {
	for _, e := range r.Snapshot() {
		if !fn(e) {
			return
		}
	}
}

// Snapshot copies all entries.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.view())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SnapshotView is the JSON shape served by /api/live.
func (r *Registry) SnapshotView() []map[string]any {
	snap := r.Snapshot()
	sort.Slice(snap, func(i, j int) bool { return snap[i].ConnectedAt.Before(snap[j].ConnectedAt) })

	out := make([]map[string]any, 0, len(snap))
	for _, e := range snap {
		item := map[string]any{
			"id":          e.Client.ID,
			"rooms":       e.Rooms,
			"connectedAt": e.ConnectedAt,
		}
		if e.Location != nil {
			item["location"] = e.Location
		}
		out = append(out, item)
	}
	return out
}

// caller holds r.mu
func (r *Registry) dropMemberships(id string, e *entry) {
	for room := range e.rooms {
		r.unindex(id, room)
	}
}

// caller holds r.mu
func (r *Registry) unindex(id, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
