package chat

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// RosterEntry is a known correspondent.
type RosterEntry struct {
	Name           string    `json:"name"`
	LastActionTime time.Time `json:"lastActionTime"`
	Kind           int       `json:"kind"`
}

// Room is a multi-member conversation the client has created or joined.
// Members always includes Owner.
type Room struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Members   []string  `json:"members"`
	Owner     string    `json:"owner"`
}

// HasMember reports whether name is a member of the room.
func (r Room) HasMember(name string) bool {
	for _, m := range r.Members {
		if m == name {
			return true
		}
	}
	return false
}

// normalizeRoom dedupes and sorts members and adds the owner.
func normalizeRoom(r Room) Room {
	seen := make(map[string]struct{}, len(r.Members)+1)
	members := make([]string, 0, len(r.Members)+1)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		members = append(members, name)
	}
	add(r.Owner)
	for _, m := range r.Members {
		add(m)
	}
	sort.Strings(members)
	r.Members = members
	return r
}

// RoomSaver receives the full room list whenever a room is added.
type RoomSaver interface {
	SaveRooms(rooms []Room) error
}

// Directory tracks the roster and the rooms, independent of message content.
// The roster is replaced wholesale; rooms only accumulate.
type Directory struct {
	mu     sync.RWMutex
	roster []RosterEntry
	rooms  map[string]Room
	saver  RoomSaver
	logger *slog.Logger
}

// NewDirectory creates an empty Directory. saver may be nil.
func NewDirectory(saver RoomSaver, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		rooms:  make(map[string]Room),
		saver:  saver,
		logger: logger,
	}
}

// ReplaceRoster discards the roster and installs entries. Later duplicates
// of a name win; order of first appearance is kept.
func (d *Directory) ReplaceRoster(entries []RosterEntry) {
	index := make(map[string]int, len(entries))
	roster := make([]RosterEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Name]; ok {
			roster[i] = e
			continue
		}
		index[e.Name] = len(roster)
		roster = append(roster, e)
	}

	d.mu.Lock()
	d.roster = roster
	d.mu.Unlock()
}

// Roster returns a copy of the roster.
func (d *Directory) Roster() []RosterEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RosterEntry, len(d.roster))
	copy(out, d.roster)
	return out
}

// Search returns the roster entries whose name contains query, ignoring
// case. It does not modify the roster.
func (d *Directory) Search(query string) []RosterEntry {
	query = strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RosterEntry, 0, len(d.roster))
	for _, e := range d.roster {
		if strings.Contains(strings.ToLower(e.Name), query) {
			out = append(out, e)
		}
	}
	return out
}

// LoadRooms installs rooms read at startup. It does not persist.
func (d *Directory) LoadRooms(rooms []Room) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rooms = make(map[string]Room, len(rooms))
	for _, r := range rooms {
		if r.Name == "" {
			continue
		}
		if _, ok := d.rooms[r.Name]; ok {
			continue
		}
		d.rooms[r.Name] = normalizeRoom(r)
	}
}

// UpsertRoom adds room unless a room with that name is already known; an
// existing room is left as it is. It reports whether the room was added.
func (d *Directory) UpsertRoom(room Room) bool {
	if room.Name == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[room.Name]; ok {
		return false
	}
	d.rooms[room.Name] = normalizeRoom(room)

	if d.saver != nil {
		if err := d.saver.SaveRooms(d.roomsLocked()); err != nil {
			d.logger.Warn("room_persist_failed", "room", room.Name, "error", err)
		}
	}
	return true
}

// Reset drops the roster and every room.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.roster = nil
	d.rooms = make(map[string]Room)
	if d.saver != nil {
		if err := d.saver.SaveRooms([]Room{}); err != nil {
			d.logger.Warn("room_persist_failed", "op", "reset", "error", err)
		}
	}
}

// IsRoom reports whether id names a known room.
func (d *Directory) IsRoom(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[id]
	return ok
}

// FindRoom returns the room named id.
func (d *Directory) FindRoom(id string) (Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[id]
	if !ok {
		return Room{}, false
	}
	r.Members = append([]string(nil), r.Members...)
	return r, true
}

// Rooms returns every known room sorted by name.
func (d *Directory) Rooms() []Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roomsLocked()
}

func (d *Directory) roomsLocked() []Room {
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		r.Members = append([]string(nil), r.Members...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
