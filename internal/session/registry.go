package session

import "sync"

// Process-wide mapping from group id to live room state. Rooms are
// created lazily on first join and live for the life of the process;
// there is no delete operation.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Returns the room for groupID, creating it on first access. Safe
// against concurrent first access: all callers get the same record.
func (reg *Registry) GetOrCreate(groupID string) *Room {
	reg.mu.RLock()
	room, ok := reg.rooms[groupID]
	reg.mu.RUnlock()
	if ok {
		return room
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[groupID]; ok {
		return room
	}
	room = NewRoom(groupID)
	reg.rooms[groupID] = room
	return room
}

// Returns the room for groupID, or nil when no one has joined it yet.
func (reg *Registry) Get(groupID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[groupID]
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Read-only summary of one room, for the HTTP stats surface.
type RoomInfo struct {
	GroupID       string `json:"group_id"`
	PresenterID   string `json:"presenter_id,omitempty"`
	PresenterName string `json:"presenter_name,omitempty"`
	ActiveView    string `json:"active_view"`
	MemberCount   int    `json:"member_count"`
	BannedCount   int    `json:"banned_count"`
}

func infoOf(room *Room) RoomInfo {
	presenterID, presenterName := room.Presenter()
	return RoomInfo{
		GroupID:       room.GroupID(),
		PresenterID:   presenterID,
		PresenterName: presenterName,
		ActiveView:    string(room.View()),
		MemberCount:   room.MemberCount(),
		BannedCount:   room.BannedCount(),
	}
}

// Post-mutation snapshots of every known room.
func (reg *Registry) Snapshot() []RoomInfo {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	infos := make([]RoomInfo, len(rooms))
	for i, room := range rooms {
		infos[i] = infoOf(room)
	}
	return infos
}

// Snapshot of a single room; ok is false when the room does not exist.
func (reg *Registry) Info(groupID string) (RoomInfo, bool) {
	room := reg.Get(groupID)
	if room == nil {
		return RoomInfo{}, false
	}
	return infoOf(room), true
}
