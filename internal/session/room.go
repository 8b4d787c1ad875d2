package session

import (
	"encoding/json"
	"sync"
)

// The shared surface a room is currently presenting.
type View string

const (
	ViewBoard    View = "board"
	ViewNotebook View = "notebook"
	ViewResource View = "resource"
)

// Room-wide feature gates, mutable by staff only.
type Settings struct {
	NotebookLocked            bool `json:"notebookLocked"`
	PresentationLocked        bool `json:"presentationLocked"`
	VideoLocked               bool `json:"videoLocked"`
	ExerciseInteractionLocked bool `json:"exerciseInteractionLocked"`
}

// The currently broadcast shared content item and its navigation
// position, kept so late joiners can be brought onto the same surface.
type ResourceState struct {
	Type       string          `json:"type"`
	ResourceID string          `json:"resourceId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Index      int             `json:"index"`
	Flipped    bool            `json:"flipped"`
}

type member struct {
	role Role
	name string
}

// In-memory live-session state for one study group. Not persisted; a
// process restart loses it by design. All fields are private and mutated
// only through the methods below.
type Room struct {
	groupID string

	mu             sync.RWMutex
	presenterID    string
	presenterName  string
	activeView     View
	activeResource *ResourceState
	settings       Settings
	banned         map[string]struct{}
	members        map[string]member
}

func NewRoom(groupID string) *Room {
	return &Room{
		groupID:    groupID,
		activeView: ViewBoard,
		settings: Settings{
			// Exercises start locked; everything else starts open.
			ExerciseInteractionLocked: true,
		},
		banned:  make(map[string]struct{}),
		members: make(map[string]member),
	}
}

func (r *Room) GroupID() string {
	return r.groupID
}

// Presenter

func (r *Room) Presenter() (id, name string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presenterID, r.presenterName
}

func (r *Room) IsPresenter(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presenterID != "" && r.presenterID == participantID
}

func (r *Room) SetPresenter(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presenterID = id
	r.presenterName = name
}

// Clears the presenter slot. Returns false when it was already empty.
func (r *Room) ClearPresenter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presenterID == "" {
		return false
	}
	r.presenterID = ""
	r.presenterName = ""
	return true
}

// Clears the presenter slot only if participantID currently holds it.
// A release by anyone else is a stale-client race and leaves the room
// untouched.
func (r *Room) ReleaseBy(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presenterID == "" || r.presenterID != participantID {
		return false
	}
	r.presenterID = ""
	r.presenterName = ""
	return true
}

// View and resource

func (r *Room) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeView
}

// Switches the live surface to the notebook. The notebook carries no
// stored payload, so the active resource is dropped.
func (r *Room) FocusNotebook() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeView = ViewNotebook
	r.activeResource = nil
}

// Replaces the active resource wholesale and switches the live surface
// to it.
func (r *Room) LoadResource(rs ResourceState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs.Index = 0
	rs.Flipped = false
	r.activeView = ViewResource
	r.activeResource = &rs
}

// Updates only the navigation position of the active resource. Returns
// false when no resource of that type is loaded.
func (r *Room) AdvanceResource(resourceType string, index int, flipped bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeResource == nil || r.activeResource.Type != resourceType {
		return false
	}
	r.activeView = ViewResource
	r.activeResource.Index = index
	r.activeResource.Flipped = flipped
	return true
}

// Returns a copy of the active resource, if any.
func (r *Room) Resource() (ResourceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeResource == nil {
		return ResourceState{}, false
	}
	return *r.activeResource, true
}

// Settings

func (r *Room) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Applies a settings toggle by its wire name. Returns false for names
// outside the closed set.
func (r *Room) ApplySetting(name string, value bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch name {
	case "notebookLocked":
		r.settings.NotebookLocked = value
	case "presentationLocked":
		r.settings.PresentationLocked = value
	case "videoLocked":
		r.settings.VideoLocked = value
	case "exerciseInteractionLocked":
		r.settings.ExerciseInteractionLocked = value
	default:
		return false
	}
	return true
}

// Membership

// Records the latest known role and display name for a participant.
// Entries are kept for the room's lifetime, not pruned on disconnect.
func (r *Room) RememberMember(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id.ID] = member{role: id.Role, name: id.Name}
}

// Returns the last-known role of a participant, defaulting to member.
func (r *Room) MemberRole(participantID string) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.members[participantID]; ok && m.role != "" {
		return m.role
	}
	return RoleMember
}

func (r *Room) MemberName(participantID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[participantID].name
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Bans

func (r *Room) Ban(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned[participantID] = struct{}{}
}

// Removes a participant from the ban set. Returns false when they were
// not banned, so callers can avoid broadcasting a false unban.
func (r *Room) Unban(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.banned[participantID]; !ok {
		return false
	}
	delete(r.banned, participantID)
	return true
}

func (r *Room) IsBanned(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.banned[participantID]
	return ok
}

func (r *Room) ClearBans() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned = make(map[string]struct{})
}

func (r *Room) BannedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.banned)
}
