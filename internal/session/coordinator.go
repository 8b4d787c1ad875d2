package session

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// One connected participant, as seen by the coordinator. Implemented by
// ws.Client and by test doubles.
type Peer interface {
	Identity() Identity
	// The group this connection has joined, or "" before join-group.
	GroupID() string
	// Enqueues a frame for this connection only. Never blocks.
	Deliver(frame []byte)
}

// Fan-out transport for coordinator events. Implemented by ws.Hub.
type Broadcaster interface {
	ToRoom(groupID string, frame []byte)
	ToOthers(groupID string, sender Peer, frame []byte)
	ToParticipant(groupID, participantID string, frame []byte)
}

// Arbitrates presenter control, view-state sync, and moderation for all
// live study-group rooms. Every event is handled to completion before
// the next one: the transport invokes Join, HandleEvent and Disconnect
// from a single dispatch goroutine.
type Coordinator struct {
	registry *Registry
	cast     Broadcaster
	log      *logrus.Entry
}

func NewCoordinator(registry *Registry, cast Broadcaster) *Coordinator {
	return &Coordinator{
		registry: registry,
		cast:     cast,
		log:      logrus.WithField("component", "session"),
	}
}

// Encodes an outbound frame. Payload types are all static, so a marshal
// failure means a programming error; it is logged and the event dropped.
func (c *Coordinator) frame(event string, data any) []byte {
	b, err := EncodeEvent(event, data)
	if err != nil {
		c.log.WithError(err).WithField("event", event).Error("failed to encode outbound event")
		return nil
	}
	return b
}

// Brings a participant into a room, creating it on first join. The
// transport must already have subscribed the peer to the room channel,
// banned participants included (they have to hear a later unban).
func (c *Coordinator) Join(p Peer, groupID string) {
	room := c.registry.GetOrCreate(groupID)
	id := p.Identity()
	room.RememberMember(id)

	logCtx := c.log.WithFields(logrus.Fields{"group_id": groupID, "user_id": id.ID})

	if room.IsBanned(id.ID) {
		// No snapshot for banned joiners, only the kicked signal.
		p.Deliver(c.frame(EvtKickedState, kickedState{IsKicked: true}))
		logCtx.Info("banned participant rejoined")
		return
	}

	c.cast.ToOthers(groupID, p, c.frame(EvtUserConnected, userConnected{
		ID:   id.ID,
		Name: id.Name,
		Role: id.Role,
	}))

	if presenterID, presenterName := room.Presenter(); presenterID != "" {
		p.Deliver(c.frame(EvtControlChanged, controlChanged{
			PresenterID:   presenterID,
			PresenterName: presenterName,
			Message: &SystemMessage{
				Key:    "session_active",
				Params: map[string]string{"name": presenterName},
			},
		}))
	}

	p.Deliver(c.frame(EvtSyncSettings, room.Settings()))

	// Late-join consistency: put the joiner on the surface everyone
	// else is already watching.
	if room.View() == ViewResource {
		if rs, ok := room.Resource(); ok {
			p.Deliver(c.frame(EvtSyncResource, loadSyncOf(rs, "")))
		}
	}

	logCtx.WithField("role", id.Role).Info("participant joined")
}

// Routes one inbound event from an already-joined peer. Unknown events,
// malformed payloads, group mismatches and unauthorized actions are all
// dropped without an error to the sender.
func (c *Coordinator) HandleEvent(p Peer, event string, data json.RawMessage) {
	groupID := p.GroupID()
	if groupID == "" {
		return
	}
	room := c.registry.Get(groupID)
	if room == nil {
		return
	}

	// Events are room-scoped on the wire; a payload naming a different
	// group than the one this connection joined is dropped.
	var scope struct {
		GroupID string `json:"groupId"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &scope); err != nil {
			c.dropped(groupID, p, event, "malformed payload")
			return
		}
	}
	if scope.GroupID != "" && scope.GroupID != groupID {
		c.dropped(groupID, p, event, "group mismatch")
		return
	}

	id := p.Identity()

	// A kicked participant stays on the channel to hear an unban but
	// may only ask for re-entry.
	if room.IsBanned(id.ID) && event != EvtRequestReentry {
		c.dropped(groupID, p, event, "participant banned")
		return
	}

	switch event {
	case EvtRequestReentry:
		c.requestReentry(room, p)
	case EvtApproveReentry:
		c.approveReentry(room, data)
	case EvtRequestControl:
		c.requestControl(room, p)
	case EvtReleaseControl:
		c.releaseControl(room, p)
	case EvtForceControlAndShare:
		c.forceControlAndShare(room, p, data)
	case EvtRequestSharePermission:
		c.requestSharePermission(room, p, data)
	case EvtGrantSharePermission:
		c.grantSharePermission(room, p, data)
	case EvtDenySharePermission:
		c.denySharePermission(room, p, data)
	case EvtUpdateSettings:
		c.updateSettings(room, p, data)
	case EvtToggleExerciseLock:
		c.toggleExerciseLock(room, p, data)
	case EvtAdminAction:
		c.adminAction(room, p, data)
	case EvtSyncResource:
		c.syncResource(room, p, data)
	case EvtSyncNotebookFocus:
		c.syncNotebookFocus(room, p)
	case EvtNotebookChange:
		c.notebookChange(room, p, data)
	case EvtNotebookFullContent:
		c.notebookFullContent(room, p, data)
	case EvtExerciseChange:
		c.presenterRelay(room, p, EvtExerciseUpdate, data)
	case EvtShareExerciseResult:
		c.cast.ToRoom(room.GroupID(), c.frame(EvtExerciseShowResult, data))
	case EvtSendMessage:
		c.cast.ToRoom(room.GroupID(), c.frame(EvtReceiveMessage, data))
	case EvtDrawData:
		c.cast.ToOthers(room.GroupID(), p, c.frame(EvtDrawData, data))
	case EvtStartTimer:
		c.cast.ToOthers(room.GroupID(), p, c.frame(EvtSyncTimer, data))
	default:
		c.dropped(groupID, p, event, "unknown event")
	}
}

// Called by the transport when a connection closes. A presenter who
// vanishes without releasing would otherwise leave the slot dangling,
// so the slot is cleared and the room told it is free again.
func (c *Coordinator) Disconnect(p Peer) {
	groupID := p.GroupID()
	if groupID == "" {
		return
	}
	room := c.registry.Get(groupID)
	if room == nil {
		return
	}
	if room.ReleaseBy(p.Identity().ID) {
		c.cast.ToRoom(groupID, c.frame(EvtControlReleased, controlReleased{Forced: false}))
		c.log.WithFields(logrus.Fields{
			"group_id": groupID,
			"user_id":  p.Identity().ID,
		}).Info("presenter disconnected, control released")
	}
}

func (c *Coordinator) dropped(groupID string, p Peer, event, reason string) {
	c.log.WithFields(logrus.Fields{
		"group_id": groupID,
		"user_id":  p.Identity().ID,
		"event":    event,
	}).Debug("event dropped: " + reason)
}

// Presence

func (c *Coordinator) requestReentry(room *Room, p Peer) {
	id := p.Identity()
	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtAdminReentryRequest, reentryRequest{
		UserID:   id.ID,
		UserName: id.Name,
	}))
}

func (c *Coordinator) approveReentry(room *Room, data json.RawMessage) {
	var payload approveReentryPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetID == "" {
		return
	}
	// Unbanning someone who is not banned must not announce an unban.
	if !room.Unban(payload.TargetID) {
		return
	}
	c.cast.ToRoom(room.GroupID(), c.frame(EvtReentryAccepted, reentryAccepted{TargetID: payload.TargetID}))
}

// Control arbitration

func (c *Coordinator) requestControl(room *Room, p Peer) {
	id := p.Identity()

	if room.Settings().PresentationLocked && !id.Role.Staff() {
		p.Deliver(c.frame(EvtReceiveMessage, newSystemChat("presentation_blocked", nil)))
		return
	}

	if id.Role.Staff() {
		// Staff pre-empts without asking.
		room.SetPresenter(id.ID, id.Name)
		c.cast.ToRoom(room.GroupID(), c.frame(EvtControlChanged, controlChanged{
			PresenterID:   id.ID,
			PresenterName: id.Name,
			Message: &SystemMessage{
				Key:    "live_staff",
				Params: map[string]string{"name": id.Name},
			},
		}))
		return
	}

	// Plain members only ask; staff answers with grant or deny.
	c.cast.ToRoom(room.GroupID(), c.frame(EvtControlRequest, controlRequest{
		RequesterID:   id.ID,
		RequesterName: id.Name,
	}))
}

func (c *Coordinator) releaseControl(room *Room, p Peer) {
	if !room.ReleaseBy(p.Identity().ID) {
		return
	}
	c.cast.ToRoom(room.GroupID(), c.frame(EvtControlReleased, controlReleased{Forced: false}))
}

func (c *Coordinator) forceControlAndShare(room *Room, p Peer, data json.RawMessage) {
	id := p.Identity()
	if !id.Role.Staff() {
		c.dropped(room.GroupID(), p, EvtForceControlAndShare, "not staff")
		return
	}
	var payload sharePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Type == "" {
		return
	}

	room.SetPresenter(id.ID, id.Name)
	liveMsg := &SystemMessage{
		Key:    "live_staff_resource",
		Params: map[string]string{"name": id.Name},
	}

	c.startSharing(room, id.ID, payload.Type, payload.ResourceID, controlChanged{
		PresenterID:   id.ID,
		PresenterName: id.Name,
		Message:       liveMsg,
	})
}

// Sets the shared surface for a freshly assigned presenter and tells the
// room, control broadcast first so nobody observes a presenter/view
// mismatch.
func (c *Coordinator) startSharing(room *Room, presenterID, resourceType, resourceID string, change controlChanged) {
	groupID := room.GroupID()

	if resourceType == "notebook" {
		room.FocusNotebook()
		c.cast.ToRoom(groupID, c.frame(EvtControlChanged, change))
		c.cast.ToRoom(groupID, c.frame(EvtRequestNotebookSync, notebookSyncRequest{PresenterID: presenterID}))
		return
	}

	rs := ResourceState{Type: resourceType, ResourceID: resourceID}
	room.LoadResource(rs)
	c.cast.ToRoom(groupID, c.frame(EvtControlChanged, change))
	c.cast.ToRoom(groupID, c.frame(EvtSyncResource, loadSyncOf(rs, presenterID)))
}

func (c *Coordinator) requestSharePermission(room *Room, p Peer, data json.RawMessage) {
	var payload sharePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Type == "" {
		return
	}
	id := p.Identity()
	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtAdminShareRequest, shareRequest{
		RequesterID:   id.ID,
		RequesterName: id.Name,
		ResourceType:  payload.Type,
		ResourceID:    payload.ResourceID,
		ResourceTitle: payload.Title,
	}))
}

func (c *Coordinator) grantSharePermission(room *Room, p Peer, data json.RawMessage) {
	if !p.Identity().Role.Staff() {
		c.dropped(room.GroupID(), p, EvtGrantSharePermission, "not staff")
		return
	}
	var payload grantSharePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetID == "" || payload.Type == "" {
		return
	}

	targetName := room.MemberName(payload.TargetID)
	if targetName == "" {
		targetName = "Student"
	}
	room.SetPresenter(payload.TargetID, targetName)

	c.startSharing(room, payload.TargetID, payload.Type, payload.ResourceID, controlChanged{
		PresenterID:   payload.TargetID,
		PresenterName: targetName,
		Message:       &SystemMessage{Key: "request_approved"},
	})

	c.cast.ToRoom(room.GroupID(), c.frame(EvtSharePermissionGranted, shareDecision{TargetID: payload.TargetID}))
}

func (c *Coordinator) denySharePermission(room *Room, p Peer, data json.RawMessage) {
	if !p.Identity().Role.Staff() {
		c.dropped(room.GroupID(), p, EvtDenySharePermission, "not staff")
		return
	}
	var payload denySharePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetID == "" {
		return
	}
	// Only the requester needs to hear a denial.
	c.cast.ToParticipant(room.GroupID(), payload.TargetID,
		c.frame(EvtSharePermissionDenied, shareDecision{TargetID: payload.TargetID}))
}

// Settings

func (c *Coordinator) updateSettings(room *Room, p Peer, data json.RawMessage) {
	if !p.Identity().Role.Staff() {
		c.dropped(room.GroupID(), p, EvtUpdateSettings, "not staff")
		return
	}
	var payload updateSettingsPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Setting == "" {
		return
	}

	// Locking presentations evicts whoever holds the slot. Unlocking
	// later never resurrects them.
	if payload.Setting == "presentationLocked" && payload.Value {
		if room.ClearPresenter() {
			c.cast.ToRoom(room.GroupID(), c.frame(EvtControlReleased, controlReleased{Forced: true}))
		}
	}

	if !room.ApplySetting(payload.Setting, payload.Value) {
		c.dropped(room.GroupID(), p, EvtUpdateSettings, "unknown setting")
		return
	}
	c.cast.ToRoom(room.GroupID(), c.frame(EvtSyncSettings, room.Settings()))
}

func (c *Coordinator) toggleExerciseLock(room *Room, p Peer, data json.RawMessage) {
	if !p.Identity().Role.Staff() {
		c.dropped(room.GroupID(), p, EvtToggleExerciseLock, "not staff")
		return
	}
	var payload exerciseLockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	room.ApplySetting("exerciseInteractionLocked", payload.Locked)
	c.cast.ToRoom(room.GroupID(), c.frame(EvtSyncSettings, room.Settings()))
}

// Moderation

func (c *Coordinator) adminAction(room *Room, p Peer, data json.RawMessage) {
	performer := p.Identity()
	if !performer.Role.Staff() {
		c.dropped(room.GroupID(), p, EvtAdminAction, "not staff")
		return
	}
	var payload adminActionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Action == "" {
		return
	}

	// Rank check against the target's last-known role, from join-time
	// registration. The performer's role comes from the verified
	// identity, never from the payload.
	targetRole := room.MemberRole(payload.TargetUserID)
	if !CanModerate(performer.Role, targetRole) {
		c.dropped(room.GroupID(), p, EvtAdminAction, "insufficient rank")
		return
	}

	switch payload.Action {
	case "kick":
		room.Ban(payload.TargetUserID)
	case "unban_all":
		room.ClearBans()
		c.cast.ToRoom(room.GroupID(), c.frame(EvtReceiveMessage, newSystemChat("restrictions_reset", nil)))
		return
	}

	// Everything else (mute, spotlight, ...) is interpreted client-side;
	// the coordinator only gates and relays.
	c.cast.ToRoom(room.GroupID(), c.frame(EvtAdminCommand, data))
}

// View-state sync

func (c *Coordinator) syncResource(room *Room, p Peer, data json.RawMessage) {
	id := p.Identity()
	if !room.IsPresenter(id.ID) {
		// In-flight messages from a dethroned presenter must not
		// corrupt the new presenter's state.
		c.dropped(room.GroupID(), p, EvtSyncResource, "not presenter")
		return
	}
	var payload syncResourcePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Type == "" {
		return
	}

	switch payload.Action {
	case actionLoad:
		room.LoadResource(ResourceState{
			Type:       payload.Type,
			ResourceID: payload.ResourceID,
			Payload:    payload.Payload,
		})
	case actionSyncState:
		var pos resourcePosition
		if err := json.Unmarshal(payload.Payload, &pos); err != nil || pos.Index < 0 {
			return
		}
		if !room.AdvanceResource(payload.Type, pos.Index, pos.Flipped) {
			return
		}
	default:
		c.dropped(room.GroupID(), p, EvtSyncResource, "unknown action")
		return
	}

	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtSyncResource, data))
}

func (c *Coordinator) syncNotebookFocus(room *Room, p Peer) {
	presenterID, _ := room.Presenter()
	if presenterID != "" && presenterID != p.Identity().ID {
		c.dropped(room.GroupID(), p, EvtSyncNotebookFocus, "not presenter")
		return
	}
	room.FocusNotebook()
	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtSyncNotebookFocus, struct{}{}))
}

func (c *Coordinator) notebookChange(room *Room, p Peer, data json.RawMessage) {
	if !room.IsPresenter(p.Identity().ID) {
		return
	}
	var payload notebookChangePayload
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Delta) == 0 {
		return
	}
	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtNotebookUpdate, payload.Delta))
}

func (c *Coordinator) notebookFullContent(room *Room, p Peer, data json.RawMessage) {
	if !room.IsPresenter(p.Identity().ID) {
		return
	}
	var payload notebookContentPayload
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Content) == 0 {
		return
	}
	c.cast.ToOthers(room.GroupID(), p, c.frame(EvtNotebookSetContent, payload.Content))
}

// Relays data to the rest of the room when the sender holds the
// presenter slot; the single authorization primitive for every action
// that drives shared pedagogical content.
func (c *Coordinator) presenterRelay(room *Room, p Peer, outEvent string, data json.RawMessage) {
	if !room.IsPresenter(p.Identity().ID) {
		c.dropped(room.GroupID(), p, outEvent, "not presenter")
		return
	}
	c.cast.ToOthers(room.GroupID(), p, c.frame(outEvent, data))
}
