package session

import (
	"encoding/json"
	"errors"
)

// Inbound event names. The set is closed; anything else is dropped.
const (
	EvtJoinGroup              = "join-group"
	EvtRequestReentry         = "request-reentry"
	EvtApproveReentry         = "approve-reentry"
	EvtRequestControl         = "request-control"
	EvtReleaseControl         = "release-control"
	EvtForceControlAndShare   = "force-control-and-share"
	EvtRequestSharePermission = "request-share-permission"
	EvtGrantSharePermission   = "grant-share-permission"
	EvtDenySharePermission    = "deny-share-permission"
	EvtUpdateSettings         = "update-settings"
	EvtToggleExerciseLock     = "toggle-exercise-lock"
	EvtAdminAction            = "admin-action"
	EvtSyncResource           = "sync-resource"
	EvtSyncNotebookFocus      = "sync-notebook-focus"
	EvtNotebookChange         = "notebook-change"
	EvtNotebookFullContent    = "notebook-full-content"
	EvtExerciseChange         = "exercise-change"
	EvtShareExerciseResult    = "share-exercise-result"
	EvtSendMessage            = "send-message"
	EvtDrawData               = "draw-data"
	EvtStartTimer             = "start-timer"
)

// Outbound event names.
const (
	EvtKickedState            = "kicked-state"
	EvtUserConnected          = "user-connected"
	EvtControlChanged         = "control-changed"
	EvtControlReleased        = "control-released"
	EvtControlRequest         = "control-request"
	EvtSyncSettings           = "sync-settings"
	EvtRequestNotebookSync    = "request-notebook-sync"
	EvtAdminReentryRequest    = "admin-reentry-request"
	EvtReentryAccepted        = "reentry-accepted"
	EvtAdminShareRequest      = "admin-share-request"
	EvtSharePermissionGranted = "share-permission-granted"
	EvtSharePermissionDenied  = "share-permission-denied"
	EvtNotebookUpdate         = "notebook-update"
	EvtNotebookSetContent     = "notebook-set-content"
	EvtExerciseUpdate         = "exercise-update"
	EvtExerciseShowResult     = "exercise-show-result"
	EvtReceiveMessage         = "receive-message"
	EvtSyncTimer              = "sync-timer"
	EvtAdminCommand           = "admin-command"
)

// One WebSocket frame: a named event with an opaque JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var errEmptyEvent = errors.New("envelope has no event name")

func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errEmptyEvent
	}
	return env, nil
}

// Encodes an outbound event into a wire frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Inbound payloads. Each event decodes into exactly one of these;
// missing required fields make the event a no-op.

type joinGroupPayload struct {
	GroupID string `json:"groupId"`
}

// Extracts the group id from a join-group payload; "" when malformed.
// The transport needs it before the coordinator sees the event, to
// subscribe the connection to the room channel.
func JoinGroupID(data json.RawMessage) string {
	var payload joinGroupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.GroupID
}

type approveReentryPayload struct {
	GroupID  string `json:"groupId"`
	TargetID string `json:"targetId"`
}

type sharePayload struct {
	GroupID    string `json:"groupId"`
	Type       string `json:"type"`
	ResourceID string `json:"resourceId"`
	Title      string `json:"title,omitempty"`
}

type grantSharePayload struct {
	GroupID    string `json:"groupId"`
	TargetID   string `json:"targetId"`
	Type       string `json:"type"`
	ResourceID string `json:"resourceId"`
}

type denySharePayload struct {
	GroupID  string `json:"groupId"`
	TargetID string `json:"targetId"`
}

type updateSettingsPayload struct {
	GroupID string `json:"groupId"`
	Setting string `json:"setting"`
	Value   bool   `json:"value"`
}

type exerciseLockPayload struct {
	GroupID string `json:"groupId"`
	Locked  bool   `json:"locked"`
}

type adminActionPayload struct {
	GroupID      string `json:"groupId"`
	Action       string `json:"action"`
	TargetUserID string `json:"targetUserId"`
}

type syncResourcePayload struct {
	GroupID    string          `json:"groupId"`
	Action     string          `json:"action"`
	Type       string          `json:"type"`
	ResourceID string          `json:"resourceId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type resourcePosition struct {
	Index   int  `json:"index"`
	Flipped bool `json:"flipped"`
}

type notebookChangePayload struct {
	GroupID string          `json:"groupId"`
	Delta   json.RawMessage `json:"delta"`
}

type notebookContentPayload struct {
	GroupID string          `json:"groupId"`
	Content json.RawMessage `json:"content"`
}

// Outbound payloads.

// Localizable notice rendered client-side from a translation key.
type SystemMessage struct {
	Key    string            `json:"key"`
	Params map[string]string `json:"params,omitempty"`
}

// System chat entries share the receive-message channel with user chat.
type systemChat struct {
	User    string        `json:"user"`
	Message SystemMessage `json:"message"`
	Type    string        `json:"type"`
}

func newSystemChat(key string, params map[string]string) systemChat {
	return systemChat{
		User:    "Sistem",
		Message: SystemMessage{Key: key, Params: params},
		Type:    "text",
	}
}

type kickedState struct {
	IsKicked bool `json:"isKicked"`
}

type userConnected struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type controlChanged struct {
	PresenterID   string         `json:"presenterId"`
	PresenterName string         `json:"presenterName"`
	Message       *SystemMessage `json:"message,omitempty"`
}

type controlReleased struct {
	Forced bool `json:"forced"`
}

type controlRequest struct {
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

type notebookSyncRequest struct {
	PresenterID string `json:"presenterId"`
}

type reentryRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type reentryAccepted struct {
	TargetID string `json:"targetId"`
}

type shareRequest struct {
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	ResourceType  string `json:"resourceType"`
	ResourceID    string `json:"resourceId"`
	ResourceTitle string `json:"resourceTitle,omitempty"`
}

type shareDecision struct {
	TargetID string `json:"targetId"`
}

// Full resource sync pushed room-wide or to a late joiner.
type resourceSync struct {
	SenderID   string          `json:"senderId,omitempty"`
	Type       string          `json:"type"`
	ResourceID string          `json:"resourceId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Index      int             `json:"index"`
	Flipped    bool            `json:"flipped"`
	Action     string          `json:"action"`
}

func loadSyncOf(rs ResourceState, senderID string) resourceSync {
	return resourceSync{
		SenderID:   senderID,
		Type:       rs.Type,
		ResourceID: rs.ResourceID,
		Payload:    rs.Payload,
		Index:      rs.Index,
		Flipped:    rs.Flipped,
		Action:     actionLoad,
	}
}

const (
	actionLoad      = "load"
	actionSyncState = "sync_state"
)
