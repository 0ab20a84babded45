package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "join_watchlist"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// Inbound event names recognized by the router.
const (
	EvJoinWatchlist  = "join_watchlist"
	EvLeaveWatchlist = "leave_watchlist"
	EvJoinAnalytics  = "join_analytics"
	EvLeaveAnalytics = "leave_analytics"
	EvJoinWarRoom    = "join_war_room"
	EvLeaveWarRoom   = "leave_war_room"
	EvCursorMove     = "war_room_cursor_move"
	EvCameraMove     = "war_room_camera_move"
	EvCreatePin      = "war_room_create_pin"
	EvRemovePin      = "war_room_remove_pin"
	EvStatusUpdate   = "war_room_status_update"
)

// Outbound event names. Field names in the payload structs below are part of
// the client contract and must not change.
const (
	EvUserJoined         = "user_joined"
	EvUserLeft           = "user_left"
	EvPresenceUpdate     = "presence_update"
	EvWarRoomUserJoined  = "war_room_user_joined"
	EvWarRoomUserLeft    = "war_room_user_left"
	EvWarRoomParticipts  = "war_room_participants"
	EvWarRoomCursor      = "war_room_cursor_update"
	EvWarRoomCamera      = "war_room_camera_update"
	EvWarRoomPinCreated  = "war_room_pin_created"
	EvWarRoomPinRemoved  = "war_room_pin_removed"
	EvWarRoomStatusBcast = "war_room_status_broadcast"
)

// Pin severity levels.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ValidSeverity reports whether s is one of the enumerated pin severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Position is a point in the 3D scene.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ──────────────────────────── Request DTOs ───────────────────────────────────

type JoinWatchlistRequest struct {
	WatchlistID string `json:"watchlistId"`
}

type LeaveWatchlistRequest struct {
	WatchlistID string `json:"watchlistId"`
}

type JoinWarRoomRequest struct {
	IncidentID string `json:"incidentId"`
}

type LeaveWarRoomRequest struct {
	IncidentID string `json:"incidentId"`
}

type CursorMoveRequest struct {
	Position Position `json:"position"`
	Color    string   `json:"color,omitempty"`
}

type CameraMoveRequest struct {
	Position Position `json:"position"`
	Target   Position `json:"target"`
}

type CreatePinRequest struct {
	Position Position `json:"position"`
	NodeID   string   `json:"nodeId"`
	Message  string   `json:"message"`
	Severity string   `json:"severity,omitempty"`
}

type RemovePinRequest struct {
	PinID string `json:"pinId"`
}

type StatusUpdateRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ──────────────────────────── Broadcast payloads ─────────────────────────────

type UserJoinedPayload struct {
	UserID      string `json:"userId"`
	WatchlistID string `json:"watchlistId"`
}

type UserLeftPayload struct {
	UserID      string `json:"userId"`
	WatchlistID string `json:"watchlistId"`
}

// PresenceUpdatePayload is sent only to the connection that just joined a
// watchlist room; it carries the full current viewer list.
type PresenceUpdatePayload struct {
	WatchlistID string   `json:"watchlistId"`
	Viewers     []string `json:"viewers"`
}

type WarRoomUserJoinedPayload struct {
	UserID     string `json:"userId"`
	IncidentID string `json:"incidentId"`
}

type WarRoomUserLeftPayload struct {
	UserID     string `json:"userId"`
	IncidentID string `json:"incidentId"`
}

// WarRoomParticipantsPayload is sent only to the connection that just joined
// a war room.
type WarRoomParticipantsPayload struct {
	IncidentID   string   `json:"incidentId"`
	Count        int      `json:"count"`
	Participants []string `json:"participants"`
}

type CursorUpdatePayload struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
	Color    string   `json:"color"`
}

type CameraUpdatePayload struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
	Target   Position `json:"target"`
}

// WarRoomPin is relayed, never stored: a connection that joins the war room
// after the pin was created will not receive it.
type WarRoomPin struct {
	PinID     string   `json:"pinId"`
	UserID    string   `json:"userId"`
	Position  Position `json:"position"`
	NodeID    string   `json:"nodeId"`
	Message   string   `json:"message"`
	Severity  string   `json:"severity"`
	Timestamp int64    `json:"timestamp"`
}

type PinRemovedPayload struct {
	PinID  string `json:"pinId"`
	UserID string `json:"userId"`
}

type StatusBroadcastPayload struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorBody is returned for malformed or unrecognized frames.
type ErrorBody struct {
	Error string `json:"error"`
}
