package ws

import "encoding/json"

// Типы событий realtime-канала
const (
	TypePing           = "ping"
	TypePong           = "pong"
	TypeGetStatus      = "get_status"
	TypeStatusResponse = "status_response"
	TypeSendMessage    = "send_message"
	TypeJoinGroup      = "join_group"
	TypeLeaveGroup     = "leave_group"

	TypeUserMessage     = "user_message"
	TypeNotification    = "notification"
	TypeSystemBroadcast = "system_broadcast"
	TypeGroupJoined     = "group_joined"
	TypeGroupLeft       = "group_left"
	TypeError           = "error"

	// conversation-scoped
	TypeConsultationMessage = "consultation_message"
	TypeMessage             = "message"
	TypeParticipantJoined   = "participant_joined"
	TypeParticipantLeft     = "participant_left"
	TypeAppointmentUpdated  = "appointment_updated"
	TypeParticipants        = "participants"
)

// Frame is the wire envelope: one JSON text message per frame.
type Frame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // ms epoch
}

type SendMessagePayload struct {
	TargetUserID string `json:"target_user_id"`
	Message      string `json:"message"`
	MessageType  string `json:"message_type,omitempty"`
}

type GroupPayload struct {
	GroupName string `json:"group_name"`
}

// MessageEvent is the conversation-scoped "message" frame: create, update and
// delete share the type and are told apart by State.
type MessageEvent struct {
	State   string          `json:"state"` // created|updated|deleted
	Message json.RawMessage `json:"message"`
}

const (
	MessageCreated = "created"
	MessageUpdated = "updated"
	MessageDeleted = "deleted"
)

// DecodeData re-marshals a frame payload into a typed struct. Inbound frames
// decode Data as map[string]any; this is the bridge to concrete payloads.
func DecodeData(f Frame, dst any) error {
	b, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
