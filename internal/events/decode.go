package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned for frames or payloads that cannot be decoded
// into their event type. Such events are logged and dropped by the bus.
var ErrMalformed = errors.New("malformed event")

// Parse decodes one raw WebSocket frame into a typed event.
func Parse(frame []byte) (Event, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	typ := gjson.GetBytes(frame, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	data := gjson.GetBytes(frame, "data")
	var raw json.RawMessage
	if data.Exists() {
		raw = json.RawMessage(data.Raw)
	}
	return Decode(typ.Str, raw)
}

// Decode builds the typed event for a wire name and its data payload.
func Decode(wire string, data json.RawMessage) (Event, error) {
	name := Normalize(wire)
	switch name {
	case MessageReceive, MessageUpdated:
		var m model.Message
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.ID == "" || m.ConversationID == "" {
			return nil, fmt.Errorf("%w: %s without id or conversation_id", ErrMalformed, name)
		}
		m.Normalize()
		return &MessageEvent{Name: name, Message: m}, nil

	case MessageDelete:
		var p struct {
			MessageDeleted
			ID string `json:"id"`
		}
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			p.MessageID = p.ID
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("%w: %s without message_id", ErrMalformed, name)
		}
		return &p.MessageDeleted, nil

	case MessagePinned, MessageUnpinned:
		e := &PinEvent{Name: name}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.PinType == "" {
			e.PinType = model.PinPublic
		}
		if e.MessageID == "" || e.ConversationID == "" || !e.PinType.Valid() {
			return nil, fmt.Errorf("%w: %s needs conversation_id, message_id and a valid pin_type", ErrMalformed, name)
		}
		if e.Message != nil {
			e.Message.Normalize()
		}
		return e, nil

	case MessageRead, MessageReadAll:
		e := &ReadEvent{Name: name}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.ConversationID == "" {
			return nil, fmt.Errorf("%w: %s without conversation_id", ErrMalformed, name)
		}
		return e, nil

	case Typing:
		e := &TypingEvent{}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.UserID == "" || e.ConversationID == "" {
			return nil, fmt.Errorf("%w: typing without user_id or conversation_id", ErrMalformed)
		}
		return e, nil

	case ConversationCreate, ConversationUpdate, ConversationJoin:
		var c model.Conversation
		if err := unmarshal(data, &c); err != nil {
			return nil, err
		}
		if c.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, name)
		}
		return &ConversationEvent{Name: name, Conversation: c}, nil

	case ConversationDeleted:
		var p struct {
			ConversationRemoved
			ID string `json:"id"`
		}
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.ConversationID == "" {
			p.ConversationID = p.ID
		}
		if p.ConversationID == "" {
			return nil, fmt.Errorf("%w: %s without conversation_id", ErrMalformed, name)
		}
		return &p.ConversationRemoved, nil

	case ConversationUserAdded, ConversationUserRemoved:
		e := &MemberEvent{Name: name}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.UserID == "" {
			e.UserID = e.Member.UserID
		}
		if e.ConversationID == "" || e.UserID == "" {
			return nil, fmt.Errorf("%w: %s without conversation_id or user_id", ErrMalformed, name)
		}
		if e.Member.UserID == "" {
			e.Member.UserID = e.UserID
		}
		return e, nil

	case FriendRequestReceived, FriendRequestAccepted, FriendRequestRejected:
		var r model.FriendRequest
		if err := unmarshal(data, &r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, name)
		}
		return &FriendRequestEvent{Name: name, Request: r}, nil

	case FriendRemoved:
		e := &FriendRemovedEvent{}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.UserID == "" {
			return nil, fmt.Errorf("%w: %s without user_id", ErrMalformed, name)
		}
		return e, nil

	case UserStatus:
		return decodeUserStatus(wire, data)

	case NoteCreate, NoteUpdate:
		var n model.Note
		if err := unmarshal(data, &n); err != nil {
			return nil, err
		}
		if n.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, name)
		}
		return &NoteEvent{Name: name, Note: n}, nil

	case NoteDelete:
		var p struct {
			NoteDeleted
			ID string `json:"id"`
		}
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.NoteID == "" {
			p.NoteID = p.ID
		}
		if p.NoteID == "" {
			return nil, fmt.Errorf("%w: %s without note_id", ErrMalformed, name)
		}
		return &p.NoteDeleted, nil

	case UserBlocked, UserBlockedBy, UserUnblocked, UserUnblockedBy:
		e := &BlockEvent{Name: name}
		if err := unmarshal(data, e); err != nil {
			return nil, err
		}
		if e.UserID == "" {
			return nil, fmt.Errorf("%w: %s without user_id", ErrMalformed, name)
		}
		return e, nil

	case Notification:
		var n model.Notification
		if err := unmarshal(data, &n); err != nil {
			return nil, err
		}
		if n.Type == "" {
			return nil, fmt.Errorf("%w: notification without type", ErrMalformed)
		}
		return &NotificationEvent{Notification: n}, nil
	}

	return &Unknown{Type: string(name), Data: data}, nil
}

// decodeUserStatus folds the legacy user.online / user.offline /
// user.status shapes into the canonical {user_id, status, last_seen}.
func decodeUserStatus(wire string, data json.RawMessage) (Event, error) {
	e := &UserStatusEvent{}
	if err := unmarshal(data, e); err != nil {
		return nil, err
	}
	wire = strings.TrimPrefix(strings.TrimSpace(wire), transportPrefix)
	if e.Status == "" {
		switch wire {
		case "user.online":
			e.Status = model.PresenceOnline
		case "user.offline":
			e.Status = model.PresenceOffline
		}
	}
	if e.UserID == "" || !e.Status.Valid() {
		return nil, fmt.Errorf("%w: user status needs user_id and a known status", ErrMalformed)
	}
	return e, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
