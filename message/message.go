/*
	Package message defines the wire shape of the sync protocol: a JSON
	envelope tagged by message type, with binary label payloads compressed
	and base64-encoded so they survive a text-frame transport.
*/
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

// Type tags a sync message.
type Type string

const (
	TypeJoin         Type = "join"
	TypeDelta        Type = "delta"
	TypeFullSnapshot Type = "full_snapshot"
	TypeUserJoined   Type = "user_joined"
	TypeUserLeft     Type = "user_left"
	TypeUserList     Type = "user_list"
	TypeSessionEnded Type = "session_ended"
	TypeError        Type = "error"
	TypePing         Type = "ping"
)

var knownTypes = map[Type]bool{
	TypeJoin: true, TypeDelta: true, TypeFullSnapshot: true,
	TypeUserJoined: true, TypeUserLeft: true, TypeUserList: true,
	TypeSessionEnded: true, TypeError: true, TypePing: true,
}

// typesRequiringUser lists tags that must carry an originating participant
// identifier.  Ping is the only tag that never does.
var typesRequiringUser = map[Type]bool{
	TypeJoin: true, TypeDelta: true, TypeFullSnapshot: true,
	TypeUserJoined: true, TypeUserLeft: true,
}

// Envelope is the JSON object framing every sync message.
type Envelope struct {
	Type      Type            `json:"type"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope with the current timestamp, marshaling data (which
// may be nil) into the data field.
func New(t Type, userID string, data interface{}) (*Envelope, error) {
	env := &Envelope{
		Type:      t,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("unable to marshal %s data: %v", t, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Marshal renders the envelope as a text frame.
func (env *Envelope) Marshal() (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("unable to marshal %s message: %v", env.Type, err)
	}
	return string(raw), nil
}

// Parse validates and decodes a received text frame.  Unknown tags and
// missing required fields surface a ProtocolError; the caller logs and
// ignores the message while the session continues.
func Parse(frame string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("unparseable message: %v", err)}
	}
	if env.Type == "" {
		return nil, &voxelsync.ProtocolError{Reason: "message missing type tag"}
	}
	if !knownTypes[env.Type] {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("unrecognized message tag %q", env.Type)}
	}
	if typesRequiringUser[env.Type] && env.UserID == "" {
		return nil, &voxelsync.ProtocolError{Reason: fmt.Sprintf("%s message missing userId", env.Type)}
	}
	return &env, nil
}

// JoinData announces a participant joining a session.
type JoinData struct {
	Version string `json:"version,omitempty"`
}

// UserEventData accompanies user_joined and user_left messages.
type UserEventData struct {
	TotalUsers int `json:"totalUsers"`
}

// UserListData accompanies user_list messages.
type UserListData struct {
	Users []string `json:"users"`
}

// ErrorData accompanies error messages from a peer or relay.
type ErrorData struct {
	Message string `json:"message"`
}

// DecodeJoin extracts join payload data; an absent payload yields zero data
// since older peers sent none.
func (env *Envelope) DecodeJoin() (JoinData, error) {
	var data JoinData
	if len(env.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad join data: %v", err)}
	}
	return data, nil
}

// DecodeUserEvent extracts the user count from user_joined/user_left data.
func (env *Envelope) DecodeUserEvent() (UserEventData, error) {
	var data UserEventData
	if len(env.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad user event data: %v", err)}
	}
	return data, nil
}

// DecodeUserList extracts the participant roster from user_list data.
func (env *Envelope) DecodeUserList() (UserListData, error) {
	var data UserListData
	if len(env.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad user list data: %v", err)}
	}
	return data, nil
}

// DecodeError extracts the error text from error message data.
func (env *Envelope) DecodeError() (ErrorData, error) {
	var data ErrorData
	if len(env.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return data, &voxelsync.ProtocolError{Reason: fmt.Sprintf("bad error data: %v", err)}
	}
	return data, nil
}
