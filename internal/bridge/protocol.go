// Package bridge exposes the sync daemon to the browser extension over a
// local WebSocket connection.
//
// The extension is a thin relay: it forwards the browser's native
// bookmark events to the daemon and executes the daemon's mutation calls
// against the browser bookmark API. From the engine's point of view the
// bridge is just another nativetree.Gateway plus event source.
package bridge

import (
	"encoding/json"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

// MessageType discriminates bridge frames.
type MessageType string

const (
	// MessageTypeEvent is an extension→daemon native change event.
	MessageTypeEvent MessageType = "event"

	// MessageTypeCall is a daemon→extension gateway operation.
	MessageTypeCall MessageType = "call"

	// MessageTypeResult is the extension's response to a call.
	MessageTypeResult MessageType = "result"

	// MessageTypeHello is sent by the daemon on connect.
	MessageTypeHello MessageType = "hello"
)

// Op names the gateway operation a call frame requests.
type Op string

const (
	OpGetTree Op = "get_tree"
	OpGet     Op = "get"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpMove    Op = "move"
	OpRemove  Op = "remove"
)

// Message is the single frame shape used in both directions. Fields are
// populated per Type.
type Message struct {
	Type   MessageType `json:"type"`
	CallID uint64      `json:"call_id,omitempty"`
	Op     Op          `json:"op,omitempty"`

	// Event payload (extension → daemon).
	Kind        string `json:"kind,omitempty"`
	NativeID    string `json:"native_id,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	OldParentID string `json:"old_parent_id,omitempty"`
	IsFolder    bool   `json:"is_folder,omitempty"`

	// TimestampMS is the host-reported change time in epoch
	// milliseconds; zero means unreported.
	TimestampMS int64 `json:"ts,omitempty"`

	// Call payload (daemon → extension). TitleSet/URLSet distinguish
	// "update to empty" from "leave unchanged".
	TitleSet bool `json:"title_set,omitempty"`
	URLSet   bool `json:"url_set,omitempty"`

	// Result payload (extension → daemon).
	Node  *nativetree.Node `json:"node,omitempty"`
	Tree  *nativetree.Node `json:"tree,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Encode marshals the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses one wire frame.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Event converts an event frame into the engine's event type.
func (m *Message) Event() nativetree.Event {
	ev := nativetree.Event{
		Kind:        nativetree.EventKind(m.Kind),
		NativeID:    m.NativeID,
		Title:       m.Title,
		URL:         m.URL,
		ParentID:    m.ParentID,
		OldParentID: m.OldParentID,
		IsFolder:    m.IsFolder,
	}
	if m.TimestampMS != 0 {
		ev.Timestamp = time.UnixMilli(m.TimestampMS).UTC()
	}
	return ev
}
