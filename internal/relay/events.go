// Package relay defines the tagged event types exchanged with the connection
// gateway. Decoding raw bytes happens here and nowhere else in the core.
package relay

import (
	"encoding/json"
	"fmt"
)

// InboundType tags a client-originated event.
type InboundType string

// Inbound event types accepted by the router.
const (
	InJoin               InboundType = "join"
	InBroadcast          InboundType = "broadcast"
	InPrivateMessage     InboundType = "private_message"
	InReadPrivateMessage InboundType = "read_private_message"
	InCreateGroup        InboundType = "create_group"
	InJoinGroup          InboundType = "join_group"
	InLeaveGroup         InboundType = "leave_group"
	InGroupMessage       InboundType = "group_message"
	InReadGroupMessage   InboundType = "read_group_message"
	InListClients        InboundType = "list_clients"
	InListGroups         InboundType = "list_groups"
)

// Inbound is the decoded form of a client event. Which fields are meaningful
// depends on Type; unused fields stay empty.
type Inbound struct {
	Type      InboundType `json:"type"`
	Name      string      `json:"name,omitempty"`      // join
	To        string      `json:"to,omitempty"`        // private_message
	Sender    string      `json:"sender,omitempty"`    // read_private_message: counterpart being acknowledged
	GroupName string      `json:"groupName,omitempty"` // group operations
	Message   string      `json:"message,omitempty"`   // broadcast, private_message, group_message
}

var knownInbound = map[InboundType]struct{}{
	InJoin:               {},
	InBroadcast:          {},
	InPrivateMessage:     {},
	InReadPrivateMessage: {},
	InCreateGroup:        {},
	InJoinGroup:          {},
	InLeaveGroup:         {},
	InGroupMessage:       {},
	InReadGroupMessage:   {},
	InListClients:        {},
	InListGroups:         {},
}

// DecodeInbound parses a raw frame into an Inbound event. Frames that are not
// valid JSON produce a wrapped error; well-formed frames with an unrecognized
// type produce ErrUnknownCommand.
func DecodeInbound(data []byte) (Inbound, error) {
	var ev Inbound
	if err := json.Unmarshal(data, &ev); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound event: %w", err)
	}
	if _, ok := knownInbound[ev.Type]; !ok {
		return Inbound{}, ErrUnknownCommand
	}
	return ev, nil
}

// OutboundType tags a server-originated event.
type OutboundType string

// Outbound event types emitted by the router.
const (
	OutJoined             OutboundType = "joined"
	OutNameTaken          OutboundType = "name_taken"
	OutClientList         OutboundType = "client_list"
	OutGroupList          OutboundType = "group_list"
	OutUserJoined         OutboundType = "user_joined"
	OutUserLeft           OutboundType = "user_left"
	OutBroadcastMessage   OutboundType = "broadcast_message"
	OutPrivateMessage     OutboundType = "private_message"
	OutPrivateMessageSent OutboundType = "private_message_sent"
	OutPrivateMessageRead OutboundType = "private_message_read"
	OutGroupMessage       OutboundType = "group_message"
	OutGroupMessageSent   OutboundType = "group_message_sent"
	OutGroupMessageRead   OutboundType = "group_message_read"
	OutGroupCreated       OutboundType = "group_created"
	OutJoinedGroup        OutboundType = "joined_group"
	OutLeftGroup          OutboundType = "left_group"
	OutError              OutboundType = "error"
)

// GroupInfo is one entry of a group_list snapshot.
type GroupInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Outbound is a server event targeted at one or many connections.
type Outbound struct {
	Type      OutboundType `json:"type"`
	Name      string       `json:"name,omitempty"`
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Reader    string       `json:"reader,omitempty"`
	GroupName string       `json:"groupName,omitempty"`
	Message   string       `json:"message,omitempty"`
	Clients   []string     `json:"clients,omitempty"`
	Groups    []GroupInfo  `json:"groups,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Encode serializes the event for the wire.
func (ev Outbound) Encode() ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode outbound event: %w", err)
	}
	return data, nil
}

// Constructors for the outbound vocabulary. Keeping them in one place makes the
// wire contract greppable.

func EventJoined() Outbound                { return Outbound{Type: OutJoined} }
func EventNameTaken() Outbound             { return Outbound{Type: OutNameTaken} }
func EventUserJoined(name string) Outbound { return Outbound{Type: OutUserJoined, Name: name} }
func EventUserLeft(name string) Outbound   { return Outbound{Type: OutUserLeft, Name: name} }

func EventClientList(names []string) Outbound {
	return Outbound{Type: OutClientList, Clients: names}
}

func EventGroupList(groups []GroupInfo) Outbound {
	return Outbound{Type: OutGroupList, Groups: groups}
}

func EventBroadcastMessage(from, text string) Outbound {
	return Outbound{Type: OutBroadcastMessage, From: from, Message: text}
}

func EventPrivateMessage(from, text string) Outbound {
	return Outbound{Type: OutPrivateMessage, From: from, Message: text}
}

func EventPrivateMessageSent(to, text string) Outbound {
	return Outbound{Type: OutPrivateMessageSent, To: to, Message: text}
}

func EventPrivateMessageRead(reader string) Outbound {
	return Outbound{Type: OutPrivateMessageRead, Reader: reader}
}

func EventGroupMessage(group, from, text string) Outbound {
	return Outbound{Type: OutGroupMessage, GroupName: group, From: from, Message: text}
}

func EventGroupMessageSent(group, text string) Outbound {
	return Outbound{Type: OutGroupMessageSent, GroupName: group, Message: text}
}

func EventGroupMessageRead(group, reader string) Outbound {
	return Outbound{Type: OutGroupMessageRead, GroupName: group, Reader: reader}
}

func EventGroupCreated(name string) Outbound { return Outbound{Type: OutGroupCreated, Name: name} }
func EventJoinedGroup(name string) Outbound  { return Outbound{Type: OutJoinedGroup, Name: name} }
func EventLeftGroup(name string) Outbound    { return Outbound{Type: OutLeftGroup, Name: name} }

func EventError(err error) Outbound { return Outbound{Type: OutError, Error: err.Error()} }
