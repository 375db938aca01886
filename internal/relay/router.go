// Package relay routes inbound client events through the shared registries and
// decides which connections to notify.
package relay

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relayhub/chatrelay/internal/metrics"
)

// Violations of the per-connection state machine. These stay internal to the
// router; they reach clients only as error-event text.
var (
	errAlreadyJoined    = errors.New("Already joined")
	errInvalidName      = errors.New("Invalid name")
	errInvalidGroupName = errors.New("Invalid group name")
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateJoined
	stateDisconnected
)

// Session is the router's view of one connection: its handle, its place in the
// Connecting -> Joined -> Disconnected state machine, and, once joined, its
// display name. All fields are guarded by the owning router's mutex.
type Session struct {
	conn  Conn
	state sessionState
	name  string
}

// Router owns the identity registry, the group directory, and the read-receipt
// tracker, and is the only component that mutates them. Every dispatch runs
// its validate-mutate-snapshot sequence under one mutex, so a uniqueness check
// plus insert, or a membership check plus fan-out enumeration, is atomic.
// Actual delivery happens after the lock is released, on handles snapshotted
// while it was held.
type Router struct {
	// mu serializes all event handling. A single coarse lock is enough here:
	// registry operations are cheap map work, and fan-out writes happen
	// outside it.
	mu       sync.Mutex
	identity *Registry
	groups   *Directory
	receipts *Tracker
	log      zerolog.Logger

	// Policy for a failed join: notify name_taken and keep the connection so
	// the client can retry, or notify and force-disconnect.
	disconnectOnNameTaken bool
}

// NewRouter returns a router with empty registries.
func NewRouter(log zerolog.Logger, disconnectOnNameTaken bool) *Router {
	return &Router{
		identity:              NewRegistry(),
		groups:                NewDirectory(),
		receipts:              NewTracker(),
		log:                   log.With().Str("component", "router").Logger(),
		disconnectOnNameTaken: disconnectOnNameTaken,
	}
}

// NewSession creates the router-side state for a freshly accepted connection,
// in the Connecting state.
func (r *Router) NewSession(c Conn) *Session {
	return &Session{conn: c}
}

// delivery pairs an outbound event with its target connection.
type delivery struct {
	conn Conn
	ev   Outbound
}

// Dispatch processes one inbound event for the given session, in the arrival
// order guaranteed by the caller's read loop. Protocol failures are reported
// to the offending connection only.
func (r *Router) Dispatch(s *Session, ev Inbound) {
	r.mu.Lock()
	var out []delivery
	var closeAfter Conn
	switch ev.Type {
	case InJoin:
		out, closeAfter = r.handleJoin(s, ev.Name)
	case InBroadcast:
		out = r.handleBroadcast(s, ev.Message)
	case InPrivateMessage:
		out = r.handlePrivateMessage(s, ev.To, ev.Message)
	case InReadPrivateMessage:
		out = r.handleReadPrivate(s, ev.Sender)
	case InCreateGroup:
		out = r.handleCreateGroup(s, ev.GroupName)
	case InJoinGroup:
		out = r.handleJoinGroup(s, ev.GroupName)
	case InLeaveGroup:
		out = r.handleLeaveGroup(s, ev.GroupName)
	case InGroupMessage:
		out = r.handleGroupMessage(s, ev.GroupName, ev.Message)
	case InReadGroupMessage:
		out = r.handleReadGroup(s, ev.GroupName)
	case InListClients:
		out = r.handleListClients(s)
	case InListGroups:
		out = r.handleListGroups(s)
	default:
		out = r.fail(s, ErrUnknownCommand)
	}
	r.mu.Unlock()

	r.deliver(out)
	if closeAfter != nil {
		closeAfter.Close()
	}
}

// Disconnect moves the session to its terminal state and, if it was joined,
// removes the client from every registry as one atomic cleanup before
// notifying the survivors. It is idempotent and safe to call concurrently
// with a late-arriving Dispatch for the same session.
func (r *Router) Disconnect(s *Session) {
	r.mu.Lock()
	if s.state == stateDisconnected {
		r.mu.Unlock()
		return
	}
	wasJoined := s.state == stateJoined
	name := s.name
	s.state = stateDisconnected

	var out []delivery
	if wasJoined {
		r.identity.Unregister(name)
		r.groups.RemoveEverywhere(name)
		r.receipts.RemoveReader(name)
		metrics.ConnectedClients.Dec()

		out = append(out, r.fanAll(EventUserLeft(name))...)
		out = append(out, r.fanAll(EventClientList(r.identity.Names()))...)
		out = append(out, r.fanAll(EventGroupList(r.groups.Snapshot()))...)
	}
	r.mu.Unlock()

	if wasJoined {
		r.log.Info().Str("name", name).Msg("client disconnected")
	}
	r.deliver(out)
}

// handleJoin additionally reports a connection to close once deliveries are
// out, so a name_taken notification still reaches the client before a policy
// disconnect.
func (r *Router) handleJoin(s *Session, name string) ([]delivery, Conn) {
	switch s.state {
	case stateDisconnected:
		return nil, nil
	case stateJoined:
		return r.fail(s, errAlreadyJoined), nil
	}
	if name == "" {
		return r.fail(s, errInvalidName), nil
	}

	if err := r.identity.Register(name, s.conn); err != nil {
		metrics.NameConflicts.Inc()
		r.log.Debug().Str("name", name).Msg("join rejected, name taken")
		out := []delivery{{s.conn, EventNameTaken()}}
		if r.disconnectOnNameTaken {
			return out, s.conn
		}
		return out, nil
	}

	s.state = stateJoined
	s.name = name
	metrics.ClientsJoined.Inc()
	metrics.ConnectedClients.Inc()
	r.log.Info().Str("name", name).Msg("client joined")

	out := []delivery{{s.conn, EventJoined()}}
	out = append(out, r.fanOthers(s.conn, EventUserJoined(name))...)
	out = append(out, r.fanAll(EventClientList(r.identity.Names()))...)
	out = append(out, r.fanAll(EventGroupList(r.groups.Snapshot()))...)
	return out, nil
}

func (r *Router) handleBroadcast(s *Session, text string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	metrics.Messages.WithLabelValues("broadcast").Inc()

	out := r.fanOthers(s.conn, EventBroadcastMessage(s.name, text))
	// The sender sees its own echo attributed to "You", as the original UI
	// expects.
	out = append(out, delivery{s.conn, EventBroadcastMessage("You", text)})
	return out
}

func (r *Router) handlePrivateMessage(s *Session, to, text string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}

	target, ok := r.identity.Lookup(to)
	if !ok {
		return r.fail(s, ErrRecipientNotFound)
	}

	r.receipts.RecordPrivate(s.name, to, text)
	metrics.Messages.WithLabelValues("private").Inc()

	return []delivery{
		{target, EventPrivateMessage(s.name, text)},
		{s.conn, EventPrivateMessageSent(to, text)},
	}
}

func (r *Router) handleReadPrivate(s *Session, counterpart string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	if counterpart == "" {
		return nil
	}

	if !r.receipts.AcknowledgePrivate(counterpart, s.name) {
		// Nothing transitioned: either already read or no conversation.
		return nil
	}
	metrics.ReadReceipts.WithLabelValues("private").Inc()

	if sender, ok := r.identity.Lookup(counterpart); ok {
		return []delivery{{sender, EventPrivateMessageRead(s.name)}}
	}
	return nil
}

func (r *Router) handleCreateGroup(s *Session, name string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	if name == "" {
		return r.fail(s, errInvalidGroupName)
	}

	if err := r.groups.Create(name, s.name); err != nil {
		return r.fail(s, err)
	}
	metrics.GroupsCreated.Inc()
	r.log.Info().Str("group", name).Str("creator", s.name).Msg("group created")

	out := []delivery{{s.conn, EventGroupCreated(name)}}
	out = append(out, r.fanAll(EventGroupList(r.groups.Snapshot()))...)
	return out
}

func (r *Router) handleJoinGroup(s *Session, name string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}

	if err := r.groups.Join(name, s.name); err != nil {
		return r.fail(s, err)
	}

	out := []delivery{{s.conn, EventJoinedGroup(name)}}
	out = append(out, r.fanAll(EventGroupList(r.groups.Snapshot()))...)
	return out
}

func (r *Router) handleLeaveGroup(s *Session, name string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}

	if err := r.groups.Leave(name, s.name); err != nil {
		return r.fail(s, err)
	}

	out := []delivery{{s.conn, EventLeftGroup(name)}}
	out = append(out, r.fanAll(EventGroupList(r.groups.Snapshot()))...)
	return out
}

func (r *Router) handleGroupMessage(s *Session, group, text string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}

	members, ok := r.groups.MembersOf(group)
	if !ok || !contains(members, s.name) {
		return r.fail(s, ErrNotInGroup)
	}

	r.receipts.RecordGroup(s.name, group, text, members)
	metrics.Messages.WithLabelValues("group").Inc()

	var out []delivery
	for _, member := range members {
		if member == s.name {
			continue
		}
		if conn, online := r.identity.Lookup(member); online {
			out = append(out, delivery{conn, EventGroupMessage(group, s.name, text)})
		}
	}
	out = append(out, delivery{s.conn, EventGroupMessageSent(group, text)})
	return out
}

func (r *Router) handleReadGroup(s *Session, group string) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	if !r.groups.IsMember(group, s.name) {
		return r.fail(s, ErrNotInGroup)
	}

	senders := r.receipts.AcknowledgeGroup(group, s.name)
	if len(senders) == 0 {
		return nil
	}
	metrics.ReadReceipts.WithLabelValues("group").Inc()

	var out []delivery
	for _, sender := range senders {
		if conn, online := r.identity.Lookup(sender); online {
			out = append(out, delivery{conn, EventGroupMessageRead(group, s.name)})
		}
	}
	return out
}

func (r *Router) handleListClients(s *Session) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	return []delivery{{s.conn, EventClientList(r.identity.Names())}}
}

func (r *Router) handleListGroups(s *Session) []delivery {
	if s.state != stateJoined {
		return r.fail(s, ErrNotJoined)
	}
	return []delivery{{s.conn, EventGroupList(r.groups.Snapshot())}}
}

// fail records the protocol error and targets an error event at the offending
// connection.
func (r *Router) fail(s *Session, err error) []delivery {
	metrics.ProtocolErrors.WithLabelValues(errReason(err)).Inc()
	r.log.Debug().Err(err).Msg("protocol error")
	return []delivery{{s.conn, EventError(err)}}
}

// fanAll targets ev at every registered connection.
func (r *Router) fanAll(ev Outbound) []delivery {
	conns := r.identity.All()
	out := make([]delivery, 0, len(conns))
	for _, c := range conns {
		out = append(out, delivery{c, ev})
	}
	return out
}

// fanOthers targets ev at every registered connection except self.
func (r *Router) fanOthers(self Conn, ev Outbound) []delivery {
	conns := r.identity.All()
	out := make([]delivery, 0, len(conns))
	for _, c := range conns {
		if c == self {
			continue
		}
		out = append(out, delivery{c, ev})
	}
	return out
}

// deliver performs the fan-out outside the router lock. Sends never block: a
// recipient that cannot accept the event just loses it, and the other
// recipients are unaffected.
func (r *Router) deliver(out []delivery) {
	for _, d := range out {
		if !d.conn.TrySend(d.ev) {
			metrics.DroppedDeliveries.Inc()
		}
	}
}

func errReason(err error) string {
	switch {
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrNotJoined):
		return "not_joined"
	case errors.Is(err, ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, ErrGroupExists):
		return "group_exists"
	case errors.Is(err, ErrGroupNotFound):
		return "group_not_found"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrNotInGroup):
		return "not_in_group"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	default:
		return "invalid_request"
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
