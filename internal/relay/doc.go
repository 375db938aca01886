// Package relay implements the session, routing, and read-receipt core of the
// ChatRelay server.
//
// The package owns all mutable shared state (registered client names, group
// membership, and per-message read tracking) behind the Router, which validates
// inbound events and decides the fan-out set of connections to notify. Transport concerns (framing, serialization, socket
// lifecycle) live in the gateway package and reach the core only through the
// event types defined here.
package relay
