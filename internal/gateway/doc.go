// Package gateway owns the WebSocket transport for ChatRelay: connection
// upgrade, framing, per-connection read/write pumps, origin checks, and rate
// limiting. It decodes inbound frames into relay events and delivers outbound
// events to specific connections; all chat semantics live in the relay
// package.
package gateway
