// Package relay defines the protocol error taxonomy shared by the router and
// its callers.
package relay

import "errors"

// Protocol errors are connection-local and recoverable: the router reports them
// to the offending connection as an error event and keeps serving everyone
// else. Their messages go on the wire verbatim, so they are phrased for humans.
var (
	ErrNameTaken         = errors.New("Name already taken")
	ErrNotJoined         = errors.New("Not joined")
	ErrRecipientNotFound = errors.New("Recipient not found")
	ErrGroupExists       = errors.New("Group already exists")
	ErrGroupNotFound     = errors.New("Group not found")
	ErrNotAMember        = errors.New("Not in group")
	ErrNotInGroup        = errors.New("Not in group or group not found")
	ErrUnknownCommand    = errors.New("Unknown command")
)
