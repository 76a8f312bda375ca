package domain

import "io"

// Role distinguishes the side of a collaboration session this process holds.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Session is the single live collaboration resource. At most one Session
// exists per process; a newer successful create or join replaces and closes
// the previous one.
type Session struct {
	RoomID     string
	ServerURL  string
	Role       Role
	Workspace  Workspace
	Connection io.Closer
}

// Close releases the live connection. Safe to call with a nil connection.
func (s *Session) Close() error {
	if s == nil || s.Connection == nil {
		return nil
	}
	return s.Connection.Close()
}

// Workspace describes the shared folder layout announced by the room host.
type Workspace struct {
	Name    string
	Folders []string
}

// RoomGrant is the result of a create-room or join-room exchange with the
// collaboration server. LoginToken is only present when the server minted a
// fresh credential during the exchange.
type RoomGrant struct {
	RoomID     string
	RoomToken  string
	LoginToken string
	Host       string
	Workspace  Workspace
}

// Identity names the user on whose behalf a silent session is provisioned.
type Identity struct {
	Name  string
	Email string
}
