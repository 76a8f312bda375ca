package ports

import (
	"context"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

// ConnectionFactory yields providers bound to one collaboration server.
// The interactive variant may surface an authentication prompt; the silent
// variant must complete authentication without user interaction or fail.
type ConnectionFactory interface {
	Interactive(serverURL string) (ConnectionProvider, error)
	Silent(serverURL string) (ConnectionProvider, error)
}

type CreateRoomOptions struct {
	Identity domain.Identity
}

type JoinRoomOptions struct {
	RoomID   string
	Identity domain.Identity
}

// ConnectionProvider performs the create-room and join-room exchanges and
// opens the live connection for a granted room.
type ConnectionProvider interface {
	CreateRoom(ctx context.Context, opts CreateRoomOptions) (domain.RoomGrant, error)
	JoinRoom(ctx context.Context, opts JoinRoomOptions) (domain.RoomGrant, error)
	Connect(ctx context.Context, roomID, roomToken string) (Connection, error)
}

// Connection is the live session handle. Ownership passes to the Session
// that wraps it; closing the Session closes the connection.
type Connection interface {
	RoomID() string
	Close() error
}
