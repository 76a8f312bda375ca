package domain

import "errors"

var (
	// ErrSuperseded marks an attempt cancelled because a newer create or
	// join request took over. It is never shown to a user.
	ErrSuperseded = errors.New("attempt superseded by a newer request")

	ErrNoCredential    = errors.New("no cached credential for server")
	ErrNoSession       = errors.New("no active collaboration session")
	ErrNoActiveEditor  = errors.New("no active editor")
	ErrNoPendingResume = errors.New("no pending resume record")
)
