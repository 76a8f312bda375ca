// Package ws talks to the collaboration server: HTTP exchanges to create or
// join rooms, then a websocket for the live session connection.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

var (
	ErrUnauthorized = errors.New("collaboration server rejected credentials")
	ErrRoomNotFound = errors.New("room not found")
)

// AuthPrompter obtains a login token interactively (for example by walking
// the user through a browser login). Silent providers never call it.
type AuthPrompter func(ctx context.Context, serverURL string) (string, error)

// Factory builds connection providers bound to one server. The silent
// variant authenticates from the credential store or a non-interactive
// identity claim; the interactive variant may fall back to the prompter.
type Factory struct {
	store          ports.CredentialStore
	client         *http.Client
	prompter       AuthPrompter
	requestTimeout time.Duration
	log            zerolog.Logger
}

var _ ports.ConnectionFactory = (*Factory)(nil)

func NewFactory(store ports.CredentialStore, client *http.Client, prompter AuthPrompter, log zerolog.Logger) *Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Factory{
		store:          store,
		client:         client,
		prompter:       prompter,
		requestTimeout: 30 * time.Second,
		log:            log,
	}
}

func (f *Factory) Interactive(serverURL string) (ports.ConnectionProvider, error) {
	return f.provider(serverURL, true)
}

func (f *Factory) Silent(serverURL string) (ports.ConnectionProvider, error) {
	return f.provider(serverURL, false)
}

func (f *Factory) provider(serverURL string, interactive bool) (ports.ConnectionProvider, error) {
	if serverURL == "" {
		return nil, errors.New("server url is required")
	}
	return &Provider{
		serverURL:      serverURL,
		interactive:    interactive,
		store:          f.store,
		client:         f.client,
		prompter:       f.prompter,
		requestTimeout: f.requestTimeout,
		log:            f.log.With().Str("server_url", serverURL).Logger(),
	}, nil
}
