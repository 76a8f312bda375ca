package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

const maxExchangeResponseBytes = 1 << 20

// Provider performs the create-room and join-room exchanges against one
// collaboration server and opens live connections for granted rooms.
type Provider struct {
	serverURL      string
	interactive    bool
	store          ports.CredentialStore
	client         *http.Client
	prompter       AuthPrompter
	requestTimeout time.Duration
	log            zerolog.Logger
}

var _ ports.ConnectionProvider = (*Provider)(nil)

type roomGrantResponse struct {
	RoomID     string `json:"roomId"`
	RoomToken  string `json:"roomToken"`
	LoginToken string `json:"loginToken,omitempty"`
	Host       string `json:"host,omitempty"`
	Workspace  *struct {
		Name    string   `json:"name"`
		Folders []string `json:"folders"`
	} `json:"workspace,omitempty"`
}

type claimRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type claimResponse struct {
	Token string `json:"token"`
}

func (p *Provider) CreateRoom(ctx context.Context, opts ports.CreateRoomOptions) (domain.RoomGrant, error) {
	token, err := p.ensureToken(ctx, opts.Identity)
	if err != nil {
		return domain.RoomGrant{}, err
	}

	grant, err := p.exchange(ctx, p.serverURL+"/api/session/create", token, nil)
	if err != nil {
		return domain.RoomGrant{}, fmt.Errorf("create room exchange: %w", err)
	}
	return grant, nil
}

func (p *Provider) JoinRoom(ctx context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error) {
	if opts.RoomID == "" {
		return domain.RoomGrant{}, errors.New("room id is required")
	}

	token, err := p.ensureToken(ctx, opts.Identity)
	if err != nil {
		return domain.RoomGrant{}, err
	}

	grant, err := p.exchange(ctx, p.serverURL+"/api/session/join/"+url.PathEscape(opts.RoomID), token, nil)
	if err != nil {
		return domain.RoomGrant{}, fmt.Errorf("join room exchange: %w", err)
	}
	return grant, nil
}

// ensureToken resolves a login token: cached credential first, then a
// non-interactive identity claim, then (interactive only) the prompter.
func (p *Provider) ensureToken(ctx context.Context, identity domain.Identity) (string, error) {
	token, err := p.store.Get(ctx, p.serverURL)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNoCredential) {
		return "", fmt.Errorf("read cached credential: %w", err)
	}

	if identity.Email != "" {
		token, err = p.claimToken(ctx, identity)
		if err != nil {
			return "", err
		}
	} else if p.interactive && p.prompter != nil {
		token, err = p.prompter(ctx, p.serverURL)
		if err != nil {
			return "", fmt.Errorf("interactive login: %w", err)
		}
	} else {
		return "", fmt.Errorf("%w: %s", domain.ErrNoCredential, p.serverURL)
	}

	if putErr := p.store.Put(ctx, p.serverURL, token); putErr != nil {
		p.log.Warn().Err(putErr).Msg("cache login token")
	}
	return token, nil
}

func (p *Provider) claimToken(ctx context.Context, identity domain.Identity) (string, error) {
	body, err := json.Marshal(claimRequest{Name: identity.Name, Email: identity.Email})
	if err != nil {
		return "", fmt.Errorf("encode claim request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, p.serverURL+"/api/login/claim", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create claim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("claim login token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("claim endpoint returned status %d", resp.StatusCode)
	}

	var claim claimResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxExchangeResponseBytes)).Decode(&claim); err != nil {
		return "", fmt.Errorf("decode claim response: %w", err)
	}
	if claim.Token == "" {
		return "", errors.New("claim response missing token")
	}

	return claim.Token, nil
}

func (p *Provider) exchange(ctx context.Context, endpoint, token string, payload any) (domain.RoomGrant, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return domain.RoomGrant{}, fmt.Errorf("encode exchange request: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = strings.NewReader("{}")
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return domain.RoomGrant{}, fmt.Errorf("create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.RoomGrant{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.RoomGrant{}, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return domain.RoomGrant{}, ErrRoomNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return domain.RoomGrant{}, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var decoded roomGrantResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxExchangeResponseBytes)).Decode(&decoded); err != nil {
		return domain.RoomGrant{}, fmt.Errorf("decode exchange response: %w", err)
	}
	if decoded.RoomID == "" || decoded.RoomToken == "" {
		return domain.RoomGrant{}, errors.New("exchange response missing room grant")
	}

	grant := domain.RoomGrant{
		RoomID:     decoded.RoomID,
		RoomToken:  decoded.RoomToken,
		LoginToken: decoded.LoginToken,
		Host:       decoded.Host,
	}
	if decoded.Workspace != nil {
		grant.Workspace = domain.Workspace{
			Name:    decoded.Workspace.Name,
			Folders: decoded.Workspace.Folders,
		}
	}
	return grant, nil
}
