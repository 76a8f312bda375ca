package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client drives a running agent's automation endpoint. It is what the CLI
// convenience commands use; external harnesses speak the same protocol.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *Client) Create(ctx context.Context, serverURL, username, email string) (CommandResponse, error) {
	return c.command(ctx, CommandRequest{
		Action:    "create",
		ServerURL: serverURL,
		Username:  username,
		Email:     email,
	})
}

func (c *Client) Join(ctx context.Context, roomID, serverURL, username, email string) (CommandResponse, error) {
	return c.command(ctx, CommandRequest{
		Action:    "join",
		RoomID:    roomID,
		ServerURL: serverURL,
		Username:  username,
		Email:     email,
	})
}

func (c *Client) command(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("encode automation command: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return CommandResponse{}, fmt.Errorf("create automation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var decoded CommandResponse
	if err := c.do(httpReq, &decoded); err != nil {
		return CommandResponse{}, err
	}
	return decoded, nil
}

func (c *Client) HostContext(ctx context.Context) (HostContextResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/host-context", nil)
	if err != nil {
		return HostContextResponse{}, fmt.Errorf("create host-context request: %w", err)
	}

	var decoded HostContextResponse
	if err := c.do(httpReq, &decoded); err != nil {
		return HostContextResponse{}, err
	}
	return decoded, nil
}

// do executes the request and decodes the JSON body regardless of status:
// the endpoint reports command failures as structured bodies, not bare
// status codes.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach automation endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCommandBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode automation response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
