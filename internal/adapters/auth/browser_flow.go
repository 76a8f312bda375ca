// Package auth implements the interactive browser login against a
// collaboration server. The user authenticates in the browser; the server
// redirects back to a loopback callback carrying the granted login token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	ErrStateMismatch   = errors.New("login callback state mismatch")
	ErrCallbackTimeout = errors.New("timed out waiting for login callback")
	ErrMissingState    = errors.New("expected state is required")
)

// Flow runs the browser login against one collaboration server at a time.
// It satisfies the connection factory's AuthPrompter signature.
type Flow struct {
	// ListenAddr is the loopback address for the callback server; empty
	// picks a free port.
	ListenAddr string
	// Timeout bounds the wait for the user to finish in the browser.
	Timeout time.Duration
	// Out receives the URL the user must open.
	Out io.Writer
}

func NewFlow(out io.Writer) *Flow {
	return &Flow{
		Timeout: 5 * time.Minute,
		Out:     out,
	}
}

// Prompt walks the user through the browser login and returns the login
// token the server granted.
func (f *Flow) Prompt(ctx context.Context, serverURL string) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", fmt.Errorf("generate login state: %w", err)
	}

	server, err := StartCallbackServer(f.ListenAddr, state)
	if err != nil {
		return "", fmt.Errorf("start callback server: %w", err)
	}

	loginURL, err := BuildLoginURL(serverURL, server.RedirectURI(), state)
	if err != nil {
		_ = server.Close()
		return "", fmt.Errorf("build login url: %w", err)
	}

	if f.Out != nil {
		_, _ = fmt.Fprintf(f.Out, "Open this URL to authenticate:\n%s\n", loginURL)
	}

	token, err := server.WaitForToken(ctx, f.Timeout)
	if err != nil {
		return "", fmt.Errorf("wait for login callback: %w", err)
	}
	return token, nil
}

func NewState() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// BuildLoginURL points the browser at the server's login page, telling it
// where to deliver the token afterwards.
func BuildLoginURL(serverURL, redirectURI, state string) (string, error) {
	if serverURL == "" {
		return "", errors.New("server url is required")
	}
	if redirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if state == "" {
		return "", errors.New("state is required")
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("server url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("server url host is required")
	}

	parsed.Path = "/login"
	q := parsed.Query()
	q.Set("redirect", redirectURI)
	q.Set("state", state)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// CallbackServer is the loopback endpoint the collaboration server redirects
// to once the user has authenticated.
type CallbackServer struct {
	expectedState string
	listener      net.Listener
	server        *http.Server
	resultCh      chan callbackResult
	resultOnce    sync.Once
	closeOnce     sync.Once
}

type callbackResult struct {
	token string
	err   error
}

func StartCallbackServer(listenAddr string, expectedState string) (*CallbackServer, error) {
	if expectedState == "" {
		return nil, ErrMissingState
	}
	if listenAddr == "" {
		listenAddr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen callback server: %w", err)
	}

	cb := &CallbackServer{
		expectedState: expectedState,
		listener:      listener,
		resultCh:      make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/callback", cb.handleCallback)

	cb.server = &http.Server{Handler: mux}

	go func() {
		if serveErr := cb.server.Serve(cb.listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cb.trySendResult(callbackResult{err: serveErr})
		}
	}()

	return cb, nil
}

func (c *CallbackServer) RedirectURI() string {
	if tcpAddr, ok := c.listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("http://localhost:%d/auth/callback", tcpAddr.Port)
	}
	return "http://localhost/auth/callback"
}

func (c *CallbackServer) WaitForToken(ctx context.Context, timeout time.Duration) (string, error) {
	defer c.Close()

	select {
	case result := <-c.resultCh:
		return result.token, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", ErrCallbackTimeout
	}
}

func (c *CallbackServer) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		closeErr = c.server.Close()
	})
	return closeErr
}

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	token := r.URL.Query().Get("token")

	if state != c.expectedState {
		c.trySendResult(callbackResult{err: ErrStateMismatch})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	if loginError := r.URL.Query().Get("error"); loginError != "" {
		description := r.URL.Query().Get("error_description")
		if description != "" {
			loginError = loginError + ": " + description
		}
		c.trySendResult(callbackResult{err: errors.New(loginError)})
		http.Error(w, "login error", http.StatusBadRequest)
		return
	}
	if token == "" {
		c.trySendResult(callbackResult{err: errors.New("missing login token")})
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	c.trySendResult(callbackResult{token: token})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Authentication complete. You can close this window."))
}

func (c *CallbackServer) trySendResult(result callbackResult) {
	c.resultOnce.Do(func() {
		c.resultCh <- result
	})
}
