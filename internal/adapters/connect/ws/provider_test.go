package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, serverURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[serverURL]
	if !ok {
		return "", domain.ErrNoCredential
	}
	return token, nil
}

func (m *memStore) Put(_ context.Context, serverURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[serverURL] = token
	return nil
}

func (m *memStore) PutPendingResume(_ context.Context, _ domain.PendingResumeRecord) error {
	return nil
}

func (m *memStore) ConsumePendingResume(_ context.Context) (domain.PendingResumeRecord, error) {
	return domain.PendingResumeRecord{}, domain.ErrNoPendingResume
}

func silentProvider(t *testing.T, serverURL string, store ports.CredentialStore) ports.ConnectionProvider {
	t.Helper()
	factory := NewFactory(store, http.DefaultClient, nil, zerolog.Nop())
	provider, err := factory.Silent(serverURL)
	require.NoError(t, err)
	return provider
}

func TestCreateRoomUsesCachedToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/session/create", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"roomId":    "room-1",
			"roomToken": "rt-1",
			"workspace": map[string]any{"name": "demo", "folders": []string{"src"}},
		})
	}))
	defer server.Close()

	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), server.URL, "cached-token"))

	grant, err := silentProvider(t, server.URL, store).CreateRoom(context.Background(), ports.CreateRoomOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer cached-token", gotAuth)
	assert.Equal(t, "room-1", grant.RoomID)
	assert.Equal(t, "rt-1", grant.RoomToken)
	assert.Equal(t, "demo", grant.Workspace.Name)
	assert.Equal(t, []string{"src"}, grant.Workspace.Folders)
}

func TestCreateRoomClaimsTokenFromIdentity(t *testing.T) {
	var claim claimRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login/claim":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&claim))
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "claimed-token"})
		case "/api/session/create":
			require.Equal(t, "Bearer claimed-token", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room-1", "roomToken": "rt-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store := newMemStore()
	identity := domain.Identity{Name: "Ada", Email: "ada@example.com"}
	grant, err := silentProvider(t, server.URL, store).CreateRoom(context.Background(), ports.CreateRoomOptions{Identity: identity})
	require.NoError(t, err)
	assert.Equal(t, "room-1", grant.RoomID)
	assert.Equal(t, "Ada", claim.Name)
	assert.Equal(t, "ada@example.com", claim.Email)

	// The claimed token is cached for subsequent exchanges.
	cached, err := store.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "claimed-token", cached)
}

func TestSilentCreateWithoutCredentialOrIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected without a token source")
	}))
	defer server.Close()

	_, err := silentProvider(t, server.URL, newMemStore()).CreateRoom(context.Background(), ports.CreateRoomOptions{})
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestInteractiveCreateFallsBackToPrompter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer prompted-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room-1", "roomToken": "rt-1"})
	}))
	defer server.Close()

	prompter := func(_ context.Context, serverURL string) (string, error) {
		assert.Equal(t, server.URL, serverURL)
		return "prompted-token", nil
	}
	factory := NewFactory(newMemStore(), server.Client(), prompter, zerolog.Nop())
	provider, err := factory.Interactive(server.URL)
	require.NoError(t, err)

	grant, err := provider.CreateRoom(context.Background(), ports.CreateRoomOptions{})
	require.NoError(t, err)
	assert.Equal(t, "room-1", grant.RoomID)
}

func TestJoinRoomEscapesRoomID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room/1", "roomToken": "rt-1"})
	}))
	defer server.Close()

	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), server.URL, "token"))

	_, err := silentProvider(t, server.URL, store).JoinRoom(context.Background(), ports.JoinRoomOptions{RoomID: "room/1"})
	require.NoError(t, err)
	assert.Equal(t, "/api/session/join/room%2F1", gotPath)
}

func TestJoinRoomRequiresRoomID(t *testing.T) {
	_, err := silentProvider(t, "https://collab.example.com", newMemStore()).JoinRoom(context.Background(), ports.JoinRoomOptions{})
	require.Error(t, err)
}

func TestExchangeStatusTriage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: ErrUnauthorized},
		{name: "room not found", status: http.StatusNotFound, want: ErrRoomNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			store := newMemStore()
			require.NoError(t, store.Put(context.Background(), server.URL, "token"))

			_, err := silentProvider(t, server.URL, store).JoinRoom(context.Background(), ports.JoinRoomOptions{RoomID: "room-1"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExchangeRejectsIncompleteGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room-1"})
	}))
	defer server.Close()

	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), server.URL, "token"))

	_, err := silentProvider(t, server.URL, store).CreateRoom(context.Background(), ports.CreateRoomOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing room grant")
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		roomID    string
		want      string
		wantErr   bool
	}{
		{
			name:      "https becomes wss",
			serverURL: "https://collab.example.com",
			roomID:    "room-1",
			want:      "wss://collab.example.com/api/session/rooms/room-1",
		},
		{
			name:      "http becomes ws",
			serverURL: "http://127.0.0.1:8100",
			roomID:    "room-1",
			want:      "ws://127.0.0.1:8100/api/session/rooms/room-1",
		},
		{
			name:      "existing path is preserved",
			serverURL: "https://collab.example.com/oct/",
			roomID:    "room-1",
			want:      "wss://collab.example.com/oct/api/session/rooms/room-1",
		},
		{
			name:      "room id is escaped",
			serverURL: "https://collab.example.com",
			roomID:    "room/1",
			want:      "wss://collab.example.com/api/session/rooms/room%2F1",
		},
		{
			name:      "unsupported scheme",
			serverURL: "ftp://collab.example.com",
			wantErr:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := websocketURL(tc.serverURL, tc.roomID)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
