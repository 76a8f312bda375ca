package application

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

type fakeConn struct {
	roomID string

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) RoomID() string { return c.roomID }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeProvider struct {
	createFn  func(ctx context.Context, opts ports.CreateRoomOptions) (domain.RoomGrant, error)
	joinFn    func(ctx context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error)
	connectFn func(ctx context.Context, roomID, roomToken string) (ports.Connection, error)
}

func (p *fakeProvider) CreateRoom(ctx context.Context, opts ports.CreateRoomOptions) (domain.RoomGrant, error) {
	if p.createFn == nil {
		return domain.RoomGrant{}, errors.New("create not configured")
	}
	return p.createFn(ctx, opts)
}

func (p *fakeProvider) JoinRoom(ctx context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error) {
	if p.joinFn == nil {
		return domain.RoomGrant{}, errors.New("join not configured")
	}
	return p.joinFn(ctx, opts)
}

func (p *fakeProvider) Connect(ctx context.Context, roomID, roomToken string) (ports.Connection, error) {
	if p.connectFn != nil {
		return p.connectFn(ctx, roomID, roomToken)
	}
	return &fakeConn{roomID: roomID}, nil
}

type fakeFactory struct {
	provider ports.ConnectionProvider

	mu         sync.Mutex
	serverURLs []string
}

func (f *fakeFactory) Interactive(serverURL string) (ports.ConnectionProvider, error) {
	return f.record(serverURL)
}

func (f *fakeFactory) Silent(serverURL string) (ports.ConnectionProvider, error) {
	return f.record(serverURL)
}

func (f *fakeFactory) record(serverURL string) (ports.ConnectionProvider, error) {
	f.mu.Lock()
	f.serverURLs = append(f.serverURLs, serverURL)
	f.mu.Unlock()
	return f.provider, nil
}

func (f *fakeFactory) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.serverURLs...)
}

type memStore struct {
	mu     sync.Mutex
	tokens map[string]string
	resume *domain.PendingResumeRecord
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]string{}}
}

func (s *memStore) Get(_ context.Context, serverURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[serverURL]
	if !ok {
		return "", domain.ErrNoCredential
	}
	return token, nil
}

func (s *memStore) Put(_ context.Context, serverURL, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[serverURL] = token
	return nil
}

func (s *memStore) PutPendingResume(_ context.Context, record domain.PendingResumeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resume = &record
	return nil
}

func (s *memStore) ConsumePendingResume(_ context.Context) (domain.PendingResumeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resume == nil {
		return domain.PendingResumeRecord{}, domain.ErrNoPendingResume
	}
	record := *s.resume
	s.resume = nil
	return record, nil
}

type fakeWorkspace struct {
	mu       sync.Mutex
	remapped []domain.Workspace
}

func (w *fakeWorkspace) Remap(_ context.Context, workspace domain.Workspace) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remapped = append(w.remapped, workspace)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	infos   []string
	errs    []string
	confirm bool
}

func (n *fakeNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *fakeNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, message)
}

func (n *fakeNotifier) ConfirmServerSwitch(_ context.Context, _, _ string) (bool, error) {
	return n.confirm, nil
}

func (n *fakeNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

func newTestOrchestrator(provider ports.ConnectionProvider) (*Orchestrator, *fakeFactory, *memStore, *fakeWorkspace, *fakeNotifier) {
	factory := &fakeFactory{provider: provider}
	store := newMemStore()
	workspace := &fakeWorkspace{}
	notifier := &fakeNotifier{}
	orch := NewOrchestrator(factory, store, workspace, notifier, nil, "https://collab.example.com", zerolog.Nop())
	return orch, factory, store, workspace, notifier
}

func TestCreateSilentInstallsSessionAndPersistsToken(t *testing.T) {
	provider := &fakeProvider{
		createFn: func(_ context.Context, opts ports.CreateRoomOptions) (domain.RoomGrant, error) {
			assert.Equal(t, "Robin", opts.Identity.Name)
			return domain.RoomGrant{RoomID: "room-1", RoomToken: "rt", LoginToken: "fresh-token"}, nil
		},
	}
	orch, _, store, _, _ := newTestOrchestrator(provider)

	var joined []*domain.Session
	orch.SetJoinedHook(func(s *domain.Session) { joined = append(joined, s) })

	result, err := orch.CreateSilent(context.Background(), "", domain.Identity{Name: "Robin", Email: "robin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "room-1", result.RoomID)
	assert.Equal(t, "https://collab.example.com", result.ServerURL)
	assert.Equal(t, domain.RoleHost, result.Role)

	require.Len(t, joined, 1)
	require.NotNil(t, orch.Current())
	assert.Equal(t, "room-1", orch.Current().RoomID)

	token, err := store.Get(context.Background(), "https://collab.example.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestCreateSupersessionYieldsSingleOutcome(t *testing.T) {
	var calls atomic.Int32
	firstStarted := make(chan struct{})

	provider := &fakeProvider{
		createFn: func(ctx context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				<-ctx.Done()
				return domain.RoomGrant{}, ctx.Err()
			}
			return domain.RoomGrant{RoomID: "room-b", RoomToken: "rt-b"}, nil
		},
	}
	orch, _, _, _, _ := newTestOrchestrator(provider)

	joined := make(chan *domain.Session, 4)
	orch.SetJoinedHook(func(s *domain.Session) { joined <- s })

	firstErr := make(chan error, 1)
	go func() {
		_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
		firstErr <- err
	}()

	<-firstStarted
	result, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.NoError(t, err)
	assert.Equal(t, "room-b", result.RoomID)

	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, domain.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded attempt did not resolve")
	}

	// Exactly one joined event, for the superseding request.
	session := <-joined
	assert.Equal(t, "room-b", session.RoomID)
	select {
	case extra := <-joined:
		t.Fatalf("unexpected second joined event for room %s", extra.RoomID)
	default:
	}
}

func TestSupersededAttemptSuccessIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	conns := map[string]*fakeConn{}

	provider := &fakeProvider{
		createFn: func(_ context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				// The exchange outruns its cancellation and still
				// produces a valid grant.
				<-release
				return domain.RoomGrant{RoomID: "room-a", RoomToken: "rt-a"}, nil
			}
			return domain.RoomGrant{}, errors.New("server unavailable")
		},
		connectFn: func(_ context.Context, roomID, _ string) (ports.Connection, error) {
			conn := &fakeConn{roomID: roomID}
			conns[roomID] = conn
			return conn, nil
		},
	}
	orch, _, _, _, _ := newTestOrchestrator(provider)

	joined := make(chan *domain.Session, 4)
	orch.SetJoinedHook(func(s *domain.Session) { joined <- s })

	firstErr := make(chan error, 1)
	go func() {
		_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
		firstErr <- err
	}()

	<-firstStarted
	_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.Error(t, err, "the superseding attempt fails fast")

	close(release)
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, domain.ErrSuperseded,
			"a superseded attempt must not report success even when its exchange completed")
	case <-time.After(2 * time.Second):
		t.Fatal("superseded attempt did not resolve")
	}

	assert.Nil(t, orch.Current(), "discarded result must not become the current session")
	select {
	case extra := <-joined:
		t.Fatalf("joined event fired for discarded attempt (room %s)", extra.RoomID)
	default:
	}
	require.Contains(t, conns, "room-a")
	assert.True(t, conns["room-a"].isClosed(), "discarded attempt's connection must be closed")
}

func TestCreateSilentCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	provider := &fakeProvider{
		createFn: func(ctx context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			close(started)
			<-ctx.Done()
			return domain.RoomGrant{}, ctx.Err()
		},
	}
	orch, _, _, _, _ := newTestOrchestrator(provider)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := orch.CreateSilent(ctx, "", domain.Identity{})
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled attempt did not resolve")
	}
	assert.Nil(t, orch.Current())
}

func TestFailedAttemptNeverTearsDownCurrentSession(t *testing.T) {
	conns := map[string]*fakeConn{}
	var fail atomic.Bool

	provider := &fakeProvider{
		createFn: func(_ context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			if fail.Load() {
				return domain.RoomGrant{}, errors.New("server unavailable")
			}
			return domain.RoomGrant{RoomID: "room-a", RoomToken: "rt-a"}, nil
		},
		connectFn: func(_ context.Context, roomID, _ string) (ports.Connection, error) {
			conn := &fakeConn{roomID: roomID}
			conns[roomID] = conn
			return conn, nil
		},
	}
	orch, _, _, _, _ := newTestOrchestrator(provider)

	_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.NoError(t, err)

	fail.Store(true)
	_, err = orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.Error(t, err)

	require.NotNil(t, orch.Current())
	assert.Equal(t, "room-a", orch.Current().RoomID)
	assert.False(t, conns["room-a"].isClosed(), "old session must survive a failed replacement attempt")
}

func TestReplaceOnSuccessClosesPreviousSession(t *testing.T) {
	conns := map[string]*fakeConn{}
	var counter atomic.Int32

	provider := &fakeProvider{
		createFn: func(_ context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			if counter.Add(1) == 1 {
				return domain.RoomGrant{RoomID: "room-a", RoomToken: "rt-a"}, nil
			}
			return domain.RoomGrant{RoomID: "room-b", RoomToken: "rt-b"}, nil
		},
		connectFn: func(_ context.Context, roomID, _ string) (ports.Connection, error) {
			conn := &fakeConn{roomID: roomID}
			conns[roomID] = conn
			return conn, nil
		},
	}
	orch, _, _, _, _ := newTestOrchestrator(provider)

	_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.NoError(t, err)
	_, err = orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.NoError(t, err)

	assert.Equal(t, "room-b", orch.Current().RoomID)
	assert.True(t, conns["room-a"].isClosed())
	assert.False(t, conns["room-b"].isClosed())
}

func TestJoinSilentPersistsResumeAndRemapsWorkspace(t *testing.T) {
	provider := &fakeProvider{
		joinFn: func(_ context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error) {
			assert.Equal(t, "room-7", opts.RoomID)
			return domain.RoomGrant{
				RoomID:    "room-7",
				RoomToken: "rt-7",
				Host:      "ada",
				Workspace: domain.Workspace{Name: "proj", Folders: []string{"src", "docs"}},
			}, nil
		},
	}
	orch, _, store, workspace, _ := newTestOrchestrator(provider)

	result, err := orch.JoinSilent(context.Background(), "room-7", "", domain.Identity{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGuest, result.Role)

	record, err := store.ConsumePendingResume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "room-7", record.RoomID)
	assert.Equal(t, "rt-7", record.RoomToken)
	assert.Equal(t, "ada", record.Host)

	require.Len(t, workspace.remapped, 1)
	assert.Equal(t, "proj", workspace.remapped[0].Name)
}

func TestTryResumeConsumesRecordOnce(t *testing.T) {
	provider := &fakeProvider{}
	orch, _, store, _, _ := newTestOrchestrator(provider)

	require.NoError(t, store.PutPendingResume(context.Background(), domain.PendingResumeRecord{
		ServerURL: "https://collab.example.com",
		RoomToken: "rt-9",
		RoomID:    "room-9",
		Host:      "ada",
	}))

	resumed, err := orch.TryResume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed)
	require.NotNil(t, orch.Current())
	assert.Equal(t, "room-9", orch.Current().RoomID)
	assert.Equal(t, domain.RoleGuest, orch.Current().Role)

	resumed, err = orch.TryResume(context.Background())
	require.NoError(t, err)
	assert.False(t, resumed, "record must be consumed by the first resume")
}

func TestJoinInteractiveDeclinedServerSwitchUsesConfiguredServer(t *testing.T) {
	provider := &fakeProvider{
		joinFn: func(_ context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error) {
			return domain.RoomGrant{RoomID: opts.RoomID, RoomToken: "rt"}, nil
		},
	}
	orch, factory, _, _, notifier := newTestOrchestrator(provider)
	notifier.confirm = false

	err := orch.JoinInteractive(context.Background(), "https://other.example.com/#room-3")
	require.NoError(t, err)

	requested := factory.requested()
	require.Len(t, requested, 1)
	assert.Equal(t, "https://collab.example.com", requested[0])
}

func TestJoinInteractiveConfirmedServerSwitchUsesEmbeddedServer(t *testing.T) {
	provider := &fakeProvider{
		joinFn: func(_ context.Context, opts ports.JoinRoomOptions) (domain.RoomGrant, error) {
			return domain.RoomGrant{RoomID: opts.RoomID, RoomToken: "rt"}, nil
		},
	}
	orch, factory, _, _, notifier := newTestOrchestrator(provider)
	notifier.confirm = true

	err := orch.JoinInteractive(context.Background(), "https://other.example.com/#room-3")
	require.NoError(t, err)

	requested := factory.requested()
	require.Len(t, requested, 1)
	assert.Equal(t, "https://other.example.com", requested[0])
}

func TestInteractiveFailureIsReportedOnce(t *testing.T) {
	provider := &fakeProvider{
		createFn: func(_ context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			return domain.RoomGrant{}, errors.New("server exploded")
		},
	}
	orch, _, _, _, notifier := newTestOrchestrator(provider)

	err := orch.CreateInteractive(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 1, notifier.errorCount())
}

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func TestSessionEstablishedLogsAttemptElapsed(t *testing.T) {
	provider := &fakeProvider{
		createFn: func(_ context.Context, _ ports.CreateRoomOptions) (domain.RoomGrant, error) {
			return domain.RoomGrant{RoomID: "room-1", RoomToken: "rt"}, nil
		},
	}
	factory := &fakeFactory{provider: provider}
	clock := &fakeClock{now: time.Unix(1000, 0), step: 250 * time.Millisecond}

	var buf bytes.Buffer
	orch := NewOrchestrator(factory, newMemStore(), &fakeWorkspace{}, &fakeNotifier{}, clock, "https://collab.example.com", zerolog.New(&buf))

	_, err := orch.CreateSilent(context.Background(), "", domain.Identity{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"elapsed":250`)
}

func TestLeaveWithoutSession(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator(&fakeProvider{})
	err := orch.Leave(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSession)
}

func TestParseRoomRef(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		serverURL string
		roomID    string
		wantErr   bool
	}{
		{name: "bare room id", ref: "room-42", serverURL: "", roomID: "room-42"},
		{name: "url with fragment", ref: "https://collab.example.com/#room-42", serverURL: "https://collab.example.com", roomID: "room-42"},
		{name: "url without fragment", ref: "https://collab.example.com/", wantErr: true},
		{name: "empty", ref: "  ", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serverURL, roomID, err := ParseRoomRef(tc.ref)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.serverURL, serverURL)
			assert.Equal(t, tc.roomID, roomID)
		})
	}
}
