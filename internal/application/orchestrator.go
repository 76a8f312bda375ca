package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

// SessionResult is the per-request outcome of a create or join attempt.
type SessionResult struct {
	RoomID    string
	ServerURL string
	Role      domain.Role
}

// Orchestrator owns the single current session and the single authoritative
// pending attempt. Starting any attempt cancels the outer scope of the
// previous unresolved one; the previous session is only torn down after a
// newer attempt succeeds.
type Orchestrator struct {
	factory   ports.ConnectionFactory
	store     ports.CredentialStore
	workspace ports.WorkspaceService
	notifier  ports.Notifier
	clock     ports.Clock
	serverURL string
	log       zerolog.Logger

	onJoined func(*domain.Session)

	mu      sync.Mutex
	current *domain.Session
	pending *pendingAttempt
}

type attemptKind string

const (
	attemptCreate attemptKind = "create"
	attemptJoin   attemptKind = "join"
)

type pendingAttempt struct {
	kind      attemptKind
	outer     context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

func NewOrchestrator(factory ports.ConnectionFactory, store ports.CredentialStore, workspace ports.WorkspaceService, notifier ports.Notifier, clock ports.Clock, serverURL string, log zerolog.Logger) *Orchestrator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Orchestrator{
		factory:   factory,
		store:     store,
		workspace: workspace,
		notifier:  notifier,
		clock:     clock,
		serverURL: NormalizeServerURL(serverURL),
		log:       log,
	}
}

// SetJoinedHook registers a callback fired after every successful create,
// join, or resume, with the freshly installed session. Must be called
// before the orchestrator starts serving requests.
func (o *Orchestrator) SetJoinedHook(fn func(*domain.Session)) {
	o.onJoined = fn
}

// Current returns the live session, or nil.
func (o *Orchestrator) Current() *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// CreateSilent performs the create exchange without any user interaction.
// Success and failure are reported only to the caller.
func (o *Orchestrator) CreateSilent(ctx context.Context, serverURLOverride string, identity domain.Identity) (SessionResult, error) {
	serverURL := o.resolveServer(serverURLOverride)

	attempt, attemptCtx, finish := o.begin(ctx, attemptCreate)
	defer finish()

	provider, err := o.factory.Silent(serverURL)
	if err != nil {
		return SessionResult{}, fmt.Errorf("silent connection provider for %s: %w", serverURL, err)
	}

	session, err := o.createRoom(attemptCtx, provider, serverURL, identity)
	if err != nil {
		err = o.classify(attempt, ctx, err)
		o.logAttemptFailure(attempt, err)
		return SessionResult{}, err
	}

	if err := o.install(attempt, session); err != nil {
		o.logAttemptFailure(attempt, err)
		return SessionResult{}, err
	}
	return resultOf(session), nil
}

// CreateInteractive performs the create exchange with interactive
// authentication allowed, reporting the outcome through the notifier.
func (o *Orchestrator) CreateInteractive(ctx context.Context, serverURLOverride string) error {
	serverURL := o.resolveServer(serverURLOverride)

	attempt, attemptCtx, finish := o.begin(ctx, attemptCreate)
	defer finish()

	provider, err := o.factory.Interactive(serverURL)
	if err != nil {
		err = fmt.Errorf("interactive connection provider for %s: %w", serverURL, err)
		o.notifier.Error(err.Error())
		return err
	}

	session, err := o.createRoom(attemptCtx, provider, serverURL, domain.Identity{})
	if err != nil {
		return o.reportInteractive(attempt, ctx, err)
	}

	if err := o.install(attempt, session); err != nil {
		return o.reportInteractive(attempt, ctx, err)
	}
	o.notifier.Info(fmt.Sprintf("Collaboration session created. Room ID: %s", session.RoomID))
	return nil
}

// JoinSilent performs the join exchange without any user interaction.
func (o *Orchestrator) JoinSilent(ctx context.Context, roomID, serverURLOverride string, identity domain.Identity) (SessionResult, error) {
	serverURL := o.resolveServer(serverURLOverride)

	attempt, attemptCtx, finish := o.begin(ctx, attemptJoin)
	defer finish()

	provider, err := o.factory.Silent(serverURL)
	if err != nil {
		return SessionResult{}, fmt.Errorf("silent connection provider for %s: %w", serverURL, err)
	}

	session, err := o.joinRoom(attemptCtx, provider, serverURL, roomID, identity)
	if err != nil {
		err = o.classify(attempt, ctx, err)
		o.logAttemptFailure(attempt, err)
		return SessionResult{}, err
	}

	if err := o.install(attempt, session); err != nil {
		o.logAttemptFailure(attempt, err)
		return SessionResult{}, err
	}
	return resultOf(session), nil
}

// JoinInteractive joins the room named by roomRef, which may be a bare room
// id or a URL with the room id in its fragment. A reference embedding a
// server other than the configured one is followed only after the notifier
// confirms the switch.
func (o *Orchestrator) JoinInteractive(ctx context.Context, roomRef string) error {
	serverURL, roomID, err := ParseRoomRef(roomRef)
	if err != nil {
		o.notifier.Error(err.Error())
		return err
	}
	if serverURL == "" {
		serverURL = o.serverURL
	} else if serverURL != o.serverURL {
		ok, confirmErr := o.notifier.ConfirmServerSwitch(ctx, o.serverURL, serverURL)
		if confirmErr != nil {
			return fmt.Errorf("confirm server switch: %w", confirmErr)
		}
		if !ok {
			serverURL = o.serverURL
		}
	}

	attempt, attemptCtx, finish := o.begin(ctx, attemptJoin)
	defer finish()

	provider, err := o.factory.Interactive(serverURL)
	if err != nil {
		err = fmt.Errorf("interactive connection provider for %s: %w", serverURL, err)
		o.notifier.Error(err.Error())
		return err
	}

	session, err := o.joinRoom(attemptCtx, provider, serverURL, roomID, domain.Identity{})
	if err != nil {
		return o.reportInteractive(attempt, ctx, err)
	}

	if err := o.install(attempt, session); err != nil {
		return o.reportInteractive(attempt, ctx, err)
	}
	o.notifier.Info(fmt.Sprintf("Joined collaboration session %s.", session.RoomID))
	return nil
}

// TryResume consumes the pending resume record, if any, and re-establishes
// the guest connection it describes. Returns false when no record exists.
func (o *Orchestrator) TryResume(ctx context.Context) (bool, error) {
	record, err := o.store.ConsumePendingResume(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoPendingResume) {
			return false, nil
		}
		return false, fmt.Errorf("consume pending resume record: %w", err)
	}

	attempt, attemptCtx, finish := o.begin(ctx, attemptJoin)
	defer finish()

	provider, err := o.factory.Silent(record.ServerURL)
	if err != nil {
		return false, fmt.Errorf("silent connection provider for %s: %w", record.ServerURL, err)
	}

	conn, err := provider.Connect(attemptCtx, record.RoomID, record.RoomToken)
	if err != nil {
		err = o.classify(attempt, ctx, err)
		o.logAttemptFailure(attempt, err)
		return false, err
	}

	session := &domain.Session{
		RoomID:     record.RoomID,
		ServerURL:  record.ServerURL,
		Role:       domain.RoleGuest,
		Connection: conn,
	}
	if err := o.install(attempt, session); err != nil {
		o.logAttemptFailure(attempt, err)
		return false, err
	}
	return true, nil
}

// Leave tears down the current session and cancels any pending attempt.
func (o *Orchestrator) Leave(ctx context.Context) error {
	o.mu.Lock()
	session := o.current
	o.current = nil
	if o.pending != nil {
		o.pending.cancel()
		o.pending = nil
	}
	o.mu.Unlock()

	if session == nil {
		return domain.ErrNoSession
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("close session connection: %w", err)
	}
	o.log.Info().Str("room_id", session.RoomID).Msg("left collaboration session")
	return nil
}

func (o *Orchestrator) createRoom(ctx context.Context, provider ports.ConnectionProvider, serverURL string, identity domain.Identity) (*domain.Session, error) {
	grant, err := provider.CreateRoom(ctx, ports.CreateRoomOptions{Identity: identity})
	if err != nil {
		return nil, fmt.Errorf("create room on %s: %w", serverURL, err)
	}

	o.persistLoginToken(ctx, serverURL, grant.LoginToken)

	conn, err := provider.Connect(ctx, grant.RoomID, grant.RoomToken)
	if err != nil {
		return nil, fmt.Errorf("connect to room %s: %w", grant.RoomID, err)
	}

	return &domain.Session{
		RoomID:     grant.RoomID,
		ServerURL:  serverURL,
		Role:       domain.RoleHost,
		Workspace:  grant.Workspace,
		Connection: conn,
	}, nil
}

func (o *Orchestrator) joinRoom(ctx context.Context, provider ports.ConnectionProvider, serverURL, roomID string, identity domain.Identity) (*domain.Session, error) {
	grant, err := provider.JoinRoom(ctx, ports.JoinRoomOptions{RoomID: roomID, Identity: identity})
	if err != nil {
		return nil, fmt.Errorf("join room %s on %s: %w", roomID, serverURL, err)
	}

	o.persistLoginToken(ctx, serverURL, grant.LoginToken)

	if err := o.store.PutPendingResume(ctx, domain.PendingResumeRecord{
		ServerURL: serverURL,
		RoomToken: grant.RoomToken,
		RoomID:    grant.RoomID,
		Host:      grant.Host,
	}); err != nil {
		o.log.Warn().Err(err).Msg("persist pending resume record")
	}

	conn, err := provider.Connect(ctx, grant.RoomID, grant.RoomToken)
	if err != nil {
		return nil, fmt.Errorf("connect to room %s: %w", grant.RoomID, err)
	}

	if err := o.workspace.Remap(ctx, grant.Workspace); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("remap workspace for room %s: %w", grant.RoomID, err)
	}

	return &domain.Session{
		RoomID:     grant.RoomID,
		ServerURL:  serverURL,
		Role:       domain.RoleGuest,
		Workspace:  grant.Workspace,
		Connection: conn,
	}, nil
}

func (o *Orchestrator) persistLoginToken(ctx context.Context, serverURL, token string) {
	if token == "" {
		return
	}
	if err := o.store.Put(ctx, serverURL, token); err != nil {
		o.log.Warn().Err(err).Str("server_url", serverURL).Msg("persist login token")
	}
}

// begin registers a new authoritative attempt, cancelling the outer scope of
// the previous one. The returned context is cancelled when either the caller
// context or the attempt's outer scope is; finish must be deferred.
func (o *Orchestrator) begin(ctx context.Context, kind attemptKind) (*pendingAttempt, context.Context, func()) {
	outer, outerCancel := context.WithCancel(context.Background())
	attempt := &pendingAttempt{
		kind:      kind,
		outer:     outer,
		cancel:    outerCancel,
		startedAt: o.clock.Now(),
	}

	o.mu.Lock()
	if o.pending != nil {
		o.pending.cancel()
	}
	o.pending = attempt
	o.mu.Unlock()

	merged, mergedCancel := context.WithCancel(ctx)
	stop := context.AfterFunc(outer, mergedCancel)

	finish := func() {
		stop()
		mergedCancel()
		o.mu.Lock()
		if o.pending == attempt {
			o.pending = nil
		}
		o.mu.Unlock()
	}
	return attempt, merged, finish
}

// classify decides how an attempt failure is reported: caller cancellation
// wins over supersession, supersession over the raw exchange error.
func (o *Orchestrator) classify(attempt *pendingAttempt, callerCtx context.Context, err error) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if attempt.outer.Err() != nil {
		return domain.ErrSuperseded
	}
	return err
}

// reportInteractive applies the interactive-mode error policy: superseded
// attempts stay silent, caller cancellation gets a neutral notice, anything
// else is a visible error.
func (o *Orchestrator) reportInteractive(attempt *pendingAttempt, callerCtx context.Context, err error) error {
	err = o.classify(attempt, callerCtx, err)
	switch {
	case errors.Is(err, domain.ErrSuperseded):
		o.log.Debug().Str("kind", string(attempt.kind)).Msg("attempt superseded")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.notifier.Info("Collaboration request cancelled.")
	default:
		o.notifier.Error(err.Error())
	}
	return err
}

func (o *Orchestrator) logAttemptFailure(attempt *pendingAttempt, err error) {
	elapsed := o.clock.Now().Sub(attempt.startedAt)
	if errors.Is(err, domain.ErrSuperseded) {
		o.log.Debug().Str("kind", string(attempt.kind)).Dur("elapsed", elapsed).Msg("attempt superseded")
		return
	}
	o.log.Debug().Err(err).Str("kind", string(attempt.kind)).Dur("elapsed", elapsed).Msg("attempt failed")
}

// install makes session current, closing the replaced session only now that
// the new attempt has succeeded. An attempt superseded while its exchange
/// was in flight never installs, even a successful one: its fresh connection
// is closed and the result discarded.
func (o *Orchestrator) install(attempt *pendingAttempt, session *domain.Session) error {
	o.mu.Lock()
	if attempt.outer.Err() != nil {
		o.mu.Unlock()
		if err := session.Close(); err != nil {
			o.log.Warn().Err(err).Str("room_id", session.RoomID).Msg("close discarded session")
		}
		return domain.ErrSuperseded
	}
	replaced := o.current
	o.current = session
	o.mu.Unlock()

	if replaced != nil {
		if err := replaced.Close(); err != nil {
			o.log.Warn().Err(err).Str("room_id", replaced.RoomID).Msg("close replaced session")
		}
	}

	o.log.Info().
		Str("room_id", session.RoomID).
		Str("server_url", session.ServerURL).
		Str("role", string(session.Role)).
		Dur("elapsed", o.clock.Now().Sub(attempt.startedAt)).
		Msg("collaboration session established")

	if o.onJoined != nil {
		o.onJoined(session)
	}
	return nil
}

func (o *Orchestrator) resolveServer(override string) string {
	if override != "" {
		return NormalizeServerURL(override)
	}
	return o.serverURL
}

func resultOf(session *domain.Session) SessionResult {
	return SessionResult{
		RoomID:    session.RoomID,
		ServerURL: session.ServerURL,
		Role:      session.Role,
	}
}

// NormalizeServerURL trims trailing slashes so cached credentials and room
// references agree on one spelling per server.
func NormalizeServerURL(serverURL string) string {
	return strings.TrimRight(strings.TrimSpace(serverURL), "/")
}

// ParseRoomRef splits a room reference into an optional embedded server URL
// and a room id. Accepted forms: a bare room id, or an absolute URL whose
// fragment carries the room id.
func ParseRoomRef(ref string) (serverURL, roomID string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", errors.New("room reference is empty")
	}
	if !strings.Contains(ref, "://") {
		return "", ref, nil
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse room reference: %w", err)
	}
	if parsed.Fragment == "" {
		return "", "", errors.New("room reference URL has no room id fragment")
	}

	roomID = parsed.Fragment
	parsed.Fragment = ""
	return NormalizeServerURL(parsed.String()), roomID, nil
}
