package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

// StartupActionKind names the auto-behavior decided once at process start.
type StartupActionKind int

const (
	StartupNone StartupActionKind = iota
	StartupAutoJoin
	StartupAutoCreate
)

// StartupAction is the environment-driven auto-behavior: join an existing
// room, create a fresh one and register it, or do nothing.
type StartupAction struct {
	Kind       StartupActionKind
	RoomID     string
	InstanceID string
	Identity   domain.Identity
}

// StartupEnv is the slice of configuration the startup decision depends on.
type StartupEnv struct {
	AutoJoinRoom string
	InstanceID   string
	UserName     string
	UserEmail    string
}

// DecideStartupAction evaluates the startup policy exactly once: an
// auto-join room wins over auto-create, and auto-create requires both an
// instance id and an identity.
func DecideStartupAction(env StartupEnv) StartupAction {
	if env.AutoJoinRoom != "" {
		return StartupAction{Kind: StartupAutoJoin, RoomID: env.AutoJoinRoom}
	}
	if env.InstanceID != "" && env.UserName != "" && env.UserEmail != "" {
		return StartupAction{
			Kind:       StartupAutoCreate,
			InstanceID: env.InstanceID,
			Identity:   domain.Identity{Name: env.UserName, Email: env.UserEmail},
		}
	}
	return StartupAction{Kind: StartupNone}
}

// Registrar announces a freshly created room to the external registry.
// Implementations must return immediately and retry in the background.
type Registrar interface {
	Notify(ctx context.Context, task domain.RegistrationTask)
}

// StartupRunner executes the decided startup action after a settle delay
// that lets the host environment finish initializing.
type StartupRunner struct {
	Orchestrator *Orchestrator
	Registrar    Registrar
	SettleDelay  time.Duration
	Log          zerolog.Logger
}

// Run sleeps the settle delay, attempts a resume, then performs the decided
// action through the silent orchestrator paths. A failed auto action is
// logged, never fatal.
func (r StartupRunner) Run(ctx context.Context, action StartupAction) {
	select {
	case <-time.After(r.SettleDelay):
	case <-ctx.Done():
		return
	}

	resumed, err := r.Orchestrator.TryResume(ctx)
	if err != nil {
		r.Log.Warn().Err(err).Msg("resume pending session")
	}
	if resumed {
		return
	}

	switch action.Kind {
	case StartupAutoJoin:
		result, err := r.Orchestrator.JoinSilent(ctx, action.RoomID, "", domain.Identity{})
		if err != nil {
			r.Log.Error().Err(err).Str("room_id", action.RoomID).Msg("auto-join failed")
			return
		}
		r.Log.Info().Str("room_id", result.RoomID).Msg("auto-joined collaboration session")

	case StartupAutoCreate:
		result, err := r.Orchestrator.CreateSilent(ctx, "", action.Identity)
		if err != nil {
			r.Log.Error().Err(err).Msg("auto-create failed")
			return
		}
		r.Log.Info().Str("room_id", result.RoomID).Msg("auto-created collaboration session")
		if r.Registrar != nil {
			r.Registrar.Notify(ctx, domain.RegistrationTask{
				InstanceID: action.InstanceID,
				RoomID:     result.RoomID,
				ServerURL:  result.ServerURL,
			})
		}

	case StartupNone:
	}
}
