package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/auth"
	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/connect/ws"
	credentials "github.com/InterCode-Team/open-collaboration-tools/internal/adapters/credentials/toml"
	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/editor/tracked"
	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/notify"
	"github.com/InterCode-Team/open-collaboration-tools/internal/adapters/workspace"
	"github.com/InterCode-Team/open-collaboration-tools/internal/application"
	"github.com/InterCode-Team/open-collaboration-tools/internal/automation"
	"github.com/InterCode-Team/open-collaboration-tools/internal/config"
	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/registration"
)

type app struct {
	cfg          config.Config
	log          zerolog.Logger
	store        *credentials.Store
	loginFlow    *auth.Flow
	orchestrator *application.Orchestrator
	editor       *tracked.Tracker
	automation   *automation.Server
	registrar    *registration.Notifier
	httpClient   *http.Client
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	store := credentials.NewStore(cfg.CredentialsPath)
	loginFlow := auth.NewFlow(os.Stdout)
	factory := ws.NewFactory(store, http.DefaultClient, loginFlow.Prompt, log)
	remapper := workspace.NewRemapper(log)
	console := notify.NewConsole(os.Stdout, cfg.FollowEmbeddedServer)

	orchestrator := application.NewOrchestrator(factory, store, remapper, console, nil, cfg.ServerURL, log)

	editor := tracked.NewTracker()
	// Editor focus does not survive a room switch.
	orchestrator.SetJoinedHook(func(*domain.Session) { editor.Clear() })
	server := automation.NewServer(cfg.AutomationAddr(), orchestrator, editor, log)

	var registrar *registration.Notifier
	if cfg.BackendBaseURL != "" {
		registrar = registration.NewNotifier(http.DefaultClient, cfg.BackendBaseURL, registration.DefaultPolicy(), log)
	}

	return &app{
		cfg:          cfg,
		log:          log,
		store:        store,
		loginFlow:    loginFlow,
		orchestrator: orchestrator,
		editor:       editor,
		automation:   server,
		registrar:    registrar,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", level, err)
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}

// localClient targets the agent's own automation endpoint for the CLI
// convenience commands.
func (a *app) localClient() *automation.Client {
	return automation.NewClient("http://"+a.cfg.AutomationAddr(), a.httpClient)
}
