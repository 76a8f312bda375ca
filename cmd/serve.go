package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/InterCode-Team/open-collaboration-tools/internal/application"
	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collaboration agent daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// A taken port disables automation but not the agent itself.
			if err := a.automation.Start(); err != nil {
				a.log.Warn().Err(err).Msg("continuing without automation endpoint")
			}

			action := application.DecideStartupAction(application.StartupEnv{
				AutoJoinRoom: a.cfg.AutoJoinRoom,
				InstanceID:   a.cfg.InstanceID,
				UserName:     a.cfg.UserName,
				UserEmail:    a.cfg.UserEmail,
			})

			runner := application.StartupRunner{
				Orchestrator: a.orchestrator,
				SettleDelay:  a.cfg.SettleDelay,
				Log:          a.log,
			}
			if a.registrar != nil {
				runner.Registrar = a.registrar
			}
			go runner.Run(ctx, action)

			<-ctx.Done()
			a.log.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := a.automation.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("automation endpoint shutdown")
			}
			if err := a.orchestrator.Leave(shutdownCtx); err != nil && !errors.Is(err, domain.ErrNoSession) {
				a.log.Warn().Err(err).Msg("close session")
			}
			return nil
		},
	}
}
