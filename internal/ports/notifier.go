package ports

import "context"

// Notifier is the user-facing feedback collaborator for interactive flows.
// Silent flows never touch it.
type Notifier interface {
	Info(message string)
	Error(message string)
	// ConfirmServerSwitch asks whether to follow a room reference that
	// embeds a different server than the configured one.
	ConfirmServerSwitch(ctx context.Context, configured, embedded string) (bool, error)
}
