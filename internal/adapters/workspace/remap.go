// Package workspace applies the host-announced folder layout after a join.
// The headless agent has no editor surface to rewire, so the remap records
// the layout for host-context queries and logs it.
package workspace

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

type Remapper struct {
	log zerolog.Logger

	mu      sync.RWMutex
	current domain.Workspace
}

var _ ports.WorkspaceService = (*Remapper)(nil)

func NewRemapper(log zerolog.Logger) *Remapper {
	return &Remapper{log: log}
}

func (r *Remapper) Remap(ctx context.Context, workspace domain.Workspace) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.current = workspace
	r.mu.Unlock()

	r.log.Info().
		Str("workspace", workspace.Name).
		Strs("folders", workspace.Folders).
		Msg("workspace remapped")
	return nil
}

// Current returns the last remapped workspace layout.
func (r *Remapper) Current() domain.Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}
