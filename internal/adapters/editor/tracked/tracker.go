// Package tracked holds the daemon's view of the focused editor, fed by
// whatever opens documents in the workspace and read by the automation
// endpoint's host-context query.
package tracked

import (
	"context"
	"sync"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

type Tracker struct {
	mu     sync.RWMutex
	state  ports.EditorState
	active bool
}

var _ ports.EditorService = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetActive records the focused document and cursor position.
func (t *Tracker) SetActive(filePath string, cursorLine, cursorCharacter int, lines []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := make([]string, len(lines))
	copy(copied, lines)

	t.state = ports.EditorState{
		FilePath:        filePath,
		CursorLine:      cursorLine,
		CursorCharacter: cursorCharacter,
		Lines:           copied,
	}
	t.active = true
}

// Clear drops the focused document, typically when a session ends.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ports.EditorState{}
	t.active = false
}

func (t *Tracker) ActiveEditor(ctx context.Context) (ports.EditorState, error) {
	if err := ctx.Err(); err != nil {
		return ports.EditorState{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.active {
		return ports.EditorState{}, domain.ErrNoActiveEditor
	}
	return t.state, nil
}
