package ports

import (
	"context"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

// EditorState is a snapshot of the focused editor: the open file, the cursor
// position (0-indexed), and the file's full line contents.
type EditorState struct {
	FilePath        string
	CursorLine      int
	CursorCharacter int
	Lines           []string
}

// EditorService exposes the host editor's focused document. ActiveEditor
// returns domain.ErrNoActiveEditor when nothing has focus.
type EditorService interface {
	ActiveEditor(ctx context.Context) (EditorState, error)
}

// WorkspaceService applies the host-announced workspace layout after a
// guest-side join.
type WorkspaceService interface {
	Remap(ctx context.Context, workspace domain.Workspace) error
}
