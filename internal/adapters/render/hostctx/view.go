// Package hostctx renders the automation endpoint's host-context reply for
// the terminal.
package hostctx

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/InterCode-Team/open-collaboration-tools/internal/application"
)

// View is the status the CLI shows: either an excerpt of the focused
// editor, or the reason there is none.
type View struct {
	Success bool
	Error   string
	Context *application.HostContext
}

func Render(view View) string {
	return renderView(view, newStyles())
}

func renderView(view View, s styles) string {
	lines := []string{s.title.Render("Collaboration Host Context")}

	if !view.Success || view.Context == nil {
		reason := view.Error
		if reason == "" {
			reason = "no host context available"
		}
		lines = append(lines, s.empty.Render(reason))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	ctx := view.Context
	lines = append(lines,
		s.path.Render(ctx.FilePath),
		s.meta.Render(fmt.Sprintf("cursor %d:%d · lines %d-%d of %d",
			ctx.CursorLine, ctx.CursorCharacter, ctx.StartLine, ctx.EndLine, ctx.TotalLines)),
	)

	for i, line := range splitExcerpt(ctx.LinesContext) {
		number := ctx.StartLine + i
		gutter := s.gutter.Render(fmt.Sprintf("%4d │ ", number))
		body := s.code.Render(line)
		if number == ctx.CursorLine {
			body = s.cursor.Render(line)
		}
		lines = append(lines, gutter+body)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func splitExcerpt(excerpt string) []string {
	if excerpt == "" {
		return nil
	}
	return strings.Split(excerpt, "\n")
}
