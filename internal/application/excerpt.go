package application

import (
	"strings"

	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

// ContextRadius is the nominal number of lines shown on each side of the
// cursor in a host-context excerpt.
const ContextRadius = 5

// HostContext is the fixed-size excerpt of the focused editor returned by
// the automation endpoint. Line numbers are 0-indexed; StartLine and EndLine
// are inclusive and clamped to file bounds.
type HostContext struct {
	FilePath        string `json:"filePath"`
	CursorLine      int    `json:"cursorLine"`
	CursorCharacter int    `json:"cursorCharacter"`
	LinesContext    string `json:"linesContext"`
	StartLine       int    `json:"startLine"`
	EndLine         int    `json:"endLine"`
	TotalLines      int    `json:"totalLines"`
}

// BuildExcerpt cuts the ±radius window around the cursor out of the editor
// state. The window never exceeds file bounds, so near the edges it holds
// fewer than 2*radius+1 lines.
func BuildExcerpt(state ports.EditorState, radius int) HostContext {
	total := len(state.Lines)

	cursor := state.CursorLine
	if cursor < 0 {
		cursor = 0
	}
	if total > 0 && cursor > total-1 {
		cursor = total - 1
	}

	start := cursor - radius
	if start < 0 {
		start = 0
	}
	end := cursor + radius
	if end > total-1 {
		end = total - 1
	}
	if end < start {
		start, end = 0, -1
	}

	var excerpt string
	if end >= start {
		excerpt = strings.Join(state.Lines[start:end+1], "\n")
	}

	return HostContext{
		FilePath:        state.FilePath,
		CursorLine:      state.CursorLine,
		CursorCharacter: state.CursorCharacter,
		LinesContext:    excerpt,
		StartLine:       start,
		EndLine:         end,
		TotalLines:      total,
	}
}
