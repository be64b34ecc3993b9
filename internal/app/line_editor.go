package app

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
)

// lineBuffer is the editable text of the prompt line and its cursor, in runes.
type lineBuffer struct {
	runes  []rune
	cursor int
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{runes: make([]rune, 0, 64)}
}

func (b *lineBuffer) Insert(r rune) {
	b.runes = append(b.runes, 0)
	copy(b.runes[b.cursor+1:], b.runes[b.cursor:])
	b.runes[b.cursor] = r
	b.cursor++
}

// Set replaces the content and moves the cursor to the end.
func (b *lineBuffer) Set(text string) {
	b.runes = append(b.runes[:0], []rune(text)...)
	b.cursor = len(b.runes)
}

func (b *lineBuffer) MoveLeft() bool {
	if b.cursor == 0 {
		return false
	}
	b.cursor--
	return true
}

func (b *lineBuffer) MoveRight() bool {
	if b.cursor >= len(b.runes) {
		return false
	}
	b.cursor++
	return true
}

func (b *lineBuffer) MoveHome() bool {
	if b.cursor == 0 {
		return false
	}
	b.cursor = 0
	return true
}

func (b *lineBuffer) MoveEnd() bool {
	if b.cursor == len(b.runes) {
		return false
	}
	b.cursor = len(b.runes)
	return true
}

func (b *lineBuffer) Backspace() bool {
	if b.cursor == 0 {
		return false
	}
	b.runes = append(b.runes[:b.cursor-1], b.runes[b.cursor:]...)
	b.cursor--
	return true
}

func (b *lineBuffer) Delete() bool {
	if b.cursor >= len(b.runes) {
		return false
	}
	b.runes = append(b.runes[:b.cursor], b.runes[b.cursor+1:]...)
	return true
}

// KillToStart removes everything before the cursor (Ctrl+U).
func (b *lineBuffer) KillToStart() bool {
	if b.cursor == 0 {
		return false
	}
	b.runes = append(b.runes[:0], b.runes[b.cursor:]...)
	b.cursor = 0
	return true
}

// KillToEnd removes everything from the cursor on (Ctrl+K).
func (b *lineBuffer) KillToEnd() bool {
	if b.cursor == len(b.runes) {
		return false
	}
	b.runes = b.runes[:b.cursor]
	return true
}

func (b *lineBuffer) String() string {
	return string(b.runes)
}

// CursorWidth is the display width of the text left of the cursor.
func (b *lineBuffer) CursorWidth() int {
	return runewidth.StringWidth(string(b.runes[:b.cursor]))
}

func (b *lineBuffer) ContentWidth() int {
	return runewidth.StringWidth(string(b.runes))
}

// renderLine redraws prompt and buffer on the current terminal row and puts
// the cursor back where the buffer has it. Wide runes count as two columns.
func renderLine(w io.Writer, prompt string, buf *lineBuffer) {
	_, _ = fmt.Fprintf(w, "\r%s%s\x1b[K", prompt, buf.String())
	if back := buf.ContentWidth() - buf.CursorWidth(); back > 0 {
		_, _ = fmt.Fprintf(w, "\x1b[%dD", back)
	}
}

// inputHistory remembers submitted questions for recall with the arrow keys.
type inputHistory struct {
	entries []string
	pos     int
	draft   string
}

// Add records a submitted line, skipping blanks and immediate repeats.
func (h *inputHistory) Add(line string) {
	if line != "" && (len(h.entries) == 0 || h.entries[len(h.entries)-1] != line) {
		h.entries = append(h.entries, line)
	}
	h.pos = len(h.entries)
	h.draft = ""
}

// Previous steps back in history. current is kept as the draft the first
// time the user leaves the line being typed.
func (h *inputHistory) Previous(current string) (string, bool) {
	if h.pos == 0 {
		return "", false
	}
	if h.pos == len(h.entries) {
		h.draft = current
	}
	h.pos--
	return h.entries[h.pos], true
}

// Next steps forward, ending on the saved draft.
func (h *inputHistory) Next() (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return h.draft, true
	}
	return h.entries[h.pos], true
}
