package app

import (
	"strings"
	"testing"
)

func TestLineBufferInsertWithCursorMovement(t *testing.T) {
	buf := newLineBuffer()
	for _, r := range "hello" {
		buf.Insert(r)
	}
	buf.MoveLeft()
	buf.MoveLeft()
	buf.Insert('X')

	if got := buf.String(); got != "helXlo" {
		t.Fatalf("expected buffer to be %q, got %q", "helXlo", got)
	}
	if cursor := buf.CursorWidth(); cursor != 4 {
		t.Fatalf("expected cursor width 4 after insertion, got %d", cursor)
	}
}

func TestLineBufferSupportsWideRunes(t *testing.T) {
	buf := newLineBuffer()
	for _, r := range []rune{'한', '글'} {
		buf.Insert(r)
	}
	buf.MoveLeft()
	buf.Insert('テ')

	if got := buf.String(); got != "한テ글" {
		t.Fatalf("expected buffer to be %q, got %q", "한テ글", got)
	}
	if cursor := buf.CursorWidth(); cursor != 4 {
		t.Fatalf("expected cursor width 4 for wide runes, got %d", cursor)
	}
}

func TestLineBufferKills(t *testing.T) {
	buf := newLineBuffer()
	buf.Set("which lines are DoS")
	for i := 0; i < 4; i++ {
		buf.MoveLeft()
	}

	if !buf.KillToEnd() {
		t.Fatalf("expected KillToEnd to change buffer")
	}
	if got := buf.String(); got != "which lines are " {
		t.Fatalf("unexpected buffer after KillToEnd: %q", got)
	}
	buf.MoveLeft()
	if !buf.KillToStart() {
		t.Fatalf("expected KillToStart to change buffer")
	}
	if got := buf.String(); got != " " || buf.cursor != 0 {
		t.Fatalf("unexpected buffer after KillToStart: %q cursor=%d", got, buf.cursor)
	}
}

func TestRenderLineProducesExpectedCursorMovement(t *testing.T) {
	buf := newLineBuffer()
	for _, r := range []rune{'你', '好', '!'} {
		buf.Insert(r)
	}
	buf.MoveLeft()

	var builder strings.Builder
	renderLine(&builder, "Prompt: ", buf)

	expected := "\rPrompt: 你好!\x1b[K\x1b[1D"
	if got := builder.String(); got != expected {
		t.Fatalf("render output mismatch\nexpected: %q\ngot:      %q", expected, got)
	}
}

func TestInputHistoryRecallsAndRestoresDraft(t *testing.T) {
	var h inputHistory
	h.Add("first")
	h.Add("second")
	h.Add("second")
	h.Add("")

	if len(h.entries) != 2 {
		t.Fatalf("expected repeats and blanks to be skipped, got %v", h.entries)
	}

	got, ok := h.Previous("draft")
	if !ok || got != "second" {
		t.Fatalf("Previous() = %q, %v", got, ok)
	}
	got, _ = h.Previous(got)
	if got != "first" {
		t.Fatalf("Previous() = %q, want first", got)
	}
	if _, ok := h.Previous(got); ok {
		t.Fatalf("expected no entry before the first")
	}
	got, _ = h.Next()
	if got != "second" {
		t.Fatalf("Next() = %q, want second", got)
	}
	got, ok = h.Next()
	if !ok || got != "draft" {
		t.Fatalf("Next() = %q, %v, want draft", got, ok)
	}
	if _, ok := h.Next(); ok {
		t.Fatalf("expected no entry after the draft")
	}
}
