package app

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func newTestRawReader(input string) (*rawLineReader, *bytes.Buffer) {
	var out bytes.Buffer
	return &rawLineReader{
		reader: bufio.NewReader(strings.NewReader(input)),
		output: &out,
	}, &out
}

func TestCanonicalLineReaderTrimsTerminators(t *testing.T) {
	var out bytes.Buffer
	r := newCanonicalLineReader(strings.NewReader("first\r\nlast"), &out)

	line, err := r.ReadLine("Prompt: ")
	if err != nil || line != "first" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}
	line, err = r.ReadLine("Prompt: ")
	if err != nil || line != "last" {
		t.Fatalf("expected unterminated final line, got %q, %v", line, err)
	}
	if _, err := r.ReadLine("Prompt: "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if got := strings.Count(out.String(), "Prompt: "); got != 3 {
		t.Fatalf("expected prompt printed 3 times, got %d", got)
	}
}

func TestRawLineReaderEditsWithControlKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "abc\r", want: "abc"},
		{name: "left arrow insert", input: "ac\x1b[DB\r", want: "aBc"},
		{name: "home via ctrl+a", input: "bc\x01a\r", want: "abc"},
		{name: "end via escape O", input: "ab\x1b[D\x1b[D\x1bOFc\r", want: "abc"},
		{name: "backspace", input: "abx\x7fc\r", want: "abc"},
		{name: "delete key", input: "axbc\x1b[D\x1b[D\x1b[D\x1b[3~\r", want: "abc"},
		{name: "ctrl+u", input: "junk\x15abc\r", want: "abc"},
		{name: "ctrl+k", input: "abcjunk\x1b[D\x1b[D\x1b[D\x1b[D\x0b\r", want: "abc"},
		{name: "multibyte", input: "데이터\r", want: "데이터"},
		{name: "ignores other controls", input: "a\x02bc\r", want: "abc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRawReader(tc.input)
			got, err := r.edit("Prompt: ")
			if err != nil {
				t.Fatalf("edit() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("edit() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRawLineReaderCtrlCInterrupts(t *testing.T) {
	r, out := newTestRawReader("abc\x03")
	if _, err := r.edit("Prompt: "); !errors.Is(err, errInterrupted) {
		t.Fatalf("expected errInterrupted, got %v", err)
	}
	if !strings.Contains(out.String(), "^C") {
		t.Fatalf("expected ^C echo, got %q", out.String())
	}
}

func TestRawLineReaderCtrlDOnEmptyLineIsEOF(t *testing.T) {
	r, _ := newTestRawReader("\x04")
	if _, err := r.edit("Prompt: "); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestRawLineReaderRecallsHistory(t *testing.T) {
	r, _ := newTestRawReader("which lines are MS?\rdraft\x1b[A\r")

	first, err := r.edit("Prompt: ")
	if err != nil {
		t.Fatalf("edit() error = %v", err)
	}
	second, err := r.edit("Prompt: ")
	if err != nil {
		t.Fatalf("edit() error = %v", err)
	}
	if second != first {
		t.Fatalf("expected up arrow to recall %q, got %q", first, second)
	}
}
