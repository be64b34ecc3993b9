package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// errInterrupted is returned by a raw-mode reader when the user presses Ctrl+C.
var errInterrupted = errors.New("interrupted")

type lineReader interface {
	ReadLine(prompt string) (string, error)
}

// canonicalLineReader reads newline-terminated input from pipes and files.
type canonicalLineReader struct {
	reader *bufio.Reader
	output io.Writer
}

func newCanonicalLineReader(input io.Reader, output io.Writer) *canonicalLineReader {
	return &canonicalLineReader{
		reader: bufio.NewReader(input),
		output: output,
	}
}

func (r *canonicalLineReader) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		if _, err := fmt.Fprint(r.output, prompt); err != nil {
			return "", err
		}
	}
	text, err := r.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || text == "") {
		return "", err
	}
	return strings.TrimRight(text, "\r\n"), nil
}

// rawLineReader edits the prompt line itself with the terminal in raw mode.
type rawLineReader struct {
	input   *os.File
	reader  *bufio.Reader
	output  io.Writer
	history inputHistory
}

func newRawLineReader(input *os.File, output io.Writer) *rawLineReader {
	return &rawLineReader{
		input:  input,
		reader: bufio.NewReader(input),
		output: output,
	}
}

func (r *rawLineReader) ReadLine(prompt string) (string, error) {
	fd := int(r.input.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = term.Restore(fd, oldState)
	}()
	return r.edit(prompt)
}

func (r *rawLineReader) edit(prompt string) (string, error) {
	buffer := newLineBuffer()
	if prompt != "" {
		if _, err := fmt.Fprint(r.output, prompt); err != nil {
			return "", err
		}
	}

	for {
		b, err := r.reader.ReadByte()
		if err != nil {
			return "", err
		}

		changed := false
		switch b {
		case '\r', '\n':
			line := buffer.String()
			r.history.Add(strings.TrimSpace(line))
			_, _ = fmt.Fprint(r.output, "\r\n")
			return line, nil
		case 0x03: // Ctrl+C
			_, _ = fmt.Fprint(r.output, "^C\r\n")
			return "", errInterrupted
		case 0x04: // Ctrl+D
			if len(buffer.runes) == 0 {
				_, _ = fmt.Fprint(r.output, "\r\n")
				return "", io.EOF
			}
			changed = buffer.Delete()
		case 0x01: // Ctrl+A
			changed = buffer.MoveHome()
		case 0x05: // Ctrl+E
			changed = buffer.MoveEnd()
		case 0x0b: // Ctrl+K
			changed = buffer.KillToEnd()
		case 0x15: // Ctrl+U
			changed = buffer.KillToStart()
		case 0x7f, 0x08:
			changed = buffer.Backspace()
		case 0x1b:
			changed = r.handleEscape(buffer)
		default:
			changed = r.insertRune(b, buffer)
		}
		if changed {
			renderLine(r.output, prompt, buffer)
		}
	}
}

func (r *rawLineReader) insertRune(first byte, buffer *lineBuffer) bool {
	if first < 0x20 {
		return false
	}
	if first < utf8.RuneSelf {
		buffer.Insert(rune(first))
		return true
	}

	buf := []byte{first}
	for len(buf) < utf8.UTFMax && !utf8.FullRune(buf) {
		next, err := r.reader.ReadByte()
		if err != nil {
			return false
		}
		buf = append(buf, next)
	}
	value, width := utf8.DecodeRune(buf)
	if value == utf8.RuneError && width <= 1 {
		return false
	}
	buffer.Insert(value)
	return true
}

func (r *rawLineReader) handleEscape(buffer *lineBuffer) bool {
	next, err := r.reader.ReadByte()
	if err != nil {
		return false
	}

	var seq string
	switch next {
	case '[':
		if seq, err = readCSISequence(r.reader); err != nil {
			return false
		}
	case 'O':
		third, err := r.reader.ReadByte()
		if err != nil {
			return false
		}
		seq = string(third)
	default:
		return false
	}

	switch seq {
	case "A":
		return r.recall(buffer, r.history.Previous)
	case "B":
		return r.recall(buffer, func(string) (string, bool) { return r.history.Next() })
	case "D":
		return buffer.MoveLeft()
	case "C":
		return buffer.MoveRight()
	case "H", "1~", "7~":
		return buffer.MoveHome()
	case "F", "4~", "8~":
		return buffer.MoveEnd()
	case "3~":
		return buffer.Delete()
	}
	return false
}

func (r *rawLineReader) recall(buffer *lineBuffer, step func(string) (string, bool)) bool {
	line, ok := step(buffer.String())
	if !ok {
		return false
	}
	buffer.Set(line)
	return true
}

func readCSISequence(reader *bufio.Reader) (string, error) {
	var seq []byte
	for len(seq) <= 6 {
		b, err := reader.ReadByte()
		if err != nil {
			return "", err
		}
		seq = append(seq, b)
		if b == '~' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') {
			break
		}
	}
	return string(seq), nil
}

// newLineReader picks the raw editor for terminals and plain line reads otherwise.
func newLineReader(input io.Reader, output io.Writer) lineReader {
	if file, ok := input.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return newRawLineReader(file, output)
	}
	return newCanonicalLineReader(input, output)
}
