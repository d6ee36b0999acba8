// pkg/cli/shell.go
package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	mainPrompt     = "vmkern> "
	continuePrompt = "   ...> "

	defaultHistoryLimit = 1000
)

// ErrUnterminatedQuote is returned by SplitArgs for an open quote
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Shell reads commands for the memory-manager shell. A command is one
// line; a line ending in a backslash continues on the next.
type Shell struct {
	in  *bufio.Reader // nil means no input, every read is EOF
	out io.Writer     // prompts; nil suppresses them

	history []string
	limit   int
}

// NewShell creates a shell reading from input and prompting on output.
func NewShell(input io.Reader, output io.Writer) *Shell {
	s := &Shell{out: output, limit: defaultHistoryLimit}
	if input != nil {
		s.in = bufio.NewReader(input)
	}
	return s
}

// ReadLine returns the next input line without its trailing blanks and
// whether input is exhausted.
func (s *Shell) ReadLine() (string, bool) {
	if s.in == nil {
		return "", true
	}
	line, err := s.in.ReadString('\n')
	return strings.TrimRight(line, " \t\r\n"), err != nil
}

func (s *Shell) prompt(text string) {
	if s.out != nil {
		io.WriteString(s.out, text)
	}
}

// ReadCommand reads one command, joining backslash-continued lines with
// a single space. Returns the command and whether EOF was reached.
func (s *Shell) ReadCommand() (string, bool) {
	var parts []string
	s.prompt(mainPrompt)

	for {
		line, eof := s.ReadLine()
		if eof && line == "" && parts == nil {
			return "", true
		}
		parts = append(parts, strings.TrimSuffix(line, `\`))

		if IsComplete(line) || eof {
			cmd := strings.TrimSpace(strings.Join(parts, " "))
			s.remember(cmd)
			return cmd, eof
		}
		s.prompt(continuePrompt)
	}
}

// IsComplete reports whether line ends the command: it is complete
// unless its last character is a backslash outside quotes.
func IsComplete(line string) bool {
	inQuote := rune(0)
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '\'' || r == '"':
			inQuote = r
		}
	}
	return !escaped || inQuote != 0
}

// SplitArgs splits a command into words. Single or double quotes group
// words with spaces; a backslash escapes the next character.
func SplitArgs(cmd string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inWord := false
	inQuote := rune(0)
	escaped := false

	for _, r := range cmd {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
			inWord = true
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			inQuote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if inQuote != 0 {
		return nil, ErrUnterminatedQuote
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}

// remember appends cmd to the history unless it is empty or repeats the
// previous entry. The oldest entries fall off past the limit.
func (s *Shell) remember(cmd string) {
	if cmd == "" {
		return
	}
	if n := len(s.history); n > 0 && s.history[n-1] == cmd {
		return
	}
	s.history = append(s.history, cmd)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// History returns the remembered commands, oldest first.
func (s *Shell) History() []string {
	return append([]string(nil), s.history...)
}
