package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question when stdin is a terminal. Without a
// terminal (scripts, pipes) the answer is yes.
func Confirm(reader *bufio.Reader, prompt string, w io.Writer) bool {
	if !isTerminal(int(os.Stdin.Fd())) {
		return true
	}
	answer, err := GetSimpleText(reader, prompt+" [y/N]", w)
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "o", "oui":
		return true
	}
	return false
}

// GetFields prompts for record fields in "name=value" form, one per line,
// ending on an empty line.
func GetFields(reader *bufio.Reader, w io.Writer) ([]string, error) {
	if _, err := fmt.Fprintln(w, "Enter fields in the format name=value (empty line to finish)"); err != nil {
		return nil, err
	}

	lines := make([]string, 0)
	for {
		line, _ := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// FieldsJSON turns name=value pairs into a JSON object. Values that are
// JSON literals (true, false, null, arrays, objects) keep their type;
// everything else is a string.
func FieldsJSON(fields []string) ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("field %q: expected name=value", f)
		}
		value = strings.TrimSpace(value)

		if literal(value) {
			obj[name] = json.RawMessage(value)
			continue
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		obj[name] = b
	}
	return json.Marshal(obj)
}

func literal(v string) bool {
	switch v {
	case "true", "false", "null":
		return true
	}
	if strings.HasPrefix(v, "[") || strings.HasPrefix(v, "{") {
		return json.Valid([]byte(v))
	}
	return false
}
