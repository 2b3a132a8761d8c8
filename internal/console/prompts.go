package console

import (
	"fmt"
	"strconv"
	"strings"
)

// readLine returns the next operator input line, trimmed. io.EOF after the
// final line is reported so menu loops can exit instead of spinning.
func (s *Session) readLine() (string, error) {
	line, err := s.In.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// prompt asks for a free-text value. The default is shown in brackets and
// accepted on empty input.
func (s *Session) prompt(label, def string) string {
	if def != "" {
		fmt.Fprintf(s.Out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(s.Out, "%s: ", label)
	}
	line, err := s.readLine()
	if err != nil || line == "" {
		return def
	}
	return line
}

// promptFloat asks for a numeric value, re-prompting on garbage. hasDef
// controls whether the zero value is a real default (0 is a legal
// longitude) or absence.
func (s *Session) promptFloat(label string, def float64, hasDef bool) float64 {
	for {
		defText := ""
		if hasDef {
			defText = strconv.FormatFloat(def, 'f', -1, 64)
		}
		text := s.prompt(label, defText)
		if text == "" {
			if hasDef {
				return def
			}
			fmt.Fprintln(s.Out, "  a value is required")
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			fmt.Fprintf(s.Out, "  %q is not a number\n", text)
			continue
		}
		return v
	}
}

// promptChoice reads a numbered menu selection in [min, max].
func (s *Session) promptChoice(label string, min, max int) (int, error) {
	for {
		fmt.Fprintf(s.Out, "%s: ", label)
		line, err := s.readLine()
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(line)
		if convErr != nil || n < min || n > max {
			fmt.Fprintf(s.Out, "  enter a number between %d and %d\n", min, max)
			continue
		}
		return n, nil
	}
}

// confirm asks a yes/no question; empty input takes the default.
func (s *Session) confirm(label string, defYes bool) bool {
	suffix := "[y/N]"
	if defYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(s.Out, "%s %s: ", label, suffix)
	line, err := s.readLine()
	if err != nil || line == "" {
		return defYes
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// typedAffirmation requires the operator to type an exact word before an
// irreversible step proceeds.
func (s *Session) typedAffirmation(word string) bool {
	fmt.Fprintf(s.Out, "Type %q to continue, anything else aborts: ", word)
	line, err := s.readLine()
	if err != nil {
		return false
	}
	return line == word
}
