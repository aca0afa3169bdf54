// Package prompt provides resolver.Prompter implementations: a line-based
// terminal prompter and a scripted one for non-interactive runs and tests.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/git-pkgs/pubcheck/internal/resolver"
	"github.com/git-pkgs/pubcheck/internal/ui"
)

var (
	questionStyle = ui.QuestionText
	markerStyle   = ui.QuestionMarker
	hintStyle     = ui.Hint
)

// Terminal asks questions on a line-oriented terminal. End of input cancels
// the workflow.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a Terminal reading answers from in and writing
// questions to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) ask(msg, hint string) (string, error) {
	line := markerStyle.Render("?") + " " + questionStyle.Render(msg)
	if hint != "" {
		line += " " + hintStyle.Render(hint)
	}
	fmt.Fprint(t.out, line+" ")

	answer, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(answer) == "" {
			fmt.Fprintln(t.out)
			return "", resolver.ErrCancelled
		}
		if !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	return strings.TrimSpace(answer), nil
}

// Confirm asks a yes/no question. An empty answer selects def.
func (t *Terminal) Confirm(msg string, def bool) (bool, error) {
	hint := "(y/N)"
	if def {
		hint = "(Y/n)"
	}
	for {
		answer, err := t.ask(msg, hint)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, hintStyle.Render("Please answer y or n."))
	}
}

// Select lists choices and reads either a choice number or a choice value.
func (t *Terminal) Select(msg string, choices []resolver.Choice) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("no choices to select from")
	}
	for {
		fmt.Fprintln(t.out, markerStyle.Render("?")+" "+questionStyle.Render(msg))
		for i, c := range choices {
			fmt.Fprintf(t.out, "  %s %s\n", hintStyle.Render(strconv.Itoa(i+1)+")"), c.Label)
		}
		answer, err := t.ask("Choice", fmt.Sprintf("[1-%d]", len(choices)))
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
			return choices[n-1].Value, nil
		}
		for _, c := range choices {
			if strings.EqualFold(answer, c.Value) {
				return c.Value, nil
			}
		}
		fmt.Fprintln(t.out, hintStyle.Render("Please pick one of the listed options."))
	}
}

// Input reads a free-text answer. An empty answer selects def.
func (t *Terminal) Input(msg, def string) (string, error) {
	hint := ""
	if def != "" {
		hint = "(" + def + ")"
	}
	answer, err := t.ask(msg, hint)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// ErrScriptExhausted is returned by Scripted when it runs out of answers.
var ErrScriptExhausted = errors.New("prompt script has no more answers")

// Scripted answers prompts from fixed queues and records every question.
type Scripted struct {
	Confirms []bool
	Selects  []string
	Inputs   []string

	// Asked records each prompt message in order.
	Asked []string
}

func (s *Scripted) Confirm(msg string, def bool) (bool, error) {
	s.Asked = append(s.Asked, msg)
	if len(s.Confirms) == 0 {
		return false, fmt.Errorf("confirm %q: %w", msg, ErrScriptExhausted)
	}
	v := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return v, nil
}

func (s *Scripted) Select(msg string, choices []resolver.Choice) (string, error) {
	s.Asked = append(s.Asked, msg)
	if len(s.Selects) == 0 {
		return "", fmt.Errorf("select %q: %w", msg, ErrScriptExhausted)
	}
	v := s.Selects[0]
	s.Selects = s.Selects[1:]
	for _, c := range choices {
		if c.Value == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("select %q: %q is not an offered choice", msg, v)
}

func (s *Scripted) Input(msg, def string) (string, error) {
	s.Asked = append(s.Asked, msg)
	if len(s.Inputs) == 0 {
		return "", fmt.Errorf("input %q: %w", msg, ErrScriptExhausted)
	}
	v := s.Inputs[0]
	s.Inputs = s.Inputs[1:]
	if v == "" {
		return def, nil
	}
	return v, nil
}
