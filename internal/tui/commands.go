package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errNotCommand = errors.New("tui: not a command")

// command is a parsed slash command. rest is everything after the name,
// with surrounding space trimmed.
type command struct {
	name string
	args []string
	rest string
}

const commandHelp = "Commands: /start /next /help /stop /rate <1-5> [comment] /skip /sources <n> /lang <code> /status /quit"

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, errNotCommand
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return command{}, fmt.Errorf("empty command. %s", commandHelp)
	}
	rest = strings.TrimSpace(rest)
	return command{name: name, args: strings.Fields(rest), rest: rest}, nil
}

// rating parses "/rate <n> [comment]".
func (c command) rating() (int, string, error) {
	if len(c.args) == 0 {
		return 0, "", errors.New("usage: /rate <1-5> [comment]")
	}
	n, err := strconv.Atoi(c.args[0])
	if err != nil {
		return 0, "", fmt.Errorf("rating must be a number from 1 to 5, got %q", c.args[0])
	}
	comment := strings.TrimSpace(strings.TrimPrefix(c.rest, c.args[0]))
	return n, comment, nil
}

// index parses the 1-based argument of "/sources <n>".
func (c command) index() (int, error) {
	if len(c.args) != 1 {
		return 0, errors.New("usage: /sources <n>")
	}
	n, err := strconv.Atoi(c.args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("source number must be 1 or more, got %q", c.args[0])
	}
	return n, nil
}
