package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"leo-chat/internal/domain"
	"leo-chat/internal/tui"
	"leo-chat/internal/usecase"
)

const plainWidth = 80

var statusFormat string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var guideCmd = &cobra.Command{
	Use:   "guide <what to find>",
	Short: "Walk through a navigation guide step by step",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGuide,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend system status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var renderCmd = &cobra.Command{
	Use:   "render <question>",
	Short: "Ask one question and print the transcript as HTML",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRender,
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(cmd.Context(), a.widget, tui.Options{StatusInterval: a.cfg.StatusInterval})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run chat: %w", err)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := askOnce(cmd, a.widget, strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, msg := range out {
		fmt.Fprintln(cmd.OutOrStdout(), tui.PlainMessage(msg, plainWidth))
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := askOnce(cmd, a.widget, strings.Join(args, " ")); err != nil {
		return err
	}
	html, err := a.widget.RenderHTML()
	if err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), html)
	return nil
}

// askOnce sends question and returns the bot messages it produced. The
// apology is still returned when the backend fails.
func askOnce(cmd *cobra.Command, w *usecase.Widget, question string) ([]domain.ChatMessage, error) {
	before := w.Len()
	task, ok := w.Send(question)
	if !ok {
		return nil, errors.New("question is empty")
	}
	res := w.Run(cmd.Context(), task)
	msgs := w.MessagesSince(before + 1)
	if res.Err != nil && len(msgs) == 0 {
		return nil, res.Err
	}
	return msgs, nil
}

func runGuide(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w := a.widget
	stdout := cmd.OutOrStdout()
	printed := w.Len()
	flush := func() {
		for _, msg := range w.MessagesSince(printed) {
			fmt.Fprintln(stdout, tui.PlainMessage(msg, plainWidth))
			fmt.Fprintln(stdout)
		}
		printed = w.Len()
	}

	task, ok := w.RequestGuide(strings.Join(args, " "))
	if !ok {
		return errors.New("request is empty")
	}
	printed++ // the echoed request
	res := w.Run(cmd.Context(), task)
	flush()
	if res.Err != nil {
		return res.Err
	}
	if err := w.StartGuide(); err != nil {
		flush()
		var ue *usecase.Error
		if errors.As(err, &ue) && ue.Code == usecase.ErrorEmptyGuide {
			return nil
		}
		return err
	}
	flush()
	return guideLoop(cmd.InOrStdin(), stdout, w, flush)
}

// guideLoop reads n(ext), h(elp), s(top) from in until the guide ends.
func guideLoop(in io.Reader, out io.Writer, w *usecase.Widget, flush func()) error {
	sc := bufio.NewScanner(in)
	for w.NavigationState().Active() {
		fmt.Fprint(out, "[n]ext, [h]elp, [s]top > ")
		if !sc.Scan() {
			break
		}
		var err error
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "n", "next", "":
			err = w.NextStep()
		case "h", "help":
			err = w.StepHelp()
		case "s", "stop", "q", "quit":
			err = w.StopGuide()
		default:
			fmt.Fprintln(out, "Type n, h or s.")
			continue
		}
		if err != nil {
			return err
		}
		flush()
	}
	return sc.Err()
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	a.widget.Run(cmd.Context(), a.widget.CheckStatus())
	sv := a.widget.Status()
	if !sv.Online {
		if sv.Err != nil {
			return fmt.Errorf("%s: %w", sv.Text(), sv.Err)
		}
		return errors.New(sv.Text())
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(statusFormat) {
	case "text", "":
		fmt.Fprintln(out, sv.Text())
		fmt.Fprintln(out, tui.FormatStatus(sv.System))
	case "json":
		b, err := json.MarshalIndent(sv.System, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		fmt.Fprintln(out, string(b))
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(sv.System); err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", statusFormat)
	}
	return nil
}
