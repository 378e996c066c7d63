// Package navigation walks a user through a multi-step guide returned by the
// backend.
//
// The machine is not safe for concurrent use; it is driven from the single
// event loop that owns the widget session.
//
//	Idle ──present──▶ Presenting ──start──▶ StepActive(i) ──advance──▶ StepActive(i+1) | Completed
//	                      │                      │
//	                      └────────stop──────────┴──▶ Stopped
package navigation

import (
	"errors"
	"fmt"
	"strings"

	"leo-chat/internal/domain"
)

var (
	// ErrEmptyGuide is returned when starting a guide that has no steps.
	ErrEmptyGuide = errors.New("navigation: guide has no steps")
	// ErrInvalidState is returned by controls invoked outside the state that
	// accepts them. The machine is left unchanged.
	ErrInvalidState = errors.New("navigation: invalid state")
)

type State int

const (
	Idle State = iota
	Presenting
	StepActive
	Stopped
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Presenting:
		return "presenting"
	case StepActive:
		return "step_active"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether the guide is being walked.
func (s State) Active() bool {
	return s == StepActive
}

type EventKind int

const (
	EventPresented EventKind = iota + 1
	EventStarted
	EventStepShown
	EventHelp
	EventCompleted
	EventStopped
)

const (
	startedText   = "🚀 Starting step-by-step navigation guide! I'll walk you through each step."
	advanceText   = "Great! Moving to the next step..."
	completedText = "🎉 Congratulations! You've completed all navigation steps. You should now be able to accomplish your goal on MOSDAC!"
	stoppedText   = "Navigation guidance stopped. Feel free to ask for help anytime!"
)

// Event is one piece of output produced by a transition. Text is a bot
// message; Step, when set, is the step card to display.
type Event struct {
	Kind  EventKind
	Text  string
	Step  *domain.StepCard
	Guide *domain.NavigationGuide
}

// Machine holds the current guide and the user's position in it.
type Machine struct {
	guide domain.NavigationGuide
	state State
	index int
}

func New() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	return m.state
}

// CurrentIndex is the 0-based position of the active step. It is in
// [0, len(steps)] and equals len(steps) once the guide is completed.
func (m *Machine) CurrentIndex() int {
	return m.index
}

// Guide returns a copy of the current guide. It stays inspectable after the
// session is stopped or completed.
func (m *Machine) Guide() domain.NavigationGuide {
	return m.guide.Clone()
}

// CurrentStep returns the active step, if any.
func (m *Machine) CurrentStep() (domain.NavigationStep, bool) {
	if m.state != StepActive {
		return domain.NavigationStep{}, false
	}
	return m.guide.Steps[m.index], true
}

// Present replaces whatever guide is held with g and waits for the user to
// start it.
func (m *Machine) Present(g domain.NavigationGuide) []Event {
	m.guide = g.Clone()
	m.state = Presenting
	m.index = 0
	guide := m.guide.Clone()
	return []Event{{Kind: EventPresented, Guide: &guide}}
}

// Start begins walking g from its first step, discarding any session in
// progress. An empty guide leaves the machine untouched.
func (m *Machine) Start(g domain.NavigationGuide) ([]Event, error) {
	if len(g.Steps) == 0 {
		return nil, ErrEmptyGuide
	}
	m.guide = g.Clone()
	m.state = StepActive
	m.index = 0
	return []Event{
		{Kind: EventStarted, Text: startedText},
		m.stepEvent(),
	}, nil
}

// Begin starts the guide held by the machine, typically the presented one.
func (m *Machine) Begin() ([]Event, error) {
	return m.Start(m.guide)
}

// Advance marks the current step done and moves to the next one, or
// completes the guide after the last step.
func (m *Machine) Advance() ([]Event, error) {
	if m.state != StepActive {
		return nil, fmt.Errorf("%w: advance while %s", ErrInvalidState, m.state)
	}
	m.index++
	if m.index >= len(m.guide.Steps) {
		m.index = len(m.guide.Steps)
		m.state = Completed
		return []Event{{Kind: EventCompleted, Text: completedText}}, nil
	}
	return []Event{
		{Kind: EventStepShown, Text: advanceText},
		m.stepEvent(),
	}, nil
}

// Help describes the current step in more detail without changing state.
func (m *Machine) Help() (Event, error) {
	step, ok := m.CurrentStep()
	if !ok {
		return Event{}, fmt.Errorf("%w: help while %s", ErrInvalidState, m.state)
	}
	return Event{Kind: EventHelp, Text: helpText(step)}, nil
}

// Stop abandons the guide. Stopping an already stopped machine does nothing.
func (m *Machine) Stop() ([]Event, error) {
	switch m.state {
	case Stopped:
		return nil, nil
	case StepActive, Presenting:
		m.state = Stopped
		m.index = 0
		return []Event{{Kind: EventStopped, Text: stoppedText}}, nil
	default:
		return nil, fmt.Errorf("%w: stop while %s", ErrInvalidState, m.state)
	}
}

// Reset returns the machine to Idle and drops the guide.
func (m *Machine) Reset() {
	*m = Machine{}
}

func (m *Machine) stepEvent() Event {
	return Event{
		Kind: EventStepShown,
		Step: &domain.StepCard{
			Step:  cloneStep(m.guide.Steps[m.index]),
			Total: len(m.guide.Steps),
		},
	}
}

func helpText(step domain.NavigationStep) string {
	var b strings.Builder
	b.WriteString("Let me provide more details for this step:\n\n")
	fmt.Fprintf(&b, "**Page:** %s\n", step.PageTitle)
	fmt.Fprintf(&b, "**Description:** %s\n", step.Description)
	fmt.Fprintf(&b, "**Detailed Action:** %s\n\n", step.Action)
	fmt.Fprintf(&b, "**What you should see:** %s\n\n", strings.Join(step.ExpectedElements, ", "))
	b.WriteString("If you're still having trouble, try refreshing the page or checking if you're on the correct MOSDAC page.")
	return b.String()
}

func cloneStep(s domain.NavigationStep) domain.NavigationStep {
	s.ExpectedElements = append([]string(nil), s.ExpectedElements...)
	return s
}
