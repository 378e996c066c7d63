// Package messagelog keeps the ordered, append-only record of chat turns
// and renders it to markup.
package messagelog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leo-chat/internal/domain"
)

var (
	ErrUnknownMessage = errors.New("messagelog: unknown message")
	ErrNoSuchSource   = errors.New("messagelog: source index out of range")
)

// Log is not safe for concurrent use.
type Log struct {
	messages []domain.ChatMessage
	byID     map[string]int

	now   func() time.Time
	newID func(time.Time) string
}

func New() *Log {
	return &Log{
		byID:  make(map[string]int),
		now:   time.Now,
		newID: func(ts time.Time) string { return NewID("msg", ts) },
	}
}

// NewID returns "<prefix>_<unix millis>_<9 random chars>".
func NewID(prefix string, ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, ts.UnixMilli(), suffix)
}

// Append records a plain text turn and returns its id.
func (l *Log) Append(role domain.Role, text string, sources ...domain.Source) string {
	return l.add(domain.ChatMessage{
		Role:    role,
		Text:    text,
		Sources: append([]domain.Source(nil), sources...),
	})
}

// AppendGuide records the overview card of a freshly received guide.
func (l *Log) AppendGuide(g domain.NavigationGuide) string {
	guide := g.Clone()
	return l.add(domain.ChatMessage{Role: domain.RoleBot, Text: g.Goal, Guide: &guide})
}

// AppendStep records the card of the step the user should perform next.
func (l *Log) AppendStep(card domain.StepCard) string {
	c := card
	c.Step.ExpectedElements = append([]string(nil), card.Step.ExpectedElements...)
	return l.add(domain.ChatMessage{
		Role: domain.RoleBot,
		Text: fmt.Sprintf("Step %d: %s", card.Step.Index, card.Step.PageTitle),
		Step: &c,
	})
}

func (l *Log) add(msg domain.ChatMessage) string {
	msg.CreatedAt = l.now()
	msg.ID = l.newID(msg.CreatedAt)
	for {
		if _, taken := l.byID[msg.ID]; !taken {
			break
		}
		msg.ID = l.newID(msg.CreatedAt)
	}
	l.byID[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
	return msg.ID
}

func (l *Log) Len() int {
	return len(l.messages)
}

// Get returns a copy of the message with the given id.
func (l *Log) Get(id string) (domain.ChatMessage, bool) {
	i, ok := l.byID[id]
	if !ok {
		return domain.ChatMessage{}, false
	}
	return cloneMessage(l.messages[i]), true
}

// Messages returns copies of all messages in append order.
func (l *Log) Messages() []domain.ChatMessage {
	return l.Since(0)
}

// Since returns copies of the messages appended at or after position n.
func (l *Log) Since(n int) []domain.ChatMessage {
	if n < 0 {
		n = 0
	}
	if n >= len(l.messages) {
		return nil
	}
	out := make([]domain.ChatMessage, 0, len(l.messages)-n)
	for _, m := range l.messages[n:] {
		out = append(out, cloneMessage(m))
	}
	return out
}

// Source returns the index-th source attached to message id.
func (l *Log) Source(id string, index int) (domain.Source, error) {
	i, ok := l.byID[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	sources := l.messages[i].Sources
	if index < 0 || index >= len(sources) {
		return domain.Source{}, fmt.Errorf("%w: %d of %d", ErrNoSuchSource, index, len(sources))
	}
	return sources[index], nil
}

func cloneMessage(m domain.ChatMessage) domain.ChatMessage {
	m.Sources = append([]domain.Source(nil), m.Sources...)
	if m.Guide != nil {
		g := m.Guide.Clone()
		m.Guide = &g
	}
	if m.Step != nil {
		c := *m.Step
		c.Step.ExpectedElements = append([]string(nil), c.Step.ExpectedElements...)
		m.Step = &c
	}
	return m
}
