// Package feedback collects star ratings for bot replies. A message can be
// rated at most once per session.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leo-chat/internal/domain"
)

const (
	ThanksText   = "Thank you for your feedback! It helps me improve my responses."
	FailureAlert = "Failed to submit feedback. Please try again."
)

var (
	ErrValidation   = errors.New("feedback: validation failed")
	ErrAlreadyRated = errors.New("feedback: message already rated")
	ErrNoDraft      = errors.New("feedback: no open draft")
	ErrSubmitting   = errors.New("feedback: submission already in flight")
)

type Submitter interface {
	SubmitFeedback(ctx context.Context, rec domain.FeedbackRecord) (domain.FeedbackAck, error)
}

type Appender interface {
	Append(role domain.Role, text string, sources ...domain.Source) string
}

// Draft is the rating being composed for one bot message.
type Draft struct {
	MessageID   string
	UserQuery   string
	BotResponse string
	Rating      int
}

// Collector is not safe for concurrent use.
type Collector struct {
	sessionID string
	language  string
	log       Appender
	submitter Submitter

	draft      *Draft
	rated      map[string]bool
	submitting map[string]bool
}

func NewCollector(sessionID, language string, log Appender, submitter Submitter) *Collector {
	return &Collector{
		sessionID:  sessionID,
		language:   language,
		log:        log,
		submitter:  submitter,
		rated:      make(map[string]bool),
		submitting: make(map[string]bool),
	}
}

func (c *Collector) SetLanguage(code string) {
	c.language = code
}

func (c *Collector) IsRated(messageID string) bool {
	return c.rated[messageID]
}

// IsSubmitting reports whether a record for messageID has been prepared but
// not yet resolved.
func (c *Collector) IsSubmitting(messageID string) bool {
	return c.submitting[messageID]
}

// OpenFor starts a draft for messageID with no stars selected. It reports
// false and does nothing if the message is already rated.
func (c *Collector) OpenFor(messageID, userQuery, botResponse string) bool {
	if c.rated[messageID] {
		return false
	}
	c.draft = &Draft{MessageID: messageID, UserQuery: userQuery, BotResponse: botResponse}
	return true
}

// Draft returns the open draft, if any.
func (c *Collector) Draft() (Draft, bool) {
	if c.draft == nil || c.rated[c.draft.MessageID] {
		return Draft{}, false
	}
	return *c.draft, true
}

func (c *Collector) SetRating(n int) error {
	if c.draft == nil {
		return ErrNoDraft
	}
	if n < domain.MinRating || n > domain.MaxRating {
		return fmt.Errorf("%w: rating %d outside %d..%d", ErrValidation, n, domain.MinRating, domain.MaxRating)
	}
	c.draft.Rating = n
	return nil
}

// Prepare builds the record to send for the open draft and marks the message
// as submitting until Resolve sees the outcome.
func (c *Collector) Prepare(comment string) (domain.FeedbackRecord, error) {
	if c.draft == nil {
		return domain.FeedbackRecord{}, ErrNoDraft
	}
	if c.rated[c.draft.MessageID] {
		return domain.FeedbackRecord{}, ErrAlreadyRated
	}
	if c.submitting[c.draft.MessageID] {
		return domain.FeedbackRecord{}, ErrSubmitting
	}
	if c.draft.Rating == 0 {
		return domain.FeedbackRecord{}, fmt.Errorf("%w: please select a rating", ErrValidation)
	}
	c.submitting[c.draft.MessageID] = true
	return domain.FeedbackRecord{
		SessionID:   c.sessionID,
		MessageID:   c.draft.MessageID,
		Type:        domain.FeedbackResponseRating,
		Rating:      c.draft.Rating,
		Comment:     strings.TrimSpace(comment),
		UserQuery:   c.draft.UserQuery,
		BotResponse: c.draft.BotResponse,
		Language:    c.language,
	}, nil
}

// Send delivers rec. It only reads captured values so it can run off the
// event loop.
func Send(ctx context.Context, s Submitter, rec domain.FeedbackRecord) error {
	if _, err := s.SubmitFeedback(ctx, rec); err != nil {
		return fmt.Errorf("feedback: submit %s: %w", rec.MessageID, err)
	}
	return nil
}

// Resolve applies the outcome of sending rec. On success the message is
// marked rated and a thank-you is appended. On failure the draft is kept
// open with its rating so the user can retry.
func (c *Collector) Resolve(rec domain.FeedbackRecord, err error) error {
	delete(c.submitting, rec.MessageID)
	if err != nil {
		return err
	}
	if c.rated[rec.MessageID] {
		return nil
	}
	c.rated[rec.MessageID] = true
	c.log.Append(domain.RoleBot, ThanksText)
	return nil
}

// Submit selects rating and sends the open draft synchronously. Submitting
// for an already rated message is a no-op. A rating outside 1..5, including
// 0, is a validation error.
func (c *Collector) Submit(ctx context.Context, rating int, comment string) error {
	if c.draft != nil && c.rated[c.draft.MessageID] {
		return nil
	}
	if err := c.SetRating(rating); err != nil {
		return err
	}
	rec, err := c.Prepare(comment)
	if err != nil {
		return err
	}
	return c.Resolve(rec, Send(ctx, c.submitter, rec))
}

// Close discards the open draft.
func (c *Collector) Close() {
	c.draft = nil
}
