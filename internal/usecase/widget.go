package usecase

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"
	"time"

	"leo-chat/internal/domain"
	"leo-chat/internal/feedback"
	"leo-chat/internal/integrations/leoapi"
	"leo-chat/internal/messagelog"
	"leo-chat/internal/navigation"
)

const (
	DefaultIntentThreshold = 0.6

	WelcomeText = "Hello! I'm LEO, your MOSDAC assistant. Ask me about satellite data, products and services, or ask me how to find something on the portal."

	chatOfflineText  = "Sorry, I'm having trouble connecting right now. Please try again."
	chatEmptyText    = "Sorry, I encountered an error processing your request."
	guideFailedText  = "Sorry, I couldn't generate navigation guidance for that request."
	guideOfflineText = "Sorry, navigation service is temporarily unavailable."
	guideErrorText   = "Sorry, I encountered an error with navigation guidance."
	noStepsText      = "No navigation steps available. Please ask for navigation help first."
	languageText     = "Language changed to %s. I can now respond in your selected language."
)

type Gateway interface {
	ClassifyIntent(ctx context.Context, query string) (domain.Intent, error)
	Chat(ctx context.Context, in domain.ChatRequest) (domain.ChatReply, error)
	NavigationGuide(ctx context.Context, query, userID string) (domain.NavigationGuide, error)
	SubmitFeedback(ctx context.Context, rec domain.FeedbackRecord) (domain.FeedbackAck, error)
	SystemStatus(ctx context.Context) (domain.SystemStatus, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Task performs gateway I/O off the event loop. It only reads values
// captured when it was created; its Result must be handed back to Apply.
type Task func(ctx context.Context) Result

type resultKind int

const (
	resultChat resultKind = iota + 1
	resultGuide
	resultFeedback
	resultStatus
)

// Result is the outcome of a Task, opaque to callers.
type Result struct {
	kind   resultKind
	gen    uint64
	query  string
	reply  domain.ChatReply
	guide  domain.NavigationGuide
	record domain.FeedbackRecord
	status domain.SystemStatus
	err    error
}

// Outcome tells the front end what applying a Result changed.
type Outcome struct {
	// Appended is the number of messages added to the log.
	Appended int
	// Alert is an inline notice that is not part of the transcript.
	Alert string
	// Dropped is set when the result was stale or the widget is closed.
	Dropped bool
	// FeedbackSent is set when a rating was accepted.
	FeedbackSent bool
	// StatusUpdated is set when the status panel changed.
	StatusUpdated bool
	Err           error
}

// StatusView backs the status line and the system info panel.
type StatusView struct {
	Checked   bool
	Online    bool
	CheckedAt time.Time
	System    domain.SystemStatus
	Err       error
}

func (s StatusView) Text() string {
	switch {
	case !s.Checked:
		return "Checking..."
	case s.Online:
		return "System Online"
	default:
		return "System Offline"
	}
}

type Config struct {
	Language        string
	IntentThreshold *float64 // nil selects DefaultIntentThreshold
	SessionID       string
	Logger          *slog.Logger
}

type candidate struct {
	userQuery   string
	botResponse string
}

// Widget is one chat session: the message log, the navigation machine and
// the feedback collector. It is not safe for concurrent use; every method
// except the Tasks it returns must be called from one goroutine.
type Widget struct {
	gw        Gateway
	logger    *slog.Logger
	sessionID string
	language  string
	threshold float64

	log *messagelog.Log
	nav *navigation.Machine
	fb  *feedback.Collector

	navGen     uint64
	inFlight   map[string]bool
	candidates map[string]candidate
	lastReply  string
	status     StatusView
	closed     bool
}

func New(gw Gateway, cfg Config) (*Widget, error) {
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	if _, ok := LanguageName(lang); !ok {
		return nil, fmt.Errorf("usecase: unsupported language %q", lang)
	}
	threshold := DefaultIntentThreshold
	if cfg.IntentThreshold != nil {
		threshold = *cfg.IntentThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("usecase: intent threshold %v outside [0,1]", threshold)
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w := &Widget{
		gw:         gw,
		logger:     logger.With("session_id", sessionID),
		sessionID:  sessionID,
		language:   lang,
		threshold:  threshold,
		log:        messagelog.New(),
		nav:        navigation.New(),
		inFlight:   make(map[string]bool),
		candidates: make(map[string]candidate),
	}
	w.fb = feedback.NewCollector(sessionID, lang, w.log, gw)
	return w, nil
}

// NewSessionID returns "session_<unix millis>_<9 random chars>".
func NewSessionID() string {
	return messagelog.NewID("session", time.Now())
}

// Close ends the session. Results applied afterwards are dropped.
func (w *Widget) Close() {
	w.closed = true
	w.inFlight = make(map[string]bool)
	w.fb.Close()
}

func (w *Widget) SessionID() string { return w.sessionID }
func (w *Widget) Language() string  { return w.language }

// Greet appends the welcome message.
func (w *Widget) Greet() string {
	return w.log.Append(domain.RoleBot, WelcomeText)
}

// Messages returns a copy of the transcript.
func (w *Widget) Messages() []domain.ChatMessage {
	return w.log.Messages()
}

// MessagesSince returns the messages appended at or after position n.
func (w *Widget) MessagesSince(n int) []domain.ChatMessage {
	return w.log.Since(n)
}

func (w *Widget) Len() int {
	return w.log.Len()
}

// RenderHTML renders the whole transcript as escaped HTML.
func (w *Widget) RenderHTML() (template.HTML, error) {
	return messagelog.RenderTranscript(w.log.Messages())
}

func (w *Widget) NavigationState() navigation.State {
	return w.nav.State()
}

// Pending reports whether any chat or guide request is in flight.
func (w *Widget) Pending() bool {
	return len(w.inFlight) > 0
}

func (w *Widget) Status() StatusView {
	return w.status
}

// Run executes task on the calling goroutine and applies its result.
func (w *Widget) Run(ctx context.Context, task Task) Outcome {
	if task == nil {
		return Outcome{}
	}
	return w.Apply(task(ctx))
}

// ---- Chat ----

// Send records the user's question and returns the task that answers it.
// Empty input and a repeat of a question still in flight return false.
func (w *Widget) Send(text string) (Task, bool) {
	return w.send(text, false)
}

// RequestGuide is Send without intent classification: the question always
// goes to the navigation guide endpoint.
func (w *Widget) RequestGuide(text string) (Task, bool) {
	return w.send(text, true)
}

func (w *Widget) send(text string, forceGuide bool) (Task, bool) {
	query := strings.TrimSpace(text)
	if w.closed || query == "" || w.inFlight[query] {
		return nil, false
	}
	w.log.Append(domain.RoleUser, query)
	w.inFlight[query] = true
	w.navGen++

	var (
		gw        = w.gw
		gen       = w.navGen
		sessionID = w.sessionID
		language  = w.language
		threshold = w.threshold
		logger    = w.logger
	)
	return func(ctx context.Context) Result {
		navigate := forceGuide
		if !navigate {
			intent, err := gw.ClassifyIntent(ctx, query)
			if err != nil {
				logger.Debug("intent classification failed", "err", err)
			}
			navigate = err == nil && intent.Confidence > threshold
		}
		if navigate {
			guide, err := gw.NavigationGuide(ctx, query, sessionID)
			return Result{kind: resultGuide, gen: gen, query: query, guide: guide, err: err}
		}
		reply, err := gw.Chat(ctx, domain.ChatRequest{Query: query, SessionID: sessionID, Language: language})
		return Result{kind: resultChat, gen: gen, query: query, reply: reply, err: err}
	}, true
}

// Apply folds a task result into the session state.
func (w *Widget) Apply(r Result) Outcome {
	if w.closed {
		return Outcome{Dropped: true}
	}
	before := w.log.Len()
	var out Outcome
	switch r.kind {
	case resultChat:
		delete(w.inFlight, r.query)
		out = w.applyChat(r)
	case resultGuide:
		delete(w.inFlight, r.query)
		out = w.applyGuide(r)
	case resultFeedback:
		out = w.applyFeedback(r)
	case resultStatus:
		out = w.applyStatus(r)
	default:
		return Outcome{Dropped: true}
	}
	out.Appended = w.log.Len() - before
	return out
}

func (w *Widget) applyChat(r Result) Outcome {
	if r.err != nil {
		w.logger.Warn("chat request failed", "err", r.err)
		text := chatOfflineText
		code := ErrorNetwork
		if errors.Is(r.err, leoapi.ErrMalformedResponse) {
			text = chatEmptyText
			code = ErrorUpstream
		}
		w.log.Append(domain.RoleBot, text)
		return Outcome{Err: newError(code, "chat_failed", r.err)}
	}
	if strings.TrimSpace(r.reply.Text) == "" {
		w.log.Append(domain.RoleBot, chatEmptyText)
		return Outcome{Err: newError(ErrorUpstream, "empty_reply", nil)}
	}
	id := w.log.Append(domain.RoleBot, r.reply.Text, r.reply.Sources...)
	w.candidates[id] = candidate{userQuery: r.query, botResponse: r.reply.Text}
	w.lastReply = id
	return Outcome{}
}

func (w *Widget) applyGuide(r Result) Outcome {
	if r.gen != w.navGen {
		w.logger.Debug("dropping stale navigation guide", "query", r.query, "gen", r.gen, "current", w.navGen)
		return Outcome{Dropped: true}
	}
	if r.err != nil {
		w.logger.Warn("navigation guide request failed", "err", r.err)
		text, code := guideErrorText, ErrorNetwork
		var envErr *leoapi.EnvelopeError
		switch {
		case errors.As(r.err, &envErr):
			text, code = guideFailedText, ErrorUpstream
		case isHTTPStatus(r.err):
			text = guideOfflineText
		case errors.Is(r.err, leoapi.ErrMalformedResponse):
			code = ErrorUpstream
		}
		w.log.Append(domain.RoleBot, text)
		return Outcome{Err: newError(code, "guide_failed", r.err)}
	}
	w.emit(w.nav.Present(r.guide))
	return Outcome{}
}

// ---- Navigation controls ----

// StartGuide begins the presented guide from its first step.
func (w *Widget) StartGuide() error {
	w.navGen++
	events, err := w.nav.Begin()
	if errors.Is(err, navigation.ErrEmptyGuide) {
		w.log.Append(domain.RoleBot, noStepsText)
		return newError(ErrorEmptyGuide, "no_steps", err)
	}
	if err != nil {
		return newError(ErrorInvalidState, "start", err)
	}
	w.emit(events)
	return nil
}

func (w *Widget) NextStep() error {
	w.navGen++
	events, err := w.nav.Advance()
	if err != nil {
		return newError(ErrorInvalidState, "next", err)
	}
	w.emit(events)
	return nil
}

func (w *Widget) StepHelp() error {
	w.navGen++
	ev, err := w.nav.Help()
	if err != nil {
		return newError(ErrorInvalidState, "help", err)
	}
	w.emit([]navigation.Event{ev})
	return nil
}

func (w *Widget) StopGuide() error {
	w.navGen++
	events, err := w.nav.Stop()
	if err != nil {
		return newError(ErrorInvalidState, "stop", err)
	}
	w.emit(events)
	return nil
}

func (w *Widget) emit(events []navigation.Event) {
	for _, ev := range events {
		if ev.Text != "" {
			w.log.Append(domain.RoleBot, ev.Text)
		}
		if ev.Guide != nil {
			w.log.AppendGuide(*ev.Guide)
		}
		if ev.Step != nil {
			w.log.AppendStep(*ev.Step)
		}
	}
}

// ---- Feedback ----

// LatestRatable returns the newest bot reply that can still be rated.
func (w *Widget) LatestRatable() (string, bool) {
	if w.lastReply == "" || w.fb.IsRated(w.lastReply) {
		return "", false
	}
	return w.lastReply, true
}

// OpenFeedback opens a rating draft for a bot reply. It reports false when
// the reply is already rated.
func (w *Widget) OpenFeedback(messageID string) (bool, error) {
	c, ok := w.candidates[messageID]
	if !ok {
		return false, newError(ErrorValidation, "not_ratable", fmt.Errorf("message %s", messageID))
	}
	return w.fb.OpenFor(messageID, c.userQuery, c.botResponse), nil
}

func (w *Widget) FeedbackDraft() (feedback.Draft, bool) {
	return w.fb.Draft()
}

func (w *Widget) SetRating(n int) error {
	if err := w.fb.SetRating(n); err != nil {
		if errors.Is(err, feedback.ErrNoDraft) {
			return newError(ErrorInvalidState, "no_feedback_draft", err)
		}
		return newError(ErrorValidation, "rating", err)
	}
	return nil
}

// SubmitFeedback validates the open draft and returns the task that sends
// it. A nil task with a nil error means the message is already rated or a
// submission for it is still in flight.
func (w *Widget) SubmitFeedback(comment string) (Task, error) {
	rec, err := w.fb.Prepare(comment)
	switch {
	case errors.Is(err, feedback.ErrAlreadyRated), errors.Is(err, feedback.ErrSubmitting):
		return nil, nil
	case errors.Is(err, feedback.ErrNoDraft):
		return nil, newError(ErrorInvalidState, "no_feedback_draft", err)
	case err != nil:
		return nil, newError(ErrorValidation, "rating", err)
	}
	gw := w.gw
	return func(ctx context.Context) Result {
		return Result{kind: resultFeedback, record: rec, err: feedback.Send(ctx, gw, rec)}
	}, nil
}

func (w *Widget) applyFeedback(r Result) Outcome {
	if err := w.fb.Resolve(r.record, r.err); err != nil {
		w.logger.Warn("feedback submission failed", "message_id", r.record.MessageID, "err", err)
		return Outcome{Alert: feedback.FailureAlert, Err: newError(ErrorNetwork, "feedback_failed", err)}
	}
	w.fb.Close()
	return Outcome{FeedbackSent: true}
}

func (w *Widget) CloseFeedback() {
	w.fb.Close()
}

// ---- Language, status, sources ----

func (w *Widget) SetLanguage(code string) error {
	code = strings.TrimSpace(code)
	name, ok := LanguageName(code)
	if !ok {
		return newError(ErrorValidation, "unsupported_language", fmt.Errorf("language %q", code))
	}
	w.language = code
	w.fb.SetLanguage(code)
	w.log.Append(domain.RoleBot, fmt.Sprintf(languageText, name))
	return nil
}

// CheckStatus returns the task that refreshes the status panel.
func (w *Widget) CheckStatus() Task {
	gw := w.gw
	return func(ctx context.Context) Result {
		st, err := gw.SystemStatus(ctx)
		return Result{kind: resultStatus, status: st, err: err}
	}
}

func (w *Widget) applyStatus(r Result) Outcome {
	w.status = StatusView{Checked: true, Online: r.err == nil, CheckedAt: time.Now(), Err: r.err}
	if r.err != nil {
		w.logger.Warn("status check failed", "err", r.err)
		return Outcome{StatusUpdated: true}
	}
	w.status.System = r.status
	return Outcome{StatusUpdated: true}
}

// Source returns the display form of the index-th source of a message.
func (w *Widget) Source(messageID string, index int) (messagelog.SourceView, error) {
	src, err := w.log.Source(messageID, index)
	if err != nil {
		return messagelog.SourceView{}, newError(ErrorValidation, "source", err)
	}
	return messagelog.ViewSource(src), nil
}

func isHTTPStatus(err error) bool {
	var sc httpStatusCoder
	return errors.As(err, &sc)
}
