package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"leo-chat/internal/domain"
	"leo-chat/internal/feedback"
	"leo-chat/internal/integrations/leoapi"
	"leo-chat/internal/integrations/leoapi/leoapitest"
	"leo-chat/internal/navigation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestWidget(t *testing.T) (*Widget, *leoapitest.Server) {
	t.Helper()
	srv := leoapitest.New(t)
	client, err := leoapi.NewClient(srv.URL(), leoapi.WithTimeout(2*time.Second))
	require.NoError(t, err)
	w, err := New(client, Config{SessionID: "session_test"})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, srv
}

func send(t *testing.T, w *Widget, text string) Outcome {
	t.Helper()
	task, ok := w.Send(text)
	require.True(t, ok, "send %q", text)
	return w.Run(context.Background(), task)
}

func lastMessage(t *testing.T, w *Widget) domain.ChatMessage {
	t.Helper()
	msgs := w.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
}

// stubGateway classifies every query with intent and fails other calls with err.
type stubGateway struct {
	intent domain.Intent
	err    error
}

func (s *stubGateway) ClassifyIntent(context.Context, string) (domain.Intent, error) {
	return s.intent, nil
}

func (s *stubGateway) Chat(context.Context, domain.ChatRequest) (domain.ChatReply, error) {
	return domain.ChatReply{}, s.err
}

func (s *stubGateway) NavigationGuide(context.Context, string, string) (domain.NavigationGuide, error) {
	return domain.NavigationGuide{}, s.err
}

func (s *stubGateway) SubmitFeedback(context.Context, domain.FeedbackRecord) (domain.FeedbackAck, error) {
	return domain.FeedbackAck{}, s.err
}

func (s *stubGateway) SystemStatus(context.Context) (domain.SystemStatus, error) {
	return domain.SystemStatus{}, s.err
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)

	gw := &stubGateway{}
	_, err = New(gw, Config{Language: "xx"})
	require.Error(t, err)

	tooHigh := 1.5
	_, err = New(gw, Config{IntentThreshold: &tooHigh})
	require.Error(t, err)

	w, err := New(gw, Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultLanguage, w.Language())
	require.Regexp(t, `^session_\d+_[0-9a-f]{9}$`, w.SessionID())
}

func TestGreet(t *testing.T) {
	w, _ := newTestWidget(t)
	w.Greet()
	require.Equal(t, WelcomeText, lastMessage(t, w).Text)
}

// --------------------------------------------------------------------------
// Chat
// --------------------------------------------------------------------------

func TestSend_ChatReply(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetChatReply("INSAT-3D is a meteorological satellite.", domain.Source{URL: "https://mosdac.gov.in/insat-3d", Title: "INSAT-3D", Relevance: 0.9})

	out := send(t, w, "  what is INSAT-3D?  ")
	require.NoError(t, out.Err)
	require.Equal(t, 1, out.Appended)

	msgs := w.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, domain.RoleUser, msgs[0].Role)
	require.Equal(t, "what is INSAT-3D?", msgs[0].Text)
	require.Equal(t, domain.RoleBot, msgs[1].Role)
	require.Equal(t, "INSAT-3D is a meteorological satellite.", msgs[1].Text)
	require.Len(t, msgs[1].Sources, 1)

	bodies := srv.Bodies(leoapitest.PathChat)
	require.Len(t, bodies, 1)
	require.Equal(t, "what is INSAT-3D?", bodies[0]["query"])
	require.Equal(t, "session_test", bodies[0]["session_id"])
	require.Equal(t, "en", bodies[0]["language"])
	require.False(t, w.Pending())
}

func TestSend_IgnoresEmptyAndInFlightDuplicates(t *testing.T) {
	w, srv := newTestWidget(t)

	_, ok := w.Send("   ")
	require.False(t, ok)

	task, ok := w.Send("rainfall products")
	require.True(t, ok)
	require.True(t, w.Pending())

	_, ok = w.Send(" rainfall products ")
	require.False(t, ok, "identical question in flight")
	require.Equal(t, 1, w.Len())

	w.Run(context.Background(), task)
	require.Equal(t, 1, srv.Calls(leoapitest.PathChat))

	_, ok = w.Send("rainfall products")
	require.True(t, ok, "may be asked again once answered")
}

func TestSend_IntentFailureFallsBackToChat(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.FailWith(leoapitest.PathIntent, http.StatusInternalServerError)

	out := send(t, w, "how do I download data")
	require.NoError(t, out.Err)
	require.Equal(t, 1, srv.Calls(leoapitest.PathChat))
	require.Equal(t, 0, srv.Calls(leoapitest.PathGuide))
}

func TestSend_ChatFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*leoapitest.Server)
		text  string
		code  ErrorCode
	}{
		{
			name:  "server error",
			setup: func(s *leoapitest.Server) { s.FailWith(leoapitest.PathChat, http.StatusInternalServerError) },
			text:  chatOfflineText,
			code:  ErrorNetwork,
		},
		{
			name:  "empty reply",
			setup: func(s *leoapitest.Server) { s.SetChatReply("   ") },
			text:  chatEmptyText,
			code:  ErrorUpstream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, srv := newTestWidget(t)
			tt.setup(srv)

			out := send(t, w, "what is OCEANSAT?")
			requireCode(t, out.Err, tt.code)
			require.Equal(t, tt.text, lastMessage(t, w).Text)
			_, ok := w.LatestRatable()
			require.False(t, ok, "apologies are not ratable")
		})
	}
}

func TestSend_ChatNetworkFailure(t *testing.T) {
	client, err := leoapi.NewClient("http://127.0.0.1:1/api/v1", leoapi.WithTimeout(time.Second))
	require.NoError(t, err)
	w, err := New(client, Config{})
	require.NoError(t, err)

	out := send(t, w, "hello")
	requireCode(t, out.Err, ErrorNetwork)
	require.Equal(t, chatOfflineText, lastMessage(t, w).Text)
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

func TestSend_NavigationGuideWalk(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetIntent("download", 0.75)

	out := send(t, w, "how do I download INSAT-3D data")
	require.NoError(t, out.Err)
	require.Equal(t, navigation.Presenting, w.NavigationState())
	require.Equal(t, 0, srv.Calls(leoapitest.PathChat))

	card := lastMessage(t, w)
	require.NotNil(t, card.Guide)
	require.Equal(t, "Download satellite data from MOSDAC", card.Guide.Goal)
	require.Len(t, card.Guide.Steps, 2)
	require.Equal(t, "session_test", srv.Bodies(leoapitest.PathGuide)[0]["user_id"])

	require.NoError(t, w.StartGuide())
	step := lastMessage(t, w)
	require.NotNil(t, step.Step)
	require.Equal(t, 1, step.Step.Step.Index)
	require.Equal(t, 2, step.Step.Total)

	require.NoError(t, w.StepHelp())
	require.Contains(t, lastMessage(t, w).Text, "**Page:** MOSDAC Home")

	require.NoError(t, w.NextStep())
	require.Equal(t, 2, lastMessage(t, w).Step.Step.Index)

	require.NoError(t, w.NextStep())
	require.Equal(t, navigation.Completed, w.NavigationState())
	require.Contains(t, lastMessage(t, w).Text, "Congratulations")

	requireCode(t, w.NextStep(), ErrorInvalidState)
}

func TestSend_ThresholdIsExclusive(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetIntent("download", DefaultIntentThreshold)

	send(t, w, "download data")
	require.Equal(t, 1, srv.Calls(leoapitest.PathChat))
	require.Equal(t, navigation.Idle, w.NavigationState())
}

func TestSend_ZeroThresholdNavigatesOnAnyConfidence(t *testing.T) {
	srv := leoapitest.New(t)
	client, err := leoapi.NewClient(srv.URL(), leoapi.WithTimeout(2*time.Second))
	require.NoError(t, err)
	zero := 0.0
	w, err := New(client, Config{SessionID: "session_test", IntentThreshold: &zero})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	srv.SetIntent("browse", 0.1)

	send(t, w, "where are the ocean products")
	require.Equal(t, 1, srv.Calls(leoapitest.PathGuide))
	require.Equal(t, 0, srv.Calls(leoapitest.PathChat))
	require.Equal(t, navigation.Presenting, w.NavigationState())
}

func TestSend_StaleGuideIsDropped(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetIntent("download", 0.9)
	ctx := context.Background()

	first, ok := w.Send("how do I download data")
	require.True(t, ok)
	second, ok := w.Send("how do I view imagery")
	require.True(t, ok)

	r1 := first(ctx)
	r2 := second(ctx)

	out := w.Apply(r1)
	require.True(t, out.Dropped)
	require.Equal(t, 0, out.Appended)
	require.Equal(t, navigation.Idle, w.NavigationState())

	out = w.Apply(r2)
	require.False(t, out.Dropped)
	require.Equal(t, navigation.Presenting, w.NavigationState())
	require.False(t, w.Pending())
}

func TestSend_GuideDroppedAfterNavigationControl(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetIntent("download", 0.9)
	ctx := context.Background()

	send(t, w, "how do I download data")
	task, ok := w.Send("how do I view imagery")
	require.True(t, ok)
	require.NoError(t, w.StopGuide())

	out := w.Apply(task(ctx))
	require.True(t, out.Dropped)
	require.Equal(t, navigation.Stopped, w.NavigationState())
}

func TestSend_GuideFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*leoapitest.Server)
		text  string
		code  ErrorCode
	}{
		{
			name:  "unsuccessful envelope",
			setup: func(s *leoapitest.Server) { s.RejectWith(leoapitest.PathGuide, "no path found") },
			text:  guideFailedText,
			code:  ErrorUpstream,
		},
		{
			name:  "service unavailable",
			setup: func(s *leoapitest.Server) { s.FailWith(leoapitest.PathGuide, http.StatusServiceUnavailable) },
			text:  guideOfflineText,
			code:  ErrorNetwork,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, srv := newTestWidget(t)
			srv.SetIntent("download", 0.9)
			tt.setup(srv)

			out := send(t, w, "how do I download data")
			requireCode(t, out.Err, tt.code)
			require.Equal(t, tt.text, lastMessage(t, w).Text)
			require.Equal(t, navigation.Idle, w.NavigationState())
		})
	}
}

func TestSend_GuideTransportFailure(t *testing.T) {
	gw := &stubGateway{intent: domain.Intent{Confidence: 0.95}, err: errors.New("dial tcp: connection refused")}
	w, err := New(gw, Config{})
	require.NoError(t, err)

	out := send(t, w, "navigate to data download")
	requireCode(t, out.Err, ErrorNetwork)
	require.Equal(t, guideErrorText, lastMessage(t, w).Text)
}

func TestStartGuide_WithoutSteps(t *testing.T) {
	w, _ := newTestWidget(t)

	err := w.StartGuide()
	requireCode(t, err, ErrorEmptyGuide)
	require.ErrorIs(t, err, navigation.ErrEmptyGuide)
	require.Equal(t, noStepsText, lastMessage(t, w).Text)
	require.Equal(t, navigation.Idle, w.NavigationState())
}

func TestNavigationControls_OutsideGuide(t *testing.T) {
	w, _ := newTestWidget(t)
	requireCode(t, w.NextStep(), ErrorInvalidState)
	requireCode(t, w.StepHelp(), ErrorInvalidState)
	requireCode(t, w.StopGuide(), ErrorInvalidState)
	require.Equal(t, 0, w.Len())
}

// --------------------------------------------------------------------------
// Feedback
// --------------------------------------------------------------------------

func TestFeedback_RateOnce(t *testing.T) {
	w, srv := newTestWidget(t)
	send(t, w, "what is SCATSAT-1?")

	id, ok := w.LatestRatable()
	require.True(t, ok)
	opened, err := w.OpenFeedback(id)
	require.NoError(t, err)
	require.True(t, opened)

	_, err = w.SubmitFeedback("")
	requireCode(t, err, ErrorValidation)
	require.Equal(t, 0, srv.Calls(leoapitest.PathFeedback), "validation makes no network call")

	requireCode(t, w.SetRating(9), ErrorValidation)
	require.NoError(t, w.SetRating(4))

	task, err := w.SubmitFeedback("very clear")
	require.NoError(t, err)
	out := w.Run(context.Background(), task)
	require.NoError(t, out.Err)
	require.True(t, out.FeedbackSent)
	require.Equal(t, feedback.ThanksText, lastMessage(t, w).Text)

	bodies := srv.Bodies(leoapitest.PathFeedback)
	require.Len(t, bodies, 1)
	require.Equal(t, id, bodies[0]["message_id"])
	require.EqualValues(t, 4, bodies[0]["rating"])
	require.Equal(t, "very clear", bodies[0]["comment"])
	require.Equal(t, "what is SCATSAT-1?", bodies[0]["user_query"])

	_, ok = w.LatestRatable()
	require.False(t, ok)
	opened, err = w.OpenFeedback(id)
	require.NoError(t, err)
	require.False(t, opened, "rated message cannot be reopened")
	_, open := w.FeedbackDraft()
	require.False(t, open)
}

func TestFeedback_SecondSubmitWhileInFlight(t *testing.T) {
	w, srv := newTestWidget(t)
	send(t, w, "what is SCATSAT-1?")
	id, _ := w.LatestRatable()
	_, err := w.OpenFeedback(id)
	require.NoError(t, err)
	require.NoError(t, w.SetRating(4))

	first, err := w.SubmitFeedback("a")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, w.SetRating(5))
	second, err := w.SubmitFeedback("b")
	require.NoError(t, err)
	require.Nil(t, second, "no second record while the first is in flight")

	out := w.Run(context.Background(), first)
	require.True(t, out.FeedbackSent)

	bodies := srv.Bodies(leoapitest.PathFeedback)
	require.Len(t, bodies, 1)
	require.EqualValues(t, 4, bodies[0]["rating"])
	require.Equal(t, "a", bodies[0]["comment"])
}

func TestFeedback_FailureKeepsDraft(t *testing.T) {
	w, srv := newTestWidget(t)
	send(t, w, "what is SCATSAT-1?")
	id, _ := w.LatestRatable()
	_, err := w.OpenFeedback(id)
	require.NoError(t, err)
	require.NoError(t, w.SetRating(2))

	srv.FailWith(leoapitest.PathFeedback, http.StatusInternalServerError)
	task, err := w.SubmitFeedback("")
	require.NoError(t, err)
	out := w.Run(context.Background(), task)
	requireCode(t, out.Err, ErrorNetwork)
	require.Equal(t, feedback.FailureAlert, out.Alert)
	require.Equal(t, 0, out.Appended)

	d, open := w.FeedbackDraft()
	require.True(t, open)
	require.Equal(t, 2, d.Rating)

	srv.FailWith(leoapitest.PathFeedback, 0)
	task, err = w.SubmitFeedback("")
	require.NoError(t, err)
	out = w.Run(context.Background(), task)
	require.True(t, out.FeedbackSent)
	require.Nil(t, srv.Bodies(leoapitest.PathFeedback)[1]["comment"])
}

func TestFeedback_Guards(t *testing.T) {
	w, _ := newTestWidget(t)
	w.Greet()

	_, err := w.OpenFeedback(lastMessage(t, w).ID)
	requireCode(t, err, ErrorValidation)

	requireCode(t, w.SetRating(3), ErrorInvalidState)
	_, err = w.SubmitFeedback("")
	requireCode(t, err, ErrorInvalidState)

	send(t, w, "hello")
	id, _ := w.LatestRatable()
	_, err = w.OpenFeedback(id)
	require.NoError(t, err)
	w.CloseFeedback()
	_, open := w.FeedbackDraft()
	require.False(t, open)
}

// --------------------------------------------------------------------------
// Language, status, sources, lifecycle
// --------------------------------------------------------------------------

func TestSetLanguage(t *testing.T) {
	w, srv := newTestWidget(t)

	require.NoError(t, w.SetLanguage("hi"))
	require.Equal(t, "Language changed to Hindi. I can now respond in your selected language.", lastMessage(t, w).Text)

	send(t, w, "namaste")
	require.Equal(t, "hi", srv.Bodies(leoapitest.PathChat)[0]["language"])

	requireCode(t, w.SetLanguage("xx"), ErrorValidation)
	require.Equal(t, "hi", w.Language())
}

func TestCheckStatus(t *testing.T) {
	w, srv := newTestWidget(t)
	require.Equal(t, "Checking...", w.Status().Text())

	out := w.Run(context.Background(), w.CheckStatus())
	require.True(t, out.StatusUpdated)
	st := w.Status()
	require.True(t, st.Online)
	require.Equal(t, "System Online", st.Text())
	require.Equal(t, 42, st.System.ScrapedData.PagesCount)
	require.Equal(t, 1200, st.System.VectorDatabase.DocumentCount)
	require.True(t, st.System.LLM.Available)

	srv.FailWith(leoapitest.PathStatus, http.StatusInternalServerError)
	w.Run(context.Background(), w.CheckStatus())
	require.False(t, w.Status().Online)
	require.Equal(t, "System Offline", w.Status().Text())
	require.Equal(t, 0, w.Len(), "status checks add no messages")
}

func TestSource(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetChatReply("See the product page.", domain.Source{
		URL:       "/data/mosdac_complete_data/insat-products/page.html",
		Relevance: 0.72,
		Content:   "INSAT products",
	})
	send(t, w, "insat products")
	id := lastMessage(t, w).ID

	view, err := w.Source(id, 0)
	require.NoError(t, err)
	require.Equal(t, "mosdac.gov.in/insat products", view.DisplayURL)
	require.Equal(t, 72, view.RelevancePercent)

	_, err = w.Source(id, 3)
	requireCode(t, err, ErrorValidation)
}

func TestClose_DropsLateResults(t *testing.T) {
	w, _ := newTestWidget(t)
	task, ok := w.Send("hello")
	require.True(t, ok)
	r := task(context.Background())

	w.Close()
	out := w.Apply(r)
	require.True(t, out.Dropped)
	require.Equal(t, 1, w.Len())

	_, ok = w.Send("again")
	require.False(t, ok)
}

func TestTasks_RunOffLoop(t *testing.T) {
	w, srv := newTestWidget(t)
	questions := []string{"what is INSAT-3D?", "what is OCEANSAT-2?", "what is SCATSAT-1?"}

	tasks := make([]Task, 0, len(questions))
	for _, q := range questions {
		task, ok := w.Send(q)
		require.True(t, ok)
		tasks = append(tasks, task)
	}

	results := make([]Result, len(tasks))
	g, ctx := errgroup.WithContext(context.Background())
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = task(ctx)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, r := range results {
		require.NoError(t, w.Apply(r).Err)
	}
	require.Equal(t, 2*len(questions), w.Len())
	require.Equal(t, len(questions), srv.Calls(leoapitest.PathChat))
	require.False(t, w.Pending())
}

func TestRenderHTML(t *testing.T) {
	w, srv := newTestWidget(t)
	srv.SetChatReply("Use <b>tags</b> freely")
	send(t, w, "<script>alert(1)</script>")

	html, err := w.RenderHTML()
	require.NoError(t, err)
	require.NotContains(t, string(html), "<script>")
	require.NotContains(t, string(html), "<b>")
}

func TestRequestGuide_SkipsClassification(t *testing.T) {
	w, srv := newTestWidget(t)

	task, ok := w.RequestGuide("download INSAT-3D data")
	require.True(t, ok)
	out := w.Run(context.Background(), task)
	require.NoError(t, out.Err)
	require.Equal(t, 0, srv.Calls(leoapitest.PathIntent))
	require.Equal(t, 1, srv.Calls(leoapitest.PathGuide))
	require.Equal(t, navigation.Presenting, w.NavigationState())
}
