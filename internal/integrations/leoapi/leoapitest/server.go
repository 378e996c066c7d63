// Package leoapitest runs an in-process fake of the LEO backend for tests.
package leoapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leo-chat/internal/domain"
)

const (
	PathChat     = "/chat"
	PathIntent   = "/navigation/intent"
	PathGuide    = "/navigation/guide"
	PathFeedback = "/feedback/submit"
	PathStatus   = "/status"
)

// Server answers the five endpoints the client consumes. Fixtures can be
// changed between requests; every request body is recorded by path.
type Server struct {
	srv *httptest.Server

	mu           sync.Mutex
	chatText     string
	chatSources  []domain.Source
	intent       string
	confidence   float64
	guide        domain.NavigationGuide
	status       map[string]any
	statusCodes  map[string]int
	envelopeErrs map[string]string
	calls        map[string]int
	bodies       map[string][]map[string]any
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		chatText:     "MOSDAC hosts satellite data from INSAT-3D.",
		intent:       "browse",
		confidence:   0.3,
		guide:        SampleGuide(),
		status:       SampleStatus(),
		statusCodes:  map[string]int{},
		envelopeErrs: map[string]string{},
		calls:        map[string]int{},
		bodies:       map[string][]map[string]any{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post(PathChat, s.chat)
		r.Get(PathIntent, s.classify)
		r.Post(PathGuide, s.navigationGuide)
		r.Post(PathFeedback, s.feedback)
		r.Get(PathStatus, s.systemStatus)
	})

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API base URL, including the /api/v1 prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api/v1"
}

func (s *Server) SetChatReply(text string, sources ...domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatText = text
	s.chatSources = append([]domain.Source(nil), sources...)
}

func (s *Server) SetIntent(intent string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intent = intent
	s.confidence = confidence
}

func (s *Server) SetGuide(g domain.NavigationGuide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide = g.Clone()
}

func (s *Server) SetStatus(body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = body
}

// FailWith makes path answer with code until cleared with code 0.
func (s *Server) FailWith(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.statusCodes, path)
		return
	}
	s.statusCodes[path] = code
}

// RejectWith makes a navigation path answer 200 with success=false.
func (s *Server) RejectWith(path, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopeErrs[path] = message
}

func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Bodies returns the decoded JSON bodies received on path, oldest first.
func (s *Server) Bodies(path string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[path]...)
}

// record counts the call, stores the body and reports an injected status
// code, if any.
func (s *Server) record(path string, r *http.Request) (int, string) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
	if body != nil {
		s.bodies[path] = append(s.bodies[path], body)
	}
	return s.statusCodes[path], s.envelopeErrs[path]
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	code, _ := s.record(PathChat, r)
	if code != 0 {
		writeJSON(w, code, map[string]string{"detail": "chat failed"})
		return
	}
	s.mu.Lock()
	sources := make([]map[string]any, 0, len(s.chatSources))
	for _, src := range s.chatSources {
		sources = append(sources, map[string]any{
			"url":       src.URL,
			"title":     src.Title,
			"relevance": src.Relevance,
			"content":   src.Content,
		})
	}
	resp := map[string]any{"response": s.chatText, "sources": sources, "metadata": map[string]any{}}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	code, rejected := s.record(PathIntent, r)
	if code != 0 {
		writeJSON(w, code, map[string]string{"detail": "intent failed"})
		return
	}
	if rejected != "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": rejected})
		return
	}
	s.mu.Lock()
	data := map[string]any{
		"query":      r.URL.Query().Get("query"),
		"intent":     s.intent,
		"confidence": s.confidence,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data, "processing_time": 0.001})
}

func (s *Server) navigationGuide(w http.ResponseWriter, r *http.Request) {
	code, rejected := s.record(PathGuide, r)
	if code != 0 {
		writeJSON(w, code, map[string]string{"detail": "guide failed"})
		return
	}
	if rejected != "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": rejected})
		return
	}
	s.mu.Lock()
	data := guidePayload(s.guide)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	code, _ := s.record(PathFeedback, r)
	if code != 0 {
		writeJSON(w, code, map[string]string{"detail": "Failed to submit feedback"})
		return
	}
	s.mu.Lock()
	n := s.calls[PathFeedback]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback_id": fmt.Sprintf("fb_%d", n),
		"message":     "Feedback submitted successfully. Thank you for helping us improve!",
	})
}

func (s *Server) systemStatus(w http.ResponseWriter, r *http.Request) {
	code, _ := s.record(PathStatus, r)
	if code != 0 {
		writeJSON(w, code, map[string]string{"detail": "status failed"})
		return
	}
	s.mu.Lock()
	body := s.status
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func guidePayload(g domain.NavigationGuide) map[string]any {
	steps := make([]map[string]any, 0, len(g.Steps))
	for _, st := range g.Steps {
		steps = append(steps, map[string]any{
			"step":              st.Index,
			"page_url":          st.PageURL,
			"page_title":        st.PageTitle,
			"description":       st.Description,
			"action":            st.Action,
			"expected_elements": st.ExpectedElements,
			"estimated_time":    st.EstimatedTimeSeconds,
		})
	}
	return map[string]any{
		"query":      g.Query,
		"intent":     g.Intent,
		"confidence": g.Confidence,
		"navigation_path": map[string]any{
			"goal":           g.Goal,
			"total_steps":    len(g.Steps),
			"estimated_time": g.EstimatedTimeSeconds,
			"difficulty":     g.Difficulty,
			"success_rate":   g.SuccessRate,
			"steps":          steps,
		},
		"quick_tips":        g.QuickTips,
		"alternative_paths": g.AlternativePaths,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
