package leoapi

import (
	"encoding/json"
	"strings"
	"time"

	"leo-chat/internal/domain"
)

// chatRequest is the request body for POST /chat.
type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

// chatResponse is returned by /chat directly, without the success envelope.
type chatResponse struct {
	Response string         `json:"response"`
	Sources  []wireSource   `json:"sources"`
	Metadata map[string]any `json:"metadata"`
}

type wireSource struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
	Content   string  `json:"content"`
}

// envelope wraps every navigation endpoint response.
type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	ProcessingTime float64         `json:"processing_time"`
}

type intentData struct {
	Query      string  `json:"query"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type guideRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

type guideData struct {
	Query            string   `json:"query"`
	Intent           string   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	NavigationPath   wirePath `json:"navigation_path"`
	QuickTips        []string `json:"quick_tips"`
	AlternativePaths []string `json:"alternative_paths"`
}

type wirePath struct {
	Goal          string     `json:"goal"`
	TotalSteps    int        `json:"total_steps"`
	EstimatedTime int        `json:"estimated_time"`
	Difficulty    string     `json:"difficulty"`
	SuccessRate   float64    `json:"success_rate"`
	Steps         []wireStep `json:"steps"`
}

type wireStep struct {
	Step             int      `json:"step"`
	PageURL          string   `json:"page_url"`
	PageTitle        string   `json:"page_title"`
	Description      string   `json:"description"`
	Action           string   `json:"action"`
	ExpectedElements []string `json:"expected_elements"`
	EstimatedTime    int      `json:"estimated_time"`
}

// feedbackRequest is the body of POST /feedback/submit. Comment is null when
// the user left it blank.
type feedbackRequest struct {
	SessionID    string  `json:"session_id"`
	MessageID    string  `json:"message_id"`
	FeedbackType string  `json:"feedback_type"`
	Rating       int     `json:"rating"`
	Comment      *string `json:"comment"`
	UserQuery    string  `json:"user_query"`
	BotResponse  string  `json:"bot_response"`
	Language     string  `json:"language"`
}

type feedbackResponse struct {
	FeedbackID string `json:"feedback_id"`
	Message    string `json:"message"`
}

// statusResponse keeps timestamps as strings: the backend emits naive
// ISO-8601 values that encoding/json cannot parse into time.Time.
type statusResponse struct {
	ScrapedData struct {
		PagesCount         int    `json:"pages_count"`
		TotalContentLength int    `json:"total_content_length"`
		LastScraped        string `json:"last_scraped"`
	} `json:"scraped_data"`
	VectorDatabase struct {
		CollectionExists bool   `json:"collection_exists"`
		DocumentCount    int    `json:"document_count"`
		ChunkCount       int    `json:"chunk_count"`
		LastIngested     string `json:"last_ingested"`
	} `json:"vector_database"`
	Components domain.ComponentsStatus `json:"components"`
	LLM        struct {
		Mode      string `json:"mode"`
		Available bool   `json:"available"`
	} `json:"llm"`
	Timestamp string `json:"timestamp"`
}

func (r chatResponse) toDomain() domain.ChatReply {
	sources := make([]domain.Source, 0, len(r.Sources))
	for _, s := range r.Sources {
		sources = append(sources, domain.Source{
			URL:       s.URL,
			Title:     s.Title,
			Relevance: clamp01(s.Relevance),
			Content:   s.Content,
		})
	}
	return domain.ChatReply{Text: r.Response, Sources: sources, Metadata: r.Metadata}
}

// toDomain converts the wire guide. Steps whose indices are missing or not
// unique are renumbered by position.
func (d guideData) toDomain() domain.NavigationGuide {
	steps := make([]domain.NavigationStep, 0, len(d.NavigationPath.Steps))
	seen := make(map[int]bool, len(d.NavigationPath.Steps))
	renumber := false
	for _, s := range d.NavigationPath.Steps {
		if s.Step <= 0 || seen[s.Step] {
			renumber = true
		}
		seen[s.Step] = true
		steps = append(steps, domain.NavigationStep{
			Index:                s.Step,
			PageURL:              s.PageURL,
			PageTitle:            s.PageTitle,
			Description:          s.Description,
			Action:               s.Action,
			ExpectedElements:     uniqueStrings(s.ExpectedElements),
			EstimatedTimeSeconds: s.EstimatedTime,
		})
	}
	if renumber {
		for i := range steps {
			steps[i].Index = i + 1
		}
	}
	return domain.NavigationGuide{
		Query:                d.Query,
		Intent:               d.Intent,
		Confidence:           clamp01(d.Confidence),
		Goal:                 d.NavigationPath.Goal,
		Steps:                steps,
		EstimatedTimeSeconds: d.NavigationPath.EstimatedTime,
		Difficulty:           d.NavigationPath.Difficulty,
		SuccessRate:          clamp01(d.NavigationPath.SuccessRate),
		QuickTips:            append([]string(nil), d.QuickTips...),
		AlternativePaths:     append([]string(nil), d.AlternativePaths...),
	}
}

func (r statusResponse) toDomain() domain.SystemStatus {
	return domain.SystemStatus{
		ScrapedData: domain.ScrapedDataStatus{
			PagesCount:         r.ScrapedData.PagesCount,
			TotalContentLength: r.ScrapedData.TotalContentLength,
			LastScraped:        parseTimestamp(r.ScrapedData.LastScraped),
		},
		VectorDatabase: domain.VectorDatabaseStatus{
			CollectionExists: r.VectorDatabase.CollectionExists,
			DocumentCount:    r.VectorDatabase.DocumentCount,
			ChunkCount:       r.VectorDatabase.ChunkCount,
			LastIngested:     parseTimestamp(r.VectorDatabase.LastIngested),
		},
		Components: r.Components,
		LLM: domain.LLMStatus{
			Mode:      r.LLM.Mode,
			Available: r.LLM.Available,
		},
		Timestamp: parseTimestamp(r.Timestamp),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and the naive layouts Python's isoformat
// produces. Naive values are read as UTC; unparseable ones yield nil.
func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
