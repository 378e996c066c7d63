package messagelog

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"leo-chat/internal/domain"
)

const (
	sourceExcerptLen = 200
	localSourceHost  = "mosdac.gov.in"
	localDataMarker  = "mosdac_complete_data"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

var templates = template.Must(template.New("messages").Parse(`
{{- define "message" -}}
<div class="message {{.Role}}-message" data-message-id="{{.ID}}">
<div class="message-avatar {{.Role}}-avatar"></div>
<div class="message-content">
{{- if .Guide}}{{template "guide" .Guide}}{{else if .Step}}{{template "step" .Step}}{{else}}
<p>{{.Text}}</p>
{{- end}}
{{- if .Sources}}
<div class="message-sources">
<span class="sources-label">Sources:</span>
{{- range .Sources}}
<button class="source-link" data-message-id="{{$.ID}}" data-source-index="{{.Index}}">{{.Title}}</button>
{{- end}}
</div>
{{- end}}
<span class="message-time">{{.Time}}</span>
</div>
</div>
{{- end -}}

{{- define "guide" -}}
<div class="navigation-guidance">
<div class="nav-header">
<span class="nav-icon">🗺️</span>
<h4>Navigation Guide: {{.Goal}}</h4>
</div>
<div class="nav-summary">
<span class="nav-time">⏱️ {{.Time}} seconds</span>
<span class="nav-difficulty difficulty-{{.DifficultyClass}}">{{.Difficulty}}</span>
<span class="nav-success">✓ {{.SuccessRate}}% success rate</span>
</div>
<ol class="nav-steps">
{{- range .Steps}}
<li class="nav-step" data-step="{{.Index}}">
<strong>{{.PageTitle}}</strong>
<p>{{.Description}}</p>
<p class="nav-action">{{.Action}}</p>
</li>
{{- end}}
</ol>
{{- if .QuickTips}}
<div class="nav-tips">
<h5>💡 Quick Tips:</h5>
<ul>
{{- range .QuickTips}}
<li>{{.}}</li>
{{- end}}
</ul>
</div>
{{- end}}
<div class="nav-actions">
<button class="nav-start" data-action="start">🚀 Start Step-by-Step Guide</button>
</div>
</div>
{{- end -}}

{{- define "step" -}}
<div class="current-step">
<div class="step-header">
<span class="step-number">Step {{.Number}} of {{.Total}}</span>
<span class="step-time">~{{.Time}}s</span>
</div>
<h4>{{.PageTitle}}</h4>
<p class="step-description">{{.Description}}</p>
<p class="step-action"><strong>Action:</strong> {{.Action}}</p>
{{- if .Expected}}
<p class="step-expected"><strong>Look for:</strong> {{.Expected}}</p>
{{- end}}
<div class="step-controls">
<button class="step-next" data-action="next">✅ Done, Next Step</button>
<button class="step-help" data-action="help">❓ Need Help</button>
<button class="step-stop" data-action="stop">⏹️ Stop Guide</button>
</div>
</div>
{{- end -}}

{{- define "source" -}}
<div class="source-modal">
<h3 class="source-title">{{.Title}}</h3>
<p class="source-url">{{.DisplayURL}}</p>
<p class="source-relevance">Relevance: {{.RelevancePercent}}%</p>
{{- if .Excerpt}}
<div class="source-content">{{.Excerpt}}</div>
{{- end}}
</div>
{{- end -}}

{{- define "transcript" -}}
<div class="chat-messages">
{{- range .}}
{{template "message" .}}
{{- end}}
</div>
{{- end -}}
`))

type messageView struct {
	ID      string
	Role    domain.Role
	Text    string
	Time    string
	Sources []sourceLink
	Guide   *guideView
	Step    *stepView
}

type sourceLink struct {
	Index int
	Title string
}

type guideView struct {
	Goal            string
	Time            int
	Difficulty      string
	DifficultyClass string
	SuccessRate     int
	Steps           []domain.NavigationStep
	QuickTips       []string
}

type stepView struct {
	Number      int
	Total       int
	Time        int
	PageTitle   string
	Description string
	Action      string
	Expected    string
}

// SourceView is the detail shown when a user opens a source.
type SourceView struct {
	Title            string
	DisplayURL       string
	RelevancePercent int
	Excerpt          string
}

// Render projects one message to escaped HTML.
func Render(msg domain.ChatMessage) (template.HTML, error) {
	return execute("message", newMessageView(msg))
}

// RenderTranscript renders msgs in order inside the messages container.
func RenderTranscript(msgs []domain.ChatMessage) (template.HTML, error) {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, newMessageView(m))
	}
	return execute("transcript", views)
}

// RenderSource renders the modal view of a source.
func RenderSource(src domain.Source) (template.HTML, error) {
	return execute("source", ViewSource(src))
}

// ViewSource maps a source to its display form. Paths into the local crawl
// dump are shown under the public site host.
func ViewSource(src domain.Source) SourceView {
	v := SourceView{
		Title:            src.Title,
		DisplayURL:       src.URL,
		RelevancePercent: int(math.Round(src.Relevance * 100)),
	}
	if strings.HasPrefix(src.URL, "/") || strings.Contains(src.URL, localDataMarker) {
		parts := strings.Split(src.URL, "/")
		if len(parts) >= 2 {
			page := strings.ReplaceAll(parts[len(parts)-2], "-", " ")
			v.DisplayURL = localSourceHost + "/" + page
			v.Title = titleCaser.String(page)
		}
	}
	if v.Title == "" {
		v.Title = "No title available"
	}
	if src.Content != "" {
		v.Excerpt = truncate(src.Content, sourceExcerptLen) + "..."
	}
	return v
}

func newMessageView(msg domain.ChatMessage) messageView {
	v := messageView{
		ID:   msg.ID,
		Role: msg.Role,
		Text: msg.Text,
		Time: msg.CreatedAt.Format("15:04"),
	}
	for i, s := range msg.Sources {
		title := s.Title
		if title == "" {
			title = fmt.Sprintf("Source %d", i+1)
		}
		v.Sources = append(v.Sources, sourceLink{Index: i, Title: title})
	}
	if g := msg.Guide; g != nil {
		v.Guide = &guideView{
			Goal:            g.Goal,
			Time:            g.EstimatedTimeSeconds,
			Difficulty:      g.Difficulty,
			DifficultyClass: strings.ToLower(g.Difficulty),
			SuccessRate:     int(math.Round(g.SuccessRate * 100)),
			Steps:           g.Steps,
			QuickTips:       g.QuickTips,
		}
	}
	if c := msg.Step; c != nil {
		v.Step = &stepView{
			Number:      c.Step.Index,
			Total:       c.Total,
			Time:        c.Step.EstimatedTimeSeconds,
			PageTitle:   c.Step.PageTitle,
			Description: c.Step.Description,
			Action:      c.Step.Action,
			Expected:    strings.Join(c.Step.ExpectedElements, ", "),
		}
	}
	return v
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("messagelog: render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
