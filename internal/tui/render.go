package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"leo-chat/internal/domain"
	"leo-chat/internal/messagelog"
	"leo-chat/internal/usecase"
)

// sanitize removes terminal control sequences from backend and user text so
// that nothing received can move the cursor or restyle the screen.
func sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

// markdown renders bot text, falling back to the plain text when glamour
// fails.
func markdown(r *glamour.TermRenderer, text string) (out string) {
	defer func() {
		if recover() != nil {
			out = text
		}
	}()
	if r == nil || text == "" {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func renderTranscript(msgs []domain.ChatMessage, r *glamour.TermRenderer, width int) string {
	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString(renderMessage(msg, r, width))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderMessage(msg domain.ChatMessage, r *glamour.TermRenderer, width int) string {
	stamp := dimStyle.Render(msg.CreatedAt.Format("15:04"))
	if msg.Role == domain.RoleUser {
		body := lipgloss.NewStyle().Width(max(width-2, 20)).Render(sanitize(msg.Text))
		return userRoleStyle.Render("You") + " " + stamp + "\n" + body
	}

	header := botRoleStyle.Render("LEO") + " " + stamp + "\n"
	switch {
	case msg.Guide != nil:
		return header + renderGuide(*msg.Guide, width)
	case msg.Step != nil:
		return header + renderStep(*msg.Step, width)
	}

	body := markdown(r, sanitize(msg.Text))
	if len(msg.Sources) > 0 {
		lines := make([]string, 0, len(msg.Sources)+1)
		lines = append(lines, dimStyle.Render("Sources (open with /sources <n>):"))
		for i, s := range msg.Sources {
			title := sanitize(s.Title)
			if title == "" {
				title = fmt.Sprintf("Source %d", i+1)
			}
			lines = append(lines, sourceStyle.Render(fmt.Sprintf("  [%d] %s", i+1, title)))
		}
		body += "\n" + strings.Join(lines, "\n")
	}
	return header + body
}

func renderGuide(g domain.NavigationGuide, width int) string {
	var sb strings.Builder
	sb.WriteString(cardTitleStyle.Render("🗺️  Navigation Guide: " + sanitize(g.Goal)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "⏱️  %d seconds · %s · ✓ %d%% success rate\n",
		g.EstimatedTimeSeconds, sanitize(g.Difficulty), int(math.Round(g.SuccessRate*100)))
	for _, st := range g.Steps {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s\n", st.Index, sanitize(st.PageTitle), sanitize(st.Description))
	}
	if len(g.QuickTips) > 0 {
		sb.WriteString("\n💡 Quick Tips:\n")
		for _, tip := range g.QuickTips {
			fmt.Fprintf(&sb, "  • %s\n", sanitize(tip))
		}
	}
	sb.WriteString("\n" + dimStyle.Render("Type /start to begin the step-by-step guide."))
	return cardStyle.Width(max(width-4, 20)).Render(sb.String())
}

func renderStep(c domain.StepCard, width int) string {
	st := c.Step
	var sb strings.Builder
	sb.WriteString(cardTitleStyle.Render(fmt.Sprintf("Step %d of %d", st.Index, c.Total)))
	fmt.Fprintf(&sb, "  ~%ds\n", st.EstimatedTimeSeconds)
	sb.WriteString(sanitize(st.PageTitle) + "\n")
	sb.WriteString(sanitize(st.Description) + "\n\n")
	sb.WriteString("Action: " + sanitize(st.Action))
	if len(st.ExpectedElements) > 0 {
		sb.WriteString("\nLook for: " + sanitize(strings.Join(st.ExpectedElements, ", ")))
	}
	sb.WriteString("\n\n" + dimStyle.Render("/next done · /help more detail · /stop end guide"))
	return cardStyle.Width(max(width-4, 20)).Render(sb.String())
}

func renderSource(v messagelog.SourceView) string {
	var sb strings.Builder
	sb.WriteString(cardTitleStyle.Render(sanitize(v.Title)) + "\n")
	sb.WriteString("Source: " + sanitize(v.DisplayURL) + "\n")
	fmt.Fprintf(&sb, "Relevance: %d%%", v.RelevancePercent)
	if v.Excerpt != "" {
		sb.WriteString("\n\n" + dimStyle.Render(sanitize(v.Excerpt)))
	}
	return sb.String()
}

// FormatStatus is the system info panel: crawl size, vector store size, LLM
// availability and the time of the last ingest.
func FormatStatus(st domain.SystemStatus) string {
	llm := "unavailable"
	if st.LLM.Available {
		llm = "available"
		if st.LLM.Mode != "" {
			llm += " (" + st.LLM.Mode + ")"
		}
	}
	lines := []string{
		fmt.Sprintf("Pages:            %d", st.ScrapedData.PagesCount),
		fmt.Sprintf("Vector documents: %d", st.VectorDatabase.DocumentCount),
		fmt.Sprintf("LLM:              %s", llm),
		fmt.Sprintf("Last update:      %s", formatTime(lastUpdate(st))),
	}
	return strings.Join(lines, "\n")
}

func lastUpdate(st domain.SystemStatus) *time.Time {
	if st.VectorDatabase.LastIngested != nil {
		return st.VectorDatabase.LastIngested
	}
	return st.ScrapedData.LastScraped
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04")
}

func statusLine(sv usecase.StatusView) string {
	switch {
	case !sv.Checked:
		return dimStyle.Render("● " + sv.Text())
	case sv.Online:
		return onlineStyle.Render("● " + sv.Text())
	default:
		return offlineStyle.Render("● " + sv.Text())
	}
}

// PlainMessage renders msg without markdown styling, for line-oriented
// output.
func PlainMessage(msg domain.ChatMessage, width int) string {
	return renderMessage(msg, nil, width)
}
