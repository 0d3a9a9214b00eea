// Package event parses calendar event tags out of markup bodies and
// renders them as a vevent HTML block.
package event

import (
	"html"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/riverfjs/bbcodify-go/internal/types"
)

// Handler is the default event collaborator.
type Handler struct{}

func tagContent(text, name string) string {
	open := "[" + name + "]"
	start := strings.Index(text, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(text[start:], "[/"+name+"]")
	if end < 0 {
		return ""
	}
	return text[start : start+end]
}

// Parse extracts the event descriptor embedded in text. The second return
// value reports whether any event tag was present.
func (Handler) Parse(text string) (types.EventDescriptor, bool) {
	ev := types.EventDescriptor{
		Summary:     strings.TrimSpace(tagContent(text, "event-summary")),
		Description: strings.TrimSpace(tagContent(text, "event-description")),
		Start:       strings.TrimSpace(tagContent(text, "event-start")),
		Finish:      strings.TrimSpace(tagContent(text, "event-finish")),
		Location:    strings.TrimSpace(tagContent(text, "event-location")),
	}
	ev.AdjustTZ = tagContent(text, "event-adjust") == "1"
	ev.NoFinish = ev.Finish == ""
	return ev, !ev.Empty()
}

func formatTime(value string) string {
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return value
	}
	return t.Format("Monday January 2, 2006 @ 3:04 PM")
}

// Render produces the HTML block spliced into the converted body in place
// of the event tags.
func (Handler) Render(ev types.EventDescriptor) string {
	var b strings.Builder
	b.WriteString(`<div class="vevent">`)
	if ev.Summary != "" {
		b.WriteString(`<div class="summary event-summary">`)
		b.WriteString(html.EscapeString(ev.Summary))
		b.WriteString(`</div>`)
	}
	if ev.Start != "" {
		b.WriteString(`<div class="event-start"><span class="event-label">Starts:</span> <span class="dtstart" title="`)
		b.WriteString(html.EscapeString(ev.Start))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(formatTime(ev.Start)))
		b.WriteString(`</span></div>`)
	}
	if !ev.NoFinish && ev.Finish != "" {
		b.WriteString(`<div class="event-end"><span class="event-label">Finishes:</span> <span class="dtend" title="`)
		b.WriteString(html.EscapeString(ev.Finish))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(formatTime(ev.Finish)))
		b.WriteString(`</span></div>`)
	}
	if ev.Description != "" {
		b.WriteString(`<div class="description event-description">`)
		b.WriteString(html.EscapeString(ev.Description))
		b.WriteString(`</div>`)
	}
	if ev.Location != "" {
		b.WriteString(`<div class="event-location"><span class="event-label">Location:</span> <span class="location">`)
		b.WriteString(html.EscapeString(ev.Location))
		b.WriteString(`</span></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}
