package generator

import (
	"context"
	"fmt"
	"strings"

	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
)

type TimelineEvent struct {
	ID          string `json:"id"`
	Date        string `json:"date,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Timeline is the content of a timeline output. An empty Events list is a
// valid result for material without sequential structure.
type Timeline struct {
	Events      []TimelineEvent `json:"events"`
	TotalEvents int             `json:"totalEvents"`
}

type rawEvent struct {
	ID          looseString `json:"id"`
	Date        looseString `json:"date"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
}

type rawTimeline struct {
	Events []rawEvent `json:"events"`
}

const timelineInstruction = `You extract chronological timelines from study material.
Only list events, stages or steps that the material itself presents in a sequence (dates, eras, ordered phases, process steps).
If the material has no sequential or process structure, return an empty list. Never invent dates or an order the material does not state.
Respond with a JSON object only:
{"events": [{"date": "<date, period or step label>", "title": "<short title>", "description": "<one sentence>"}]}`

type timelineGenerator struct{ *base }

func (g *timelineGenerator) Kind() store.OutputKind { return store.OutputKindTimeline }

func (g *timelineGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*TimelineSettings](settings)
	if err != nil {
		return nil, err
	}
	text, placeholder, err := g.sourceText(g.Kind(), src)
	if err != nil || placeholder != nil {
		return placeholder, err
	}

	var p promptBuilder
	p.reference(src.Name, text)
	prompt := p.rules("guidelines",
		groundingRule,
		fmt.Sprintf("List at most %d events in the order the material gives them.", s.MaxEvents),
		"An empty events list is a correct answer when the material is not about a sequence.",
	).closing("Respond with the JSON object now:")

	parsed, err := completeJSON[rawTimeline](ctx, g.base, g.Kind(), timelineInstruction, prompt)
	if err != nil {
		return nil, err
	}

	timeline := buildTimeline(parsed.Events, s.MaxEvents)
	content, err := structured.Compact(timeline)
	if err != nil {
		return nil, err
	}

	preview := "No sequential structure found in this source."
	if timeline.TotalEvents > 0 {
		first := timeline.Events[0]
		preview = Preview(strings.TrimSpace(fmt.Sprintf("%d events: %s %s", timeline.TotalEvents, first.Date, first.Title)))
	}
	out := newOutput(g.Kind(), src, titleFor(g.Kind(), src.Name), content, preview)
	out.Count = intPtr(timeline.TotalEvents)
	return out, nil
}

func buildTimeline(raw []rawEvent, limit int) Timeline {
	timeline := Timeline{Events: []TimelineEvent{}}
	seen := make(map[string]bool)
	for _, e := range raw {
		if limit > 0 && len(timeline.Events) >= limit {
			break
		}
		if strings.TrimSpace(e.Title) == "" {
			continue
		}
		id := strings.TrimSpace(string(e.ID))
		if id == "" || seen[id] {
			id = fmt.Sprintf("timeline-%d", len(timeline.Events)+1)
		}
		seen[id] = true
		timeline.Events = append(timeline.Events, TimelineEvent{
			ID:          id,
			Date:        strings.TrimSpace(string(e.Date)),
			Title:       strings.TrimSpace(e.Title),
			Description: strings.TrimSpace(e.Description),
		})
	}
	timeline.TotalEvents = len(timeline.Events)
	return timeline
}
