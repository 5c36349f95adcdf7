package generator

import (
	"context"
	"fmt"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
)

const notesInstruction = `You are an expert study assistant who writes clear, well-structured study notes in Markdown.
Use ## headings for each main topic and ### for subtopics. Use bullet points for details, **bold** for key terms.
Respond with the notes only, no preamble.`

const summaryInstruction = `You are an expert study assistant who writes faithful summaries in Markdown.
Respond with the summary only, no preamble.`

type notesGenerator struct{ *base }

func (g *notesGenerator) Kind() store.OutputKind { return store.OutputKindNotes }

func (g *notesGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*NotesSettings](settings)
	if err != nil {
		return nil, err
	}
	text, placeholder, err := g.sourceText(g.Kind(), src)
	if err != nil || placeholder != nil {
		return placeholder, err
	}

	style := map[string]string{
		"outline":  "a compact hierarchical outline: short bullet points, no long paragraphs",
		"detailed": "detailed notes: short explanatory paragraphs under each heading, followed by bullet points of key facts",
		"cornell":  "Cornell-style notes: for each topic a '### Cues' list of questions, a '### Notes' body and a one-paragraph '### Summary'",
	}[s.Style]

	var p promptBuilder
	p.reference(src.Name, text)
	rules := []string{
		groundingRule,
		"Write " + style + ".",
		"Cover every major concept, definition, name, date and formula in the material.",
		"Start with a single # title naming the subject.",
	}
	if s.IncludeExamples {
		rules = append(rules, "Include the worked examples from the material under an 'Examples' subheading where they occur.")
	}
	if s.Focus != "" {
		rules = append(rules, fmt.Sprintf("Give extra depth to: %s.", s.Focus))
	}
	prompt := p.rules("guidelines", rules...).closing("Now write the notes:")

	content, err := g.narrative(ctx, g.Kind(), notesInstruction, prompt)
	if err != nil {
		return nil, err
	}

	title := FirstHeading(content)
	if title == "" {
		title = titleFor(g.Kind(), src.Name)
	}
	out := newOutput(g.Kind(), src, title, content, MarkdownPreview(content))
	out.Count = intPtr(len(SplitSections(content)))
	return out, nil
}

type summaryGenerator struct{ *base }

func (g *summaryGenerator) Kind() store.OutputKind { return store.OutputKindSummary }

func (g *summaryGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*SummarySettings](settings)
	if err != nil {
		return nil, err
	}
	text, placeholder, err := g.sourceText(g.Kind(), src)
	if err != nil || placeholder != nil {
		return placeholder, err
	}

	length := map[string]string{
		"short":  "one paragraph of at most 80 words",
		"medium": "three to five short paragraphs, about 250 words in total",
		"long":   "a structured summary with ## headings per main topic, about 600 words in total",
	}[s.Length]

	var p promptBuilder
	p.reference(src.Name, text)
	rules := []string{
		groundingRule,
		"Write " + length + ".",
		"Lead with the central idea, then the supporting points in the order the material presents them.",
	}
	if s.Audience != "" {
		rules = append(rules, fmt.Sprintf("Write for this audience: %s.", s.Audience))
	}
	prompt := p.rules("guidelines", rules...).closing("Now write the summary:")

	content, err := g.narrative(ctx, g.Kind(), summaryInstruction, prompt)
	if err != nil {
		return nil, err
	}
	return newOutput(g.Kind(), src, titleFor(g.Kind(), src.Name), content, MarkdownPreview(content)), nil
}

// narrative runs a free-form Markdown completion and strips a wrapping code fence.
func (b *base) narrative(ctx context.Context, kind store.OutputKind, system, prompt string) (string, error) {
	raw, err := b.complete(ctx, kind, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt},
	}, false)
	if err != nil {
		return "", err
	}
	content := stripFence(raw)
	if content == "" {
		return "", apperror.Schema(nil, "completion provider returned an empty %s", kind)
	}
	return content, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(s, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "```")
	}
	return strings.TrimSpace(body)
}
