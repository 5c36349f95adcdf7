package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
)

type EditAction string

const (
	EditReplace EditAction = "replace"
	EditAppend  EditAction = "append"
	EditIgnore  EditAction = "ignore"
)

// SectionEdit is the content of a section_edit output. It records the model's
// decision even when the decision was to leave the notes unchanged.
type SectionEdit struct {
	BaseOutputID string     `json:"baseOutputId"`
	Action       EditAction `json:"action"`
	SectionIndex int        `json:"sectionIndex"`
	Reason       string     `json:"reason"`
	Proposed     string     `json:"proposed,omitempty"`
	Notes        string     `json:"notes"`
	SectionCount int        `json:"sectionCount"`
}

type rawEdit struct {
	Action       string      `json:"action"`
	SectionIndex looseString `json:"sectionIndex"`
	Content      string      `json:"content"`
	Reason       string      `json:"reason"`
}

const sectionEditInstruction = `You maintain a student's Markdown study notes. The notes are split into numbered sections.
Given an instruction and optionally a passage the student highlighted, decide one action:
- "replace": rewrite one existing section (give its number and the full new section, heading included)
- "append": add a new section after the given section number (-1 to add at the end)
- "ignore": change nothing, when the instruction or passage adds nothing the notes lack
Respond with a JSON object only:
{"action": "replace|append|ignore", "sectionIndex": <number>, "content": "<Markdown>", "reason": "<one sentence>"}`

type sectionEditGenerator struct{ *base }

func (g *sectionEditGenerator) Kind() store.OutputKind { return store.OutputKindSectionEdit }

func (g *sectionEditGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*SectionEditSettings](settings)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Notes) == "" {
		return nil, apperror.Validation("output %s has no notes content to edit", s.OutputID)
	}
	text, placeholder, err := g.sourceText(g.Kind(), src)
	if err != nil || placeholder != nil {
		return placeholder, err
	}

	sections := SplitSections(s.Notes)
	var listing strings.Builder
	for i, sec := range sections {
		listing.WriteString(fmt.Sprintf("[section %d]\n%s\n\n", i, sec))
	}

	var p promptBuilder
	p.reference(src.Name, text)
	p.section("notes", listing.String())
	p.section("instruction", s.Instruction)
	if s.HighlightedText != "" {
		p.section("highlighted_text", s.HighlightedText)
	}
	prompt := p.rules("guidelines",
		groundingRule,
		"Prefer editing the section whose topic matches the instruction.",
		"Keep the notes' existing heading levels and style.",
	).closing("Respond with the JSON object now:")

	parsed, err := completeJSON[rawEdit](ctx, g.base, g.Kind(), sectionEditInstruction, prompt)
	if err != nil {
		return nil, err
	}

	edit, err := applyEdit(sections, parsed)
	if err != nil {
		return nil, err
	}
	edit.BaseOutputID = s.OutputID
	if edit.Action == EditIgnore {
		g.logger.Info(module, "Section edit ignored by model", map[string]interface{}{
			"output_id": s.OutputID,
			"reason":    edit.Reason,
		})
	}

	content, err := structured.Compact(edit)
	if err != nil {
		return nil, err
	}
	preview := Preview(fmt.Sprintf("%s section %d: %s", edit.Action, edit.SectionIndex, edit.Reason))
	return newOutput(g.Kind(), src, titleFor(g.Kind(), src.Name), content, preview), nil
}

// applyEdit validates the model's decision against the sections and applies it.
func applyEdit(sections []string, raw rawEdit) (SectionEdit, error) {
	action := EditAction(strings.ToLower(strings.TrimSpace(raw.Action)))
	proposed := strings.TrimSpace(raw.Content)
	edit := SectionEdit{Action: action, Reason: strings.TrimSpace(raw.Reason), Proposed: proposed, SectionIndex: -1}

	index := -1
	if s := strings.TrimSpace(string(raw.SectionIndex)); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return edit, apperror.Schema(err, "section index %q is not a number", s)
		}
		index = n
	}

	updated := append([]string(nil), sections...)
	switch action {
	case EditReplace:
		if index < 0 || index >= len(sections) {
			return edit, apperror.Schema(nil, "replace targets section %d of %d", index, len(sections))
		}
		if proposed == "" {
			return edit, apperror.Schema(nil, "replace has no content")
		}
		updated[index] = proposed
		edit.SectionIndex = index
	case EditAppend:
		if proposed == "" {
			return edit, apperror.Schema(nil, "append has no content")
		}
		if index < 0 || index >= len(sections) {
			updated = append(updated, proposed)
			edit.SectionIndex = len(updated) - 1
		} else {
			updated = append(updated[:index+1], append([]string{proposed}, updated[index+1:]...)...)
			edit.SectionIndex = index + 1
		}
	case EditIgnore:
		edit.Proposed = ""
		if edit.Reason == "" {
			edit.Reason = "the model found nothing to add to the notes"
		}
		if index >= 0 && index < len(sections) {
			edit.SectionIndex = index
		}
	default:
		return edit, apperror.Schema(nil, "unknown edit action %q", raw.Action)
	}

	edit.Notes = JoinSections(updated)
	edit.SectionCount = len(updated)
	return edit, nil
}
