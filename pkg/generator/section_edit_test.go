package generator

import (
	"context"
	"encoding/json"
	"testing"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseNotes = "# Cells\n\nIntro text.\n\n## Membranes\n\nLipid bilayer.\n\n## Transport\n\nDiffusion."

func runSectionEdit(t *testing.T, response string) (SectionEdit, error) {
	t.Helper()
	settings := &SectionEditSettings{OutputID: "notes-1", Instruction: "Add osmosis", HighlightedText: "Osmosis moves water.", Notes: baseNotes}
	out, err := newTestRegistry(llmtest.New(response)).Generate(context.Background(), readySource(lorem(400)), settings)
	if err != nil {
		return SectionEdit{}, err
	}
	var edit SectionEdit
	require.NoError(t, json.Unmarshal([]byte(out.Content), &edit))
	return edit, nil
}

func TestSectionEditReplace(t *testing.T) {
	edit, err := runSectionEdit(t, `{"action":"replace","sectionIndex":2,"content":"## Transport\n\nDiffusion and osmosis.","reason":"osmosis is transport"}`)
	require.NoError(t, err)

	assert.Equal(t, EditReplace, edit.Action)
	assert.Equal(t, 2, edit.SectionIndex)
	assert.Equal(t, "notes-1", edit.BaseOutputID)
	assert.Equal(t, 3, edit.SectionCount)
	assert.Equal(t, "# Cells\n\nIntro text.\n\n## Membranes\n\nLipid bilayer.\n\n## Transport\n\nDiffusion and osmosis.", edit.Notes)
}

func TestSectionEditAppend(t *testing.T) {
	edit, err := runSectionEdit(t, `{"action":"Append","sectionIndex":"1","content":"## Osmosis\n\nWater movement.","reason":"new topic"}`)
	require.NoError(t, err)

	assert.Equal(t, EditAppend, edit.Action)
	assert.Equal(t, 2, edit.SectionIndex)
	assert.Equal(t, 4, edit.SectionCount)
	assert.Equal(t, []string{"# Cells\n\nIntro text.", "## Membranes\n\nLipid bilayer.", "## Osmosis\n\nWater movement.", "## Transport\n\nDiffusion."}, SplitSections(edit.Notes))

	edit, err = runSectionEdit(t, `{"action":"append","sectionIndex":-1,"content":"## Osmosis\n\nWater.","reason":"end"}`)
	require.NoError(t, err)
	assert.Equal(t, 3, edit.SectionIndex)
}

func TestSectionEditIgnoreIsRecorded(t *testing.T) {
	edit, err := runSectionEdit(t, `{"action":"ignore","sectionIndex":2,"content":"unused","reason":"already covered"}`)
	require.NoError(t, err)

	assert.Equal(t, EditIgnore, edit.Action)
	assert.Equal(t, "already covered", edit.Reason)
	assert.Empty(t, edit.Proposed)
	assert.Equal(t, baseNotes, edit.Notes)
}

func TestSectionEditInvalidDecisions(t *testing.T) {
	for _, response := range []string{
		`{"action":"rewrite","sectionIndex":0,"content":"x"}`,
		`{"action":"replace","sectionIndex":9,"content":"x"}`,
		`{"action":"replace","sectionIndex":1,"content":""}`,
		`{"action":"append","sectionIndex":"two","content":"x"}`,
	} {
		_, err := runSectionEdit(t, response)
		assert.True(t, apperror.Is(err, apperror.CodeSchema), response)
	}
}

func TestSectionEditRequiresNotes(t *testing.T) {
	fake := llmtest.New()
	settings := &SectionEditSettings{OutputID: "notes-1", Instruction: "Add osmosis"}
	_, err := newTestRegistry(fake).Generate(context.Background(), readySource(lorem(400)), settings)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Zero(t, fake.CallCount())
}
