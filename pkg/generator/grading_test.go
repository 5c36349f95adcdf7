package generator

import (
	"context"
	"errors"
	"testing"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gradingQuiz = Quiz{Questions: []QuizQuestion{
	{ID: "q1", Question: "What does ATP store?", Options: []string{"Energy", "Water"}, CorrectAnswer: 0},
	{ID: "q2", Question: "Where is DNA kept?", Options: []string{"Nucleus", "Ribosome"}, CorrectAnswer: 0, Explanation: "Eukaryotic DNA is in the nucleus."},
	{ID: "q3", Question: "What is osmosis?", Options: []string{"Water diffusion", "Active transport"}, CorrectAnswer: 0},
	{ID: "q4", Question: "Name a lipid.", Options: []string{"Cholesterol", "Glucose"}, CorrectAnswer: 0},
}}

func TestGradeAnswers(t *testing.T) {
	fake := llmtest.New(`{"grades":[
		{"questionId":"q1","grade":"correct","feedback":"Right."},
		{"questionId":"q2","grade":"Partial","feedback":"Mostly."},
		{"questionId":"q3","grade":"excellent","feedback":"?"}
	]}`)
	answers := []Answer{
		{QuestionID: "q1", Answer: "chemical energy"},
		{QuestionID: "q2", Answer: "in the cell"},
		{QuestionID: "q3", Answer: "water moving"},
		{QuestionID: "q4", Answer: "  "},
	}

	report, err := newTestRegistry(fake).Grader().Grade(context.Background(), gradingQuiz, answers)
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	assert.Equal(t, GradeCorrect, report.Results[0].Grade)
	assert.Equal(t, GradePartial, report.Results[1].Grade)
	assert.Equal(t, GradeIncorrect, report.Results[2].Grade)
	assert.True(t, report.Results[2].Fallback)
	assert.Equal(t, ungradedFeedback, report.Results[2].Feedback)
	assert.Equal(t, blankFeedback, report.Results[3].Feedback)
	assert.Equal(t, 1, report.Correct)
	assert.Equal(t, 1, report.Partial)
	assert.Equal(t, 2, report.Incorrect)
	assert.Equal(t, 37.5, report.Score)

	prompt := fake.Calls()[0].History[1].Content
	assert.Contains(t, prompt, "Reference answer: Nucleus")
	assert.NotContains(t, prompt, "q4")
}

func TestGradeFallsBackOnUnparsableResponse(t *testing.T) {
	report, err := newTestRegistry(llmtest.New("All good!")).Grader().Grade(context.Background(), gradingQuiz, []Answer{
		{QuestionID: "q1", Answer: "energy"},
		{QuestionID: "q2", Answer: "nucleus"},
	})
	require.NoError(t, err)
	for _, r := range report.Results {
		assert.Equal(t, GradeIncorrect, r.Grade)
		assert.True(t, r.Fallback)
	}
	assert.Equal(t, 0.0, report.Score)
}

func TestGradeSurfacesUpstreamFailure(t *testing.T) {
	fake := llmtest.New()
	fake.EnqueueError(errors.New("boom"))
	_, err := newTestRegistry(fake).Grader().Grade(context.Background(), gradingQuiz, []Answer{{QuestionID: "q1", Answer: "x"}})
	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
}

func TestGradeValidation(t *testing.T) {
	g := newTestRegistry(llmtest.New()).Grader()

	_, err := g.Grade(context.Background(), gradingQuiz, nil)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = g.Grade(context.Background(), gradingQuiz, []Answer{{QuestionID: "missing", Answer: "x"}})
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	_, err = g.Grade(context.Background(), gradingQuiz, []Answer{{Answer: "x"}})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100.0, Score(3, 0, 3))
	assert.Equal(t, 50.0, Score(0, 2, 2))
	assert.Equal(t, 83.33, Score(2, 1, 3))
	assert.Equal(t, 0.0, Score(0, 0, 0))
}
