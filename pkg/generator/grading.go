package generator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"
)

type Grade string

const (
	GradeCorrect   Grade = "correct"
	GradePartial   Grade = "partial"
	GradeIncorrect Grade = "incorrect"
)

// partialWeight is the score a partial answer contributes.
const partialWeight = 0.5

// gradingKind only labels grading calls in logs and timeouts.
const gradingKind store.OutputKind = "grading"

const (
	ungradedFeedback = "This answer could not be graded automatically and was marked incorrect."
	blankFeedback    = "No answer was given."
)

type Answer struct {
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"max=4000"`
}

type GradedAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Grade      Grade  `json:"grade"`
	Feedback   string `json:"feedback"`
	// Fallback marks answers the model did not grade
	Fallback bool `json:"fallback,omitempty"`
}

type GradeReport struct {
	Results   []GradedAnswer `json:"results"`
	Correct   int            `json:"correct"`
	Partial   int            `json:"partial"`
	Incorrect int            `json:"incorrect"`
	// Score is a percentage where a partial answer counts half
	Score float64 `json:"score"`
}

type rawGrade struct {
	QuestionID looseString `json:"questionId"`
	Grade      string      `json:"grade"`
	Feedback   string      `json:"feedback"`
}

type rawGrading struct {
	Grades []rawGrade `json:"grades"`
}

const gradingInstruction = `You grade a student's free-text answers against reference answers.
Grade each answer as "correct" (captures the key idea), "partial" (right direction but incomplete or partly wrong) or "incorrect".
Be fair to paraphrases; meaning matters, not wording.
Respond with a JSON object only:
{"grades": [{"questionId": "<id>", "grade": "correct|partial|incorrect", "feedback": "<one or two sentences>"}]}`

// Grader evaluates open-ended answers to quiz questions.
type Grader struct {
	base *base
}

func (r *Registry) Grader() *Grader {
	return &Grader{base: r.base}
}

// Grade grades answers against quiz. A response that cannot be parsed marks
// every ungraded answer incorrect instead of failing; provider failures are
// returned.
func (g *Grader) Grade(ctx context.Context, quiz Quiz, answers []Answer) (*GradeReport, error) {
	if len(answers) == 0 {
		return nil, apperror.Validation("no answers to grade")
	}
	questions := make(map[string]QuizQuestion, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}
	for _, a := range answers {
		if err := validate.Struct(a); err != nil {
			return nil, apperror.Validation("invalid answer: %v", err)
		}
		if _, ok := questions[a.QuestionID]; !ok {
			return nil, apperror.NotFound("question %s not found in quiz", a.QuestionID)
		}
	}

	results := make([]GradedAnswer, len(answers))
	var pending strings.Builder
	toGrade := 0
	for i, a := range answers {
		results[i] = GradedAnswer{QuestionID: a.QuestionID, Answer: a.Answer}
		if strings.TrimSpace(a.Answer) == "" {
			results[i].Grade, results[i].Feedback = GradeIncorrect, blankFeedback
			continue
		}
		q := questions[a.QuestionID]
		pending.WriteString(fmt.Sprintf("[questionId: %s]\nQuestion: %s\nReference answer: %s\n", q.ID, q.Question, referenceAnswer(q)))
		if q.Explanation != "" {
			pending.WriteString("Explanation: " + q.Explanation + "\n")
		}
		pending.WriteString("Student answer: " + strings.TrimSpace(a.Answer) + "\n\n")
		toGrade++
	}

	graded := map[string]rawGrade{}
	if toGrade > 0 {
		var p promptBuilder
		prompt := p.section("answers", pending.String()).closing("Grade every answer above. Respond with the JSON object now:")
		parsed, err := completeJSON[rawGrading](ctx, g.base, gradingKind, gradingInstruction, prompt)
		switch {
		case apperror.Is(err, apperror.CodeSchema):
			g.base.logger.Warn(module, "Grading response unusable, marking answers incorrect", map[string]interface{}{
				"answers": toGrade,
			})
		case err != nil:
			return nil, err
		default:
			for _, rg := range parsed.Grades {
				graded[strings.TrimSpace(string(rg.QuestionID))] = rg
			}
		}
	}

	report := &GradeReport{Results: results}
	for i := range report.Results {
		r := &report.Results[i]
		if r.Grade == "" {
			rg, ok := graded[r.QuestionID]
			grade := Grade(strings.ToLower(strings.TrimSpace(rg.Grade)))
			if ok && (grade == GradeCorrect || grade == GradePartial || grade == GradeIncorrect) {
				r.Grade, r.Feedback = grade, strings.TrimSpace(rg.Feedback)
			} else {
				r.Grade, r.Feedback, r.Fallback = GradeIncorrect, ungradedFeedback, true
			}
		}
		switch r.Grade {
		case GradeCorrect:
			report.Correct++
		case GradePartial:
			report.Partial++
		default:
			report.Incorrect++
		}
	}
	report.Score = Score(report.Correct, report.Partial, len(report.Results))
	return report, nil
}

// Score is (correct + 0.5*partial) / total as a percentage rounded to two decimals.
func Score(correct, partial, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := (float64(correct) + partialWeight*float64(partial)) / float64(total) * 100
	return math.Round(pct*100) / 100
}

func referenceAnswer(q QuizQuestion) string {
	if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
		return q.Options[q.CorrectAnswer]
	}
	return q.Explanation
}
