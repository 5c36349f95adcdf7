package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
)

type QuizQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	// CorrectAnswer is a zero-based index into Options
	CorrectAnswer int    `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
}

// Quiz is the content of a quiz output. TotalQuestions always equals len(Questions).
type Quiz struct {
	Questions      []QuizQuestion `json:"questions"`
	TotalQuestions int            `json:"totalQuestions"`
	Difficulty     int            `json:"difficulty"`
	TimeLimit      int            `json:"timeLimit"`
}

type rawQuestion struct {
	ID            looseString     `json:"id"`
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
}

type rawQuiz struct {
	Questions []rawQuestion `json:"questions"`
}

const quizInstruction = `You write multiple-choice quiz questions that test understanding, not trivia.
Respond with a JSON object only:
{"questions": [{"question": "<text>", "options": ["<option>", ...], "correctAnswer": <zero-based index of the correct option>, "explanation": "<why it is correct>"}]}`

type quizGenerator struct{ *base }

func (g *quizGenerator) Kind() store.OutputKind { return store.OutputKindQuiz }

func (g *quizGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*QuizSettings](settings)
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
		fmt.Sprintf("Write exactly %d questions at %s difficulty.", s.QuestionCount, difficultyLabel(s.Difficulty)),
		fmt.Sprintf("Every question has exactly %d options and exactly one correct option.", s.OptionsCount),
		"Distractors must be plausible and drawn from the same material.",
		"Every question carries a one or two sentence explanation citing the material.",
	).closing("Respond with the JSON object now:")

	parsed, err := completeJSON[rawQuiz](ctx, g.base, g.Kind(), quizInstruction, prompt)
	if err != nil {
		return nil, err
	}

	quiz := buildQuiz(parsed.Questions, s)
	if dropped := len(parsed.Questions) - quiz.TotalQuestions; dropped > 0 {
		g.logger.Debug(module, "Quiz questions dropped", map[string]interface{}{
			"dropped":   dropped,
			"remaining": quiz.TotalQuestions,
		})
	}
	if quiz.TotalQuestions == 0 {
		return nil, apperror.Schema(nil, "model response contains no valid quiz questions")
	}

	content, err := structured.Compact(quiz)
	if err != nil {
		return nil, err
	}
	preview := Preview(fmt.Sprintf("%d questions: %s", quiz.TotalQuestions, quiz.Questions[0].Question))
	out := newOutput(g.Kind(), src, titleFor(g.Kind(), src.Name), content, preview)
	out.Count = intPtr(quiz.TotalQuestions)
	return out, nil
}

// buildQuiz keeps questions with a text, at least two options and a resolvable
// answer, up to the requested count.
func buildQuiz(raw []rawQuestion, s *QuizSettings) Quiz {
	quiz := Quiz{Questions: []QuizQuestion{}, Difficulty: s.Difficulty, TimeLimit: s.TimeLimit}
	seen := make(map[string]bool)
	for _, q := range raw {
		if len(quiz.Questions) >= s.QuestionCount {
			break
		}
		options := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			if o = strings.TrimSpace(o); o != "" {
				options = append(options, o)
			}
		}
		if strings.TrimSpace(q.Question) == "" || len(options) < 2 || len(options) != len(q.Options) {
			continue
		}
		answer, ok := resolveAnswer(q.CorrectAnswer, options)
		if !ok {
			continue
		}
		id := strings.TrimSpace(string(q.ID))
		if id == "" || seen[id] {
			id = fmt.Sprintf("quiz-%d", len(quiz.Questions)+1)
		}
		seen[id] = true
		quiz.Questions = append(quiz.Questions, QuizQuestion{
			ID:            id,
			Question:      strings.TrimSpace(q.Question),
			Options:       options,
			CorrectAnswer: answer,
			Explanation:   strings.TrimSpace(q.Explanation),
		})
	}
	quiz.TotalQuestions = len(quiz.Questions)
	return quiz
}

// resolveAnswer maps an index, a letter ("B", "b)") or the option text itself
// to a zero-based option index.
func resolveAnswer(raw json.RawMessage, options []string) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] != '"' {
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil || n != float64(int(n)) {
			return 0, false
		}
		return inRange(int(n), len(options))
	}

	var answer string
	if err := json.Unmarshal(raw, &answer); err != nil {
		return 0, false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false
	}
	for i, o := range options {
		if strings.EqualFold(o, answer) {
			return i, true
		}
	}
	if n, err := strconv.Atoi(answer); err == nil {
		return inRange(n, len(options))
	}
	letter := strings.ToUpper(answer)[0]
	if letter >= 'A' && letter <= 'Z' && (len(answer) == 1 || strings.ContainsRune(").:", rune(answer[1]))) {
		return inRange(int(letter-'A'), len(options))
	}
	return 0, false
}

func inRange(i, n int) (int, bool) {
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
