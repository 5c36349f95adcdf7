package generator

import (
	"bytes"
	"encoding/json"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Settings is the per-kind generation configuration. Each kind has exactly
// one concrete settings type.
type Settings interface {
	Kind() store.OutputKind
	applyDefaults()
}

type NotesSettings struct {
	Style           string `json:"style" validate:"omitempty,oneof=outline detailed cornell"`
	Focus           string `json:"focus" validate:"max=500"`
	IncludeExamples bool   `json:"includeExamples"`
}

func (s *NotesSettings) Kind() store.OutputKind { return store.OutputKindNotes }
func (s *NotesSettings) applyDefaults() {
	if s.Style == "" {
		s.Style = "detailed"
	}
}

type SummarySettings struct {
	Length   string `json:"length" validate:"omitempty,oneof=short medium long"`
	Audience string `json:"audience" validate:"max=200"`
}

func (s *SummarySettings) Kind() store.OutputKind { return store.OutputKindSummary }
func (s *SummarySettings) applyDefaults() {
	if s.Length == "" {
		s.Length = "medium"
	}
}

type FlashcardsSettings struct {
	CardCount  int `json:"cardCount" validate:"omitempty,min=1,max=50"`
	Difficulty int `json:"difficulty" validate:"omitempty,oneof=1 2 3"`
}

func (s *FlashcardsSettings) Kind() store.OutputKind { return store.OutputKindFlashcards }
func (s *FlashcardsSettings) applyDefaults() {
	if s.CardCount == 0 {
		s.CardCount = 10
	}
	if s.Difficulty == 0 {
		s.Difficulty = 2
	}
}

type QuizSettings struct {
	QuestionCount int `json:"questionCount" validate:"omitempty,min=1,max=30"`
	Difficulty    int `json:"difficulty" validate:"omitempty,oneof=1 2 3"`
	OptionsCount  int `json:"optionsCount" validate:"omitempty,min=2,max=6"`
	// TimeLimit is in minutes; 0 means untimed
	TimeLimit int `json:"timeLimit" validate:"min=0,max=240"`
}

func (s *QuizSettings) Kind() store.OutputKind { return store.OutputKindQuiz }
func (s *QuizSettings) applyDefaults() {
	if s.QuestionCount == 0 {
		s.QuestionCount = 5
	}
	if s.Difficulty == 0 {
		s.Difficulty = 2
	}
	if s.OptionsCount == 0 {
		s.OptionsCount = 4
	}
}

type TimelineSettings struct {
	MaxEvents int `json:"maxEvents" validate:"omitempty,min=1,max=50"`
}

func (s *TimelineSettings) Kind() store.OutputKind { return store.OutputKindTimeline }
func (s *TimelineSettings) applyDefaults() {
	if s.MaxEvents == 0 {
		s.MaxEvents = 15
	}
}

type ChatSettings struct {
	Message string        `json:"message" validate:"required,max=4000"`
	History []llm.Message `json:"history" validate:"max=100,dive"`
}

func (s *ChatSettings) Kind() store.OutputKind { return store.OutputKindChat }
func (s *ChatSettings) applyDefaults() {
	s.Message = strings.TrimSpace(s.Message)
}

// SectionEditSettings targets an existing notes output. Notes is filled in by
// the caller from that output before generation.
type SectionEditSettings struct {
	OutputID        string `json:"outputId" validate:"required"`
	Instruction     string `json:"instruction" validate:"required,max=2000"`
	HighlightedText string `json:"highlightedText" validate:"max=8000"`
	Notes           string `json:"-"`
}

func (s *SectionEditSettings) Kind() store.OutputKind { return store.OutputKindSectionEdit }
func (s *SectionEditSettings) applyDefaults() {
	s.Instruction = strings.TrimSpace(s.Instruction)
}

// NewSettings returns zero settings for kind.
func NewSettings(kind store.OutputKind) (Settings, error) {
	switch kind {
	case store.OutputKindNotes:
		return &NotesSettings{}, nil
	case store.OutputKindSummary:
		return &SummarySettings{}, nil
	case store.OutputKindFlashcards:
		return &FlashcardsSettings{}, nil
	case store.OutputKindQuiz:
		return &QuizSettings{}, nil
	case store.OutputKindTimeline:
		return &TimelineSettings{}, nil
	case store.OutputKindChat:
		return &ChatSettings{}, nil
	case store.OutputKindSectionEdit:
		return &SectionEditSettings{}, nil
	}
	return nil, apperror.Validation("unknown output kind %q", kind)
}

// DecodeSettings decodes raw JSON into the settings type for kind, applies
// defaults and validates ranges. Unknown fields are rejected. Empty raw means
// all defaults.
func DecodeSettings(kind store.OutputKind, raw []byte) (Settings, error) {
	s, err := NewSettings(kind)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(s); err != nil {
			return nil, apperror.Validation("invalid %s settings: %v", kind, err)
		}
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate applies defaults to s and checks it.
func Validate(s Settings) error {
	s.applyDefaults()
	if err := validate.Struct(s); err != nil {
		return apperror.Validation("invalid %s settings: %v", s.Kind(), err)
	}
	return nil
}
