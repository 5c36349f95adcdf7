package store

import "time"

// SourceType is the kind of uploaded material
type SourceType string

const (
	SourceTypePDF     SourceType = "pdf"
	SourceTypeText    SourceType = "text"
	SourceTypeDocx    SourceType = "docx"
	SourceTypeImage   SourceType = "image"
	SourceTypeAudio   SourceType = "audio"
	SourceTypeYoutube SourceType = "youtube"
	SourceTypeURL     SourceType = "url"
)

// HasExtractionBackend reports whether generators can work from this type's text.
// The remaining types produce labeled placeholder outputs.
func (t SourceType) HasExtractionBackend() bool {
	return t == SourceTypePDF || t == SourceTypeText
}

type SourceStatus string

const (
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusError      SourceStatus = "error"
)

// OptimizationStats describes one optimizer run over a source's text
type OptimizationStats struct {
	OriginalLength   int      `json:"originalLength"`
	OptimizedLength  int      `json:"optimizedLength"`
	CompressionRatio float64  `json:"compressionRatio"`
	ProcessingCost   float64  `json:"processingCost"`
	ChunkCount       int      `json:"chunkCount"`
	KeyTopics        []string `json:"keyTopics"`
}

// Source is one uploaded unit of material owned by a Session
type Source struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Type              SourceType         `json:"type"`
	Status            SourceStatus       `json:"status"`
	ExtractedText     string             `json:"extractedText,omitempty"`
	OptimizedText     string             `json:"optimizedText,omitempty"`
	OptimizationStats *OptimizationStats `json:"optimizationStats,omitempty"`
	WordCount         int                `json:"wordCount,omitempty"`
	ProcessingError   string             `json:"processingError,omitempty"`
	URL               string             `json:"url,omitempty"`

	// Fingerprint of the text + optimizer configuration the cached stats were computed from
	OptimizationKey string `json:"-"`
}

// Text returns the best available text: optimized when present, else extracted.
func (s Source) Text() string {
	if s.OptimizedText != "" {
		return s.OptimizedText
	}
	return s.ExtractedText
}

type OutputKind string

const (
	OutputKindNotes       OutputKind = "notes"
	OutputKindFlashcards  OutputKind = "flashcards"
	OutputKindQuiz        OutputKind = "quiz"
	OutputKindSummary     OutputKind = "summary"
	OutputKindTimeline    OutputKind = "timeline"
	OutputKindChat        OutputKind = "chat"
	OutputKindSectionEdit OutputKind = "section_edit"
)

type OutputStatus string

const (
	OutputStatusGenerating OutputStatus = "generating"
	OutputStatusReady      OutputStatus = "ready"
	OutputStatusError      OutputStatus = "error"
)

// Output is a generated study artifact. SourceID is a lookup-only reference.
type Output struct {
	ID          string       `json:"id"`
	Type        OutputKind   `json:"type"`
	Title       string       `json:"title"`
	Preview     string       `json:"preview"`
	Status      OutputStatus `json:"status"`
	SourceID    string       `json:"sourceId"`
	CreatedAt   time.Time    `json:"createdAt"`
	Count       *int         `json:"count,omitempty"`
	Content     string       `json:"content,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

// Session groups the sources and outputs of one study task
type Session struct {
	ID        string    `json:"id"`
	Sources   []Source  `json:"sources"`
	Outputs   []Output  `json:"outputs"`
	CreatedAt time.Time `json:"createdAt"`
}

// FindSource returns a copy of the source with the given id.
func (s *Session) FindSource(id string) (Source, bool) {
	for _, src := range s.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

func (s *Session) FindOutput(id string) (Output, bool) {
	for _, out := range s.Outputs {
		if out.ID == id {
			return out, true
		}
	}
	return Output{}, false
}
