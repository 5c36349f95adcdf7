package dto

import (
	"encoding/json"
	"time"

	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
)

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
}

type SessionSummaryResponse struct {
	Id          string    `json:"id"`
	SourceCount int       `json:"source_count"`
	OutputCount int       `json:"output_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentDTO is an upload sent as JSON. Text is the content of text files or
// the upstream extraction result for other types.
type DocumentDTO struct {
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text"`
	Size     int64  `json:"size"`
}

type LinkDTO struct {
	Url   string `json:"url" validate:"required,url"`
	Title string `json:"title" validate:"max=255"`
}

type AddSourcesRequest struct {
	Documents []DocumentDTO `json:"documents" validate:"max=20,dive"`
	Links     []LinkDTO     `json:"links" validate:"max=20,dive"`
}

type AddSourcesResponse struct {
	Sources []store.Source `json:"sources"`
}

type OptimizeSourceRequest struct {
	ForceReoptimize bool `json:"force_reoptimize"`
}

type OptimizeSourceResponse struct {
	SourceId string                  `json:"source_id"`
	Cached   bool                    `json:"cached"`
	Stats    store.OptimizationStats `json:"stats"`
}

type GenerateRequest struct {
	SourceId string          `json:"source_id" validate:"required"`
	Kind     string          `json:"kind" validate:"required,oneof=notes summary flashcards quiz timeline chat section_edit"`
	Settings json.RawMessage `json:"settings"`
}

type StartNoteJobRequest struct {
	SourceId string          `json:"source_id" validate:"required"`
	Settings json.RawMessage `json:"settings"`
}

type StartJobResponse struct {
	JobId  string          `json:"job_id"`
	Status store.JobStatus `json:"status"`
}

type ChatStreamRequest struct {
	SourceId string        `json:"source_id" validate:"required"`
	Message  string        `json:"message" validate:"required,max=4000"`
	History  []llm.Message `json:"history" validate:"max=100"`
}

type GradeAnswersRequest struct {
	OutputId string             `json:"output_id" validate:"required"`
	Answers  []generator.Answer `json:"answers" validate:"required,min=1,max=100,dive"`
}

// PublishNoteJobMessage is the payload of a queued note job on the job topic
type PublishNoteJobMessage struct {
	JobId     string          `json:"job_id"`
	SessionId string          `json:"session_id"`
	SourceId  string          `json:"source_id"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

type LogsQuery struct {
	Level  string `query:"level" validate:"omitempty,oneof=debug info warn error"`
	Module string `query:"module"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}
