// Package extraction turns uploads and links into Sources. Real document
// extraction (PDF, OCR, transcription) runs upstream; this package accepts its
// text, extracts plain text itself and marks everything else for placeholders.
package extraction

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/utils"
)

const module = "extraction"

// File is one uploaded file. ExtractedText, when set, is text an upstream
// extraction service already produced and wins over local extraction.
type File struct {
	Name          string
	MimeType      string
	Size          int64
	Data          []byte
	ExtractedText string
}

func (f File) size() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

type Link struct {
	URL   string
	Title string
}

// Extractor produces plain text from a file of one source type.
type Extractor interface {
	Extract(ctx context.Context, f File) (string, error)
}

type ExtractorFunc func(ctx context.Context, f File) (string, error)

func (fn ExtractorFunc) Extract(ctx context.Context, f File) (string, error) {
	return fn(ctx, f)
}

type Service struct {
	extractors map[store.SourceType]Extractor
	logger     logger.ILogger
}

// NewService registers the built-in plain-text extractor.
func NewService(log logger.ILogger) *Service {
	s := &Service{extractors: make(map[store.SourceType]Extractor), logger: log}
	s.Register(store.SourceTypeText, ExtractorFunc(PlainText))
	return s
}

func (s *Service) Register(t store.SourceType, e Extractor) {
	s.extractors[t] = e
}

var extensionTypes = map[string]store.SourceType{
	".pdf": store.SourceTypePDF,
	".txt": store.SourceTypeText, ".md": store.SourceTypeText, ".markdown": store.SourceTypeText,
	".csv": store.SourceTypeText, ".rtf": store.SourceTypeText,
	".docx": store.SourceTypeDocx, ".doc": store.SourceTypeDocx,
	".png": store.SourceTypeImage, ".jpg": store.SourceTypeImage, ".jpeg": store.SourceTypeImage,
	".gif": store.SourceTypeImage, ".webp": store.SourceTypeImage, ".heic": store.SourceTypeImage,
	".mp3": store.SourceTypeAudio, ".wav": store.SourceTypeAudio, ".m4a": store.SourceTypeAudio,
	".ogg": store.SourceTypeAudio, ".flac": store.SourceTypeAudio, ".webm": store.SourceTypeAudio,
}

var mimeTypes = map[string]store.SourceType{
	"application/pdf": store.SourceTypePDF,
	"application/msword": store.SourceTypeDocx,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": store.SourceTypeDocx,
	"application/json": store.SourceTypeText,
}

// InferType picks a source type from the file extension, then the MIME type.
func InferType(name, mimeType string) (store.SourceType, bool) {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t, true
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", false
	}
	if t, ok := mimeTypes[mediaType]; ok {
		return t, true
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return store.SourceTypeText, true
	case strings.HasPrefix(mediaType, "image/"):
		return store.SourceTypeImage, true
	case strings.HasPrefix(mediaType, "audio/"):
		return store.SourceTypeAudio, true
	}
	return "", false
}

// FromFiles builds a Source per non-empty file. Extraction failures produce a
// Source in error status rather than failing the batch; an unrecognised file
// type fails the whole request.
func (s *Service) FromFiles(ctx context.Context, files []File) ([]store.Source, error) {
	sources := make([]store.Source, 0, len(files))
	for _, f := range files {
		if f.size() == 0 && f.ExtractedText == "" {
			s.logger.Debug(module, "Skipping empty file", map[string]interface{}{"name": f.Name})
			continue
		}
		t, ok := InferType(f.Name, f.MimeType)
		if !ok {
			return nil, apperror.Validation("unsupported file type for %q", f.Name)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sources = append(sources, s.fromFile(ctx, f, t))
	}
	return sources, nil
}

func (s *Service) fromFile(ctx context.Context, f File, t store.SourceType) store.Source {
	src := store.Source{Name: f.Name, Type: t, Status: store.SourceStatusProcessing}

	text := f.ExtractedText
	if text == "" {
		e, ok := s.extractors[t]
		switch {
		case ok:
			extracted, err := e.Extract(ctx, f)
			if err != nil {
				return failed(src, err.Error())
			}
			text = extracted
		case t == store.SourceTypePDF:
			return failed(src, "no text was extracted from this PDF")
		default:
			// No backend yet: ready, and generators return a labeled placeholder
			src.Status = store.SourceStatusReady
			return src
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return failed(src, "file contains no text")
	}
	src.ExtractedText = text
	src.WordCount = utils.CountWords(text)
	src.Status = store.SourceStatusReady
	return src
}

func failed(src store.Source, reason string) store.Source {
	src.Status = store.SourceStatusError
	src.ProcessingError = reason
	return src
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText decodes a UTF-8 text file, dropping a leading byte-order mark.
func PlainText(_ context.Context, f File) (string, error) {
	data := bytes.TrimPrefix(f.Data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", f.Name)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// FromLinks builds youtube or url Sources. Links have no extraction backend yet.
func FromLinks(links []Link) ([]store.Source, error) {
	sources := make([]store.Source, 0, len(links))
	for _, l := range links {
		u, err := url.Parse(strings.TrimSpace(l.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperror.Validation("invalid link %q", l.URL)
		}
		t := store.SourceTypeURL
		if isYoutube(u.Hostname()) {
			t = store.SourceTypeYoutube
		}
		name := strings.TrimSpace(l.Title)
		if name == "" {
			name = u.Host + strings.TrimSuffix(u.Path, "/")
		}
		sources = append(sources, store.Source{
			Name:   name,
			Type:   t,
			Status: store.SourceStatusReady,
			URL:    u.String(),
		})
	}
	return sources, nil
}

func isYoutube(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}
