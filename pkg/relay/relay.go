// Package relay forwards a streaming completion to a client as ordered events.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
)

const module = "relay"

type EventType string

const (
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on the stream. Complete and error events are terminal.
type Event struct {
	Type        EventType `json:"type"`
	Content     string    `json:"content,omitempty"`
	FullContent string    `json:"fullContent,omitempty"`
	Message     string    `json:"message,omitempty"`
	Code        string    `json:"code,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// ErrorEvent converts err into a terminal error event.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Code: string(apperror.CodeOf(err)), Message: apperror.MessageOf(err)}
}

// Failed returns a closed stream holding only the error event for err.
func Failed(err error) <-chan Event {
	out := make(chan Event, 1)
	out <- ErrorEvent(err)
	close(out)
	return out
}

type Relay struct {
	provider llm.StreamingProvider
	timeout  time.Duration
	logger   logger.ILogger
}

// New builds a relay. timeout bounds the whole stream; zero means unbounded.
func New(provider llm.StreamingProvider, timeout time.Duration, log logger.ILogger) *Relay {
	return &Relay{provider: provider, timeout: timeout, logger: log}
}

// Stream opens a streaming completion and relays it. The returned channel
// carries chunk events in order followed by exactly one terminal event, then
// closes. When ctx is cancelled the relay stops reading from the provider,
// cancels the upstream call and closes the channel without a terminal event.
func (r *Relay) Stream(ctx context.Context, messages []llm.Message, opts ...llm.Option) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		streamCtx, cancel := r.bound(ctx)
		defer cancel()

		send := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(err error) {
			r.logger.Warn(module, "Stream failed", map[string]interface{}{"error": err.Error()})
			send(ErrorEvent(err))
		}

		start := time.Now()
		chunks, err := r.provider.ChatStream(streamCtx, messages, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(r.classify(err))
			return
		}

		var full strings.Builder
		count := 0
		for {
			select {
			case <-streamCtx.Done():
				if ctx.Err() != nil {
					r.logger.Info(module, "Client went away, stream abandoned", map[string]interface{}{"chunks": count})
					return
				}
				fail(r.classify(streamCtx.Err()))
				return
			case c, ok := <-chunks:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					if streamCtx.Err() != nil {
						fail(r.classify(streamCtx.Err()))
						return
					}
					r.logger.Debug(module, "Stream complete", map[string]interface{}{
						"chunks":     count,
						"chars":      full.Len(),
						"elapsed_ms": time.Since(start).Milliseconds(),
					})
					send(Event{Type: EventComplete, FullContent: full.String()})
					return
				}
				if c.Err != nil {
					if ctx.Err() != nil {
						return
					}
					fail(r.classify(c.Err))
					return
				}
				if c.Content == "" {
					continue
				}
				full.WriteString(c.Content)
				count++
				if !send(Event{Type: EventChunk, Content: c.Content}) {
					return
				}
			}
		}
	}()
	return out
}

func (r *Relay) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

func (r *Relay) classify(err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Timeout(err, "completion provider timed out after %s", r.timeout)
	}
	return apperror.Upstream(err, "completion stream failed")
}
