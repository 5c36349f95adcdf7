// Package llmtest provides a scripted completion provider for tests.
package llmtest

import (
	"context"
	"sync"
	"time"

	"study-pipeline-be/pkg/llm"
)

// Call records one invocation of the fake.
type Call struct {
	History []llm.Message
	Options llm.Options
	Stream  bool
}

// Response is one queued answer for Chat.
type Response struct {
	Text string
	Err  error
}

// Provider answers Chat from a FIFO queue (falling back to Default) and
// streams StreamTokens from ChatStream. It is safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	responses []Response
	calls     []Call
	emitted   int

	// Default is returned once the queue is empty
	Default string
	// ChatFunc, when set, replaces the queue entirely
	ChatFunc func(ctx context.Context, history []llm.Message, opts llm.Options) (string, error)

	StreamTokens []string
	// StreamErr is delivered in-band after all tokens
	StreamErr error
	// OpenErr is returned by ChatStream before any token
	OpenErr    error
	TokenDelay time.Duration
}

var _ llm.Provider = &Provider{}

func New(responses ...string) *Provider {
	p := &Provider{}
	for _, r := range responses {
		p.Enqueue(r)
	}
	return p
}

func (p *Provider) Enqueue(text string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, Response{Text: text})
	return p
}

func (p *Provider) EnqueueError(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, Response{Err: err})
	return p
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{}, options...)

	p.mu.Lock()
	p.calls = append(p.calls, Call{History: append([]llm.Message(nil), history...), Options: opts})
	fn := p.ChatFunc
	var next *Response
	if fn == nil && len(p.responses) > 0 {
		next = &p.responses[0]
		p.responses = p.responses[1:]
	}
	def := p.Default
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, history, opts)
	}
	if next != nil {
		return next.Text, next.Err
	}
	return def, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamChunk, error) {
	opts := llm.Apply(llm.Options{}, options...)

	p.mu.Lock()
	p.calls = append(p.calls, Call{History: append([]llm.Message(nil), history...), Options: opts, Stream: true})
	tokens := append([]string(nil), p.StreamTokens...)
	streamErr, openErr, delay := p.StreamErr, p.OpenErr, p.TokenDelay
	p.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for _, tok := range tokens {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- llm.StreamChunk{Content: tok}:
				p.mu.Lock()
				p.emitted++
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case out <- llm.StreamChunk{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Calls returns a copy of every recorded invocation.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Emitted is the number of stream tokens actually delivered.
func (p *Provider) Emitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitted
}
