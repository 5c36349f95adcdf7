package generator

import (
	"context"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/utils"
)

// MaxHistoryTurns caps the prior messages sent with a chat question.
const MaxHistoryTurns = 10

type chatGenerator struct{ *base }

func (g *chatGenerator) Kind() store.OutputKind { return store.OutputKindChat }

func (g *chatGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*ChatSettings](settings)
	if err != nil {
		return nil, err
	}
	text, placeholder, err := g.sourceText(g.Kind(), src)
	if err != nil || placeholder != nil {
		return placeholder, err
	}

	raw, err := g.complete(ctx, g.Kind(), chatMessages(src.Name, text, s), false)
	if err != nil {
		return nil, err
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return nil, apperror.Schema(nil, "completion provider returned an empty answer")
	}

	title := "Q: " + utils.TruncateRunes(strings.Join(strings.Fields(s.Message), " "), 80)
	return newOutput(g.Kind(), src, title, answer, MarkdownPreview(answer)), nil
}

// ChatMessages builds the provider conversation for a question about src. It
// applies the same readiness checks as generation; unsupported source types
// are a validation error here since there is nothing to stream a placeholder into.
func (r *Registry) ChatMessages(src store.Source, s *ChatSettings) ([]llm.Message, error) {
	if s == nil {
		return nil, apperror.Validation("chat settings are required")
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	text, placeholder, err := r.base.sourceText(store.OutputKindChat, src)
	if err != nil {
		return nil, err
	}
	if placeholder != nil {
		return nil, apperror.Validation("chat is not supported for %s sources yet", strings.ToUpper(string(src.Type)))
	}
	return chatMessages(src.Name, text, s), nil
}

func chatMessages(sourceName, text string, s *ChatSettings) []llm.Message {
	var p promptBuilder
	p.reference(sourceName, text)
	system := p.section("task",
		"You are a knowledgeable tutor helping the user understand the reference material.\n"+
			"Answer from the material; if it does not contain the answer, say so honestly.\n"+
			"Use Markdown where it helps readability.").
		closing("")

	history := trimHistory(s.History)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: strings.TrimSpace(system)})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: s.Message})
	return messages
}

// trimHistory keeps the last MaxHistoryTurns user/assistant messages.
func trimHistory(history []llm.Message) []llm.Message {
	kept := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if (m.Role == llm.RoleUser || m.Role == llm.RoleAssistant) && strings.TrimSpace(m.Content) != "" {
			kept = append(kept, m)
		}
	}
	if len(kept) > MaxHistoryTurns {
		kept = kept[len(kept)-MaxHistoryTurns:]
	}
	return kept
}
