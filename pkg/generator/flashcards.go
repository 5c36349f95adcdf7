package generator

import (
	"context"
	"fmt"
	"strings"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/store"
	"study-pipeline-be/pkg/structured"
)

type Flashcard struct {
	ID       string `json:"id"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	Category string `json:"category,omitempty"`
}

// FlashcardDeck is the content of a flashcards output. TotalCards and
// Categories are always derived from Cards.
type FlashcardDeck struct {
	Cards      []Flashcard `json:"cards"`
	TotalCards int         `json:"totalCards"`
	Categories []string    `json:"categories"`
}

type rawFlashcard struct {
	ID       looseString `json:"id"`
	Front    string      `json:"front"`
	Back     string      `json:"back"`
	Category string      `json:"category"`
}

type rawDeck struct {
	Cards      []rawFlashcard `json:"cards"`
	Flashcards []rawFlashcard `json:"flashcards"`
	TotalCards int            `json:"totalCards"`
}

const flashcardsInstruction = `You create effective study flashcards. Each card tests exactly one fact or concept.
Respond with a JSON object only:
{"cards": [{"front": "<question or term>", "back": "<concise answer>", "category": "<topic>"}]}`

type flashcardsGenerator struct{ *base }

func (g *flashcardsGenerator) Kind() store.OutputKind { return store.OutputKindFlashcards }

func (g *flashcardsGenerator) Generate(ctx context.Context, src store.Source, settings Settings) (*store.Output, error) {
	s, err := settingsAs[*FlashcardsSettings](settings)
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
		fmt.Sprintf("Create %d flashcards at %s difficulty.", s.CardCount, difficultyLabel(s.Difficulty)),
		"Keep the front under 20 words and the back under 40 words.",
		"Group cards with a short category label taken from the material's topics.",
		"Do not repeat a fact on two cards.",
	).closing("Respond with the JSON object now:")

	parsed, err := completeJSON[rawDeck](ctx, g.base, g.Kind(), flashcardsInstruction, prompt)
	if err != nil {
		return nil, err
	}

	deck := buildDeck(append(parsed.Cards, parsed.Flashcards...), s.CardCount)
	if len(deck.Cards) == 0 {
		return nil, apperror.Schema(nil, "model response contains no usable flashcards")
	}
	if parsed.TotalCards != 0 && parsed.TotalCards != deck.TotalCards {
		g.logger.Debug(module, "Model card count ignored", map[string]interface{}{
			"reported": parsed.TotalCards,
			"actual":   deck.TotalCards,
		})
	}

	content, err := structured.Compact(deck)
	if err != nil {
		return nil, err
	}
	preview := Preview(fmt.Sprintf("%d cards: %s", deck.TotalCards, deck.Cards[0].Front))
	out := newOutput(g.Kind(), src, titleFor(g.Kind(), src.Name), content, preview)
	out.Count = intPtr(deck.TotalCards)
	return out, nil
}

// buildDeck drops incomplete cards, assigns missing ids and derives the aggregates.
func buildDeck(raw []rawFlashcard, limit int) FlashcardDeck {
	deck := FlashcardDeck{Cards: []Flashcard{}, Categories: []string{}}
	seenIDs := make(map[string]bool)
	seenCategories := make(map[string]bool)
	for _, c := range raw {
		if limit > 0 && len(deck.Cards) >= limit {
			break
		}
		if !nonEmpty(c.Front, c.Back) {
			continue
		}
		card := Flashcard{
			ID:       strings.TrimSpace(string(c.ID)),
			Front:    strings.TrimSpace(c.Front),
			Back:     strings.TrimSpace(c.Back),
			Category: strings.TrimSpace(c.Category),
		}
		if card.ID == "" || seenIDs[card.ID] {
			card.ID = fmt.Sprintf("flashcard-%d", len(deck.Cards)+1)
		}
		seenIDs[card.ID] = true
		if card.Category != "" && !seenCategories[strings.ToLower(card.Category)] {
			seenCategories[strings.ToLower(card.Category)] = true
			deck.Categories = append(deck.Categories, card.Category)
		}
		deck.Cards = append(deck.Cards, card)
	}
	deck.TotalCards = len(deck.Cards)
	return deck
}
