package generator

import (
	"fmt"
	"strings"
)

// promptBuilder assembles the user instruction for one generation call
type promptBuilder struct {
	b strings.Builder
}

func (p *promptBuilder) section(tag, body string) *promptBuilder {
	p.b.WriteString("<" + tag + ">\n")
	p.b.WriteString(strings.TrimSpace(body))
	p.b.WriteString("\n</" + tag + ">\n\n")
	return p
}

func (p *promptBuilder) reference(sourceName, text string) *promptBuilder {
	p.b.WriteString("<reference_material>\n")
	p.b.WriteString(fmt.Sprintf("--- CONTENT OF: %s ---\n", sourceName))
	p.b.WriteString(text)
	p.b.WriteString(fmt.Sprintf("\n--- END OF: %s ---\n", sourceName))
	p.b.WriteString("</reference_material>\n\n")
	return p
}

func (p *promptBuilder) rules(tag string, rules ...string) *promptBuilder {
	var body strings.Builder
	for i, r := range rules {
		body.WriteString(fmt.Sprintf("%d. %s\n", i+1, r))
	}
	return p.section(tag, body.String())
}

func (p *promptBuilder) closing(line string) string {
	p.b.WriteString(line)
	return p.b.String()
}

const groundingRule = "Base everything strictly on the reference material. Do not add outside knowledge."

func difficultyLabel(level int) string {
	switch level {
	case 1:
		return "easy (recall of definitions and facts)"
	case 3:
		return "hard (application, comparison and multi-step reasoning)"
	default:
		return "medium (understanding of relationships and causes)"
	}
}
