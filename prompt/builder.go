// Package prompt assembles the generation prompt from retrieved chunks and
// conversation history under a hard token budget.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/conversation"
	"github.com/scholarmind/ragcore/ragerr"
	"github.com/scholarmind/ragcore/schema"
)

const (
	contextHeader = "Use the following document excerpts to answer. Cite them inline as [Source N].\n\n"
	historyHeader = "Conversation so far:\n"
	summaryLabel  = "Earlier discussion: "
	questionLabel = "Question: "

	formatInstructions = `Respond in this layout:
Answer: <the answer with [Source N] citations>
Key Findings:
- <finding>
Limitations: <caveats, or omit if none>`
)

// Prompt is an assembled prompt plus the candidates that made it in, in
// source-label order. Included[0] is [Source 1].
type Prompt struct {
	Text            string
	Included        []schema.RetrievalCandidate
	EstimatedTokens int
}

// Builder packs chunks into prompts. Deterministic and side-effect-free.
type Builder struct {
	cfg     config.PromptConfig
	counter tokens.Counter
}

func NewBuilder(cfg config.PromptConfig, counter tokens.Counter) *Builder {
	return &Builder{cfg: cfg, counter: counter}
}

// Build greedily packs whole chunks, best score first, into the budget left
// after the fixed skeleton, the history, and the question are reserved.
// Chunks are never split. Returns ErrBudgetExceeded when not even one chunk
// fits; callers must surface that, not swallow it.
func (b *Builder) Build(question string, candidates []schema.RetrievalCandidate, window conversation.ContextWindow, maxTokens int) (Prompt, error) {
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxTokens
	}

	history := renderHistory(window)
	reserved := b.counter.Count(contextHeader) +
		b.counter.Count(history) +
		b.counter.Count(questionLabel+question+"\n\n") +
		b.counter.Count(formatInstructions)

	budget := maxTokens - reserved

	ordered := make([]schema.RetrievalCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RerankScore != ordered[j].RerankScore {
			return ordered[i].RerankScore > ordered[j].RerankScore
		}
		return ordered[i].Chunk.Ordinal < ordered[j].Chunk.Ordinal
	})

	var sections strings.Builder
	included := make([]schema.RetrievalCandidate, 0, len(ordered))
	used := 0
	for _, cand := range ordered {
		section := renderSection(len(included)+1, cand.Chunk)
		cost := b.counter.Count(section)
		if used+cost > budget {
			// Whole chunks only. The first overflow ends the pass.
			break
		}
		sections.WriteString(section)
		included = append(included, cand)
		used += cost
	}

	if len(included) == 0 && len(candidates) > 0 {
		return Prompt{}, ragerr.New(ragerr.ErrBudgetExceeded,
			fmt.Sprintf("no chunk fits in %d tokens", maxTokens), nil)
	}

	var sb strings.Builder
	sb.WriteString(contextHeader)
	sb.WriteString(sections.String())
	sb.WriteString(history)
	sb.WriteString(questionLabel)
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(formatInstructions)

	text := sb.String()
	return Prompt{
		Text:            text,
		Included:        included,
		EstimatedTokens: b.counter.Count(text),
	}, nil
}

func renderSection(label int, chunk schema.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Source %d]", label)
	if chunk.Title != "" {
		sb.WriteString(" ")
		sb.WriteString(chunk.Title)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(chunk.Text))
	sb.WriteString("\n\n")
	return sb.String()
}

func renderHistory(window conversation.ContextWindow) string {
	if window.TopicSummary == "" && len(window.RecentTurns) == 0 {
		return ""
	}
	var sb strings.Builder
	if window.TopicSummary != "" {
		sb.WriteString(summaryLabel)
		sb.WriteString(window.TopicSummary)
		sb.WriteString("\n")
	}
	if len(window.RecentTurns) > 0 {
		sb.WriteString(historyHeader)
		for _, turn := range window.RecentTurns {
			sb.WriteString("Q: ")
			sb.WriteString(turn.Question)
			sb.WriteString("\nA: ")
			sb.WriteString(turn.Answer)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}
