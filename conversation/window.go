package conversation

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
)

var (
	wordPattern     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?。！？]+[.!?。！？])`)
)

var summaryStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "how": {},
	"why": {}, "are": {}, "was": {}, "were": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "about": {},
	"from": {}, "into": {}, "have": {}, "has": {}, "had": {}, "not": {},
	"you": {}, "your": {}, "they": {}, "their": {}, "there": {}, "been": {},
	"will": {}, "more": {}, "than": {}, "also": {}, "its": {}, "it's": {},
}

// windowBuilder compresses a turn history into a ContextWindow that fits a
// token budget.
type windowBuilder struct {
	cfg     config.ConversationConfig
	counter tokens.Counter
}

// Build derives a window from the full turn list. The newest turns stay
// verbatim; older turns collapse into weighted key entities and a frequency
// ranked topic summary. If the estimate still exceeds the budget the oldest
// retained turn is folded into the summary and the pass repeats, so the
// result is always within budget.
func (b windowBuilder) Build(turns []Turn, budget int) ContextWindow {
	if budget <= 0 {
		budget = b.cfg.MaxContextTokens
	}

	retain := b.cfg.RetainRecentTurns
	if retain > len(turns) {
		retain = len(turns)
	}

	// Raw history inside the budget needs no compression.
	if raw := b.turnsTokens(turns); raw <= budget {
		return ContextWindow{RecentTurns: append([]Turn(nil), turns...), EstimatedTokens: raw}
	}

	for ; retain >= 0; retain-- {
		recent := turns[len(turns)-retain:]
		older := turns[:len(turns)-retain]

		entities := b.extractEntities(older)
		summary := b.summarize(older)

		estimate := b.turnsTokens(recent) + b.counter.Count(summary) + b.counter.Count(entityLine(entities))
		if estimate <= budget {
			return ContextWindow{
				RecentTurns:     append([]Turn(nil), recent...),
				KeyEntities:     entities,
				TopicSummary:    summary,
				EstimatedTokens: estimate,
			}
		}
	}

	// Even the summary alone overflows. Trim it sentence by sentence.
	entities := b.extractEntities(turns)
	summary := b.summarize(turns)
	for summary != "" {
		estimate := b.counter.Count(summary) + b.counter.Count(entityLine(entities))
		if estimate <= budget {
			return ContextWindow{KeyEntities: entities, TopicSummary: summary, EstimatedTokens: estimate}
		}
		summary = dropLastSentence(summary)
	}
	if b.counter.Count(entityLine(entities)) > budget {
		entities = nil
	}
	return ContextWindow{KeyEntities: entities, EstimatedTokens: b.counter.Count(entityLine(entities))}
}

func (b windowBuilder) turnsTokens(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += b.counter.Count(t.Question) + b.counter.Count(t.Answer)
	}
	return total
}

// extractEntities accumulates recurring terms from older turns with a weight
// that decays over turn distance: a term in the turn right before the
// retained window adds more than the same term ten turns back.
func (b windowBuilder) extractEntities(older []Turn) map[string]float64 {
	if len(older) == 0 {
		return nil
	}
	weights := make(map[string]float64)
	for i, turn := range older {
		distance := len(older) - i // 1 = nearest to the retained window
		gain := 1.0 / (1.0 + float64(distance))
		for _, term := range significantTerms(turn.Question + " " + turn.Answer) {
			weights[term] += gain
		}
	}

	max := b.cfg.MaxKeyEntities
	if max <= 0 || len(weights) <= max {
		return weights
	}
	type entry struct {
		term   string
		weight float64
	}
	ranked := make([]entry, 0, len(weights))
	for term, w := range weights {
		ranked = append(ranked, entry{term, w})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].term < ranked[j].term
	})
	top := make(map[string]float64, max)
	for _, e := range ranked[:max] {
		top[e.term] = e.weight
	}
	return top
}

// summarize ranks the older turns' sentences by word frequency and keeps the
// best ones in original order, capped by sentence count and token share.
func (b windowBuilder) summarize(older []Turn) string {
	if len(older) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range older {
		sb.WriteString(ensureTerminated(t.Question))
		sb.WriteString(" ")
		sb.WriteString(ensureTerminated(t.Answer))
		sb.WriteString(" ")
	}

	sentences := sentencePattern.FindAllString(sb.String(), -1)
	if len(sentences) == 0 {
		return ""
	}

	freq := make(map[string]float64)
	for _, sent := range sentences {
		for _, term := range significantTerms(sent) {
			freq[term]++
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		terms := significantTerms(sent)
		score := 0.0
		for _, term := range terms {
			score += freq[term]
		}
		if n := float64(len(terms)); n > 0 {
			score /= math.Sqrt(n)
		}
		ranked[i] = scored{i, score}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	max := b.cfg.SummaryMaxSentences
	if max <= 0 || max > len(ranked) {
		max = len(ranked)
	}
	selected := make([]int, max)
	for i := 0; i < max; i++ {
		selected[i] = ranked[i].idx
	}
	sort.Ints(selected)

	parts := make([]string, 0, len(selected))
	for _, idx := range selected {
		parts = append(parts, strings.TrimSpace(sentences[idx]))
	}
	summary := strings.Join(parts, " ")

	if limit := b.cfg.SummaryMaxTokens; limit > 0 {
		for summary != "" && b.counter.Count(summary) > limit {
			summary = dropLastSentence(summary)
		}
	}
	return summary
}

func significantTerms(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := summaryStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func entityLine(entities map[string]float64) string {
	if len(entities) == 0 {
		return ""
	}
	terms := make([]string, 0, len(entities))
	for term := range entities {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return strings.Join(terms, ", ")
}

func ensureTerminated(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if strings.ContainsRune(".!?。！？", last) {
		return s
	}
	return s + "."
}

func dropLastSentence(summary string) string {
	sentences := sentencePattern.FindAllString(summary, -1)
	if len(sentences) <= 1 {
		return ""
	}
	parts := make([]string, 0, len(sentences)-1)
	for _, s := range sentences[:len(sentences)-1] {
		parts = append(parts, strings.TrimSpace(s))
	}
	return strings.Join(parts, " ")
}
