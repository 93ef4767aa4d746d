package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmind/ragcore/common/tokens"
	"github.com/scholarmind/ragcore/config"
)

func testWindowBuilder() windowBuilder {
	cfg := config.Default().Conversation
	cfg.RetainRecentTurns = 6
	cfg.SummaryMaxTokens = 40
	cfg.MaxKeyEntities = 6
	return windowBuilder{cfg: cfg, counter: tokens.Heuristic{}}
}

func makeTurns(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		turns[i] = Turn{
			ID:        fmt.Sprintf("turn-%d", i),
			SessionID: "sess-1",
			Index:     i,
			Question:  fmt.Sprintf("What does section %02d of the report say about installation costs", i),
			Answer:    fmt.Sprintf("Section %02d estimates installation costs between four and six thousand dollars", i),
		}
	}
	return turns
}

func TestBuildReturnsHistoryVerbatimWhenWithinBudget(t *testing.T) {
	b := testWindowBuilder()
	turns := makeTurns(3)

	w := b.Build(turns, 10_000)

	assert.Len(t, w.RecentTurns, 3)
	assert.Empty(t, w.TopicSummary)
	assert.Empty(t, w.KeyEntities)
	assert.LessOrEqual(t, w.EstimatedTokens, 10_000)
}

func TestBuildCompressesLongHistory(t *testing.T) {
	b := testWindowBuilder()
	turns := makeTurns(12)
	budget := 300

	require.Greater(t, b.turnsTokens(turns), budget, "history must exceed the budget to trigger compression")

	w := b.Build(turns, budget)

	require.Len(t, w.RecentTurns, 6)
	for i, turn := range w.RecentTurns {
		assert.Equal(t, 6+i, turn.Index, "the newest six turns should survive verbatim")
	}
	assert.NotEmpty(t, w.TopicSummary)
	assert.NotEmpty(t, w.KeyEntities)
	assert.LessOrEqual(t, w.EstimatedTokens, budget)
}

func TestBuildStaysWithinBudgetForPathologicalHistories(t *testing.T) {
	b := testWindowBuilder()

	for _, n := range []int{1, 10, 100, 1200} {
		for _, budget := range []int{1, 50, 500} {
			w := b.Build(makeTurns(n), budget)
			assert.LessOrEqualf(t, w.EstimatedTokens, budget, "n=%d budget=%d", n, budget)
		}
	}
}

func TestEntityWeightsDecayWithDistance(t *testing.T) {
	b := testWindowBuilder()
	older := []Turn{
		{Index: 0, Question: "Explain amortization basics", Answer: "Amortization spreads cost"},
		{Index: 1, Question: "Explain warranty coverage", Answer: "Warranty covers panels"},
	}

	entities := b.extractEntities(older)

	require.Contains(t, entities, "warranty")
	require.Contains(t, entities, "amortization")
	assert.Greater(t, entities["warranty"], entities["amortization"],
		"terms nearer the retained window should carry more weight")
}

func TestEntityMapIsCapped(t *testing.T) {
	b := testWindowBuilder()
	turns := make([]Turn, 20)
	for i := range turns {
		turns[i] = Turn{Index: i, Question: fmt.Sprintf("distinctterm%02d matters", i)}
	}

	entities := b.extractEntities(turns)
	assert.Len(t, entities, b.cfg.MaxKeyEntities)
}

func TestSummaryRespectsTokenCap(t *testing.T) {
	b := testWindowBuilder()
	summary := b.summarize(makeTurns(30))

	require.NotEmpty(t, summary)
	assert.LessOrEqual(t, tokens.Heuristic{}.Count(summary), b.cfg.SummaryMaxTokens)
}

func TestSentenceSplittingHandlesCJKTerminators(t *testing.T) {
	got := sentencePattern.FindAllString("检索结果有效。排序保持稳定！为什么会这样？", -1)
	require.Len(t, got, 3)
	assert.Equal(t, "检索结果有效。", got[0])
}

func TestEnsureTerminatedAcceptsCJKTerminators(t *testing.T) {
	assert.Equal(t, "评估结果良好。", ensureTerminated("评估结果良好。"))
	assert.Equal(t, "评估结果良好.", ensureTerminated("评估结果良好"))
}
