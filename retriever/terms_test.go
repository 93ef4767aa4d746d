package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTermsDropsStopwordsAndShortTerms(t *testing.T) {
	terms := ExtractTerms("What is the payback period for a solar installation?", 3)
	assert.Equal(t, []string{"payback", "period", "solar", "installation"}, terms)
}

func TestExtractTermsDeduplicates(t *testing.T) {
	terms := ExtractTerms("panel panel PANEL efficiency", 3)
	assert.Equal(t, []string{"panel", "efficiency"}, terms)
}

func TestExtractTermsSplitsOnPunctuation(t *testing.T) {
	terms := ExtractTerms("cost/benefit analysis, long-term?", 3)
	assert.Equal(t, []string{"cost", "benefit", "analysis", "long-term"}, terms)
}
