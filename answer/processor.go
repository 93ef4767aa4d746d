// Package answer parses generated text into a structured answer with
// verified citations and a confidence estimate.
package answer

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/schema"
)

var (
	citationPattern   = regexp.MustCompile(`\[Source\s+(\d+)\]`)
	answerLabel       = regexp.MustCompile(`(?i)^answer\s*:\s*`)
	keyFindingsLabel  = regexp.MustCompile(`(?i)^key\s+findings\s*:\s*`)
	limitationsLabel  = regexp.MustCompile(`(?i)^limitations\s*:\s*`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

const excerptLength = 200

// sentenceEnders covers both ASCII and CJK terminators; generated answers
// follow the document's script.
const sentenceEnders = ".!?。！？"

// Processor turns raw generation output into a schema.Answer. Parsing is
// defensive: a missing section becomes an empty value, never an error.
type Processor struct {
	cfg config.AnswerConfig
}

func NewProcessor(cfg config.AnswerConfig) *Processor {
	return &Processor{cfg: cfg}
}

// Process extracts the answer sections, resolves [Source N] markers against
// the candidates the prompt actually contained (in label order), and scores
// confidence. Markers pointing outside the candidate set are dropped.
func (p *Processor) Process(raw string, included []schema.RetrievalCandidate, question string) schema.Answer {
	text, findings, limitations := splitSections(raw)
	text = tidy(text)
	if text == "" {
		// Unstructured output is still an answer.
		text = tidy(raw)
	}
	text = p.truncate(text)

	return schema.Answer{
		Text:        text,
		KeyFindings: findings,
		Limitations: limitations,
		Citations:   extractCitations(text, included),
		Confidence:  p.confidence(text, included),
	}
}

// splitSections walks the layout the generator was asked for: an answer
// body, an optional "Key Findings" list, an optional "Limitations" note.
func splitSections(raw string) (text string, findings []string, limitations string) {
	var answerLines, limitationLines []string
	section := "answer"

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case keyFindingsLabel.MatchString(trimmed):
			section = "findings"
			continue
		case limitationsLabel.MatchString(trimmed):
			section = "limitations"
			trimmed = limitationsLabel.ReplaceAllString(trimmed, "")
			if trimmed != "" {
				limitationLines = append(limitationLines, trimmed)
			}
			continue
		case answerLabel.MatchString(trimmed) && section == "answer":
			line = answerLabel.ReplaceAllString(trimmed, "")
			trimmed = line
		}

		switch section {
		case "answer":
			answerLines = append(answerLines, line)
		case "findings":
			if item, ok := listItem(trimmed); ok {
				findings = append(findings, item)
			} else if trimmed != "" {
				// The list ended, anything else belongs to the answer body.
				answerLines = append(answerLines, line)
				section = "answer"
			}
		case "limitations":
			if trimmed != "" {
				limitationLines = append(limitationLines, trimmed)
			}
		}
	}
	return strings.Join(answerLines, "\n"), findings, tidy(strings.Join(limitationLines, " "))
}

func listItem(line string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}

// extractCitations maps [Source N] markers back to candidates by label
// position. Labels are one-based; out-of-range references are dropped,
// never fabricated.
func extractCitations(text string, included []schema.RetrievalCandidate) []schema.Source {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	citations := make([]schema.Source, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(included) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}

		cand := included[n-1]
		citations = append(citations, schema.Source{
			ChunkID: cand.Chunk.ID,
			Ordinal: cand.Chunk.Ordinal,
			Excerpt: excerpt(cand.Chunk.Text),
			Score:   cand.RerankScore,
		})
	}
	return citations
}

// confidence blends three signals into [0,1]: how strongly the top
// candidate scored and how far it sits above the runner-up, whether the
// text actually cites sources, and whether the answer length is sane.
func (p *Processor) confidence(text string, included []schema.RetrievalCandidate) float64 {
	retrieval := 0.0
	if len(included) > 0 {
		top := clamp01(included[0].RerankScore)
		separation := 0.0
		if len(included) > 1 {
			separation = clamp01(included[0].RerankScore - included[1].RerankScore)
		} else {
			separation = top
		}
		retrieval = 0.7*top + 0.3*separation
	}

	cited := 0.0
	if citationPattern.MatchString(text) {
		cited = 1.0
	}

	length := 1.0
	if n := utf8.RuneCountInString(text); n < p.cfg.MinLength {
		length = float64(n) / float64(p.cfg.MinLength)
	} else if p.cfg.MaxLength > 0 && n > p.cfg.MaxLength {
		length = 0.5
	}

	return clamp01(0.5*retrieval + 0.3*cited + 0.2*length)
}

// truncate enforces the configured length cap, in runes, on a sentence
// boundary so a runaway generation never ships mid-sentence. Cutting by
// rune keeps multibyte text valid.
func (p *Processor) truncate(text string) string {
	if p.cfg.MaxLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= p.cfg.MaxLength {
		return text
	}
	cut := string(runes[:p.cfg.MaxLength])
	if idx := strings.LastIndexAny(cut, sentenceEnders); idx > 0 {
		_, width := utf8.DecodeRuneInString(cut[idx:])
		return strings.TrimSpace(cut[:idx+width])
	}
	return strings.TrimSpace(cut)
}

func tidy(s string) string {
	s = whitespacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	cut := string(runes[:excerptLength])
	// Back up to a word boundary when the text has them; scripts written
	// without spaces keep the plain rune cut.
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
