package classifier

import (
	"strings"
	"unicode"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Classifier scores text against a static weighted pattern table. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	patterns  []pattern
	languages []LanguageEntry
}

func New(table Table) (*Classifier, error) {
	patterns, err := compile(table)
	if err != nil {
		return nil, err
	}
	langs := make([]LanguageEntry, 0, len(table.Languages))
	for _, l := range table.Languages {
		indicators := make(map[string]float64, len(l.Indicators))
		for term, w := range l.Indicators {
			indicators[strings.ToLower(term)] = w
		}
		langs = append(langs, LanguageEntry{Code: l.Code, Indicators: indicators})
	}
	return &Classifier{patterns: patterns, languages: langs}, nil
}

func NewDefault() (*Classifier, error) {
	table, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return New(table)
}

func (c *Classifier) Types() []domain.DocumentType {
	out := make([]domain.DocumentType, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p.docType)
	}
	return out
}

func (c *Classifier) Classify(text string) domain.ClassificationResult {
	lang := c.DetectLanguage(text)
	if strings.TrimSpace(text) == "" {
		return domain.UnknownClassification(lang)
	}

	best := domain.UnknownClassification(lang)
	found := false
	for _, p := range c.patterns {
		var matchedWeight float64
		var matched []string
		for _, r := range p.rules {
			if r.language != "" && lang != domain.LanguageOther && r.language != lang {
				continue
			}
			if r.re.MatchString(text) {
				matchedWeight += r.weight
				matched = append(matched, r.id)
			}
		}
		if len(matched) < p.required {
			continue
		}
		confidence := matchedWeight / p.totalWeight
		if confidence < p.threshold {
			continue
		}
		// strict comparison keeps the earlier declaration on ties
		if !found || confidence > best.Confidence {
			best = domain.ClassificationResult{
				Type:         p.docType,
				Confidence:   confidence,
				MatchedRules: matched,
				Language:     lang,
			}
			found = true
		}
	}
	return best
}

// DetectLanguage sums indicator weights of the words in text per language and
// returns the best scorer, or "other" when nothing scores.
func (c *Classifier) DetectLanguage(text string) domain.Language {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return domain.LanguageOther
	}

	best := domain.LanguageOther
	bestScore := 0.0
	for _, l := range c.languages {
		score := 0.0
		for _, w := range words {
			score += l.Indicators[w]
		}
		if score > bestScore {
			best = l.Code
			bestScore = score
		}
	}
	return best
}
