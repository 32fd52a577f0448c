package classifier

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

//go:embed patterns.yaml
var defaultPatterns []byte

type Table struct {
	Languages []LanguageEntry `yaml:"languages"`
	Types     []TypeEntry     `yaml:"types"`
}

type LanguageEntry struct {
	Code       domain.Language    `yaml:"code"`
	Indicators map[string]float64 `yaml:"indicators"`
}

type TypeEntry struct {
	Type            domain.DocumentType `yaml:"type"`
	RequiredMatches int                 `yaml:"required_matches"`
	Threshold       float64             `yaml:"threshold"`
	Rules           []RuleEntry         `yaml:"rules"`
}

type RuleEntry struct {
	ID       string          `yaml:"id"`
	Pattern  string          `yaml:"pattern"`
	Weight   float64         `yaml:"weight"`
	Language domain.Language `yaml:"language"`
}

// DefaultTable returns the built-in pattern table.
func DefaultTable() (Table, error) {
	return ParseTable(strings.NewReader(string(defaultPatterns)))
}

// LoadTableFile reads a pattern table from path.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open pattern table: %w", err)
	}
	defer f.Close()
	return ParseTable(f)
}

func ParseTable(r io.Reader) (Table, error) {
	var table Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		return Table{}, fmt.Errorf("decode pattern table: %w", err)
	}
	return table, nil
}

type rule struct {
	id       string
	re       *regexp.Regexp
	weight   float64
	language domain.Language
}

type pattern struct {
	docType     domain.DocumentType
	required    int
	threshold   float64
	totalWeight float64
	rules       []rule
}

func compile(table Table) ([]pattern, error) {
	if len(table.Types) == 0 {
		return nil, fmt.Errorf("pattern table has no types")
	}
	seen := make(map[domain.DocumentType]struct{}, len(table.Types))
	out := make([]pattern, 0, len(table.Types))
	for _, entry := range table.Types {
		if entry.Type == "" || entry.Type == domain.TypeUnknown {
			return nil, fmt.Errorf("invalid document type %q", entry.Type)
		}
		if _, dup := seen[entry.Type]; dup {
			return nil, fmt.Errorf("duplicate document type %q", entry.Type)
		}
		seen[entry.Type] = struct{}{}
		if len(entry.Rules) == 0 {
			return nil, fmt.Errorf("type %s has no rules", entry.Type)
		}
		if entry.RequiredMatches < 1 || entry.RequiredMatches > len(entry.Rules) {
			return nil, fmt.Errorf("type %s: required_matches %d out of range", entry.Type, entry.RequiredMatches)
		}
		if entry.Threshold < 0 || entry.Threshold > 1 {
			return nil, fmt.Errorf("type %s: threshold %v out of range", entry.Type, entry.Threshold)
		}

		p := pattern{
			docType:   entry.Type,
			required:  entry.RequiredMatches,
			threshold: entry.Threshold,
			rules:     make([]rule, 0, len(entry.Rules)),
		}
		for _, rs := range entry.Rules {
			if rs.Weight <= 0 {
				return nil, fmt.Errorf("type %s rule %s: weight must be positive", entry.Type, rs.ID)
			}
			re, err := regexp.Compile(rs.Pattern)
			if err != nil {
				return nil, fmt.Errorf("type %s rule %s: %w", entry.Type, rs.ID, err)
			}
			p.rules = append(p.rules, rule{id: rs.ID, re: re, weight: rs.Weight, language: rs.Language})
			p.totalWeight += rs.Weight
		}
		out = append(out, p)
	}
	return out, nil
}
